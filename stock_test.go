package luckydraw

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStockLedger_SeedFirstWins(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStockLedger()

	require.NoError(t, ledger.Seed(ctx, "p1", 5))

	// Reseeding must not reset the tracked count
	require.NoError(t, ledger.Seed(ctx, "p1", 100))

	remaining, err := ledger.Remaining(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)
}

func TestMemoryStockLedger_Reserve(t *testing.T) {
	ctx := context.Background()

	t.Run("decrements down to zero", func(t *testing.T) {
		ledger := NewMemoryStockLedger()
		require.NoError(t, ledger.Seed(ctx, "p1", 2))

		require.NoError(t, ledger.Reserve(ctx, "p1"))
		require.NoError(t, ledger.Reserve(ctx, "p1"))

		err := ledger.Reserve(ctx, "p1")
		assert.ErrorIs(t, err, ErrInsufficientStock)

		remaining, err := ledger.Remaining(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 0, remaining, "the count must never go negative")
	})

	t.Run("unlimited passthrough", func(t *testing.T) {
		ledger := NewMemoryStockLedger()
		require.NoError(t, ledger.Seed(ctx, "p1", StockUnlimited))

		for i := 0; i < 100; i++ {
			require.NoError(t, ledger.Reserve(ctx, "p1"))
		}

		remaining, err := ledger.Remaining(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, StockUnlimited, remaining)
	})

	t.Run("unknown prize", func(t *testing.T) {
		ledger := NewMemoryStockLedger()
		err := ledger.Reserve(ctx, "missing")
		assert.ErrorIs(t, err, ErrPrizeNotFound)
	})
}

func TestMemoryStockLedger_Rollback(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStockLedger()
	require.NoError(t, ledger.Seed(ctx, "p1", 3))

	require.NoError(t, ledger.Reserve(ctx, "p1"))
	require.NoError(t, ledger.Rollback(ctx, "p1"))

	remaining, err := ledger.Remaining(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	t.Run("unlimited rollback is a no-op", func(t *testing.T) {
		require.NoError(t, ledger.Seed(ctx, "p2", StockUnlimited))
		require.NoError(t, ledger.Rollback(ctx, "p2"))

		remaining, err := ledger.Remaining(ctx, "p2")
		require.NoError(t, err)
		assert.Equal(t, StockUnlimited, remaining)
	})

	t.Run("unknown prize", func(t *testing.T) {
		err := ledger.Rollback(ctx, "missing")
		assert.ErrorIs(t, err, ErrPrizeNotFound)
	})
}

func TestMemoryStockLedger_Commit(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStockLedger()
	require.NoError(t, ledger.Seed(ctx, "p1", 3))

	require.NoError(t, ledger.Reserve(ctx, "p1"))
	require.NoError(t, ledger.Commit(ctx, "p1"))

	// Commit confirms the reservation without a second decrement
	remaining, err := ledger.Remaining(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestMemoryStockLedger_SetStock(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStockLedger()
	require.NoError(t, ledger.Seed(ctx, "p1", 3))

	require.NoError(t, ledger.SetStock(ctx, "p1", 10))
	remaining, err := ledger.Remaining(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)

	err = ledger.SetStock(ctx, "p1", -5)
	assert.ErrorIs(t, err, ErrInvalidStock)
}

// 100 goroutines compete for 10 units; exactly 10 may win
func TestMemoryStockLedger_ConcurrentReserve(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStockLedger()
	require.NoError(t, ledger.Seed(ctx, "p1", 10))

	var successes int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Reserve(ctx, "p1"); err == nil {
				atomic.AddInt64(&successes, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), atomic.LoadInt64(&successes))

	remaining, err := ledger.Remaining(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}
