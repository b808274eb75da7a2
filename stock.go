package luckydraw

import (
	"context"
	"sync"
)

// StockLedger is the authority for remaining prize stock during draws.
// Reserve atomically takes one unit and never lets the count cross zero;
// Rollback returns a reserved unit after a failed batch. Unlimited entries
// (StockUnlimited) pass through every operation.
type StockLedger interface {
	// Seed installs an initial count for a prize if none is tracked yet
	Seed(ctx context.Context, prizeID string, stock int) error
	// Remaining reports the tracked count, StockUnlimited for unlimited
	Remaining(ctx context.Context, prizeID string) (int, error)
	// Reserve atomically takes one unit, ErrInsufficientStock at zero
	Reserve(ctx context.Context, prizeID string) error
	// Commit finalizes a reservation after the batch settles
	Commit(ctx context.Context, prizeID string) error
	// Rollback returns one reserved unit
	Rollback(ctx context.Context, prizeID string) error
	// SetStock overwrites the tracked count (admin operation)
	SetStock(ctx context.Context, prizeID string, stock int) error
}

// MemoryStockLedger tracks stock in process memory. Suitable for a single
// engine instance; use RedisStockLedger when several instances share a pool.
type MemoryStockLedger struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryStockLedger creates an empty in-memory stock ledger
func NewMemoryStockLedger() *MemoryStockLedger {
	return &MemoryStockLedger{counts: make(map[string]int)}
}

// Seed implements StockLedger. First seed wins; reseeding an already tracked
// prize is a no-op so restarts do not reset depleted counts.
func (l *MemoryStockLedger) Seed(_ context.Context, prizeID string, stock int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.counts[prizeID]; !ok {
		l.counts[prizeID] = stock
	}
	return nil
}

// Remaining implements StockLedger
func (l *MemoryStockLedger) Remaining(_ context.Context, prizeID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, ok := l.counts[prizeID]
	if !ok {
		return 0, ErrPrizeNotFound.WithDetails("prize_id=%s", prizeID)
	}
	return count, nil
}

// Reserve implements StockLedger
func (l *MemoryStockLedger) Reserve(_ context.Context, prizeID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, ok := l.counts[prizeID]
	if !ok {
		return ErrPrizeNotFound.WithDetails("prize_id=%s", prizeID)
	}
	if count == StockUnlimited {
		return nil
	}
	if count <= 0 {
		return ErrInsufficientStock.WithDetails("prize_id=%s", prizeID)
	}
	l.counts[prizeID] = count - 1
	return nil
}

// Commit implements StockLedger. The unit was already taken by Reserve, so
// commit only confirms the reservation.
func (l *MemoryStockLedger) Commit(_ context.Context, prizeID string) error {
	return nil
}

// Rollback implements StockLedger
func (l *MemoryStockLedger) Rollback(_ context.Context, prizeID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, ok := l.counts[prizeID]
	if !ok {
		return ErrPrizeNotFound.WithDetails("prize_id=%s", prizeID)
	}
	if count == StockUnlimited {
		return nil
	}
	l.counts[prizeID] = count + 1
	return nil
}

// SetStock implements StockLedger
func (l *MemoryStockLedger) SetStock(_ context.Context, prizeID string, stock int) error {
	if stock < StockUnlimited {
		return ErrInvalidStock.WithDetails("stock=%d", stock)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[prizeID] = stock
	return nil
}
