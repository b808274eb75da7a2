package luckydraw

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEntries is the standard three-entry pool used across the tests.
// Cumulative probabilities: grand 0.1, voucher 0.3, thanks 1.0.
func testEntries() []PrizeEntry {
	return []PrizeEntry{
		{ID: "grand", Name: "Grand Prize", Probability: 0.1, Cost: 100, Stock: 2},
		{ID: "voucher", Name: "Gift Voucher", Probability: 0.2, Cost: 100, Stock: 10},
		{ID: "thanks", Name: "Thanks for Playing", Probability: 0.7, Cost: 100, Stock: StockUnlimited},
	}
}

func mustTestPool(t *testing.T) *PrizePool {
	t.Helper()
	pool, err := NewPrizePool(testEntries())
	require.NoError(t, err)
	return pool
}

// seqRand returns a RandFunc cycling through the given values
func seqRand(values ...float64) RandFunc {
	i := 0
	return func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}
}

// seedTestStock seeds the ledger with the pool's configured counts
func seedTestStock(t *testing.T, stock StockLedger, entries []PrizeEntry) {
	t.Helper()
	ctx := context.Background()
	for _, entry := range entries {
		require.NoError(t, stock.Seed(ctx, entry.ID, entry.Stock))
	}
}

// newTestSession wires a session over fresh in-memory components
func newTestSession(t *testing.T) (*DrawSession, *MemoryStore, *MemoryStockLedger) {
	t.Helper()

	store := NewMemoryStore()
	stock := NewMemoryStockLedger()
	seedTestStock(t, stock, testEntries())

	pool := mustTestPool(t)
	accounts := NewAccountLedger(store)
	accounts.SetLogger(NewSilentLogger())

	session := NewDrawSession(pool, stock, accounts, store)
	session.SetLogger(NewSilentLogger())
	return session, store, stock
}

func putTestAccount(t *testing.T, store Store, account Account) {
	t.Helper()
	require.NoError(t, store.PutAccount(context.Background(), account))
}

func TestDrawSession_SingleDraw(t *testing.T) {
	ctx := context.Background()
	session, store, _ := newTestSession(t)

	account := Account{ID: "user1", Balance: 500}
	putTestAccount(t, store, account)
	session.SetRand(seqRand(0.5))

	batch, err := session.Run(ctx, account, Single(), nil)
	require.NoError(t, err)
	require.NotNil(t, batch)

	assert.Equal(t, "user1", batch.AccountID)
	assert.Equal(t, int64(100), batch.TotalCost)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, "thanks", batch.Results[0].PrizeID)
	assert.Equal(t, 0, batch.Results[0].Slot)
	assert.False(t, batch.Results[0].Forced)

	// Charge is durable
	updated, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, int64(400), updated.Balance)
	assert.Equal(t, 1, updated.TotalDraws)

	// Exactly one batch and one charge transaction persisted
	batches, err := store.ListBatches(ctx, "user1", 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, batch.ID, batches[0].ID)

	transactions, err := store.ListTransactions(ctx, "user1", 0)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, int64(-100), transactions[0].Delta)
	assert.Equal(t, TransactionCharge, transactions[0].Kind)
	assert.Equal(t, batch.ID, transactions[0].BatchID)
}

func TestDrawSession_MultiDraw(t *testing.T) {
	ctx := context.Background()
	session, store, _ := newTestSession(t)

	account := Account{ID: "user1", Balance: 1000}
	putTestAccount(t, store, account)
	session.SetRand(seqRand(0.05, 0.2, 0.5, 0.9, 0.99))

	batch, err := session.Run(ctx, account, Multi(5), nil)
	require.NoError(t, err)
	require.Len(t, batch.Results, 5)

	assert.Equal(t, int64(500), batch.TotalCost)
	assert.Equal(t, "grand", batch.Results[0].PrizeID)
	assert.Equal(t, "voucher", batch.Results[1].PrizeID)
	assert.Equal(t, "thanks", batch.Results[2].PrizeID)
	assert.Equal(t, "thanks", batch.Results[3].PrizeID)
	assert.Equal(t, "thanks", batch.Results[4].PrizeID)

	for slot, result := range batch.Results {
		assert.Equal(t, slot, result.Slot)
		assert.Equal(t, batch.ID, result.BatchID)
		assert.Equal(t, int64(100), result.Cost)
	}

	updated, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), updated.Balance)
	assert.Equal(t, 5, updated.TotalDraws)

	// Conservation: one transaction matching the batch cost
	transactions, err := store.ListTransactions(ctx, "user1", 0)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, -batch.TotalCost, transactions[0].Delta)
}

func TestDrawSession_ChancesCurrency(t *testing.T) {
	ctx := context.Background()
	session, store, _ := newTestSession(t)

	account := Account{ID: "user1", Balance: 50, DrawChances: 5}
	putTestAccount(t, store, account)
	session.SetRand(seqRand(0.5))

	batch, err := session.Run(ctx, account, Multi(3).WithChances(), nil)
	require.NoError(t, err)
	require.Len(t, batch.Results, 3)

	updated, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), updated.Balance, "balance must not be touched when paying with chances")
	assert.Equal(t, 2, updated.DrawChances)

	transactions, err := store.ListTransactions(ctx, "user1", 0)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, CurrencyChances, transactions[0].Currency)
	assert.Equal(t, int64(-3), transactions[0].Delta)
}

func TestDrawSession_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	session, store, _ := newTestSession(t)

	account := Account{ID: "user1", Balance: 300}
	putTestAccount(t, store, account)

	_, err := session.Run(ctx, account, Multi(5), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// No partial state: account untouched, nothing persisted
	updated, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), updated.Balance)
	assert.Equal(t, 0, updated.TotalDraws)

	batches, err := store.ListBatches(ctx, "user1", 0)
	require.NoError(t, err)
	assert.Empty(t, batches)

	transactions, err := store.ListTransactions(ctx, "user1", 0)
	require.NoError(t, err)
	assert.Empty(t, transactions)
}

func TestDrawSession_BannedAccount(t *testing.T) {
	ctx := context.Background()
	session, store, _ := newTestSession(t)

	account := Account{ID: "user1", Balance: 1000, Banned: true}
	putTestAccount(t, store, account)

	_, err := session.Run(ctx, account, Single(), nil)
	assert.ErrorIs(t, err, ErrAccountBanned)
}

func TestDrawSession_InvalidDrawKind(t *testing.T) {
	ctx := context.Background()
	session, store, _ := newTestSession(t)

	account := Account{ID: "user1", Balance: 1000}
	putTestAccount(t, store, account)

	t.Run("zero count", func(t *testing.T) {
		_, err := session.Run(ctx, account, DrawKind{Count: 0, Currency: CurrencyBalance}, nil)
		assert.ErrorIs(t, err, ErrInvalidDrawCount)
	})

	t.Run("count above limit", func(t *testing.T) {
		_, err := session.Run(ctx, account, Multi(MaxDrawBatchSize+1), nil)
		assert.ErrorIs(t, err, ErrInvalidDrawCount)
	})

	t.Run("unknown currency", func(t *testing.T) {
		_, err := session.Run(ctx, account, DrawKind{Count: 1, Currency: "points"}, nil)
		assert.ErrorIs(t, err, ErrInvalidParameters)
	})
}

func TestDrawSession_ForcedLossPolicy(t *testing.T) {
	ctx := context.Background()
	session, store, _ := newTestSession(t)

	account := Account{ID: "newcomer", Balance: 1000}
	putTestAccount(t, store, account)
	session.SetRand(seqRand(0.05))

	policy := NewForcedLossPolicy("thanks", 3)
	batch, err := session.Run(ctx, account, Multi(5), policy)
	require.NoError(t, err)
	require.Len(t, batch.Results, 5)

	// First three lifetime draws are forced to the losing entry
	for slot := 0; slot < 3; slot++ {
		assert.Equal(t, "thanks", batch.Results[slot].PrizeID, "slot %d should be forced", slot)
		assert.True(t, batch.Results[slot].Forced, "slot %d should be marked forced", slot)
	}
	// Remaining slots go through random selection (rng always picks grand)
	for slot := 3; slot < 5; slot++ {
		assert.Equal(t, "grand", batch.Results[slot].PrizeID)
		assert.False(t, batch.Results[slot].Forced)
	}

	// Past the window, no slot is forced anymore
	account2, err := store.GetAccount(ctx, "newcomer")
	require.NoError(t, err)
	require.Equal(t, 5, account2.TotalDraws)

	session.SetRand(seqRand(0.5))
	batch2, err := session.Run(ctx, account2, Multi(2), policy)
	require.NoError(t, err)
	for _, result := range batch2.Results {
		assert.False(t, result.Forced)
	}
}

func TestDrawSession_ForcedEntryOutOfStock(t *testing.T) {
	ctx := context.Background()
	session, store, stock := newTestSession(t)

	account := Account{ID: "user1", Balance: 1000}
	putTestAccount(t, store, account)
	require.NoError(t, stock.SetStock(ctx, "grand", 1))

	// Plan needs two units of a prize that only has one left
	policy := PolicyFunc(func(account Account, kind DrawKind, rng RandFunc) []string {
		return []string{"grand", "grand"}
	})

	_, err := session.Run(ctx, account, Multi(2), policy)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// The batch aborted before charging
	updated, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), updated.Balance)

	transactions, err := store.ListTransactions(ctx, "user1", 0)
	require.NoError(t, err)
	assert.Empty(t, transactions)

	// And without consuming any stock
	remaining, err := stock.Remaining(ctx, "grand")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestDrawSession_ForcedEntryUnknown(t *testing.T) {
	ctx := context.Background()
	session, store, _ := newTestSession(t)

	account := Account{ID: "user1", Balance: 1000}
	putTestAccount(t, store, account)

	policy := PolicyFunc(func(account Account, kind DrawKind, rng RandFunc) []string {
		return []string{"no-such-prize"}
	})

	_, err := session.Run(ctx, account, Single(), policy)
	assert.ErrorIs(t, err, ErrPrizeNotFound)
}

func TestDrawSession_ExhaustedPrizeLeavesScanMidBatch(t *testing.T) {
	ctx := context.Background()
	session, store, stock := newTestSession(t)

	account := Account{ID: "user1", Balance: 1000}
	putTestAccount(t, store, account)
	require.NoError(t, stock.SetStock(ctx, "grand", 1))

	// r=0.05 selects the grand prize while stock lasts; only one unit exists.
	// After it sells out the scan covers voucher (0.2) and thanks, so the
	// same r lands on the voucher.
	session.SetRand(seqRand(0.05))

	batch, err := session.Run(ctx, account, Multi(3), nil)
	require.NoError(t, err)
	require.Len(t, batch.Results, 3)

	assert.Equal(t, "grand", batch.Results[0].PrizeID)
	assert.Equal(t, "voucher", batch.Results[1].PrizeID, "exhausted prize must stop absorbing its band")
	assert.Equal(t, "voucher", batch.Results[2].PrizeID)

	remaining, err := stock.Remaining(ctx, "grand")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestDrawSession_ExhaustedPrizeExcludedFromScan(t *testing.T) {
	ctx := context.Background()

	// The first entry starts sold out; its probability band must not be
	// redirected to the last entry
	entries := []PrizeEntry{
		{ID: "alpha", Name: "Alpha", Probability: 0.5, Cost: 100, Stock: 0},
		{ID: "beta", Name: "Beta", Probability: 0.3, Cost: 100, Stock: 5},
		{ID: "gamma", Name: "Gamma", Probability: 0.2, Cost: 100, Stock: 5},
	}
	pool, err := NewPrizePool(entries)
	require.NoError(t, err)

	store := NewMemoryStore()
	stock := NewMemoryStockLedger()
	seedTestStock(t, stock, entries)

	accounts := NewAccountLedger(store)
	accounts.SetLogger(NewSilentLogger())

	session := NewDrawSession(pool, stock, accounts, store)
	session.SetLogger(NewSilentLogger())
	session.SetRand(seqRand(0.2))

	account := Account{ID: "user1", Balance: 1000}
	putTestAccount(t, store, account)

	batch, err := session.Run(ctx, account, Single(), nil)
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, "beta", batch.Results[0].PrizeID)
}

func TestDrawSession_ExhaustedLastEntryStillDraws(t *testing.T) {
	ctx := context.Background()

	// Even when the residual-mass entry is sold out, an unlimited entry
	// earlier in the pool keeps the batch drawable
	entries := []PrizeEntry{
		{ID: "keep", Name: "Keep", Probability: 0.2, Cost: 100, Stock: StockUnlimited},
		{ID: "sold", Name: "Sold", Probability: 0.8, Cost: 100, Stock: 0},
	}
	pool, err := NewPrizePool(entries)
	require.NoError(t, err)

	store := NewMemoryStore()
	stock := NewMemoryStockLedger()
	seedTestStock(t, stock, entries)

	accounts := NewAccountLedger(store)
	accounts.SetLogger(NewSilentLogger())

	session := NewDrawSession(pool, stock, accounts, store)
	session.SetLogger(NewSilentLogger())
	session.SetRand(seqRand(0.5))

	account := Account{ID: "user1", Balance: 1000}
	putTestAccount(t, store, account)

	batch, err := session.Run(ctx, account, Single(), nil)
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, "keep", batch.Results[0].PrizeID)
}

func TestDrawSession_CancelledContextRollsBack(t *testing.T) {
	session, store, _ := newTestSession(t)

	account := Account{ID: "user1", Balance: 1000}
	putTestAccount(t, store, account)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := session.Run(ctx, account, Multi(5), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDrawInterrupted)

	// The charge was rolled back
	updated, err := store.GetAccount(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), updated.Balance)
	assert.Equal(t, 0, updated.TotalDraws)

	batches, err := store.ListBatches(context.Background(), "user1", 0)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

// failingStore rejects AppendBatch to exercise the settlement rollback path
type failingStore struct {
	*MemoryStore
}

func (s *failingStore) AppendBatch(ctx context.Context, batch DrawBatch, tx LedgerTransaction) error {
	return ErrStoreFailure.WithOperation("append_batch")
}

func TestDrawSession_SettlementFailureRollsBack(t *testing.T) {
	ctx := context.Background()

	store := &failingStore{MemoryStore: NewMemoryStore()}
	stock := NewMemoryStockLedger()
	seedTestStock(t, stock, testEntries())

	accounts := NewAccountLedger(store)
	accounts.SetLogger(NewSilentLogger())

	session := NewDrawSession(mustTestPool(t), stock, accounts, store)
	session.SetLogger(NewSilentLogger())
	session.SetRand(seqRand(0.05, 0.2, 0.5))

	account := Account{ID: "user1", Balance: 1000}
	putTestAccount(t, store, account)

	_, err := session.Run(ctx, account, Multi(3), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreFailure)

	// Account restored to the pre-charge snapshot
	updated, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), updated.Balance)
	assert.Equal(t, 0, updated.TotalDraws)

	// Reserved stock returned
	remaining, err := stock.Remaining(ctx, "grand")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	remaining, err = stock.Remaining(ctx, "voucher")
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
}

// contestedStock reports stock as available but refuses the first reservations
// for a prize, like a concurrent batch grabbing the last unit between the
// selection scan and the reserve
type contestedStock struct {
	*MemoryStockLedger
	deny map[string]int
}

func (s *contestedStock) Reserve(ctx context.Context, prizeID string) error {
	if s.deny[prizeID] > 0 {
		s.deny[prizeID]--
		return ErrInsufficientStock.WithDetails("prize_id=%s", prizeID)
	}
	return s.MemoryStockLedger.Reserve(ctx, prizeID)
}

func TestDrawSession_MonitorRecordsActivity(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	stock := &contestedStock{
		MemoryStockLedger: NewMemoryStockLedger(),
		deny:              map[string]int{"grand": 1},
	}
	seedTestStock(t, stock, testEntries())

	accounts := NewAccountLedger(store)
	accounts.SetLogger(NewSilentLogger())

	session := NewDrawSession(mustTestPool(t), stock, accounts, store)
	session.SetLogger(NewSilentLogger())

	monitor := NewPerformanceMonitor()
	session.SetMonitor(monitor)

	account := Account{ID: "user1", Balance: 2000}
	putTestAccount(t, store, account)

	session.SetRand(seqRand(0.05))
	policy := NewForcedLossPolicy("thanks", 1)

	// Slot 0 is forced; slot 1 selects the grand prize, loses the reserve
	// race, and falls back to the last active entry
	batch, err := session.Run(ctx, account, Multi(2), policy)
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)
	assert.Equal(t, "thanks", batch.Results[1].PrizeID)

	metrics := monitor.GetMetrics()
	assert.Equal(t, int64(1), metrics.ForcedDraws)
	assert.Equal(t, int64(1), metrics.StockFallbacks)
}
