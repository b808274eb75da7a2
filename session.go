package luckydraw

import (
	"context"
	"time"
)

// DrawSession executes one draw request end to end: charge, per-slot
// selection with stock reservation, and atomic settlement. A failure at any
// point rolls back the charge and every stock reservation, so an aborted
// batch leaves the account and prize counts exactly as they were.
type DrawSession struct {
	pool     *PrizePool
	selector *WeightedSelector
	stock    StockLedger
	accounts *AccountLedger
	store    Store
	rng      RandFunc
	logger   Logger
	monitor  *PerformanceMonitor
}

// NewDrawSession creates a draw session bound to one prize pool
func NewDrawSession(pool *PrizePool, stock StockLedger, accounts *AccountLedger, store Store) *DrawSession {
	return &DrawSession{
		pool:     pool,
		selector: NewWeightedSelector(),
		stock:    stock,
		accounts: accounts,
		store:    store,
		rng:      SecureRand(),
		logger:   &DefaultLogger{},
	}
}

// SetRand replaces the random source, mainly for tests
func (s *DrawSession) SetRand(rng RandFunc) {
	if rng != nil {
		s.rng = rng
	}
}

// SetLogger replaces the session's logger
func (s *DrawSession) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetMonitor attaches a performance monitor
func (s *DrawSession) SetMonitor(monitor *PerformanceMonitor) {
	s.monitor = monitor
}

// Run executes a draw batch for the given account. The caller must hold the
// account lock. On success the returned batch and its charge transaction are
// durable; on error nothing is.
func (s *DrawSession) Run(ctx context.Context, account Account, kind DrawKind, policy OutcomePolicy) (*DrawBatch, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if account.Banned {
		return nil, ErrAccountBanned.WithAccountID(account.ID)
	}

	totalCost := s.pool.PerDrawCost() * int64(kind.Count)

	// Plan forced outcomes before touching money or stock
	var plan []string
	if policy != nil {
		plan = policy.PlanBatch(account, kind, s.rng)
	}
	if len(plan) < kind.Count {
		plan = append(plan, make([]string, kind.Count-len(plan))...)
	}
	if err := s.validatePlan(ctx, plan); err != nil {
		return nil, err
	}

	batchID := newBatchID()
	snapshot := account

	account, tx, err := s.accounts.Charge(ctx, account, kind, totalCost, batchID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	results := make([]DrawResult, 0, kind.Count)
	var reserved []string

	rollback := func() {
		if s.monitor != nil {
			s.monitor.RecordRollback()
		}
		if restoreErr := s.accounts.Restore(ctx, snapshot); restoreErr != nil {
			s.logger.Error("Failed to restore account %s after aborted batch %s: %v",
				snapshot.ID, batchID, restoreErr)
		}
		for _, prizeID := range reserved {
			if rbErr := s.stock.Rollback(ctx, prizeID); rbErr != nil {
				s.logger.Error("Failed to roll back stock for prize %s in batch %s: %v",
					prizeID, batchID, rbErr)
			}
		}
	}

	for slot := 0; slot < kind.Count; slot++ {
		select {
		case <-ctx.Done():
			rollback()
			return nil, ErrDrawInterrupted.
				WithCause(ctx.Err()).
				WithAccountID(account.ID).
				WithDetails("batch_id=%s", batchID).
				WithDetails("slot=%d", slot)
		default:
		}

		entry, forced, err := s.drawSlot(ctx, plan[slot])
		if err != nil {
			rollback()
			return nil, err
		}
		reserved = append(reserved, entry.ID)
		if forced && s.monitor != nil {
			s.monitor.RecordForcedDraw()
		}

		results = append(results, DrawResult{
			BatchID:   batchID,
			AccountID: account.ID,
			Slot:      slot,
			PrizeID:   entry.ID,
			PrizeName: entry.Name,
			Cost:      s.pool.PerDrawCost(),
			Forced:    forced,
			CreatedAt: now,
		})
	}

	batch := &DrawBatch{
		ID:        batchID,
		AccountID: account.ID,
		Kind:      kind,
		TotalCost: totalCost,
		Results:   results,
		CreatedAt: now,
	}

	if err := s.store.AppendBatch(ctx, *batch, tx); err != nil {
		rollback()
		return nil, ErrStoreFailure.
			WithCause(err).
			WithAccountID(account.ID).
			WithOperation("append_batch")
	}

	for _, prizeID := range reserved {
		if err := s.stock.Commit(ctx, prizeID); err != nil {
			s.logger.Error("Failed to commit stock for prize %s in batch %s: %v",
				prizeID, batchID, err)
		}
	}

	return batch, nil
}

// drawSlot resolves one slot to a prize entry with a stock unit reserved.
// Forced slots use the planned entry; random slots run weighted selection over
// the entries that still have stock, so a sold-out prize stops absorbing its
// probability band. A reservation can still lose a race against a concurrent
// batch, in which case the slot falls back to the last active entry.
func (s *DrawSession) drawSlot(ctx context.Context, forcedID string) (PrizeEntry, bool, error) {
	if forcedID != "" {
		entry, ok := s.pool.Entry(forcedID)
		if !ok {
			return PrizeEntry{}, false, ErrPrizeNotFound.WithDetails("prize_id=%s", forcedID)
		}
		if err := s.stock.Reserve(ctx, entry.ID); err != nil {
			return PrizeEntry{}, false, err
		}
		return entry, true, nil
	}

	active, err := s.activeEntries(ctx)
	if err != nil {
		return PrizeEntry{}, false, err
	}

	entry, err := s.selector.PickWith(active, s.rng)
	if err != nil {
		return PrizeEntry{}, false, err
	}

	err = s.stock.Reserve(ctx, entry.ID)
	if err == nil {
		return entry, false, nil
	}
	if !IsErrorCode(err, ErrCodeInsufficientStock) {
		return PrizeEntry{}, false, err
	}

	// Lost a race for the last unit; award the current fallback entry instead
	active, fbErr := s.activeEntries(ctx)
	if fbErr != nil {
		return PrizeEntry{}, false, fbErr
	}
	fallback, fbErr := s.selector.Fallback(active)
	if fbErr != nil {
		return PrizeEntry{}, false, fbErr
	}
	if fallback.ID == entry.ID {
		return PrizeEntry{}, false, err
	}
	if rsvErr := s.stock.Reserve(ctx, fallback.ID); rsvErr != nil {
		return PrizeEntry{}, false, rsvErr
	}

	if s.monitor != nil {
		s.monitor.RecordStockFallback()
	}
	s.logger.Debug("Prize %s exhausted mid-batch, fell back to %s", entry.ID, fallback.ID)
	return fallback, false, nil
}

// activeEntries returns the pool entries that can still be awarded, in
// configured order. An entry is active when its stock is unlimited or the
// ledger still tracks at least one unit for it.
func (s *DrawSession) activeEntries(ctx context.Context) ([]PrizeEntry, error) {
	entries := s.pool.Entries()
	active := make([]PrizeEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Unlimited() {
			active = append(active, entry)
			continue
		}
		remaining, err := s.stock.Remaining(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		if remaining == StockUnlimited || remaining > 0 {
			active = append(active, entry)
		}
	}
	if len(active) == 0 {
		return nil, ErrInsufficientStock.WithDetails("no prizes left in stock")
	}
	return active, nil
}

// validatePlan checks every forced entry exists and has enough stock for the
// slots that name it, so a doomed batch aborts before the account is charged.
func (s *DrawSession) validatePlan(ctx context.Context, plan []string) error {
	needs := make(map[string]int)
	for _, prizeID := range plan {
		if prizeID != "" {
			needs[prizeID]++
		}
	}

	for prizeID, count := range needs {
		entry, ok := s.pool.Entry(prizeID)
		if !ok {
			return ErrPrizeNotFound.WithDetails("prize_id=%s", prizeID)
		}
		if entry.Unlimited() {
			continue
		}

		remaining, err := s.stock.Remaining(ctx, prizeID)
		if err != nil {
			return err
		}
		if remaining != StockUnlimited && remaining < count {
			return ErrInsufficientStock.
				WithDetails("prize_id=%s", prizeID).
				WithDetails("remaining=%d", remaining).
				WithDetails("required=%d", count)
		}
	}
	return nil
}
