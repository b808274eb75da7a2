package luckydraw

import (
	"context"
	"sync"
)

// MemoryStore is the in-process reference implementation of Store. It keeps
// everything behind one mutex, which makes AppendBatch trivially atomic.
type MemoryStore struct {
	mu           sync.RWMutex
	accounts     map[string]Account
	prizes       map[string]PrizeRecord
	prizeOrder   []string
	batches      []DrawBatch
	transactions []LedgerTransaction
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Account),
		prizes:   make(map[string]PrizeRecord),
	}
}

// GetAccount implements Store
func (s *MemoryStore) GetAccount(_ context.Context, accountID string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return Account{}, ErrAccountNotFound.WithAccountID(accountID)
	}
	return account, nil
}

// PutAccount implements Store
func (s *MemoryStore) PutAccount(_ context.Context, account Account) error {
	if account.ID == "" {
		return NewError(ErrCodeInvalidParameters, "account ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account
	return nil
}

// ListPrizes implements Store. Prizes come back in insertion order so pool
// snapshots stay stable across calls.
func (s *MemoryStore) ListPrizes(_ context.Context) ([]PrizeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prizes := make([]PrizeRecord, 0, len(s.prizeOrder))
	for _, id := range s.prizeOrder {
		prizes = append(prizes, s.prizes[id])
	}
	return prizes, nil
}

// GetPrize implements Store
func (s *MemoryStore) GetPrize(_ context.Context, prizeID string) (PrizeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prize, ok := s.prizes[prizeID]
	if !ok {
		return PrizeRecord{}, ErrPrizeNotFound.WithDetails("prize_id=%s", prizeID)
	}
	return prize, nil
}

// PutPrize implements Store
func (s *MemoryStore) PutPrize(_ context.Context, prize PrizeRecord) error {
	if err := prize.PrizeEntry.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.prizes[prize.ID]; !ok {
		s.prizeOrder = append(s.prizeOrder, prize.ID)
	}
	s.prizes[prize.ID] = prize
	return nil
}

// AppendBatch implements Store
func (s *MemoryStore) AppendBatch(_ context.Context, batch DrawBatch, tx LedgerTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches = append(s.batches, batch)
	s.transactions = append(s.transactions, tx)
	return nil
}

// AppendTransaction implements Store
func (s *MemoryStore) AppendTransaction(_ context.Context, tx LedgerTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = append(s.transactions, tx)
	return nil
}

// ListBatches implements Store
func (s *MemoryStore) ListBatches(_ context.Context, accountID string, limit int) ([]DrawBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []DrawBatch
	for i := len(s.batches) - 1; i >= 0; i-- {
		if s.batches[i].AccountID != accountID {
			continue
		}
		out = append(out, s.batches[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ListTransactions implements Store
func (s *MemoryStore) ListTransactions(_ context.Context, accountID string, limit int) ([]LedgerTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []LedgerTransaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].AccountID != accountID {
			continue
		}
		out = append(out, s.transactions[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
