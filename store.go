package luckydraw

import (
	"context"
	"time"
)

// Currency identifies which balance an account is charged in
type Currency string

const (
	// CurrencyBalance charges the account's monetary balance (minor units)
	CurrencyBalance Currency = "balance"
	// CurrencyChances charges the account's prepaid draw chances
	CurrencyChances Currency = "chances"
)

// TransactionKind classifies ledger transactions
type TransactionKind string

const (
	// TransactionCharge is the debit recorded for a completed draw batch
	TransactionCharge TransactionKind = "charge"
	// TransactionAdminCredit is a manual credit applied by an operator
	TransactionAdminCredit TransactionKind = "admin_credit"
)

// Account is a participant in the draw.
// Balance is in minor currency units; DrawChances is an alternate prepaid
// currency consumed one per draw. TotalDraws counts completed draws over the
// account's lifetime and drives outcome policies that key on draw history.
type Account struct {
	ID          string `json:"id"`
	Balance     int64  `json:"balance"`
	DrawChances int    `json:"draw_chances"`
	TotalDraws  int    `json:"total_draws"`
	Banned      bool   `json:"banned"`
}

// DrawKind describes the shape of a draw request
type DrawKind struct {
	Count    int      `json:"count"`
	Currency Currency `json:"currency"`
}

// Single is a one-draw request charged to the monetary balance
func Single() DrawKind {
	return DrawKind{Count: 1, Currency: CurrencyBalance}
}

// Multi is an n-draw batch charged to the monetary balance
func Multi(n int) DrawKind {
	return DrawKind{Count: n, Currency: CurrencyBalance}
}

// WithChances switches the charge to prepaid draw chances
func (k DrawKind) WithChances() DrawKind {
	k.Currency = CurrencyChances
	return k
}

// Validate checks the draw kind is well formed
func (k DrawKind) Validate() error {
	if err := ValidateDrawCount(k.Count); err != nil {
		return err
	}
	if k.Currency != CurrencyBalance && k.Currency != CurrencyChances {
		return NewError(ErrCodeInvalidParameters, "unknown charge currency").
			WithDetails("currency=%s", string(k.Currency))
	}
	return nil
}

// LedgerTransaction is one append-only accounting record. Delta is negative
// for charges and positive for credits, in the units of Currency.
type LedgerTransaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Delta     int64           `json:"delta"`
	Currency  Currency        `json:"currency"`
	Kind      TransactionKind `json:"kind"`
	Reason    string          `json:"reason"`
	BatchID   string          `json:"batch_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// DrawResult records the outcome of a single draw slot
type DrawResult struct {
	BatchID   string    `json:"batch_id"`
	AccountID string    `json:"account_id"`
	Slot      int       `json:"slot"`
	PrizeID   string    `json:"prize_id"`
	PrizeName string    `json:"prize_name"`
	Cost      int64     `json:"cost"`
	Forced    bool      `json:"forced,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DrawBatch groups the results of one draw request. A single draw is a batch
// of one. Batches settle atomically: either all results and the charge
// transaction are persisted, or none are.
type DrawBatch struct {
	ID        string       `json:"id"`
	AccountID string       `json:"account_id"`
	Kind      DrawKind     `json:"kind"`
	TotalCost int64        `json:"total_cost"`
	Results   []DrawResult `json:"results"`
	CreatedAt time.Time    `json:"created_at"`
}

// PrizeRecord is a prize entry as persisted, with its activation flag.
// Inactive prizes stay in storage but are excluded from selection.
type PrizeRecord struct {
	PrizeEntry
	Active bool `json:"active"`
}

// Store is the persistence port for accounts, prizes, and draw records.
// Implementations must make AppendBatch atomic: a batch's results and its
// charge transaction become durable together or not at all.
type Store interface {
	// GetAccount loads an account by ID, ErrAccountNotFound if absent
	GetAccount(ctx context.Context, accountID string) (Account, error)
	// PutAccount upserts an account
	PutAccount(ctx context.Context, account Account) error

	// ListPrizes returns all prize records, active and inactive
	ListPrizes(ctx context.Context) ([]PrizeRecord, error)
	// GetPrize loads one prize record, ErrPrizeNotFound if absent
	GetPrize(ctx context.Context, prizeID string) (PrizeRecord, error)
	// PutPrize upserts a prize record
	PutPrize(ctx context.Context, prize PrizeRecord) error

	// AppendBatch persists a completed batch and its charge transaction
	// atomically
	AppendBatch(ctx context.Context, batch DrawBatch, tx LedgerTransaction) error
	// AppendTransaction persists a standalone ledger transaction (credits)
	AppendTransaction(ctx context.Context, tx LedgerTransaction) error

	// ListBatches returns an account's draw history, newest first
	ListBatches(ctx context.Context, accountID string, limit int) ([]DrawBatch, error)
	// ListTransactions returns an account's ledger, newest first
	ListTransactions(ctx context.Context, accountID string, limit int) ([]LedgerTransaction, error)
}
