package luckydraw

import "context"

// Drawer defines the operations exposed by the draw engine
type Drawer interface {
	// RequestDraw settles a single draw or a fixed-size multi-draw batch
	// against the given pool snapshot, all-or-nothing
	RequestDraw(ctx context.Context, accountID string, pool *PrizePool, kind DrawKind, policy OutcomePolicy) (*DrawBatch, error)

	// SnapshotPool builds an immutable prize pool from the active prizes in the store
	SnapshotPool(ctx context.Context) (*PrizePool, error)

	// AdminCreditBalance adds balance to an account and records the credit
	AdminCreditBalance(ctx context.Context, accountID string, amount int64, reason string) error

	// AdminCreditChances adds draw chances to an account and records the credit
	AdminCreditChances(ctx context.Context, accountID string, chances int, reason string) error

	// AdminSetProbability updates a prize's winning probability
	AdminSetProbability(ctx context.Context, prizeID string, probability float64) error

	// AdminSetStock overwrites a prize's remaining stock
	AdminSetStock(ctx context.Context, prizeID string, stock int) error
}

// Logger defines the interface for logging operations
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}
