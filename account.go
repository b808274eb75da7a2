package luckydraw

import (
	"context"
	"time"
)

// AccountLedger owns account balances and the append-only transaction log.
// Draw charges go through Charge under an account lock held by the caller;
// admin credits take the lock themselves. Every durable balance mutation is
// paired with exactly one LedgerTransaction.
type AccountLedger struct {
	store  Store
	locks  *keyedMutex
	logger Logger
}

// NewAccountLedger creates an account ledger over the given store
func NewAccountLedger(store Store) *AccountLedger {
	return &AccountLedger{
		store:  store,
		locks:  newKeyedMutex(),
		logger: &DefaultLogger{},
	}
}

// SetLogger replaces the ledger's logger
func (l *AccountLedger) SetLogger(logger Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// LockAccount serializes draw processing for one account in-process
func (l *AccountLedger) LockAccount(accountID string) {
	l.locks.Lock(AccountLockKey(accountID))
}

// UnlockAccount releases the in-process account lock
func (l *AccountLedger) UnlockAccount(accountID string) {
	l.locks.Unlock(AccountLockKey(accountID))
}

// Charge debits an account for a draw batch and bumps its lifetime draw
// count. The caller must hold the account lock. The returned transaction is
// pending: it is persisted later by Store.AppendBatch together with the
// batch results, so a rolled-back batch leaves no transaction behind.
func (l *AccountLedger) Charge(ctx context.Context, account Account, kind DrawKind, total int64, batchID string) (Account, LedgerTransaction, error) {
	switch kind.Currency {
	case CurrencyBalance:
		if account.Balance < total {
			return account, LedgerTransaction{}, ErrInsufficientFunds.
				WithAccountID(account.ID).
				WithDetails("balance=%d", account.Balance).
				WithDetails("required=%d", total)
		}
		account.Balance -= total
	case CurrencyChances:
		if account.DrawChances < kind.Count {
			return account, LedgerTransaction{}, ErrInsufficientFunds.
				WithAccountID(account.ID).
				WithDetails("draw_chances=%d", account.DrawChances).
				WithDetails("required=%d", kind.Count)
		}
		account.DrawChances -= kind.Count
		total = int64(kind.Count)
	default:
		return account, LedgerTransaction{}, ErrInvalidParameters.
			WithDetails("currency=%s", string(kind.Currency))
	}

	account.TotalDraws += kind.Count

	if err := l.store.PutAccount(ctx, account); err != nil {
		return account, LedgerTransaction{}, ErrStoreFailure.
			WithCause(err).
			WithAccountID(account.ID).
			WithOperation("charge")
	}

	tx := LedgerTransaction{
		ID:        newTransactionID(),
		AccountID: account.ID,
		Delta:     -total,
		Currency:  kind.Currency,
		Kind:      TransactionCharge,
		Reason:    "draw charge",
		BatchID:   batchID,
		CreatedAt: time.Now(),
	}
	return account, tx, nil
}

// Restore writes back a pre-charge account snapshot after a failed batch.
// The caller must still hold the account lock.
func (l *AccountLedger) Restore(ctx context.Context, snapshot Account) error {
	if err := l.store.PutAccount(ctx, snapshot); err != nil {
		return ErrStoreFailure.
			WithCause(err).
			WithAccountID(snapshot.ID).
			WithOperation("restore")
	}
	return nil
}

// CreditBalance adds funds to an account and records the credit
func (l *AccountLedger) CreditBalance(ctx context.Context, accountID string, amount int64, reason string) error {
	if amount <= 0 {
		return ErrInvalidParameters.WithDetails("amount=%d", amount)
	}

	l.LockAccount(accountID)
	defer l.UnlockAccount(accountID)

	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	account.Balance += amount
	if err := l.store.PutAccount(ctx, account); err != nil {
		return ErrStoreFailure.WithCause(err).WithAccountID(accountID).WithOperation("credit_balance")
	}

	tx := LedgerTransaction{
		ID:        newTransactionID(),
		AccountID: accountID,
		Delta:     amount,
		Currency:  CurrencyBalance,
		Kind:      TransactionAdminCredit,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if err := l.store.AppendTransaction(ctx, tx); err != nil {
		return ErrStoreFailure.WithCause(err).WithAccountID(accountID).WithOperation("credit_balance")
	}

	l.logger.Info("Credited account %s with %d (%s)", accountID, amount, reason)
	return nil
}

// CreditChances adds prepaid draw chances to an account and records the credit
func (l *AccountLedger) CreditChances(ctx context.Context, accountID string, chances int, reason string) error {
	if chances <= 0 {
		return ErrInvalidParameters.WithDetails("chances=%d", chances)
	}

	l.LockAccount(accountID)
	defer l.UnlockAccount(accountID)

	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	account.DrawChances += chances
	if err := l.store.PutAccount(ctx, account); err != nil {
		return ErrStoreFailure.WithCause(err).WithAccountID(accountID).WithOperation("credit_chances")
	}

	tx := LedgerTransaction{
		ID:        newTransactionID(),
		AccountID: accountID,
		Delta:     int64(chances),
		Currency:  CurrencyChances,
		Kind:      TransactionAdminCredit,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if err := l.store.AppendTransaction(ctx, tx); err != nil {
		return ErrStoreFailure.WithCause(err).WithAccountID(accountID).WithOperation("credit_chances")
	}

	l.logger.Info("Credited account %s with %d draw chances (%s)", accountID, chances, reason)
	return nil
}
