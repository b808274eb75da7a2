package luckydraw

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Engine is the thread-safe draw engine. It serializes each account's draw
// requests, runs weighted selection with stock accounting, and settles every
// batch all-or-nothing against the store.
type Engine struct {
	store         Store
	accounts      *AccountLedger
	stock         StockLedger
	redisClient   *redis.Client
	lockManager   *DistributedLockManager
	configManager *ConfigManager
	logger        Logger
	rng           RandFunc
	mu            sync.RWMutex

	performanceMonitor *PerformanceMonitor

	seededPools sync.Map // prize IDs whose stock has been seeded into the ledger
}

// NewEngine creates a draw engine with in-memory stock tracking, suitable
// for a single instance
func NewEngine(store Store) *Engine {
	cm := NewDefaultConfigManager()

	return &Engine{
		store:         store,
		accounts:      NewAccountLedger(store),
		stock:         NewMemoryStockLedger(),
		configManager: cm,
		logger:        &DefaultLogger{},
		rng:           SecureRand(),

		performanceMonitor: NewPerformanceMonitor(),
	}
}

// NewEngineWithRedis creates a draw engine sharing stock counts and account
// locks across instances through Redis
func NewEngineWithRedis(store Store, redisClient *redis.Client) *Engine {
	cm := NewDefaultConfigManager()

	return &Engine{
		store:       store,
		accounts:    NewAccountLedger(store),
		stock:       NewRedisStockLedger(redisClient),
		redisClient: redisClient,
		lockManager: NewLockManagerWithRetry(
			redisClient,
			cm.config.Engine.LockTimeout,
			cm.config.Engine.RetryAttempts,
			cm.config.Engine.RetryInterval,
		),
		configManager: cm,
		logger:        &DefaultLogger{},
		rng:           SecureRand(),

		performanceMonitor: NewPerformanceMonitor(),
	}
}

// NewEngineWithConfig creates a draw engine with custom configuration
func NewEngineWithConfig(store Store, redisClient *redis.Client, cm *ConfigManager) *Engine {
	e := &Engine{
		store:         store,
		accounts:      NewAccountLedger(store),
		stock:         NewMemoryStockLedger(),
		redisClient:   redisClient,
		configManager: cm,
		logger:        &DefaultLogger{},
		rng:           SecureRand(),

		performanceMonitor: NewPerformanceMonitor(),
	}

	if redisClient != nil {
		e.stock = NewRedisStockLedger(redisClient)
		e.lockManager = NewLockManagerWithRetry(
			redisClient,
			cm.config.Engine.LockTimeout,
			cm.config.Engine.RetryAttempts,
			cm.config.Engine.RetryInterval,
		)
	}
	return e
}

// NewEngineWithLogger creates a draw engine with a custom logger
func NewEngineWithLogger(store Store, logger Logger) *Engine {
	e := NewEngine(store)
	e.logger = logger
	e.accounts.SetLogger(logger)
	return e
}

// GetConfig returns the current engine configuration
func (e *Engine) GetConfig() *Config {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.configManager.config
}

// UpdateConfig replaces the engine configuration at runtime
func (e *Engine) UpdateConfig(newConfig *Config) error {
	e.logger.Debug("UpdateConfig called")

	if newConfig == nil {
		e.logger.Error("UpdateConfig failed: nil configuration")
		return ErrInvalidParameters
	}

	if err := newConfig.Validate(); err != nil {
		e.logger.Error("UpdateConfig validation failed: %v", err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.configManager.config = newConfig

	if e.redisClient != nil {
		e.lockManager = NewLockManagerWithRetry(
			e.redisClient,
			newConfig.Engine.LockTimeout,
			newConfig.Engine.RetryAttempts,
			newConfig.Engine.RetryInterval,
		)
	}

	e.logger.Info(
		"Configuration updated: LockTimeout=%v, RetryAttempts=%d, RetryInterval=%v",
		newConfig.Engine.LockTimeout,
		newConfig.Engine.RetryAttempts,
		newConfig.Engine.RetryInterval)
	return nil
}

// SetLogger updates the logger at runtime
func (e *Engine) SetLogger(logger Logger) {
	if logger != nil && logger != e.logger {
		e.logger = logger
		e.accounts.SetLogger(logger)
	}
}

// GetLogger returns the current logger
func (e *Engine) GetLogger() Logger { return e.logger }

// SetRand replaces the random source, mainly for tests
func (e *Engine) SetRand(rng RandFunc) {
	if rng != nil {
		e.rng = rng
	}
}

// UseStockLedger replaces the stock ledger
func (e *Engine) UseStockLedger(stock StockLedger) {
	if stock != nil {
		e.stock = stock
	}
}

// StockLedger returns the engine's stock ledger
func (e *Engine) StockLedger() StockLedger { return e.stock }

// SnapshotPool builds an immutable prize pool from the store's active prizes
// and seeds the stock ledger for any prize it has not tracked yet
func (e *Engine) SnapshotPool(ctx context.Context) (*PrizePool, error) {
	records, err := e.store.ListPrizes(ctx)
	if err != nil {
		return nil, ErrStoreFailure.WithCause(err).WithOperation("snapshot_pool")
	}

	entries := make([]PrizeEntry, 0, len(records))
	for _, record := range records {
		if !record.Active {
			continue
		}
		entries = append(entries, record.PrizeEntry)
	}

	pool, err := NewPrizePool(entries)
	if err != nil {
		return nil, err
	}

	if err := e.seedStock(ctx, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// seedStock installs initial counts for pool entries the ledger has not seen
func (e *Engine) seedStock(ctx context.Context, pool *PrizePool) error {
	for _, entry := range pool.Entries() {
		if _, seeded := e.seededPools.Load(entry.ID); seeded {
			continue
		}
		if err := e.stock.Seed(ctx, entry.ID, entry.Stock); err != nil {
			return err
		}
		e.seededPools.Store(entry.ID, struct{}{})
	}
	return nil
}

// RequestDraw settles one draw request for an account, all-or-nothing.
// Requests for the same account are serialized; when two arrive at once the
// second either waits (in-process lock) or fails with a retryable conflict
// (distributed lock).
func (e *Engine) RequestDraw(
	ctx context.Context, accountID string, pool *PrizePool, kind DrawKind, policy OutcomePolicy,
) (*DrawBatch, error) {
	startTime := time.Now()

	if accountID == "" {
		return nil, ErrInvalidParameters.WithDetails("account ID cannot be empty")
	}
	if pool == nil {
		return nil, ErrInvalidPool.WithDetails("pool cannot be nil")
	}

	batch, err := e.doRequestDraw(ctx, accountID, pool, kind, policy)

	duration := time.Since(startTime)
	e.performanceMonitor.RecordBatch(err == nil, kind.Count, duration)
	if err != nil {
		e.performanceMonitor.RecordRejection(err)
	}

	return batch, err
}

func (e *Engine) doRequestDraw(
	ctx context.Context, accountID string, pool *PrizePool, kind DrawKind, policy OutcomePolicy,
) (*DrawBatch, error) {
	if err := e.seedStock(ctx, pool); err != nil {
		return nil, err
	}

	e.accounts.LockAccount(accountID)
	defer e.accounts.UnlockAccount(accountID)

	// With Redis configured, also serialize against other engine instances
	e.mu.RLock()
	lockManager := e.lockManager
	e.mu.RUnlock()

	if lockManager != nil {
		lockStart := time.Now()
		lockValue := newToken()
		lockKey := AccountLockKey(accountID)

		acquired, err := lockManager.TryAcquireLock(ctx, lockKey, lockValue, DefaultLockExpiration)
		e.performanceMonitor.RecordLockAcquisition(acquired, time.Since(lockStart))
		if err != nil {
			e.performanceMonitor.RecordRedisError()
			e.logger.Error("Draw lock acquisition error for account %s: %v", accountID, err)
			return nil, err
		}
		if !acquired {
			e.logger.Debug("Concurrent draw rejected for account %s", accountID)
			return nil, ErrConcurrencyConflict.WithAccountID(accountID)
		}

		defer func() {
			released, releaseErr := lockManager.ReleaseLock(ctx, lockKey, lockValue)
			if releaseErr != nil {
				e.logger.Error("Failed to release draw lock for account %s: %v", accountID, releaseErr)
			} else if released {
				e.performanceMonitor.RecordLockRelease()
			}
		}()
	}

	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	session := NewDrawSession(pool, e.stock, e.accounts, e.store)
	session.SetRand(e.rng)
	session.SetLogger(e.logger)
	session.SetMonitor(e.performanceMonitor)

	batch, err := session.Run(ctx, account, kind, policy)
	if err != nil {
		e.logger.Debug("Draw batch failed for account %s: %v", accountID, err)
		return nil, err
	}

	e.logger.Info("Draw batch %s settled for account %s: %d draws, cost %d",
		batch.ID, accountID, len(batch.Results), batch.TotalCost)
	return batch, nil
}

// AdminCreditBalance adds funds to an account and records the credit
func (e *Engine) AdminCreditBalance(ctx context.Context, accountID string, amount int64, reason string) error {
	return e.accounts.CreditBalance(ctx, accountID, amount, reason)
}

// AdminCreditChances adds prepaid draw chances to an account and records the credit
func (e *Engine) AdminCreditChances(ctx context.Context, accountID string, chances int, reason string) error {
	return e.accounts.CreditChances(ctx, accountID, chances, reason)
}

// AdminSetProbability updates a prize's winning probability in the store.
// The change takes effect on the next pool snapshot.
func (e *Engine) AdminSetProbability(ctx context.Context, prizeID string, probability float64) error {
	if probability < 0 || probability > 1 {
		return ErrInvalidProbability.WithDetails("probability=%f", probability)
	}

	record, err := e.store.GetPrize(ctx, prizeID)
	if err != nil {
		return err
	}

	record.Probability = probability
	if err := e.store.PutPrize(ctx, record); err != nil {
		return ErrStoreFailure.WithCause(err).WithOperation("set_probability")
	}

	e.logger.Info("Probability for prize %s set to %f", prizeID, probability)
	return nil
}

// AdminSetStock overwrites a prize's remaining stock in both the store and
// the stock ledger
func (e *Engine) AdminSetStock(ctx context.Context, prizeID string, stock int) error {
	if stock < StockUnlimited {
		return ErrInvalidStock.WithDetails("stock=%d", stock)
	}

	record, err := e.store.GetPrize(ctx, prizeID)
	if err != nil {
		return err
	}

	record.Stock = stock
	if err := e.store.PutPrize(ctx, record); err != nil {
		return ErrStoreFailure.WithCause(err).WithOperation("set_stock")
	}

	if err := e.stock.SetStock(ctx, prizeID, stock); err != nil {
		return err
	}
	e.seededPools.Store(prizeID, struct{}{})

	e.logger.Info("Stock for prize %s set to %d", prizeID, stock)
	return nil
}

// DrawHistory returns an account's most recent draw batches
func (e *Engine) DrawHistory(ctx context.Context, accountID string, limit int) ([]DrawBatch, error) {
	return e.store.ListBatches(ctx, accountID, limit)
}

// TransactionHistory returns an account's most recent ledger transactions
func (e *Engine) TransactionHistory(ctx context.Context, accountID string, limit int) ([]LedgerTransaction, error) {
	return e.store.ListTransactions(ctx, accountID, limit)
}

// PerformanceMetrics returns a copy of the engine's metrics
func (e *Engine) PerformanceMetrics() PerformanceMetrics {
	return e.performanceMonitor.GetMetrics()
}

// ResetPerformanceMetrics zeroes the engine's metrics
func (e *Engine) ResetPerformanceMetrics() {
	e.performanceMonitor.ResetMetrics()
}

// EnablePerformanceMonitoring turns metric collection on
func (e *Engine) EnablePerformanceMonitoring() {
	e.performanceMonitor.Enable()
}

// DisablePerformanceMonitoring turns metric collection off
func (e *Engine) DisablePerformanceMonitoring() {
	e.performanceMonitor.Disable()
}
