package luckydraw

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// AccountKeyPrefix is the prefix for persisted account records
	AccountKeyPrefix = "luckydraw:account:"

	// PrizeKeyPrefix is the prefix for persisted prize records
	PrizeKeyPrefix = "luckydraw:prize:"

	// PrizeIndexKey lists prize IDs in insertion order
	PrizeIndexKey = "luckydraw:prizes"

	// BatchListKeyPrefix is the prefix for per-account draw history lists
	BatchListKeyPrefix = "luckydraw:batches:"

	// TransactionListKeyPrefix is the prefix for per-account ledger lists
	TransactionListKeyPrefix = "luckydraw:transactions:"

	// MaxSerializationSize is the maximum allowed size for one record (10MB)
	MaxSerializationSize = 10 * 1024 * 1024
)

// RedisStore is a Redis-backed Store. Records are stored as JSON; histories
// are per-account lists with the newest record first. AppendBatch writes the
// batch and its charge transaction in one MULTI/EXEC transaction.
type RedisStore struct {
	redisClient    *redis.Client
	logger         Logger
	retryAttempts  int
	retryBaseDelay time.Duration
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{
		redisClient:    redisClient,
		logger:         &DefaultLogger{},
		retryAttempts:  DefaultRetryAttempts,
		retryBaseDelay: DefaultRetryInterval,
	}
}

// NewRedisStoreWithRetry creates a Redis-backed store with custom retry settings
func NewRedisStoreWithRetry(redisClient *redis.Client, logger Logger, retryAttempts int, retryDelay time.Duration) *RedisStore {
	return &RedisStore{
		redisClient:    redisClient,
		logger:         logger,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryDelay,
	}
}

// executeWithRetry runs a Redis operation with exponential backoff. Only
// transient connection errors are retried.
func (s *RedisStore) executeWithRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	startTime := time.Now()

	for attempt := 0; attempt <= s.retryAttempts; attempt++ {
		if attempt > 0 {
			backoffMultiplier := 1 << (attempt - 1)
			delay := time.Duration(backoffMultiplier) * s.retryBaseDelay

			maxDelay := 5 * time.Second
			if delay > maxDelay {
				delay = maxDelay
			}

			s.logger.Debug("Retrying %s operation (attempt %d/%d) after %v backoff",
				operation, attempt, s.retryAttempts, delay)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry for %s operation after %v: %w",
					operation, time.Since(startTime), ctx.Err())
			case <-time.After(delay):
			}
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				s.logger.Info("Completed %s operation after %d retries in %v",
					operation, attempt, time.Since(startTime))
			}
			return nil
		}

		lastErr = err
		if !IsRetryableError(err) {
			break
		}
	}

	return fmt.Errorf("%s operation failed after retries in %v: %w",
		operation, time.Since(startTime), lastErr)
}

func marshalRecord(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize record: %w", err)
	}
	if len(data) > MaxSerializationSize {
		return nil, fmt.Errorf("serialized record size (%d bytes) exceeds maximum allowed size (%d bytes)",
			len(data), MaxSerializationSize)
	}
	return data, nil
}

// GetAccount implements Store
func (s *RedisStore) GetAccount(ctx context.Context, accountID string) (Account, error) {
	var data []byte
	err := s.executeWithRetry(ctx, "get_account", func() error {
		var getErr error
		data, getErr = s.redisClient.Get(ctx, AccountKeyPrefix+accountID).Bytes()
		if getErr == redis.Nil {
			data = nil
			return nil
		}
		return getErr
	})
	if err != nil {
		return Account{}, ErrRedisConnectionFailed.WithCause(err).WithAccountID(accountID)
	}
	if len(data) == 0 {
		return Account{}, ErrAccountNotFound.WithAccountID(accountID)
	}

	var account Account
	if err := json.Unmarshal(data, &account); err != nil {
		return Account{}, ErrStoreFailure.WithCause(err).WithAccountID(accountID).WithOperation("get_account")
	}
	return account, nil
}

// PutAccount implements Store
func (s *RedisStore) PutAccount(ctx context.Context, account Account) error {
	if account.ID == "" {
		return NewError(ErrCodeInvalidParameters, "account ID cannot be empty")
	}

	data, err := marshalRecord(account)
	if err != nil {
		return ErrStoreFailure.WithCause(err).WithAccountID(account.ID).WithOperation("put_account")
	}

	err = s.executeWithRetry(ctx, "put_account", func() error {
		return s.redisClient.Set(ctx, AccountKeyPrefix+account.ID, data, 0).Err()
	})
	if err != nil {
		return ErrRedisConnectionFailed.WithCause(err).WithAccountID(account.ID)
	}
	return nil
}

// ListPrizes implements Store. Prizes come back in insertion order.
func (s *RedisStore) ListPrizes(ctx context.Context) ([]PrizeRecord, error) {
	var ids []string
	err := s.executeWithRetry(ctx, "list_prizes", func() error {
		var listErr error
		ids, listErr = s.redisClient.LRange(ctx, PrizeIndexKey, 0, -1).Result()
		return listErr
	})
	if err != nil {
		return nil, ErrRedisConnectionFailed.WithCause(err)
	}

	prizes := make([]PrizeRecord, 0, len(ids))
	for _, id := range ids {
		prize, err := s.GetPrize(ctx, id)
		if err != nil {
			if IsErrorCode(err, ErrCodePrizeNotFound) {
				continue
			}
			return nil, err
		}
		prizes = append(prizes, prize)
	}
	return prizes, nil
}

// GetPrize implements Store
func (s *RedisStore) GetPrize(ctx context.Context, prizeID string) (PrizeRecord, error) {
	var data []byte
	err := s.executeWithRetry(ctx, "get_prize", func() error {
		var getErr error
		data, getErr = s.redisClient.Get(ctx, PrizeKeyPrefix+prizeID).Bytes()
		if getErr == redis.Nil {
			data = nil
			return nil
		}
		return getErr
	})
	if err != nil {
		return PrizeRecord{}, ErrRedisConnectionFailed.WithCause(err).WithDetails("prize_id=%s", prizeID)
	}
	if len(data) == 0 {
		return PrizeRecord{}, ErrPrizeNotFound.WithDetails("prize_id=%s", prizeID)
	}

	var prize PrizeRecord
	if err := json.Unmarshal(data, &prize); err != nil {
		return PrizeRecord{}, ErrStoreFailure.WithCause(err).WithOperation("get_prize")
	}
	return prize, nil
}

// PutPrize implements Store
func (s *RedisStore) PutPrize(ctx context.Context, prize PrizeRecord) error {
	if err := prize.PrizeEntry.Validate(); err != nil {
		return err
	}

	data, err := marshalRecord(prize)
	if err != nil {
		return ErrStoreFailure.WithCause(err).WithOperation("put_prize")
	}

	key := PrizeKeyPrefix + prize.ID
	err = s.executeWithRetry(ctx, "put_prize", func() error {
		existed, existErr := s.redisClient.Exists(ctx, key).Result()
		if existErr != nil {
			return existErr
		}

		pipe := s.redisClient.TxPipeline()
		pipe.Set(ctx, key, data, 0)
		if existed == 0 {
			pipe.RPush(ctx, PrizeIndexKey, prize.ID)
		}
		_, execErr := pipe.Exec(ctx)
		return execErr
	})
	if err != nil {
		return ErrRedisConnectionFailed.WithCause(err).WithDetails("prize_id=%s", prize.ID)
	}
	return nil
}

// AppendBatch implements Store. The batch and its charge transaction go
// through one MULTI/EXEC transaction so they become durable together.
func (s *RedisStore) AppendBatch(ctx context.Context, batch DrawBatch, tx LedgerTransaction) error {
	batchData, err := marshalRecord(batch)
	if err != nil {
		return ErrStoreFailure.WithCause(err).WithOperation("append_batch")
	}
	txData, err := marshalRecord(tx)
	if err != nil {
		return ErrStoreFailure.WithCause(err).WithOperation("append_batch")
	}

	err = s.executeWithRetry(ctx, "append_batch", func() error {
		pipe := s.redisClient.TxPipeline()
		pipe.LPush(ctx, BatchListKeyPrefix+batch.AccountID, batchData)
		pipe.LPush(ctx, TransactionListKeyPrefix+tx.AccountID, txData)
		_, execErr := pipe.Exec(ctx)
		return execErr
	})
	if err != nil {
		return ErrRedisConnectionFailed.WithCause(err).WithAccountID(batch.AccountID)
	}
	return nil
}

// AppendTransaction implements Store
func (s *RedisStore) AppendTransaction(ctx context.Context, tx LedgerTransaction) error {
	data, err := marshalRecord(tx)
	if err != nil {
		return ErrStoreFailure.WithCause(err).WithOperation("append_transaction")
	}

	err = s.executeWithRetry(ctx, "append_transaction", func() error {
		return s.redisClient.LPush(ctx, TransactionListKeyPrefix+tx.AccountID, data).Err()
	})
	if err != nil {
		return ErrRedisConnectionFailed.WithCause(err).WithAccountID(tx.AccountID)
	}
	return nil
}

// ListBatches implements Store
func (s *RedisStore) ListBatches(ctx context.Context, accountID string, limit int) ([]DrawBatch, error) {
	end := int64(-1)
	if limit > 0 {
		end = int64(limit) - 1
	}

	var items []string
	err := s.executeWithRetry(ctx, "list_batches", func() error {
		var listErr error
		items, listErr = s.redisClient.LRange(ctx, BatchListKeyPrefix+accountID, 0, end).Result()
		return listErr
	})
	if err != nil {
		return nil, ErrRedisConnectionFailed.WithCause(err).WithAccountID(accountID)
	}

	batches := make([]DrawBatch, 0, len(items))
	for _, item := range items {
		var batch DrawBatch
		if err := json.Unmarshal([]byte(item), &batch); err != nil {
			return nil, ErrStoreFailure.WithCause(err).WithAccountID(accountID).WithOperation("list_batches")
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// ListTransactions implements Store
func (s *RedisStore) ListTransactions(ctx context.Context, accountID string, limit int) ([]LedgerTransaction, error) {
	end := int64(-1)
	if limit > 0 {
		end = int64(limit) - 1
	}

	var items []string
	err := s.executeWithRetry(ctx, "list_transactions", func() error {
		var listErr error
		items, listErr = s.redisClient.LRange(ctx, TransactionListKeyPrefix+accountID, 0, end).Result()
		return listErr
	})
	if err != nil {
		return nil, ErrRedisConnectionFailed.WithCause(err).WithAccountID(accountID)
	}

	transactions := make([]LedgerTransaction, 0, len(items))
	for _, item := range items {
		var tx LedgerTransaction
		if err := json.Unmarshal([]byte(item), &tx); err != nil {
			return nil, ErrStoreFailure.WithCause(err).WithAccountID(accountID).WithOperation("list_transactions")
		}
		transactions = append(transactions, tx)
	}
	return transactions, nil
}
