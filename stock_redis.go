package luckydraw

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// Lua scripts keep the check-and-decrement atomic on the Redis side so
// concurrent engine instances can never take more units than exist.
const (
	// reserveStockScript decrements only when stock is positive.
	// Returns the remaining count, -1 for unlimited, or -2 when exhausted.
	reserveStockScript = `
		local stock = tonumber(redis.call("GET", KEYS[1]))
		if stock == nil then
			return -3
		end
		if stock == -1 then
			return -1
		end
		if stock <= 0 then
			return -2
		end
		return redis.call("DECR", KEYS[1])
	`

	// rollbackStockScript returns a unit unless the entry is unlimited
	rollbackStockScript = `
		local stock = tonumber(redis.call("GET", KEYS[1]))
		if stock == nil then
			return -3
		end
		if stock == -1 then
			return -1
		end
		return redis.call("INCR", KEYS[1])
	`
)

// RedisStockLedger tracks prize stock in Redis so multiple engine instances
// can share one pool. Counts live under StockKeyPrefix + prizeID.
type RedisStockLedger struct {
	client *redis.Client
	logger Logger
}

// NewRedisStockLedger creates a Redis-backed stock ledger
func NewRedisStockLedger(client *redis.Client) *RedisStockLedger {
	return &RedisStockLedger{
		client: client,
		logger: &DefaultLogger{},
	}
}

// SetLogger replaces the ledger's logger
func (l *RedisStockLedger) SetLogger(logger Logger) {
	if logger != nil {
		l.logger = logger
	}
}

func (l *RedisStockLedger) key(prizeID string) string {
	return StockKeyPrefix + prizeID
}

// Seed implements StockLedger. SETNX makes the first seed win, so restarting
// an engine never resets a depleted count.
func (l *RedisStockLedger) Seed(ctx context.Context, prizeID string, stock int) error {
	err := l.client.SetNX(ctx, l.key(prizeID), stock, 0).Err()
	if err != nil {
		return ErrRedisConnectionFailed.WithCause(err).WithDetails("prize_id=%s", prizeID)
	}
	return nil
}

// Remaining implements StockLedger
func (l *RedisStockLedger) Remaining(ctx context.Context, prizeID string) (int, error) {
	val, err := l.client.Get(ctx, l.key(prizeID)).Result()
	if err == redis.Nil {
		return 0, ErrPrizeNotFound.WithDetails("prize_id=%s", prizeID)
	}
	if err != nil {
		return 0, ErrRedisConnectionFailed.WithCause(err).WithDetails("prize_id=%s", prizeID)
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, NewError(ErrCodeStoreFailure, "corrupt stock count").
			WithCause(err).
			WithDetails("prize_id=%s", prizeID).
			WithDetails("value=%s", val)
	}
	return count, nil
}

// Reserve implements StockLedger
func (l *RedisStockLedger) Reserve(ctx context.Context, prizeID string) error {
	result, err := l.client.Eval(ctx, reserveStockScript, []string{l.key(prizeID)}).Result()
	if err != nil {
		return ErrRedisConnectionFailed.WithCause(err).WithDetails("prize_id=%s", prizeID)
	}

	switch n, _ := result.(int64); n {
	case -2:
		return ErrInsufficientStock.WithDetails("prize_id=%s", prizeID)
	case -3:
		return ErrPrizeNotFound.WithDetails("prize_id=%s", prizeID)
	default:
		return nil
	}
}

// Commit implements StockLedger
func (l *RedisStockLedger) Commit(ctx context.Context, prizeID string) error {
	return nil
}

// Rollback implements StockLedger
func (l *RedisStockLedger) Rollback(ctx context.Context, prizeID string) error {
	result, err := l.client.Eval(ctx, rollbackStockScript, []string{l.key(prizeID)}).Result()
	if err != nil {
		return ErrRedisConnectionFailed.WithCause(err).WithDetails("prize_id=%s", prizeID)
	}

	if n, _ := result.(int64); n == -3 {
		return ErrPrizeNotFound.WithDetails("prize_id=%s", prizeID)
	}
	return nil
}

// SetStock implements StockLedger
func (l *RedisStockLedger) SetStock(ctx context.Context, prizeID string, stock int) error {
	if stock < StockUnlimited {
		return ErrInvalidStock.WithDetails("stock=%d", stock)
	}

	err := l.client.Set(ctx, l.key(prizeID), stock, 0).Err()
	if err != nil {
		return ErrRedisConnectionFailed.WithCause(err).WithDetails("prize_id=%s", prizeID)
	}
	return nil
}
