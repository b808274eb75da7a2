package luckydraw

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Distributed lock strategy:
// - Acquisition: Redis SET NX, a single network call
// - Release: Lua script, so only the lock owner can release
// Draw requests take one lock per account, which serializes concurrent
// requests for the same account across engine instances.

const (
	// releaseLockScript ensures only the lock owner can release the lock.
	// Without the value check, a client whose lock expired could delete the
	// lock another client now holds.
	releaseLockScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
)

// DistributedLockManager manages Redis distributed locks
type DistributedLockManager struct {
	redisClient   *redis.Client
	lockTimeout   time.Duration
	retryAttempts int
	retryInterval time.Duration
}

// NewLockManager creates a new distributed lock manager
func NewLockManager(redisClient *redis.Client, lockTimeout time.Duration) *DistributedLockManager {
	return &DistributedLockManager{
		redisClient:   redisClient,
		lockTimeout:   lockTimeout,
		retryAttempts: DefaultRetryAttempts,
		retryInterval: DefaultRetryInterval,
	}
}

// NewLockManagerWithRetry creates a new distributed lock manager with custom retry settings
func NewLockManagerWithRetry(
	redisClient *redis.Client,
	lockTimeout time.Duration, retryAttempts int, retryInterval time.Duration,
) *DistributedLockManager {
	return &DistributedLockManager{
		redisClient:   redisClient,
		lockTimeout:   lockTimeout,
		retryAttempts: retryAttempts,
		retryInterval: retryInterval,
	}
}

// AccountLockKey builds the lock key serializing one account's draws
func AccountLockKey(accountID string) string {
	return AccountLockKeyPrefix + accountID
}

// AcquireLock attempts to acquire a distributed lock using SET NX
func (m *DistributedLockManager) AcquireLock(ctx context.Context, lockKey, lockValue string, expireTime time.Duration) (bool, error) {
	if lockKey == "" || lockValue == "" {
		return false, ErrInvalidParameters
	}
	if expireTime <= 0 {
		expireTime = DefaultLockExpiration
	}

	fullLockKey := LockKeyPrefix + lockKey

	// Try to acquire lock with retry mechanism
	for attempt := 0; attempt <= m.retryAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		acquired, err := m.redisClient.SetNX(ctx, fullLockKey, lockValue, expireTime).Result()
		if err != nil {
			if attempt == m.retryAttempts {
				return false, ErrRedisConnectionFailed.WithCause(err)
			}
			time.Sleep(m.retryInterval)
			continue
		}

		if acquired {
			return true, nil
		}

		// Lock is held by someone else, wait before the next attempt
		if attempt < m.retryAttempts {
			time.Sleep(m.retryInterval)
		}
	}

	return false, ErrLockAcquisitionFailed
}

// ReleaseLock releases a lock previously acquired with the same value
func (m *DistributedLockManager) ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error) {
	if lockKey == "" || lockValue == "" {
		return false, ErrInvalidParameters
	}

	fullLockKey := LockKeyPrefix + lockKey

	for attempt := 0; attempt <= m.retryAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		result, err := m.redisClient.Eval(ctx, releaseLockScript, []string{fullLockKey}, lockValue).Result()
		if err != nil {
			if attempt == m.retryAttempts {
				return false, ErrRedisConnectionFailed.WithCause(err)
			}
			time.Sleep(m.retryInterval)
			continue
		}

		if result.(int64) == 1 {
			return true, nil
		}

		// Lock was not found or value didn't match, nothing to retry
		return false, nil
	}

	return false, ErrRedisConnectionFailed
}

// AcquireLockWithTimeout keeps trying to acquire a lock until the timeout expires
func (m *DistributedLockManager) AcquireLockWithTimeout(ctx context.Context, lockKey, lockValue string, expireTime, timeout time.Duration) (bool, error) {
	if lockKey == "" || lockValue == "" {
		return false, ErrInvalidParameters
	}
	if expireTime <= 0 {
		expireTime = DefaultLockExpiration
	}
	if timeout <= 0 {
		timeout = m.lockTimeout
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fullLockKey := LockKeyPrefix + lockKey

	for {
		select {
		case <-timeoutCtx.Done():
			return false, ErrLockTimeout
		default:
		}

		acquired, err := m.redisClient.SetNX(timeoutCtx, fullLockKey, lockValue, expireTime).Result()
		if err != nil {
			if timeoutCtx.Err() != nil {
				return false, ErrLockTimeout
			}
			time.Sleep(m.retryInterval)
			continue
		}

		if acquired {
			return true, nil
		}

		time.Sleep(m.retryInterval)
	}
}

// TryAcquireLock attempts to acquire a lock without retries (single attempt)
func (m *DistributedLockManager) TryAcquireLock(ctx context.Context, lockKey, lockValue string, expireTime time.Duration) (bool, error) {
	if lockKey == "" || lockValue == "" {
		return false, ErrInvalidParameters
	}
	if expireTime <= 0 {
		expireTime = DefaultLockExpiration
	}

	acquired, err := m.redisClient.SetNX(ctx, LockKeyPrefix+lockKey, lockValue, expireTime).Result()
	if err != nil {
		return false, ErrRedisConnectionFailed.WithCause(err)
	}

	return acquired, nil
}

// keyedMutex hands out one mutex per key with reference counting, so
// single-instance deployments get per-account serialization without Redis.
// Entries are removed once the last holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedMutexEntry
}

type keyedMutexEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedMutexEntry)}
}

// Lock blocks until the mutex for key is held
func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedMutexEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the mutex for key and drops it once unused
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if ok {
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
	}
	k.mu.Unlock()

	if ok {
		entry.mu.Unlock()
	}
}
