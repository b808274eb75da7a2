package luckydraw

import "time"

const (
	// StockUnlimited marks a prize that is never depleted by awards
	StockUnlimited = -1

	// ProbabilityTolerance is the tolerance for total probability validation
	ProbabilityTolerance = 0.0001

	// DefaultMultiDrawSize is the default number of slots in a multi-draw batch
	DefaultMultiDrawSize = 5

	// MaxDrawBatchSize is the maximum number of draws accepted in one batch
	MaxDrawBatchSize = 100
)

const (
	// DefaultLockTimeout is the default timeout for acquiring distributed locks
	DefaultLockTimeout = 30 * time.Second

	// DefaultRetryAttempts is the default number of retry attempts
	DefaultRetryAttempts = 3

	// DefaultRetryInterval is the default interval between retry attempts
	DefaultRetryInterval = 100 * time.Millisecond

	// DefaultLockExpiration is the default expiration time for locks
	DefaultLockExpiration = 30 * time.Second

	// LockKeyPrefix is the prefix for Redis lock keys
	LockKeyPrefix = "luckydraw:lock:"

	// StockKeyPrefix is the prefix for Redis stock counter keys
	StockKeyPrefix = "luckydraw:stock:"

	// AccountLockKeyPrefix is the prefix for per-account draw serialization keys
	AccountLockKeyPrefix = "account:"

	// MaxRetryAttempts is the maximum number of retry attempts allowed
	MaxRetryAttempts = 10

	// MinLockTimeout is the minimum lock timeout allowed
	MinLockTimeout = 1 * time.Second

	// MaxLockTimeout is the maximum lock timeout allowed
	MaxLockTimeout = 5 * time.Minute
)

const (
	// DefaultCircuitBreakerName is the default name for Circuit Breaker
	DefaultCircuitBreakerName = "luckydraw-engine"

	// DefaultCircuitBreakerMaxRequests is the default max requests
	DefaultCircuitBreakerMaxRequests = 3

	// DefaultCircuitBreakerInterval is the default interval
	DefaultCircuitBreakerInterval = 60 * time.Second

	// DefaultCircuitBreakerTimeout is the default timeout
	DefaultCircuitBreakerTimeout = 30 * time.Second

	// DefaultCircuitBreakerFailureRatio is the default failure ratio
	DefaultCircuitBreakerFailureRatio = 0.6

	// DefaultCircuitBreakerMinRequests is the default min requests
	DefaultCircuitBreakerMinRequests = 3

	// DefaultCircuitBreakerOnStateChange is the default on state change
	DefaultCircuitBreakerOnStateChange = true
)

const (
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPassword     = ""
	DefaultRedisDB           = 0
	DefaultRedisPoolSize     = 50
	DefaultRedisMinIdleConns = 10
	DefaultRedisMaxRetries   = 3
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisReadTimeout  = 3 * time.Second
	DefaultRedisWriteTimeout = 3 * time.Second
	DefaultRedisPoolTimeout  = 4 * time.Second
)
