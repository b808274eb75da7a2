package luckydraw

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode identifies a stable, user-visible error class
type ErrorCode string

const (
	// System-level errors (1000-1999)
	ErrCodeSystem           ErrorCode = "DRAW_1000"
	ErrCodeRedisConnection  ErrorCode = "DRAW_1001"
	ErrCodeConfigInvalid    ErrorCode = "DRAW_1002"
	ErrCodeStoreFailure     ErrorCode = "DRAW_1003"
	ErrCodeDrawInterrupted  ErrorCode = "DRAW_1004"
	ErrCodeCircuitOpen      ErrorCode = "DRAW_1005"

	// Prize pool configuration errors (2000-2099), rejected at load time
	ErrCodeInvalidPool        ErrorCode = "DRAW_2000"
	ErrCodeEmptyPool          ErrorCode = "DRAW_2001"
	ErrCodeInvalidProbability ErrorCode = "DRAW_2002"
	ErrCodeInvalidStock       ErrorCode = "DRAW_2003"
	ErrCodeInvalidEntryID     ErrorCode = "DRAW_2004"
	ErrCodeInvalidEntryName   ErrorCode = "DRAW_2005"
	ErrCodeNegativeCost       ErrorCode = "DRAW_2006"

	// Draw-time business errors (2100-2199)
	ErrCodeInsufficientFunds ErrorCode = "DRAW_2100"
	ErrCodeInsufficientStock ErrorCode = "DRAW_2101"
	ErrCodeAccountBanned     ErrorCode = "DRAW_2102"
	ErrCodeAccountNotFound   ErrorCode = "DRAW_2103"
	ErrCodePrizeNotFound     ErrorCode = "DRAW_2104"
	ErrCodeInvalidDrawCount  ErrorCode = "DRAW_2105"
	ErrCodeInvalidParameters ErrorCode = "DRAW_2106"

	// Configuration validation errors (2200-2299)
	ErrCodeInvalidLockTimeout   ErrorCode = "DRAW_2200"
	ErrCodeInvalidRetryAttempts ErrorCode = "DRAW_2201"
	ErrCodeInvalidRetryInterval ErrorCode = "DRAW_2202"

	// Lock and concurrency errors (3000-3999)
	ErrCodeConcurrencyConflict   ErrorCode = "DRAW_3000"
	ErrCodeLockAcquisitionFailed ErrorCode = "DRAW_3001"
	ErrCodeLockTimeout           ErrorCode = "DRAW_3002"
	ErrCodeLockReleaseFailure    ErrorCode = "DRAW_3003"
)

// ErrorSeverity describes how severe an error is
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "critical"
	SeverityHigh     ErrorSeverity = "high"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityLow      ErrorSeverity = "low"
)

// EngineError is the structured error type returned by the draw engine
type EngineError struct {
	Code       ErrorCode     `json:"code"`
	Message    string        `json:"message"`
	Details    string        `json:"details,omitempty"`
	Severity   ErrorSeverity `json:"severity"`
	Timestamp  time.Time     `json:"timestamp"`
	AccountID  string        `json:"account_id,omitempty"`
	Operation  string        `json:"operation,omitempty"`
	StackTrace string        `json:"stack_trace,omitempty"`
	Cause      error         `json:"-"`
	Retryable  bool          `json:"retryable"`
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is matches two engine errors by code
func (e *EngineError) Is(target error) bool {
	if t, ok := target.(*EngineError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithCause attaches the underlying cause.
// It returns a copy so the predefined error values stay immutable.
func (e *EngineError) WithCause(cause error) *EngineError {
	c := *e
	c.Cause = cause
	return &c
}

// WithDetails attaches human-readable detail text, appending to any
// existing details
func (e *EngineError) WithDetails(format string, args ...any) *EngineError {
	c := *e
	detail := fmt.Sprintf(format, args...)
	if c.Details != "" {
		c.Details += ", " + detail
	} else {
		c.Details = detail
	}
	return &c
}

// WithAccountID tags the error with the account it concerns
func (e *EngineError) WithAccountID(accountID string) *EngineError {
	c := *e
	c.AccountID = accountID
	return &c
}

// WithOperation tags the error with the operation that produced it
func (e *EngineError) WithOperation(operation string) *EngineError {
	c := *e
	c.Operation = operation
	return &c
}

// WithStackTrace captures the current stack trace
func (e *EngineError) WithStackTrace() *EngineError {
	c := *e
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	c.StackTrace = string(buf[:n])
	return &c
}

// NewError creates a new non-retryable engine error
func NewError(code ErrorCode, message string) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Severity:  SeverityMedium,
		Timestamp: time.Now(),
		Retryable: false,
	}
}

// NewRetryableError creates a new retryable engine error
func NewRetryableError(code ErrorCode, message string) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Severity:  SeverityMedium,
		Timestamp: time.Now(),
		Retryable: true,
	}
}

// NewCriticalError creates a new critical engine error with a stack trace
func NewCriticalError(code ErrorCode, message string) *EngineError {
	err := &EngineError{
		Code:      code,
		Message:   message,
		Severity:  SeverityCritical,
		Timestamp: time.Now(),
		Retryable: false,
	}
	return err.WithStackTrace()
}

// Predefined error values
var (
	// System-level errors
	ErrSystemError           = NewCriticalError(ErrCodeSystem, "system error occurred")
	ErrRedisConnectionFailed = NewRetryableError(ErrCodeRedisConnection, "Redis connection failed")
	ErrConfigInvalid         = NewCriticalError(ErrCodeConfigInvalid, "configuration is invalid")
	ErrStoreFailure          = NewRetryableError(ErrCodeStoreFailure, "persistence operation failed")
	ErrDrawInterrupted       = NewError(ErrCodeDrawInterrupted, "draw request interrupted, all changes rolled back")
	ErrCircuitBreakerOpen    = NewRetryableError(ErrCodeCircuitOpen, "circuit breaker is open")

	// Prize pool configuration errors
	ErrInvalidPool        = NewError(ErrCodeInvalidPool, "invalid prize pool configuration")
	ErrEmptyPool          = NewError(ErrCodeEmptyPool, "prize pool cannot be empty")
	ErrInvalidProbability = NewError(ErrCodeInvalidProbability, "invalid probability: must be within [0, 1]")
	ErrInvalidStock       = NewError(ErrCodeInvalidStock, "invalid stock: must be unlimited or a non-negative integer")
	ErrInvalidEntryID     = NewError(ErrCodeInvalidEntryID, "invalid prize ID: cannot be empty")
	ErrInvalidEntryName   = NewError(ErrCodeInvalidEntryName, "invalid prize name: cannot be empty")
	ErrNegativeCost       = NewError(ErrCodeNegativeCost, "invalid prize cost: cannot be negative")

	// Draw-time business errors
	ErrInsufficientFunds = NewError(ErrCodeInsufficientFunds, "insufficient balance or draw chances")
	ErrInsufficientStock = NewError(ErrCodeInsufficientStock, "insufficient prize stock")
	ErrAccountBanned     = NewError(ErrCodeAccountBanned, "account is banned from drawing")
	ErrAccountNotFound   = NewError(ErrCodeAccountNotFound, "account not found")
	ErrPrizeNotFound     = NewError(ErrCodePrizeNotFound, "prize not found")
	ErrInvalidDrawCount  = NewError(ErrCodeInvalidDrawCount, "invalid draw count: must be between 1 and the batch limit")
	ErrInvalidParameters = NewError(ErrCodeInvalidParameters, "invalid parameters provided")

	// Configuration validation errors
	ErrInvalidLockTimeout   = NewError(ErrCodeInvalidLockTimeout, "invalid lock timeout: must be between 1s and 5m")
	ErrInvalidRetryAttempts = NewError(ErrCodeInvalidRetryAttempts, "invalid retry attempts: must be between 0 and 10")
	ErrInvalidRetryInterval = NewError(ErrCodeInvalidRetryInterval, "invalid retry interval: cannot be negative")

	// Lock and concurrency errors
	ErrConcurrencyConflict   = NewRetryableError(ErrCodeConcurrencyConflict, "concurrent draw conflict, safe to retry")
	ErrLockAcquisitionFailed = NewRetryableError(ErrCodeLockAcquisitionFailed, "failed to acquire distributed lock")
	ErrLockTimeout           = NewRetryableError(ErrCodeLockTimeout, "lock acquisition timeout")
	ErrLockReleaseFailure    = NewError(ErrCodeLockReleaseFailure, "failed to release lock")
)

// IsErrorCode reports whether an error carries the given engine error code
func IsErrorCode(err error, code ErrorCode) bool {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Code == code
	}
	return false
}

// IsRetryableError reports whether an error is safe to retry.
// Engine errors carry an explicit retryable flag; for foreign errors the
// message is matched against common transient failure patterns.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Retryable
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"network is unreachable",
		"temporary failure",
		"broken pipe",
		"i/o timeout",
		"dial tcp",
		"redis: connection pool timeout",
		"redis: client is closed",
		"context deadline exceeded",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
