package luckydraw

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineError_Error(t *testing.T) {
	err := NewError(ErrCodeInsufficientFunds, "insufficient balance")
	assert.Equal(t, "[DRAW_2100] insufficient balance", err.Error())

	withDetails := err.WithDetails("balance=%d", 50)
	assert.Equal(t, "[DRAW_2100] insufficient balance: balance=50", withDetails.Error())
}

func TestEngineError_WithDetailsAppends(t *testing.T) {
	err := ErrInsufficientStock.
		WithDetails("prize_id=%s", "grand").
		WithDetails("remaining=%d", 0)

	assert.Equal(t, "prize_id=grand, remaining=0", err.Details)

	// The predefined value stays untouched
	assert.Empty(t, ErrInsufficientStock.Details)
}

func TestEngineError_BuildersCopyOnWrite(t *testing.T) {
	cause := errors.New("boom")

	err := ErrStoreFailure.
		WithCause(cause).
		WithAccountID("u1").
		WithOperation("append_batch")

	assert.Equal(t, cause, err.Unwrap())
	assert.Equal(t, "u1", err.AccountID)
	assert.Equal(t, "append_batch", err.Operation)

	assert.Nil(t, ErrStoreFailure.Cause)
	assert.Empty(t, ErrStoreFailure.AccountID)
}

func TestEngineError_Is(t *testing.T) {
	err := ErrInsufficientFunds.WithAccountID("u1").WithDetails("balance=%d", 0)

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.NotErrorIs(t, err, ErrInsufficientStock)

	// Matching survives wrapping with fmt.Errorf
	wrapped := fmt.Errorf("draw failed: %w", err)
	assert.ErrorIs(t, wrapped, ErrInsufficientFunds)
}

func TestIsErrorCode(t *testing.T) {
	err := ErrInsufficientStock.WithDetails("prize_id=%s", "grand")

	assert.True(t, IsErrorCode(err, ErrCodeInsufficientStock))
	assert.False(t, IsErrorCode(err, ErrCodeInsufficientFunds))

	wrapped := fmt.Errorf("slot 3: %w", err)
	assert.True(t, IsErrorCode(wrapped, ErrCodeInsufficientStock))

	assert.False(t, IsErrorCode(errors.New("plain"), ErrCodeInsufficientStock))
	assert.False(t, IsErrorCode(nil, ErrCodeInsufficientStock))
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "retryable engine error", err: ErrRedisConnectionFailed, want: true},
		{name: "concurrency conflict", err: ErrConcurrencyConflict, want: true},
		{name: "business rejection", err: ErrInsufficientFunds, want: false},
		{name: "banned account", err: ErrAccountBanned, want: false},
		{name: "wrapped retryable", err: fmt.Errorf("op: %w", ErrStoreFailure), want: true},
		{name: "foreign connection refused", err: errors.New("dial tcp 127.0.0.1:6379: connection refused"), want: true},
		{name: "foreign timeout", err: errors.New("i/o timeout"), want: true},
		{name: "foreign permanent", err: errors.New("invalid payload"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestErrorSeverityAndRetryability(t *testing.T) {
	retryable := NewRetryableError(ErrCodeRedisConnection, "transient")
	assert.True(t, retryable.Retryable)
	assert.Equal(t, SeverityMedium, retryable.Severity)

	critical := NewCriticalError(ErrCodeSystem, "broken")
	assert.False(t, critical.Retryable)
	assert.Equal(t, SeverityCritical, critical.Severity)
	require.NotEmpty(t, critical.StackTrace, "critical errors capture a stack trace")
}
