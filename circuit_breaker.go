package luckydraw

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerEngine wraps a Drawer with a circuit breaker. Only
// infrastructure failures count toward tripping the breaker: business
// rejections such as insufficient funds or a banned account pass through
// without affecting its state.
type CircuitBreakerEngine struct {
	engine Drawer

	breaker *gobreaker.CircuitBreaker
	logger  Logger
	config  *CircuitBreakerConfig
}

// NewCircuitBreakerEngine wraps the given engine. With the breaker disabled
// in config, calls pass straight through.
func NewCircuitBreakerEngine(engine Drawer, config *CircuitBreakerConfig, logger Logger) *CircuitBreakerEngine {
	if !config.Enabled {
		return &CircuitBreakerEngine{
			engine: engine,
			logger: logger,
			config: config,
		}
	}

	return &CircuitBreakerEngine{
		engine:  engine,
		breaker: gobreaker.NewCircuitBreaker(breakerSettings(config, logger)),
		logger:  logger,
		config:  config,
	}
}

func breakerSettings(config *CircuitBreakerConfig, logger Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= config.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if config.OnStateChange && logger != nil {
				logger.Info("Circuit breaker '%s' state changed from %s to %s", name, from, to)
			}
		},
	}
}

// isBreakerFailure decides whether an error should trip the breaker.
// Retryable engine errors point at infrastructure (Redis, store), as do
// foreign errors. Non-retryable engine errors are business rejections.
func isBreakerFailure(err error) bool {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Retryable
	}
	return true
}

type breakerResult struct {
	value       any
	businessErr error
}

// executeWithBreaker runs an operation through the circuit breaker.
// Business errors are smuggled past the breaker inside the result so they
// never count as failures.
func (c *CircuitBreakerEngine) executeWithBreaker(operation func() (any, error)) (any, error) {
	if c.breaker == nil {
		return operation()
	}

	result, err := c.breaker.Execute(func() (any, error) {
		value, opErr := operation()
		if opErr != nil && !isBreakerFailure(opErr) {
			return breakerResult{businessErr: opErr}, nil
		}
		return breakerResult{value: value}, opErr
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, ErrCircuitBreakerOpen.WithDetails("circuit breaker is open, requests are being rejected")
		}
		if err == gobreaker.ErrTooManyRequests {
			return nil, ErrCircuitBreakerOpen.WithDetails("too many requests, circuit breaker is half-open")
		}
		return nil, err
	}

	br := result.(breakerResult)
	if br.businessErr != nil {
		return nil, br.businessErr
	}
	return br.value, nil
}

// RequestDraw settles a draw request through the circuit breaker
func (c *CircuitBreakerEngine) RequestDraw(
	ctx context.Context, accountID string, pool *PrizePool, kind DrawKind, policy OutcomePolicy,
) (*DrawBatch, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.engine.RequestDraw(ctx, accountID, pool, kind, policy)
	})
	if err != nil {
		return nil, err
	}

	return result.(*DrawBatch), nil
}

// SnapshotPool builds a prize pool through the circuit breaker
func (c *CircuitBreakerEngine) SnapshotPool(ctx context.Context) (*PrizePool, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.engine.SnapshotPool(ctx)
	})
	if err != nil {
		return nil, err
	}

	return result.(*PrizePool), nil
}

// AdminCreditBalance credits an account through the circuit breaker
func (c *CircuitBreakerEngine) AdminCreditBalance(ctx context.Context, accountID string, amount int64, reason string) error {
	_, err := c.executeWithBreaker(func() (any, error) {
		return nil, c.engine.AdminCreditBalance(ctx, accountID, amount, reason)
	})

	return err
}

// AdminCreditChances credits draw chances through the circuit breaker
func (c *CircuitBreakerEngine) AdminCreditChances(ctx context.Context, accountID string, chances int, reason string) error {
	_, err := c.executeWithBreaker(func() (any, error) {
		return nil, c.engine.AdminCreditChances(ctx, accountID, chances, reason)
	})

	return err
}

// AdminSetProbability updates a prize probability through the circuit breaker
func (c *CircuitBreakerEngine) AdminSetProbability(ctx context.Context, prizeID string, probability float64) error {
	_, err := c.executeWithBreaker(func() (any, error) {
		return nil, c.engine.AdminSetProbability(ctx, prizeID, probability)
	})

	return err
}

// AdminSetStock updates a prize stock through the circuit breaker
func (c *CircuitBreakerEngine) AdminSetStock(ctx context.Context, prizeID string, stock int) error {
	_, err := c.executeWithBreaker(func() (any, error) {
		return nil, c.engine.AdminSetStock(ctx, prizeID, stock)
	})

	return err
}

// GetCircuitBreakerState returns the breaker state as a string
func (c *CircuitBreakerEngine) GetCircuitBreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}

	switch c.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// GetCircuitBreakerCounts returns the breaker statistics
func (c *CircuitBreakerEngine) GetCircuitBreakerCounts() gobreaker.Counts {
	if c.breaker == nil {
		return gobreaker.Counts{}
	}

	return c.breaker.Counts()
}

// ResetCircuitBreaker recreates the breaker, clearing its state.
// gobreaker has no Reset method.
func (c *CircuitBreakerEngine) ResetCircuitBreaker() {
	if c.breaker != nil {
		c.breaker = gobreaker.NewCircuitBreaker(breakerSettings(c.config, c.logger))
		if c.logger != nil {
			c.logger.Info("Circuit breaker '%s' has been reset (recreated)", c.config.Name)
		}
	}
}

// CircuitBreakerHealthCheck reports breaker health
type CircuitBreakerHealthCheck struct {
	engine *CircuitBreakerEngine
}

// NewCircuitBreakerHealthCheck creates a health check for the given engine
func NewCircuitBreakerHealthCheck(engine *CircuitBreakerEngine) *CircuitBreakerHealthCheck {
	return &CircuitBreakerHealthCheck{
		engine: engine,
	}
}

// Check returns the current breaker health snapshot
func (h *CircuitBreakerHealthCheck) Check() map[string]any {
	result := map[string]any{
		"circuit_breaker_enabled": h.engine.config.Enabled,
	}

	if h.engine.config.Enabled && h.engine.breaker != nil {
		state := h.engine.GetCircuitBreakerState()
		counts := h.engine.GetCircuitBreakerCounts()

		result["state"] = state
		result["requests"] = counts.Requests
		result["total_successes"] = counts.TotalSuccesses
		result["total_failures"] = counts.TotalFailures
		result["consecutive_successes"] = counts.ConsecutiveSuccesses
		result["consecutive_failures"] = counts.ConsecutiveFailures

		if counts.Requests > 0 {
			result["success_rate"] = float64(counts.TotalSuccesses) / float64(counts.Requests)
			result["failure_rate"] = float64(counts.TotalFailures) / float64(counts.Requests)
		} else {
			result["success_rate"] = 0.0
			result["failure_rate"] = 0.0
		}

		healthy := true
		switch state {
		case "open":
			healthy = false
		case "half-open":
			if counts.ConsecutiveFailures > 2 {
				healthy = false
			}
		}

		result["healthy"] = healthy
	} else {
		result["state"] = "disabled"
		result["healthy"] = true
	}

	return result
}

// CircuitBreakerMetrics exports breaker statistics as a flat metric map
type CircuitBreakerMetrics struct {
	engine *CircuitBreakerEngine
}

// NewCircuitBreakerMetrics creates a metrics collector for the given engine
func NewCircuitBreakerMetrics(engine *CircuitBreakerEngine) *CircuitBreakerMetrics {
	return &CircuitBreakerMetrics{
		engine: engine,
	}
}

// CollectMetrics gathers the current breaker metrics
func (m *CircuitBreakerMetrics) CollectMetrics() map[string]any {
	metrics := map[string]any{
		"circuit_breaker_enabled": m.engine.config.Enabled,
		"timestamp":               time.Now().Unix(),
	}

	if m.engine.config.Enabled && m.engine.breaker != nil {
		state := m.engine.GetCircuitBreakerState()
		counts := m.engine.GetCircuitBreakerCounts()

		metrics["circuit_breaker_state"] = state
		metrics["circuit_breaker_state_numeric"] = m.stateToNumeric(state)

		metrics["circuit_breaker_requests_total"] = counts.Requests
		metrics["circuit_breaker_successes_total"] = counts.TotalSuccesses
		metrics["circuit_breaker_failures_total"] = counts.TotalFailures
		metrics["circuit_breaker_consecutive_successes"] = counts.ConsecutiveSuccesses
		metrics["circuit_breaker_consecutive_failures"] = counts.ConsecutiveFailures

		if counts.Requests > 0 {
			metrics["circuit_breaker_success_rate"] = float64(counts.TotalSuccesses) / float64(counts.Requests)
			metrics["circuit_breaker_failure_rate"] = float64(counts.TotalFailures) / float64(counts.Requests)
		} else {
			metrics["circuit_breaker_success_rate"] = 0.0
			metrics["circuit_breaker_failure_rate"] = 0.0
		}

		metrics["circuit_breaker_max_requests"] = m.engine.config.MaxRequests
		metrics["circuit_breaker_failure_ratio_threshold"] = m.engine.config.FailureRatio
		metrics["circuit_breaker_min_requests"] = m.engine.config.MinRequests
		metrics["circuit_breaker_interval_seconds"] = m.engine.config.Interval.Seconds()
		metrics["circuit_breaker_timeout_seconds"] = m.engine.config.Timeout.Seconds()
	}

	return metrics
}

func (m *CircuitBreakerMetrics) stateToNumeric(state string) int {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}
