package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed means requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the provider failed repeatedly and requests are rejected.
	CircuitOpen
	// CircuitHalfOpen means a single probe request is in flight.
	CircuitHalfOpen
)

// String returns a human-readable string for the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures before the circuit trips.
	Threshold int
	// ResetAfter is how long the circuit stays open before a probe is allowed.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig returns 5 failures / 30 seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker trips open after N consecutive provider failures and lets a
// single probe through once ResetAfter has elapsed.
type CircuitBreaker struct {
	mu               sync.Mutex
	consecutiveFails int
	threshold        int
	resetAfter       time.Duration
	lastFailure      time.Time
	state            CircuitState
	now              func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Threshold < 1 {
		config.Threshold = DefaultCircuitBreakerConfig().Threshold
	}
	return &CircuitBreaker{
		threshold:  config.Threshold,
		resetAfter: config.ResetAfter,
		state:      CircuitClosed,
		now:        time.Now,
	}
}

// Allow returns nil if a request may proceed. A rejection is a retryable
// *Error of type ErrorTypeCircuitOpen.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		since := cb.now().Sub(cb.lastFailure)
		if since > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return nil
		}
		return NewError(ErrorTypeCircuitOpen,
			fmt.Sprintf("model provider appears to be down (failed %d times, last failure %v ago)",
				cb.consecutiveFails, since.Round(time.Second)),
			true, nil)
	case CircuitHalfOpen:
		return NewError(ErrorTypeCircuitOpen, "testing whether model provider has recovered", true, nil)
	default:
		return NewError(ErrorTypeCircuitOpen, fmt.Sprintf("circuit breaker in unknown state: %v", cb.state), true, nil)
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure increments the failure count and trips the circuit at the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()

	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// ReleaseProbe returns a half-open circuit to open without counting a
// failure, for probes the caller abandoned. The next Allow probes again.
func (cb *CircuitBreaker) ReleaseProbe() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the current count of consecutive failures.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFails
}

// BreakerProvider guards a Provider with a CircuitBreaker.
type BreakerProvider struct {
	inner   Provider
	breaker *CircuitBreaker
	logger  *zap.Logger
}

var _ Provider = (*BreakerProvider)(nil)

// NewBreakerProvider wraps inner.
func NewBreakerProvider(inner Provider, breaker *CircuitBreaker, logger *zap.Logger) *BreakerProvider {
	return &BreakerProvider{
		inner:   inner,
		breaker: breaker,
		logger:  logger.Named("llm-breaker"),
	}
}

// Model implements Provider.
func (p *BreakerProvider) Model(tier Tier) string {
	return p.inner.Model(tier)
}

// Stream implements Provider. Caller cancellation does not count as a
// provider failure.
func (p *BreakerProvider) Stream(ctx context.Context, req *Request, onFragment func(string)) (*Usage, error) {
	if err := p.breaker.Allow(); err != nil {
		p.logger.Warn("Rejected by circuit breaker",
			zap.String("state", p.breaker.State().String()),
			zap.Int("consecutive_failures", p.breaker.ConsecutiveFailures()))
		return nil, err
	}

	usage, err := p.inner.Stream(ctx, req, onFragment)
	switch {
	case err == nil:
		p.breaker.RecordSuccess()
	case ctx.Err() != nil:
		p.breaker.ReleaseProbe()
	default:
		p.breaker.RecordFailure()
		if p.breaker.State() == CircuitOpen {
			p.logger.Warn("Circuit breaker open",
				zap.Int("consecutive_failures", p.breaker.ConsecutiveFailures()))
		}
	}
	return usage, err
}
