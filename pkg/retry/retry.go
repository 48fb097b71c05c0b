package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff.
// MaxAttempts counts every invocation including the first.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration // 0 means uncapped
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0, +/- fraction applied to each delay
}

// DefaultConfig returns defaults for infrastructure calls (database and
// Redis connects): 4 attempts, 100ms doubling, capped at 5s, 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// Exponential returns the model-call policy: delay(attempt) is
// initial * 2^attempt with no jitter and no cap.
func Exponential(maxAttempts int, initial time.Duration) *Config {
	return &Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: initial,
		Multiplier:   2.0,
	}
}

// Delay returns the wait after the given 0-based failed attempt.
func (c *Config) Delay(attempt int) time.Duration {
	mult := c.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := time.Duration(float64(c.InitialDelay) * math.Pow(mult, float64(attempt)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return applyJitter(d, c.JitterFactor)
}

// applyJitter adds random jitter to a delay to prevent thundering herd.
// Jitter is calculated as: delay +/- (delay * jitterFactor * random(-1 to +1))
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Wait blocks for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do executes fn with exponential backoff retry logic.
// Returns nil on success, or the last error after all attempts are exhausted.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, _, err := DoWithResult(ctx, cfg, nil, func(int) (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult calls fn with the 0-based attempt index until it succeeds,
// attempts run out, shouldStop reports a permanent failure, or ctx ends
// during a wait. It returns the last result, the index of the last attempt
// made, and the last error. A nil shouldStop retries every error.
func DoWithResult[T any](ctx context.Context, cfg *Config, shouldStop func(error) bool, fn func(attempt int) (T, error)) (T, int, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result T
	var lastErr error
	attempt := 0

	for ; attempt < maxAttempts; attempt++ {
		r, err := fn(attempt)
		if err == nil {
			return r, attempt, nil
		}
		result, lastErr = r, err

		if shouldStop != nil && shouldStop(err) {
			return result, attempt, err
		}

		if attempt < maxAttempts-1 {
			if werr := Wait(ctx, cfg.Delay(attempt)); werr != nil {
				return result, attempt, werr
			}
		}
	}

	return result, maxAttempts - 1, lastErr
}

// RetryableError is implemented by errors that explicitly declare their
// retryability. llm.Error implements it.
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsPermanent reports whether err declares itself non-retryable anywhere in
// its chain. Errors that say nothing about retryability are not permanent.
func IsPermanent(err error) bool {
	var r RetryableError
	if errors.As(err, &r) {
		return !r.IsRetryable()
	}
	return false
}

// IsRetryable determines if an error is transient and worth retrying.
//
// The function checks errors in this order:
// 1. If the error chain contains a RetryableError, use its IsRetryable() method
// 2. Otherwise, pattern-match against known transient error strings
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		// Connection errors
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"timed out",
		"temporary failure",
		"too many connections",
		"i/o timeout",
		"network is unreachable",
		"eof",
		// HTTP status codes
		"429",
		"500",
		"502",
		"503",
		"504",
		"529", // Anthropic overloaded
		// HTTP error messages
		"rate limit",
		"overloaded",
		"service unavailable",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// DoIfRetryable only retries transient errors; permanent ones return at once.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	_, _, err := DoWithResult(ctx, cfg, func(err error) bool { return !IsRetryable(err) }, func(int) (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
