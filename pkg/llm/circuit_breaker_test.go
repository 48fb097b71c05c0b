package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBreaker(threshold int, resetAfter time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: threshold, ResetAfter: resetAfter})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second)

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State(), "should not trip below threshold")

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Allow()
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCircuitOpen, GetErrorType(err))
	assert.True(t, IsRetryable(err), "an open circuit is worth retrying after backoff")
}

func TestCircuitBreaker_HalfOpenAfterReset(t *testing.T) {
	cb, now := newTestBreaker(1, 10*time.Second)

	cb.RecordFailure()
	require.Error(t, cb.Allow())

	*now = now.Add(11 * time.Second)
	require.NoError(t, cb.Allow(), "probe should be allowed after reset window")
	assert.Equal(t, CircuitHalfOpen, cb.State())

	assert.Error(t, cb.Allow(), "only one probe at a time")

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(1, 10*time.Second)

	cb.RecordFailure()
	*now = now.Add(11 * time.Second)
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Error(t, cb.Allow())
}

func TestCircuitBreaker_ReleaseProbe(t *testing.T) {
	cb, now := newTestBreaker(1, 10*time.Second)

	cb.RecordFailure()
	*now = now.Add(11 * time.Second)
	require.NoError(t, cb.Allow())

	cb.ReleaseProbe()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, 1, cb.ConsecutiveFailures(), "abandoned probe is not a failure")
	assert.NoError(t, cb.Allow(), "next caller probes again")
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}

func TestBreakerProvider_FailsFastWhenOpen(t *testing.T) {
	mock := NewMockProvider()
	mock.StreamFunc = func(ctx context.Context, attempt int, req *Request, onFragment func(string)) (*Usage, error) {
		return nil, errors.New("503 service unavailable")
	}
	cb, _ := newTestBreaker(2, time.Minute)
	p := NewBreakerProvider(mock, cb, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := p.Stream(context.Background(), &Request{}, func(string) {})
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := p.Stream(context.Background(), &Request{}, func(string) {})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCircuitOpen, GetErrorType(err))
	assert.Equal(t, 2, mock.Calls(), "provider must not be called while the circuit is open")
}

func TestBreakerProvider_CancellationIsNotAFailure(t *testing.T) {
	mock := NewMockProvider()
	mock.StreamFunc = func(ctx context.Context, attempt int, req *Request, onFragment func(string)) (*Usage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	cb, _ := newTestBreaker(1, time.Minute)
	p := NewBreakerProvider(mock, cb, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Stream(ctx, &Request{}, func(string) {})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
}

func TestBreakerProvider_SuccessPassesThrough(t *testing.T) {
	mock := NewMockProvider()
	mock.Response = "hello there"
	cb, _ := newTestBreaker(1, time.Minute)
	p := NewBreakerProvider(mock, cb, zap.NewNop())

	var got string
	usage, err := p.Stream(context.Background(), &Request{Tier: TierFast}, func(s string) { got += s })

	require.NoError(t, err)
	assert.Equal(t, "hello there", got)
	assert.Equal(t, "gpt-4o-mini", usage.Model)
	assert.Equal(t, "gpt-4o", p.Model(TierStandard))
}
