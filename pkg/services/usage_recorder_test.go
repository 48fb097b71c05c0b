package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

// blockingLedger holds TrackUsage until released.
type blockingLedger struct {
	UsageLedger
	release chan struct{}
	mu      sync.Mutex
	tracked []models.UsageInput
}

func (b *blockingLedger) TrackUsage(_ context.Context, in models.UsageInput) *models.UsageRecord {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tracked = append(b.tracked, in)
	return &models.UsageRecord{UserID: in.UserID}
}

func (b *blockingLedger) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tracked)
}

func TestAsyncUsageRecorder_CloseDrainsQueue(t *testing.T) {
	repo := &mockUsageRepo{}
	ledger := NewUsageLedger(repo, nil, LedgerConfig{}, zap.NewNop())
	r := NewAsyncUsageRecorder(ledger, zap.NewNop(), 10)

	for i := 0; i < 5; i++ {
		r.TrackUsage(context.Background(), models.UsageInput{UserID: "u1", Model: "gpt-4o", InputTokens: 10})
	}
	r.Close()

	assert.Len(t, repo.saved(), 5)
}

func TestAsyncUsageRecorder_DropsWhenFull(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ledger := &blockingLedger{release: make(chan struct{})}
	r := NewAsyncUsageRecorder(ledger, zap.New(core), 1)

	// The worker takes the first input and blocks; the second fills the queue.
	r.TrackUsage(context.Background(), models.UsageInput{UserID: "a"})
	require.Eventually(t, func() bool { return len(r.queue) == 0 }, time.Second, time.Millisecond)
	r.TrackUsage(context.Background(), models.UsageInput{UserID: "b"})

	done := make(chan struct{})
	go func() {
		r.TrackUsage(context.Background(), models.UsageInput{UserID: "c"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TrackUsage blocked on a full queue")
	}

	close(ledger.release)
	r.Close()

	assert.Equal(t, 2, ledger.count())
	assert.Equal(t, 1, logs.FilterMessage("Usage queue full, dropping record").Len())
}

func TestAsyncUsageRecorder_LedgerFailureDoesNotStopWorker(t *testing.T) {
	repo := &mockUsageRepo{}
	ledger := NewUsageLedger(repo, nil, LedgerConfig{}, zap.NewNop())
	r := NewAsyncUsageRecorder(ledger, zap.NewNop(), 10)

	r.TrackUsage(context.Background(), models.UsageInput{UserID: "u1", Model: "unknown-model"})
	r.TrackUsage(context.Background(), models.UsageInput{UserID: "u1", Model: "gpt-4o", OutputTokens: 5})
	r.Close()

	require.Len(t, repo.saved(), 1)
	assert.Equal(t, "gpt-4o", repo.saved()[0].Model)
}

func TestAsyncUsageRecorder_TrackAfterCloseIsDropped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	repo := &mockUsageRepo{}
	ledger := NewUsageLedger(repo, nil, LedgerConfig{}, zap.NewNop())
	r := NewAsyncUsageRecorder(ledger, zap.New(core), 4)

	r.TrackUsage(context.Background(), models.UsageInput{UserID: "u1", Model: "gpt-4o", InputTokens: 10})
	r.Close()

	assert.NotPanics(t, func() {
		r.TrackUsage(context.Background(), models.UsageInput{UserID: "u1", Model: "gpt-4o", InputTokens: 20})
	})
	assert.NotPanics(t, r.Close, "second Close must be a no-op")

	assert.Len(t, repo.saved(), 1)
	assert.Equal(t, 1, logs.FilterMessage("Usage recorder closed, dropping record").Len())
}

func TestAsyncUsageRecorder_ConcurrentTrackAndClose(t *testing.T) {
	repo := &mockUsageRepo{}
	ledger := NewUsageLedger(repo, nil, LedgerConfig{}, zap.NewNop())
	r := NewAsyncUsageRecorder(ledger, zap.NewNop(), 100)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				r.TrackUsage(context.Background(), models.UsageInput{UserID: "u1", Model: "gpt-4o", InputTokens: 1})
			}
		}()
	}
	r.Close()
	wg.Wait()

	assert.LessOrEqual(t, len(repo.saved()), 160)
}
