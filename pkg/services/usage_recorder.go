package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
	"github.com/ekaya-inc/ekaya-drafts/pkg/streaming"
)

// AsyncUsageRecorder records usage off the streaming path so a slow or
// broken database never delays a generation.
type AsyncUsageRecorder struct {
	ledger UsageLedger
	logger *zap.Logger
	queue  chan models.UsageInput
	done   chan struct{}

	// mu guards closed; TrackUsage holds it for reading while it sends.
	mu     sync.RWMutex
	closed bool
}

var _ streaming.UsageTracker = (*AsyncUsageRecorder)(nil)

// NewAsyncUsageRecorder creates a recorder and starts its worker.
// queueSize controls the buffer size - if full, records are dropped with a warning.
func NewAsyncUsageRecorder(ledger UsageLedger, logger *zap.Logger, queueSize int) *AsyncUsageRecorder {
	if queueSize <= 0 {
		queueSize = 100
	}

	r := &AsyncUsageRecorder{
		ledger: ledger,
		logger: logger.Named("usage-recorder"),
		queue:  make(chan models.UsageInput, queueSize),
		done:   make(chan struct{}),
	}

	go r.processQueue()

	return r
}

// TrackUsage queues a usage record. Non-blocking. Records arriving after
// Close are dropped with a warning.
func (r *AsyncUsageRecorder) TrackUsage(_ context.Context, in models.UsageInput) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Warn("Usage recorder closed, dropping record",
			zap.String("user_id", in.UserID),
			zap.String("model", in.Model),
			zap.Int("input_tokens", in.InputTokens),
			zap.Int("output_tokens", in.OutputTokens))
		return
	}

	select {
	case r.queue <- in:
	default:
		r.logger.Warn("Usage queue full, dropping record",
			zap.String("user_id", in.UserID),
			zap.String("model", in.Model),
			zap.Int("input_tokens", in.InputTokens),
			zap.Int("output_tokens", in.OutputTokens))
	}
}

// Close stops the recorder and waits for queued records to be saved. It is
// safe to call more than once.
func (r *AsyncUsageRecorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	<-r.done
}

func (r *AsyncUsageRecorder) processQueue() {
	defer close(r.done)

	for in := range r.queue {
		r.ledger.TrackUsage(context.Background(), in)
	}
}
