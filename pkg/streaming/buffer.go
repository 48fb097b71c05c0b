package streaming

import "sync"

// DefaultBatchSize is how many fragments are collected before a flush.
const DefaultBatchSize = 10

// TokenBuffer collects streamed fragments and hands them to onFlush in
// batches. Fragments are delivered exactly once, in the order added.
// onFlush runs with the buffer locked and must not call back into it.
type TokenBuffer struct {
	mu      sync.Mutex
	size    int
	pending []string
	onFlush func(batch []string)
}

// NewTokenBuffer creates a buffer that flushes every size fragments.
func NewTokenBuffer(size int, onFlush func(batch []string)) *TokenBuffer {
	if size < 1 {
		size = DefaultBatchSize
	}
	return &TokenBuffer{
		size:    size,
		pending: make([]string, 0, size),
		onFlush: onFlush,
	}
}

// Add appends a fragment and flushes once the batch is full.
func (b *TokenBuffer) Add(fragment string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, fragment)
	if len(b.pending) >= b.size {
		b.flushLocked()
	}
}

// Flush delivers any pending fragments as a partial batch.
func (b *TokenBuffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Clear discards pending fragments without delivering them.
func (b *TokenBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = b.pending[:0]
}

// Len returns the number of pending fragments.
func (b *TokenBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *TokenBuffer) flushLocked() {
	if len(b.pending) == 0 {
		return
	}
	batch := make([]string, len(b.pending))
	copy(batch, b.pending)
	b.pending = b.pending[:0]
	b.onFlush(batch)
}
