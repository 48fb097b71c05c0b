package streaming

import (
	"context"
	"sync"
	"time"

	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

// Subscription is the consumer side of a generation. Tokens yields every
// token in emission order and is closed right after the terminal token.
// Close unsubscribes: the generation stops emitting, performs no further
// side effects and its context is canceled. Close is idempotent.
type Subscription struct {
	em        *emitter
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Tokens returns the token channel.
func (s *Subscription) Tokens() <-chan models.StreamToken {
	return s.em.ch
}

// Close releases the subscription.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.em.unsubscribe()
	})
}

// Collect drains the subscription and returns every token received.
func (s *Subscription) Collect() []models.StreamToken {
	var out []models.StreamToken
	for tok := range s.em.ch {
		out = append(out, tok)
	}
	return out
}

func newSubscription(parent context.Context) (*Subscription, *emitter, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	em := newEmitter(ctx.Done())
	return &Subscription{em: em, cancel: cancel}, em, ctx
}

// terminalGrace bounds how long a terminal token waits for a consumer
// after the parent context is canceled. A consumer still ranging receives
// it; an abandoned one that never calls Close releases the generation.
var terminalGrace = 2 * time.Second

// emitter serializes sends on the token channel. A generation may have
// several racing finishers (success, failure, timeout, unsubscribe); claim
// lets exactly one of them own the terminal token.
type emitter struct {
	mu      sync.Mutex
	ch      chan models.StreamToken
	done    <-chan struct{}
	claimed bool
	closed  bool

	// unsub is closed by Subscription.Close, outside mu.
	unsub     chan struct{}
	unsubOnce sync.Once
}

func newEmitter(done <-chan struct{}) *emitter {
	return &emitter{
		ch:    make(chan models.StreamToken),
		done:  done,
		unsub: make(chan struct{}),
	}
}

// emit sends a non-terminal token. It reports false once the stream has
// been claimed or the consumer is gone.
func (e *emitter) emit(tok models.StreamToken) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.claimed || e.closed {
		return false
	}
	select {
	case e.ch <- tok:
		return true
	case <-e.done:
		return false
	}
}

// claim reserves the terminal token. Only the first caller wins; after a
// successful claim emit refuses further tokens.
func (e *emitter) claim() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.claimed || e.closed {
		return false
	}
	e.claimed = true
	return true
}

// finished reports whether the terminal token has been claimed.
func (e *emitter) finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.claimed || e.closed
}

// deliver sends the terminal token and closes the channel. Callers must
// hold the claim.
func (e *emitter) deliver(tok models.StreamToken) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	tok.Done = true
	e.sendTerminal(tok)
	e.closed = true
	close(e.ch)
}

// sendTerminal delivers a terminal token. Close drops it at once. A canceled
// context alone does not: the consumer gets terminalGrace to receive it.
// Callers hold mu.
func (e *emitter) sendTerminal(tok models.StreamToken) bool {
	select {
	case e.ch <- tok:
		return true
	case <-e.unsub:
		return false
	case <-e.done:
	}

	grace := time.NewTimer(terminalGrace)
	defer grace.Stop()
	select {
	case e.ch <- tok:
		return true
	case <-e.unsub:
		return false
	case <-grace.C:
		return false
	}
}

// finish claims and delivers in one step.
func (e *emitter) finish(tok models.StreamToken) bool {
	if !e.claim() {
		return false
	}
	e.deliver(tok)
	return true
}

// end closes the channel without a terminal token of its own. Merged
// streams use it after every member stream has delivered its terminal token.
func (e *emitter) end() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.claimed = true
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

// forward sends a token from a member stream, terminal or not, without
// claiming. Used by merged streams.
func (e *emitter) forward(tok models.StreamToken) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	if tok.Done {
		return e.sendTerminal(tok)
	}
	select {
	case e.ch <- tok:
		return true
	case <-e.done:
		return false
	}
}

func (e *emitter) unsubscribe() {
	// Closing unsub releases a blocked terminal send, and the caller's
	// cancel has closed done for every other send, so end gets the lock.
	e.unsubOnce.Do(func() { close(e.unsub) })
	e.end()
}
