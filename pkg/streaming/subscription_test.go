package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

func withTerminalGrace(t *testing.T, d time.Duration) {
	t.Helper()
	prev := terminalGrace
	terminalGrace = d
	t.Cleanup(func() { terminalGrace = prev })
}

func TestEmitter_TerminalSurvivesParentCancel(t *testing.T) {
	withTerminalGrace(t, 10*time.Second)

	// select picks randomly among ready cases, so repeat to cover both orders.
	for i := 0; i < 50; i++ {
		parent, cancel := context.WithCancel(context.Background())
		sub, em, _ := newSubscription(parent)
		cancel()

		go em.finish(models.StreamToken{Error: canceledMessage})

		tokens := sub.Collect()
		require.Len(t, tokens, 1, "iteration %d", i)
		assert.True(t, tokens[0].Done)
		assert.Equal(t, canceledMessage, tokens[0].Error)
		sub.Close()
	}
}

func TestEmitter_CloseReleasesPendingTerminal(t *testing.T) {
	withTerminalGrace(t, 10*time.Second)

	parent, cancel := context.WithCancel(context.Background())
	sub, em, _ := newSubscription(parent)
	cancel()

	finished := make(chan struct{})
	go func() {
		em.finish(models.StreamToken{})
		close(finished)
	}()

	sub.Close()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Close did not release the terminal send")
	}

	_, open := <-sub.Tokens()
	assert.False(t, open)
}

func TestEmitter_AbandonedConsumerReleasedAfterGrace(t *testing.T) {
	withTerminalGrace(t, 20*time.Millisecond)

	parent, cancel := context.WithCancel(context.Background())
	sub, em, _ := newSubscription(parent)
	cancel()

	finished := make(chan struct{})
	go func() {
		em.finish(models.StreamToken{})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("terminal send blocked past the grace period")
	}
	assert.Empty(t, sub.Collect())
	sub.Close()
}

func TestEmitter_NonTerminalDroppedAfterCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	_, em, _ := newSubscription(parent)
	cancel()

	assert.False(t, em.emit(models.StreamToken{Token: "late"}))
}

const canceledMessage = "generation canceled"
