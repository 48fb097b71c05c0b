package llm

import (
	"context"
	"strings"
	"sync"
)

// MockProvider is a configurable Provider for tests.
// Set StreamFunc to control behavior; it is safe for concurrent use.
type MockProvider struct {
	// StreamFunc is called when Stream is invoked. attempt is the 0-based
	// call count at the time of the call. If nil, the mock streams Response
	// word by word.
	StreamFunc func(ctx context.Context, attempt int, req *Request, onFragment func(string)) (*Usage, error)

	// Response is streamed by the default behavior. Defaults to "mock response".
	Response string

	// StandardModel and FastModel are returned by Model.
	StandardModel string
	FastModel     string

	mu       sync.Mutex
	requests []*Request
}

var _ Provider = (*MockProvider)(nil)

// NewMockProvider creates a new mock with sensible defaults.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Response:      "mock response",
		StandardModel: "gpt-4o",
		FastModel:     "gpt-4o-mini",
	}
}

// Model implements Provider.
func (m *MockProvider) Model(tier Tier) string {
	if tier == TierFast {
		return m.FastModel
	}
	return m.StandardModel
}

// Stream implements Provider.
func (m *MockProvider) Stream(ctx context.Context, req *Request, onFragment func(string)) (*Usage, error) {
	m.mu.Lock()
	attempt := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, attempt, req, onFragment)
	}
	return StreamText(ctx, m.Model(req.Tier), req, m.Response, onFragment)
}

// Calls returns the number of Stream invocations.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request received, in call order.
func (m *MockProvider) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// StreamText emits text word by word and reports estimated usage.
// Tests use it to build StreamFunc implementations.
func StreamText(ctx context.Context, model string, req *Request, text string, onFragment func(string)) (*Usage, error) {
	for _, word := range strings.SplitAfter(text, " ") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if word != "" {
			onFragment(word)
		}
	}
	return &Usage{
		Model:        model,
		InputTokens:  EstimateRequestTokens(req),
		OutputTokens: EstimateTokens(text),
		Estimated:    true,
	}, nil
}
