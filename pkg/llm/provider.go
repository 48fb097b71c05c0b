// Package llm wraps streaming model providers behind a single capability:
// given messages, a system prompt and a model tier, stream text fragments and
// report token usage.
package llm

import (
	"context"

	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

// Tier selects between the configured models.
type Tier string

const (
	// TierStandard is the default, higher quality model.
	TierStandard Tier = "standard"
	// TierFast is the cheaper fallback used on retry attempts.
	TierFast Tier = "fast"
)

// Request is one model invocation.
type Request struct {
	Messages     []models.ChatMessage
	SystemPrompt string
	Tier         Tier
	Temperature  float64
	MaxTokens    int
}

// Usage is what a completed invocation consumed.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
	// Estimated is set when the provider did not report counts and they were
	// derived from text length.
	Estimated bool
}

// TotalTokens returns input plus output tokens.
func (u *Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Provider streams a completion. Stream blocks until the model finishes or
// fails, calling onFragment for each text fragment in arrival order. It must
// return promptly once ctx is done.
type Provider interface {
	Stream(ctx context.Context, req *Request, onFragment func(string)) (*Usage, error)
	// Model returns the concrete model name that serves tier.
	Model(tier Tier) string
}

// CharsPerToken is the length heuristic used when real counts are unavailable.
const CharsPerToken = 4

// EstimateTokens approximates the token count of s.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + CharsPerToken - 1) / CharsPerToken
}

// EstimateRequestTokens approximates the prompt size of req.
func EstimateRequestTokens(req *Request) int {
	total := EstimateTokens(req.SystemPrompt)
	for _, m := range req.Messages {
		total += EstimateTokens(m.Content)
	}
	return total
}
