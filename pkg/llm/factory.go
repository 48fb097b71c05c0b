package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider kinds accepted by NewProvider.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
)

// ProviderConfig holds what is needed to construct a Provider.
type ProviderConfig struct {
	Kind          string // "openai" or "anthropic"
	Endpoint      string // Base URL, e.g., "https://api.openai.com/v1"
	APIKey        string // Optional for local endpoints
	StandardModel string // Model for TierStandard, e.g., "gpt-4o"
	FastModel     string // Model for TierFast; falls back to StandardModel
	MaxTokens     int
}

type tierModels struct {
	standard string
	fast     string
}

func (t tierModels) forTier(tier Tier) string {
	if tier == TierFast {
		return t.fast
	}
	return t.standard
}

func (c *ProviderConfig) tierModels() (tierModels, error) {
	if c.StandardModel == "" {
		return tierModels{}, fmt.Errorf("standard model is required")
	}
	fast := c.FastModel
	if fast == "" {
		fast = c.StandardModel
	}
	return tierModels{standard: c.StandardModel, fast: fast}, nil
}

// NewProvider creates the provider selected by cfg.Kind wrapped in a circuit
// breaker.
func NewProvider(cfg *ProviderConfig, breaker CircuitBreakerConfig, logger *zap.Logger) (Provider, error) {
	var (
		inner Provider
		err   error
	)
	switch cfg.Kind {
	case KindOpenAI, "":
		inner, err = NewOpenAIProvider(cfg, logger)
	case KindAnthropic:
		inner, err = NewAnthropicProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.Kind, err)
	}

	return NewBreakerProvider(inner, NewCircuitBreaker(breaker), logger), nil
}
