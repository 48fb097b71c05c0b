package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/logging"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicProvider streams from the Anthropic Messages API.
type AnthropicProvider struct {
	client    *anthropic.Client
	models    tierModels
	maxTokens int
	logger    *zap.Logger
}

var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates a provider for the Anthropic Messages API.
// An empty Endpoint uses the SDK default.
func NewAnthropicProvider(cfg *ProviderConfig, logger *zap.Logger) (*AnthropicProvider, error) {
	tm, err := cfg.tierModels()
	if err != nil {
		return nil, err
	}

	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicProvider{
		client:    anthropic.NewClient(cfg.APIKey, opts...),
		models:    tm,
		maxTokens: maxTokens,
		logger:    logger.Named("llm-anthropic"),
	}, nil
}

// Model implements Provider.
func (p *AnthropicProvider) Model(tier Tier) string {
	return p.models.forTier(tier)
}

// Stream implements Provider.
func (p *AnthropicProvider) Stream(ctx context.Context, req *Request, onFragment func(string)) (*Usage, error) {
	model := p.Model(req.Tier)
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}
	temperature := float32(req.Temperature)

	p.logger.Debug("Starting stream",
		zap.String("model", model),
		zap.Int("message_count", len(req.Messages)),
		zap.Float64("temperature", req.Temperature))

	var received int
	resp, err := p.client.CreateMessagesStream(ctx, anthropic.MessagesStreamRequest{
		MessagesRequest: anthropic.MessagesRequest{
			Model:       anthropic.Model(model),
			System:      systemWithInlineInstructions(req),
			Messages:    toAnthropicMessages(req.Messages),
			MaxTokens:   maxTokens,
			Temperature: &temperature,
		},
		OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
			text := data.Delta.GetText()
			if text == "" {
				return
			}
			received += len(text)
			onFragment(text)
		},
	})
	if err != nil {
		p.logger.Error("Stream failed",
			zap.String("model", model),
			zap.Int("received_chars", received),
			zap.String("error", logging.SanitizeError(err)))
		return nil, classifyAnthropicError(err, model)
	}

	usage := &Usage{
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		usage.InputTokens = EstimateRequestTokens(req)
		usage.OutputTokens = (received + CharsPerToken - 1) / CharsPerToken
		usage.Estimated = true
	}

	p.logger.Debug("Stream completed",
		zap.String("model", model),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return usage, nil
}

// The Messages API only accepts user and assistant turns; system turns in the
// history are folded into the top-level system prompt.
func systemWithInlineInstructions(req *Request) string {
	var parts []string
	if req.SystemPrompt != "" {
		parts = append(parts, req.SystemPrompt)
	}
	for _, m := range req.Messages {
		if m.Role == models.RoleSystem && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

func toAnthropicMessages(msgs []models.ChatMessage) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleAssistant:
			out = append(out, anthropic.NewAssistantTextMessage(m.Content))
		case models.RoleUser:
			out = append(out, anthropic.NewUserTextMessage(m.Content))
		}
	}
	return out
}

func classifyAnthropicError(err error, model string) *Error {
	status := 0
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.StatusCode
	}
	return ClassifyError(err, status, model)
}
