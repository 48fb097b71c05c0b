package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/logging"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

// OpenAIProvider streams from any OpenAI-compatible chat completions endpoint
// (OpenAI, Azure-compatible gateways, vLLM, Ollama).
type OpenAIProvider struct {
	client *openai.Client
	models tierModels
	logger *zap.Logger
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider for an OpenAI-compatible endpoint.
// An empty Endpoint uses the public OpenAI API.
func NewOpenAIProvider(cfg *ProviderConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	tm, err := cfg.tierModels()
	if err != nil {
		return nil, err
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		models: tm,
		logger: logger.Named("llm-openai"),
	}, nil
}

// Model implements Provider.
func (p *OpenAIProvider) Model(tier Tier) string {
	return p.models.forTier(tier)
}

// Stream implements Provider.
func (p *OpenAIProvider) Stream(ctx context.Context, req *Request, onFragment func(string)) (*Usage, error) {
	model := p.Model(req.Tier)
	start := time.Now()

	p.logger.Debug("Starting stream",
		zap.String("model", model),
		zap.Int("message_count", len(req.Messages)),
		zap.Float64("temperature", req.Temperature))

	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages, req.SystemPrompt),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	})
	if err != nil {
		p.logger.Error("Failed to create stream",
			zap.String("model", model),
			zap.String("error", logging.SanitizeError(err)))
		return nil, classifyOpenAIError(err, model)
	}
	defer stream.Close()

	var content strings.Builder
	var reported *openai.Usage

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.logger.Error("Stream receive error",
				zap.String("model", model),
				zap.Int("received_chars", content.Len()),
				zap.String("error", logging.SanitizeError(err)))
			return nil, classifyOpenAIError(err, model)
		}

		if response.Usage != nil {
			reported = response.Usage
		}
		if len(response.Choices) == 0 {
			continue
		}
		if delta := response.Choices[0].Delta.Content; delta != "" {
			content.WriteString(delta)
			onFragment(delta)
		}
	}

	usage := &Usage{Model: model}
	if reported != nil && reported.TotalTokens > 0 {
		usage.InputTokens = reported.PromptTokens
		usage.OutputTokens = reported.CompletionTokens
	} else {
		usage.InputTokens = EstimateRequestTokens(req)
		usage.OutputTokens = EstimateTokens(content.String())
		usage.Estimated = true
	}

	p.logger.Debug("Stream completed",
		zap.String("model", model),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return usage, nil
}

func toOpenAIMessages(msgs []models.ChatMessage, systemPrompt string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case models.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case models.RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func classifyOpenAIError(err error, model string) *Error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return ClassifyError(err, status, model)
}
