package prompts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/llm"
	"github.com/ekaya-inc/ekaya-drafts/pkg/logging"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

const compactionInstruction = "Summarize the following conversation between a user and a writing assistant " +
	"in one short paragraph. Keep decisions, constraints and preferences the user stated. " +
	"Return only the summary."

// maxCompactionChars bounds the transcript sent for compaction.
const maxCompactionChars = 12000

// Compactor produces a one-paragraph digest of dropped turns using the fast
// model tier.
type Compactor struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewCompactor creates a compactor.
func NewCompactor(provider llm.Provider, logger *zap.Logger) *Compactor {
	return &Compactor{
		provider: provider,
		logger:   logger.Named("compactor"),
	}
}

// Digest summarizes dropped. It never fails: on a provider error the digest
// is empty and the caller proceeds without it. Usage is nil when no model
// call completed.
func (c *Compactor) Digest(ctx context.Context, dropped []models.ChatMessage) (string, *llm.Usage) {
	if len(dropped) == 0 {
		return "", nil
	}

	var transcript strings.Builder
	for _, m := range dropped {
		transcript.WriteString(fmt.Sprintf("%s: %s\n", m.Role, m.Content))
	}

	req := &llm.Request{
		SystemPrompt: compactionInstruction,
		Messages: []models.ChatMessage{{
			Role:    models.RoleUser,
			Content: logging.TruncateString(transcript.String(), maxCompactionChars),
		}},
		Tier:        llm.TierFast,
		Temperature: 0.2,
	}

	var digest strings.Builder
	usage, err := c.provider.Stream(ctx, req, func(fragment string) {
		digest.WriteString(fragment)
	})
	if err != nil {
		c.logger.Warn("Context compaction failed, continuing without digest",
			zap.Int("dropped_turns", len(dropped)),
			zap.String("error", logging.SanitizeError(err)))
		return "", nil
	}

	return strings.TrimSpace(digest.String()), usage
}
