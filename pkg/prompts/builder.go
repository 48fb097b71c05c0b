// Package prompts assembles the system prompt and the conversation window
// sent to the model.
package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-drafts/pkg/llm"
	"github.com/ekaya-inc/ekaya-drafts/pkg/logging"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

const (
	DefaultHistoryThreshold = 10
	DefaultTokenBudget      = 3000
	DefaultContextBudget    = 500

	maxDraftChars      = 4000
	condensedTurnChars = 160
)

// BuilderConfig bounds the prompt size.
type BuilderConfig struct {
	// HistoryThreshold is the number of most recent messages sent verbatim.
	// Older messages are condensed into the system prompt.
	HistoryThreshold int
	// TokenBudget caps the verbatim conversation window.
	TokenBudget int
	// ContextBudget caps the condensed earlier-turn block.
	ContextBudget int
}

func (c BuilderConfig) withDefaults() BuilderConfig {
	if c.HistoryThreshold <= 0 {
		c.HistoryThreshold = DefaultHistoryThreshold
	}
	if c.TokenBudget <= 0 {
		c.TokenBudget = DefaultTokenBudget
	}
	if c.ContextBudget <= 0 {
		c.ContextBudget = DefaultContextBudget
	}
	return c
}

// Prompt is the assembled model input.
type Prompt struct {
	System   string
	Messages []models.ChatMessage
	// Dropped holds the messages not sent verbatim, oldest first.
	Dropped []models.ChatMessage
}

// Input is everything the builder draws on.
type Input struct {
	Platform models.Platform
	Draft    *models.DraftContext
	Messages []models.ChatMessage
	// Digest is an optional one-paragraph summary of dropped turns.
	Digest string
}

// Builder assembles prompts. It is stateless and safe for concurrent use.
type Builder struct {
	cfg   BuilderConfig
	rules RuleSet
}

// NewBuilder creates a builder. A nil rules set uses the embedded catalogue.
func NewBuilder(cfg BuilderConfig, rules RuleSet) *Builder {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Builder{cfg: cfg.withDefaults(), rules: rules}
}

// Build splits the conversation into the verbatim window and dropped turns,
// and renders the system prompt.
func (b *Builder) Build(in Input) *Prompt {
	recent := in.Messages
	var earlier []models.ChatMessage
	if len(recent) > b.cfg.HistoryThreshold {
		earlier = recent[:len(recent)-b.cfg.HistoryThreshold]
		recent = recent[len(recent)-b.cfg.HistoryThreshold:]
	}

	kept, trimmed := TrimToBudget(recent, b.cfg.TokenBudget)
	// The newest message is what the model is answering, so it survives even
	// when it alone exceeds the budget.
	if len(kept) == 0 && len(recent) > 0 {
		kept = recent[len(recent)-1:]
		trimmed = recent[:len(recent)-1]
	}

	dropped := make([]models.ChatMessage, 0, len(earlier)+len(trimmed))
	dropped = append(dropped, earlier...)
	dropped = append(dropped, trimmed...)

	return &Prompt{
		System:   b.BuildSystemPrompt(in.Platform, in.Draft, CondenseTurns(earlier, b.cfg.ContextBudget), in.Digest),
		Messages: kept,
		Dropped:  dropped,
	}
}

// TrimToBudget walks messages newest-first and keeps them while the running
// token estimate stays within budget. It stops at the first message that
// would exceed it; everything older is returned as dropped. Both slices are
// in chronological order.
func TrimToBudget(messages []models.ChatMessage, budget int) (kept, dropped []models.ChatMessage) {
	used := 0
	cut := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := llm.EstimateTokens(messages[i].Content)
		if used+cost > budget {
			break
		}
		used += cost
		cut = i
	}
	return messages[cut:], messages[:cut]
}

// CondenseTurns renders earlier turns oldest-first as one line each, stopping
// before the block would exceed budget tokens.
func CondenseTurns(turns []models.ChatMessage, budget int) string {
	if len(turns) == 0 {
		return ""
	}

	var sb strings.Builder
	used := 0
	for _, t := range turns {
		line := fmt.Sprintf("- %s: %s\n", t.Role, logging.TruncateString(oneLine(t.Content), condensedTurnChars))
		cost := llm.EstimateTokens(line)
		if used+cost > budget {
			break
		}
		used += cost
		sb.WriteString(line)
	}
	return sb.String()
}

// BuildSystemPrompt renders platform rules, the draft and earlier context.
func (b *Builder) BuildSystemPrompt(platform models.Platform, draft *models.DraftContext, condensed, digest string) string {
	var prompt strings.Builder

	prompt.WriteString("You are an expert writing assistant helping a user improve their draft. ")
	prompt.WriteString("Give specific, actionable suggestions and, when asked to rewrite, return only the rewritten text.\n\n")

	if platform == models.PlatformNone && draft != nil {
		platform = draft.Platform
	}
	if platform != models.PlatformNone {
		if rules, ok := b.rules.For(platform); ok {
			writePlatformRules(&prompt, rules)
		}
	}

	if draft != nil {
		writeDraft(&prompt, draft)
	}

	if condensed != "" {
		prompt.WriteString("## Earlier Conversation (condensed)\n\n")
		prompt.WriteString(condensed)
		prompt.WriteString("\n")
	}

	if digest != "" {
		prompt.WriteString("## Summary of Earlier Discussion\n\n")
		prompt.WriteString(digest)
		prompt.WriteString("\n\n")
	}

	return strings.TrimRight(prompt.String(), "\n")
}

func writePlatformRules(prompt *strings.Builder, rules PlatformRules) {
	prompt.WriteString(fmt.Sprintf("## Platform: %s\n\n", rules.DisplayName))
	if rules.CharLimit > 0 {
		prompt.WriteString(fmt.Sprintf("- Character limit: %d\n", rules.CharLimit))
	}
	if rules.Tone != "" {
		prompt.WriteString(fmt.Sprintf("- Tone: %s\n", rules.Tone))
	}
	if rules.Hashtags != "" {
		prompt.WriteString(fmt.Sprintf("- Hashtags: %s\n", rules.Hashtags))
	}
	if len(rules.BestPractices) > 0 {
		prompt.WriteString("- Best practices:\n")
		for _, bp := range rules.BestPractices {
			prompt.WriteString(fmt.Sprintf("  - %s\n", bp))
		}
	}
	prompt.WriteString("\n")
}

func writeDraft(prompt *strings.Builder, draft *models.DraftContext) {
	prompt.WriteString("## Current Draft\n\n")
	if draft.Title != "" {
		prompt.WriteString(fmt.Sprintf("Title: %s\n", draft.Title))
	}
	if draft.Audience != "" {
		prompt.WriteString(fmt.Sprintf("Audience: %s\n", draft.Audience))
	}
	if len(draft.Goals) > 0 {
		goals := make([]string, len(draft.Goals))
		for i, g := range draft.Goals {
			goals[i] = string(g)
		}
		prompt.WriteString(fmt.Sprintf("Goals: %s\n", strings.Join(goals, ", ")))
	}
	if draft.Content != "" {
		prompt.WriteString("\n")
		prompt.WriteString(logging.TruncateString(draft.Content, maxDraftChars))
		prompt.WriteString("\n")
	}
	prompt.WriteString("\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
