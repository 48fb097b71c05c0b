package prompts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/llm"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

func msg(role models.Role, content string) models.ChatMessage {
	return models.ChatMessage{Role: role, Content: content}
}

func TestDefaultRules_AllPlatforms(t *testing.T) {
	rules := DefaultRules()

	for _, p := range []models.Platform{
		models.PlatformTwitter, models.PlatformLinkedIn, models.PlatformInstagram,
		models.PlatformFacebook, models.PlatformEmail, models.PlatformBlog, models.PlatformGeneric,
	} {
		r, ok := rules[p]
		require.True(t, ok, "missing rules for %s", p)
		assert.NotEmpty(t, r.Tone, p)
		assert.NotEmpty(t, r.BestPractices, p)
	}
	assert.Equal(t, 280, rules[models.PlatformTwitter].CharLimit)
}

func TestLoadPlatformRules_Errors(t *testing.T) {
	_, err := LoadPlatformRules([]byte("platforms: {}"))
	assert.Error(t, err)

	_, err = LoadPlatformRules([]byte("platforms:\n  myspace:\n    char_limit: 10\n"))
	assert.Error(t, err)

	_, err = LoadPlatformRules([]byte("platforms:\n  twitter:\n    char_limit: -1\n"))
	assert.Error(t, err)

	_, err = LoadPlatformRules([]byte(":::"))
	assert.Error(t, err)
}

func TestRuleSet_ForFallsBackToGeneric(t *testing.T) {
	rs := RuleSet{models.PlatformGeneric: {DisplayName: "General"}}
	r, ok := rs.For(models.PlatformTwitter)
	require.True(t, ok)
	assert.Equal(t, "General", r.DisplayName)
}

func TestTrimToBudget_NewestFirst(t *testing.T) {
	messages := []models.ChatMessage{
		msg(models.RoleUser, strings.Repeat("a", 40)),      // 10 tokens
		msg(models.RoleAssistant, strings.Repeat("b", 40)), // 10 tokens
		msg(models.RoleUser, strings.Repeat("c", 40)),      // 10 tokens
	}

	kept, dropped := TrimToBudget(messages, 25)
	require.Len(t, kept, 2)
	assert.Equal(t, messages[1:], kept)
	assert.Equal(t, messages[:1], dropped)

	kept, dropped = TrimToBudget(messages, 30)
	assert.Len(t, kept, 3)
	assert.Empty(t, dropped)
}

func TestTrimToBudget_StopsAtFirstOverflow(t *testing.T) {
	messages := []models.ChatMessage{
		msg(models.RoleUser, "tiny"),
		msg(models.RoleAssistant, strings.Repeat("x", 400)), // 100 tokens
		msg(models.RoleUser, "short"),
	}

	kept, dropped := TrimToBudget(messages, 50)
	assert.Equal(t, messages[2:], kept, "older small messages are not skipped over")
	assert.Len(t, dropped, 2)
}

func TestBuild_KeepsNewestWhenOverBudget(t *testing.T) {
	b := NewBuilder(BuilderConfig{TokenBudget: 5}, nil)
	long := msg(models.RoleUser, strings.Repeat("z", 100))

	p := b.Build(Input{Messages: []models.ChatMessage{msg(models.RoleUser, "hi"), long}})
	require.Len(t, p.Messages, 1)
	assert.Equal(t, long, p.Messages[0])
	assert.Len(t, p.Dropped, 1)
}

func TestBuild_CondensesEarlierTurns(t *testing.T) {
	b := NewBuilder(BuilderConfig{HistoryThreshold: 2, TokenBudget: 1000, ContextBudget: 1000}, nil)
	messages := []models.ChatMessage{
		msg(models.RoleUser, "first question about tone"),
		msg(models.RoleAssistant, "first answer"),
		msg(models.RoleUser, "second question"),
		msg(models.RoleAssistant, "second answer"),
	}

	p := b.Build(Input{Platform: models.PlatformTwitter, Messages: messages})

	assert.Equal(t, messages[2:], p.Messages)
	assert.Equal(t, messages[:2], p.Dropped)
	assert.Contains(t, p.System, "## Earlier Conversation (condensed)")
	first := strings.Index(p.System, "- user: first question about tone")
	second := strings.Index(p.System, "- assistant: first answer")
	require.NotEqual(t, -1, first)
	assert.Greater(t, second, first, "condensed block is oldest-first")
}

func TestBuild_NoCondensedBlockUnderThreshold(t *testing.T) {
	b := NewBuilder(BuilderConfig{}, nil)
	p := b.Build(Input{Messages: []models.ChatMessage{msg(models.RoleUser, "hello")}})
	assert.NotContains(t, p.System, "Earlier Conversation")
	assert.Empty(t, p.Dropped)
}

func TestCondenseTurns_RespectsBudget(t *testing.T) {
	turns := []models.ChatMessage{
		msg(models.RoleUser, strings.Repeat("a", 60)),
		msg(models.RoleUser, strings.Repeat("b", 60)),
		msg(models.RoleUser, strings.Repeat("c", 60)),
	}
	out := CondenseTurns(turns, 40)
	assert.Contains(t, out, "aaa")
	assert.NotContains(t, out, "ccc")
	assert.LessOrEqual(t, llm.EstimateTokens(out), 40)
}

func TestBuildSystemPrompt_PlatformAndDraft(t *testing.T) {
	b := NewBuilder(BuilderConfig{}, nil)
	draft := &models.DraftContext{
		Title:    "Launch post",
		Content:  "We shipped it.",
		Audience: "developers",
		Goals:    []models.Goal{models.GoalEngagement, models.GoalConversion},
	}

	got := b.BuildSystemPrompt(models.PlatformTwitter, draft, "", "User prefers a playful tone.")

	assert.Contains(t, got, "## Platform: Twitter/X")
	assert.Contains(t, got, "Character limit: 280")
	assert.Contains(t, got, "Title: Launch post")
	assert.Contains(t, got, "Goals: engagement, conversion")
	assert.Contains(t, got, "We shipped it.")
	assert.Contains(t, got, "User prefers a playful tone.")
}

func TestBuildSystemPrompt_PlatformFromDraft(t *testing.T) {
	b := NewBuilder(BuilderConfig{}, nil)
	got := b.BuildSystemPrompt(models.PlatformNone, &models.DraftContext{Platform: models.PlatformLinkedIn}, "", "")
	assert.Contains(t, got, "## Platform: LinkedIn")
}

func TestCompactor_Digest(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.Response = "The user wants a shorter launch tweet. "
	c := NewCompactor(provider, zap.NewNop())

	digest, usage := c.Digest(context.Background(), []models.ChatMessage{msg(models.RoleUser, "make it shorter")})

	assert.Equal(t, "The user wants a shorter launch tweet.", digest)
	require.NotNil(t, usage)
	assert.Equal(t, "gpt-4o-mini", usage.Model)
	require.Len(t, provider.Requests(), 1)
	assert.Equal(t, llm.TierFast, provider.Requests()[0].Tier)
}

func TestCompactor_FailureYieldsNoDigest(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.StreamFunc = func(context.Context, int, *llm.Request, func(string)) (*llm.Usage, error) {
		return nil, errors.New("upstream 503")
	}
	c := NewCompactor(provider, zap.NewNop())

	digest, usage := c.Digest(context.Background(), []models.ChatMessage{msg(models.RoleUser, "x")})
	assert.Empty(t, digest)
	assert.Nil(t, usage)

	digest, _ = c.Digest(context.Background(), nil)
	assert.Empty(t, digest)
	assert.Equal(t, 1, provider.Calls(), "no call for empty input")
}
