package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
	"github.com/ekaya-inc/ekaya-drafts/pkg/quality"
)

// MaxCompareResponses bounds a single compare_responses call.
const MaxCompareResponses = 20

func contextOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString(
			"platform",
			mcp.Description("Optional - Target platform: twitter (or x), linkedin, instagram, facebook, email, blog"),
		),
		mcp.WithString(
			"prompt",
			mcp.Description("Optional - The request the response answers; used for relevance"),
		),
		mcp.WithString(
			"target_audience",
			mcp.Description("Optional - Intended audience (e.g., 'technical', 'executives')"),
		),
		mcp.WithArray(
			"goals",
			mcp.Description("Optional - Content goals: engagement, conversion, awareness"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	}
}

// qualityContext reads the optional scoring context arguments. It returns
// nil when none are set.
func qualityContext(req mcp.CallToolRequest) (*models.QualityContext, error) {
	goals, err := getStringArray(req, "goals")
	if err != nil {
		return nil, err
	}
	qc := &models.QualityContext{
		Platform:       models.ParsePlatform(getOptionalString(req, "platform")),
		Prompt:         strings.TrimSpace(getOptionalString(req, "prompt")),
		TargetAudience: strings.TrimSpace(getOptionalString(req, "target_audience")),
	}
	for _, g := range goals {
		qc.Goals = append(qc.Goals, models.Goal(strings.ToLower(strings.TrimSpace(g))))
	}
	if qc.Platform == models.PlatformNone && qc.Prompt == "" && qc.TargetAudience == "" && len(qc.Goals) == 0 {
		return nil, nil
	}
	return qc, nil
}

// RegisterQualityTools adds score_response and compare_responses.
func RegisterQualityTools(s *server.MCPServer, scorer *quality.Scorer) {
	scoreOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Scores a drafted response on eight quality dimensions and returns strengths, weaknesses and suggestions"),
		mcp.WithString(
			"response",
			mcp.Required(),
			mcp.Description("The response text to score"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	}, contextOptions()...)

	s.AddTool(mcp.NewTool("score_response", scoreOpts...), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		response, err := req.RequireString("response")
		if err != nil || strings.TrimSpace(response) == "" {
			return NewErrorResult("invalid_parameters", "response is required"), nil
		}
		qc, err := qualityContext(req)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		return jsonResult(scorer.ScoreResponse(response, qc))
	})

	compareOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Scores several candidate responses and ranks them best first"),
		mcp.WithArray(
			"responses",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Candidate responses, 1 to %d", MaxCompareResponses)),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	}, contextOptions()...)

	s.AddTool(mcp.NewTool("compare_responses", compareOpts...), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		responses, err := getStringArray(req, "responses")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if len(responses) == 0 || len(responses) > MaxCompareResponses {
			return NewErrorResult("invalid_parameters",
				fmt.Sprintf("between 1 and %d responses are required, got %d", MaxCompareResponses, len(responses))), nil
		}
		qc, err := qualityContext(req)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		return jsonResult(scorer.CompareResponses(responses, qc))
	})
}
