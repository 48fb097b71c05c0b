package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-drafts/pkg/middleware"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

// QuotaChecker is the part of the usage ledger the quota tool needs.
type QuotaChecker interface {
	CheckQuotas(ctx context.Context, userID string, estimatedTokens int64) (*models.QuotaCheck, error)
}

// RegisterQuotaTool adds check_quota. The caller identity comes from the
// request context, never from tool arguments.
func RegisterQuotaTool(s *server.MCPServer, quotas QuotaChecker) {
	tool := mcp.NewTool(
		"check_quota",
		mcp.WithDescription("Reports whether the caller can spend the estimated tokens now, with current usage and tier limits"),
		mcp.WithNumber(
			"estimated_tokens",
			mcp.Description("Optional - Tokens the next request is expected to use (default: 0)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			return NewErrorResult("unauthorized", "no caller identity"), nil
		}
		estimated, _ := getOptionalFloat(req, "estimated_tokens")
		if estimated < 0 {
			return NewErrorResult("invalid_parameters", "estimated_tokens must not be negative"), nil
		}

		check, err := quotas.CheckQuotas(ctx, userID, int64(estimated))
		if err != nil {
			return nil, fmt.Errorf("failed to check quotas: %w", err)
		}
		return jsonResult(check)
	})
}
