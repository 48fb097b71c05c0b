package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/mcp"
	"github.com/ekaya-inc/ekaya-drafts/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-drafts/pkg/middleware"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
	"github.com/ekaya-inc/ekaya-drafts/pkg/quality"
)

type recordingQuotas struct {
	userID string
}

func (r *recordingQuotas) CheckQuotas(_ context.Context, userID string, _ int64) (*models.QuotaCheck, error) {
	r.userID = userID
	return &models.QuotaCheck{Allowed: true, Tier: models.TierFree}, nil
}

func newMCPMux(quotas tools.QuotaChecker) *http.ServeMux {
	mcpServer := mcp.NewServer("test", "1.0.0")
	tools.RegisterQualityTools(mcpServer.MCP(), quality.NewScorer())
	tools.RegisterQuotaTool(mcpServer.MCP(), quotas)

	mux := http.NewServeMux()
	NewMCPHandler(mcpServer, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func postMCP(mux *http.ServeMux, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestMCPHandler_ToolsList(t *testing.T) {
	rec := postMCP(newMCPMux(&recordingQuotas{}), "user-1", `{"jsonrpc":"2.0","method":"tools/list","id":1}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var response map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "2.0", response["jsonrpc"])
	assert.Equal(t, float64(1), response["id"])
}

func TestMCPHandler_QuotaToolSeesCaller(t *testing.T) {
	quotas := &recordingQuotas{}
	rec := postMCP(newMCPMux(quotas), "user-42",
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"check_quota","arguments":{"estimated_tokens":10}},"id":1}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", quotas.userID)
}

func TestMCPHandler_Rejections(t *testing.T) {
	mux := newMCPMux(&recordingQuotas{})

	rec := postMCP(mux, "", `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(middleware.UserIDHeader, "user-1")
	get := httptest.NewRecorder()
	mux.ServeHTTP(get, req)
	assert.Equal(t, http.StatusMethodNotAllowed, get.Code)
	assert.Equal(t, "POST", get.Header().Get("Allow"))
}
