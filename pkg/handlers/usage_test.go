package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-drafts/pkg/middleware"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
	"github.com/ekaya-inc/ekaya-drafts/pkg/services"
)

// stubLedger records the arguments of the last call.
type stubLedger struct {
	services.UsageLedger

	userID    string
	estimated int64
	from, to  time.Time
	topN      int
	format    models.ExportFormat
	err       error
}

func (s *stubLedger) CheckQuotas(_ context.Context, userID string, est int64) (*models.QuotaCheck, error) {
	s.userID, s.estimated = userID, est
	if s.err != nil {
		return nil, s.err
	}
	return &models.QuotaCheck{Allowed: true, Tier: models.TierFree}, nil
}

func (s *stubLedger) GetUsageAnalytics(_ context.Context, userID string, from, to time.Time, topN int) (*models.UsageAnalytics, error) {
	s.userID, s.from, s.to, s.topN = userID, from, to, topN
	return &models.UsageAnalytics{UserID: userID, From: from, To: to}, s.err
}

func (s *stubLedger) GetCostProjection(_ context.Context, userID string) (*models.CostProjection, error) {
	s.userID = userID
	return &models.CostProjection{UserID: userID, Trend: models.TrendStable}, s.err
}

func (s *stubLedger) ExportUsageData(_ context.Context, userID string, from, to time.Time, format models.ExportFormat) ([]byte, error) {
	s.userID, s.from, s.to, s.format = userID, from, to, format
	if s.err != nil {
		return nil, s.err
	}
	if format != models.ExportCSV && format != models.ExportJSON {
		return nil, apperrors.ErrInvalidInput
	}
	return []byte("id,timestamp\n"), nil
}

func getUsage(t *testing.T, ledger *stubLedger, target string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewUsageHandler(ledger, zap.NewNop())
	h.now = func() time.Time { return time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC) }
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set(middleware.UserIDHeader, "user-7")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestUsageHandler_Quota(t *testing.T) {
	ledger := &stubLedger{}
	rec := getUsage(t, ledger, "/api/usage/quota?estimated_tokens=250")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-7", ledger.userID)
	assert.Equal(t, int64(250), ledger.estimated)

	var resp struct {
		Data models.QuotaCheck `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Data.Allowed)
}

func TestUsageHandler_QuotaRejectsBadEstimate(t *testing.T) {
	rec := getUsage(t, &stubLedger{}, "/api/usage/quota?estimated_tokens=-3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsageHandler_Analytics(t *testing.T) {
	ledger := &stubLedger{}
	rec := getUsage(t, ledger, "/api/usage/analytics?from=2026-05-01&to=2026-05-10&top=3")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), ledger.from)
	assert.Equal(t, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC), ledger.to)
	assert.Equal(t, 3, ledger.topN)
}

func TestUsageHandler_AnalyticsDefaults(t *testing.T) {
	ledger := &stubLedger{}
	rec := getUsage(t, ledger, "/api/usage/analytics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.DefaultTopCostly, ledger.topN)
	assert.Equal(t, 30*24*time.Hour, ledger.to.Sub(ledger.from))
}

func TestUsageHandler_Projection(t *testing.T) {
	rec := getUsage(t, &stubLedger{}, "/api/usage/projection")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data models.CostProjection `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "user-7", resp.Data.UserID)
}

func TestUsageHandler_Export(t *testing.T) {
	ledger := &stubLedger{}
	rec := getUsage(t, ledger, "/api/usage/export?from=2026-05-01&to=2026-05-10")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ExportCSV, ledger.format)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="usage-2026-05-01-2026-05-11.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "id,timestamp\n", rec.Body.String())
}

func TestUsageHandler_ExportUnknownFormat(t *testing.T) {
	rec := getUsage(t, &stubLedger{}, "/api/usage/export?format=xml")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsageHandler_LedgerError(t *testing.T) {
	rec := getUsage(t, &stubLedger{err: errors.New("db down")}, "/api/usage/quota")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
