package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/middleware"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
	"github.com/ekaya-inc/ekaya-drafts/pkg/services"
)

// UsageHandler exposes quota state and usage reporting.
type UsageHandler struct {
	ledger services.UsageLedger
	logger *zap.Logger
	now    func() time.Time
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(ledger services.UsageLedger, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{ledger: ledger, logger: logger, now: time.Now}
}

// RegisterRoutes registers the usage routes on the given mux.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/usage"
	mux.HandleFunc("GET "+base+"/quota", middleware.RequireUser(h.Quota))
	mux.HandleFunc("GET "+base+"/analytics", middleware.RequireUser(h.Analytics))
	mux.HandleFunc("GET "+base+"/projection", middleware.RequireUser(h.Projection))
	mux.HandleFunc("GET "+base+"/export", middleware.RequireUser(h.Export))
}

// Quota handles GET /api/usage/quota?estimated_tokens=N
func (h *UsageHandler) Quota(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}
	estimated, err := parseIntParam(r, "estimated_tokens", 0)
	if err != nil {
		badRequest(w, "invalid_estimated_tokens", err.Error(), h.logger)
		return
	}

	check, err := h.ledger.CheckQuotas(r.Context(), userID, int64(estimated))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeOK(w, check, h.logger)
}

// Analytics handles GET /api/usage/analytics?from=&to=&top=
func (h *UsageHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}
	from, to, ok := ParseTimeRange(w, r, h.now(), h.logger)
	if !ok {
		return
	}
	top, err := parseIntParam(r, "top", services.DefaultTopCostly)
	if err != nil {
		badRequest(w, "invalid_top", err.Error(), h.logger)
		return
	}

	analytics, err := h.ledger.GetUsageAnalytics(r.Context(), userID, from, to, top)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeOK(w, analytics, h.logger)
}

// Projection handles GET /api/usage/projection
func (h *UsageHandler) Projection(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}

	projection, err := h.ledger.GetCostProjection(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeOK(w, projection, h.logger)
}

// Export handles GET /api/usage/export?format=csv|json&from=&to=
func (h *UsageHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}
	from, to, ok := ParseTimeRange(w, r, h.now(), h.logger)
	if !ok {
		return
	}

	format := models.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = models.ExportCSV
	}

	data, err := h.ledger.ExportUsageData(r.Context(), userID, from, to, format)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == models.ExportJSON {
		contentType = "application/json"
	}
	filename := fmt.Sprintf("usage-%s-%s.%s", from.UTC().Format(time.DateOnly), to.UTC().Format(time.DateOnly), format)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("Failed to write export", zap.Error(err))
	}
}
