package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/middleware"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
	"github.com/ekaya-inc/ekaya-drafts/pkg/quality"
)

// maxCompareResponses bounds a single compare request.
const maxCompareResponses = 20

// ScoreRequest for POST /api/quality/score.
type ScoreRequest struct {
	Response string                 `json:"response"`
	Context  *models.QualityContext `json:"context,omitempty"`
}

// CompareRequest for POST /api/quality/compare.
type CompareRequest struct {
	Responses []string               `json:"responses"`
	Context   *models.QualityContext `json:"context,omitempty"`
}

// QualityHandler exposes the response scorer.
type QualityHandler struct {
	scorer *quality.Scorer
	logger *zap.Logger
}

// NewQualityHandler creates a new quality handler.
func NewQualityHandler(scorer *quality.Scorer, logger *zap.Logger) *QualityHandler {
	return &QualityHandler{scorer: scorer, logger: logger}
}

// RegisterRoutes registers the quality routes on the given mux.
func (h *QualityHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/quality/score", middleware.RequireUser(h.Score))
	mux.HandleFunc("POST /api/quality/compare", middleware.RequireUser(h.Compare))
}

// Score handles POST /api/quality/score
func (h *QualityHandler) Score(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid_request", "Invalid request body", h.logger)
		return
	}
	if strings.TrimSpace(req.Response) == "" {
		badRequest(w, "missing_response", "Response is required", h.logger)
		return
	}
	normalizeContext(req.Context)

	writeOK(w, h.scorer.ScoreResponse(req.Response, req.Context), h.logger)
}

// Compare handles POST /api/quality/compare
func (h *QualityHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid_request", "Invalid request body", h.logger)
		return
	}
	if len(req.Responses) == 0 || len(req.Responses) > maxCompareResponses {
		badRequest(w, "invalid_responses", "Between 1 and 20 responses are required", h.logger)
		return
	}
	normalizeContext(req.Context)

	writeOK(w, h.scorer.CompareResponses(req.Responses, req.Context), h.logger)
}

// normalizeContext maps platform aliases ("x", "newsletter") to their
// canonical names.
func normalizeContext(qc *models.QualityContext) {
	if qc == nil {
		return
	}
	qc.Platform = models.ParsePlatform(string(qc.Platform))
}
