package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/config"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string             `json:"status"`
	Version     string             `json:"version"`
	Service     string             `json:"service"`
	GoVersion   string             `json:"go_version"`
	Hostname    string             `json:"hostname"`
	Environment string             `json:"environment"`
	Cache       *models.CacheStats `json:"cache,omitempty"`
}

// ReadyResponse reports the state of each dependency.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Checker probes one dependency.
type Checker func(ctx context.Context) error

// CacheStatsFunc reports response cache statistics.
type CacheStatsFunc func() models.CacheStats

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg        *config.Config
	checks     map[string]Checker
	cacheStats CacheStatsFunc
	logger     *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. checks are probed by /ready;
// cacheStats may be nil.
func NewHealthHandler(cfg *config.Config, checks map[string]Checker, cacheStats CacheStatsFunc, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, checks: checks, cacheStats: cacheStats, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
// Returns a simple "ok" status for liveness probes.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready handles GET /ready. It returns 503 when any dependency check fails.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := ReadyResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode ready response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-drafts",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}
	if h.cacheStats != nil {
		stats := h.cacheStats()
		response.Cache = &stats
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
