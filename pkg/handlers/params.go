package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/middleware"
)

// defaultRangeDays is the lookback of usage endpoints without an explicit range.
const defaultRangeDays = 30

// requireUserID returns the caller identity or writes a 401.
func requireUserID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Missing user identity"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return userID, true
}

// parseOptionalUUID parses s, treating an empty string as uuid.Nil.
func parseOptionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

// parseTime accepts RFC 3339 timestamps and plain dates (UTC midnight).
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// ParseTimeRange reads the from/to query parameters. to defaults to now and
// from to defaultRangeDays before to. A date-only to covers that whole day.
// Returns false after writing a 400 on malformed input.
func ParseTimeRange(w http.ResponseWriter, r *http.Request, now time.Time, logger *zap.Logger) (time.Time, time.Time, bool) {
	q := r.URL.Query()

	to := now
	if s := q.Get("to"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			badRequest(w, "invalid_to", "to must be RFC 3339 or YYYY-MM-DD", logger)
			return time.Time{}, time.Time{}, false
		}
		if len(s) == len(time.DateOnly) {
			t = t.AddDate(0, 0, 1)
		}
		to = t
	}

	from := to.AddDate(0, 0, -defaultRangeDays)
	if s := q.Get("from"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			badRequest(w, "invalid_from", "from must be RFC 3339 or YYYY-MM-DD", logger)
			return time.Time{}, time.Time{}, false
		}
		from = t
	}

	if !to.After(from) {
		badRequest(w, "invalid_range", "to must be after from", logger)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// parseIntParam reads a non-negative integer query parameter.
func parseIntParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func badRequest(w http.ResponseWriter, code, message string, logger *zap.Logger) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
