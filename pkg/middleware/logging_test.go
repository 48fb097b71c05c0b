package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger_StatusAndLevel(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		wantStatus  int64
		wantLevel   zapcore.Level
		wantMessage string
	}{
		{
			name:        "implicit 200",
			handler:     func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) },
			wantStatus:  http.StatusOK,
			wantLevel:   zapcore.DebugLevel,
			wantMessage: "HTTP request",
		},
		{
			name:        "client error",
			handler:     func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) },
			wantStatus:  http.StatusForbidden,
			wantLevel:   zapcore.DebugLevel,
			wantMessage: "HTTP request",
		},
		{
			name: "duplicate WriteHeader keeps the first",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantStatus:  http.StatusBadRequest,
			wantLevel:   zapcore.DebugLevel,
			wantMessage: "HTTP request",
		},
		{
			name:        "server error",
			handler:     func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			wantStatus:  http.StatusServiceUnavailable,
			wantLevel:   zapcore.WarnLevel,
			wantMessage: "HTTP request failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			RequestLogger(zap.New(core))(tt.handler).
				ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/usage/quota", nil))

			if logs.Len() != 1 {
				t.Fatalf("expected 1 log entry, got %d", logs.Len())
			}
			entry := logs.All()[0]
			if entry.Message != tt.wantMessage {
				t.Errorf("expected message %q, got %q", tt.wantMessage, entry.Message)
			}
			if entry.Level != tt.wantLevel {
				t.Errorf("expected level %s, got %s", tt.wantLevel, entry.Level)
			}
			if got := entry.ContextMap()["status"]; got != tt.wantStatus {
				t.Errorf("expected status %d, got %v", tt.wantStatus, got)
			}
		})
	}
}

func TestRequestLogger_NilLoggerPassesThrough(t *testing.T) {
	called := false
	RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !called {
		t.Error("expected handler to be called")
	}
}

func TestRequestLogger_StreamedResponse(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer does not implement http.Flusher")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, event := range []string{"data: {\"token\":\"Hi\"}\n\n", "data: {\"done\":true}\n\n"} {
			_, _ = w.Write([]byte(event))
			flusher.Flush()
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/assist/stream", nil)
	req.Header.Set(UserIDHeader, "user-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !rec.Flushed {
		t.Error("expected the recorder to be flushed through the wrapper")
	}

	fields := logs.All()[0].ContextMap()
	if got := fields["bytes"]; got != int64(rec.Body.Len()) {
		t.Errorf("expected bytes %d, got %v", rec.Body.Len(), got)
	}
	if got := fields["user_id"]; got != "user-42" {
		t.Errorf("expected user_id field 'user-42', got %v", got)
	}
}

func TestResponseWriter_Unwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	if rw.Unwrap() != rec {
		t.Error("expected Unwrap to return the underlying writer")
	}
}
