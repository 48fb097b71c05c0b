package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-drafts/pkg/middleware"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
	"github.com/ekaya-inc/ekaya-drafts/pkg/streaming"
)

// maxHistoryTurns bounds the stored history loaded for one request. The
// prompt builder trims further to its token budget.
const maxHistoryTurns = 50

// AssistStreamer starts generations.
type AssistStreamer interface {
	Stream(ctx context.Context, req *streaming.Request) (*streaming.Subscription, error)
	StreamWithQualityScore(ctx context.Context, req *streaming.Request) (*streaming.Subscription, error)
	StreamVariations(ctx context.Context, req *streaming.Request, n int) (*streaming.Subscription, error)
}

var _ AssistStreamer = (*streaming.Orchestrator)(nil)

// ConversationStore loads and appends conversation turns.
type ConversationStore interface {
	Append(ctx context.Context, turn *models.ConversationTurn) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.ConversationTurn, error)
}

// AssistRequest for POST /api/assist/stream.
type AssistRequest struct {
	// ConversationID, when set, loads stored history and records the new
	// turns. Otherwise Messages carries the history.
	ConversationID string               `json:"conversation_id,omitempty"`
	Message        string               `json:"message,omitempty"`
	Messages       []models.ChatMessage `json:"messages,omitempty"`
	Platform       string               `json:"platform,omitempty"`
	Draft          *models.DraftContext `json:"draft,omitempty"`
	Temperature    float64              `json:"temperature,omitempty"`
	QualityGate    bool                 `json:"quality_gate,omitempty"`
	Variations     int                  `json:"variations,omitempty"`
}

// AssistHandler streams assistant responses over Server-Sent Events.
type AssistHandler struct {
	streamer      AssistStreamer
	conversations ConversationStore
	logger        *zap.Logger
}

// NewAssistHandler creates a new assist handler. conversations may be nil,
// in which case conversation_id is rejected.
func NewAssistHandler(streamer AssistStreamer, conversations ConversationStore, logger *zap.Logger) *AssistHandler {
	return &AssistHandler{
		streamer:      streamer,
		conversations: conversations,
		logger:        logger,
	}
}

// RegisterRoutes registers the assist routes on the given mux.
func (h *AssistHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/assist/stream", middleware.RequireUser(h.StreamAssist))
}

// StreamAssist handles POST /api/assist/stream
// This endpoint uses Server-Sent Events (SSE) to stream the response.
// Errors detected before the first token (bad input, quota) are returned as
// regular JSON errors; later failures arrive as the terminal token.
func (h *AssistHandler) StreamAssist(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}

	var req AssistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid_request", "Invalid request body", h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("SSE not supported")
		if err := ErrorResponse(w, http.StatusInternalServerError, "sse_unsupported", "SSE not supported"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	conversationID, err := parseOptionalUUID(req.ConversationID)
	if err != nil {
		badRequest(w, "invalid_conversation_id", "Invalid conversation ID format", h.logger)
		return
	}

	messages, err := h.history(r.Context(), conversationID, req)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	if len(messages) == 0 {
		badRequest(w, "missing_message", "Message is required", h.logger)
		return
	}

	sreq := &streaming.Request{
		UserID:         userID,
		ConversationID: conversationID,
		Messages:       messages,
		Platform:       models.ParsePlatform(req.Platform),
		Draft:          req.Draft,
		Temperature:    req.Temperature,
	}
	if conversationID != uuid.Nil && strings.TrimSpace(req.Message) != "" {
		sreq.OnAccepted = func(ctx context.Context) {
			h.recordUserTurn(ctx, conversationID, req.Message)
		}
	}

	var sub *streaming.Subscription
	switch {
	case req.Variations > 1:
		sreq.ConversationID = uuid.Nil
		sreq.OnAccepted = nil
		sub, err = h.streamer.StreamVariations(r.Context(), sreq, req.Variations)
	case req.QualityGate:
		sub, err = h.streamer.StreamWithQualityScore(r.Context(), sreq)
	default:
		sub, err = h.streamer.Stream(r.Context(), sreq)
	}
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	defer sub.Close()

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case tok, open := <-sub.Tokens():
			if !open {
				return
			}
			data, err := json.Marshal(tok)
			if err != nil {
				h.logger.Error("Failed to marshal token", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				h.logger.Debug("Client went away", zap.String("user_id", userID), zap.Error(err))
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// history assembles the message sequence for req, newest last.
func (h *AssistHandler) history(ctx context.Context, conversationID uuid.UUID, req AssistRequest) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage

	if conversationID != uuid.Nil {
		if h.conversations == nil {
			return nil, fmt.Errorf("%w: conversations are not enabled", apperrors.ErrInvalidInput)
		}
		turns, err := h.conversations.ListByConversation(ctx, conversationID, maxHistoryTurns)
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
		for _, t := range turns {
			messages = append(messages, t.Message())
		}
	} else {
		messages = append(messages, req.Messages...)
	}

	if msg := strings.TrimSpace(req.Message); msg != "" {
		messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: msg})
	}
	return messages, nil
}

func (h *AssistHandler) recordUserTurn(ctx context.Context, conversationID uuid.UUID, content string) {
	err := h.conversations.Append(context.WithoutCancel(ctx), &models.ConversationTurn{
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        strings.TrimSpace(content),
	})
	if err != nil {
		h.logger.Warn("Failed to record user turn",
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err))
	}
}
