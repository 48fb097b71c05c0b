package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ChatMessage is a role/content pair sent to the model provider.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationTurn is one recorded exchange unit. Turns are append-only:
// a regenerated response becomes a new turn, history is never edited.
type ConversationTurn struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// Message returns the turn as a provider message.
func (t *ConversationTurn) Message() ChatMessage {
	return ChatMessage{Role: t.Role, Content: t.Content}
}

// DraftContext describes the draft the user is working on, if any.
type DraftContext struct {
	Title    string   `json:"title,omitempty"`
	Content  string   `json:"content,omitempty"`
	Platform Platform `json:"platform,omitempty"`
	Audience string   `json:"audience,omitempty"`
	Goals    []Goal   `json:"goals,omitempty"`
}
