package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

// ConversationRepository stores conversation turns. Turns are append-only.
type ConversationRepository interface {
	Append(ctx context.Context, turn *models.ConversationTurn) error
	// ListByConversation returns up to limit of the most recent turns,
	// oldest first. A limit <= 0 returns every turn.
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.ConversationTurn, error)
}

type conversationRepository struct {
	db Querier
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(db Querier) ConversationRepository {
	return &conversationRepository{db: db}
}

var _ ConversationRepository = (*conversationRepository)(nil)

func (r *conversationRepository) Append(ctx context.Context, turn *models.ConversationTurn) error {
	if !turn.Role.IsValid() {
		return fmt.Errorf("invalid role %q", turn.Role)
	}
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	query := `
		INSERT INTO conversation_turns (id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, turn.ID, turn.ConversationID, string(turn.Role), turn.Content, turn.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append conversation turn: %w", err)
	}
	return nil
}

func (r *conversationRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.ConversationTurn, error) {
	query := `
		SELECT id, conversation_id, role, content, created_at FROM (
			SELECT id, conversation_id, role, content, created_at, seq
			FROM conversation_turns
			WHERE conversation_id = $1
			ORDER BY seq DESC
			LIMIT NULLIF($2, 0)
		) recent
		ORDER BY seq ASC`

	if limit < 0 {
		limit = 0
	}

	rows, err := r.db.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation turns: %w", err)
	}
	defer rows.Close()

	var turns []*models.ConversationTurn
	for rows.Next() {
		var turn models.ConversationTurn
		var role string
		if err := rows.Scan(&turn.ID, &turn.ConversationID, &role, &turn.Content, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan conversation turn: %w", err)
		}
		turn.Role = models.Role(role)
		turns = append(turns, &turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation turns: %w", err)
	}
	return turns, nil
}
