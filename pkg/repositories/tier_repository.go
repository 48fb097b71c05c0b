package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-drafts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

// TierRepository reads and assigns subscription tiers.
type TierRepository interface {
	// GetTier returns apperrors.ErrNotFound when the user has no assignment.
	GetTier(ctx context.Context, userID string) (models.Tier, error)
	SetTier(ctx context.Context, userID string, tier models.Tier) error
}

type tierRepository struct {
	db Querier
}

// NewTierRepository creates a new TierRepository.
func NewTierRepository(db Querier) TierRepository {
	return &tierRepository{db: db}
}

var _ TierRepository = (*tierRepository)(nil)

func (r *tierRepository) GetTier(ctx context.Context, userID string) (models.Tier, error) {
	var tier string
	err := r.db.QueryRow(ctx, `SELECT tier FROM user_tiers WHERE user_id = $1`, userID).Scan(&tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperrors.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get tier: %w", err)
	}
	return models.Tier(tier), nil
}

func (r *tierRepository) SetTier(ctx context.Context, userID string, tier models.Tier) error {
	if !tier.IsValid() {
		return fmt.Errorf("%w: unknown tier %q", apperrors.ErrInvalidInput, tier)
	}

	query := `
		INSERT INTO user_tiers (user_id, tier, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET tier = EXCLUDED.tier, updated_at = now()`

	if _, err := r.db.Exec(ctx, query, userID, string(tier)); err != nil {
		return fmt.Errorf("failed to set tier: %w", err)
	}
	return nil
}
