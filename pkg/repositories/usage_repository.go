package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

// UsageRepository provides append-only storage for usage records.
type UsageRepository interface {
	Save(ctx context.Context, rec *models.UsageRecord) error
	// Totals aggregates a user's records with timestamp >= since.
	Totals(ctx context.Context, userID string, since time.Time) (models.UsageTotals, error)
	// ListByUser returns records in [from, to), oldest first.
	ListByUser(ctx context.Context, userID string, from, to time.Time) ([]*models.UsageRecord, error)
}

type usageRepository struct {
	db Querier
}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository(db Querier) UsageRepository {
	return &usageRepository{db: db}
}

var _ UsageRepository = (*usageRepository)(nil)

func (r *usageRepository) Save(ctx context.Context, rec *models.UsageRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	var metadataJSON []byte
	if rec.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO usage_records (
			id, user_id, model, input_tokens, output_tokens, cost, category, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.UserID, rec.Model, rec.InputTokens, rec.OutputTokens,
		rec.Cost, rec.Category, metadataJSON, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save usage record: %w", err)
	}
	return nil
}

func (r *usageRepository) Totals(ctx context.Context, userID string, since time.Time) (models.UsageTotals, error) {
	query := `
		SELECT COALESCE(SUM(input_tokens + output_tokens), 0)::bigint,
		       COALESCE(SUM(cost), 0)::float8,
		       COUNT(*)
		FROM usage_records
		WHERE user_id = $1 AND created_at >= $2`

	var totals models.UsageTotals
	var calls int64
	if err := r.db.QueryRow(ctx, query, userID, since).Scan(&totals.Tokens, &totals.Cost, &calls); err != nil {
		return models.UsageTotals{}, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	totals.Calls = int(calls)
	return totals, nil
}

func (r *usageRepository) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]*models.UsageRecord, error) {
	query := `
		SELECT id, user_id, model, input_tokens, output_tokens, cost::float8, category, metadata, created_at
		FROM usage_records
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	defer rows.Close()

	var records []*models.UsageRecord
	for rows.Next() {
		rec, err := scanUsageRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage records: %w", err)
	}
	return records, nil
}

func scanUsageRecord(rows pgx.Rows) (*models.UsageRecord, error) {
	var rec models.UsageRecord
	var metadataJSON []byte
	err := rows.Scan(&rec.ID, &rec.UserID, &rec.Model, &rec.InputTokens, &rec.OutputTokens,
		&rec.Cost, &rec.Category, &metadataJSON, &rec.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to scan usage record: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &rec, nil
}
