package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
)

// SummaryRepo implements storage.CostSummaryRepository using PostgreSQL.
type SummaryRepo struct {
	db *DB
}

// NewSummaryRepo creates a new PostgreSQL cost summary repository.
func NewSummaryRepo(db *DB) *SummaryRepo {
	return &SummaryRepo{db: db}
}

type summaryRow struct {
	Key              string          `db:"key"`
	AITextCost       decimal.Decimal `db:"ai_text_cost"`
	AIImageCost      decimal.Decimal `db:"ai_image_cost"`
	AITTSCost        decimal.Decimal `db:"ai_tts_cost"`
	ComputeCost      decimal.Decimal `db:"compute_cost"`
	StorageOpsCost   decimal.Decimal `db:"storage_ops_cost"`
	StorageBytesCost decimal.Decimal `db:"storage_bytes_cost"`
	EmailCost        decimal.Decimal `db:"email_cost"`
	QueueCost        decimal.Decimal `db:"queue_cost"`
	OtherCost        decimal.Decimal `db:"other_cost"`
	TotalCost        decimal.Decimal `db:"total_cost"`
	EventCount       int64           `db:"event_count"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

func (r *summaryRow) toTotals() domain.CategoryTotals {
	return domain.CategoryTotals{
		domain.CategoryAIText:       r.AITextCost,
		domain.CategoryAIImage:      r.AIImageCost,
		domain.CategoryAITTS:        r.AITTSCost,
		domain.CategoryCompute:      r.ComputeCost,
		domain.CategoryStorageOps:   r.StorageOpsCost,
		domain.CategoryStorageBytes: r.StorageBytesCost,
		domain.CategoryEmail:        r.EmailCost,
		domain.CategoryQueue:        r.QueueCost,
		domain.CategoryOther:        r.OtherCost,
	}
}

func summaryArgs(totals domain.CategoryTotals) []any {
	return []any{
		totals.Get(domain.CategoryAIText),
		totals.Get(domain.CategoryAIImage),
		totals.Get(domain.CategoryAITTS),
		totals.Get(domain.CategoryCompute),
		totals.Get(domain.CategoryStorageOps),
		totals.Get(domain.CategoryStorageBytes),
		totals.Get(domain.CategoryEmail),
		totals.Get(domain.CategoryQueue),
		totals.Get(domain.CategoryOther),
	}
}

// UpsertEpisode creates or updates the per-episode summary row.
func (r *SummaryRepo) UpsertEpisode(ctx context.Context, s *domain.EpisodeCostSummary) error {
	query := `
		INSERT INTO episode_cost_summaries (
			episode_id, ai_text_cost, ai_image_cost, ai_tts_cost, compute_cost,
			storage_ops_cost, storage_bytes_cost, email_cost, queue_cost, other_cost,
			total_cost, event_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		ON CONFLICT (episode_id) DO UPDATE SET
			ai_text_cost = EXCLUDED.ai_text_cost,
			ai_image_cost = EXCLUDED.ai_image_cost,
			ai_tts_cost = EXCLUDED.ai_tts_cost,
			compute_cost = EXCLUDED.compute_cost,
			storage_ops_cost = EXCLUDED.storage_ops_cost,
			storage_bytes_cost = EXCLUDED.storage_bytes_cost,
			email_cost = EXCLUDED.email_cost,
			queue_cost = EXCLUDED.queue_cost,
			other_cost = EXCLUDED.other_cost,
			total_cost = EXCLUDED.total_cost,
			event_count = EXCLUDED.event_count,
			updated_at = NOW()
	`

	args := append([]any{s.EpisodeID}, summaryArgs(s.Totals)...)
	args = append(args, s.TotalCost, s.EventCount)

	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to upsert episode summary: %w", err)
	}
	return nil
}

// GetEpisode retrieves the summary for an episode, nil if none yet.
func (r *SummaryRepo) GetEpisode(ctx context.Context, episodeID string) (*domain.EpisodeCostSummary, error) {
	query := `
		SELECT episode_id AS key, ai_text_cost, ai_image_cost, ai_tts_cost, compute_cost,
		       storage_ops_cost, storage_bytes_cost, email_cost, queue_cost, other_cost,
		       total_cost, event_count, created_at, updated_at
		FROM episode_cost_summaries
		WHERE episode_id = $1
	`

	var row summaryRow
	err := r.db.GetContext(ctx, &row, query, episodeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get episode summary: %w", err)
	}

	return &domain.EpisodeCostSummary{
		EpisodeID:  row.Key,
		Totals:     row.toTotals(),
		TotalCost:  row.TotalCost,
		EventCount: row.EventCount,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

// UpsertUser creates or updates the per-user summary row.
func (r *SummaryRepo) UpsertUser(ctx context.Context, s *domain.UserCostSummary) error {
	query := `
		INSERT INTO user_cost_summaries (
			user_id, ai_text_cost, ai_image_cost, ai_tts_cost, compute_cost,
			storage_ops_cost, storage_bytes_cost, email_cost, queue_cost, other_cost,
			total_cost, event_count, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			ai_text_cost = EXCLUDED.ai_text_cost,
			ai_image_cost = EXCLUDED.ai_image_cost,
			ai_tts_cost = EXCLUDED.ai_tts_cost,
			compute_cost = EXCLUDED.compute_cost,
			storage_ops_cost = EXCLUDED.storage_ops_cost,
			storage_bytes_cost = EXCLUDED.storage_bytes_cost,
			email_cost = EXCLUDED.email_cost,
			queue_cost = EXCLUDED.queue_cost,
			other_cost = EXCLUDED.other_cost,
			total_cost = EXCLUDED.total_cost,
			event_count = EXCLUDED.event_count,
			updated_at = NOW()
	`

	args := append([]any{s.UserID}, summaryArgs(s.Totals)...)
	args = append(args, s.TotalCost, s.EventCount)

	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to upsert user summary: %w", err)
	}
	return nil
}

// GetUser retrieves the summary for a user, nil if none yet.
func (r *SummaryRepo) GetUser(ctx context.Context, userID string) (*domain.UserCostSummary, error) {
	query := `
		SELECT user_id AS key, ai_text_cost, ai_image_cost, ai_tts_cost, compute_cost,
		       storage_ops_cost, storage_bytes_cost, email_cost, queue_cost, other_cost,
		       total_cost, event_count, updated_at AS created_at, updated_at
		FROM user_cost_summaries
		WHERE user_id = $1
	`

	var row summaryRow
	err := r.db.GetContext(ctx, &row, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user summary: %w", err)
	}

	return &domain.UserCostSummary{
		UserID:     row.Key,
		Totals:     row.toTotals(),
		TotalCost:  row.TotalCost,
		EventCount: row.EventCount,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}
