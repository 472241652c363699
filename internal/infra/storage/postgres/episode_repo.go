package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage"
)

// EpisodeRepo implements storage.EpisodeRepository using PostgreSQL.
type EpisodeRepo struct {
	db *DB
}

// NewEpisodeRepo creates a new PostgreSQL episode repository.
func NewEpisodeRepo(db *DB) *EpisodeRepo {
	return &EpisodeRepo{db: db}
}

type episodeRow struct {
	ID                  string     `db:"id"`
	PodcastID           string     `db:"podcast_id"`
	UserID              string     `db:"user_id"`
	Title               string     `db:"title"`
	Status              string     `db:"status"`
	CurrentStage        *string    `db:"current_stage"` // Nullable
	ProcessingStartedAt *time.Time `db:"processing_started_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

func (r *episodeRow) toDomain() *domain.Episode {
	ep := &domain.Episode{
		ID:                  r.ID,
		PodcastID:           r.PodcastID,
		UserID:              r.UserID,
		Title:               r.Title,
		Status:              domain.EpisodeStatus(r.Status),
		ProcessingStartedAt: r.ProcessingStartedAt,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
	if r.CurrentStage != nil {
		ep.CurrentStage = domain.Stage(*r.CurrentStage)
	}
	return ep
}

// Create inserts a new episode.
func (r *EpisodeRepo) Create(ctx context.Context, ep *domain.Episode) error {
	query := `
		INSERT INTO episodes (
			id, podcast_id, user_id, title, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		ep.ID, ep.PodcastID, ep.UserID, ep.Title, string(ep.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to create episode: %w", err)
	}
	return nil
}

// GetByID retrieves an episode by ID.
func (r *EpisodeRepo) GetByID(ctx context.Context, id string) (*domain.Episode, error) {
	query := `
		SELECT id, podcast_id, user_id, title, status, current_stage, processing_started_at, created_at, updated_at
		FROM episodes
		WHERE id = $1
	`

	var row episodeRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrEpisodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}

	return row.toDomain(), nil
}

// List retrieves recent episodes, newest first.
func (r *EpisodeRepo) List(ctx context.Context, limit int) ([]*domain.Episode, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, podcast_id, user_id, title, status, current_stage, processing_started_at, created_at, updated_at
		FROM episodes
		ORDER BY created_at DESC
		LIMIT $1
	`

	var rows []episodeRow
	err := r.db.SelectContext(ctx, &rows, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}

	var eps []*domain.Episode
	for i := range rows {
		eps = append(eps, rows[i].toDomain())
	}
	return eps, nil
}

// UpdateStatus updates the episode's overall status.
func (r *EpisodeRepo) UpdateStatus(ctx context.Context, id string, status domain.EpisodeStatus) error {
	query := `UPDATE episodes SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, string(status), id)
	return err
}

// SetCurrentStage updates the denormalized current-stage pointer.
func (r *EpisodeRepo) SetCurrentStage(ctx context.Context, id string, stage domain.Stage) error {
	query := `UPDATE episodes SET current_stage = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, string(stage), id)
	return err
}

// SetProcessingStartedAt sets the processing-start timestamp only if unset.
func (r *EpisodeRepo) SetProcessingStartedAt(ctx context.Context, id string, t time.Time) error {
	query := `
		UPDATE episodes SET processing_started_at = $1, updated_at = NOW()
		WHERE id = $2 AND processing_started_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, t, id)
	return err
}
