package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
)

// ProcessingLogRepo implements storage.ProcessingLogRepository using PostgreSQL.
type ProcessingLogRepo struct {
	db *DB
}

// NewProcessingLogRepo creates a new PostgreSQL processing log repository.
func NewProcessingLogRepo(db *DB) *ProcessingLogRepo {
	return &ProcessingLogRepo{db: db}
}

type processingLogRow struct {
	ID          string     `db:"id"`
	EpisodeID   string     `db:"episode_id"`
	Stage       string     `db:"stage"`
	Attempt     int        `db:"attempt"`
	Status      string     `db:"status"`
	StartedAt   time.Time  `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"` // Nullable
	DurationMS  *int64     `db:"duration_ms"`  // Nullable
	ErrorCode   *string    `db:"error_code"`   // Nullable
	ErrorDetail *string    `db:"error_detail"` // Nullable
	CreatedAt   time.Time  `db:"created_at"`
}

func (r *processingLogRow) toDomain() *domain.ProcessingLog {
	l := &domain.ProcessingLog{
		ID:          r.ID,
		EpisodeID:   r.EpisodeID,
		Stage:       domain.Stage(r.Stage),
		Attempt:     r.Attempt,
		Status:      domain.LogStatus(r.Status),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		DurationMS:  r.DurationMS,
		CreatedAt:   r.CreatedAt,
	}
	if r.ErrorCode != nil {
		l.ErrorCode = *r.ErrorCode
	}
	if r.ErrorDetail != nil {
		l.ErrorDetail = *r.ErrorDetail
	}
	return l
}

// Insert appends a processing log entry.
func (r *ProcessingLogRepo) Insert(ctx context.Context, l *domain.ProcessingLog) error {
	query := `
		INSERT INTO processing_logs (
			id, episode_id, stage, attempt, status, started_at,
			completed_at, duration_ms, error_code, error_detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.EpisodeID, string(l.Stage), l.Attempt, string(l.Status),
		l.StartedAt, l.CompletedAt, l.DurationMS,
		nullStr(l.ErrorCode), nullStr(l.ErrorDetail), l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert processing log: %w", err)
	}
	return nil
}

// FindOpen retrieves the most recent started entry for the (episode, stage)
// pair, nil if none is open.
func (r *ProcessingLogRepo) FindOpen(ctx context.Context, episodeID string, stage domain.Stage) (*domain.ProcessingLog, error) {
	query := `
		SELECT id, episode_id, stage, attempt, status, started_at,
		       completed_at, duration_ms, error_code, error_detail, created_at
		FROM processing_logs
		WHERE episode_id = $1 AND stage = $2 AND status = 'started'
		ORDER BY created_at DESC
		LIMIT 1
	`

	var row processingLogRow
	err := r.db.GetContext(ctx, &row, query, episodeID, string(stage))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open processing log: %w", err)
	}

	return row.toDomain(), nil
}

// Finalize patches an entry in place with its terminal state.
func (r *ProcessingLogRepo) Finalize(ctx context.Context, l *domain.ProcessingLog) error {
	query := `
		UPDATE processing_logs
		SET status = $1, completed_at = $2, duration_ms = $3, error_code = $4, error_detail = $5
		WHERE id = $6
	`
	_, err := r.db.ExecContext(ctx, query,
		string(l.Status), l.CompletedAt, l.DurationMS,
		nullStr(l.ErrorCode), nullStr(l.ErrorDetail), l.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize processing log: %w", err)
	}
	return nil
}

// ListByEpisode retrieves all entries for an episode, oldest first.
func (r *ProcessingLogRepo) ListByEpisode(ctx context.Context, episodeID string) ([]*domain.ProcessingLog, error) {
	query := `
		SELECT id, episode_id, stage, attempt, status, started_at,
		       completed_at, duration_ms, error_code, error_detail, created_at
		FROM processing_logs
		WHERE episode_id = $1
		ORDER BY created_at ASC
	`

	var rows []processingLogRow
	err := r.db.SelectContext(ctx, &rows, query, episodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing logs: %w", err)
	}

	var logs []*domain.ProcessingLog
	for i := range rows {
		logs = append(logs, rows[i].toDomain())
	}
	return logs, nil
}

// CountAttempts counts entries for the (episode, stage) pair.
func (r *ProcessingLogRepo) CountAttempts(ctx context.Context, episodeID string, stage domain.Stage) (int, error) {
	query := `SELECT COUNT(*) FROM processing_logs WHERE episode_id = $1 AND stage = $2`

	var count int
	err := r.db.GetContext(ctx, &count, query, episodeID, string(stage))
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}
