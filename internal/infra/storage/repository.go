package storage

import (
	"context"
	"errors"
	"time"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
)

var (
	// ErrEpisodeNotFound is returned when an episode doesn't exist
	ErrEpisodeNotFound = errors.New("episode not found")

	// ErrPriceNotFound is returned when no pricing row covers the
	// requested service and timestamp
	ErrPriceNotFound = errors.New("price not found")
)

// EpisodeRepository handles episode storage operations
type EpisodeRepository interface {
	// Create inserts a new episode
	Create(ctx context.Context, ep *domain.Episode) error

	// GetByID retrieves an episode by ID
	GetByID(ctx context.Context, id string) (*domain.Episode, error)

	// List retrieves recent episodes, newest first
	List(ctx context.Context, limit int) ([]*domain.Episode, error)

	// UpdateStatus updates the episode's overall status
	UpdateStatus(ctx context.Context, id string, status domain.EpisodeStatus) error

	// SetCurrentStage updates the denormalized current-stage pointer
	SetCurrentStage(ctx context.Context, id string, stage domain.Stage) error

	// SetProcessingStartedAt sets the processing-start timestamp only if
	// it is currently unset (first stage wins)
	SetProcessingStartedAt(ctx context.Context, id string, t time.Time) error
}

// CostEventRepository handles the append-only cost event log
type CostEventRepository interface {
	// Insert appends one immutable cost event
	Insert(ctx context.Context, ev *domain.CostEvent) error

	// ListByEpisode retrieves all events for an episode, oldest first
	ListByEpisode(ctx context.Context, episodeID string) ([]*domain.CostEvent, error)

	// SumByCategoryForEpisode sums events for an episode grouped by category
	SumByCategoryForEpisode(ctx context.Context, episodeID string) (domain.CategoryTotals, int64, error)

	// SumByCategoryForUser sums events for a user grouped by category
	SumByCategoryForUser(ctx context.Context, userID string) (domain.CategoryTotals, int64, error)

	// ListUserIDs returns distinct user IDs that have cost events
	ListUserIDs(ctx context.Context) ([]string, error)

	// DailyUsage returns per-service totals for one day (YYYY-MM-DD, UTC)
	DailyUsage(ctx context.Context, day string) ([]*domain.DailyUsageRow, error)
}

// CostSummaryRepository handles rolled-up cost summaries
type CostSummaryRepository interface {
	// UpsertEpisode creates or updates the per-episode summary row
	UpsertEpisode(ctx context.Context, s *domain.EpisodeCostSummary) error

	// GetEpisode retrieves the summary for an episode, nil if none yet
	GetEpisode(ctx context.Context, episodeID string) (*domain.EpisodeCostSummary, error)

	// UpsertUser creates or updates the per-user summary row
	UpsertUser(ctx context.Context, s *domain.UserCostSummary) error

	// GetUser retrieves the summary for a user, nil if none yet
	GetUser(ctx context.Context, userID string) (*domain.UserCostSummary, error)
}

// ProcessingLogRepository handles stage processing logs
type ProcessingLogRepository interface {
	// Insert appends a processing log entry
	Insert(ctx context.Context, l *domain.ProcessingLog) error

	// FindOpen retrieves the most recent started entry for the
	// (episode, stage) pair, nil if none is open
	FindOpen(ctx context.Context, episodeID string, stage domain.Stage) (*domain.ProcessingLog, error)

	// Finalize patches an entry in place with its terminal state
	Finalize(ctx context.Context, l *domain.ProcessingLog) error

	// ListByEpisode retrieves all entries for an episode, oldest first
	ListByEpisode(ctx context.Context, episodeID string) ([]*domain.ProcessingLog, error)

	// CountAttempts counts entries for the (episode, stage) pair
	CountAttempts(ctx context.Context, episodeID string, stage domain.Stage) (int, error)
}

// PriceRepository is the read-only pricing table lookup
type PriceRepository interface {
	// GetEffective retrieves the price for a service valid at the given
	// time; returns ErrPriceNotFound when no window matches
	GetEffective(ctx context.Context, service string, at time.Time) (*domain.ServicePrice, error)

	// List retrieves all pricing rows
	List(ctx context.Context) ([]*domain.ServicePrice, error)
}
