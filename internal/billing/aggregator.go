package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage"
	"github.com/NehoraiHadad/podcasto-engine/internal/metrics"
)

// Aggregator folds cost events into summary rows. Source events are
// immutable and summation is commutative, so every pass is idempotent:
// re-running produces identical totals.
type Aggregator struct {
	events    storage.CostEventRepository
	summaries storage.CostSummaryRepository
	log       *slog.Logger
}

// NewAggregator creates a cost aggregator.
func NewAggregator(
	events storage.CostEventRepository,
	summaries storage.CostSummaryRepository,
) *Aggregator {
	return &Aggregator{
		events:    events,
		summaries: summaries,
		log:       slog.Default().With("component", "billing"),
	}
}

// AggregateForEpisode sums all events for the episode grouped by category and
// upserts the per-episode summary row.
func (a *Aggregator) AggregateForEpisode(ctx context.Context, episodeID string) (*domain.EpisodeCostSummary, error) {
	totals, count, err := a.events.SumByCategoryForEpisode(ctx, episodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum events for episode %s: %w", episodeID, err)
	}

	summary := &domain.EpisodeCostSummary{
		EpisodeID:  episodeID,
		Totals:     totals,
		TotalCost:  totals.Total(),
		EventCount: count,
	}

	if err := a.summaries.UpsertEpisode(ctx, summary); err != nil {
		return nil, fmt.Errorf("failed to upsert episode summary: %w", err)
	}

	metrics.AggregationRuns.WithLabelValues("episode").Inc()
	return summary, nil
}

// AggregateForUser sums all events for the user grouped by category and
// upserts the per-user summary row.
func (a *Aggregator) AggregateForUser(ctx context.Context, userID string) (*domain.UserCostSummary, error) {
	totals, count, err := a.events.SumByCategoryForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum events for user %s: %w", userID, err)
	}

	summary := &domain.UserCostSummary{
		UserID:     userID,
		Totals:     totals,
		TotalCost:  totals.Total(),
		EventCount: count,
	}

	if err := a.summaries.UpsertUser(ctx, summary); err != nil {
		return nil, fmt.Errorf("failed to upsert user summary: %w", err)
	}

	metrics.AggregationRuns.WithLabelValues("user").Inc()
	return summary, nil
}
