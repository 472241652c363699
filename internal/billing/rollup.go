package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage"
)

// RollupWorker periodically recomputes user cost summaries from the event
// log. User summaries are eventually consistent by design; they are not
// updated on every event.
type RollupWorker struct {
	interval   time.Duration
	events     storage.CostEventRepository
	aggregator *Aggregator
	log        *slog.Logger
}

// NewRollupWorker creates the user summary rollup job.
func NewRollupWorker(
	interval time.Duration,
	events storage.CostEventRepository,
	aggregator *Aggregator,
) *RollupWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &RollupWorker{
		interval:   interval,
		events:     events,
		aggregator: aggregator,
		log:        slog.Default().With("component", "rollup"),
	}
}

// Start runs the rollup loop until the context is cancelled.
func (w *RollupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Initial pass
	w.rollup(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.rollup(ctx)
		}
	}
}

func (w *RollupWorker) rollup(ctx context.Context) {
	userIDs, err := w.events.ListUserIDs(ctx)
	if err != nil {
		w.log.Error("Failed to list users for rollup", "error", err)
		return
	}

	for _, userID := range userIDs {
		if _, err := w.aggregator.AggregateForUser(ctx, userID); err != nil {
			w.log.Error("Failed to roll up user costs", "user_id", userID, "error", err)
		}
	}

	if len(userIDs) > 0 {
		w.log.Debug("User cost rollup complete", "users", len(userIDs))
	}
}
