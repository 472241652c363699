package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage"
	"github.com/NehoraiHadad/podcasto-engine/internal/metrics"
)

// EventInput describes one billable action to record.
type EventInput struct {
	Service    string
	Quantity   decimal.Decimal
	Unit       string
	EpisodeID  string
	PodcastID  string
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time // zero = now
}

// Recorder writes immutable cost events, pricing them from the time-windowed
// pricing table at event time.
type Recorder struct {
	events            storage.CostEventRepository
	prices            storage.PriceRepository
	allowMissingPrice bool
	log               *slog.Logger
}

// NewRecorder creates a cost event recorder. When allowMissingPrice is set,
// services without a pricing row are recorded at zero cost instead of
// returning ErrPriceNotFound.
func NewRecorder(
	events storage.CostEventRepository,
	prices storage.PriceRepository,
	allowMissingPrice bool,
) *Recorder {
	return &Recorder{
		events:            events,
		prices:            prices,
		allowMissingPrice: allowMissingPrice,
		log:               slog.Default().With("component", "billing"),
	}
}

// RecordEvent prices and appends one cost event.
func (r *Recorder) RecordEvent(ctx context.Context, in EventInput) (*domain.CostEvent, error) {
	if in.Service == "" {
		return nil, errors.New("service is required")
	}

	at := in.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	unitPrice := decimal.Zero
	unit := in.Unit
	price, err := r.prices.GetEffective(ctx, in.Service, at)
	switch {
	case err == nil:
		unitPrice = price.UnitPrice
		if unit == "" {
			unit = price.Unit
		}
	case errors.Is(err, storage.ErrPriceNotFound):
		if !r.allowMissingPrice {
			metrics.CostEventErrors.WithLabelValues(in.Service).Inc()
			return nil, fmt.Errorf("no price for service %s at %s: %w", in.Service, at.Format(time.RFC3339), err)
		}
		r.log.Warn("No price for service, recording at zero cost", "service", in.Service)
	default:
		metrics.CostEventErrors.WithLabelValues(in.Service).Inc()
		return nil, fmt.Errorf("price lookup failed: %w", err)
	}

	ev := &domain.CostEvent{
		ID:        uuid.NewString(),
		Service:   in.Service,
		Category:  CategoryFor(in.Service),
		Quantity:  in.Quantity,
		Unit:      unit,
		UnitPrice: unitPrice,
		TotalCost: ComputeCost(in.Quantity, unitPrice),
		EpisodeID: in.EpisodeID,
		PodcastID: in.PodcastID,
		UserID:    in.UserID,
		Metadata:  in.Metadata,
		CreatedAt: at,
	}

	if err := r.events.Insert(ctx, ev); err != nil {
		metrics.CostEventErrors.WithLabelValues(in.Service).Inc()
		return nil, fmt.Errorf("failed to record cost event: %w", err)
	}

	metrics.CostEventsRecorded.WithLabelValues(in.Service, string(ev.Category)).Inc()
	return ev, nil
}

// RecordBestEffort records an event, logging failures instead of returning
// them. Cost tracking never aborts the billable action it observes.
func (r *Recorder) RecordBestEffort(ctx context.Context, in EventInput) {
	if _, err := r.RecordEvent(ctx, in); err != nil {
		r.log.Warn("Failed to record cost event",
			"service", in.Service,
			"episode_id", in.EpisodeID,
			"error", err,
		)
	}
}
