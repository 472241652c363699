package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
)

// CostEventRepo implements storage.CostEventRepository using PostgreSQL.
// The cost_events table is append-only; rows are never updated or deleted.
type CostEventRepo struct {
	db *DB
}

// NewCostEventRepo creates a new PostgreSQL cost event repository.
func NewCostEventRepo(db *DB) *CostEventRepo {
	return &CostEventRepo{db: db}
}

type costEventRow struct {
	ID        string          `db:"id"`
	Service   string          `db:"service"`
	Category  string          `db:"category"`
	Quantity  decimal.Decimal `db:"quantity"`
	Unit      string          `db:"unit"`
	UnitPrice decimal.Decimal `db:"unit_price"`
	TotalCost decimal.Decimal `db:"total_cost"`
	EpisodeID *string         `db:"episode_id"` // Nullable
	PodcastID *string         `db:"podcast_id"` // Nullable
	UserID    *string         `db:"user_id"`    // Nullable
	Metadata  []byte          `db:"metadata"`
	CreatedAt time.Time       `db:"created_at"`
}

func (r *costEventRow) toDomain() *domain.CostEvent {
	ev := &domain.CostEvent{
		ID:        r.ID,
		Service:   r.Service,
		Category:  domain.CostCategory(r.Category),
		Quantity:  r.Quantity,
		Unit:      r.Unit,
		UnitPrice: r.UnitPrice,
		TotalCost: r.TotalCost,
		CreatedAt: r.CreatedAt,
	}
	if r.EpisodeID != nil {
		ev.EpisodeID = *r.EpisodeID
	}
	if r.PodcastID != nil {
		ev.PodcastID = *r.PodcastID
	}
	if r.UserID != nil {
		ev.UserID = *r.UserID
	}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &ev.Metadata)
	}
	return ev
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Insert appends one immutable cost event.
func (r *CostEventRepo) Insert(ctx context.Context, ev *domain.CostEvent) error {
	var metadata []byte
	if ev.Metadata != nil {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = b
	}

	query := `
		INSERT INTO cost_events (
			id, service, category, quantity, unit, unit_price, total_cost,
			episode_id, podcast_id, user_id, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		ev.ID, ev.Service, string(ev.Category),
		ev.Quantity, ev.Unit, ev.UnitPrice, ev.TotalCost,
		nullStr(ev.EpisodeID), nullStr(ev.PodcastID), nullStr(ev.UserID),
		metadata, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cost event: %w", err)
	}
	return nil
}

// ListByEpisode retrieves all events for an episode, oldest first.
func (r *CostEventRepo) ListByEpisode(ctx context.Context, episodeID string) ([]*domain.CostEvent, error) {
	query := `
		SELECT id, service, category, quantity, unit, unit_price, total_cost,
		       episode_id, podcast_id, user_id, metadata, created_at
		FROM cost_events
		WHERE episode_id = $1
		ORDER BY created_at ASC
	`

	var rows []costEventRow
	err := r.db.SelectContext(ctx, &rows, query, episodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cost events: %w", err)
	}

	var events []*domain.CostEvent
	for i := range rows {
		events = append(events, rows[i].toDomain())
	}
	return events, nil
}

type categorySumRow struct {
	Category string          `db:"category"`
	Total    decimal.Decimal `db:"total"`
	Count    int64           `db:"count"`
}

// SumByCategoryForEpisode sums events for an episode grouped by category.
func (r *CostEventRepo) SumByCategoryForEpisode(ctx context.Context, episodeID string) (domain.CategoryTotals, int64, error) {
	query := `
		SELECT category, COALESCE(SUM(total_cost), 0) AS total, COUNT(*) AS count
		FROM cost_events
		WHERE episode_id = $1
		GROUP BY category
	`
	return r.sumByCategory(ctx, query, episodeID)
}

// SumByCategoryForUser sums events for a user grouped by category.
func (r *CostEventRepo) SumByCategoryForUser(ctx context.Context, userID string) (domain.CategoryTotals, int64, error) {
	query := `
		SELECT category, COALESCE(SUM(total_cost), 0) AS total, COUNT(*) AS count
		FROM cost_events
		WHERE user_id = $1
		GROUP BY category
	`
	return r.sumByCategory(ctx, query, userID)
}

func (r *CostEventRepo) sumByCategory(ctx context.Context, query, key string) (domain.CategoryTotals, int64, error) {
	var rows []categorySumRow
	err := r.db.SelectContext(ctx, &rows, query, key)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to sum cost events: %w", err)
	}

	totals := make(domain.CategoryTotals)
	var count int64
	for _, row := range rows {
		totals[domain.CostCategory(row.Category)] = row.Total
		count += row.Count
	}
	return totals, count, nil
}

// ListUserIDs returns distinct user IDs that have cost events.
func (r *CostEventRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT user_id FROM cost_events WHERE user_id IS NOT NULL`

	var ids []string
	err := r.db.SelectContext(ctx, &ids, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	return ids, nil
}

type dailyUsageRow struct {
	Service  string          `db:"service"`
	Category string          `db:"category"`
	Quantity decimal.Decimal `db:"quantity"`
	Total    decimal.Decimal `db:"total"`
	Count    int64           `db:"count"`
}

// DailyUsage returns per-service totals for one day (YYYY-MM-DD, UTC).
func (r *CostEventRepo) DailyUsage(ctx context.Context, day string) ([]*domain.DailyUsageRow, error) {
	start, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid day %q: %w", day, err)
	}
	end := start.Add(24 * time.Hour)

	query := `
		SELECT service, category,
		       COALESCE(SUM(quantity), 0) AS quantity,
		       COALESCE(SUM(total_cost), 0) AS total,
		       COUNT(*) AS count
		FROM cost_events
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY service, category
		ORDER BY service
	`

	var rows []dailyUsageRow
	err = r.db.SelectContext(ctx, &rows, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}

	var usage []*domain.DailyUsageRow
	for _, row := range rows {
		usage = append(usage, &domain.DailyUsageRow{
			Day:        day,
			Service:    row.Service,
			Category:   domain.CostCategory(row.Category),
			Quantity:   row.Quantity,
			TotalCost:  row.Total,
			EventCount: row.Count,
		})
	}
	return usage, nil
}
