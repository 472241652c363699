package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryTotals holds per-category cost totals.
type CategoryTotals map[CostCategory]decimal.Decimal

// Total sums all category totals.
func (t CategoryTotals) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range t {
		total = total.Add(v)
	}
	return total
}

// Get returns the total for a category, zero if absent.
func (t CategoryTotals) Get(c CostCategory) decimal.Decimal {
	if v, ok := t[c]; ok {
		return v
	}
	return decimal.Zero
}

// EpisodeCostSummary is the rolled-up cost of one episode, updated in place
// as new events are aggregated. Never deleted while the episode exists.
type EpisodeCostSummary struct {
	EpisodeID  string
	Totals     CategoryTotals
	TotalCost  decimal.Decimal
	EventCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UserCostSummary is the rolled-up cost of one user across all episodes.
// Updated by the periodic rollup job, not on every event.
type UserCostSummary struct {
	UserID     string
	Totals     CategoryTotals
	TotalCost  decimal.Decimal
	EventCount int64
	UpdatedAt  time.Time
}

// DailyUsageRow is one service's totals for one day.
type DailyUsageRow struct {
	Day        string
	Service    string
	Category   CostCategory
	Quantity   decimal.Decimal
	TotalCost  decimal.Decimal
	EventCount int64
}
