package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServicePrice is one row of the time-windowed pricing table.
// A price applies to timestamps t with EffectiveFrom <= t and
// (EffectiveTo == nil or t < EffectiveTo).
type ServicePrice struct {
	ID            int64
	Service       string
	Unit          string
	UnitPrice     decimal.Decimal
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
}

// AppliesAt reports whether the price window covers t.
func (p *ServicePrice) AppliesAt(t time.Time) bool {
	if t.Before(p.EffectiveFrom) {
		return false
	}
	if p.EffectiveTo != nil && !t.Before(*p.EffectiveTo) {
		return false
	}
	return true
}
