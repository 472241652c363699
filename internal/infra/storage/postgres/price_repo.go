package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
	"github.com/NehoraiHadad/podcasto-engine/internal/infra/storage"
)

// PriceRepo implements storage.PriceRepository using PostgreSQL.
type PriceRepo struct {
	db *DB
}

// NewPriceRepo creates a new PostgreSQL price repository.
func NewPriceRepo(db *DB) *PriceRepo {
	return &PriceRepo{db: db}
}

type priceRow struct {
	ID            int64           `db:"id"`
	Service       string          `db:"service"`
	Unit          string          `db:"unit"`
	UnitPrice     decimal.Decimal `db:"unit_price"`
	EffectiveFrom time.Time       `db:"effective_from"`
	EffectiveTo   *time.Time      `db:"effective_to"` // Nullable, NULL = open-ended
}

func (r *priceRow) toDomain() *domain.ServicePrice {
	return &domain.ServicePrice{
		ID:            r.ID,
		Service:       r.Service,
		Unit:          r.Unit,
		UnitPrice:     r.UnitPrice,
		EffectiveFrom: r.EffectiveFrom,
		EffectiveTo:   r.EffectiveTo,
	}
}

// GetEffective retrieves the price for a service valid at the given time.
func (r *PriceRepo) GetEffective(ctx context.Context, service string, at time.Time) (*domain.ServicePrice, error) {
	query := `
		SELECT id, service, unit, unit_price, effective_from, effective_to
		FROM service_prices
		WHERE service = $1 AND effective_from <= $2
		  AND (effective_to IS NULL OR effective_to > $2)
		ORDER BY effective_from DESC
		LIMIT 1
	`

	var row priceRow
	err := r.db.GetContext(ctx, &row, query, service, at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrPriceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price: %w", err)
	}

	return row.toDomain(), nil
}

// List retrieves all pricing rows.
func (r *PriceRepo) List(ctx context.Context) ([]*domain.ServicePrice, error) {
	query := `
		SELECT id, service, unit, unit_price, effective_from, effective_to
		FROM service_prices
		ORDER BY service, effective_from
	`

	var rows []priceRow
	err := r.db.SelectContext(ctx, &rows, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}

	var prices []*domain.ServicePrice
	for i := range rows {
		prices = append(prices, rows[i].toDomain())
	}
	return prices, nil
}
