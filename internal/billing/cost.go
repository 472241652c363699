package billing

import "github.com/shopspring/decimal"

// ComputeCost returns quantity × unitPrice. Decimal arithmetic keeps the
// result exact, so repeated aggregation never drifts.
func ComputeCost(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice)
}

// GigabytesFromBytes converts a byte count to gigabytes for storage pricing.
func GigabytesFromBytes(n int64) decimal.Decimal {
	return decimal.NewFromInt(n).Div(decimal.NewFromInt(1 << 30))
}
