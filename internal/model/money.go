package model

import "github.com/shopspring/decimal"

// Amounts are decimal end to end and persisted as integer cents, so no
// value ever passes through a float.

// Cents converts a decimal dollar amount to integer cents. Amounts with
// sub-cent precision are rounded half-up before conversion; bank feeds
// and expense systems only ever emit two decimal places.
func Cents(d decimal.Decimal) int64 {
	return d.Round(2).Mul(decimal.NewFromInt(100)).IntPart()
}

// FromCents converts integer cents back to a decimal dollar amount.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
