package domain

import "github.com/shopspring/decimal"

// Money is persisted as integer minor units (two fractional digits).

func ToMinor(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

func FromMinor(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
