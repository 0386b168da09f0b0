package tradingutils

import (
	"github.com/shopspring/decimal"
)

// RoundPrice rounds a price to the specified decimals
func RoundPrice(price decimal.Decimal, priceDecimals int) decimal.Decimal {
	return price.Round(int32(priceDecimals))
}

// RoundQuantity rounds a quantity to the specified decimals
func RoundQuantity(qty decimal.Decimal, qtyDecimals int) decimal.Decimal {
	return qty.Round(int32(qtyDecimals))
}

// SignificantFigures rounds a decimal to n significant figures, the DEX
// price canonicalization rule venues like the one modeled here enforce
// (tick size expressed as a sig-fig count rather than a fixed exponent).
func SignificantFigures(v decimal.Decimal, n int) decimal.Decimal {
	if v.IsZero() || n <= 0 {
		return v
	}
	sign := decimal.NewFromInt(1)
	if v.IsNegative() {
		sign = decimal.NewFromInt(-1)
		v = v.Neg()
	}
	exp := int32(0)
	for v.Cmp(decimal.New(1, 0)) >= 0 {
		v = v.Div(decimal.New(1, 1))
		exp++
	}
	for v.Cmp(decimal.New(1, -1)) < 0 {
		v = v.Mul(decimal.New(1, 1))
		exp--
	}
	scaled := v.Shift(int32(n)).Round(0)
	result := scaled.Shift(exp - int32(n))
	return result.Mul(sign)
}
