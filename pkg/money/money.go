// Package money holds the decimal helpers used for every monetary amount.
// Amounts are quantized to two places with half-up rounding.
package money

import "github.com/shopspring/decimal"

const Places = 2

var hundred = decimal.NewFromInt(100)

// Round quantizes to two places. decimal.Round rounds half away from zero, which
// is half-up for the non-negative amounts handled here.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Percent returns amount * pct / 100 without rounding.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ClampNonNegative returns zero for negative amounts.
func ClampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Sum adds all amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	return total
}

// Parse reads a decimal string such as "499.50".
func Parse(value string) (decimal.Decimal, error) {
	return decimal.NewFromString(value)
}

// String renders an amount with exactly two places.
func String(d decimal.Decimal) string {
	return d.StringFixed(Places)
}
