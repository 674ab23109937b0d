package pricing

import "github.com/shopspring/decimal"

// Money represents a monetary value in major currency units.
type Money = decimal.Decimal

var (
	zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

// RoundMoney rounds x to two decimal places, half away from zero. It is applied
// after every arithmetic stage of a quote, so drift between stages is expected.
func RoundMoney(x Money) Money {
	return x.Round(2)
}

// magnitude returns the smallest m with |x| < 10^m. It reads the coefficient
// and exponent directly so that oversized exponents are never rescaled.
func magnitude(x Money) int64 {
	return int64(x.NumDigits()) + int64(x.Exponent())
}

// MustMoney parses a literal amount and panics on malformed input. Intended for
// constants and tests.
func MustMoney(s string) Money {
	return decimal.RequireFromString(s)
}

// FormatMoney renders the amount with exactly two decimals.
func FormatMoney(x Money) string {
	return x.StringFixed(2)
}
