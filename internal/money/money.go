// Package money centralizes the decimal-exact arithmetic the core uses for
// every price, quantity, and PnL figure. Binary float64 is never used for a
// price×size product anywhere above this package, per the framework's
// monetary-arithmetic mandate.
package money

import "github.com/shopspring/decimal"

// Zero is the additive identity, re-exported for readability at call sites.
var Zero = decimal.Zero

// FromFloat builds a Decimal from a float64. Reserved for the narrow set of
// boundary conversions (e.g. a webhook payload that arrived as JSON number)
// where the source was never exact to begin with; internal computation never
// round-trips through float64.
func FromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// TruncDiv divides a by b and truncates toward zero at the given number of
// decimal places, matching the order sizer's "round toward zero, never
// bankers-rounded" requirement.
func TruncDiv(a, b decimal.Decimal, places int32) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b).Truncate(places)
}

// FloorInt64 truncates a Decimal toward zero and returns it as an int64
// contract count. Negative inputs are not expected by callers (contract
// counts are always positive magnitudes; direction is carried separately).
func FloorInt64(d decimal.Decimal) int64 {
	return d.Truncate(0).IntPart()
}

// PctMove returns the signed, unleveraged fractional price move from entry
// to price: +1 direction for long, -1 for short. This is the "u" used
// throughout the risk evaluator.
func PctMove(entry, price decimal.Decimal, sign int) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	move := price.Sub(entry).Div(entry)
	if sign < 0 {
		move = move.Neg()
	}
	return move
}
