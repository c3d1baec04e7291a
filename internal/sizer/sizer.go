// Package sizer converts a signal's requested size into an exchange-
// accepted integer contract count (§4.3). All arithmetic is decimal-exact;
// rounding always truncates toward zero, matching the teacher's
// step/tick-snapping discipline in step.go but rebuilt on
// shopspring/decimal instead of float64.
package sizer

import (
	"github.com/shopspring/decimal"

	"github.com/chidi150c/perpexec/internal/coreerr"
	"github.com/chidi150c/perpexec/internal/types"
)

// Options controls how a too-small result is handled.
type Options struct {
	// RoundUpToMinSize, when true, bumps a below-minimum result up to
	// MinSize instead of failing with SizeTooSmall (§4.3).
	RoundUpToMinSize bool
}

// Size computes the integer contract count for a requested quantity in the
// given unit, against instrument spec and a reference price (required for
// UnitQuote; ignored otherwise).
func Size(spec types.Instrument, requested decimal.Decimal, unit types.UnitType, referencePrice decimal.Decimal, opts Options) (int64, error) {
	if requested.Sign() <= 0 {
		return 0, coreerr.New(coreerr.InvalidSignal, "requested size must be positive")
	}

	var raw decimal.Decimal
	switch unit {
	case types.UnitQuote:
		if referencePrice.Sign() <= 0 {
			return 0, coreerr.New(coreerr.InvalidSignal, "reference price required for quote-denominated size")
		}
		denom := referencePrice.Mul(spec.ContractSize)
		raw = requested.Div(denom)
	case types.UnitBase:
		if spec.ContractSize.Sign() <= 0 {
			return 0, coreerr.New(coreerr.InvalidSignal, "instrument has no contract size")
		}
		raw = requested.Div(spec.ContractSize)
	case types.UnitContract:
		raw = requested
	default:
		return 0, coreerr.New(coreerr.InvalidSignal, "unknown unit_type")
	}

	contracts := raw.Truncate(0).IntPart() // truncation toward zero, never bankers-rounded

	if contracts < spec.MinSize {
		if opts.RoundUpToMinSize {
			return spec.MinSize, nil
		}
		return 0, coreerr.New(coreerr.SizeTooSmall, "sized order falls below instrument minimum")
	}
	return contracts, nil
}
