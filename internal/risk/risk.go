// Package risk implements the pure Risk Evaluator (§4.4): given a Position,
// a fresh price, and the current wall-clock time, it decides to hold,
// close, or partially close. It never mutates the Position — watermark
// maintenance is the Position Manager's responsibility (§4.5) — and it is
// deterministic: the same (Position, price, now) always yields the same
// Decision, grounded on the teacher's step.go exit-evaluation logic but
// split out as a side-effect-free function.
package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/perpexec/internal/money"
	"github.com/chidi150c/perpexec/internal/types"
)

// Outcome is the kind of decision the evaluator reached.
type Outcome string

const (
	Hold         Outcome = "hold"
	Close        Outcome = "close"
	PartialClose Outcome = "partial_close"
)

// CloseReason explains why a Close or PartialClose decision was reached.
type CloseReason string

const (
	ReasonTakeProfit   CloseReason = "take_profit"
	ReasonStopLoss     CloseReason = "stop_loss"
	ReasonTrailingStop CloseReason = "trailing_stop"
	ReasonManual       CloseReason = "manual"
	ReasonForced       CloseReason = "forced"
	ReasonExpired      CloseReason = "expired"
	ReasonLadderTP     CloseReason = "ladder_tp"
)

// Decision is the evaluator's verdict.
type Decision struct {
	Outcome Outcome
	Reason  CloseReason

	// Populated only for PartialClose.
	Fraction      decimal.Decimal
	NewLadderTier int

	Warning string // non-empty when the evaluator held due to a sanity check
}

// Params bundles the evaluator's configurable thresholds that are not part
// of the per-position rule snapshot.
type Params struct {
	MaxPriceAge     time.Duration   // default 30s, §4.2
	MaxHoldDuration time.Duration   // 0 disables the expiry rule, §4.4 point 6
	TrailingArmPct  decimal.Decimal // arm threshold; 0 means "use TrailingDistance" per §4.4 point 5
}

var absJumpGuard = decimal.NewFromInt(1) // |u| > 1.0 is treated as an absurd jump

// Evaluate is the pure decision function. priceAge is how long ago price
// was observed (now - quote timestamp); callers compute it from the Price
// Cache so this function stays free of wall-clock reads beyond the now
// argument used for position-age and hold-duration checks.
func Evaluate(p types.Position, price decimal.Decimal, priceAge time.Duration, now time.Time, params Params) Decision {
	maxAge := params.MaxPriceAge
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}

	// 1. Price sanity.
	if price.Sign() <= 0 {
		return Decision{Outcome: Hold, Warning: "non-positive price"}
	}
	if priceAge > maxAge {
		return Decision{Outcome: Hold, Warning: "price older than max_price_age"}
	}
	u := money.PctMove(p.EntryPrice, price, p.Direction.Sign())
	if u.Abs().GreaterThan(absJumpGuard) {
		return Decision{Outcome: Hold, Warning: "absurd price jump guard"}
	}

	// 2. Stop-loss, takes priority over everything else.
	if p.SLPct.Sign() > 0 && u.LessThanOrEqual(p.SLPct.Neg()) {
		return Decision{Outcome: Close, Reason: ReasonStopLoss}
	}

	// 3. Take-profit (fixed), only when ladder is not enabled.
	if p.TPPct.Sign() > 0 && !p.Ladder.Enabled && u.GreaterThanOrEqual(p.TPPct) {
		return Decision{Outcome: Close, Reason: ReasonTakeProfit}
	}

	// 4. Take-profit (ladder).
	if p.Ladder.Enabled && p.Ladder.StepPct.Sign() > 0 {
		tier := int(u.Div(p.Ladder.StepPct).Floor().IntPart())
		if tier > p.LadderTierHit && tier >= 1 {
			cumulative := p.LadderClosedFraction.Add(p.Ladder.ClosePct)
			if cumulative.GreaterThanOrEqual(decimal.NewFromFloat(1.0).Sub(epsilon)) {
				return Decision{Outcome: Close, Reason: ReasonTakeProfit}
			}
			return Decision{Outcome: PartialClose, Reason: ReasonLadderTP, Fraction: p.Ladder.ClosePct, NewLadderTier: tier}
		}
	}

	// 5. Trailing stop. "Armed" means u has ever exceeded the arm
	// threshold; since the watermark is the best price ever observed, the
	// move at the watermark is the highest u has ever reached.
	if p.TrailingEnabled && p.TrailingDistance.Sign() > 0 {
		arm := params.TrailingArmPct
		if arm.IsZero() {
			arm = p.TrailingDistance
		}
		var bestU decimal.Decimal
		if p.Direction == types.DirectionLong {
			bestU = money.PctMove(p.EntryPrice, p.HighWatermark, p.Direction.Sign())
		} else {
			bestU = money.PctMove(p.EntryPrice, p.LowWatermark, p.Direction.Sign())
		}
		armed := u.GreaterThanOrEqual(arm) || bestU.GreaterThanOrEqual(arm)
		if armed {
			one := decimal.NewFromInt(1)
			if p.Direction == types.DirectionLong {
				stopLevel := p.HighWatermark.Mul(one.Sub(p.TrailingDistance))
				if price.LessThanOrEqual(stopLevel) {
					return Decision{Outcome: Close, Reason: ReasonTrailingStop}
				}
			} else {
				stopLevel := p.LowWatermark.Mul(one.Add(p.TrailingDistance))
				if price.GreaterThanOrEqual(stopLevel) {
					return Decision{Outcome: Close, Reason: ReasonTrailingStop}
				}
			}
		}
	}

	// 6. Expiry, lower priority than stop-loss but above a bare hold.
	if params.MaxHoldDuration > 0 && now.Sub(p.EntryTS) > params.MaxHoldDuration {
		return Decision{Outcome: Close, Reason: ReasonExpired}
	}

	return Decision{Outcome: Hold}
}

var epsilon = decimal.NewFromFloat(0.0000001)
