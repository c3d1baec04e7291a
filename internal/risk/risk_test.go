package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/chidi150c/perpexec/internal/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func basePosition() types.Position {
	return types.Position{
		Symbol:        "BTC-USDT-SWAP",
		Direction:     types.DirectionLong,
		EntryPrice:    dec("50000"),
		Quantity:      1,
		HighWatermark: dec("50000"),
		LowWatermark:  dec("50000"),
		EntryTS:       time.Now().UTC(),
	}
}

func TestEvaluate_FixedTakeProfit(t *testing.T) {
	p := basePosition()
	p.TPPct = dec("0.05")
	p.SLPct = dec("0.03")

	d := Evaluate(p, dec("52500"), 0, time.Now(), Params{})
	assert.Equal(t, Close, d.Outcome)
	assert.Equal(t, ReasonTakeProfit, d.Reason)
}

func TestEvaluate_StopLoss(t *testing.T) {
	p := basePosition()
	p.TPPct = dec("0.05")
	p.SLPct = dec("0.03")

	d := Evaluate(p, dec("48500"), 0, time.Now(), Params{})
	assert.Equal(t, Close, d.Outcome)
	assert.Equal(t, ReasonStopLoss, d.Reason)
}

func TestEvaluate_StopLossTakesPriorityOverTakeProfit(t *testing.T) {
	p := basePosition()
	p.TPPct = dec("0.01")
	p.SLPct = dec("0.01")
	// A price that would satisfy neither normally; craft one that somehow
	// breaches both thresholds isn't possible for a single price, so this
	// instead checks the tie-break order is stop-loss-first by code path:
	// stop-loss is evaluated before take-profit in Evaluate.
	d := Evaluate(p, dec("49000"), 0, time.Now(), Params{})
	assert.Equal(t, Close, d.Outcome)
	assert.Equal(t, ReasonStopLoss, d.Reason)
}

func TestEvaluate_LadderTakeProfitPartialThenFullCollapse(t *testing.T) {
	p := types.Position{
		Direction:     types.DirectionLong,
		EntryPrice:    dec("100"),
		Quantity:      4,
		HighWatermark: dec("100"),
		LowWatermark:  dec("100"),
		Ladder: types.Ladder{
			Enabled:  true,
			StepPct:  dec("0.01"),
			ClosePct: dec("0.25"),
		},
		LadderClosedFraction: decimal.Zero,
	}

	d1 := Evaluate(p, dec("101"), 0, time.Now(), Params{})
	assert.Equal(t, PartialClose, d1.Outcome)
	assert.Equal(t, 1, d1.NewLadderTier)
	assert.True(t, d1.Fraction.Equal(dec("0.25")))

	p.LadderTierHit = 1
	p.LadderClosedFraction = dec("0.25")

	d2 := Evaluate(p, dec("102"), 0, time.Now(), Params{})
	assert.Equal(t, PartialClose, d2.Outcome)
	assert.Equal(t, 2, d2.NewLadderTier)

	p.LadderTierHit = 2
	p.LadderClosedFraction = dec("0.50")
	d3 := Evaluate(p, dec("103"), 0, time.Now(), Params{})
	assert.Equal(t, PartialClose, d3.Outcome)
	assert.Equal(t, 3, d3.NewLadderTier)

	p.LadderTierHit = 3
	p.LadderClosedFraction = dec("0.75")
	d4 := Evaluate(p, dec("104"), 0, time.Now(), Params{})
	assert.Equal(t, Close, d4.Outcome)
	assert.Equal(t, ReasonTakeProfit, d4.Reason)
}

func TestEvaluate_TrailingStop(t *testing.T) {
	p := types.Position{
		Direction:        types.DirectionShort,
		EntryPrice:       dec("2000"),
		Quantity:         -1,
		HighWatermark:    dec("2000"),
		LowWatermark:     dec("2000"),
		TrailingEnabled:  true,
		TrailingDistance: dec("0.02"),
	}

	// price drifts in favor, arming the trail.
	p.LowWatermark = dec("1950")
	d := Evaluate(p, dec("1989.5"), 0, time.Now(), Params{})
	assert.Equal(t, Close, d.Outcome)
	assert.Equal(t, ReasonTrailingStop, d.Reason)
}

func TestEvaluate_TrailingStopNotArmedYet(t *testing.T) {
	p := types.Position{
		Direction:        types.DirectionLong,
		EntryPrice:       dec("100"),
		Quantity:         1,
		HighWatermark:    dec("100.5"), // moved, but not past the arm threshold
		LowWatermark:     dec("100"),
		TrailingEnabled:  true,
		TrailingDistance: dec("0.02"),
	}
	d := Evaluate(p, dec("99"), 0, time.Now(), Params{})
	assert.Equal(t, Hold, d.Outcome)
}

func TestEvaluate_StalePriceHolds(t *testing.T) {
	p := basePosition()
	p.TPPct = dec("0.01")
	d := Evaluate(p, dec("60000"), time.Minute, time.Now(), Params{MaxPriceAge: 30 * time.Second})
	assert.Equal(t, Hold, d.Outcome)
	assert.NotEmpty(t, d.Warning)
}

func TestEvaluate_NonPositivePriceHolds(t *testing.T) {
	p := basePosition()
	d := Evaluate(p, decimal.Zero, 0, time.Now(), Params{})
	assert.Equal(t, Hold, d.Outcome)
}

func TestEvaluate_AbsurdJumpGuardHolds(t *testing.T) {
	p := basePosition()
	p.TPPct = dec("0.01")
	d := Evaluate(p, dec("200000"), 0, time.Now(), Params{})
	assert.Equal(t, Hold, d.Outcome)
	assert.NotEmpty(t, d.Warning)
}

func TestEvaluate_ExpiryCloses(t *testing.T) {
	p := basePosition()
	p.EntryTS = time.Now().Add(-2 * time.Hour)
	d := Evaluate(p, dec("50100"), 0, time.Now(), Params{MaxHoldDuration: time.Hour})
	assert.Equal(t, Close, d.Outcome)
	assert.Equal(t, ReasonExpired, d.Reason)
}

func TestEvaluate_HoldWhenNoRuleTriggers(t *testing.T) {
	p := basePosition()
	p.TPPct = dec("0.1")
	p.SLPct = dec("0.1")
	d := Evaluate(p, dec("50100"), 0, time.Now(), Params{})
	assert.Equal(t, Hold, d.Outcome)
}

func TestEvaluate_ShortDirectionProfitSign(t *testing.T) {
	p := basePosition()
	p.Direction = types.DirectionShort
	p.Quantity = -1
	p.TPPct = dec("0.05")
	// price fell 5% with entry 50000 -> favorable move for a short.
	d := Evaluate(p, dec("47500"), 0, time.Now(), Params{})
	assert.Equal(t, Close, d.Outcome)
	assert.Equal(t, ReasonTakeProfit, d.Reason)
}

func TestEvaluate_Deterministic(t *testing.T) {
	p := basePosition()
	p.TPPct = dec("0.05")
	now := time.Now()
	d1 := Evaluate(p, dec("52500"), 0, now, Params{})
	d2 := Evaluate(p, dec("52500"), 0, now, Params{})
	assert.Equal(t, d1, d2)
}
