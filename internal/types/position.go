package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a Position as recorded in the store.
// It is distinct from the Position Manager's in-memory per-symbol state
// machine (internal/position.State) — Status is what gets persisted.
type Status string

const (
	StatusOpen        Status = "open"
	StatusClosed      Status = "closed"
	StatusReconciling Status = "reconciling"
)

// Ladder is the frozen-at-open ladder take-profit rule snapshot.
type Ladder struct {
	Enabled  bool
	StepPct  decimal.Decimal
	ClosePct decimal.Decimal
}

// Position is the durable record of one open or historical position.
// Uniquely keyed by (Symbol, PositionID). Quantity is signed: positive for
// long, negative for short. Rule-snapshot fields are frozen at open time
// and only change via an explicit modify signal (§3 invariants).
type Position struct {
	Symbol     string
	PositionID string

	Direction Direction
	Status    Status

	EntryPrice   decimal.Decimal
	Quantity     int64 // signed contract count
	ContractSize decimal.Decimal // base units per contract, frozen at open
	Leverage     int
	EntryTS      time.Time

	// Rule snapshot, frozen at open.
	TPPct            decimal.Decimal
	SLPct            decimal.Decimal
	TrailingEnabled  bool
	TrailingDistance decimal.Decimal
	Ladder           Ladder

	// Dynamic runtime fields.
	HighWatermark        decimal.Decimal
	LowWatermark         decimal.Decimal
	LadderTierHit        int
	LadderClosedFraction decimal.Decimal

	// Terminal fields, set on close.
	ExitPrice   decimal.Decimal
	ExitTS      time.Time
	RealizedPnL decimal.Decimal
	PnLPct      decimal.Decimal
}

// IsOpen reports whether the position still carries quantity.
func (p Position) IsOpen() bool {
	return p.Status != StatusClosed && p.Quantity != 0
}

// AbsQuantity returns the unsigned magnitude of Quantity.
func (p Position) AbsQuantity() int64 {
	if p.Quantity < 0 {
		return -p.Quantity
	}
	return p.Quantity
}

// Clone returns a deep-enough copy safe to hand to a caller outside the
// Position Manager's lock (the decimal.Decimal and time.Time fields are
// already value types, so a struct copy suffices).
func (p Position) Clone() Position {
	return p
}
