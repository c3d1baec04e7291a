// Package types holds the canonical data model shared by every core
// component: the inbound TradeSignal, the Instrument spec, and the Position
// record. Strategy-specific payload parsers (out of scope for this core)
// translate their own schema onto TradeSignal before calling the router.
package types

import "github.com/shopspring/decimal"

// Action is the intent carried by a TradeSignal.
type Action string

const (
	ActionOpen   Action = "open"
	ActionClose  Action = "close"
	ActionModify Action = "modify"
	ActionTP     Action = "tp"
	ActionSL     Action = "sl"
	ActionStatus Action = "status"
)

// Direction is long or short.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Sign returns +1 for long, -1 for short.
func (d Direction) Sign() int {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// UnitType is the unit a signal's requested quantity is expressed in.
type UnitType string

const (
	UnitQuote    UnitType = "quote"
	UnitBase     UnitType = "base"
	UnitContract UnitType = "contract"
)

// LadderTP is the optional ladder take-profit configuration.
type LadderTP struct {
	Enabled  bool
	StepPct  decimal.Decimal
	ClosePct decimal.Decimal
}

// TradeSignal is the canonical, already-parsed representation of any
// incoming trade instruction, whether it arrived from a webhook poster or
// an operator HTTP call. Optional fields are nil/zero when absent; the
// Router passes them to the Position Manager unchanged, without filling in
// configured defaults, and an open with a nil Quantity is rejected.
type TradeSignal struct {
	RequestID string // client-generated idempotency key

	Action  Action
	Symbol  string   // single-symbol form
	Symbols []string // multi-symbol fan-out form; mutually exclusive with Symbol

	Direction Direction

	Quantity *decimal.Decimal
	UnitType UnitType

	EntryPrice *decimal.Decimal // nil => market

	Leverage *int

	TakeProfitPct    *decimal.Decimal
	StopLossPct      *decimal.Decimal
	TrailingStop     *bool
	TrailingDistance *decimal.Decimal
	LadderTP         *LadderTP

	OverrideSymbolPool bool

	Extra map[string]any
}

// ExpandSymbols returns the symbols from either the single Symbol field or
// the Symbols slice. When both are populated, Symbols wins and Symbol is
// ignored.
func (s TradeSignal) ExpandSymbols() []string {
	if len(s.Symbols) > 0 {
		return s.Symbols
	}
	if s.Symbol != "" {
		return []string{s.Symbol}
	}
	return nil
}

// ForSymbol returns a copy of the signal scoped to a single symbol, used
// when fanning out a multi-symbol signal (§4.6 point 3).
func (s TradeSignal) ForSymbol(symbol string) TradeSignal {
	out := s
	out.Symbol = symbol
	out.Symbols = nil
	return out
}
