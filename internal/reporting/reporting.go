// Package reporting implements the read-only Reporting component (§4.8):
// it assembles point-in-time snapshots of open positions and historical
// performance for an operator-facing status endpoint. It never mutates
// state, grounded on the teacher's status-printing helpers in trader.go
// rebuilt here as a structured, queryable reader instead of log lines.
package reporting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/perpexec/internal/money"
	"github.com/chidi150c/perpexec/internal/position"
	"github.com/chidi150c/perpexec/internal/pricecache"
	"github.com/chidi150c/perpexec/internal/store"
	"github.com/chidi150c/perpexec/internal/types"
)

// Reporter reads from the Position Manager, the Price Cache, and the
// Position Store; it holds no state of its own.
type Reporter struct {
	manager *position.Manager
	prices  *pricecache.Cache
	store   *store.Store
}

// New builds a Reporter.
func New(manager *position.Manager, prices *pricecache.Cache, st *store.Store) *Reporter {
	return &Reporter{manager: manager, prices: prices, store: st}
}

// OpenPositionView is one open position enriched with the live mark price
// and PnL figures the operator-facing status endpoint needs (§4.8 point 1).
type OpenPositionView struct {
	types.Position
	MarkPrice       decimal.Decimal
	HasMarkPrice    bool
	UnrealizedPnL   decimal.Decimal
	LeveragedPnLPct decimal.Decimal // unleveraged price move × leverage
}

// Snapshot is the point-in-time view returned by Status.
type Snapshot struct {
	OpenPositions []OpenPositionView
	Today         store.DailyRollup
	RecentHistory []store.HistoryRow
}

// Status assembles the full snapshot (§4.8 point 1): every open position
// with its live mark price, unrealized PnL, and leveraged PnL percentage,
// today's realized PnL rollup, and the most recent closed positions.
func (r *Reporter) Status(ctx context.Context, historyLimit int) (Snapshot, error) {
	var snap Snapshot
	for _, symbol := range r.manager.OpenSymbols() {
		pos, ok := r.manager.Snapshot(symbol)
		if !ok {
			continue
		}
		view := OpenPositionView{Position: pos}
		if quote, ok := r.prices.Get(symbol); ok {
			view.MarkPrice = quote.Price
			view.HasMarkPrice = true
			view.UnrealizedPnL = UnrealizedPnL(pos, quote.Price)
			u := money.PctMove(pos.EntryPrice, quote.Price, pos.Direction.Sign())
			view.LeveragedPnLPct = u.Mul(decimal.NewFromInt(int64(pos.Leverage)))
		}
		snap.OpenPositions = append(snap.OpenPositions, view)
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	rollup, err := r.store.DailyRollup(ctx, dayStart, dayEnd)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Today = rollup

	history, err := r.store.QueryHistory(ctx, "", time.Time{}, now, historyLimit)
	if err != nil {
		return Snapshot{}, err
	}
	snap.RecentHistory = history

	return snap, nil
}

// PositionHistory reports closed positions for one symbol within a window
// (§4.8 point 2).
func (r *Reporter) PositionHistory(ctx context.Context, symbol string, start, end time.Time, limit int) ([]store.HistoryRow, error) {
	return r.store.QueryHistory(ctx, symbol, start, end, limit)
}

// UnrealizedPnL estimates the unrealized PnL for an open position at the
// given mark price, using the same signed-delta-times-contract-size
// convention as the Position Manager's realized-PnL computation (§3, §4.5).
func UnrealizedPnL(p types.Position, markPrice decimal.Decimal) decimal.Decimal {
	delta := markPrice.Sub(p.EntryPrice)
	if p.Direction == types.DirectionShort {
		delta = delta.Neg()
	}
	return delta.Mul(decimal.NewFromInt(p.AbsQuantity())).Mul(p.ContractSize)
}
