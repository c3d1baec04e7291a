// Package router implements the Signal Router (§4.6): the gate every
// inbound TradeSignal passes through before it reaches the Position
// Manager. It owns the symbol whitelist, a per-symbol cooldown that blocks
// a new open for a while after a close, the daily trade/loss caps, and
// multi-symbol signal fan-out. The cooldown starts only from closes routed
// through the Router; closes the Monitor Loop dispatches directly to the
// Position Manager do not start it. Grounded on the teacher's step.go pre-trade gating (the
// whitelist/cooldown checks that ran before placing an order) and on
// web3guy0-polybot's risk-gate.go for the daily-cap bookkeeping shape.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/chidi150c/perpexec/internal/coreerr"
	"github.com/chidi150c/perpexec/internal/metrics"
	"github.com/chidi150c/perpexec/internal/position"
	"github.com/chidi150c/perpexec/internal/store"
	"github.com/chidi150c/perpexec/internal/types"
)

// Limits bundles the router's configurable gates (§4.6).
type Limits struct {
	Whitelist              []string        // empty means every symbol is allowed
	CooldownAfterClose     time.Duration
	MaxTradesPerDay        int             // 0 disables the cap
	MaxDailyLossQuote      decimal.Decimal // 0 disables the cap
	MaxConcurrentPositions int             // 0 disables the cap
}

func (l Limits) allowed(symbol string) bool {
	if len(l.Whitelist) == 0 {
		return true
	}
	for _, s := range l.Whitelist {
		if s == symbol {
			return true
		}
	}
	return false
}

// Router is the Signal Router.
type Router struct {
	manager *position.Manager
	store   *store.Store
	log     zerolog.Logger

	mu          sync.Mutex
	limits      Limits
	lastCloseAt map[string]time.Time
	tradesToday int
	dayBoundary time.Time
}

// New builds a Router over an already-constructed Position Manager. st is
// used to read today's realized-loss rollup for the daily-loss-cap gate,
// since realized losses are recorded by every close path (manual, stop-loss,
// take-profit, trailing stop, ladder, expiry), not only router-dispatched
// closes (§4.6 point 2).
func New(manager *position.Manager, st *store.Store, log zerolog.Logger, limits Limits) *Router {
	return &Router{
		manager:     manager,
		store:       st,
		log:         log,
		limits:      limits,
		lastCloseAt: make(map[string]time.Time),
	}
}

// SetLimits replaces the router's configured gates, used when an operator
// adjusts the whitelist or caps without restarting the process.
func (r *Router) SetLimits(limits Limits) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits = limits
}

// Route validates and dispatches sig. A multi-symbol signal is expanded
// and each resulting single-symbol signal is routed independently (§4.6
// point 3); the returned slice has one Result per expanded symbol.
type Result struct {
	Symbol   string
	Position types.Position
	Err      error
}

func (r *Router) Route(ctx context.Context, sig types.TradeSignal) []Result {
	symbols := sig.ExpandSymbols()
	if len(symbols) == 0 {
		return []Result{{Err: coreerr.New(coreerr.InvalidSignal, "signal carries no symbol")}}
	}

	results := make([]Result, 0, len(symbols))
	for _, symbol := range symbols {
		single := sig.ForSymbol(symbol)
		// OverrideSymbolPool lets an expanded multi-symbol signal bypass
		// the whitelist independently per symbol (Open Question decision:
		// the override is evaluated per-symbol, not once for the batch).
		pos, err := r.routeOne(ctx, single)
		results = append(results, Result{Symbol: symbol, Position: pos, Err: err})
	}
	return results
}

func (r *Router) routeOne(ctx context.Context, sig types.TradeSignal) (types.Position, error) {
	r.mu.Lock()
	r.rollDayIfNeeded()
	limits := r.limits

	if !sig.OverrideSymbolPool && !limits.allowed(sig.Symbol) {
		r.mu.Unlock()
		metrics.SignalsRouted.WithLabelValues("rejected_symbol").Inc()
		return types.Position{}, coreerr.New(coreerr.SymbolNotAllowed, sig.Symbol+" is not in the symbol whitelist")
	}

	if sig.Action == types.ActionOpen {
		if limits.MaxTradesPerDay > 0 && r.tradesToday >= limits.MaxTradesPerDay {
			r.mu.Unlock()
			metrics.SignalsRouted.WithLabelValues("rejected_daily_cap").Inc()
			return types.Position{}, coreerr.New(coreerr.RiskGateBlocked, "daily trade cap reached")
		}
		if limits.MaxConcurrentPositions > 0 && len(r.manager.OpenSymbols()) >= limits.MaxConcurrentPositions {
			r.mu.Unlock()
			metrics.SignalsRouted.WithLabelValues("rejected_concurrency_cap").Inc()
			return types.Position{}, coreerr.New(coreerr.RiskGateBlocked, "max concurrent positions reached")
		}
		if limits.CooldownAfterClose > 0 {
			if last, ok := r.lastCloseAt[sig.Symbol]; ok && time.Since(last) < limits.CooldownAfterClose {
				r.mu.Unlock()
				metrics.SignalsRouted.WithLabelValues("rejected_cooldown").Inc()
				return types.Position{}, coreerr.New(coreerr.RiskGateBlocked, "symbol is in its post-close cooldown")
			}
		}
	}
	r.mu.Unlock()

	// Checked outside the lock against the store's daily rollup rather than
	// a router-local counter: stop-loss/take-profit/trailing/ladder closes
	// are dispatched by the Monitor Loop directly against the Position
	// Manager and never pass through routeOne, so only the store (written by
	// every close path via RecordClose) has the true daily total.
	if sig.Action == types.ActionOpen && !limits.MaxDailyLossQuote.IsZero() {
		now := time.Now().UTC()
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		rollup, err := r.store.DailyRollup(ctx, dayStart, dayStart.Add(24*time.Hour))
		if err != nil {
			return types.Position{}, coreerr.Wrap(coreerr.StoreError, "check daily loss cap", err)
		}
		if rollup.RealizedPnL.LessThanOrEqual(limits.MaxDailyLossQuote.Neg()) {
			metrics.SignalsRouted.WithLabelValues("rejected_daily_loss").Inc()
			return types.Position{}, coreerr.New(coreerr.RiskGateBlocked, "daily loss cap reached")
		}
	}

	pos, err := r.dispatch(ctx, sig)
	if err != nil {
		metrics.SignalsRouted.WithLabelValues("rejected").Inc()
		return pos, err
	}
	metrics.SignalsRouted.WithLabelValues("accepted").Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	switch sig.Action {
	case types.ActionOpen:
		r.tradesToday++
	case types.ActionClose:
		r.lastCloseAt[sig.Symbol] = time.Now().UTC()
	}
	return pos, nil
}

func (r *Router) dispatch(ctx context.Context, sig types.TradeSignal) (types.Position, error) {
	switch sig.Action {
	case types.ActionOpen:
		return r.manager.Open(ctx, sig)
	case types.ActionClose:
		return r.manager.Close(ctx, sig.Symbol, sig.RequestID, "manual")
	case types.ActionModify:
		return r.manager.Modify(ctx, sig)
	default:
		return types.Position{}, coreerr.New(coreerr.InvalidSignal, "unsupported action: "+string(sig.Action))
	}
}

// rollDayIfNeeded resets the daily counters at UTC midnight boundaries.
// Callers hold r.mu.
func (r *Router) rollDayIfNeeded() {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if r.dayBoundary.IsZero() {
		r.dayBoundary = today
		return
	}
	if today.After(r.dayBoundary) {
		r.dayBoundary = today
		r.tradesToday = 0
	}
}
