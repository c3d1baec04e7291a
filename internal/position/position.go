// Package position implements the Position Manager (§4.5): the per-symbol
// state machine that turns a routed TradeSignal into exchange orders and
// durable Position rows, and applies Risk Evaluator decisions on every
// monitor tick. Grounded on the teacher's trader.go/step.go position
// lifecycle (open/scale/trail/close a lot) and on broker_paper.go's
// idempotent-fill discipline, rebuilt around one sync.Mutex per symbol
// instead of the teacher's single global lock.
package position

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/chidi150c/perpexec/internal/coreerr"
	"github.com/chidi150c/perpexec/internal/exchange"
	"github.com/chidi150c/perpexec/internal/metrics"
	"github.com/chidi150c/perpexec/internal/money"
	"github.com/chidi150c/perpexec/internal/risk"
	"github.com/chidi150c/perpexec/internal/sizer"
	"github.com/chidi150c/perpexec/internal/store"
	"github.com/chidi150c/perpexec/internal/types"
)

// State is the Position Manager's in-memory lifecycle state for a symbol,
// distinct from types.Status (which is what gets persisted).
type State string

const (
	StateNone        State = "none"
	StateOpening     State = "opening"
	StateOpen        State = "open"
	StateModifying   State = "modifying"
	StateClosing     State = "closing"
	StateReconciling State = "reconciling"
)

// slot is the per-symbol mutable cell: its own lock, current lifecycle
// state, the frozen request ids already applied (idempotence, §4.5), and
// the live Position when one is open.
type slot struct {
	mu          sync.Mutex
	state       State
	position    *types.Position
	appliedReqs map[string]struct{}
}

// Manager is the Position Manager. AdapterTimeout bounds every call made to
// the Adapter while a symbol's lock is held (§5: the lock is held across
// the adapter call because order placement is the critical section that
// defines the position, a deliberate divergence from the teacher's
// release-around-I/O pattern used for multi-lot pyramiding latency).
type Manager struct {
	adapter exchange.Adapter
	store   *store.Store
	log     zerolog.Logger

	AdapterTimeout       time.Duration
	SizerOptions         sizer.Options
	RiskParams           risk.Params
	EntryPriceCapEnabled bool

	mu    sync.Mutex
	slots map[string]*slot
}

// New builds a Manager. Call LoadOpen once at boot to hydrate state from
// the store before accepting signals.
func New(adapter exchange.Adapter, st *store.Store, log zerolog.Logger) *Manager {
	return &Manager{
		adapter:        adapter,
		store:          st,
		log:            log,
		AdapterTimeout: 10 * time.Second,
		slots:          make(map[string]*slot),
	}
}

func (m *Manager) slotFor(symbol string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[symbol]
	if !ok {
		s = &slot{state: StateNone, appliedReqs: make(map[string]struct{})}
		m.slots[symbol] = s
	}
	return s
}

// LoadOpen hydrates in-memory slots from the store's open-position rows,
// run once at process start (§4.1 load_open, §6 boot sequence).
func (m *Manager) LoadOpen(ctx context.Context) error {
	rows, err := m.store.LoadOpen(ctx)
	if err != nil {
		return err
	}
	for i := range rows {
		p := rows[i]
		s := m.slotFor(p.Symbol)
		s.mu.Lock()
		pos := p
		s.position = &pos
		s.state = StateOpen
		s.mu.Unlock()
		metrics.OpenPositionsGauge.WithLabelValues(p.Symbol).Set(1)
	}
	return nil
}

// Snapshot returns a copy of the current position for symbol, if any.
func (m *Manager) Snapshot(symbol string) (types.Position, bool) {
	s := m.slotFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.position == nil {
		return types.Position{}, false
	}
	return s.position.Clone(), true
}

// OpenSymbols lists every symbol currently carrying an open position.
func (m *Manager) OpenSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.slots))
	for sym, s := range m.slots {
		s.mu.Lock()
		if s.position != nil && s.position.IsOpen() {
			out = append(out, sym)
		}
		s.mu.Unlock()
	}
	return out
}

func (m *Manager) ctxWithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, m.AdapterTimeout)
}

// Open executes the open operation for one already-validated, single-symbol
// signal (§4.5 point 1). Idempotent on sig.RequestID: a replayed request id
// for a symbol already in a terminal state from that request is a no-op.
func (m *Manager) Open(ctx context.Context, sig types.TradeSignal) (types.Position, error) {
	symbol := sig.Symbol
	s := m.slotFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.appliedReqs[sig.RequestID]; done && sig.RequestID != "" {
		if s.position != nil {
			return s.position.Clone(), nil
		}
		return types.Position{}, nil
	}
	if s.position != nil && s.position.IsOpen() {
		return types.Position{}, coreerr.New(coreerr.InvalidSignal, "position already open for "+symbol)
	}

	s.state = StateOpening
	defer func() {
		if s.state == StateOpening {
			s.state = StateNone
		}
	}()

	actx, cancel := m.ctxWithTimeout(ctx)
	defer cancel()

	spec, err := m.adapter.GetContractSpec(actx, symbol)
	if err != nil {
		return types.Position{}, coreerr.Wrap(coreerr.AdapterError, "get contract spec", err)
	}

	if sig.Leverage != nil {
		if err := m.adapter.SetLeverage(actx, symbol, *sig.Leverage); err != nil {
			return types.Position{}, coreerr.Wrap(coreerr.AdapterError, "set leverage", err)
		}
	}

	var refPrice decimal.Decimal
	if sig.EntryPrice != nil {
		refPrice = *sig.EntryPrice
		if m.EntryPriceCapEnabled {
			mark, err := m.adapter.GetMarkPrice(actx, symbol)
			if err != nil {
				return types.Position{}, coreerr.Wrap(coreerr.PriceUnavailable, "get mark price for entry cap check", err)
			}
			capBreached := (sig.Direction == types.DirectionLong && mark.GreaterThan(*sig.EntryPrice)) ||
				(sig.Direction == types.DirectionShort && mark.LessThan(*sig.EntryPrice))
			if capBreached {
				return types.Position{}, coreerr.New(coreerr.InvalidSignal, "mark price has moved past the requested entry_price cap")
			}
		}
	} else {
		refPrice, err = m.adapter.GetMarkPrice(actx, symbol)
		if err != nil {
			return types.Position{}, coreerr.Wrap(coreerr.PriceUnavailable, "get mark price for sizing", err)
		}
	}

	if sig.Quantity == nil {
		return types.Position{}, coreerr.New(coreerr.InvalidSignal, "quantity is required to open")
	}
	contracts, err := sizer.Size(spec, *sig.Quantity, sig.UnitType, refPrice, m.SizerOptions)
	if err != nil {
		return types.Position{}, err
	}

	side := exchange.SideBuy
	if sig.Direction == types.DirectionShort {
		side = exchange.SideSell
	}

	result, err := m.adapter.PlaceOrder(actx, symbol, side, sig.Direction, contracts, sig.EntryPrice, sig.RequestID)
	if err != nil {
		return types.Position{}, coreerr.Wrap(coreerr.AdapterError, "place open order", err)
	}

	leverage := 1
	if sig.Leverage != nil {
		leverage = *sig.Leverage
	}

	qty := result.FilledSize
	if sig.Direction == types.DirectionShort {
		qty = -qty
	}

	pos := types.Position{
		Symbol:               symbol,
		PositionID:           sig.RequestID,
		Direction:            sig.Direction,
		Status:               types.StatusOpen,
		EntryPrice:           result.AvgFillPrice,
		Quantity:             qty,
		ContractSize:         spec.ContractSize,
		Leverage:             leverage,
		EntryTS:              time.Now().UTC(),
		HighWatermark:        result.AvgFillPrice,
		LowWatermark:         result.AvgFillPrice,
		LadderClosedFraction: decimal.Zero,
	}
	if sig.TakeProfitPct != nil {
		pos.TPPct = *sig.TakeProfitPct
	}
	if sig.StopLossPct != nil {
		pos.SLPct = *sig.StopLossPct
	}
	if sig.TrailingStop != nil {
		pos.TrailingEnabled = *sig.TrailingStop
	}
	if sig.TrailingDistance != nil {
		pos.TrailingDistance = *sig.TrailingDistance
	}
	if sig.LadderTP != nil {
		pos.Ladder = types.Ladder{
			Enabled:  sig.LadderTP.Enabled,
			StepPct:  sig.LadderTP.StepPct,
			ClosePct: sig.LadderTP.ClosePct,
		}
	}

	if err := m.store.Upsert(ctx, pos); err != nil {
		return types.Position{}, err
	}

	s.position = &pos
	s.state = StateOpen
	if sig.RequestID != "" {
		s.appliedReqs[sig.RequestID] = struct{}{}
	}

	metrics.PositionsOpened.WithLabelValues(symbol, string(sig.Direction)).Inc()
	metrics.OpenPositionsGauge.WithLabelValues(symbol).Set(1)
	m.log.Info().Str("symbol", symbol).Str("direction", string(sig.Direction)).
		Int64("quantity", pos.Quantity).Str("entry_price", pos.EntryPrice.String()).Msg("position opened")

	return pos.Clone(), nil
}

// Close fully closes the open position for symbol, with reason used only
// for logging/metrics (§4.5 point 2, §4.1 record_close).
func (m *Manager) Close(ctx context.Context, symbol, requestID string, reason risk.CloseReason) (types.Position, error) {
	s := m.slotFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	if requestID != "" {
		if _, done := s.appliedReqs[requestID]; done {
			if s.position != nil {
				return s.position.Clone(), nil
			}
			return types.Position{}, coreerr.New(coreerr.NoSuchPosition, "no open position for "+symbol)
		}
	}
	if s.position == nil || !s.position.IsOpen() {
		return types.Position{}, coreerr.New(coreerr.NoSuchPosition, "no open position for "+symbol)
	}

	prevState := s.state
	s.state = StateClosing
	defer func() {
		if s.state == StateClosing {
			s.state = prevState
		}
	}()

	actx, cancel := m.ctxWithTimeout(ctx)
	defer cancel()

	side := exchange.SideSell
	if s.position.Direction == types.DirectionShort {
		side = exchange.SideBuy
	}
	clientID := requestID
	if clientID == "" {
		clientID = s.position.PositionID + ":close"
	}

	result, err := m.adapter.PlaceOrder(actx, symbol, side, s.position.Direction, s.position.AbsQuantity(), nil, clientID)
	if err != nil {
		return types.Position{}, coreerr.Wrap(coreerr.AdapterError, "place close order", err)
	}

	realized := realizedPnL(*s.position, result.AvgFillPrice, s.position.AbsQuantity())

	if err := m.store.RecordClose(ctx, symbol, result.AvgFillPrice, time.Now().UTC(), realized); err != nil {
		return types.Position{}, err
	}

	closed := *s.position
	closed.Status = types.StatusClosed
	closed.ExitPrice = result.AvgFillPrice
	closed.ExitTS = time.Now().UTC()
	closed.RealizedPnL = realized
	closed.Quantity = 0

	s.position = nil
	s.state = StateNone
	if requestID != "" {
		s.appliedReqs[requestID] = struct{}{}
	}

	metrics.PositionsClosed.WithLabelValues(symbol, string(reason)).Inc()
	metrics.OpenPositionsGauge.WithLabelValues(symbol).Set(0)
	m.log.Info().Str("symbol", symbol).Str("reason", string(reason)).
		Str("realized_pnl", realized.String()).Msg("position closed")

	return closed, nil
}

// PartialClose reduces the open position by fraction of its remaining
// quantity, keeping at least one contract closed when fraction is positive
// (§4.5 point 3, the Open Question decision that ladder fractions apply to
// the remaining quantity rather than the original size).
func (m *Manager) PartialClose(ctx context.Context, symbol string, fraction decimal.Decimal, newLadderTier int, reason risk.CloseReason) (types.Position, error) {
	s := m.slotFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position == nil || !s.position.IsOpen() {
		return types.Position{}, coreerr.New(coreerr.NoSuchPosition, "no open position for "+symbol)
	}

	remaining := s.position.AbsQuantity()
	closeQty := money.FloorInt64(decimal.NewFromInt(remaining).Mul(fraction))
	if closeQty < 1 {
		closeQty = 1
	}
	if closeQty > remaining {
		closeQty = remaining
	}

	prevState := s.state
	s.state = StateClosing
	defer func() {
		if s.state == StateClosing {
			s.state = prevState
		}
	}()

	actx, cancel := m.ctxWithTimeout(ctx)
	defer cancel()

	side := exchange.SideSell
	if s.position.Direction == types.DirectionShort {
		side = exchange.SideBuy
	}
	clientID := s.position.PositionID + ":ladder:" + strconv.Itoa(newLadderTier)

	result, err := m.adapter.PlaceOrder(actx, symbol, side, s.position.Direction, closeQty, nil, clientID)
	if err != nil {
		return types.Position{}, coreerr.Wrap(coreerr.AdapterError, "place partial close order", err)
	}

	if closeQty >= remaining {
		realized := realizedPnL(*s.position, result.AvgFillPrice, closeQty)
		if err := m.store.RecordClose(ctx, symbol, result.AvgFillPrice, time.Now().UTC(), realized); err != nil {
			return types.Position{}, err
		}
		closed := *s.position
		closed.Status = types.StatusClosed
		closed.Quantity = 0
		closed.ExitPrice = result.AvgFillPrice
		closed.ExitTS = time.Now().UTC()
		closed.RealizedPnL = realized
		s.position = nil
		s.state = StateNone
		metrics.PositionsClosed.WithLabelValues(symbol, string(reason)).Inc()
		metrics.OpenPositionsGauge.WithLabelValues(symbol).Set(0)
		return closed, nil
	}

	newQty := remaining - closeQty
	if s.position.Direction == types.DirectionShort {
		s.position.Quantity = -newQty
	} else {
		s.position.Quantity = newQty
	}
	s.position.LadderTierHit = newLadderTier
	s.position.LadderClosedFraction = s.position.LadderClosedFraction.Add(fraction)

	if err := m.store.Upsert(ctx, *s.position); err != nil {
		return types.Position{}, err
	}

	metrics.PositionsClosed.WithLabelValues(symbol, string(reason)).Inc()
	m.log.Info().Str("symbol", symbol).Int64("closed_qty", closeQty).
		Int("ladder_tier", newLadderTier).Msg("position partially closed")

	return s.position.Clone(), nil
}

// Modify applies a rule-snapshot change to the already-open position for
// symbol (§4.5 point 4): only TP/SL/trailing/ladder fields change; entry
// price, quantity, and direction are immutable once open.
func (m *Manager) Modify(ctx context.Context, sig types.TradeSignal) (types.Position, error) {
	s := m.slotFor(sig.Symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.position == nil || !s.position.IsOpen() {
		return types.Position{}, coreerr.New(coreerr.NoSuchPosition, "no open position for "+sig.Symbol)
	}

	prevState := s.state
	s.state = StateModifying
	defer func() { s.state = prevState }()

	if sig.TakeProfitPct != nil {
		s.position.TPPct = *sig.TakeProfitPct
	}
	if sig.StopLossPct != nil {
		s.position.SLPct = *sig.StopLossPct
	}
	if sig.TrailingStop != nil {
		s.position.TrailingEnabled = *sig.TrailingStop
	}
	if sig.TrailingDistance != nil {
		s.position.TrailingDistance = *sig.TrailingDistance
	}
	if sig.LadderTP != nil {
		s.position.Ladder = types.Ladder{
			Enabled:  sig.LadderTP.Enabled,
			StepPct:  sig.LadderTP.StepPct,
			ClosePct: sig.LadderTP.ClosePct,
		}
	}

	if err := m.store.Upsert(ctx, *s.position); err != nil {
		return types.Position{}, err
	}
	return s.position.Clone(), nil
}

// ApplyTick feeds a fresh price into the position's watermarks and the
// Risk Evaluator, and executes the resulting decision (§4.5 point 5, the
// Monitor Loop's per-tick callback). It is a no-op when no position is
// open for symbol.
func (m *Manager) ApplyTick(ctx context.Context, symbol string, price decimal.Decimal, priceAge time.Duration, now time.Time) error {
	s := m.slotFor(symbol)
	s.mu.Lock()
	if s.position == nil || !s.position.IsOpen() || s.state != StateOpen {
		s.mu.Unlock()
		return nil
	}

	if price.Sign() > 0 {
		if s.position.Direction == types.DirectionLong {
			if price.GreaterThan(s.position.HighWatermark) {
				s.position.HighWatermark = price
			}
		} else {
			if s.position.LowWatermark.IsZero() || price.LessThan(s.position.LowWatermark) {
				s.position.LowWatermark = price
			}
		}
	}

	decision := risk.Evaluate(*s.position, price, priceAge, now, m.RiskParams)
	pos := *s.position
	s.mu.Unlock()

	metrics.RiskDecisions.WithLabelValues(string(decision.Outcome)).Inc()

	switch decision.Outcome {
	case risk.Hold:
		if decision.Warning != "" {
			m.log.Debug().Str("symbol", symbol).Str("warning", decision.Warning).Msg("risk evaluator held")
		}
		// Persist the watermark movement even on hold so a restart doesn't
		// lose trailing-stop progress.
		return m.store.Upsert(ctx, pos)
	case risk.Close:
		_, err := m.Close(ctx, symbol, "", decision.Reason)
		return err
	case risk.PartialClose:
		_, err := m.PartialClose(ctx, symbol, decision.Fraction, decision.NewLadderTier, decision.Reason)
		return err
	default:
		return nil
	}
}

// Reconcile resolves an adapter-timeout ambiguity (§4.5 point 6, §7): it
// asks the adapter for its own view of the position and reconciles the
// local record to match, favoring the adapter's reported quantity.
func (m *Manager) Reconcile(ctx context.Context, symbol string) error {
	s := m.slotFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	prevState := s.state
	s.state = StateReconciling
	defer func() { s.state = prevState }()

	actx, cancel := m.ctxWithTimeout(ctx)
	defer cancel()

	positions, err := m.adapter.GetPositions(actx)
	if err != nil {
		return coreerr.Wrap(coreerr.AdapterError, "reconcile: get positions", err)
	}

	var found *exchange.ExchangePosition
	for i := range positions {
		if positions[i].Symbol == symbol {
			found = &positions[i]
			break
		}
	}

	switch {
	case found == nil || found.Quantity == 0:
		if s.position != nil {
			m.log.Warn().Str("symbol", symbol).Msg("reconcile: adapter reports flat, dropping local position")
			s.position = nil
			s.state = StateNone
		}
	case s.position == nil:
		m.log.Warn().Str("symbol", symbol).Msg("reconcile: adapter reports a position the core did not expect")
	default:
		if s.position.Quantity != found.Quantity {
			m.log.Warn().Str("symbol", symbol).Int64("local", s.position.Quantity).
				Int64("adapter", found.Quantity).Msg("reconcile: quantity mismatch, adopting adapter value")
			s.position.Quantity = found.Quantity
			if err := m.store.Upsert(ctx, *s.position); err != nil {
				return err
			}
		}
		s.state = StateOpen
	}
	return nil
}

// realizedPnL computes the direction-signed price delta times the closed
// quantity times the instrument's contract size, converting contract count
// into base units so the result is PnL in quote currency (§3, §4.5).
func realizedPnL(p types.Position, exitPrice decimal.Decimal, closedQty int64) decimal.Decimal {
	delta := exitPrice.Sub(p.EntryPrice)
	if p.Direction == types.DirectionShort {
		delta = delta.Neg()
	}
	return delta.Mul(decimal.NewFromInt(closedQty)).Mul(p.ContractSize)
}
