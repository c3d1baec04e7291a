// Package paper implements exchange.Adapter entirely in memory, grounded
// on the teacher's broker_paper.go: orders fill immediately at the current
// (or caller-supplied) mark price, positions and leverage are simple maps,
// and client order ids are remembered so a replay after a crash is
// idempotent rather than double-filling (§4.5).
package paper

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chidi150c/perpexec/internal/coreerr"
	"github.com/chidi150c/perpexec/internal/exchange"
	"github.com/chidi150c/perpexec/internal/types"
)

// Adapter is the in-memory simulated exchange.
type Adapter struct {
	mu sync.Mutex

	specs     map[string]types.Instrument
	leverage  map[string]int
	prices    map[string]decimal.Decimal
	positions map[string]exchange.ExchangePosition
	fills     map[string]exchange.OrderResult // clientOrderID -> result, for idempotent replay

	subscribers []func()
	onUpdate    []exchange.OnPriceUpdate

	defaultSpec types.Instrument
}

// New builds a paper adapter. defaultSpec is used for any symbol that
// GetContractSpec is asked about without a prior Seed call.
func New(defaultSpec types.Instrument) *Adapter {
	return &Adapter{
		specs:       make(map[string]types.Instrument),
		leverage:    make(map[string]int),
		prices:      make(map[string]decimal.Decimal),
		positions:   make(map[string]exchange.ExchangePosition),
		fills:       make(map[string]exchange.OrderResult),
		defaultSpec: defaultSpec,
	}
}

// SeedSpec registers a contract spec for symbol ahead of time.
func (a *Adapter) SeedSpec(symbol string, spec types.Instrument) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.specs[symbol] = spec
}

// SeedPrice sets the mark price a GetMarkPrice/PlaceOrder call will see for
// symbol, and fans it out to any active subscribers (simulating a tick from
// the exchange's price feed).
func (a *Adapter) SeedPrice(symbol string, price decimal.Decimal) {
	a.mu.Lock()
	a.prices[symbol] = price
	subs := append([]exchange.OnPriceUpdate(nil), a.onUpdate...)
	a.mu.Unlock()

	update := exchange.PriceUpdate{Symbol: symbol, Price: price, TS: time.Now().UTC()}
	for _, cb := range subs {
		cb(update)
	}
}

func (a *Adapter) GetContractSpec(ctx context.Context, symbol string) (types.Instrument, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if spec, ok := a.specs[symbol]; ok {
		return spec, nil
	}
	spec := a.defaultSpec
	spec.Symbol = symbol
	a.specs[symbol] = spec
	return spec, nil
}

func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leverage[symbol] = leverage
	return nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, symbol string, side exchange.Side, posSide types.Direction, sizeContracts int64, price *decimal.Decimal, clientOrderID string) (exchange.OrderResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.fills[clientOrderID]; ok {
		return existing, nil // idempotent replay
	}

	fillPrice, ok := a.prices[symbol]
	if !ok {
		return exchange.OrderResult{}, coreerr.New(coreerr.PriceUnavailable, "no mark price known for "+symbol)
	}
	if price != nil {
		fillPrice = *price
	}

	result := exchange.OrderResult{
		OrderID:      uuid.New().String(),
		FilledSize:   sizeContracts,
		AvgFillPrice: fillPrice,
		Status:       exchange.OrderFilled,
	}
	a.fills[clientOrderID] = result

	delta := sizeContracts
	if side == exchange.SideSell {
		delta = -delta
	}
	pos := a.positions[symbol]
	pos.Symbol = symbol
	pos.Quantity += delta
	pos.AvgPrice = fillPrice
	pos.Leverage = a.leverage[symbol]
	a.positions[symbol] = pos

	return result, nil
}

func (a *Adapter) GetOrder(ctx context.Context, symbol, orderID string) (exchange.OrderResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.fills {
		if r.OrderID == orderID {
			return r, nil
		}
	}
	return exchange.OrderResult{}, coreerr.New(coreerr.AdapterError, "unknown order id "+orderID)
}

func (a *Adapter) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	price, ok := a.prices[symbol]
	if !ok {
		return decimal.Zero, coreerr.New(coreerr.PriceUnavailable, "no mark price known for "+symbol)
	}
	return price, nil
}

// SubscribeMarkPrice registers onUpdate for every SeedPrice call. symbols is
// not used to filter: each subscriber receives updates for every symbol.
func (a *Adapter) SubscribeMarkPrice(ctx context.Context, symbols []string, onUpdate exchange.OnPriceUpdate) (func(), error) {
	a.mu.Lock()
	a.onUpdate = append(a.onUpdate, onUpdate)
	idx := len(a.onUpdate) - 1
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if idx < len(a.onUpdate) {
			a.onUpdate[idx] = func(exchange.PriceUpdate) {}
		}
	}
	return cancel, nil
}

func (a *Adapter) GetPositions(ctx context.Context) ([]exchange.ExchangePosition, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]exchange.ExchangePosition, 0, len(a.positions))
	for _, p := range a.positions {
		if p.Quantity != 0 {
			out = append(out, p)
		}
	}
	return out, nil
}
