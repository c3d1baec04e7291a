// Package exchange declares the Exchange Adapter contract (§6): the
// surface the Position Manager needs to place orders, configure leverage,
// look up contract specs, and read/subscribe to mark prices. A real
// implementation (REST/WebSocket against a perpetual-swap venue) is an
// external collaborator and lives outside this core; internal/exchange/
// paper is the one concrete, in-memory implementation the core carries,
// used for tests and the demo entrypoint.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/perpexec/internal/types"
)

// Side is the order side: buy or sell.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus is the terminal (or in-flight) state of a placed order.
type OrderStatus string

const (
	OrderFilled   OrderStatus = "filled"
	OrderPartial  OrderStatus = "partial"
	OrderPending  OrderStatus = "pending"
	OrderCanceled OrderStatus = "canceled"
	OrderRejected OrderStatus = "rejected"
)

// OrderResult is the adapter's response to PlaceOrder, matching §6's
// {order_id, filled_size, avg_fill_price, status}.
type OrderResult struct {
	OrderID      string
	FilledSize   int64 // contracts actually filled
	AvgFillPrice decimal.Decimal
	Status       OrderStatus
}

// ExchangePosition is one row of GetPositions, used for restart/timeout
// reconciliation.
type ExchangePosition struct {
	Symbol   string
	Quantity int64 // signed contracts
	AvgPrice decimal.Decimal
	Leverage int
}

// PriceUpdate is delivered to a SubscribeMarkPrice callback on every tick.
type PriceUpdate struct {
	Symbol string
	Price  decimal.Decimal
	TS     time.Time
}

// OnPriceUpdate is the subscription callback signature (§6:
// on_update(symbol, price, ts)).
type OnPriceUpdate func(update PriceUpdate)

// Adapter is the minimal surface the Position Manager, Monitor Loop, and
// Price Cache need from an exchange. Every method takes a context so
// callers can bound round trips per §5 (default adapter timeout 10s).
type Adapter interface {
	// GetContractSpec fetches (and the caller is expected to cache) the
	// immutable contract spec for symbol.
	GetContractSpec(ctx context.Context, symbol string) (types.Instrument, error)

	// SetLeverage is idempotent: calling it twice with the same leverage
	// is a no-op from the caller's point of view.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// PlaceOrder places size contracts of symbol. price is nil for a
	// market order. clientOrderID is supplied by the caller so that a
	// replay after a crash does not double-order (§4.5 idempotence).
	PlaceOrder(ctx context.Context, symbol string, side Side, posSide types.Direction, sizeContracts int64, price *decimal.Decimal, clientOrderID string) (OrderResult, error)

	// GetOrder polls a previously placed order by id, used by the
	// reconciliation routine after an adapter timeout.
	GetOrder(ctx context.Context, symbol, orderID string) (OrderResult, error)

	// GetMarkPrice returns a one-shot mark-price snapshot.
	GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// SubscribeMarkPrice arranges for onUpdate to be invoked per tick for
	// each symbol in symbols. The returned cancel func releases the
	// subscription; callers should call it when no position on the
	// symbol remains.
	SubscribeMarkPrice(ctx context.Context, symbols []string, onUpdate OnPriceUpdate) (cancel func(), err error)

	// GetPositions reports the adapter's own belief about open positions,
	// used to reconcile local state after a restart or a timeout.
	GetPositions(ctx context.Context) ([]ExchangePosition, error)
}
