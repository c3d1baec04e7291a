package position

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/perpexec/internal/exchange/paper"
	"github.com/chidi150c/perpexec/internal/risk"
	"github.com/chidi150c/perpexec/internal/store"
	"github.com/chidi150c/perpexec/internal/types"
)

func newTestManager(t *testing.T) (*Manager, *paper.Adapter, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	adapter := paper.New(types.Instrument{ContractSize: decimal.NewFromInt(1), MinSize: 1})
	mgr := New(adapter, st, zerolog.Nop())
	return mgr, adapter, st
}

func openSignal(symbol string, qty int64) types.TradeSignal {
	q := decimal.NewFromInt(qty)
	return types.TradeSignal{
		RequestID: "req-" + symbol,
		Action:    types.ActionOpen,
		Symbol:    symbol,
		Direction: types.DirectionLong,
		Quantity:  &q,
		UnitType:  types.UnitContract,
	}
}

func TestOpen_CreatesPositionAndPersists(t *testing.T) {
	mgr, adapter, st := newTestManager(t)
	adapter.SeedPrice("BTC-USDT-SWAP", decimal.NewFromInt(50000))

	pos, err := mgr.Open(context.Background(), openSignal("BTC-USDT-SWAP", 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos.Quantity)
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(50000)))

	rows, err := st.LoadOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestOpen_RejectsSecondOpenOnSameSymbol(t *testing.T) {
	mgr, adapter, _ := newTestManager(t)
	adapter.SeedPrice("BTC-USDT-SWAP", decimal.NewFromInt(50000))

	_, err := mgr.Open(context.Background(), openSignal("BTC-USDT-SWAP", 1))
	require.NoError(t, err)

	_, err = mgr.Open(context.Background(), openSignal("BTC-USDT-SWAP", 1))
	assert.Error(t, err)
}

func TestOpen_IdempotentReplay(t *testing.T) {
	mgr, adapter, _ := newTestManager(t)
	adapter.SeedPrice("BTC-USDT-SWAP", decimal.NewFromInt(50000))

	sig := openSignal("BTC-USDT-SWAP", 1)
	first, err := mgr.Open(context.Background(), sig)
	require.NoError(t, err)

	replay, err := mgr.Open(context.Background(), sig)
	require.NoError(t, err)
	assert.Equal(t, first.Quantity, replay.Quantity)
}

func TestClose_RemovesPositionAndRecordsHistory(t *testing.T) {
	mgr, adapter, st := newTestManager(t)
	adapter.SeedPrice("BTC-USDT-SWAP", decimal.NewFromInt(50000))

	_, err := mgr.Open(context.Background(), openSignal("BTC-USDT-SWAP", 1))
	require.NoError(t, err)

	adapter.SeedPrice("BTC-USDT-SWAP", decimal.NewFromInt(51000))
	closed, err := mgr.Close(context.Background(), "BTC-USDT-SWAP", "req-close", risk.ReasonManual)
	require.NoError(t, err)
	assert.True(t, closed.RealizedPnL.Equal(decimal.NewFromInt(1000)))

	_, stillOpen := mgr.Snapshot("BTC-USDT-SWAP")
	assert.False(t, stillOpen)

	history, err := st.QueryHistory(context.Background(), "BTC-USDT-SWAP", time.Now().Add(-time.Hour), time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestClose_AppliesContractSizeToRealizedPnL(t *testing.T) {
	mgr, adapter, _ := newTestManager(t)
	adapter.SeedSpec("BTC-USDT-SWAP", types.Instrument{ContractSize: decimal.NewFromFloat(0.01), MinSize: 1})
	adapter.SeedPrice("BTC-USDT-SWAP", decimal.NewFromInt(50000))

	_, err := mgr.Open(context.Background(), openSignal("BTC-USDT-SWAP", 1))
	require.NoError(t, err)

	adapter.SeedPrice("BTC-USDT-SWAP", decimal.NewFromInt(52500))
	closed, err := mgr.Close(context.Background(), "BTC-USDT-SWAP", "req-close", risk.ReasonManual)
	require.NoError(t, err)
	assert.True(t, closed.RealizedPnL.Equal(decimal.NewFromInt(25)), "expected realized_pnl=25, got %s", closed.RealizedPnL)
}

func TestPartialClose_ReducesRemainingQuantity(t *testing.T) {
	mgr, adapter, _ := newTestManager(t)
	adapter.SeedPrice("BTC-USDT-SWAP", decimal.NewFromInt(100))

	_, err := mgr.Open(context.Background(), openSignal("BTC-USDT-SWAP", 4))
	require.NoError(t, err)

	pos, err := mgr.PartialClose(context.Background(), "BTC-USDT-SWAP", decimal.NewFromFloat(0.25), 1, risk.ReasonLadderTP)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos.Quantity)
	assert.Equal(t, 1, pos.LadderTierHit)
}

func TestPartialClose_ClosesFullyWhenFractionReachesRemaining(t *testing.T) {
	mgr, adapter, _ := newTestManager(t)
	adapter.SeedPrice("BTC-USDT-SWAP", decimal.NewFromInt(100))

	_, err := mgr.Open(context.Background(), openSignal("BTC-USDT-SWAP", 1))
	require.NoError(t, err)

	pos, err := mgr.PartialClose(context.Background(), "BTC-USDT-SWAP", decimal.NewFromFloat(1.0), 1, risk.ReasonTakeProfit)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos.Quantity)

	_, stillOpen := mgr.Snapshot("BTC-USDT-SWAP")
	assert.False(t, stillOpen)
}

func TestModify_UpdatesRuleSnapshotOnly(t *testing.T) {
	mgr, adapter, _ := newTestManager(t)
	adapter.SeedPrice("BTC-USDT-SWAP", decimal.NewFromInt(50000))

	opened, err := mgr.Open(context.Background(), openSignal("BTC-USDT-SWAP", 1))
	require.NoError(t, err)

	newTP := decimal.NewFromFloat(0.1)
	modified, err := mgr.Modify(context.Background(), types.TradeSignal{
		Symbol:        "BTC-USDT-SWAP",
		Action:        types.ActionModify,
		TakeProfitPct: &newTP,
	})
	require.NoError(t, err)
	assert.True(t, modified.TPPct.Equal(newTP))
	assert.Equal(t, opened.EntryPrice, modified.EntryPrice)
	assert.Equal(t, opened.Quantity, modified.Quantity)
}

func TestApplyTick_ClosesOnTakeProfit(t *testing.T) {
	mgr, adapter, _ := newTestManager(t)
	adapter.SeedPrice("BTC-USDT-SWAP", decimal.NewFromInt(50000))

	tp := decimal.NewFromFloat(0.05)
	q := decimal.NewFromInt(1)
	_, err := mgr.Open(context.Background(), types.TradeSignal{
		RequestID: "open-1", Action: types.ActionOpen, Symbol: "BTC-USDT-SWAP",
		Direction: types.DirectionLong, Quantity: &q, UnitType: types.UnitContract,
		TakeProfitPct: &tp,
	})
	require.NoError(t, err)

	adapter.SeedPrice("BTC-USDT-SWAP", decimal.NewFromInt(52500))
	err = mgr.ApplyTick(context.Background(), "BTC-USDT-SWAP", decimal.NewFromInt(52500), 0, time.Now())
	require.NoError(t, err)

	_, stillOpen := mgr.Snapshot("BTC-USDT-SWAP")
	assert.False(t, stillOpen)
}

func TestApplyTick_NoOpWithoutOpenPosition(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	err := mgr.ApplyTick(context.Background(), "BTC-USDT-SWAP", decimal.NewFromInt(100), 0, time.Now())
	assert.NoError(t, err)
}

func TestLoadOpen_HydratesFromStore(t *testing.T) {
	mgr, adapter, st := newTestManager(t)
	adapter.SeedPrice("BTC-USDT-SWAP", decimal.NewFromInt(50000))

	_, err := mgr.Open(context.Background(), openSignal("BTC-USDT-SWAP", 1))
	require.NoError(t, err)

	fresh := New(adapter, st, zerolog.Nop())
	require.NoError(t, fresh.LoadOpen(context.Background()))

	pos, ok := fresh.Snapshot("BTC-USDT-SWAP")
	require.True(t, ok)
	assert.Equal(t, int64(1), pos.Quantity)
}
