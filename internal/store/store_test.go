package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/perpexec/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePosition(symbol string) types.Position {
	return types.Position{
		Symbol:               symbol,
		PositionID:           "req-1",
		Direction:            types.DirectionLong,
		Status:               types.StatusOpen,
		EntryPrice:           decimal.NewFromInt(50000),
		Quantity:             1,
		ContractSize:         decimal.NewFromInt(1),
		Leverage:             5,
		EntryTS:              time.Now().UTC(),
		TPPct:                decimal.NewFromFloat(0.05),
		SLPct:                decimal.NewFromFloat(0.03),
		HighWatermark:        decimal.NewFromInt(50000),
		LowWatermark:         decimal.NewFromInt(50000),
		LadderClosedFraction: decimal.Zero,
	}
}

func TestUpsertAndLoadOpen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pos := samplePosition("BTC-USDT-SWAP")
	require.NoError(t, s.Upsert(ctx, pos))

	rows, err := s.LoadOpen(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pos.Symbol, rows[0].Symbol)
	assert.True(t, pos.EntryPrice.Equal(rows[0].EntryPrice))
	assert.Equal(t, pos.Quantity, rows[0].Quantity)
	assert.True(t, pos.ContractSize.Equal(rows[0].ContractSize))
}

func TestUpsertOverwritesBySymbol(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pos := samplePosition("ETH-USDT-SWAP")
	require.NoError(t, s.Upsert(ctx, pos))

	pos.Quantity = 7
	pos.HighWatermark = decimal.NewFromInt(51000)
	require.NoError(t, s.Upsert(ctx, pos))

	rows, err := s.LoadOpen(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0].Quantity)
}

func TestRecordCloseMovesRowToHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pos := samplePosition("BTC-USDT-SWAP")
	require.NoError(t, s.Upsert(ctx, pos))

	err := s.RecordClose(ctx, pos.Symbol, decimal.NewFromInt(52000), time.Now().UTC(), decimal.NewFromInt(2000))
	require.NoError(t, err)

	open, err := s.LoadOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 0)

	history, err := s.QueryHistory(ctx, pos.Symbol, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].RealizedPnL.Equal(decimal.NewFromInt(2000)))
}

func TestRecordCloseWithNoOpenPositionFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.RecordClose(ctx, "NOPE-USDT-SWAP", decimal.NewFromInt(1), time.Now(), decimal.Zero)
	assert.Error(t, err)
}

func TestDailyRollup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, pnl := range []int64{100, -50, 200} {
		pos := samplePosition("BTC-USDT-SWAP")
		pos.PositionID = "req-" + string(rune('a'+i))
		require.NoError(t, s.Upsert(ctx, pos))
		require.NoError(t, s.RecordClose(ctx, pos.Symbol, decimal.NewFromInt(1), now, decimal.NewFromInt(pnl)))
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	rollup, err := s.DailyRollup(ctx, dayStart, dayStart.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, rollup.ClosedCount)
	assert.Equal(t, 2, rollup.Wins)
	assert.Equal(t, 1, rollup.Losses)
	assert.True(t, rollup.RealizedPnL.Equal(decimal.NewFromInt(250)))
}

func TestQueryHistoryIsReverseChronological(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		pos := samplePosition("BTC-USDT-SWAP")
		pos.PositionID = "req-" + string(rune('a'+i))
		require.NoError(t, s.Upsert(ctx, pos))
		require.NoError(t, s.RecordClose(ctx, pos.Symbol, decimal.NewFromInt(1), base.Add(time.Duration(i)*time.Minute), decimal.Zero))
	}

	history, err := s.QueryHistory(ctx, "", base.Add(-time.Minute), time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[0].ExitTS.After(history[1].ExitTS))
	assert.True(t, history[1].ExitTS.After(history[2].ExitTS))
}
