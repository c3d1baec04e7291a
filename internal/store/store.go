// Package store implements the durable Position Store (§4.1, §6) over
// database/sql and modernc.org/sqlite, grounded on
// aristath-sentinel/trader-go/internal/database/db.go for the connection
// setup (WAL journal mode for reader/writer concurrency) and on the
// teacher's trader.go saveState/loadState for the "commit before the
// in-memory transition is final" discipline, now expressed as a two-table
// schema instead of a single JSON blob.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/chidi150c/perpexec/internal/coreerr"
	"github.com/chidi150c/perpexec/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions_open (
	symbol TEXT PRIMARY KEY,
	position_id TEXT NOT NULL,
	direction TEXT NOT NULL,
	status TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	contract_size TEXT NOT NULL,
	leverage INTEGER NOT NULL,
	entry_ts INTEGER NOT NULL,
	tp_pct TEXT NOT NULL,
	sl_pct TEXT NOT NULL,
	trailing_enabled INTEGER NOT NULL,
	trailing_distance TEXT NOT NULL,
	ladder_enabled INTEGER NOT NULL,
	ladder_step_pct TEXT NOT NULL,
	ladder_close_pct TEXT NOT NULL,
	high_watermark TEXT NOT NULL,
	low_watermark TEXT NOT NULL,
	ladder_tier_hit INTEGER NOT NULL,
	ladder_closed_fraction TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS positions_history (
	symbol TEXT NOT NULL,
	position_id TEXT NOT NULL,
	direction TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	contract_size TEXT NOT NULL,
	leverage INTEGER NOT NULL,
	entry_ts INTEGER NOT NULL,
	exit_price TEXT NOT NULL,
	exit_ts INTEGER NOT NULL,
	realized_pnl TEXT NOT NULL,
	pnl_pct TEXT NOT NULL,
	PRIMARY KEY (symbol, position_id)
);

CREATE INDEX IF NOT EXISTS idx_positions_history_exit_ts ON positions_history(exit_ts);
`

// Store is the SQLite-backed Position Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the embedded database at path and
// applies the schema. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.StoreError, "open database", err)
	}
	if path == ":memory:" {
		// A single shared in-memory connection so every caller sees the
		// same database; sqlite's :memory: is otherwise per-connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, coreerr.Wrap(coreerr.StoreError, "ping database", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, coreerr.Wrap(coreerr.StoreError, "apply schema", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert atomically writes the full open-position record keyed by symbol
// (one open row per symbol). Must be durable before the Position Manager
// acknowledges the signal (§4.1).
func (s *Store) Upsert(ctx context.Context, p types.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions_open (
			symbol, position_id, direction, status, entry_price, quantity, contract_size, leverage, entry_ts,
			tp_pct, sl_pct, trailing_enabled, trailing_distance,
			ladder_enabled, ladder_step_pct, ladder_close_pct,
			high_watermark, low_watermark, ladder_tier_hit, ladder_closed_fraction
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol) DO UPDATE SET
			position_id=excluded.position_id, direction=excluded.direction, status=excluded.status,
			entry_price=excluded.entry_price, quantity=excluded.quantity, contract_size=excluded.contract_size,
			leverage=excluded.leverage,
			entry_ts=excluded.entry_ts, tp_pct=excluded.tp_pct, sl_pct=excluded.sl_pct,
			trailing_enabled=excluded.trailing_enabled, trailing_distance=excluded.trailing_distance,
			ladder_enabled=excluded.ladder_enabled, ladder_step_pct=excluded.ladder_step_pct,
			ladder_close_pct=excluded.ladder_close_pct, high_watermark=excluded.high_watermark,
			low_watermark=excluded.low_watermark, ladder_tier_hit=excluded.ladder_tier_hit,
			ladder_closed_fraction=excluded.ladder_closed_fraction
	`,
		p.Symbol, p.PositionID, string(p.Direction), string(p.Status),
		p.EntryPrice.String(), p.Quantity, p.ContractSize.String(), p.Leverage, p.EntryTS.UTC().UnixNano(),
		p.TPPct.String(), p.SLPct.String(), boolToInt(p.TrailingEnabled), p.TrailingDistance.String(),
		boolToInt(p.Ladder.Enabled), p.Ladder.StepPct.String(), p.Ladder.ClosePct.String(),
		p.HighWatermark.String(), p.LowWatermark.String(), p.LadderTierHit, p.LadderClosedFraction.String(),
	)
	if err != nil {
		return coreerr.Wrap(coreerr.StoreError, "upsert position", err)
	}
	return nil
}

// LoadOpen returns every currently open position, used to hydrate the
// Position Manager at boot (§4.1).
func (s *Store) LoadOpen(ctx context.Context) ([]types.Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		symbol, position_id, direction, status, entry_price, quantity, contract_size, leverage, entry_ts,
		tp_pct, sl_pct, trailing_enabled, trailing_distance,
		ladder_enabled, ladder_step_pct, ladder_close_pct,
		high_watermark, low_watermark, ladder_tier_hit, ladder_closed_fraction
	FROM positions_open`)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.StoreError, "load open positions", err)
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		p, err := scanOpen(rows)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.StoreError, "scan open position", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, coreerr.Wrap(coreerr.StoreError, "iterate open positions", err)
	}
	return out, nil
}

// RecordClose finalizes the row: it removes it from positions_open and
// appends it to positions_history in one transaction, matching §4.1's
// "record_close" operation.
func (s *Store) RecordClose(ctx context.Context, symbol string, exitPrice decimal.Decimal, exitTS time.Time, realizedPnL decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return coreerr.Wrap(coreerr.StoreError, "begin record_close", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT
		symbol, position_id, direction, status, entry_price, quantity, contract_size, leverage, entry_ts,
		tp_pct, sl_pct, trailing_enabled, trailing_distance,
		ladder_enabled, ladder_step_pct, ladder_close_pct,
		high_watermark, low_watermark, ladder_tier_hit, ladder_closed_fraction
	FROM positions_open WHERE symbol = ?`, symbol)
	p, err := scanOpen(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return coreerr.New(coreerr.NoSuchPosition, "no open position for "+symbol)
		}
		return coreerr.Wrap(coreerr.StoreError, "read position for close", err)
	}

	var pnlPct decimal.Decimal
	if !p.EntryPrice.IsZero() {
		pnlPct = exitPrice.Sub(p.EntryPrice).Div(p.EntryPrice)
		if p.Direction == types.DirectionShort {
			pnlPct = pnlPct.Neg()
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO positions_history (
			symbol, position_id, direction, entry_price, quantity, contract_size, leverage, entry_ts,
			exit_price, exit_ts, realized_pnl, pnl_pct
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol, position_id) DO UPDATE SET
			exit_price=excluded.exit_price, exit_ts=excluded.exit_ts,
			realized_pnl=excluded.realized_pnl, pnl_pct=excluded.pnl_pct
	`,
		p.Symbol, p.PositionID, string(p.Direction), p.EntryPrice.String(), p.Quantity, p.ContractSize.String(), p.Leverage,
		p.EntryTS.UTC().UnixNano(), exitPrice.String(), exitTS.UTC().UnixNano(),
		realizedPnL.String(), pnlPct.String(),
	); err != nil {
		return coreerr.Wrap(coreerr.StoreError, "insert history row", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions_open WHERE symbol = ?`, symbol); err != nil {
		return coreerr.Wrap(coreerr.StoreError, "delete open row", err)
	}

	if err := tx.Commit(); err != nil {
		return coreerr.Wrap(coreerr.StoreError, "commit record_close", err)
	}
	return nil
}

// HistoryRow is one reverse-chronological history entry.
type HistoryRow struct {
	Symbol      string
	PositionID  string
	Direction   types.Direction
	EntryPrice  decimal.Decimal
	Quantity    int64
	ExitPrice   decimal.Decimal
	ExitTS      time.Time
	RealizedPnL decimal.Decimal
	PnLPct      decimal.Decimal
}

// QueryHistory returns closed positions in [start, end], most-recent-first,
// optionally filtered to one symbol, capped at limit rows (§4.1).
func (s *Store) QueryHistory(ctx context.Context, symbol string, start, end time.Time, limit int) ([]HistoryRow, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT symbol, position_id, direction, entry_price, quantity, exit_price, exit_ts, realized_pnl, pnl_pct
		FROM positions_history WHERE exit_ts BETWEEN ? AND ?`
	args := []any{start.UTC().UnixNano(), end.UTC().UnixNano()}
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY exit_ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.StoreError, "query history", err)
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var h HistoryRow
		var direction string
		var entryPrice, exitPrice, realizedPnL, pnlPct string
		var exitTS int64
		if err := rows.Scan(&h.Symbol, &h.PositionID, &direction, &entryPrice, &h.Quantity, &exitPrice, &exitTS, &realizedPnL, &pnlPct); err != nil {
			return nil, coreerr.Wrap(coreerr.StoreError, "scan history row", err)
		}
		h.Direction = types.Direction(direction)
		h.EntryPrice, _ = decimal.NewFromString(entryPrice)
		h.ExitPrice, _ = decimal.NewFromString(exitPrice)
		h.RealizedPnL, _ = decimal.NewFromString(realizedPnL)
		h.PnLPct, _ = decimal.NewFromString(pnlPct)
		h.ExitTS = time.Unix(0, exitTS).UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}

// DailyRollup aggregates realized PnL over the rows whose exit_ts falls
// within [dayStart, dayEnd) — the caller computes the boundary in whatever
// timezone it uses (§4.1).
type DailyRollup struct {
	RealizedPnL decimal.Decimal
	ClosedCount int
	Wins        int
	Losses      int
}

func (s *Store) DailyRollup(ctx context.Context, dayStart, dayEnd time.Time) (DailyRollup, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT realized_pnl FROM positions_history WHERE exit_ts >= ? AND exit_ts < ?`,
		dayStart.UTC().UnixNano(), dayEnd.UTC().UnixNano())
	if err != nil {
		return DailyRollup{}, coreerr.Wrap(coreerr.StoreError, "query daily rollup", err)
	}
	defer rows.Close()

	out := DailyRollup{RealizedPnL: decimal.Zero}
	for rows.Next() {
		var pnlStr string
		if err := rows.Scan(&pnlStr); err != nil {
			return DailyRollup{}, coreerr.Wrap(coreerr.StoreError, "scan daily rollup row", err)
		}
		pnl, _ := decimal.NewFromString(pnlStr)
		out.RealizedPnL = out.RealizedPnL.Add(pnl)
		out.ClosedCount++
		if pnl.Sign() > 0 {
			out.Wins++
		} else if pnl.Sign() < 0 {
			out.Losses++
		}
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOpen(row scannable) (types.Position, error) {
	var p types.Position
	var direction, status string
	var entryPrice, contractSize, tpPct, slPct, trailingDistance string
	var ladderStepPct, ladderClosePct, highWatermark, lowWatermark, ladderClosedFraction string
	var trailingEnabled, ladderEnabled int
	var entryTS int64

	if err := row.Scan(
		&p.Symbol, &p.PositionID, &direction, &status, &entryPrice, &p.Quantity, &contractSize, &p.Leverage, &entryTS,
		&tpPct, &slPct, &trailingEnabled, &trailingDistance,
		&ladderEnabled, &ladderStepPct, &ladderClosePct,
		&highWatermark, &lowWatermark, &p.LadderTierHit, &ladderClosedFraction,
	); err != nil {
		return types.Position{}, err
	}

	p.Direction = types.Direction(direction)
	p.Status = types.Status(status)
	p.EntryTS = time.Unix(0, entryTS).UTC()
	p.TrailingEnabled = trailingEnabled != 0
	p.Ladder.Enabled = ladderEnabled != 0

	p.EntryPrice, _ = decimal.NewFromString(entryPrice)
	p.ContractSize, _ = decimal.NewFromString(contractSize)
	p.TPPct, _ = decimal.NewFromString(tpPct)
	p.SLPct, _ = decimal.NewFromString(slPct)
	p.TrailingDistance, _ = decimal.NewFromString(trailingDistance)
	p.Ladder.StepPct, _ = decimal.NewFromString(ladderStepPct)
	p.Ladder.ClosePct, _ = decimal.NewFromString(ladderClosePct)
	p.HighWatermark, _ = decimal.NewFromString(highWatermark)
	p.LowWatermark, _ = decimal.NewFromString(lowWatermark)
	p.LadderClosedFraction, _ = decimal.NewFromString(ladderClosedFraction)

	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
