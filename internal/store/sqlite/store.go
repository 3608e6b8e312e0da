// Package sqlite is the default local store for trades, positions and
// opportunities. It uses the pure-Go modernc.org/sqlite driver so the binary
// stays cgo-free.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS opportunities (
    id               TEXT PRIMARY KEY,
    symbol           TEXT NOT NULL,
    observed_at      TEXT NOT NULL,
    venue_price      REAL NOT NULL,
    reference_price  REAL NOT NULL,
    spread           REAL NOT NULL,
    spread_percent   REAL NOT NULL,
    estimated_profit REAL NOT NULL,
    direction        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
    trade_id        TEXT PRIMARY KEY,
    opportunity_id  TEXT NOT NULL DEFAULT '',
    symbol          TEXT NOT NULL,
    direction       TEXT NOT NULL,
    success         INTEGER NOT NULL,
    simulated       INTEGER NOT NULL,
    signatures      TEXT NOT NULL DEFAULT '[]',
    realized_profit REAL NOT NULL DEFAULT 0,
    error           TEXT NOT NULL DEFAULT '',
    wallet          TEXT NOT NULL DEFAULT '',
    exit_reason     TEXT NOT NULL DEFAULT '',
    started_at      TEXT NOT NULL,
    finished_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id                   TEXT PRIMARY KEY,
    trade_id             TEXT NOT NULL,
    symbol               TEXT NOT NULL,
    mint                 TEXT NOT NULL,
    decimals             INTEGER NOT NULL,
    wallet               TEXT NOT NULL,
    entry_price          REAL NOT NULL,
    entry_time           TEXT NOT NULL,
    quantity             INTEGER NOT NULL,
    cost                 REAL NOT NULL,
    checks               INTEGER NOT NULL DEFAULT 0,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    state                TEXT NOT NULL,
    exit_reason          TEXT NOT NULL DEFAULT '',
    last_profit_percent  REAL NOT NULL DEFAULT 0,
    updated_at           TEXT NOT NULL,
    closed_at            TEXT
);

CREATE INDEX IF NOT EXISTS idx_trades_finished ON trades(finished_at DESC);
CREATE INDEX IF NOT EXISTS idx_positions_state ON positions(state);
CREATE INDEX IF NOT EXISTS idx_opps_observed   ON opportunities(observed_at DESC);
`

// Store implements domain.TradeStore, domain.PositionStore and
// domain.OpportunityStore on a single SQLite file.
type Store struct {
	db *sql.DB
}

var (
	_ domain.TradeStore       = (*Store)(nil)
	_ domain.PositionStore    = (*Store)(nil)
	_ domain.OpportunityStore = (*Store)(nil)
)

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives a throwaway database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertOpportunity records opp. Re-inserting the same ID is a no-op.
func (s *Store) InsertOpportunity(ctx context.Context, opp domain.Opportunity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO opportunities
			(id, symbol, observed_at, venue_price, reference_price, spread,
			 spread_percent, estimated_profit, direction)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		opp.ID, opp.Symbol, formatTime(opp.Timestamp), opp.VenuePrice, opp.ReferencePrice,
		opp.Spread, opp.SpreadPercent, opp.EstimatedProfit, string(opp.Direction),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert opportunity: %w", err)
	}
	return nil
}

// InsertTrade records out, replacing an earlier row for the same trade ID.
func (s *Store) InsertTrade(ctx context.Context, out domain.TradeOutcome) error {
	sigs, err := json.Marshal(nonNil(out.Signatures))
	if err != nil {
		return fmt.Errorf("sqlite: encode signatures: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trades
			(trade_id, opportunity_id, symbol, direction, success, simulated,
			 signatures, realized_profit, error, wallet, exit_reason,
			 started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			success         = excluded.success,
			signatures      = excluded.signatures,
			realized_profit = excluded.realized_profit,
			error           = excluded.error,
			exit_reason     = excluded.exit_reason,
			finished_at     = excluded.finished_at`,
		out.TradeID, out.OpportunityID, out.Symbol, string(out.Direction),
		boolInt(out.Success), boolInt(out.Simulated), string(sigs), out.RealizedProfit,
		out.Error, out.Wallet, string(out.ExitReason),
		formatTime(out.StartedAt), formatTime(out.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert trade: %w", err)
	}
	return nil
}

// ListTrades returns the most recent trades, newest first.
func (s *Store) ListTrades(ctx context.Context, limit int) ([]domain.TradeOutcome, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, opportunity_id, symbol, direction, success, simulated,
		       signatures, realized_profit, error, wallet, exit_reason,
		       started_at, finished_at
		FROM trades
		ORDER BY finished_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list trades: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeOutcome
	for rows.Next() {
		var (
			t                  domain.TradeOutcome
			direction, reason  string
			success, simulated int
			sigs               string
			started, finished  string
		)
		if err := rows.Scan(&t.TradeID, &t.OpportunityID, &t.Symbol, &direction,
			&success, &simulated, &sigs, &t.RealizedProfit, &t.Error, &t.Wallet,
			&reason, &started, &finished); err != nil {
			return nil, fmt.Errorf("sqlite: scan trade: %w", err)
		}
		t.Direction = domain.Direction(direction)
		t.ExitReason = domain.ExitReason(reason)
		t.Success = success != 0
		t.Simulated = simulated != 0
		if err := json.Unmarshal([]byte(sigs), &t.Signatures); err != nil {
			return nil, fmt.Errorf("sqlite: decode signatures: %w", err)
		}
		if len(t.Signatures) == 0 {
			t.Signatures = nil
		}
		if t.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if t.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SavePosition upserts pos by ID.
func (s *Store) SavePosition(ctx context.Context, pos domain.Position) error {
	var closed sql.NullString
	if pos.ClosedAt != nil {
		closed = sql.NullString{String: formatTime(*pos.ClosedAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions
			(id, trade_id, symbol, mint, decimals, wallet, entry_price, entry_time,
			 quantity, cost, checks, consecutive_failures, state, exit_reason,
			 last_profit_percent, updated_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			quantity             = excluded.quantity,
			checks               = excluded.checks,
			consecutive_failures = excluded.consecutive_failures,
			state                = excluded.state,
			exit_reason          = excluded.exit_reason,
			last_profit_percent  = excluded.last_profit_percent,
			updated_at           = excluded.updated_at,
			closed_at            = excluded.closed_at`,
		pos.ID, pos.TradeID, pos.Symbol, pos.Mint, pos.Decimals, pos.Wallet,
		pos.EntryPrice, formatTime(pos.EntryTime), int64(pos.Quantity), pos.Cost,
		pos.Checks, pos.ConsecutiveFailures, string(pos.State), string(pos.ExitReason),
		pos.LastProfitPercent, formatTime(pos.UpdatedAt), closed,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save position: %w", err)
	}
	return nil
}

// ListOpenPositions returns every position not yet CLOSED, oldest entry
// first.
func (s *Store) ListOpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+positionCols+`
		FROM positions
		WHERE state <> ?
		ORDER BY entry_time ASC`, string(domain.PositionClosed))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list open positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPosition loads one position by ID.
func (s *Store) GetPosition(ctx context.Context, id string) (domain.Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+positionCols+`
		FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, err
}

const positionCols = `id, trade_id, symbol, mint, decimals, wallet, entry_price, entry_time,
		       quantity, cost, checks, consecutive_failures, state, exit_reason,
		       last_profit_percent, updated_at, closed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var (
		p              domain.Position
		entry, updated string
		closed         sql.NullString
		state, reason  string
		qty            int64
	)
	err := row.Scan(&p.ID, &p.TradeID, &p.Symbol, &p.Mint, &p.Decimals, &p.Wallet,
		&p.EntryPrice, &entry, &qty, &p.Cost, &p.Checks, &p.ConsecutiveFailures,
		&state, &reason, &p.LastProfitPercent, &updated, &closed)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Position{}, err
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("sqlite: scan position: %w", err)
	}
	p.Quantity = uint64(qty)
	p.State = domain.PositionState(state)
	p.ExitReason = domain.ExitReason(reason)
	if p.EntryTime, err = parseTime(entry); err != nil {
		return domain.Position{}, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Position{}, err
	}
	if closed.Valid {
		t, err := parseTime(closed.String)
		if err != nil {
			return domain.Position{}, err
		}
		p.ClosedAt = &t
	}
	return p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
