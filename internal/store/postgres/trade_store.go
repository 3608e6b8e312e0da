package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `trade_id, opportunity_id, symbol, direction, success, simulated,
	signatures, realized_profit, error, wallet, exit_reason, started_at, finished_at`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeOutcome, error) {
	var trades []domain.TradeOutcome
	for rows.Next() {
		var t domain.TradeOutcome
		var direction, reason string
		if err := rows.Scan(
			&t.TradeID, &t.OpportunityID, &t.Symbol, &direction,
			&t.Success, &t.Simulated, &t.Signatures, &t.RealizedProfit,
			&t.Error, &t.Wallet, &reason, &t.StartedAt, &t.FinishedAt,
		); err != nil {
			return nil, err
		}
		t.Direction = domain.Direction(direction)
		t.ExitReason = domain.ExitReason(reason)
		if len(t.Signatures) == 0 {
			t.Signatures = nil
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertTrade records out. A later write for the same trade ID replaces the
// settlement columns.
func (s *TradeStore) InsertTrade(ctx context.Context, out domain.TradeOutcome) error {
	sigs := out.Signatures
	if sigs == nil {
		sigs = []string{}
	}
	const query = `
		INSERT INTO trades (
			trade_id, opportunity_id, symbol, direction, success, simulated,
			signatures, realized_profit, error, wallet, exit_reason,
			started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (trade_id) DO UPDATE SET
			success         = EXCLUDED.success,
			signatures      = EXCLUDED.signatures,
			realized_profit = EXCLUDED.realized_profit,
			error           = EXCLUDED.error,
			exit_reason     = EXCLUDED.exit_reason,
			finished_at     = EXCLUDED.finished_at`

	_, err := s.pool.Exec(ctx, query,
		out.TradeID, out.OpportunityID, out.Symbol, string(out.Direction),
		out.Success, out.Simulated, sigs, out.RealizedProfit,
		out.Error, out.Wallet, string(out.ExitReason),
		out.StartedAt, out.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", out.TradeID, err)
	}
	return nil
}

// ListTrades returns the most recent trades, newest first.
func (s *TradeStore) ListTrades(ctx context.Context, limit int) ([]domain.TradeOutcome, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + tradeSelectCols + ` FROM trades ORDER BY finished_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}
