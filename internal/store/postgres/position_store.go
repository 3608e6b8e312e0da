package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, trade_id, symbol, mint, decimals, wallet,
	entry_price, entry_time, quantity, cost, checks, consecutive_failures,
	state, exit_reason, last_profit_percent, updated_at, closed_at`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var state, reason string
	var qty int64

	err := row.Scan(
		&p.ID, &p.TradeID, &p.Symbol, &p.Mint, &p.Decimals, &p.Wallet,
		&p.EntryPrice, &p.EntryTime, &qty, &p.Cost,
		&p.Checks, &p.ConsecutiveFailures,
		&state, &reason, &p.LastProfitPercent, &p.UpdatedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Quantity = uint64(qty)
	p.State = domain.PositionState(state)
	p.ExitReason = domain.ExitReason(reason)
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// SavePosition upserts pos by ID.
func (s *PositionStore) SavePosition(ctx context.Context, pos domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, trade_id, symbol, mint, decimals, wallet,
			entry_price, entry_time, quantity, cost, checks, consecutive_failures,
			state, exit_reason, last_profit_percent, updated_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			quantity             = EXCLUDED.quantity,
			checks               = EXCLUDED.checks,
			consecutive_failures = EXCLUDED.consecutive_failures,
			state                = EXCLUDED.state,
			exit_reason          = EXCLUDED.exit_reason,
			last_profit_percent  = EXCLUDED.last_profit_percent,
			updated_at           = EXCLUDED.updated_at,
			closed_at            = EXCLUDED.closed_at`

	_, err := s.pool.Exec(ctx, query,
		pos.ID, pos.TradeID, pos.Symbol, pos.Mint, pos.Decimals, pos.Wallet,
		pos.EntryPrice, pos.EntryTime, int64(pos.Quantity), pos.Cost,
		pos.Checks, pos.ConsecutiveFailures,
		string(pos.State), string(pos.ExitReason), pos.LastProfitPercent,
		pos.UpdatedAt, pos.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save position %s: %w", pos.ID, err)
	}
	return nil
}

// ListOpenPositions returns positions not yet CLOSED, oldest entry first.
func (s *PositionStore) ListOpenPositions(ctx context.Context) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE state <> $1 ORDER BY entry_time ASC`
	rows, err := s.pool.Query(ctx, query, string(domain.PositionClosed))
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}
