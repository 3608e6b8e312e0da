package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const insertOpportunity = `
	INSERT INTO opportunities (
		id, symbol, observed_at, venue_price, reference_price,
		spread, spread_percent, estimated_profit, direction
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING`

func opportunityArgs(o domain.Opportunity) []any {
	return []any{
		o.ID, o.Symbol, o.Timestamp, o.VenuePrice, o.ReferencePrice,
		o.Spread, o.SpreadPercent, o.EstimatedProfit, string(o.Direction),
	}
}

// InsertOpportunity records opp. Duplicates are skipped.
func (s *OpportunityStore) InsertOpportunity(ctx context.Context, opp domain.Opportunity) error {
	if _, err := s.pool.Exec(ctx, insertOpportunity, opportunityArgs(opp)...); err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// InsertBatch inserts several opportunities in one round trip. It is used to
// backfill the local journal on startup; entries already present are
// skipped.
func (s *OpportunityStore) InsertBatch(ctx context.Context, opps []domain.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, o := range opps {
		batch.Queue(insertOpportunity, opportunityArgs(o)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range opps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: batch insert opportunity %d: %w", i, err)
		}
	}
	return nil
}
