package domain

import "context"

// OpportunityLog is the bounded, append-only opportunity journal.
type OpportunityLog interface {
	Append(ctx context.Context, opp Opportunity) error
	Recent(ctx context.Context, limit int) ([]Opportunity, error)
}

// OpportunityStore mirrors opportunities into a queryable database.
type OpportunityStore interface {
	InsertOpportunity(ctx context.Context, opp Opportunity) error
}

// TradeStore persists trade outcomes.
type TradeStore interface {
	InsertTrade(ctx context.Context, out TradeOutcome) error
	ListTrades(ctx context.Context, limit int) ([]TradeOutcome, error)
}

// PositionStore persists positions so an interrupted hold can be reconciled
// after a restart. SavePosition upserts by ID.
type PositionStore interface {
	SavePosition(ctx context.Context, pos Position) error
	ListOpenPositions(ctx context.Context) ([]Position, error)
}
