package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2025, 6, 2, 14, 30, 0, 123456789, time.UTC)

func TestTrades_InsertAndList(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	older := domain.TradeOutcome{
		TradeID:        "t-1",
		OpportunityID:  "o-1",
		Symbol:         "TSLAx",
		Direction:      domain.DirectionBuyCheapVenue,
		Success:        true,
		Signatures:     []string{"sigA", "sigB"},
		RealizedProfit: 1.2,
		Wallet:         "W1",
		ExitReason:     domain.ExitTakeProfit,
		StartedAt:      t0,
		FinishedAt:     t0.Add(3 * time.Minute),
	}
	newer := domain.TradeOutcome{
		TradeID:    "t-2",
		Symbol:     "NVDAx",
		Direction:  domain.DirectionBuyCheapVenue,
		Simulated:  true,
		Success:    true,
		StartedAt:  t0.Add(10 * time.Minute),
		FinishedAt: t0.Add(10 * time.Minute),
	}
	require.NoError(t, s.InsertTrade(ctx, older))
	require.NoError(t, s.InsertTrade(ctx, newer))

	got, err := s.ListTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer, got[0])
	assert.Equal(t, older, got[1])

	limited, err := s.ListTrades(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "t-2", limited[0].TradeID)
}

func TestTrades_ReinsertUpdates(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	out := domain.TradeOutcome{
		TradeID: "t-1", Symbol: "TSLAx", Direction: domain.DirectionBuyCheapVenue,
		StartedAt: t0, FinishedAt: t0,
	}
	require.NoError(t, s.InsertTrade(ctx, out))
	out.Success = true
	out.RealizedProfit = 0.5
	require.NoError(t, s.InsertTrade(ctx, out))

	got, err := s.ListTrades(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Success)
	assert.InDelta(t, 0.5, got[0].RealizedProfit, 1e-9)
}

func TestPositions_UpsertAndOpenFilter(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	pos := domain.Position{
		ID:         "p-1",
		TradeID:    "t-1",
		Symbol:     "TSLAx",
		Mint:       "XsDoVfqeBukxuZHWhdvWHBhgEHjGNst4MLodqsJHzoB",
		Decimals:   8,
		Wallet:     "W1",
		EntryPrice: 245.5,
		EntryTime:  t0,
		Quantity:   40_000_000,
		Cost:       98.2,
		State:      domain.PositionHolding,
		UpdatedAt:  t0,
	}
	require.NoError(t, s.SavePosition(ctx, pos))

	pos.Checks = 3
	pos.LastProfitPercent = 0.4
	pos.UpdatedAt = t0.Add(time.Minute)
	require.NoError(t, s.SavePosition(ctx, pos))

	open, err := s.ListOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, pos, open[0])

	closed := t0.Add(5 * time.Minute)
	pos.State = domain.PositionClosed
	pos.ExitReason = domain.ExitMinProfit
	pos.ClosedAt = &closed
	require.NoError(t, s.SavePosition(ctx, pos))

	open, err = s.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	got, err := s.GetPosition(ctx, "p-1")
	require.NoError(t, err)
	require.NotNil(t, got.ClosedAt)
	assert.True(t, closed.Equal(*got.ClosedAt))
	assert.Equal(t, domain.ExitMinProfit, got.ExitReason)
}

func TestGetPosition_NotFound(t *testing.T) {
	s := openTest(t)
	_, err := s.GetPosition(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOpportunities_InsertIsIdempotent(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	opp := domain.Opportunity{
		ID: "o-1", Symbol: "TSLAx", Timestamp: t0,
		VenuePrice: 245, ReferencePrice: 247, Spread: 2, SpreadPercent: 0.8163,
		EstimatedProfit: 0.51, Direction: domain.DirectionBuyCheapVenue,
	}
	require.NoError(t, s.InsertOpportunity(ctx, opp))
	require.NoError(t, s.InsertOpportunity(ctx, opp))

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM opportunities`).Scan(&n))
	assert.Equal(t, 1, n)
}
