package arbitrage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

type mockPriceSource struct {
	mock.Mock
	name string
}

func (m *mockPriceSource) Name() string { return m.name }

func (m *mockPriceSource) Price(ctx context.Context, asset domain.AssetConfig) (domain.PriceQuote, error) {
	args := m.Called(asset.Symbol)
	return args.Get(0).(domain.PriceQuote), args.Error(1)
}

type memoryLog struct {
	mu   sync.Mutex
	opps []domain.Opportunity
}

func (l *memoryLog) Append(_ context.Context, opp domain.Opportunity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opps = append(l.opps, opp)
	return nil
}

func (l *memoryLog) Recent(_ context.Context, limit int) ([]domain.Opportunity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Opportunity(nil), l.opps...), nil
}

var (
	tsla = domain.AssetConfig{Symbol: "TSLAx", Mint: "mint-tsla", FeedID: "feed-tsla", Decimals: 8}
	nvda = domain.AssetConfig{Symbol: "NVDAx", Mint: "mint-nvda", FeedID: "feed-nvda", Decimals: 8}
)

func quote(price float64) domain.PriceQuote {
	return domain.PriceQuote{Source: "test", Price: price, Timestamp: time.Now()}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type monitorFixture struct {
	venue   *mockPriceSource
	ref     *mockPriceSource
	log     *memoryLog
	mu      sync.Mutex
	handled []domain.Opportunity
}

func newMonitor(t *testing.T, minSpread float64, assets ...domain.AssetConfig) (*Monitor, *monitorFixture) {
	t.Helper()
	fx := &monitorFixture{
		venue: &mockPriceSource{name: "venue"},
		ref:   &mockPriceSource{name: "reference"},
		log:   &memoryLog{},
	}
	m := NewMonitor(MonitorConfig{
		Assets:   assets,
		Interval: time.Hour,
		Calculator: Calculator{
			Notional:   100,
			Fees:       FeeModel{FeePercent: 0.3, GasCost: 0.01},
			Thresholds: Thresholds{MinSpreadPercent: minSpread, MinProfit: 0.40},
		},
		Venue:     fx.venue,
		Reference: fx.ref,
		Log:       fx.log,
		Handler: func(_ context.Context, opp domain.Opportunity, _ domain.AssetConfig) {
			fx.mu.Lock()
			defer fx.mu.Unlock()
			fx.handled = append(fx.handled, opp)
		},
		Logger: discardLogger(),
	})
	return m, fx
}

func TestMonitorEmitsOpportunity(t *testing.T) {
	m, fx := newMonitor(t, 0.5, tsla)
	fx.venue.On("Price", "TSLAx").Return(quote(100.00), nil)
	fx.ref.On("Price", "TSLAx").Return(quote(100.80), nil)

	m.Tick(context.Background())
	m.Wait()

	require.Len(t, fx.log.opps, 1)
	opp := fx.log.opps[0]
	assert.Equal(t, "TSLAx", opp.Symbol)
	assert.Equal(t, domain.DirectionBuyCheapVenue, opp.Direction)
	assert.InDelta(t, 0.794, opp.SpreadPercent, 0.001)
	assert.InDelta(t, 0.49, opp.EstimatedProfit, 0.001)
	assert.NotEmpty(t, opp.ID)

	require.Len(t, fx.handled, 1)
	assert.Equal(t, opp.ID, fx.handled[0].ID)

	stats := m.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Checks)
	assert.Equal(t, int64(1), stats[0].Opportunities)
	assert.Equal(t, StateOpportunity, stats[0].LastState)
}

func TestMonitorSkipsBelowMinSpread(t *testing.T) {
	m, fx := newMonitor(t, 1.0, tsla)
	fx.venue.On("Price", "TSLAx").Return(quote(100.00), nil)
	fx.ref.On("Price", "TSLAx").Return(quote(100.80), nil)

	m.Tick(context.Background())
	m.Wait()

	assert.Empty(t, fx.log.opps)
	assert.Empty(t, fx.handled)
	stats := m.Stats()
	assert.Equal(t, int64(1), stats[0].Checks)
	assert.Equal(t, StateNoOpportunity, stats[0].LastState)
}

func TestMonitorIsolatesAssetFailures(t *testing.T) {
	m, fx := newMonitor(t, 0.5, tsla, nvda)
	fx.venue.On("Price", "TSLAx").Return(domain.PriceQuote{}, errors.New("gateway down"))
	fx.ref.On("Price", "TSLAx").Return(quote(100.80), nil)
	fx.venue.On("Price", "NVDAx").Return(quote(180.00), nil)
	fx.ref.On("Price", "NVDAx").Return(quote(182.00), nil)

	m.Tick(context.Background())
	m.Wait()

	require.Len(t, fx.log.opps, 1)
	assert.Equal(t, "NVDAx", fx.log.opps[0].Symbol)

	stats := m.Stats()
	assert.Equal(t, int64(0), stats[0].Checks)
	assert.Contains(t, stats[0].LastError, "gateway down")
	assert.Equal(t, StateNoOpportunity, stats[0].LastState)
	assert.Equal(t, int64(1), stats[1].Checks)
}

func TestMonitorRunningAverage(t *testing.T) {
	m, fx := newMonitor(t, 50, tsla)
	fx.ref.On("Price", "TSLAx").Return(quote(100), nil)
	fx.venue.On("Price", "TSLAx").Return(quote(99), nil).Once()
	fx.venue.On("Price", "TSLAx").Return(quote(97), nil).Once()
	fx.venue.On("Price", "TSLAx").Return(quote(98), nil).Once()

	for i := 0; i < 3; i++ {
		m.Tick(context.Background())
	}

	stats := m.Stats()[0]
	assert.Equal(t, int64(3), stats.Checks)
	assert.InDelta(t, 2.0, stats.AvgSpreadPercent, 1e-9)
	assert.InDelta(t, 3.0, stats.MaxSpreadPercent, 1e-9)
	assert.Equal(t, int64(0), stats.Opportunities)
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	m, fx := newMonitor(t, 0.5, tsla)
	fx.venue.On("Price", "TSLAx").Return(quote(100), nil)
	fx.ref.On("Price", "TSLAx").Return(quote(100), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Stats()[0].Checks == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestMonitorHandlerDoesNotBlockTicks(t *testing.T) {
	venue := &mockPriceSource{name: "venue"}
	ref := &mockPriceSource{name: "reference"}
	venue.On("Price", "TSLAx").Return(quote(100.00), nil)
	ref.On("Price", "TSLAx").Return(quote(100.80), nil)

	var started atomic.Int64
	m := NewMonitor(MonitorConfig{
		Assets:   []domain.AssetConfig{tsla},
		Interval: 10 * time.Millisecond,
		Calculator: Calculator{
			Notional:   100,
			Fees:       FeeModel{FeePercent: 0.3, GasCost: 0.01},
			Thresholds: Thresholds{MinSpreadPercent: 0.5, MinProfit: 0.40},
		},
		Venue:     venue,
		Reference: ref,
		Log:       &memoryLog{},
		// Stands in for a trade holding its position until shutdown.
		Handler: func(ctx context.Context, _ domain.Opportunity, _ domain.AssetConfig) {
			started.Add(1)
			<-ctx.Done()
		},
		Logger: discardLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		return m.Stats()[0].Checks >= 3 && started.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, m.Stats()[0].Opportunities, int64(3))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}
