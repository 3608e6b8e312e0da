// Package arbitrage compares aggregator prices for tokenized stocks against a
// reference feed and emits opportunities when the spread pays for the fees.
package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/xstockarb/internal/domain"
	"github.com/alanyoungcy/xstockarb/internal/events"
)

// Per-asset check states.
const (
	StateIdle          = "IDLE"
	StateChecking      = "CHECKING"
	StateOpportunity   = "OPPORTUNITY"
	StateNoOpportunity = "NO_OPPORTUNITY"
)

// OpportunityHandler receives every emitted opportunity. It runs on its own
// goroutine so a long trade never holds up polling.
type OpportunityHandler func(ctx context.Context, opp domain.Opportunity, asset domain.AssetConfig)

// MonitorConfig wires a Monitor.
type MonitorConfig struct {
	Assets     []domain.AssetConfig
	Interval   time.Duration
	Calculator Calculator
	Venue      domain.PriceSource
	Reference  domain.PriceSource
	Log        domain.OpportunityLog
	Store      domain.OpportunityStore // optional
	Prices     domain.PriceCache       // optional
	Publisher  *events.Publisher       // optional
	Handler    OpportunityHandler      // optional
	Logger     *slog.Logger
}

type assetState struct {
	asset domain.AssetConfig
	state string
	stats domain.AssetStats
}

// Monitor polls every configured asset once per interval.
type Monitor struct {
	cfg    MonitorConfig
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	assets []*assetState

	handoffs sync.WaitGroup
}

// NewMonitor creates a Monitor for cfg.Assets.
func NewMonitor(cfg MonitorConfig) *Monitor {
	m := &Monitor{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "monitor")),
		now:    time.Now,
	}
	for _, a := range cfg.Assets {
		m.assets = append(m.assets, &assetState{
			asset: a,
			state: StateIdle,
			stats: domain.AssetStats{Symbol: a.Symbol, LastState: StateIdle},
		})
	}
	return m
}

// Run ticks immediately and then on every interval until ctx is cancelled.
// A tick that outlives the interval does not delay the next one.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "monitor started",
		slog.Int("assets", len(m.assets)),
		slog.Duration("interval", m.cfg.Interval),
	)
	defer m.logger.Info("monitor stopped")

	var ticks sync.WaitGroup
	defer func() {
		ticks.Wait()
		m.handoffs.Wait()
	}()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	launch := func() {
		ticks.Add(1)
		go func() {
			defer ticks.Done()
			m.Tick(ctx)
		}()
	}

	launch()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			launch()
		}
	}
}

// Tick checks every asset concurrently and returns once all checks finished.
// Handler invocations started by the tick may still be running.
func (m *Monitor) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	var g errgroup.Group
	for _, st := range m.assets {
		if !m.begin(st) {
			m.logger.DebugContext(ctx, "previous check still running",
				slog.String("symbol", st.asset.Symbol))
			continue
		}
		g.Go(func() error {
			m.check(ctx, st)
			return nil
		})
	}
	_ = g.Wait()

	m.cfg.Publisher.Publish(ctx, domain.ChannelStats, domain.EventStats, m.Stats())
}

// Wait blocks until every handler started by past ticks has returned.
func (m *Monitor) Wait() {
	m.handoffs.Wait()
}

// Stats returns a snapshot of the per-asset statistics in configured order.
func (m *Monitor) Stats() []domain.AssetStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AssetStats, len(m.assets))
	for i, st := range m.assets {
		out[i] = st.stats
	}
	return out
}

func (m *Monitor) begin(st *assetState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.state == StateChecking {
		return false
	}
	st.state = StateChecking
	st.stats.LastState = StateChecking
	return true
}

func (m *Monitor) finish(st *assetState, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.stats.LastState = state
	st.state = StateIdle
}

// check runs one IDLE -> CHECKING -> (OPPORTUNITY | NO_OPPORTUNITY) -> IDLE
// cycle for one asset. Failures end the cycle as NO_OPPORTUNITY.
func (m *Monitor) check(ctx context.Context, st *assetState) {
	asset := st.asset
	logger := m.logger.With(slog.String("symbol", asset.Symbol))

	venue, ref, err := m.fetchPrices(ctx, asset)
	if err != nil {
		m.recordFailure(st, err)
		m.finish(st, StateNoOpportunity)
		logger.WarnContext(ctx, "price fetch failed", slog.String("error", err.Error()))
		return
	}

	ev, err := m.cfg.Calculator.Evaluate(venue.Price, ref.Price)
	if err != nil {
		m.recordFailure(st, err)
		m.finish(st, StateNoOpportunity)
		logger.WarnContext(ctx, "spread evaluation failed", slog.String("error", err.Error()))
		return
	}

	now := m.now()
	m.recordCheck(st, ev, now)
	m.cachePrices(ctx, asset.Symbol, ev, now)

	logger.DebugContext(ctx, "price check",
		slog.Float64("venue_price", ev.VenuePrice),
		slog.Float64("reference_price", ev.ReferencePrice),
		slog.Float64("spread_pct", ev.SpreadPercent),
		slog.Float64("est_profit", ev.EstimatedProfit),
		slog.String("direction", string(ev.Direction)),
	)

	if !ev.Qualifies {
		m.finish(st, StateNoOpportunity)
		return
	}

	opp := ev.Opportunity(uuid.NewString(), asset.Symbol, now)
	m.recordOpportunity(st, opp)
	m.finish(st, StateOpportunity)

	logger.InfoContext(ctx, "opportunity detected",
		slog.String("opportunity_id", opp.ID),
		slog.Float64("venue_price", opp.VenuePrice),
		slog.Float64("reference_price", opp.ReferencePrice),
		slog.Float64("spread_pct", opp.SpreadPercent),
		slog.Float64("est_profit", opp.EstimatedProfit),
		slog.String("direction", string(opp.Direction)),
	)

	m.persist(ctx, opp)
	m.cfg.Publisher.Publish(ctx, domain.ChannelOpportunity, domain.EventOpportunity, opp)

	if m.cfg.Handler != nil {
		m.handoffs.Add(1)
		go func() {
			defer m.handoffs.Done()
			m.cfg.Handler(ctx, opp, asset)
		}()
	}
}

// fetchPrices queries venue and reference concurrently. Either failing fails
// the check.
func (m *Monitor) fetchPrices(ctx context.Context, asset domain.AssetConfig) (domain.PriceQuote, domain.PriceQuote, error) {
	var venue, ref domain.PriceQuote
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := m.cfg.Venue.Price(gctx, asset)
		if err != nil {
			return fmt.Errorf("%s price: %w", m.cfg.Venue.Name(), err)
		}
		venue = q
		return nil
	})
	g.Go(func() error {
		q, err := m.cfg.Reference.Price(gctx, asset)
		if err != nil {
			return fmt.Errorf("%s price: %w", m.cfg.Reference.Name(), err)
		}
		ref = q
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.PriceQuote{}, domain.PriceQuote{}, err
	}
	return venue, ref, nil
}

func (m *Monitor) recordFailure(st *assetState, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.stats.LastError = err.Error()
	st.stats.LastCheckedAt = m.now()
}

// recordCheck folds one successful check into the running statistics. The
// average spread is an incremental mean so no history is kept.
func (m *Monitor) recordCheck(st *assetState, ev Evaluation, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &st.stats
	s.Checks++
	s.AvgSpreadPercent += (ev.SpreadPercent - s.AvgSpreadPercent) / float64(s.Checks)
	if ev.SpreadPercent > s.MaxSpreadPercent {
		s.MaxSpreadPercent = ev.SpreadPercent
	}
	s.LastVenuePrice = ev.VenuePrice
	s.LastRefPrice = ev.ReferencePrice
	s.LastError = ""
	s.LastCheckedAt = at
}

func (m *Monitor) recordOpportunity(st *assetState, opp domain.Opportunity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.stats.Opportunities++
	st.stats.EstimatedProfit += opp.EstimatedProfit
}

func (m *Monitor) persist(ctx context.Context, opp domain.Opportunity) {
	if err := m.cfg.Log.Append(ctx, opp); err != nil {
		m.logger.ErrorContext(ctx, "append opportunity log failed",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", err.Error()),
		)
	}
	if m.cfg.Store != nil {
		if err := m.cfg.Store.InsertOpportunity(ctx, opp); err != nil {
			m.logger.WarnContext(ctx, "store opportunity failed",
				slog.String("opportunity_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (m *Monitor) cachePrices(ctx context.Context, symbol string, ev Evaluation, at time.Time) {
	if m.cfg.Prices == nil {
		return
	}
	snap := domain.PriceSnapshot{
		Symbol:         symbol,
		VenuePrice:     ev.VenuePrice,
		ReferencePrice: ev.ReferencePrice,
		SpreadPercent:  ev.SpreadPercent,
		UpdatedAt:      at,
	}
	if err := m.cfg.Prices.SetSnapshot(ctx, snap); err != nil {
		m.logger.DebugContext(ctx, "cache prices failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}
}
