package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/xstockarb/internal/arbitrage"
	"github.com/alanyoungcy/xstockarb/internal/domain"
	"github.com/alanyoungcy/xstockarb/internal/wallet"
)

const usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

var tsla = domain.AssetConfig{Symbol: "TSLAx", Mint: "XsDoVfqeBukxuZHWhdvWHBhgEHjGNst4MLodqsJHzoB", Decimals: 8}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock advances only when the executor sleeps.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return nil
}

// fakeVenue is the gateway, the ledger and the submitter at once: submitted
// swaps move the balances their quotes describe.
type fakeVenue struct {
	mu         sync.Mutex
	balances   map[string]uint64
	sol        float64
	pending    map[string]domain.SwapQuote
	quotes     []domain.QuoteRequest
	submitted  []string
	failSubmit map[int]error // by 1-based submission number
	shortfall  uint64        // withheld from every buy fill

	buyFn  func(req domain.QuoteRequest) (domain.SwapQuote, error)
	sellFn func(req domain.QuoteRequest) (domain.SwapQuote, error)
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		balances:   make(map[string]uint64),
		sol:        1,
		pending:    make(map[string]domain.SwapQuote),
		failSubmit: make(map[int]error),
	}
}

func key(owner, mint string) string { return owner + "|" + mint }

func (v *fakeVenue) setBalance(owner, mint string, units uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[key(owner, mint)] = units
}

func (v *fakeVenue) balance(owner, mint string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[key(owner, mint)]
}

func (v *fakeVenue) quoteCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.quotes)
}

func (v *fakeVenue) Quote(ctx context.Context, req domain.QuoteRequest) (domain.SwapQuote, error) {
	v.mu.Lock()
	v.quotes = append(v.quotes, req)
	fn := v.sellFn
	if req.InputMint == usdcMint {
		fn = v.buyFn
	}
	v.mu.Unlock()
	if fn == nil {
		return domain.SwapQuote{}, domain.ErrNoQuote
	}
	return fn(req)
}

func (v *fakeVenue) SwapTransaction(ctx context.Context, q domain.SwapQuote, user string, opts domain.SwapOptions) (domain.SwapTransaction, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := fmt.Sprintf("tx-%d", len(v.pending)+1)
	v.pending[id] = q
	return domain.SwapTransaction{Transaction: id}, nil
}

func (v *fakeVenue) SignAndSubmit(ctx context.Context, tx string, k solana.PrivateKey) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.submitted = append(v.submitted, tx)
	if err := v.failSubmit[len(v.submitted)]; err != nil {
		return "", err
	}
	q := v.pending[tx]
	owner := k.PublicKey().String()
	v.balances[key(owner, q.InputMint)] -= q.InAmount
	out := q.OutAmount
	if q.InputMint == usdcMint {
		out -= v.shortfall
	}
	v.balances[key(owner, q.OutputMint)] += out
	return "sig-" + tx, nil
}

func (v *fakeVenue) SOLBalance(ctx context.Context, owner string) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sol, nil
}

func (v *fakeVenue) TokenBalance(ctx context.Context, owner, mint string) (uint64, error) {
	return v.balance(owner, mint), nil
}

// buyAt prices USDC -> tsla swaps at price.
func buyAt(price float64) func(domain.QuoteRequest) (domain.SwapQuote, error) {
	return func(req domain.QuoteRequest) (domain.SwapQuote, error) {
		usdc := domain.FromBaseUnits(req.Amount, domain.USDCDecimals)
		return domain.SwapQuote{
			InputMint:   req.InputMint,
			OutputMint:  req.OutputMint,
			InAmount:    req.Amount,
			OutAmount:   domain.ToBaseUnits(usdc/price, tsla.Decimals),
			SlippageBps: req.SlippageBps,
			Raw:         []byte(`{}`),
		}, nil
	}
}

// sellAt prices tsla -> USDC swaps at price.
func sellAt(price float64) func(domain.QuoteRequest) (domain.SwapQuote, error) {
	return func(req domain.QuoteRequest) (domain.SwapQuote, error) {
		tokens := domain.FromBaseUnits(req.Amount, tsla.Decimals)
		return domain.SwapQuote{
			InputMint:   req.InputMint,
			OutputMint:  req.OutputMint,
			InAmount:    req.Amount,
			OutAmount:   domain.ToBaseUnits(tokens*price, domain.USDCDecimals),
			SlippageBps: req.SlippageBps,
			Raw:         []byte(`{}`),
		}, nil
	}
}

type memPositions struct {
	mu   sync.Mutex
	byID map[string]domain.Position
}

func (m *memPositions) SavePosition(_ context.Context, pos domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byID == nil {
		m.byID = make(map[string]domain.Position)
	}
	m.byID[pos.ID] = pos
	return nil
}

func (m *memPositions) ListOpenPositions(context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, p := range m.byID {
		if p.Open() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPositions) all() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, p := range m.byID {
		out = append(out, p)
	}
	return out
}

type memTrades struct {
	mu   sync.Mutex
	outs []domain.TradeOutcome
}

func (m *memTrades) InsertTrade(_ context.Context, out domain.TradeOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outs = append(m.outs, out)
	return nil
}

func (m *memTrades) ListTrades(_ context.Context, limit int) ([]domain.TradeOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TradeOutcome(nil), m.outs...), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

type harness struct {
	exec      *Executor
	venue     *fakeVenue
	clock     *fakeClock
	pool      *wallet.Pool
	wallet    *wallet.Wallet
	positions *memPositions
	trades    *memTrades
	notes     *recordingNotifier
}

func newHarness(t *testing.T, autoExecute bool, usdcUnits uint64) *harness {
	t.Helper()
	h := &harness{
		venue:     newFakeVenue(),
		clock:     &fakeClock{t: time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)},
		positions: &memPositions{},
		trades:    &memTrades{},
		notes:     &recordingNotifier{},
	}

	pool, err := wallet.NewPool(wallet.PoolConfig{
		Strategy:      "round-robin",
		USDCMint:      usdcMint,
		MinSOLReserve: 0.01,
		Balances:      h.venue,
		Logger:        discardLogger(),
	})
	require.NoError(t, err)
	w, err := pool.Add(solana.NewWallet().PrivateKey)
	require.NoError(t, err)
	h.pool, h.wallet = pool, w
	h.venue.setBalance(w.Address(), usdcMint, usdcUnits)
	h.venue.buyFn = buyAt(100)

	h.exec = NewExecutor(Config{
		USDCMint:             usdcMint,
		Notional:             100,
		Thresholds:           arbitrage.Thresholds{MinSpreadPercent: 0.5, MinProfit: 0.40},
		SlippageBps:          50,
		EmergencySlippageBps: 500,
		Convergence: ConvergenceConfig{
			MinHold:              120 * time.Second,
			MaxHold:              30 * time.Minute,
			CheckInterval:        15 * time.Second,
			TakeProfitPercent:    0.8,
			MinProfitExitPercent: 0.3,
			MaxFailedQuotes:      5,
		},
		AutoExecute:   autoExecute,
		FillRetries:   3,
		FillRetryWait: time.Second,
		Pool:          pool,
		Gateway:       h.venue,
		Submitter:     h.venue,
		Balances:      h.venue,
		Trades:        h.trades,
		Positions:     h.positions,
		Notifier:      h.notes,
		Logger:        discardLogger(),
	})
	h.exec.now = h.clock.Now
	h.exec.sleep = h.clock.Sleep
	return h
}

func buyIntent() domain.TradeIntent {
	return domain.TradeIntent{
		ID:             "trade-1",
		OpportunityID:  "opp-1",
		Asset:          tsla,
		Direction:      domain.DirectionBuyCheapVenue,
		Notional:       100,
		ExpectedProfit: 0.49,
		VenuePrice:     100,
		ReferencePrice: 100.8,
		SpreadPercent:  0.794,
	}
}

func TestExecuteTakesProfit(t *testing.T) {
	h := newHarness(t, true, 1_000_000_000)
	h.venue.sellFn = sellAt(101.2)

	out := h.exec.Execute(context.Background(), buyIntent())

	require.True(t, out.Success, out.Error)
	assert.Equal(t, domain.ExitTakeProfit, out.ExitReason)
	assert.InDelta(t, 1.2, out.RealizedProfit, 1e-6)
	assert.Len(t, out.Signatures, 2)
	assert.Equal(t, h.wallet.Address(), out.Wallet)
	assert.False(t, out.Simulated)

	assert.Zero(t, h.venue.balance(h.wallet.Address(), tsla.Mint))
	assert.Equal(t, uint64(1_001_200_000), h.venue.balance(h.wallet.Address(), usdcMint))

	s := h.pool.Summary(h.wallet)
	assert.Equal(t, int64(1), s.TotalTrades)
	assert.Equal(t, int64(1), s.SuccessfulTrades)
	assert.InDelta(t, 1.2, s.TotalProfit, 1e-6)

	positions := h.positions.all()
	require.Len(t, positions, 1)
	pos := positions[0]
	assert.Equal(t, domain.PositionClosed, pos.State)
	assert.Equal(t, domain.ExitTakeProfit, pos.ExitReason)
	assert.InDelta(t, 100.0, pos.EntryPrice, 1e-9)
	assert.Equal(t, uint64(100_000_000), pos.Quantity)
	assert.Equal(t, 1, pos.Checks)

	stats := h.exec.Stats()
	assert.Equal(t, int64(1), stats.Attempted)
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.False(t, stats.InFlight)
	assert.False(t, h.exec.InFlight())
	require.Len(t, h.trades.outs, 1)
	assert.Contains(t, h.notes.events, domain.EventTradeOpened)
	assert.Contains(t, h.notes.events, domain.EventTradeClosed)
}

func TestExecuteEntryUsesActualFill(t *testing.T) {
	h := newHarness(t, true, 1_000_000_000)
	h.venue.sellFn = sellAt(103)
	// The quote promises 1 token but the chain delivers 0.98.
	h.venue.shortfall = 2_000_000

	out := h.exec.Execute(context.Background(), buyIntent())
	require.True(t, out.Success, out.Error)

	pos := h.positions.all()[0]
	assert.Equal(t, uint64(98_000_000), pos.Quantity)
	assert.InDelta(t, 100/0.98, pos.EntryPrice, 1e-9)
}

func TestExecuteInsufficientBalanceNeverQuotes(t *testing.T) {
	h := newHarness(t, true, 5_000_000)

	out := h.exec.Execute(context.Background(), buyIntent())

	assert.False(t, out.Success)
	assert.Contains(t, out.Error, domain.ErrInsufficientBalance.Error())
	assert.Empty(t, out.Wallet)
	assert.Zero(t, h.venue.quoteCount())
	assert.Zero(t, h.pool.Summary(h.wallet).TotalTrades)
	assert.Equal(t, int64(1), h.exec.Stats().Failed)
}

func TestExecuteRevalidatesThresholds(t *testing.T) {
	h := newHarness(t, true, 1_000_000_000)
	intent := buyIntent()
	intent.SpreadPercent = 0.2

	out := h.exec.Execute(context.Background(), intent)

	assert.Contains(t, out.Error, domain.ErrBelowThreshold.Error())
	assert.Zero(t, h.venue.quoteCount())
}

func TestExecuteRejectsReverseDirection(t *testing.T) {
	h := newHarness(t, true, 1_000_000_000)
	intent := buyIntent()
	intent.Direction = domain.DirectionSellCheapVenue

	out := h.exec.Execute(context.Background(), intent)

	assert.False(t, out.Success)
	assert.Contains(t, out.Error, domain.ErrUnsupportedDirection.Error())
	assert.Zero(t, h.venue.quoteCount())
	assert.Empty(t, h.venue.submitted)
}

func TestExecuteSimulatesWhenAutoExecuteOff(t *testing.T) {
	h := newHarness(t, false, 1_000_000_000)

	out := h.exec.Execute(context.Background(), buyIntent())

	assert.True(t, out.Success)
	assert.True(t, out.Simulated)
	assert.Equal(t, 1, h.venue.quoteCount())
	assert.Empty(t, h.venue.submitted)
	assert.Equal(t, int64(1), h.exec.Stats().Simulated)
	assert.Zero(t, h.pool.Summary(h.wallet).TotalTrades)
}

func TestExecuteDropsWhileTradeInFlight(t *testing.T) {
	h := newHarness(t, false, 1_000_000_000)
	gate := make(chan struct{})
	h.venue.buyFn = func(req domain.QuoteRequest) (domain.SwapQuote, error) {
		<-gate
		return buyAt(100)(req)
	}

	first := make(chan domain.TradeOutcome, 1)
	go func() { first <- h.exec.Execute(context.Background(), buyIntent()) }()
	require.Eventually(t, func() bool { return h.venue.quoteCount() == 1 }, time.Second, time.Millisecond)
	assert.True(t, h.exec.InFlight())

	second := buyIntent()
	second.ID = "trade-2"
	out := h.exec.Execute(context.Background(), second)
	assert.Equal(t, domain.ErrTradeInProgress.Error(), out.Error)
	assert.Equal(t, 1, h.venue.quoteCount())

	close(gate)
	assert.True(t, (<-first).Success)

	stats := h.exec.Stats()
	assert.Equal(t, int64(1), stats.Attempted)
	assert.Equal(t, int64(1), stats.SkippedBusy)
	assert.False(t, h.exec.InFlight())
}

func TestExecuteEmergencyExitAfterFailedQuotes(t *testing.T) {
	h := newHarness(t, true, 1_000_000_000)
	normalFailures := 0
	h.venue.sellFn = func(req domain.QuoteRequest) (domain.SwapQuote, error) {
		if req.SlippageBps == 500 {
			return sellAt(99)(req)
		}
		normalFailures++
		return domain.SwapQuote{}, errors.New("route unavailable")
	}

	out := h.exec.Execute(context.Background(), buyIntent())

	require.True(t, out.Success, out.Error)
	assert.Equal(t, domain.ExitEmergency, out.ExitReason)
	assert.Equal(t, 5, normalFailures)
	assert.InDelta(t, -1.0, out.RealizedProfit, 1e-6)

	last := h.venue.quotes[len(h.venue.quotes)-1]
	assert.Equal(t, 500, last.SlippageBps)
	assert.Contains(t, h.notes.events, domain.EventEmergencyExit)
}

func TestExecuteMaxHoldExitsAtLoss(t *testing.T) {
	h := newHarness(t, true, 1_000_000_000)
	h.venue.sellFn = sellAt(99.5)
	start := h.clock.Now()

	out := h.exec.Execute(context.Background(), buyIntent())

	require.True(t, out.Success, out.Error)
	assert.Equal(t, domain.ExitMaxHold, out.ExitReason)
	assert.InDelta(t, -0.5, out.RealizedProfit, 1e-6)
	assert.GreaterOrEqual(t, h.clock.Now().Sub(start), 30*time.Minute)
}

func TestExecuteMinProfitExit(t *testing.T) {
	h := newHarness(t, true, 1_000_000_000)
	h.venue.sellFn = sellAt(100.5)

	out := h.exec.Execute(context.Background(), buyIntent())

	require.True(t, out.Success, out.Error)
	assert.Equal(t, domain.ExitMinProfit, out.ExitReason)
	assert.InDelta(t, 0.5, out.RealizedProfit, 1e-6)
}

func TestExecuteSellFailureLeavesTokens(t *testing.T) {
	h := newHarness(t, true, 1_000_000_000)
	h.venue.sellFn = sellAt(101.2)
	h.venue.failSubmit[2] = errors.New("blockhash expired")

	out := h.exec.Execute(context.Background(), buyIntent())

	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "blockhash expired")
	assert.Equal(t, domain.ExitTakeProfit, out.ExitReason)
	assert.Equal(t, uint64(100_000_000), h.venue.balance(h.wallet.Address(), tsla.Mint))
	assert.Contains(t, h.notes.events, domain.EventStuckPosition)
	assert.Equal(t, domain.PositionClosed, h.positions.all()[0].State)

	s := h.pool.Summary(h.wallet)
	assert.Equal(t, int64(1), s.FailedTrades)
	assert.False(t, h.exec.InFlight())
}

func TestExecuteBuyFailureOpensNoPosition(t *testing.T) {
	h := newHarness(t, true, 1_000_000_000)
	h.venue.failSubmit[1] = errors.New("simulation failed")

	out := h.exec.Execute(context.Background(), buyIntent())

	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "buy submit")
	assert.Empty(t, h.positions.all())
	assert.False(t, h.exec.InFlight())
}

func TestInterruptedHoldIsReconciled(t *testing.T) {
	h := newHarness(t, true, 1_000_000_000)
	ctx, cancel := context.WithCancel(context.Background())
	h.venue.sellFn = func(req domain.QuoteRequest) (domain.SwapQuote, error) {
		cancel()
		return domain.SwapQuote{}, context.Canceled
	}

	out := h.exec.Execute(ctx, buyIntent())
	assert.False(t, out.Success)
	assert.Equal(t, domain.ExitCancelled, out.ExitReason)
	assert.Contains(t, out.Error, "hold interrupted")

	open, err := h.positions.ListOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.PositionHolding, open[0].State)
	assert.Zero(t, h.pool.Summary(h.wallet).TotalTrades)

	// Restart: the tokens are still there, so the hold resumes and exits.
	h.venue.sellFn = sellAt(101.2)
	outs, err := h.exec.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.True(t, outs[0].Success)
	assert.Equal(t, domain.ExitTakeProfit, outs[0].ExitReason)
	assert.InDelta(t, 1.2, outs[0].RealizedProfit, 1e-6)

	open, err = h.positions.ListOpenPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestReconcileClosesEmptyPosition(t *testing.T) {
	h := newHarness(t, true, 1_000_000_000)
	require.NoError(t, h.positions.SavePosition(context.Background(), domain.Position{
		ID:        "pos-1",
		TradeID:   "trade-1",
		Symbol:    tsla.Symbol,
		Mint:      tsla.Mint,
		Decimals:  tsla.Decimals,
		Wallet:    h.wallet.Address(),
		EntryTime: h.clock.Now().Add(-time.Hour),
		Quantity:  100_000_000,
		Cost:      100,
		State:     domain.PositionHolding,
	}))

	outs, err := h.exec.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outs)

	pos := h.positions.all()[0]
	assert.Equal(t, domain.PositionClosed, pos.State)
	assert.Equal(t, domain.ExitReconciled, pos.ExitReason)
	assert.Zero(t, h.venue.quoteCount())
}

func TestReconcileSkipsUnknownWallet(t *testing.T) {
	h := newHarness(t, true, 1_000_000_000)
	require.NoError(t, h.positions.SavePosition(context.Background(), domain.Position{
		ID:     "pos-1",
		Wallet: solana.NewWallet().PublicKey().String(),
		State:  domain.PositionHolding,
	}))

	outs, err := h.exec.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outs)
	open, _ := h.positions.ListOpenPositions(context.Background())
	assert.Len(t, open, 1)
}

type fixedPrice struct {
	name  string
	price float64
}

func (p fixedPrice) Name() string { return p.name }

func (p fixedPrice) Price(context.Context, domain.AssetConfig) (domain.PriceQuote, error) {
	return domain.PriceQuote{Source: p.name, Price: p.price, Timestamp: time.Now()}, nil
}

func (v *fakeVenue) buyQuoteCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, q := range v.quotes {
		if q.InputMint == usdcMint {
			n++
		}
	}
	return n
}

func TestMonitorKeepsPollingWhileReconcileHolds(t *testing.T) {
	h := newHarness(t, true, 1_000_000_000)
	// Rebuild the gate as AwaitReconcile would have.
	h.exec.cfg.AwaitReconcile = true
	h.exec.reconciled = make(chan struct{})

	h.venue.setBalance(h.wallet.Address(), tsla.Mint, 100_000_000)
	require.NoError(t, h.positions.SavePosition(context.Background(), domain.Position{
		ID:        "pos-1",
		TradeID:   "trade-1",
		Symbol:    tsla.Symbol,
		Mint:      tsla.Mint,
		Decimals:  tsla.Decimals,
		Wallet:    h.wallet.Address(),
		EntryTime: h.clock.Now(),
		Quantity:  100_000_000,
		Cost:      100,
		State:     domain.PositionHolding,
	}))

	release := make(chan struct{})
	h.venue.sellFn = func(req domain.QuoteRequest) (domain.SwapQuote, error) {
		<-release
		return sellAt(101.2)(req)
	}

	monitor := arbitrage.NewMonitor(arbitrage.MonitorConfig{
		Assets:   []domain.AssetConfig{tsla},
		Interval: 10 * time.Millisecond,
		Calculator: arbitrage.Calculator{
			Notional:   100,
			Fees:       arbitrage.FeeModel{FeePercent: 0.3, GasCost: 0.01},
			Thresholds: arbitrage.Thresholds{MinSpreadPercent: 0.5, MinProfit: 0.40},
		},
		Venue:     fixedPrice{name: "venue", price: 100},
		Reference: fixedPrice{name: "reference", price: 100.8},
		Log:       &memLog{},
		Handler:   h.exec.HandleOpportunity,
		Logger:    discardLogger(),
	})

	reconciled := make(chan []domain.TradeOutcome, 1)
	go func() {
		outs, err := h.exec.Reconcile(context.Background())
		assert.NoError(t, err)
		reconciled <- outs
	}()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.exec.InFlight() && monitor.Stats()[0].Checks >= 3 && h.exec.Stats().SkippedBusy >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, h.venue.buyQuoteCount())

	close(release)
	outs := <-reconciled
	require.Len(t, outs, 1)
	assert.Equal(t, domain.ExitTakeProfit, outs[0].ExitReason)

	require.Eventually(t, func() bool { return h.venue.buyQuoteCount() >= 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

type memLog struct {
	mu   sync.Mutex
	opps []domain.Opportunity
}

func (l *memLog) Append(_ context.Context, opp domain.Opportunity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opps = append(l.opps, opp)
	return nil
}

func (l *memLog) Recent(context.Context, int) ([]domain.Opportunity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Opportunity(nil), l.opps...), nil
}
