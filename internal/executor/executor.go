// Package executor turns opportunities into trades: it buys on the venue,
// holds the position until the price converges, and sells. At most one trade
// runs at a time across the whole process.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/alanyoungcy/xstockarb/internal/arbitrage"
	"github.com/alanyoungcy/xstockarb/internal/domain"
	"github.com/alanyoungcy/xstockarb/internal/events"
	"github.com/alanyoungcy/xstockarb/internal/wallet"
)

// Submitter signs, sends and confirms a serialized transaction. The
// signature is returned whenever the transaction was sent, even if
// confirmation then fails.
type Submitter interface {
	SignAndSubmit(ctx context.Context, txBase64 string, key solana.PrivateKey) (string, error)
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config wires an Executor.
type Config struct {
	USDCMint             string
	Notional             float64
	Thresholds           arbitrage.Thresholds
	SlippageBps          int
	EmergencySlippageBps int
	SwapOptions          domain.SwapOptions
	Convergence          ConvergenceConfig

	// AutoExecute false runs every trade as a simulation: the intent is
	// validated and a buy quote fetched, but nothing is submitted.
	AutoExecute bool

	// AwaitReconcile drops opportunities until Reconcile has returned, so
	// positions left by a previous run settle before new trades open.
	AwaitReconcile bool

	// Ledger reads used to measure actual fills.
	FillRetries   int
	FillRetryWait time.Duration

	Pool      *wallet.Pool
	Gateway   domain.SwapGateway
	Submitter Submitter
	Balances  domain.BalanceReader
	Lock      *TradeLock // defaults to NewTradeLock()

	Trades    domain.TradeStore    // optional
	Positions domain.PositionStore // optional
	Publisher *events.Publisher    // optional
	Notifier  Notifier             // optional
	Logger    *slog.Logger
}

// Executor runs trades one at a time.
type Executor struct {
	cfg    Config
	lock   *TradeLock
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	reconciled    chan struct{}
	reconcileOnce sync.Once

	mu    sync.Mutex
	stats domain.ExecutionStats
}

// NewExecutor creates an Executor.
func NewExecutor(cfg Config) *Executor {
	if cfg.Lock == nil {
		cfg.Lock = NewTradeLock()
	}
	if cfg.FillRetries < 1 {
		cfg.FillRetries = 1
	}
	if cfg.EmergencySlippageBps < cfg.SlippageBps {
		cfg.EmergencySlippageBps = cfg.SlippageBps
	}
	e := &Executor{
		cfg:        cfg,
		lock:       cfg.Lock,
		logger:     cfg.Logger.With(slog.String("component", "executor")),
		now:        time.Now,
		sleep:      sleepCtx,
		reconciled: make(chan struct{}),
	}
	if !cfg.AwaitReconcile {
		e.markReconciled()
	}
	return e
}

func (e *Executor) markReconciled() {
	e.reconcileOnce.Do(func() { close(e.reconciled) })
}

// HandleOpportunity is the monitor's hand-off. It builds an intent for the
// configured notional and executes it. Opportunities that arrive while open
// positions are still being reconciled are dropped.
func (e *Executor) HandleOpportunity(ctx context.Context, opp domain.Opportunity, asset domain.AssetConfig) {
	select {
	case <-e.reconciled:
	default:
		e.mu.Lock()
		e.stats.SkippedBusy++
		e.mu.Unlock()
		e.logger.DebugContext(ctx, "reconciling open positions, dropping opportunity",
			slog.String("symbol", opp.Symbol),
			slog.String("opportunity_id", opp.ID),
		)
		return
	}
	e.Execute(ctx, domain.NewTradeIntent(uuid.NewString(), opp, asset, e.cfg.Notional))
}

// Execute runs one intent to completion. It never blocks on the trade lock:
// if another trade holds it the intent is dropped and the outcome reports
// ErrTradeInProgress.
func (e *Executor) Execute(ctx context.Context, intent domain.TradeIntent) domain.TradeOutcome {
	out := domain.TradeOutcome{
		TradeID:       intent.ID,
		OpportunityID: intent.OpportunityID,
		Symbol:        intent.Asset.Symbol,
		Direction:     intent.Direction,
		Simulated:     !e.cfg.AutoExecute,
		StartedAt:     e.now(),
	}

	release, ok := e.lock.TryAcquire(ctx)
	if !ok {
		e.mu.Lock()
		e.stats.SkippedBusy++
		e.mu.Unlock()
		e.logger.DebugContext(ctx, "trade already in progress, dropping intent",
			slog.String("symbol", intent.Asset.Symbol),
			slog.String("opportunity_id", intent.OpportunityID),
		)
		out.Error = domain.ErrTradeInProgress.Error()
		out.FinishedAt = e.now()
		return out
	}
	defer release()

	e.mu.Lock()
	e.stats.Attempted++
	e.stats.InFlight = true
	e.mu.Unlock()

	w, err := e.run(ctx, intent, &out)
	if err != nil {
		out.Success = false
		out.Error = err.Error()
	}
	out.FinishedAt = e.now()
	e.finish(ctx, out, w)
	return out
}

// run is the body of Execute. It fills out and returns the wallet used, if
// one was committed to the trade.
func (e *Executor) run(ctx context.Context, intent domain.TradeIntent, out *domain.TradeOutcome) (*wallet.Wallet, error) {
	log := e.logger.With(
		slog.String("trade_id", intent.ID),
		slog.String("symbol", intent.Asset.Symbol),
	)

	w, err := e.selectWallet(ctx, intent)
	if err != nil {
		log.WarnContext(ctx, "trade rejected", slog.String("error", err.Error()))
		return nil, err
	}

	if !e.cfg.Thresholds.Clears(intent.SpreadPercent, intent.ExpectedProfit) {
		return nil, fmt.Errorf("%w: spread %.3f%%, profit %.4f", domain.ErrBelowThreshold, intent.SpreadPercent, intent.ExpectedProfit)
	}
	if intent.Direction != domain.DirectionBuyCheapVenue {
		log.WarnContext(ctx, "reverse arbitrage is not supported, skipping",
			slog.String("direction", string(intent.Direction)))
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedDirection, intent.Direction)
	}

	buyQuote, err := e.cfg.Gateway.Quote(ctx, domain.QuoteRequest{
		InputMint:   e.cfg.USDCMint,
		OutputMint:  intent.Asset.Mint,
		Amount:      domain.ToBaseUnits(intent.Notional, domain.USDCDecimals),
		SlippageBps: e.cfg.SlippageBps,
	})
	if err != nil {
		return nil, fmt.Errorf("buy quote: %w", err)
	}

	if !e.cfg.AutoExecute {
		tokens := domain.FromBaseUnits(buyQuote.OutAmount, intent.Asset.Decimals)
		log.InfoContext(ctx, "simulated trade",
			slog.Float64("notional", intent.Notional),
			slog.Float64("tokens_out", tokens),
			slog.Float64("price_impact_pct", buyQuote.PriceImpactPct),
			slog.Float64("expected_profit", intent.ExpectedProfit),
		)
		out.Success = true
		out.RealizedProfit = 0
		return nil, nil
	}

	out.Wallet = w.Address()
	pos, sig, err := e.buy(ctx, intent, w, buyQuote)
	if sig != "" {
		out.Signatures = append(out.Signatures, sig)
	}
	if err != nil {
		return w, err
	}

	res := e.converge(ctx, pos, w)
	out.ExitReason = res.reason
	if res.signature != "" {
		out.Signatures = append(out.Signatures, res.signature)
	}
	if res.err != nil {
		return w, res.err
	}
	out.Success = true
	out.RealizedProfit = res.proceeds - pos.Cost
	log.InfoContext(ctx, "trade closed",
		slog.String("exit_reason", string(res.reason)),
		slog.Float64("cost", pos.Cost),
		slog.Float64("proceeds", res.proceeds),
		slog.Float64("realized_profit", out.RealizedProfit),
	)
	return w, nil
}

// selectWallet picks a funding identity and checks it can pay for the
// intent. In simulation mode an empty pool is tolerated.
func (e *Executor) selectWallet(ctx context.Context, intent domain.TradeIntent) (*wallet.Wallet, error) {
	if !e.cfg.AutoExecute && (e.cfg.Pool == nil || e.cfg.Pool.Len() == 0) {
		return nil, nil
	}
	if e.cfg.Pool == nil {
		return nil, domain.ErrNoWallet
	}
	w, ok := e.cfg.Pool.SelectWallet(ctx)
	if !ok {
		return nil, domain.ErrNoWallet
	}
	if e.cfg.Pool.HasInsufficientBalance(ctx, w, intent.Notional) {
		s := e.cfg.Pool.Summary(w)
		return nil, fmt.Errorf("%w: wallet %s has %.2f USDC and %.4f SOL, need %.2f USDC",
			domain.ErrInsufficientBalance, w.Address(), s.USDCBalance, s.SOLBalance, intent.Notional)
	}
	return w, nil
}

// buy submits the buy and opens a position from the balances that actually
// moved.
func (e *Executor) buy(ctx context.Context, intent domain.TradeIntent, w *wallet.Wallet, q domain.SwapQuote) (*domain.Position, string, error) {
	tx, err := e.cfg.Gateway.SwapTransaction(ctx, q, w.Address(), e.cfg.SwapOptions)
	if err != nil {
		return nil, "", fmt.Errorf("buy swap: %w", err)
	}

	asset := intent.Asset
	tokensBefore, terr := e.cfg.Balances.TokenBalance(ctx, w.Address(), asset.Mint)
	usdcBefore, uerr := e.cfg.Balances.TokenBalance(ctx, w.Address(), e.cfg.USDCMint)

	sig, err := e.cfg.Submitter.SignAndSubmit(ctx, tx.Transaction, w.PrivateKey())
	if err != nil {
		if sig != "" {
			e.logger.ErrorContext(ctx, "buy sent but not confirmed, check wallet for tokens",
				slog.String("signature", sig),
				slog.String("wallet", w.Address()),
				slog.String("mint", asset.Mint),
				slog.String("error", err.Error()),
			)
			e.notify(ctx, domain.EventStuckPosition, "Unconfirmed buy",
				fmt.Sprintf("%s: buy %s was sent but not confirmed (%v). Check %s", asset.Symbol, sig, err, w.Address()))
		}
		return nil, sig, fmt.Errorf("buy submit: %w", err)
	}

	received := q.OutAmount
	if terr == nil {
		if after, ok := e.settle(ctx, w.Address(), asset.Mint, tokensBefore); ok && after > tokensBefore {
			received = after - tokensBefore
		} else {
			e.logger.WarnContext(ctx, "received tokens not visible on ledger, using quote", slog.String("signature", sig))
		}
	}
	paid := q.InAmount
	if uerr == nil {
		if after, err := e.cfg.Balances.TokenBalance(ctx, w.Address(), e.cfg.USDCMint); err == nil && after < usdcBefore {
			paid = usdcBefore - after
		}
	}

	cost := domain.FromBaseUnits(paid, domain.USDCDecimals)
	qty := domain.FromBaseUnits(received, asset.Decimals)
	now := e.now()
	pos := &domain.Position{
		ID:         uuid.NewString(),
		TradeID:    intent.ID,
		Symbol:     asset.Symbol,
		Mint:       asset.Mint,
		Decimals:   asset.Decimals,
		Wallet:     w.Address(),
		EntryPrice: cost / qty,
		EntryTime:  now,
		Quantity:   received,
		Cost:       cost,
		State:      domain.PositionHolding,
	}
	e.savePosition(ctx, pos)

	e.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("signature", sig),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("quantity", qty),
		slog.Float64("cost", cost),
	)
	e.publish(ctx, domain.ChannelPosition, domain.EventTradeOpened, pos)
	e.notify(ctx, domain.EventTradeOpened, "Trade opened",
		fmt.Sprintf("%s: bought %.6f at %.4f for %.2f USDC (reference %.4f, spread %.3f%%)",
			pos.Symbol, qty, pos.EntryPrice, cost, intent.ReferencePrice, intent.SpreadPercent))
	return pos, sig, nil
}

// finish folds the outcome into stats, the wallet, and the trade history.
func (e *Executor) finish(ctx context.Context, out domain.TradeOutcome, w *wallet.Wallet) {
	e.mu.Lock()
	e.stats.InFlight = false
	switch {
	case out.Simulated && out.Success:
		e.stats.Simulated++
	case out.Success:
		e.stats.Succeeded++
		e.stats.RealizedProfit += out.RealizedProfit
	default:
		e.stats.Failed++
	}
	e.mu.Unlock()

	// An interrupted hold is resumed by Reconcile and recorded then.
	if w != nil && e.cfg.Pool != nil && out.ExitReason != domain.ExitCancelled {
		e.cfg.Pool.RecordTrade(w, out.Success, out.RealizedProfit)
	}

	// The trade context may already be cancelled at shutdown; history is
	// still written.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if e.cfg.Trades != nil {
		if err := e.cfg.Trades.InsertTrade(storeCtx, out); err != nil {
			e.logger.WarnContext(ctx, "trade history write failed",
				slog.String("trade_id", out.TradeID),
				slog.String("error", err.Error()),
			)
		}
	}
	e.publish(storeCtx, domain.ChannelTrade, domain.EventTradeClosed, out)

	if out.Success && !out.Simulated {
		e.notify(storeCtx, domain.EventTradeClosed, "Trade closed",
			fmt.Sprintf("%s: %s, realized %+.4f USDC", out.Symbol, out.ExitReason, out.RealizedProfit))
	}
}

// Stats returns a snapshot of the execution counters.
func (e *Executor) Stats() domain.ExecutionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// InFlight reports whether a trade currently holds the lock.
func (e *Executor) InFlight() bool {
	return e.lock.Held()
}

func (e *Executor) savePosition(ctx context.Context, pos *domain.Position) {
	pos.UpdatedAt = e.now()
	if e.cfg.Positions == nil {
		return
	}
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.cfg.Positions.SavePosition(storeCtx, *pos); err != nil {
		e.logger.WarnContext(ctx, "position write failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) publish(ctx context.Context, channel, eventType string, payload any) {
	e.cfg.Publisher.Publish(ctx, channel, eventType, payload)
}

func (e *Executor) notify(ctx context.Context, event, title, message string) {
	if e.cfg.Notifier == nil {
		return
	}
	if err := e.cfg.Notifier.Notify(context.WithoutCancel(ctx), event, title, message); err != nil {
		e.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
