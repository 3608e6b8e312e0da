package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/xstockarb/internal/arbitrage"
	"github.com/alanyoungcy/xstockarb/internal/domain"
	"github.com/alanyoungcy/xstockarb/internal/events"
	"github.com/alanyoungcy/xstockarb/internal/executor"
	"github.com/alanyoungcy/xstockarb/internal/platform/jupiter"
	"github.com/alanyoungcy/xstockarb/internal/server"
	"github.com/alanyoungcy/xstockarb/internal/server/handler"
	"github.com/alanyoungcy/xstockarb/internal/server/ws"
)

const (
	walletRefreshInterval = time.Minute
	fillRetries           = 5
	fillRetryWait         = 2 * time.Second
	tradeLockKey          = "trade"
)

// ArbMode runs the opportunity monitor, the trade executor and, when enabled,
// the HTTP API and the S3 archiver. Open positions left by a previous run are
// reconciled alongside polling; no new trade opens until that finishes.
func (a *App) ArbMode(ctx context.Context, deps *Dependencies) error {
	cfg := a.cfg
	a.logger.InfoContext(ctx, "arb mode starting",
		slog.Int("assets", len(deps.Assets)),
		slog.Int("wallets", deps.Wallets.Len()),
	)

	g, ctx := errgroup.WithContext(ctx)
	pub := events.NewPublisher(deps.SignalBus, a.logger)

	lock := executor.NewTradeLock()
	if deps.LockManager != nil {
		lock = lock.WithDistributed(deps.LockManager, tradeLockKey, cfg.Redis.LockTTL.Duration, a.logger)
	}

	slippage := bps(cfg.Trade.MaxSlippagePercent)
	thresholds := arbitrage.Thresholds{
		MinSpreadPercent: cfg.Monitor.MinSpreadPercent,
		MinProfit:        cfg.Monitor.MinProfit,
	}

	exec := executor.NewExecutor(executor.Config{
		USDCMint:             cfg.Solana.USDCMint,
		Notional:             cfg.Trade.Amount,
		Thresholds:           thresholds,
		SlippageBps:          slippage,
		EmergencySlippageBps: bps(cfg.Trade.EmergencySlippagePercent),
		SwapOptions: domain.SwapOptions{
			DynamicComputeUnitLimit: true,
			PriorityLevel:           cfg.Trade.PriorityLevel,
			MaxPriorityLamports:     cfg.Trade.MaxPriorityLamports,
		},
		Convergence: executor.ConvergenceConfig{
			MinHold:              cfg.Convergence.MinHold.Duration,
			MaxHold:              cfg.Convergence.MaxHold.Duration,
			CheckInterval:        cfg.Convergence.CheckInterval.Duration,
			TakeProfitPercent:    cfg.Convergence.TakeProfitPercent,
			MinProfitExitPercent: cfg.Convergence.MinProfitExitPercent,
			MaxFailedQuotes:      cfg.Convergence.MaxFailedQuotes,
		},
		AutoExecute:    cfg.Monitor.AutoExecute,
		AwaitReconcile: true,
		FillRetries:    fillRetries,
		FillRetryWait:  fillRetryWait,
		Pool:           deps.Wallets,
		Gateway:        deps.Gateway,
		Submitter:      deps.Ledger,
		Balances:       deps.Ledger,
		Lock:           lock,
		Trades:         deps.TradeStore,
		Positions:      deps.PositionStore,
		Publisher:      pub,
		Notifier:       deps.Notifier,
		Logger:         a.logger,
	})

	monitor := arbitrage.NewMonitor(arbitrage.MonitorConfig{
		Assets:   deps.Assets,
		Interval: cfg.Monitor.PollInterval.Duration,
		Calculator: arbitrage.Calculator{
			Notional: cfg.Trade.Amount,
			Fees: arbitrage.FeeModel{
				FeePercent: cfg.Trade.FeePercent,
				GasCost:    cfg.Trade.GasCost,
			},
			Thresholds: thresholds,
		},
		Venue:     jupiter.NewPriceSource(deps.Gateway, cfg.Solana.USDCMint, cfg.Trade.Amount, slippage),
		Reference: deps.Reference,
		Log:       deps.OpportunityLog,
		Store:     deps.OpportunityStore,
		Prices:    deps.PriceCache,
		Publisher: pub,
		Handler: func(ctx context.Context, opp domain.Opportunity, asset domain.AssetConfig) {
			// Alerts for opportunities a running trade will drop are noise.
			if !exec.InFlight() {
				go a.notifyOpportunity(ctx, deps.Notifier, opp)
			}
			exec.HandleOpportunity(ctx, opp, asset)
		},
		Logger: a.logger,
	})

	// Wallet balances first so the first trade sees real funds.
	deps.Wallets.RefreshAll(ctx)
	g.Go(func() error {
		refreshWallets(ctx, deps, walletRefreshInterval)
		return nil
	})

	a.startTrading(ctx, g, exec, monitor)

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}

	if cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, serverSources{monitor: monitor, exec: exec})
	}

	return g.Wait()
}

type reconciler interface {
	Reconcile(ctx context.Context) ([]domain.TradeOutcome, error)
}

type poller interface {
	Run(ctx context.Context) error
}

// startTrading runs reconciliation and polling side by side in g. A resumed
// hold can last up to max_hold and must not stall price checks.
func (a *App) startTrading(ctx context.Context, g *errgroup.Group, exec reconciler, monitor poller) {
	g.Go(func() error {
		outcomes, err := exec.Reconcile(ctx)
		if err != nil {
			return fmt.Errorf("arb: reconcile: %w", err)
		}
		if len(outcomes) > 0 {
			a.logger.InfoContext(ctx, "reconciled positions", slog.Int("resumed", len(outcomes)))
		}
		return nil
	})
	g.Go(func() error {
		return monitor.Run(ctx)
	})
}

// notifyOpportunity sends the opportunity alert. Delivery failures are logged
// and otherwise ignored.
func (a *App) notifyOpportunity(ctx context.Context, n executor.Notifier, opp domain.Opportunity) {
	err := n.Notify(ctx, domain.EventOpportunity, "Opportunity "+opp.Symbol,
		fmt.Sprintf("%s spread %.3f%%, est. profit $%.2f (%s)",
			opp.Symbol, opp.SpreadPercent, opp.EstimatedProfit, opp.Direction))
	if err != nil {
		a.logger.WarnContext(ctx, "opportunity notification failed",
			slog.String("symbol", opp.Symbol),
			slog.String("error", err.Error()),
		)
	}
}

// APIMode serves the HTTP API over the stores without monitoring or trading.
// It is meant to run next to an arb process that shares the same Postgres and
// Redis, or to inspect a local SQLite history.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	if !a.cfg.Server.Enabled {
		return fmt.Errorf("app: api mode requires server.enabled")
	}
	a.logger.InfoContext(ctx, "api mode starting", slog.Int("port", a.cfg.Server.Port))

	g, ctx := errgroup.WithContext(ctx)

	deps.Wallets.RefreshAll(ctx)
	g.Go(func() error {
		refreshWallets(ctx, deps, walletRefreshInterval)
		return nil
	})

	a.startHTTPServer(ctx, g, deps, serverSources{})
	return g.Wait()
}

// serverSources are the live components the API reports on. Both are nil in
// api mode.
type serverSources struct {
	monitor *arbitrage.Monitor
	exec    *executor.Executor
}

// startHTTPServer builds the API server and WebSocket hub and runs them in g.
// The server is shut down with a 5 second grace period once ctx ends.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, src serverSources) {
	cfg := a.cfg

	var (
		monitorSrc handler.MonitorSource
		execSrc    handler.ExecutionSource
	)
	if src.monitor != nil {
		monitorSrc = src.monitor
	}
	if src.exec != nil {
		execSrc = src.exec
	}

	symbols := make([]string, len(deps.Assets))
	for i, asset := range deps.Assets {
		symbols[i] = asset.Symbol
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:        cfg.Mode,
		StartedAt:   a.startedAt,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	srv := server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
		RatePerSec:  cfg.Server.RatePerSec,
		Burst:       cfg.Server.Burst,
	}, server.Handlers{
		Health: handler.NewHealthHandler(deps.Health, a.logger),
		Status: handler.NewStatusHandler(handler.StatusInfo{
			Mode:           cfg.Mode,
			Assets:         symbols,
			AutoExecute:    cfg.Monitor.AutoExecute,
			WalletStrategy: deps.Wallets.Strategy(),
			StartedAt:      a.startedAt,
		}, execSrc),
		Stats:   handler.NewStatsHandler(monitorSrc, execSrc, deps.Wallets),
		History: handler.NewHistoryHandler(deps.OpportunityLog, deps.PriceCache, deps.TradeStore, deps.PositionStore, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// refreshWallets re-reads every wallet's balances on each interval until ctx
// ends.
func refreshWallets(ctx context.Context, deps *Dependencies, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deps.Wallets.RefreshAll(ctx)
		}
	}
}
