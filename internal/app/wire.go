package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	s3blob "github.com/alanyoungcy/xstockarb/internal/blob/s3"
	"github.com/alanyoungcy/xstockarb/internal/cache/memory"
	"github.com/alanyoungcy/xstockarb/internal/cache/redis"
	"github.com/alanyoungcy/xstockarb/internal/config"
	"github.com/alanyoungcy/xstockarb/internal/domain"
	"github.com/alanyoungcy/xstockarb/internal/events"
	"github.com/alanyoungcy/xstockarb/internal/notify"
	"github.com/alanyoungcy/xstockarb/internal/platform/jupiter"
	"github.com/alanyoungcy/xstockarb/internal/platform/pyth"
	"github.com/alanyoungcy/xstockarb/internal/platform/solana"
	"github.com/alanyoungcy/xstockarb/internal/server/handler"
	"github.com/alanyoungcy/xstockarb/internal/store/jsonlog"
	"github.com/alanyoungcy/xstockarb/internal/store/postgres"
	"github.com/alanyoungcy/xstockarb/internal/store/sqlite"
	"github.com/alanyoungcy/xstockarb/internal/wallet"
)

// keyPrefix namespaces every Redis key and channel the bot uses.
const keyPrefix = "xstockarb:"

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	Assets []domain.AssetConfig

	// Venues
	Gateway   *jupiter.Client
	Reference *pyth.Client
	Ledger    *solana.Ledger
	Wallets   *wallet.Pool

	// Stores
	OpportunityLog   *jsonlog.Log
	OpportunityStore domain.OpportunityStore
	TradeStore       domain.TradeStore
	PositionStore    domain.PositionStore

	// Caches and bus
	PriceCache  domain.PriceCache
	LockManager domain.LockManager // nil without Redis
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver *s3blob.Archiver // nil without S3

	// Notifications
	Notifier *notify.Notifier

	// Health checks keyed by backend name.
	Health map[string]handler.Checker
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{
		Assets: domainAssets(cfg.Assets),
		Health: make(map[string]handler.Checker),
	}

	// --- Venues ---
	deps.Gateway = jupiter.NewClient(jupiter.Config{
		BaseURL:    cfg.Jupiter.BaseURL,
		APIKey:     cfg.Jupiter.APIKey,
		RatePerSec: cfg.Jupiter.RatePerSec,
		Retries:    cfg.Jupiter.Retries,
		Timeout:    cfg.Jupiter.Timeout.Duration,
	}, logger)
	deps.Reference = pyth.NewClient(pyth.Config{
		BaseURL:      cfg.Pyth.BaseURL,
		Timeout:      cfg.Pyth.Timeout.Duration,
		MaxStaleness: cfg.Pyth.MaxStaleness.Duration,
		Retries:      cfg.Pyth.Retries,
	}, logger)
	deps.Ledger = NewLedger(cfg, logger)

	// --- Wallets ---
	pool, loaded, err := NewWalletPool(cfg, deps.Ledger, logger)
	if err != nil {
		return fail("wallet pool", err)
	}
	if cfg.Monitor.AutoExecute && loaded == 0 {
		return fail("wallet pool", domain.ErrNoWallet)
	}
	deps.Wallets = pool

	// --- Opportunity journal ---
	journal, err := jsonlog.Open(cfg.Monitor.OpportunityLogDir, jsonlog.FileName(len(cfg.Assets)), logger)
	if err != nil {
		return fail("opportunity log", err)
	}
	deps.OpportunityLog = journal

	// --- Stores: PostgreSQL when enabled, the local SQLite file otherwise ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pgPool := pgClient.Pool()
		opps := postgres.NewOpportunityStore(pgPool)
		deps.OpportunityStore = opps
		deps.TradeStore = postgres.NewTradeStore(pgPool)
		deps.PositionStore = postgres.NewPositionStore(pgPool)
		deps.Health["postgres"] = pgClient.Ping

		backfillOpportunities(ctx, journal, opps, logger)
	} else {
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return fail("sqlite", err)
		}
		closers = append(closers, func() { _ = db.Close() })

		deps.OpportunityStore = db
		deps.TradeStore = db
		deps.PositionStore = db
		deps.Health["sqlite"] = db.Ping
	}

	// --- Caches and bus: Redis when enabled, in-process otherwise ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Prefix:     keyPrefix,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Health["redis"] = redisClient.Ping
	} else {
		deps.PriceCache = memory.NewPriceCache()
		deps.SignalBus = events.NewBus()
	}

	// --- S3 archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			journal,
			deps.TradeStore,
			cfg.S3.ArchiveInterval.Duration,
			logger,
		)
		deps.Health["s3"] = s3Client.Health
	}

	// --- Notifications ---
	deps.Notifier = notify.FromConfig(
		cfg.Notify.TelegramToken,
		cfg.Notify.TelegramChatID,
		cfg.Notify.DiscordWebhookURL,
		cfg.Notify.Events,
		logger,
	)

	logger.Info("dependencies wired",
		slog.Int("assets", len(deps.Assets)),
		slog.Int("wallets", loaded),
		slog.Bool("postgres", cfg.Postgres.Enabled),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("s3", cfg.S3.Enabled),
		slog.Bool("notify", deps.Notifier.Enabled()),
	)
	return deps, cleanup, nil
}

// NewLedger creates the Solana RPC client used for balances and submission.
func NewLedger(cfg *config.Config, logger *slog.Logger) *solana.Ledger {
	return solana.NewLedger(solana.Config{
		RPCURL:         cfg.Solana.RPCURL,
		Commitment:     cfg.Solana.Commitment,
		ConfirmTimeout: cfg.Solana.ConfirmTimeout.Duration,
		ConfirmPoll:    cfg.Solana.ConfirmPoll.Duration,
	}, logger)
}

// NewWalletPool creates the wallet pool and loads every configured
// credential. It returns the number of wallets loaded.
func NewWalletPool(cfg *config.Config, ledger *solana.Ledger, logger *slog.Logger) (*wallet.Pool, int, error) {
	pool, err := wallet.NewPool(wallet.PoolConfig{
		Strategy:      cfg.Wallets.Strategy,
		USDCMint:      cfg.Solana.USDCMint,
		MinSOLReserve: cfg.Solana.MinSOLReserve,
		Balances:      ledger,
		Logger:        logger,
	})
	if err != nil {
		return nil, 0, err
	}
	n := pool.LoadCredentials(cfg.Wallets.PrivateKeys, cfg.Wallets.KeyFiles, cfg.Wallets.KeyPassword)
	return pool, n, nil
}

func domainAssets(in []config.AssetConfig) []domain.AssetConfig {
	out := make([]domain.AssetConfig, len(in))
	for i, a := range in {
		out[i] = domain.AssetConfig{Symbol: a.Symbol, Mint: a.Mint, FeedID: a.FeedID, Decimals: a.Decimals}
	}
	return out
}

// backfillOpportunities copies the journal into the database so opportunities
// seen while Postgres was off are queryable. Rows already present are kept.
func backfillOpportunities(ctx context.Context, journal *jsonlog.Log, store *postgres.OpportunityStore, logger *slog.Logger) {
	opps, err := journal.Recent(ctx, 0)
	if err != nil || len(opps) == 0 {
		return
	}
	if err := store.InsertBatch(ctx, opps); err != nil {
		logger.WarnContext(ctx, "opportunity backfill failed", slog.String("error", err.Error()))
		return
	}
	logger.InfoContext(ctx, "opportunity journal backfilled", slog.Int("count", len(opps)))
}

func bps(percent float64) int {
	return int(math.Round(percent * 100))
}
