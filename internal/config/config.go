// Package config defines the top-level configuration for the xStock arbitrage
// bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by XSTOCK_* environment variables.
type Config struct {
	Solana      SolanaConfig      `toml:"solana"`
	Wallets     WalletsConfig     `toml:"wallets"`
	Assets      []AssetConfig     `toml:"assets"`
	Monitor     MonitorConfig     `toml:"monitor"`
	Trade       TradeConfig       `toml:"trade"`
	Convergence ConvergenceConfig `toml:"convergence"`
	Jupiter     JupiterConfig     `toml:"jupiter"`
	Pyth        PythConfig        `toml:"pyth"`
	Postgres    PostgresConfig    `toml:"postgres"`
	SQLite      SQLiteConfig      `toml:"sqlite"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// SolanaConfig holds RPC endpoints and ledger parameters.
type SolanaConfig struct {
	RPCURL         string   `toml:"rpc_url"`
	Commitment     string   `toml:"commitment"`
	USDCMint       string   `toml:"usdc_mint"`
	MinSOLReserve  float64  `toml:"min_sol_reserve"`
	ConfirmTimeout duration `toml:"confirm_timeout"`
	ConfirmPoll    duration `toml:"confirm_poll"`
}

// WalletsConfig lists the funding credentials and the selection strategy.
type WalletsConfig struct {
	// PrivateKeys accepts base58 secrets or JSON byte arrays ("[12,34,...]").
	PrivateKeys []string `toml:"private_keys"`
	KeyFiles    []string `toml:"key_files"`
	KeyPassword string   `toml:"key_password"`
	Strategy    string   `toml:"strategy"`
}

// AssetConfig describes one monitored tokenized stock.
type AssetConfig struct {
	Symbol   string `toml:"symbol"`
	Mint     string `toml:"mint"`
	FeedID   string `toml:"feed_id"`
	Decimals int    `toml:"decimals"`
}

// MonitorConfig drives the opportunity monitor.
type MonitorConfig struct {
	PollInterval      duration `toml:"poll_interval"`
	MinSpreadPercent  float64  `toml:"min_spread_percent"`
	MinProfit         float64  `toml:"min_profit"`
	OpportunityLogDir string   `toml:"opportunity_log_dir"`
	AutoExecute       bool     `toml:"auto_execute"`
}

// TradeConfig holds sizing, slippage and the fee model.
type TradeConfig struct {
	Amount                   float64 `toml:"amount"`
	MaxSlippagePercent       float64 `toml:"max_slippage_percent"`
	EmergencySlippagePercent float64 `toml:"emergency_slippage_percent"`
	FeePercent               float64 `toml:"fee_percent"`
	GasCost                  float64 `toml:"gas_cost"`
	PriorityLevel            string  `toml:"priority_level"`
	MaxPriorityLamports      uint64  `toml:"max_priority_lamports"`
}

// ConvergenceConfig controls the post-entry hold loop.
type ConvergenceConfig struct {
	MinHold              duration `toml:"min_hold"`
	MaxHold              duration `toml:"max_hold"`
	CheckInterval        duration `toml:"check_interval"`
	TakeProfitPercent    float64  `toml:"take_profit_percent"`
	MinProfitExitPercent float64  `toml:"min_profit_exit_percent"`
	MaxFailedQuotes      int      `toml:"max_failed_quotes"`
}

// JupiterConfig holds the swap aggregator endpoint.
type JupiterConfig struct {
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	RatePerSec float64  `toml:"rate_per_sec"`
	Retries    int      `toml:"retries"`
	Timeout    duration `toml:"timeout"`
}

// PythConfig holds the reference price endpoint.
type PythConfig struct {
	BaseURL      string   `toml:"base_url"`
	Timeout      duration `toml:"timeout"`
	MaxStaleness duration `toml:"max_staleness"`
	Retries      int      `toml:"retries"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// SQLiteConfig holds the local store path.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RatePerSec  float64  `toml:"rate_per_sec"` // per client IP, 0 disables
	Burst       int      `toml:"burst"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Solana: SolanaConfig{
			RPCURL:         "https://api.mainnet-beta.solana.com",
			Commitment:     "confirmed",
			USDCMint:       "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			MinSOLReserve:  0.01,
			ConfirmTimeout: duration{60 * time.Second},
			ConfirmPoll:    duration{2 * time.Second},
		},
		Wallets: WalletsConfig{
			Strategy: "round-robin",
		},
		Monitor: MonitorConfig{
			PollInterval:      duration{10 * time.Second},
			MinSpreadPercent:  0.5,
			MinProfit:         0.40,
			OpportunityLogDir: "data",
			AutoExecute:       false,
		},
		Trade: TradeConfig{
			Amount:                   100,
			MaxSlippagePercent:       0.5,
			EmergencySlippagePercent: 5.0,
			FeePercent:               0.3,
			GasCost:                  0.01,
			PriorityLevel:            "high",
			MaxPriorityLamports:      1_000_000,
		},
		Convergence: ConvergenceConfig{
			MinHold:              duration{120 * time.Second},
			MaxHold:              duration{30 * time.Minute},
			CheckInterval:        duration{15 * time.Second},
			TakeProfitPercent:    0.8,
			MinProfitExitPercent: 0.3,
			MaxFailedQuotes:      5,
		},
		Jupiter: JupiterConfig{
			BaseURL:    "https://lite-api.jup.ag/swap/v1",
			RatePerSec: 1,
			Retries:    3,
			Timeout:    duration{10 * time.Second},
		},
		Pyth: PythConfig{
			BaseURL:      "https://hermes.pyth.network",
			Timeout:      duration{5 * time.Second},
			MaxStaleness: duration{2 * time.Minute},
			Retries:      2,
		},
		Postgres: PostgresConfig{
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{
			Path: "data/xstockarb.db",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			LockTTL:    duration{45 * time.Minute},
		},
		S3: S3Config{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "xstockarb-data",
			ForcePathStyle:  true,
			ArchiveInterval: duration{time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RatePerSec:  10,
			Burst:       20,
		},
		Notify: NotifyConfig{
			Events: []string{"trade_opened", "trade_closed", "emergency_exit", "stuck_position", "error"},
		},
		Mode:     "arb",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"arb": true,
	"api": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidWalletStrategies enumerates the accepted wallet selection strategies.
var ValidWalletStrategies = map[string]bool{
	"round-robin":     true,
	"highest-balance": true,
	"least-used":      true,
	"random":          true,
}

var validCommitments = map[string]bool{
	"processed": true,
	"confirmed": true,
	"finalized": true,
}

var validPriorityLevels = map[string]bool{
	"medium":   true,
	"high":     true,
	"veryHigh": true,
}

// CredentialCount returns how many funding credentials are configured.
func (c *Config) CredentialCount() int {
	n := 0
	for _, k := range c.Wallets.PrivateKeys {
		if strings.TrimSpace(k) != "" {
			n++
		}
	}
	return n + len(c.Wallets.KeyFiles)
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: arb, api)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Solana
	if c.Solana.RPCURL == "" {
		errs = append(errs, "solana: rpc_url must not be empty")
	}
	if !validCommitments[c.Solana.Commitment] {
		errs = append(errs, fmt.Sprintf("solana: unknown commitment %q (valid: processed, confirmed, finalized)", c.Solana.Commitment))
	}
	if _, err := solana.PublicKeyFromBase58(c.Solana.USDCMint); err != nil {
		errs = append(errs, fmt.Sprintf("solana: usdc_mint %q is not a valid public key", c.Solana.USDCMint))
	}
	if c.Solana.MinSOLReserve < 0 {
		errs = append(errs, "solana: min_sol_reserve must be >= 0")
	}
	if c.Solana.ConfirmTimeout.Duration <= 0 || c.Solana.ConfirmPoll.Duration <= 0 {
		errs = append(errs, "solana: confirm_timeout and confirm_poll must be > 0")
	}

	// Wallets
	if !ValidWalletStrategies[c.Wallets.Strategy] {
		errs = append(errs, fmt.Sprintf("wallets: unknown strategy %q (valid: round-robin, highest-balance, least-used, random)", c.Wallets.Strategy))
	}
	if len(c.Wallets.KeyFiles) > 0 && c.Wallets.KeyPassword == "" {
		errs = append(errs, "wallets: key_password is required when key_files are set")
	}
	if c.Monitor.AutoExecute && c.CredentialCount() == 0 {
		errs = append(errs, "wallets: auto_execute requires at least one private key or key file")
	}

	// Assets
	if strings.ToLower(c.Mode) == "arb" && len(c.Assets) == 0 {
		errs = append(errs, "assets: at least one asset must be configured for mode arb")
	}
	seen := make(map[string]bool, len(c.Assets))
	for i, a := range c.Assets {
		if a.Symbol == "" {
			errs = append(errs, fmt.Sprintf("assets[%d]: symbol must not be empty", i))
		} else if seen[a.Symbol] {
			errs = append(errs, fmt.Sprintf("assets[%d]: duplicate symbol %q", i, a.Symbol))
		}
		seen[a.Symbol] = true
		if _, err := solana.PublicKeyFromBase58(a.Mint); err != nil {
			errs = append(errs, fmt.Sprintf("assets[%d]: mint %q is not a valid public key", i, a.Mint))
		}
		if a.FeedID == "" {
			errs = append(errs, fmt.Sprintf("assets[%d]: feed_id must not be empty", i))
		}
		if a.Decimals < 0 || a.Decimals > 18 {
			errs = append(errs, fmt.Sprintf("assets[%d]: decimals must be 0-18, got %d", i, a.Decimals))
		}
	}

	// Monitor
	if c.Monitor.PollInterval.Duration <= 0 {
		errs = append(errs, "monitor: poll_interval must be > 0")
	}
	if c.Monitor.MinSpreadPercent < 0 {
		errs = append(errs, "monitor: min_spread_percent must be >= 0")
	}
	if c.Monitor.OpportunityLogDir == "" {
		errs = append(errs, "monitor: opportunity_log_dir must not be empty")
	}

	// Trade
	if c.Trade.Amount <= 0 {
		errs = append(errs, "trade: amount must be > 0")
	}
	if c.Trade.MaxSlippagePercent <= 0 || c.Trade.MaxSlippagePercent > 50 {
		errs = append(errs, "trade: max_slippage_percent must be in (0, 50]")
	}
	if c.Trade.EmergencySlippagePercent < c.Trade.MaxSlippagePercent {
		errs = append(errs, "trade: emergency_slippage_percent must be >= max_slippage_percent")
	}
	if c.Trade.FeePercent < 0 || c.Trade.GasCost < 0 {
		errs = append(errs, "trade: fee_percent and gas_cost must be >= 0")
	}
	if !validPriorityLevels[c.Trade.PriorityLevel] {
		errs = append(errs, fmt.Sprintf("trade: unknown priority_level %q (valid: medium, high, veryHigh)", c.Trade.PriorityLevel))
	}

	// Convergence
	cv := c.Convergence
	if cv.MinHold.Duration < 0 || cv.MaxHold.Duration <= 0 || cv.CheckInterval.Duration <= 0 {
		errs = append(errs, "convergence: min_hold must be >= 0 and max_hold, check_interval must be > 0")
	}
	if cv.MinHold.Duration > cv.MaxHold.Duration {
		errs = append(errs, "convergence: min_hold must not exceed max_hold")
	}
	if cv.MinProfitExitPercent >= cv.TakeProfitPercent {
		errs = append(errs, "convergence: min_profit_exit_percent must be lower than take_profit_percent")
	}
	if cv.MaxFailedQuotes < 1 {
		errs = append(errs, "convergence: max_failed_quotes must be >= 1")
	}

	// Jupiter / Pyth
	if c.Jupiter.BaseURL == "" {
		errs = append(errs, "jupiter: base_url must not be empty")
	}
	if c.Jupiter.RatePerSec <= 0 {
		errs = append(errs, "jupiter: rate_per_sec must be > 0")
	}
	if c.Jupiter.Retries < 1 || c.Pyth.Retries < 1 {
		errs = append(errs, "jupiter/pyth: retries must be >= 1")
	}
	if c.Pyth.BaseURL == "" {
		errs = append(errs, "pyth: base_url must not be empty")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			errs = append(errs, "postgres: dsn must not be empty when enabled")
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
		}
	}
	if c.SQLite.Path == "" {
		errs = append(errs, "sqlite: path must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration < c.Convergence.MaxHold.Duration {
			errs = append(errs, "redis: lock_ttl must cover convergence.max_hold")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RatePerSec < 0 || (c.Server.RatePerSec > 0 && c.Server.Burst < 1) {
			errs = append(errs, "server: rate_per_sec must be >= 0 and burst >= 1 when limiting")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
