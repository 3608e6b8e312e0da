package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies XSTOCK_* environment variable overrides, and
// returns the final Config. An empty path skips the file so the bot can run
// from the environment alone. Keys in the file that do not map to a Config
// field are rejected. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envErrors collects malformed environment values so they are reported at
// load time instead of silently falling back to the file value.
type envErrors []string

func (e *envErrors) add(key, val, kind string) {
	*e = append(*e, fmt.Sprintf("%s=%q is not a valid %s", key, val, kind))
}

// applyEnvOverrides reads well-known XSTOCK_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) error {
	var errs envErrors

	// ── Core options ──
	setStr(&cfg.Solana.RPCURL, "XSTOCK_RPC_URL")
	setStringSlice(&cfg.Wallets.PrivateKeys, "XSTOCK_PRIVATE_KEYS")
	if v := os.Getenv("XSTOCK_PRIVATE_KEY"); v != "" && len(cfg.Wallets.PrivateKeys) == 0 {
		cfg.Wallets.PrivateKeys = []string{v}
	}
	setStr(&cfg.Wallets.Strategy, "XSTOCK_WALLET_STRATEGY")
	setFloat64(&errs, &cfg.Monitor.MinSpreadPercent, "XSTOCK_MIN_SPREAD_PERCENT")
	setFloat64(&errs, &cfg.Trade.Amount, "XSTOCK_TRADE_AMOUNT")
	setDuration(&errs, &cfg.Monitor.PollInterval, "XSTOCK_POLL_INTERVAL")
	setFloat64(&errs, &cfg.Monitor.MinProfit, "XSTOCK_MIN_PROFIT")
	setFloat64(&errs, &cfg.Trade.MaxSlippagePercent, "XSTOCK_MAX_SLIPPAGE")
	setBool(&errs, &cfg.Monitor.AutoExecute, "XSTOCK_AUTO_EXECUTE")

	// ── Solana ──
	setStr(&cfg.Solana.Commitment, "XSTOCK_SOLANA_COMMITMENT")
	setStr(&cfg.Solana.USDCMint, "XSTOCK_SOLANA_USDC_MINT")
	setFloat64(&errs, &cfg.Solana.MinSOLReserve, "XSTOCK_SOLANA_MIN_SOL_RESERVE")

	// ── Wallets ──
	setStringSlice(&cfg.Wallets.KeyFiles, "XSTOCK_WALLET_KEY_FILES")
	setStr(&cfg.Wallets.KeyPassword, "XSTOCK_WALLET_KEY_PASSWORD")

	// ── Monitor ──
	setStr(&cfg.Monitor.OpportunityLogDir, "XSTOCK_OPPORTUNITY_LOG_DIR")

	// ── Trade ──
	setFloat64(&errs, &cfg.Trade.FeePercent, "XSTOCK_TRADE_FEE_PERCENT")
	setFloat64(&errs, &cfg.Trade.GasCost, "XSTOCK_TRADE_GAS_COST")
	setStr(&cfg.Trade.PriorityLevel, "XSTOCK_TRADE_PRIORITY_LEVEL")

	// ── Convergence ──
	setDuration(&errs, &cfg.Convergence.MinHold, "XSTOCK_CONVERGENCE_MIN_HOLD")
	setDuration(&errs, &cfg.Convergence.MaxHold, "XSTOCK_CONVERGENCE_MAX_HOLD")
	setDuration(&errs, &cfg.Convergence.CheckInterval, "XSTOCK_CONVERGENCE_CHECK_INTERVAL")
	setFloat64(&errs, &cfg.Convergence.TakeProfitPercent, "XSTOCK_CONVERGENCE_TAKE_PROFIT_PERCENT")
	setFloat64(&errs, &cfg.Convergence.MinProfitExitPercent, "XSTOCK_CONVERGENCE_MIN_PROFIT_EXIT_PERCENT")
	setInt(&errs, &cfg.Convergence.MaxFailedQuotes, "XSTOCK_CONVERGENCE_MAX_FAILED_QUOTES")

	// ── Jupiter / Pyth ──
	setStr(&cfg.Jupiter.BaseURL, "XSTOCK_JUPITER_BASE_URL")
	setStr(&cfg.Jupiter.APIKey, "XSTOCK_JUPITER_API_KEY")
	setStr(&cfg.Pyth.BaseURL, "XSTOCK_PYTH_BASE_URL")

	// ── Postgres ──
	setBool(&errs, &cfg.Postgres.Enabled, "XSTOCK_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "XSTOCK_POSTGRES_DSN")
	setBool(&errs, &cfg.Postgres.RunMigrations, "XSTOCK_POSTGRES_RUN_MIGRATIONS")

	// ── SQLite ──
	setStr(&cfg.SQLite.Path, "XSTOCK_SQLITE_PATH")

	// ── Redis ──
	setBool(&errs, &cfg.Redis.Enabled, "XSTOCK_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "XSTOCK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "XSTOCK_REDIS_PASSWORD")
	setInt(&errs, &cfg.Redis.DB, "XSTOCK_REDIS_DB")
	setBool(&errs, &cfg.Redis.TLSEnabled, "XSTOCK_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&errs, &cfg.S3.Enabled, "XSTOCK_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "XSTOCK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "XSTOCK_S3_REGION")
	setStr(&cfg.S3.Bucket, "XSTOCK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "XSTOCK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "XSTOCK_S3_SECRET_KEY")

	// ── Server ──
	setBool(&errs, &cfg.Server.Enabled, "XSTOCK_SERVER_ENABLED")
	setInt(&errs, &cfg.Server.Port, "XSTOCK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "XSTOCK_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "XSTOCK_SERVER_API_KEY")
	setFloat64(&errs, &cfg.Server.RatePerSec, "XSTOCK_SERVER_RATE_PER_SEC")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "XSTOCK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "XSTOCK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "XSTOCK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "XSTOCK_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "XSTOCK_MODE")
	setStr(&cfg.LogLevel, "XSTOCK_LOG_LEVEL")

	if len(errs) > 0 {
		return fmt.Errorf("config: malformed environment:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty; unparsable values are collected.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(errs *envErrors, dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs.add(key, v, "integer")
			return
		}
		*dst = n
	}
}

func setFloat64(errs *envErrors, dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs.add(key, v, "number")
			return
		}
		*dst = f
	}
}

func setBool(errs *envErrors, dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs.add(key, v, "boolean")
			return
		}
		*dst = b
	}
}

// setDuration accepts Go durations ("30s") and bare integers, which are read
// as milliseconds.
func setDuration(errs *envErrors, dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
			return
		}
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			dst.Duration = time.Duration(ms) * time.Millisecond
			return
		}
		errs.add(key, v, "duration")
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := splitList(v)
		if len(parts) > 0 {
			*dst = parts
		}
	}
}

// splitList splits a comma separated list. JSON byte-array secrets contain
// commas themselves, so bracketed segments are kept intact.
func splitList(v string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i, r := range v {
		switch r {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				if p := strings.TrimSpace(v[start:i]); p != "" {
					out = append(out, p)
				}
				start = i + 1
			}
		}
	}
	if p := strings.TrimSpace(v[start:]); p != "" {
		out = append(out, p)
	}
	return out
}
