// Command xstockarb is the entry point for the xStock arbitrage bot. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and starts the application in the configured mode. Subcommands inspect
// wallets and the opportunity log and prepare encrypted key files.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/xstockarb/internal/app"
	"github.com/alanyoungcy/xstockarb/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the flags shared by every subcommand.
type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "xstockarb",
		Short: "Tokenized stock arbitrage bot for Solana",
		Long: `xstockarb watches tokenized stocks on a Solana swap aggregator, compares
them with an off-chain reference price and trades the spread when it is
large enough to pay for fees.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.toml",
		"path to configuration file (skipped when the default is missing)")

	root.AddCommand(
		runCmd(opts),
		walletsCmd(opts),
		opportunitiesCmd(opts),
		encryptKeyCmd(),
		versionCmd(),
	)
	return root
}

func runCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot in the configured mode (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), opts)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "xstockarb version %s\n", version)
		},
	}
}

// runBot is the long-running service.
func runBot(parent context.Context, opts *options) error {
	cfg, logger, err := loadConfig(opts, os.Stdout)
	if err != nil {
		return err
	}

	logger.Info("xstockarb starting",
		slog.String("version", version),
		slog.String("mode", cfg.Mode),
		slog.String("config", opts.configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if !errors.Is(err, context.Canceled) {
			logger.Error("application exited with error", slog.String("error", err.Error()))
			return err
		}
		logger.Info("application shut down gracefully")
	}

	logger.Info("xstockarb stopped")
	return nil
}

// loadConfig reads and validates the configuration and installs a JSON
// logger writing to logOut at the configured level as the slog default.
func loadConfig(opts *options, logOut io.Writer) (*config.Config, *slog.Logger, error) {
	path := opts.configPath
	if path == "config.toml" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", opts.configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := newLogger(cfg.LogLevel, logOut)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
