package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/xstockarb/internal/app"
	"github.com/alanyoungcy/xstockarb/internal/domain"
	"github.com/alanyoungcy/xstockarb/internal/store/jsonlog"
)

func walletsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "wallets",
		Short: "Show the configured wallets and their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts, os.Stderr)
			if err != nil {
				return err
			}
			pool, n, err := app.NewWalletPool(cfg, app.NewLedger(cfg, logger), logger)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no wallets configured")
				return nil
			}
			pool.RefreshAll(cmd.Context())
			renderWallets(cmd.OutOrStdout(), pool.Summaries())
			return nil
		},
	}
}

func opportunitiesCmd(opts *options) *cobra.Command {
	var (
		limit  int
		symbol string
	)
	cmd := &cobra.Command{
		Use:   "opportunities",
		Short: "Print the most recent logged opportunities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts, os.Stderr)
			if err != nil {
				return err
			}
			journal, err := jsonlog.Open(cfg.Monitor.OpportunityLogDir, jsonlog.FileName(len(cfg.Assets)), logger)
			if err != nil {
				return err
			}
			opps, err := journal.Recent(cmd.Context(), 0)
			if err != nil {
				return err
			}
			opps = filterOpportunities(opps, symbol, limit)
			if len(opps) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no opportunities in %s\n", journal.Path())
				return nil
			}
			renderOpportunities(cmd.OutOrStdout(), opps)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show (0 for all)")
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "only show this asset")
	return cmd
}

// filterOpportunities keeps the newest limit entries for symbol. opps must be
// newest first.
func filterOpportunities(opps []domain.Opportunity, symbol string, limit int) []domain.Opportunity {
	var out []domain.Opportunity
	for _, o := range opps {
		if symbol != "" && !strings.EqualFold(o.Symbol, symbol) {
			continue
		}
		out = append(out, o)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func renderOpportunities(w io.Writer, opps []domain.Opportunity) {
	table := tablewriter.NewWriter(w)
	table.Header("Time", "Symbol", "Venue", "Reference", "Spread", "Est. profit", "Direction")
	for _, o := range opps {
		table.Append(
			o.Timestamp.Local().Format(time.DateTime),
			o.Symbol,
			fmt.Sprintf("%.4f", o.VenuePrice),
			fmt.Sprintf("%.4f", o.ReferencePrice),
			fmt.Sprintf("%.3f%%", o.SpreadPercent),
			fmt.Sprintf("$%.2f", o.EstimatedProfit),
			string(o.Direction),
		)
	}
	table.Render()
}

func renderWallets(w io.Writer, wallets []domain.WalletSummary) {
	table := tablewriter.NewWriter(w)
	table.Header("Address", "SOL", "USDC", "Trades", "Won", "Lost", "Profit", "Last used")
	for _, s := range wallets {
		lastUsed := "-"
		if !s.LastUsed.IsZero() {
			lastUsed = s.LastUsed.Local().Format(time.DateTime)
		}
		table.Append(
			s.Address,
			fmt.Sprintf("%.4f", s.SOLBalance),
			fmt.Sprintf("%.2f", s.USDCBalance),
			fmt.Sprintf("%d", s.TotalTrades),
			fmt.Sprintf("%d", s.SuccessfulTrades),
			fmt.Sprintf("%d", s.FailedTrades),
			fmt.Sprintf("$%.2f", s.TotalProfit),
			lastUsed,
		)
	}
	table.Render()
}
