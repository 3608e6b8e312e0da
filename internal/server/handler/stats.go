package handler

import (
	"net/http"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// MonitorSource exposes per-asset monitor statistics.
type MonitorSource interface {
	Stats() []domain.AssetStats
}

// WalletSource exposes the wallet pool.
type WalletSource interface {
	Summaries() []domain.WalletSummary
}

// StatsHandler serves monitor, execution and wallet statistics. Any source
// may be nil when the process does not run it.
type StatsHandler struct {
	monitor MonitorSource
	exec    ExecutionSource
	wallets WalletSource
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(monitor MonitorSource, exec ExecutionSource, wallets WalletSource) *StatsHandler {
	return &StatsHandler{monitor: monitor, exec: exec, wallets: wallets}
}

type statsResponse struct {
	Assets    []domain.AssetStats    `json:"assets"`
	Execution *domain.ExecutionStats `json:"execution,omitempty"`
}

// GetStats returns per-asset and execution statistics.
// GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	var resp statsResponse
	if h.monitor != nil {
		resp.Assets = h.monitor.Stats()
	}
	resp.Assets = nonNil(resp.Assets)
	if h.exec != nil {
		st := h.exec.Stats()
		resp.Execution = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListWallets returns the loaded wallets with balances and counters. Private
// keys are never included.
// GET /api/wallets
func (h *StatsHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	var wallets []domain.WalletSummary
	if h.wallets != nil {
		wallets = h.wallets.Summaries()
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallets": nonNil(wallets)})
}
