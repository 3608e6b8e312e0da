package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// ExecutionSource exposes the executor's counters.
type ExecutionSource interface {
	Stats() domain.ExecutionStats
}

// StatusInfo is the static part of the status response.
type StatusInfo struct {
	Mode           string
	Assets         []string
	AutoExecute    bool
	WalletStrategy string
	StartedAt      time.Time
}

// StatusHandler serves the bot status for the dashboard.
type StatusHandler struct {
	info StatusInfo
	exec ExecutionSource // nil in api mode
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(info StatusInfo, exec ExecutionSource) *StatusHandler {
	return &StatusHandler{info: info, exec: exec}
}

type statusResponse struct {
	Mode           string   `json:"mode"`
	Assets         []string `json:"assets"`
	AutoExecute    bool     `json:"autoExecute"`
	WalletStrategy string   `json:"walletStrategy,omitempty"`
	UptimeSeconds  int64    `json:"uptimeSeconds"`
	TradeInFlight  bool     `json:"tradeInFlight"`
}

// GetStatus responds with the mode, monitored assets and trade activity.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:           h.info.Mode,
		Assets:         nonNil(h.info.Assets),
		AutoExecute:    h.info.AutoExecute,
		WalletStrategy: h.info.WalletStrategy,
		UptimeSeconds:  int64(time.Since(h.info.StartedAt).Seconds()),
	}
	if h.exec != nil {
		resp.TradeInFlight = h.exec.Stats().InFlight
	}
	writeJSON(w, http.StatusOK, resp)
}
