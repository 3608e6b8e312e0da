package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// HistoryHandler serves the persisted records: opportunities, price
// snapshots, trades and open positions. Nil sources answer with empty lists.
type HistoryHandler struct {
	opps      domain.OpportunityLog
	prices    domain.PriceCache
	trades    domain.TradeStore
	positions domain.PositionStore
	logger    *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(opps domain.OpportunityLog, prices domain.PriceCache, trades domain.TradeStore, positions domain.PositionStore, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		opps:      opps,
		prices:    prices,
		trades:    trades,
		positions: positions,
		logger:    logger,
	}
}

// ListOpportunities returns the most recent opportunities, newest first.
// GET /api/opportunities?limit=50&symbol=TSLAx
func (h *HistoryHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 1000)
	symbol := r.URL.Query().Get("symbol")

	var opps []domain.Opportunity
	if h.opps != nil {
		fetch := limit
		if symbol != "" {
			fetch = 0 // filter over the whole journal
		}
		all, err := h.opps.Recent(r.Context(), fetch)
		if err != nil {
			h.fail(w, r, "list opportunities", err)
			return
		}
		for _, o := range all {
			if symbol != "" && o.Symbol != symbol {
				continue
			}
			opps = append(opps, o)
			if len(opps) == limit {
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": nonNil(opps)})
}

// ListPrices returns the latest venue/reference price pair per asset.
// GET /api/prices?symbols=TSLAx,NVDAx
func (h *HistoryHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	var snaps []domain.PriceSnapshot
	if h.prices != nil {
		var err error
		snaps, err = h.prices.GetSnapshots(r.Context(), parseList(r, "symbols"))
		if err != nil {
			h.fail(w, r, "list prices", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": nonNil(snaps)})
}

// ListTrades returns recent trade outcomes, newest first.
// GET /api/trades?limit=50
func (h *HistoryHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	var trades []domain.TradeOutcome
	if h.trades != nil {
		var err error
		trades, err = h.trades.ListTrades(r.Context(), parseLimit(r, 50, 500))
		if err != nil {
			h.fail(w, r, "list trades", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": nonNil(trades)})
}

// ListPositions returns positions still held or being exited.
// GET /api/positions
func (h *HistoryHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	var positions []domain.Position
	if h.positions != nil {
		var err error
		positions, err = h.positions.ListOpenPositions(r.Context())
		if err != nil {
			h.fail(w, r, "list positions", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": nonNil(positions)})
}

func (h *HistoryHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, op+" failed")
}
