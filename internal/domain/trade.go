package domain

import "time"

// TradeIntent is created by the executor from an Opportunity and consumed once.
type TradeIntent struct {
	ID             string
	OpportunityID  string
	Asset          AssetConfig
	Direction      Direction
	Notional       float64
	ExpectedProfit float64
	VenuePrice     float64
	ReferencePrice float64
	SpreadPercent  float64
}

// NewTradeIntent derives an intent for the given notional from opp.
func NewTradeIntent(id string, opp Opportunity, asset AssetConfig, notional float64) TradeIntent {
	return TradeIntent{
		ID:             id,
		OpportunityID:  opp.ID,
		Asset:          asset,
		Direction:      opp.Direction,
		Notional:       notional,
		ExpectedProfit: opp.EstimatedProfit,
		VenuePrice:     opp.VenuePrice,
		ReferencePrice: opp.ReferencePrice,
		SpreadPercent:  opp.SpreadPercent,
	}
}

// TradeOutcome is the result of one trade lifecycle.
type TradeOutcome struct {
	TradeID        string     `json:"tradeId"`
	OpportunityID  string     `json:"opportunityId"`
	Symbol         string     `json:"symbol"`
	Direction      Direction  `json:"direction"`
	Success        bool       `json:"success"`
	Simulated      bool       `json:"simulated"`
	Signatures     []string   `json:"signatures,omitempty"`
	RealizedProfit float64    `json:"realizedProfit"`
	Error          string     `json:"error,omitempty"`
	Wallet         string     `json:"wallet,omitempty"`
	ExitReason     ExitReason `json:"exitReason,omitempty"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     time.Time  `json:"finishedAt"`
}

// ExecutionStats are the executor's cumulative counters.
type ExecutionStats struct {
	Attempted      int64   `json:"attempted"`
	SkippedBusy    int64   `json:"skippedBusy"`
	Succeeded      int64   `json:"succeeded"`
	Failed         int64   `json:"failed"`
	Simulated      int64   `json:"simulated"`
	RealizedProfit float64 `json:"realizedProfit"`
	InFlight       bool    `json:"inFlight"`
}
