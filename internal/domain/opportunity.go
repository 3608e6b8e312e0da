package domain

import "time"

// Direction tells which venue is cheap relative to the reference price.
type Direction string

const (
	// DirectionBuyCheapVenue buys on the aggregator below reference and
	// realizes the gain once the venue price converges upward.
	DirectionBuyCheapVenue Direction = "BUY_CHEAP_VENUE"
	// DirectionSellCheapVenue applies when the venue trades above reference.
	DirectionSellCheapVenue Direction = "SELL_CHEAP_VENUE"
)

// Opportunity is a recorded instance where spread and estimated profit both
// cleared the configured minimums. Immutable once created.
type Opportunity struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	Timestamp       time.Time `json:"timestamp"`
	VenuePrice      float64   `json:"venuePrice"`
	ReferencePrice  float64   `json:"referencePrice"`
	Spread          float64   `json:"spread"`
	SpreadPercent   float64   `json:"spreadPercent"`
	EstimatedProfit float64   `json:"estimatedProfit"`
	Direction       Direction `json:"direction"`
}

// AssetStats are the running per-asset monitor statistics.
type AssetStats struct {
	Symbol           string    `json:"symbol"`
	Checks           int64     `json:"checks"`
	AvgSpreadPercent float64   `json:"avgSpreadPercent"`
	MaxSpreadPercent float64   `json:"maxSpreadPercent"`
	Opportunities    int64     `json:"opportunities"`
	EstimatedProfit  float64   `json:"estimatedProfit"`
	LastVenuePrice   float64   `json:"lastVenuePrice"`
	LastRefPrice     float64   `json:"lastReferencePrice"`
	LastState        string    `json:"lastState"`
	LastError        string    `json:"lastError,omitempty"`
	LastCheckedAt    time.Time `json:"lastCheckedAt"`
}
