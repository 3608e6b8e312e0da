package arbitrage

import (
	"errors"
	"math"
	"time"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

// ErrInvalidPrice is returned when either side of a spread is not a positive
// finite number.
var ErrInvalidPrice = errors.New("arbitrage: price must be positive")

// SpreadResult is the comparison of a venue price against the reference.
// SpreadPercent is always measured against the reference price and is never
// negative; Direction carries the sign.
type SpreadResult struct {
	Direction     domain.Direction
	AbsSpread     float64
	SpreadPercent float64
}

// CalculateSpread compares venue against reference. A venue below the
// reference means buy on the venue and realize at the reference.
func CalculateSpread(venuePrice, referencePrice float64) (SpreadResult, error) {
	if !validPrice(venuePrice) || !validPrice(referencePrice) {
		return SpreadResult{}, ErrInvalidPrice
	}
	dir := domain.DirectionSellCheapVenue
	if venuePrice < referencePrice {
		dir = domain.DirectionBuyCheapVenue
	}
	abs := math.Abs(venuePrice - referencePrice)
	return SpreadResult{
		Direction:     dir,
		AbsSpread:     abs,
		SpreadPercent: abs / referencePrice * 100,
	}, nil
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

// FeeModel is charged once per round trip against gross profit.
type FeeModel struct {
	FeePercent float64 // percent of notional
	GasCost    float64 // fixed, in USDC
}

// Cost returns the fees charged on a round trip of the given notional.
func (f FeeModel) Cost(notional float64) float64 {
	return notional*f.FeePercent/100 + f.GasCost
}

// EstimateProfit returns the net profit of committing notional at the entry
// side and exiting at the other side. For BUY_CHEAP_VENUE shares are bought
// at the venue price and valued at the reference; SELL_CHEAP_VENUE is the
// mirror image.
func EstimateProfit(notional, venuePrice, referencePrice float64, dir domain.Direction, fees FeeModel) float64 {
	entry, exit := venuePrice, referencePrice
	if dir == domain.DirectionSellCheapVenue {
		entry, exit = referencePrice, venuePrice
	}
	if entry <= 0 {
		return -fees.Cost(notional)
	}
	shares := notional / entry
	gross := shares*exit - notional
	return gross - fees.Cost(notional)
}

// Thresholds are the minimums an opportunity must clear.
type Thresholds struct {
	MinSpreadPercent float64
	MinProfit        float64
}

// Clears reports whether both the spread and the estimated profit reach the
// configured minimums.
func (t Thresholds) Clears(spreadPercent, profit float64) bool {
	return math.Abs(spreadPercent) >= t.MinSpreadPercent && profit >= t.MinProfit
}

// Calculator evaluates price pairs for a fixed notional and fee model.
type Calculator struct {
	Notional   float64
	Fees       FeeModel
	Thresholds Thresholds
}

// Evaluation is the outcome of evaluating one price pair.
type Evaluation struct {
	SpreadResult
	VenuePrice      float64
	ReferencePrice  float64
	EstimatedProfit float64
	Qualifies       bool
}

// Evaluate computes spread and estimated profit and checks both thresholds.
func (c Calculator) Evaluate(venuePrice, referencePrice float64) (Evaluation, error) {
	sr, err := CalculateSpread(venuePrice, referencePrice)
	if err != nil {
		return Evaluation{}, err
	}
	profit := EstimateProfit(c.Notional, venuePrice, referencePrice, sr.Direction, c.Fees)
	return Evaluation{
		SpreadResult:    sr,
		VenuePrice:      venuePrice,
		ReferencePrice:  referencePrice,
		EstimatedProfit: profit,
		Qualifies:       c.Thresholds.Clears(sr.SpreadPercent, profit),
	}, nil
}

// Opportunity builds the immutable opportunity record for e.
func (e Evaluation) Opportunity(id, symbol string, at time.Time) domain.Opportunity {
	return domain.Opportunity{
		ID:              id,
		Symbol:          symbol,
		Timestamp:       at,
		VenuePrice:      e.VenuePrice,
		ReferencePrice:  e.ReferencePrice,
		Spread:          e.AbsSpread,
		SpreadPercent:   e.SpreadPercent,
		EstimatedProfit: e.EstimatedProfit,
		Direction:       e.Direction,
	}
}
