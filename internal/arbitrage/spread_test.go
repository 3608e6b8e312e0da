package arbitrage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/xstockarb/internal/domain"
)

var scenarioFees = FeeModel{FeePercent: 0.3, GasCost: 0.01}

func TestCalculateSpreadDirectionAndPercent(t *testing.T) {
	pairs := []struct{ venue, ref float64 }{
		{100, 100.8},
		{101.5, 100},
		{250.25, 250.25},
		{0.5, 0.75},
		{1000, 999},
	}
	for _, p := range pairs {
		sr, err := CalculateSpread(p.venue, p.ref)
		require.NoError(t, err)

		want := domain.DirectionSellCheapVenue
		if p.ref-p.venue > 0 {
			want = domain.DirectionBuyCheapVenue
		}
		assert.Equal(t, want, sr.Direction, "venue=%v ref=%v", p.venue, p.ref)

		abs := p.venue - p.ref
		if abs < 0 {
			abs = -abs
		}
		assert.InDelta(t, abs/p.ref*100, sr.SpreadPercent, 1e-12)
		assert.InDelta(t, abs, sr.AbsSpread, 1e-12)
	}
}

func TestCalculateSpreadRejectsNonPositive(t *testing.T) {
	_, err := CalculateSpread(0, 100)
	assert.ErrorIs(t, err, ErrInvalidPrice)
	_, err = CalculateSpread(100, -1)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestEstimateProfit(t *testing.T) {
	buy := EstimateProfit(100, 100, 100.8, domain.DirectionBuyCheapVenue, scenarioFees)
	assert.InDelta(t, 0.49, buy, 1e-9)

	// Mirror image: buy at reference 100, sell at venue 100.8.
	sell := EstimateProfit(100, 100.8, 100, domain.DirectionSellCheapVenue, scenarioFees)
	assert.InDelta(t, 0.49, sell, 1e-9)

	flat := EstimateProfit(100, 100, 100, domain.DirectionBuyCheapVenue, scenarioFees)
	assert.InDelta(t, -0.31, flat, 1e-9)
}

func TestCalculatorEmitsScenarioOpportunity(t *testing.T) {
	calc := Calculator{
		Notional:   100,
		Fees:       scenarioFees,
		Thresholds: Thresholds{MinSpreadPercent: 0.5, MinProfit: 0.40},
	}

	ev, err := calc.Evaluate(100.00, 100.80)
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionBuyCheapVenue, ev.Direction)
	assert.InDelta(t, 0.794, ev.SpreadPercent, 0.001)
	assert.InDelta(t, 0.49, ev.EstimatedProfit, 0.001)
	assert.True(t, ev.Qualifies)
}

func TestCalculatorRejectsBelowMinSpread(t *testing.T) {
	calc := Calculator{
		Notional:   100,
		Fees:       scenarioFees,
		Thresholds: Thresholds{MinSpreadPercent: 1.0, MinProfit: 0.40},
	}

	ev, err := calc.Evaluate(100.00, 100.80)
	require.NoError(t, err)
	assert.False(t, ev.Qualifies)
}

func TestThresholdsRequireBoth(t *testing.T) {
	th := Thresholds{MinSpreadPercent: 0.5, MinProfit: 0.4}
	assert.True(t, th.Clears(0.5, 0.4))
	assert.False(t, th.Clears(0.6, 0.39))
	assert.False(t, th.Clears(0.49, 1))
}
