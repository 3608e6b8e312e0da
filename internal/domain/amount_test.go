package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		decimals int
		want     uint64
	}{
		{"usdc notional", 100, USDCDecimals, 100_000_000},
		{"fractional usdc", 0.49, USDCDecimals, 490_000},
		{"truncates dust", 1.123456789, USDCDecimals, 1_123_456},
		{"eight decimals", 0.5, 8, 50_000_000},
		{"negative is zero", -3, USDCDecimals, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToBaseUnits(tt.amount, tt.decimals))
		})
	}
}

func TestFromBaseUnits(t *testing.T) {
	assert.InDelta(t, 100.0, FromBaseUnits(100_000_000, USDCDecimals), 1e-9)
	assert.InDelta(t, 0.99206349, FromBaseUnits(99_206_349, 8), 1e-9)
}

func TestParseBaseUnits(t *testing.T) {
	n, err := ParseBaseUnits("99206349")
	require.NoError(t, err)
	assert.Equal(t, uint64(99_206_349), n)

	_, err = ParseBaseUnits("abc")
	assert.Error(t, err)
}
