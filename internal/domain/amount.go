package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// USDCDecimals is the mint precision of the stable asset.
const USDCDecimals = 6

// ToBaseUnits converts a whole-token amount into integer base units,
// truncating anything below the smallest unit. Negative amounts yield zero.
func ToBaseUnits(amount float64, decimals int) uint64 {
	d := decimal.NewFromFloat(amount).Shift(int32(decimals)).Truncate(0)
	if d.Sign() <= 0 {
		return 0
	}
	return d.BigInt().Uint64()
}

// FromBaseUnits converts integer base units into a whole-token amount.
func FromBaseUnits(units uint64, decimals int) float64 {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(units), -int32(decimals))
	f, _ := d.Float64()
	return f
}

// ParseBaseUnits parses an integer amount string as returned by RPC and
// aggregator APIs.
func ParseBaseUnits(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if d.Sign() <= 0 {
		return 0, nil
	}
	return d.Truncate(0).BigInt().Uint64(), nil
}
