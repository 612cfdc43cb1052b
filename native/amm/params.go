package amm

import "math/big"

const (
	// FeeRateCapBps bounds pair fee rates at 10%.
	FeeRateCapBps uint64 = 1000
	// DefaultPriceImpactLimitBps is the impact ceiling applied to new pairs (10%).
	DefaultPriceImpactLimitBps uint64 = 1000
	// DefaultFeeRateBps is the fee applied when pair creation passes zero (0.30%).
	DefaultFeeRateBps uint64 = 30
)

var (
	basisPoints = big.NewInt(10_000)
	priceScale  = mustBigInt("1000000000000000000") // 1e18, token fixed-point scale
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}
