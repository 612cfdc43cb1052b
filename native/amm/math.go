package amm

import "math/big"

// amountAfterFee deducts feeBps from amountIn with truncating division,
// matching the token contracts' integer arithmetic.
func amountAfterFee(amountIn *big.Int, feeBps uint64) *big.Int {
	keep := new(big.Int).SetUint64(10_000 - feeBps)
	out := new(big.Int).Mul(amountIn, keep)
	return out.Quo(out, basisPoints)
}

// feeFor computes the fee retained on amountIn, denominated in the input asset.
func feeFor(amountIn *big.Int, feeBps uint64) *big.Int {
	fee := new(big.Int).Mul(amountIn, new(big.Int).SetUint64(feeBps))
	return fee.Quo(fee, basisPoints)
}

// getAmountOut applies the constant-product formula after fee deduction.
//
//	out = reserveOut * inAfterFee / (reserveIn + inAfterFee)
//
// The result is strictly less than reserveOut; a zero result reports
// ErrInsufficientLiquidity so callers never mint dust trades.
func getAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint64) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if reserveIn == nil || reserveIn.Sign() <= 0 || reserveOut == nil || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	inAfterFee := amountAfterFee(amountIn, feeBps)
	numerator := new(big.Int).Mul(reserveOut, inAfterFee)
	denominator := new(big.Int).Add(reserveIn, inAfterFee)
	amountOut := numerator.Quo(numerator, denominator)
	if amountOut.Sign() == 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}
	return amountOut, nil
}

// priceImpactBps measures the deviation between the pre-trade spot price and
// the fee-exclusive effective execution price, in basis points.
func priceImpactBps(amountIn, amountOut, reserveIn, reserveOut *big.Int, feeBps uint64) uint64 {
	inAfterFee := amountAfterFee(amountIn, feeBps)
	if inAfterFee.Sign() == 0 || reserveIn.Sign() == 0 {
		return 0
	}
	spot := new(big.Int).Mul(reserveOut, priceScale)
	spot.Quo(spot, reserveIn)
	if spot.Sign() == 0 {
		return 0
	}
	effective := new(big.Int).Mul(amountOut, priceScale)
	effective.Quo(effective, inAfterFee)
	diff := new(big.Int).Sub(spot, effective)
	diff.Abs(diff)
	diff.Mul(diff, basisPoints)
	diff.Quo(diff, spot)
	if !diff.IsUint64() {
		return 10_000
	}
	return diff.Uint64()
}

// spotPrice returns ngnReserve scaled by 1e18 over stockReserve, i.e. NGN per
// whole stock token in the tokens' fixed-point scale.
func spotPrice(ngnReserve, stockReserve *big.Int) (*big.Int, error) {
	if stockReserve == nil || stockReserve.Sign() == 0 {
		return nil, ErrPairInactive
	}
	price := new(big.Int).Mul(ngnReserve, priceScale)
	return price.Quo(price, stockReserve), nil
}

// sqrtBig returns the integer square root of v (floor).
func sqrtBig(v *big.Int) *big.Int {
	if v == nil || v.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Sqrt(v)
}

// mulDiv computes a * b / c with truncation. c must be non-zero.
func mulDiv(a, b, c *big.Int) *big.Int {
	if c == nil || c.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
