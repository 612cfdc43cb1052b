package amm

import "math/big"

// quotePair prices a prospective swap against the supplied pair snapshot. The
// computation is pure; repeated calls with unchanged reserves return identical
// results.
func quotePair(pair *TradingPair, direction Direction, amountIn *big.Int) (*Quote, error) {
	if pair == nil {
		return nil, ErrPairNotFound
	}
	if !pair.Active {
		return nil, ErrPairInactive
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !direction.Valid() {
		return nil, ErrInvalidAmount
	}
	reserveIn, reserveOut := pair.NGNReserve, pair.StockReserve
	if direction == DirectionStockToNGN {
		reserveIn, reserveOut = pair.StockReserve, pair.NGNReserve
	}
	amountOut, err := getAmountOut(amountIn, reserveIn, reserveOut, pair.FeeRateBps)
	if err != nil {
		return nil, err
	}
	return &Quote{
		AmountOut:      amountOut,
		Fee:            feeFor(amountIn, pair.FeeRateBps),
		PriceImpactBps: priceImpactBps(amountIn, amountOut, reserveIn, reserveOut, pair.FeeRateBps),
	}, nil
}
