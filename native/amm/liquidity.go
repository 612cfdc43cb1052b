package amm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// CreatePair provisions a new stock/NGN pool. Both initial amounts are pulled
// from the caller, the pair activates immediately, and the caller is minted
// sqrt(initialNGN*initialStock) liquidity shares (the Uniswap v2 convention,
// applied uniformly for every pair).
func (e *Engine) CreatePair(caller, stockToken common.Address, initialNGN, initialStock *big.Int, feeBps uint64) (string, error) {
	if e == nil {
		return "", errNilEngine
	}
	if initialNGN == nil || initialNGN.Sign() <= 0 || initialStock == nil || initialStock.Sign() <= 0 {
		return "", ErrInvalidAmount
	}
	if feeBps > FeeRateCapBps {
		return "", ErrInvalidFeeRate
	}

	// Pair creation is rare; the registry write lock is held across the whole
	// call so a racing duplicate create cannot slip between check and insert.
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pairs[stockToken]; ok {
		return "", ErrPairExists
	}

	if err := e.tokens.TransferFrom(e.ngnToken, e.treasury, caller, e.treasury, initialNGN); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.tokens.TransferFrom(stockToken, e.treasury, caller, e.treasury, initialStock); err != nil {
		// Refund the NGN leg so a half-provisioned pool never exists.
		if refundErr := e.tokens.Transfer(e.ngnToken, e.treasury, caller, initialNGN); refundErr != nil {
			e.logger.Error("refund after failed pair creation", "stock", stockToken.Hex(), "err", refundErr)
		}
		return "", fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	shares := sqrtBig(new(big.Int).Mul(initialNGN, initialStock))
	now := e.now()
	pair := &TradingPair{
		PairID:              uuid.NewString(),
		StockToken:          stockToken,
		NGNReserve:          new(big.Int).Set(initialNGN),
		StockReserve:        new(big.Int).Set(initialStock),
		TotalLiquidity:      new(big.Int).Set(shares),
		FeeRateBps:          feeBps,
		PriceImpactLimitBps: DefaultPriceImpactLimitBps,
		Active:              true,
		CreatedAt:           now,
		LastUpdateTime:      now,
	}
	ps := newPairState(pair, e.historyLimit)
	ps.setPosition(caller, shares)
	e.pairs[stockToken] = ps
	e.order = append(e.order, stockToken)

	stats := e.stats.recordPairCreated(shares)
	e.persistPair(pair)
	e.persistPosition(stockToken, caller, shares)
	e.persistStats(stats)
	if e.metrics != nil {
		e.metrics.RecordLiquidityEvent(stockToken.Hex(), "create")
	}
	return pair.PairID, nil
}

// AddLiquidity deposits both legs and mints shares proportional to the lesser
// side of the deposit against current reserves. Any excess of the over-supplied
// asset is not refunded; it accretes to the pool. Callers should pre-compute
// the reserve ratio. A deposit into a drained pool (zero outstanding shares)
// re-seeds it and mints shares as if it were the initial provision.
func (e *Engine) AddLiquidity(caller, stockToken common.Address, ngnAmount, stockAmount, minShares *big.Int) (*big.Int, error) {
	if e == nil {
		return nil, errNilEngine
	}
	if ngnAmount == nil || ngnAmount.Sign() <= 0 || stockAmount == nil || stockAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	ps, err := e.pairFor(stockToken)
	if err != nil {
		return nil, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	pair := ps.pair
	if !pair.Active {
		return nil, ErrPairInactive
	}

	var shares *big.Int
	if pair.TotalLiquidity.Sign() == 0 {
		// A fully drained pool has no reserve ratio to price against; the
		// deposit re-seeds it under the initial-provision rule.
		shares = sqrtBig(new(big.Int).Mul(ngnAmount, stockAmount))
	} else {
		shares = minBig(
			mulDiv(pair.TotalLiquidity, ngnAmount, pair.NGNReserve),
			mulDiv(pair.TotalLiquidity, stockAmount, pair.StockReserve),
		)
	}
	if shares.Sign() == 0 {
		return nil, ErrInvalidAmount
	}
	if minShares != nil && shares.Cmp(minShares) < 0 {
		return nil, ErrSlippageExceeded
	}

	if err := e.tokens.TransferFrom(e.ngnToken, e.treasury, caller, e.treasury, ngnAmount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.tokens.TransferFrom(stockToken, e.treasury, caller, e.treasury, stockAmount); err != nil {
		if refundErr := e.tokens.Transfer(e.ngnToken, e.treasury, caller, ngnAmount); refundErr != nil {
			e.logger.Error("refund after failed deposit", "stock", stockToken.Hex(), "err", refundErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	pair.NGNReserve.Add(pair.NGNReserve, ngnAmount)
	pair.StockReserve.Add(pair.StockReserve, stockAmount)
	pair.TotalLiquidity.Add(pair.TotalLiquidity, shares)
	position := ps.position(caller)
	position.Add(position, shares)
	ps.setPosition(caller, position)
	pair.LastUpdateTime = e.now()

	stats := e.stats.recordLiquidityDelta(shares)
	e.persistPair(pair)
	e.persistPosition(stockToken, caller, position)
	e.persistStats(stats)
	if e.metrics != nil {
		e.metrics.RecordLiquidityEvent(stockToken.Hex(), "add")
	}
	return new(big.Int).Set(shares), nil
}

// RemoveLiquidity burns the caller's shares and pays out both legs
// proportionally. Withdrawal is permitted while a pair is paused so providers
// are never locked in.
func (e *Engine) RemoveLiquidity(caller, stockToken common.Address, shares, minNGNOut, minStockOut *big.Int) (*big.Int, *big.Int, error) {
	if e == nil {
		return nil, nil, errNilEngine
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	ps, err := e.pairFor(stockToken)
	if err != nil {
		return nil, nil, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	pair := ps.pair

	position := ps.position(caller)
	if position.Cmp(shares) < 0 {
		return nil, nil, ErrInsufficientShares
	}
	ngnOut := mulDiv(pair.NGNReserve, shares, pair.TotalLiquidity)
	stockOut := mulDiv(pair.StockReserve, shares, pair.TotalLiquidity)
	if minNGNOut != nil && ngnOut.Cmp(minNGNOut) < 0 {
		return nil, nil, ErrSlippageExceeded
	}
	if minStockOut != nil && stockOut.Cmp(minStockOut) < 0 {
		return nil, nil, ErrSlippageExceeded
	}

	if err := e.tokens.Transfer(e.ngnToken, e.treasury, caller, ngnOut); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.tokens.Transfer(stockToken, e.treasury, caller, stockOut); err != nil {
		if refundErr := e.tokens.Transfer(e.ngnToken, caller, e.treasury, ngnOut); refundErr != nil {
			e.logger.Error("refund after failed withdrawal", "stock", stockToken.Hex(), "err", refundErr)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	pair.NGNReserve.Sub(pair.NGNReserve, ngnOut)
	pair.StockReserve.Sub(pair.StockReserve, stockOut)
	pair.TotalLiquidity.Sub(pair.TotalLiquidity, shares)
	position.Sub(position, shares)
	ps.setPosition(caller, position)
	pair.LastUpdateTime = e.now()
	if pair.TotalLiquidity.Sign() == 0 {
		// Fully drained pools deactivate until liquidity is re-provisioned.
		pair.Active = false
	}

	stats := e.stats.recordLiquidityDelta(new(big.Int).Neg(shares))
	e.persistPair(pair)
	e.persistPosition(stockToken, caller, position)
	e.persistStats(stats)
	if e.metrics != nil {
		e.metrics.RecordLiquidityEvent(stockToken.Hex(), "remove")
	}
	return ngnOut, stockOut, nil
}
