package amm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// QuoteNGNToStock prices an NGN-in swap against current reserves without
// mutating state.
func (e *Engine) QuoteNGNToStock(stockToken common.Address, ngnIn *big.Int) (*Quote, error) {
	return e.quote(stockToken, DirectionNGNToStock, ngnIn)
}

// QuoteStockToNGN prices a stock-in swap against current reserves without
// mutating state.
func (e *Engine) QuoteStockToNGN(stockToken common.Address, stockIn *big.Int) (*Quote, error) {
	return e.quote(stockToken, DirectionStockToNGN, stockIn)
}

func (e *Engine) quote(stockToken common.Address, direction Direction, amountIn *big.Int) (*Quote, error) {
	ps, err := e.pairFor(stockToken)
	if err != nil {
		return nil, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return quotePair(ps.pair, direction, amountIn)
}

// CurrentPrice returns NGN per stock token in the tokens' fixed-point scale.
func (e *Engine) CurrentPrice(stockToken common.Address) (*big.Int, error) {
	ps, err := e.pairFor(stockToken)
	if err != nil {
		return nil, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return spotPrice(ps.pair.NGNReserve, ps.pair.StockReserve)
}

// SwapNGNForStock spends ngnIn and pays the caller at least minStockOut stock
// tokens, or fails without touching state.
func (e *Engine) SwapNGNForStock(ctx context.Context, caller, stockToken common.Address, ngnIn, minStockOut *big.Int, deadline int64) (*big.Int, error) {
	return e.Swap(ctx, caller, stockToken, DirectionNGNToStock, ngnIn, minStockOut, deadline)
}

// SwapStockForNGN spends stockIn and pays the caller at least minNGNOut NGN,
// or fails without touching state.
func (e *Engine) SwapStockForNGN(ctx context.Context, caller, stockToken common.Address, stockIn, minNGNOut *big.Int, deadline int64) (*big.Int, error) {
	return e.Swap(ctx, caller, stockToken, DirectionStockToNGN, stockIn, minNGNOut, deadline)
}

// Swap executes a slippage-bounded swap. The quote is recomputed on current
// reserves under the pair lock so concurrent swaps always price against each
// other's committed updates. Every gate fails closed: reserves are only
// mutated once both token movements have completed.
func (e *Engine) Swap(ctx context.Context, caller, stockToken common.Address, direction Direction, amountIn, minAmountOut *big.Int, deadline int64) (amountOut *big.Int, err error) {
	if e == nil {
		return nil, errNilEngine
	}
	started := time.Now()
	_, span := e.tracer.Start(ctx, "amm.swap")
	span.SetAttributes(
		attribute.String("dex.stock", stockToken.Hex()),
		attribute.String("dex.direction", string(direction)),
	)
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if e.metrics != nil {
			e.metrics.RecordSwap(stockToken.Hex(), string(direction), outcome, time.Since(started))
		}
		span.End()
	}()

	if !direction.Valid() {
		return nil, ErrInvalidAmount
	}
	if deadline < e.now() {
		return nil, ErrExpired
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
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	quote, err := quotePair(pair, direction, amountIn)
	if err != nil {
		return nil, err
	}
	if quote.PriceImpactBps > pair.PriceImpactLimitBps {
		return nil, ErrExcessivePriceImpact
	}
	if minAmountOut != nil && quote.AmountOut.Cmp(minAmountOut) < 0 {
		return nil, ErrSlippageExceeded
	}

	tokenIn, tokenOut := e.ngnToken, stockToken
	if direction == DirectionStockToNGN {
		tokenIn, tokenOut = stockToken, e.ngnToken
	}
	// NGN-denominated fee, converted at the pre-swap spot price for stock-side
	// input.
	feeNGN := new(big.Int).Set(quote.Fee)
	if direction == DirectionStockToNGN {
		preSpot, priceErr := spotPrice(pair.NGNReserve, pair.StockReserve)
		if priceErr != nil {
			return nil, priceErr
		}
		feeNGN = mulDiv(quote.Fee, preSpot, priceScale)
	}

	if err := e.tokens.TransferFrom(tokenIn, e.treasury, caller, e.treasury, amountIn); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.tokens.Transfer(tokenOut, e.treasury, caller, quote.AmountOut); err != nil {
		if refundErr := e.tokens.Transfer(tokenIn, e.treasury, caller, amountIn); refundErr != nil {
			e.logger.Error("refund after failed payout", "stock", stockToken.Hex(), "err", refundErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	// Gross input enters the pool, fee included, so k strictly grows whenever
	// the fee rate is non-zero.
	if direction == DirectionNGNToStock {
		pair.NGNReserve.Add(pair.NGNReserve, amountIn)
		pair.StockReserve.Sub(pair.StockReserve, quote.AmountOut)
	} else {
		pair.StockReserve.Add(pair.StockReserve, amountIn)
		pair.NGNReserve.Sub(pair.NGNReserve, quote.AmountOut)
	}
	now := e.now()
	pair.LastUpdateTime = now

	price, err := spotPrice(pair.NGNReserve, pair.StockReserve)
	if err != nil {
		// Reserves stay positive by construction; guard regardless.
		return nil, err
	}
	point := &PricePoint{Price: price, Timestamp: now}
	ps.history.append(point)

	volumeNGN := amountIn
	if direction == DirectionStockToNGN {
		volumeNGN = quote.AmountOut
	}
	stats := e.stats.recordSwap(volumeNGN, feeNGN)

	e.persistPair(pair)
	e.persistPricePoint(stockToken, point)
	e.persistStats(stats)
	if e.metrics != nil {
		e.metrics.ObserveVolume(volumeNGN, feeNGN)
	}
	return new(big.Int).Set(quote.AmountOut), nil
}
