package amm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Direction selects which leg of a trading pair is the swap input.
type Direction string

const (
	// DirectionNGNToStock spends NGN and receives the stock token.
	DirectionNGNToStock Direction = "ngn_to_stock"
	// DirectionStockToNGN spends the stock token and receives NGN.
	DirectionStockToNGN Direction = "stock_to_ngn"
)

// Valid reports whether the direction is one of the two supported values.
func (d Direction) Valid() bool {
	return d == DirectionNGNToStock || d == DirectionStockToNGN
}

// TradingPair captures the pooled state for one stock token traded against
// NGN. Amounts are wei-scaled (18 decimals) big integers to match the token
// contracts the pool fronts.
type TradingPair struct {
	PairID              string
	StockToken          common.Address
	NGNReserve          *big.Int
	StockReserve        *big.Int
	TotalLiquidity      *big.Int
	FeeRateBps          uint64
	PriceImpactLimitBps uint64
	Active              bool
	CreatedAt           int64
	LastUpdateTime      int64
}

// Clone returns a deep copy so callers cannot mutate pool state through
// shared big.Int pointers.
func (p *TradingPair) Clone() *TradingPair {
	if p == nil {
		return nil
	}
	clone := *p
	if p.NGNReserve != nil {
		clone.NGNReserve = new(big.Int).Set(p.NGNReserve)
	}
	if p.StockReserve != nil {
		clone.StockReserve = new(big.Int).Set(p.StockReserve)
	}
	if p.TotalLiquidity != nil {
		clone.TotalLiquidity = new(big.Int).Set(p.TotalLiquidity)
	}
	return &clone
}

// Quote is the result of pricing a prospective swap against current reserves.
type Quote struct {
	AmountOut      *big.Int
	Fee            *big.Int
	PriceImpactBps uint64
}

// PricePoint is one entry in a pair's append-only price log.
type PricePoint struct {
	Price     *big.Int
	Timestamp int64
}

// Clone returns a deep copy of the price point.
func (p *PricePoint) Clone() *PricePoint {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Price != nil {
		clone.Price = new(big.Int).Set(p.Price)
	}
	return &clone
}

// LiquidityPosition records one provider's share balance in a pair.
type LiquidityPosition struct {
	StockToken common.Address
	Provider   common.Address
	Shares     *big.Int
}

// GlobalStats aggregates activity across every trading pair. Volume and fees
// are denominated in NGN; stock-side fees are converted at the pre-swap spot
// price when accrued.
type GlobalStats struct {
	PairCount      uint64
	TotalVolumeNGN *big.Int
	TotalFeesNGN   *big.Int
	TotalLiquidity *big.Int
}

// Clone returns a deep copy of the stats record.
func (s *GlobalStats) Clone() *GlobalStats {
	if s == nil {
		return nil
	}
	clone := *s
	if s.TotalVolumeNGN != nil {
		clone.TotalVolumeNGN = new(big.Int).Set(s.TotalVolumeNGN)
	}
	if s.TotalFeesNGN != nil {
		clone.TotalFeesNGN = new(big.Int).Set(s.TotalFeesNGN)
	}
	if s.TotalLiquidity != nil {
		clone.TotalLiquidity = new(big.Int).Set(s.TotalLiquidity)
	}
	return &clone
}
