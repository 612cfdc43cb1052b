package amm

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// TokenLedger abstracts the asset layer the engine moves value through. Both
// legs of every pair are addressed tokens; transfers either complete atomically
// or return an error, which the engine maps to ErrTransferFailed.
type TokenLedger interface {
	BalanceOf(token, account common.Address) *big.Int
	// Transfer moves amount between accounts on the token's own ledger.
	Transfer(token, from, to common.Address, amount *big.Int) error
	// TransferFrom spends owner's allowance granted to spender.
	TransferFrom(token, spender, owner, to common.Address, amount *big.Int) error
}

// Store receives state snapshots after every committed mutation so the engine
// can be restored across restarts. A nil store leaves the engine memory-only.
type Store interface {
	SavePair(ctx context.Context, pair *TradingPair) error
	SavePosition(ctx context.Context, position *LiquidityPosition) error
	AppendPricePoint(ctx context.Context, stockToken common.Address, point *PricePoint) error
	SaveStats(ctx context.Context, stats *GlobalStats) error
}

// pairState is the mutable ledger entry for one trading pair. Its mutex
// serializes all reserve mutations; distinct pairs proceed independently.
type pairState struct {
	mu        sync.Mutex
	pair      *TradingPair
	positions map[common.Address]*big.Int
	history   *priceLog
}

func newPairState(pair *TradingPair, historyLimit int) *pairState {
	return &pairState{
		pair:      pair,
		positions: make(map[common.Address]*big.Int),
		history:   newPriceLog(historyLimit),
	}
}

func (ps *pairState) position(provider common.Address) *big.Int {
	shares, ok := ps.positions[provider]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(shares)
}

func (ps *pairState) setPosition(provider common.Address, shares *big.Int) {
	if shares.Sign() == 0 {
		delete(ps.positions, provider)
		return
	}
	ps.positions[provider] = new(big.Int).Set(shares)
}

func (e *Engine) pairFor(stockToken common.Address) (*pairState, error) {
	if e == nil {
		return nil, errNilEngine
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	ps, ok := e.pairs[stockToken]
	if !ok {
		return nil, ErrPairNotFound
	}
	return ps, nil
}
