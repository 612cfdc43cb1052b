package amm

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"ngndex/observability"
)

// Engine hosts the constant-product trading pools for every stock token quoted
// against NGN. Mutations on one pair are serialized behind that pair's lock;
// pairs are otherwise independent.
type Engine struct {
	mu    sync.RWMutex
	pairs map[common.Address]*pairState
	order []common.Address

	ngnToken common.Address
	// treasury is the engine's own account on the token ledger; pooled
	// reserves are held here between swaps.
	treasury common.Address
	tokens   TokenLedger

	store        Store
	stats        *statsTracker
	admins       map[common.Address]bool
	historyLimit int
	clock        func() time.Time
	metrics      *observability.DEXMetrics
	tracer       trace.Tracer
	logger       *slog.Logger
}

// NewEngine constructs an engine bound to the NGN quote token and the asset
// ledger that both legs of every pair settle through.
func NewEngine(ngnToken, treasury common.Address, tokens TokenLedger) *Engine {
	return &Engine{
		pairs:    make(map[common.Address]*pairState),
		ngnToken: ngnToken,
		treasury: treasury,
		tokens:   tokens,
		stats:    newStatsTracker(),
		admins:   make(map[common.Address]bool),
		clock:    time.Now,
		tracer:   otel.Tracer("ngndex.amm"),
		logger:   slog.Default(),
	}
}

// SetStore wires the persistence layer. Snapshots are written after each
// committed mutation; a nil store keeps the engine memory-only.
func (e *Engine) SetStore(store Store) {
	if e == nil {
		return
	}
	e.store = store
}

// SetClock overrides the time source (primarily for deterministic testing).
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// SetMetrics wires the Prometheus registry used to record swap activity.
func (e *Engine) SetMetrics(metrics *observability.DEXMetrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

// SetLogger overrides the structured logger used for persistence warnings.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// SetHistoryLimit bounds each pair's price log. Zero keeps the log unbounded.
// Applies to pairs created or restored afterwards.
func (e *Engine) SetHistoryLimit(limit int) {
	if e == nil || limit < 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.historyLimit = limit
}

// SetAdmin grants or revokes the admin capability for an address. Wired at
// boot from configuration; gated operations check the capability per call.
func (e *Engine) SetAdmin(addr common.Address, enabled bool) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if enabled {
		e.admins[addr] = true
	} else {
		delete(e.admins, addr)
	}
}

// NGNToken returns the quote-token address every pair trades against.
func (e *Engine) NGNToken() common.Address {
	if e == nil {
		return common.Address{}
	}
	return e.ngnToken
}

func (e *Engine) isAdmin(caller common.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.admins[caller]
}

func (e *Engine) now() int64 {
	return e.clock().UTC().Unix()
}

// SetPairPaused toggles trading on a pair. Reserves are untouched; swaps and
// liquidity changes fail ErrPairInactive while paused.
func (e *Engine) SetPairPaused(caller common.Address, stockToken common.Address, paused bool) error {
	if e == nil {
		return errNilEngine
	}
	if !e.isAdmin(caller) {
		return ErrUnauthorized
	}
	ps, err := e.pairFor(stockToken)
	if err != nil {
		return err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.pair.Active = !paused
	ps.pair.LastUpdateTime = e.now()
	e.persistPair(ps.pair)
	return nil
}

// SetFeeRate updates a pair's swap fee, bounded by FeeRateCapBps.
func (e *Engine) SetFeeRate(caller common.Address, stockToken common.Address, feeBps uint64) error {
	if e == nil {
		return errNilEngine
	}
	if !e.isAdmin(caller) {
		return ErrUnauthorized
	}
	if feeBps > FeeRateCapBps {
		return ErrInvalidFeeRate
	}
	ps, err := e.pairFor(stockToken)
	if err != nil {
		return err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.pair.FeeRateBps = feeBps
	ps.pair.LastUpdateTime = e.now()
	e.persistPair(ps.pair)
	return nil
}

// SetPriceImpactLimit updates the per-swap impact ceiling for a pair.
func (e *Engine) SetPriceImpactLimit(caller common.Address, stockToken common.Address, limitBps uint64) error {
	if e == nil {
		return errNilEngine
	}
	if !e.isAdmin(caller) {
		return ErrUnauthorized
	}
	if limitBps == 0 || limitBps > 10_000 {
		return ErrInvalidAmount
	}
	ps, err := e.pairFor(stockToken)
	if err != nil {
		return err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.pair.PriceImpactLimitBps = limitBps
	ps.pair.LastUpdateTime = e.now()
	e.persistPair(ps.pair)
	return nil
}

// Pair returns a deep copy of the pair's current state.
func (e *Engine) Pair(stockToken common.Address) (*TradingPair, error) {
	ps, err := e.pairFor(stockToken)
	if err != nil {
		return nil, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.pair.Clone(), nil
}

// Position returns the provider's liquidity share balance for a pair.
func (e *Engine) Position(stockToken, provider common.Address) (*big.Int, error) {
	ps, err := e.pairFor(stockToken)
	if err != nil {
		return nil, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.position(provider), nil
}

// AllStockTokens lists every stock token with a created pair, in pair
// creation order.
func (e *Engine) AllStockTokens() []common.Address {
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]common.Address, len(e.order))
	copy(out, e.order)
	return out
}

// RestorePair loads a persisted pair into the registry at boot. Positions and
// history are restored separately.
func (e *Engine) RestorePair(pair *TradingPair) error {
	if e == nil {
		return errNilEngine
	}
	if pair == nil {
		return ErrPairNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pairs[pair.StockToken]; ok {
		return ErrPairExists
	}
	e.pairs[pair.StockToken] = newPairState(pair.Clone(), e.historyLimit)
	e.order = append(e.order, pair.StockToken)
	return nil
}

// RestorePosition loads a persisted liquidity position at boot.
func (e *Engine) RestorePosition(position *LiquidityPosition) error {
	if position == nil || position.Shares == nil {
		return ErrInsufficientShares
	}
	ps, err := e.pairFor(position.StockToken)
	if err != nil {
		return err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.setPosition(position.Provider, position.Shares)
	return nil
}

// RestorePricePoint appends a persisted price observation at boot. Points must
// be supplied oldest first.
func (e *Engine) RestorePricePoint(stockToken common.Address, point *PricePoint) error {
	if point == nil {
		return ErrPairNotFound
	}
	ps, err := e.pairFor(stockToken)
	if err != nil {
		return err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.history.append(point.Clone())
	return nil
}

// RestoreStats loads the persisted aggregate counters at boot.
func (e *Engine) RestoreStats(stats *GlobalStats) {
	if e == nil {
		return
	}
	e.stats.restore(stats)
}

func (e *Engine) persistPair(pair *TradingPair) {
	if e.store == nil {
		return
	}
	if err := e.store.SavePair(context.Background(), pair.Clone()); err != nil {
		e.logger.Warn("persist pair", "stock", pair.StockToken.Hex(), "err", err)
	}
}

func (e *Engine) persistPosition(stockToken, provider common.Address, shares *big.Int) {
	if e.store == nil {
		return
	}
	position := &LiquidityPosition{StockToken: stockToken, Provider: provider, Shares: new(big.Int).Set(shares)}
	if err := e.store.SavePosition(context.Background(), position); err != nil {
		e.logger.Warn("persist position", "stock", stockToken.Hex(), "err", err)
	}
}

func (e *Engine) persistPricePoint(stockToken common.Address, point *PricePoint) {
	if e.store == nil {
		return
	}
	if err := e.store.AppendPricePoint(context.Background(), stockToken, point.Clone()); err != nil {
		e.logger.Warn("persist price point", "stock", stockToken.Hex(), "err", err)
	}
}

func (e *Engine) persistStats(stats *GlobalStats) {
	if e.store == nil || stats == nil {
		return
	}
	if err := e.store.SaveStats(context.Background(), stats); err != nil {
		e.logger.Warn("persist stats", "err", err)
	}
}
