// Package storage persists the trading engine's state in sqlite so the daemon
// can be restarted without losing pools, positions, or the price log.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/glebarez/sqlite"

	"ngndex/native/amm"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("storage path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS pairs (
    stock_token TEXT PRIMARY KEY,
    pair_id TEXT NOT NULL,
    ngn_reserve TEXT NOT NULL,
    stock_reserve TEXT NOT NULL,
    total_liquidity TEXT NOT NULL,
    fee_rate_bps INTEGER NOT NULL,
    price_impact_limit_bps INTEGER NOT NULL,
    active INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    last_update_time INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
    stock_token TEXT NOT NULL,
    provider TEXT NOT NULL,
    shares TEXT NOT NULL,
    PRIMARY KEY (stock_token, provider)
);
CREATE TABLE IF NOT EXISTS price_points (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    stock_token TEXT NOT NULL,
    price TEXT NOT NULL,
    observed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_points_stock ON price_points(stock_token, id);
CREATE TABLE IF NOT EXISTS stats (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    pair_count INTEGER NOT NULL,
    total_volume_ngn TEXT NOT NULL,
    total_fees_ngn TEXT NOT NULL,
    total_liquidity TEXT NOT NULL
);
`

// Storage wraps the sqlite persistence layer. It satisfies amm.Store.
type Storage struct {
	db *sql.DB
}

// Open initialises the backing store at the supplied sqlite DSN.
func Open(path string) (*Storage, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SavePair upserts a pair's ledger row.
func (s *Storage) SavePair(ctx context.Context, pair *amm.TradingPair) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if pair == nil {
		return fmt.Errorf("pair required")
	}
	active := 0
	if pair.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO pairs(stock_token, pair_id, ngn_reserve, stock_reserve, total_liquidity,
                          fee_rate_bps, price_impact_limit_bps, active, created_at, last_update_time)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(stock_token) DO UPDATE SET
            ngn_reserve = excluded.ngn_reserve,
            stock_reserve = excluded.stock_reserve,
            total_liquidity = excluded.total_liquidity,
            fee_rate_bps = excluded.fee_rate_bps,
            price_impact_limit_bps = excluded.price_impact_limit_bps,
            active = excluded.active,
            last_update_time = excluded.last_update_time
    `, pair.StockToken.Hex(), pair.PairID, bigString(pair.NGNReserve), bigString(pair.StockReserve),
		bigString(pair.TotalLiquidity), pair.FeeRateBps, pair.PriceImpactLimitBps, active,
		pair.CreatedAt, pair.LastUpdateTime)
	if err != nil {
		return fmt.Errorf("upsert pair: %w", err)
	}
	return nil
}

// SavePosition upserts a provider's share balance; zero shares delete the row.
func (s *Storage) SavePosition(ctx context.Context, position *amm.LiquidityPosition) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if position == nil {
		return fmt.Errorf("position required")
	}
	if position.Shares == nil || position.Shares.Sign() == 0 {
		_, err := s.db.ExecContext(ctx, `
            DELETE FROM positions WHERE stock_token = ? AND provider = ?
        `, position.StockToken.Hex(), position.Provider.Hex())
		if err != nil {
			return fmt.Errorf("delete position: %w", err)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO positions(stock_token, provider, shares)
        VALUES(?, ?, ?)
        ON CONFLICT(stock_token, provider) DO UPDATE SET shares = excluded.shares
    `, position.StockToken.Hex(), position.Provider.Hex(), bigString(position.Shares))
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// AppendPricePoint records one swap's post-trade price.
func (s *Storage) AppendPricePoint(ctx context.Context, stockToken common.Address, point *amm.PricePoint) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if point == nil || point.Price == nil {
		return fmt.Errorf("price point required")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO price_points(stock_token, price, observed_at)
        VALUES(?, ?, ?)
    `, stockToken.Hex(), point.Price.String(), point.Timestamp)
	if err != nil {
		return fmt.Errorf("insert price point: %w", err)
	}
	return nil
}

// SaveStats upserts the single aggregate-stats row.
func (s *Storage) SaveStats(ctx context.Context, stats *amm.GlobalStats) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if stats == nil {
		return fmt.Errorf("stats required")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO stats(id, pair_count, total_volume_ngn, total_fees_ngn, total_liquidity)
        VALUES(1, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            pair_count = excluded.pair_count,
            total_volume_ngn = excluded.total_volume_ngn,
            total_fees_ngn = excluded.total_fees_ngn,
            total_liquidity = excluded.total_liquidity
    `, stats.PairCount, bigString(stats.TotalVolumeNGN), bigString(stats.TotalFeesNGN), bigString(stats.TotalLiquidity))
	if err != nil {
		return fmt.Errorf("upsert stats: %w", err)
	}
	return nil
}

// Restore replays persisted state into the engine, pairs first so positions
// and price points find their registry entries.
func (s *Storage) Restore(ctx context.Context, engine *amm.Engine) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if engine == nil {
		return fmt.Errorf("engine required")
	}
	pairs, err := s.loadPairs(ctx)
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		if err := engine.RestorePair(pair); err != nil {
			return fmt.Errorf("restore pair %s: %w", pair.StockToken.Hex(), err)
		}
	}
	if err := s.loadPositions(ctx, engine); err != nil {
		return err
	}
	if err := s.loadPricePoints(ctx, engine); err != nil {
		return err
	}
	stats, ok, err := s.loadStats(ctx)
	if err != nil {
		return err
	}
	if ok {
		engine.RestoreStats(stats)
	}
	return nil
}

func (s *Storage) loadPairs(ctx context.Context) ([]*amm.TradingPair, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT stock_token, pair_id, ngn_reserve, stock_reserve, total_liquidity,
               fee_rate_bps, price_impact_limit_bps, active, created_at, last_update_time
        FROM pairs
        ORDER BY created_at ASC, stock_token ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("query pairs: %w", err)
	}
	defer rows.Close()
	pairs := make([]*amm.TradingPair, 0)
	for rows.Next() {
		var (
			stockHex, pairID, ngn, stock, liquidity string
			feeBps, impactBps                       uint64
			active                                  int
			createdAt, lastUpdate                   int64
		)
		if err := rows.Scan(&stockHex, &pairID, &ngn, &stock, &liquidity, &feeBps, &impactBps, &active, &createdAt, &lastUpdate); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		ngnReserve, err := parseBig(ngn)
		if err != nil {
			return nil, fmt.Errorf("pair %s ngn reserve: %w", stockHex, err)
		}
		stockReserve, err := parseBig(stock)
		if err != nil {
			return nil, fmt.Errorf("pair %s stock reserve: %w", stockHex, err)
		}
		totalLiquidity, err := parseBig(liquidity)
		if err != nil {
			return nil, fmt.Errorf("pair %s liquidity: %w", stockHex, err)
		}
		pairs = append(pairs, &amm.TradingPair{
			PairID:              pairID,
			StockToken:          common.HexToAddress(stockHex),
			NGNReserve:          ngnReserve,
			StockReserve:        stockReserve,
			TotalLiquidity:      totalLiquidity,
			FeeRateBps:          feeBps,
			PriceImpactLimitBps: impactBps,
			Active:              active != 0,
			CreatedAt:           createdAt,
			LastUpdateTime:      lastUpdate,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pairs: %w", err)
	}
	return pairs, nil
}

func (s *Storage) loadPositions(ctx context.Context, engine *amm.Engine) error {
	rows, err := s.db.QueryContext(ctx, `
        SELECT stock_token, provider, shares FROM positions
    `)
	if err != nil {
		return fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var stockHex, providerHex, sharesStr string
		if err := rows.Scan(&stockHex, &providerHex, &sharesStr); err != nil {
			return fmt.Errorf("scan position: %w", err)
		}
		shares, err := parseBig(sharesStr)
		if err != nil {
			return fmt.Errorf("position %s/%s shares: %w", stockHex, providerHex, err)
		}
		position := &amm.LiquidityPosition{
			StockToken: common.HexToAddress(stockHex),
			Provider:   common.HexToAddress(providerHex),
			Shares:     shares,
		}
		if err := engine.RestorePosition(position); err != nil {
			return fmt.Errorf("restore position %s/%s: %w", stockHex, providerHex, err)
		}
	}
	return rows.Err()
}

func (s *Storage) loadPricePoints(ctx context.Context, engine *amm.Engine) error {
	rows, err := s.db.QueryContext(ctx, `
        SELECT stock_token, price, observed_at FROM price_points ORDER BY id ASC
    `)
	if err != nil {
		return fmt.Errorf("query price points: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var stockHex, priceStr string
		var observedAt int64
		if err := rows.Scan(&stockHex, &priceStr, &observedAt); err != nil {
			return fmt.Errorf("scan price point: %w", err)
		}
		price, err := parseBig(priceStr)
		if err != nil {
			return fmt.Errorf("price point %s: %w", stockHex, err)
		}
		point := &amm.PricePoint{Price: price, Timestamp: observedAt}
		if err := engine.RestorePricePoint(common.HexToAddress(stockHex), point); err != nil {
			return fmt.Errorf("restore price point %s: %w", stockHex, err)
		}
	}
	return rows.Err()
}

func (s *Storage) loadStats(ctx context.Context) (*amm.GlobalStats, bool, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT pair_count, total_volume_ngn, total_fees_ngn, total_liquidity FROM stats WHERE id = 1
    `)
	var (
		pairCount               uint64
		volume, fees, liquidity string
	)
	if err := row.Scan(&pairCount, &volume, &fees, &liquidity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query stats: %w", err)
	}
	totalVolume, err := parseBig(volume)
	if err != nil {
		return nil, false, fmt.Errorf("stats volume: %w", err)
	}
	totalFees, err := parseBig(fees)
	if err != nil {
		return nil, false, fmt.Errorf("stats fees: %w", err)
	}
	totalLiquidity, err := parseBig(liquidity)
	if err != nil {
		return nil, false, fmt.Errorf("stats liquidity: %w", err)
	}
	return &amm.GlobalStats{
		PairCount:      pairCount,
		TotalVolumeNGN: totalVolume,
		TotalFeesNGN:   totalFees,
		TotalLiquidity: totalLiquidity,
	}, true, nil
}

func bigString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func parseBig(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return parsed, nil
}
