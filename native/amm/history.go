package amm

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"math/big"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// priceLog is a per-pair append-only sequence of observed prices, oldest
// first. A positive limit prunes the oldest entries; zero keeps everything,
// matching the original unbounded-growth behaviour.
type priceLog struct {
	points []*PricePoint
	limit  int
}

func newPriceLog(limit int) *priceLog {
	if limit < 0 {
		limit = 0
	}
	return &priceLog{limit: limit}
}

func (l *priceLog) append(point *PricePoint) {
	l.points = append(l.points, point)
	if l.limit > 0 && len(l.points) > l.limit {
		overflow := len(l.points) - l.limit
		l.points = append(l.points[:0:0], l.points[overflow:]...)
	}
}

func (l *priceLog) snapshot() []*PricePoint {
	out := make([]*PricePoint, 0, len(l.points))
	for _, point := range l.points {
		out = append(out, point.Clone())
	}
	return out
}

// statsTracker guards the cross-pair aggregates behind its own lock so swaps
// on different pairs can commit concurrently.
type statsTracker struct {
	mu    sync.Mutex
	stats GlobalStats
}

func newStatsTracker() *statsTracker {
	return &statsTracker{stats: GlobalStats{
		TotalVolumeNGN: big.NewInt(0),
		TotalFeesNGN:   big.NewInt(0),
		TotalLiquidity: big.NewInt(0),
	}}
}

func (t *statsTracker) recordPairCreated(liquidity *big.Int) *GlobalStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.PairCount++
	t.stats.TotalLiquidity.Add(t.stats.TotalLiquidity, liquidity)
	return t.stats.Clone()
}

func (t *statsTracker) recordLiquidityDelta(delta *big.Int) *GlobalStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.TotalLiquidity.Add(t.stats.TotalLiquidity, delta)
	return t.stats.Clone()
}

func (t *statsTracker) recordSwap(volumeNGN, feeNGN *big.Int) *GlobalStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.TotalVolumeNGN.Add(t.stats.TotalVolumeNGN, volumeNGN)
	t.stats.TotalFeesNGN.Add(t.stats.TotalFeesNGN, feeNGN)
	return t.stats.Clone()
}

func (t *statsTracker) snapshot() *GlobalStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats.Clone()
}

func (t *statsTracker) restore(stats *GlobalStats) {
	if stats == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = *stats.Clone()
}

// Stats returns the aggregate counters across all pairs.
func (e *Engine) Stats() (*GlobalStats, error) {
	if e == nil {
		return nil, errNilEngine
	}
	return e.stats.snapshot(), nil
}

// PriceHistory returns the pair's recorded prices, oldest first.
func (e *Engine) PriceHistory(stockToken common.Address) ([]*PricePoint, error) {
	ps, err := e.pairFor(stockToken)
	if err != nil {
		return nil, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.history.snapshot(), nil
}

// ExportPriceHistoryCSV renders the pair's price log within the inclusive
// timestamp window as a base64 encoded CSV, returning the row count alongside.
// Zero bounds are open-ended.
func (e *Engine) ExportPriceHistoryCSV(stockToken common.Address, startTs, endTs int64) (string, int, error) {
	points, err := e.PriceHistory(stockToken)
	if err != nil {
		return "", 0, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"timestamp", "price"}); err != nil {
		return "", 0, err
	}
	rows := 0
	for _, point := range points {
		if startTs != 0 && point.Timestamp < startTs {
			continue
		}
		if endTs != 0 && point.Timestamp > endTs {
			continue
		}
		row := []string{strconv.FormatInt(point.Timestamp, 10), point.Price.String()}
		if err := writer.Write(row); err != nil {
			return "", 0, err
		}
		rows++
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", 0, err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), rows, nil
}
