package amm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"math/big"
	"testing"
	"time"
)

func TestPriceLogRetention(t *testing.T) {
	log := newPriceLog(2)
	for i := int64(1); i <= 4; i++ {
		log.append(&PricePoint{Price: big.NewInt(i), Timestamp: i})
	}
	points := log.snapshot()
	if len(points) != 2 {
		t.Fatalf("expected 2 retained points, got %d", len(points))
	}
	if points[0].Timestamp != 3 || points[1].Timestamp != 4 {
		t.Fatalf("expected oldest entries pruned, got %d/%d", points[0].Timestamp, points[1].Timestamp)
	}
}

func TestPriceLogUnboundedByDefault(t *testing.T) {
	log := newPriceLog(0)
	for i := int64(0); i < 100; i++ {
		log.append(&PricePoint{Price: big.NewInt(1), Timestamp: i})
	}
	if got := len(log.snapshot()); got != 100 {
		t.Fatalf("zero limit must retain everything, got %d", got)
	}
}

func TestPriceLogSnapshotIsDeepCopy(t *testing.T) {
	log := newPriceLog(0)
	log.append(&PricePoint{Price: big.NewInt(7), Timestamp: 1})
	snap := log.snapshot()
	snap[0].Price.SetInt64(99)
	if log.points[0].Price.Int64() != 7 {
		t.Fatal("mutating a snapshot must not reach the log")
	}
}

func TestEngineHistoryLimitAppliesToNewPairs(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	engine.SetHistoryLimit(2)
	createStandardPair(t, engine)

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		if _, err := engine.SwapNGNForStock(context.Background(), bob, testStock, wei(100), nil, futureDeadline(clock)); err != nil {
			t.Fatalf("swap %d: %v", i, err)
		}
	}
	history, err := engine.PriceHistory(testStock)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected retention cap of 2, got %d", len(history))
	}
	if history[0].Timestamp >= history[1].Timestamp {
		t.Fatal("history must stay oldest first")
	}
}

func TestExportPriceHistoryCSV(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	createStandardPair(t, engine)

	timestamps := make([]int64, 0, 3)
	for i := 0; i < 3; i++ {
		clock.Advance(time.Minute)
		timestamps = append(timestamps, clock.Now().UTC().Unix())
		if _, err := engine.SwapNGNForStock(context.Background(), bob, testStock, wei(100), nil, futureDeadline(clock)); err != nil {
			t.Fatalf("swap %d: %v", i, err)
		}
	}

	encoded, rows, err := engine.ExportPriceHistoryCSV(testStock, timestamps[1], 0)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if rows != 2 {
		t.Fatalf("expected 2 rows inside the window, got %d", rows)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if records[0][0] != "timestamp" || records[0][1] != "price" {
		t.Fatalf("unexpected header %v", records[0])
	}
}

func TestStatsTrackerAggregation(t *testing.T) {
	tracker := newStatsTracker()
	tracker.recordPairCreated(big.NewInt(100))
	tracker.recordLiquidityDelta(big.NewInt(50))
	tracker.recordSwap(big.NewInt(1000), big.NewInt(3))
	tracker.recordSwap(big.NewInt(500), big.NewInt(2))

	stats := tracker.snapshot()
	if stats.PairCount != 1 {
		t.Fatalf("pair count %d", stats.PairCount)
	}
	if stats.TotalLiquidity.Int64() != 150 {
		t.Fatalf("total liquidity %s", stats.TotalLiquidity)
	}
	if stats.TotalVolumeNGN.Int64() != 1500 {
		t.Fatalf("total volume %s", stats.TotalVolumeNGN)
	}
	if stats.TotalFeesNGN.Int64() != 5 {
		t.Fatalf("total fees %s", stats.TotalFeesNGN)
	}

	// Snapshots are isolated from the live counters.
	stats.TotalVolumeNGN.SetInt64(0)
	if tracker.snapshot().TotalVolumeNGN.Int64() != 1500 {
		t.Fatal("mutating a snapshot must not reach the tracker")
	}
}

func TestStatsTrackerRestore(t *testing.T) {
	tracker := newStatsTracker()
	tracker.restore(&GlobalStats{
		PairCount:      3,
		TotalVolumeNGN: big.NewInt(42),
		TotalFeesNGN:   big.NewInt(7),
		TotalLiquidity: big.NewInt(9),
	})
	stats := tracker.snapshot()
	if stats.PairCount != 3 || stats.TotalVolumeNGN.Int64() != 42 || stats.TotalFeesNGN.Int64() != 7 || stats.TotalLiquidity.Int64() != 9 {
		t.Fatalf("restore mismatch: %+v", stats)
	}
	tracker.restore(nil)
	if tracker.snapshot().PairCount != 3 {
		t.Fatal("nil restore must be a no-op")
	}
}
