package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DEXMetrics records trading-engine activity for Prometheus scraping.
type DEXMetrics struct {
	swaps           *prometheus.CounterVec
	swapLatency     *prometheus.HistogramVec
	liquidityEvents *prometheus.CounterVec
	volumeNGN       prometheus.Counter
	feesNGN         prometheus.Counter
}

var (
	dexMetricsOnce sync.Once
	dexRegistry    *DEXMetrics
)

// DEX returns the lazily-initialised metrics registry for the trading engine.
func DEX() *DEXMetrics {
	dexMetricsOnce.Do(func() {
		dexRegistry = &DEXMetrics{
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ngndex",
				Subsystem: "amm",
				Name:      "swaps_total",
				Help:      "Total swap attempts segmented by stock token, direction, and outcome.",
			}, []string{"stock", "direction", "outcome"}),
			swapLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ngndex",
				Subsystem: "amm",
				Name:      "swap_duration_seconds",
				Help:      "Latency distribution for swap execution.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"direction"}),
			liquidityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ngndex",
				Subsystem: "amm",
				Name:      "liquidity_events_total",
				Help:      "Pair creations, deposits, and withdrawals segmented by stock token.",
			}, []string{"stock", "kind"}),
			volumeNGN: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ngndex",
				Subsystem: "amm",
				Name:      "volume_ngn_wei_total",
				Help:      "Cumulative swap volume on the NGN leg, in wei.",
			}),
			feesNGN: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ngndex",
				Subsystem: "amm",
				Name:      "fees_ngn_wei_total",
				Help:      "Cumulative fees retained by pools, NGN-denominated, in wei.",
			}),
		}
		prometheus.MustRegister(
			dexRegistry.swaps,
			dexRegistry.swapLatency,
			dexRegistry.liquidityEvents,
			dexRegistry.volumeNGN,
			dexRegistry.feesNGN,
		)
	})
	return dexRegistry
}

// RecordSwap increments the swap counter and observes execution latency.
func (m *DEXMetrics) RecordSwap(stock, direction, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.swaps.WithLabelValues(normalizeLabel(stock), normalizeLabel(direction), normalizeLabel(outcome)).Inc()
	m.swapLatency.WithLabelValues(normalizeLabel(direction)).Observe(duration.Seconds())
}

// RecordLiquidityEvent counts a pair creation, deposit, or withdrawal.
func (m *DEXMetrics) RecordLiquidityEvent(stock, kind string) {
	if m == nil {
		return
	}
	m.liquidityEvents.WithLabelValues(normalizeLabel(stock), normalizeLabel(kind)).Inc()
}

// ObserveVolume adds a settled swap's NGN volume and fee to the counters.
func (m *DEXMetrics) ObserveVolume(volumeNGN, feeNGN *big.Int) {
	if m == nil {
		return
	}
	if v := bigToFloat(volumeNGN); v > 0 {
		m.volumeNGN.Add(v)
	}
	if v := bigToFloat(feeNGN); v > 0 {
		m.feesNGN.Add(v)
	}
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
