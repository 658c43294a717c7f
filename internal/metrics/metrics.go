// Package metrics exposes the bot's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles all instruments registered on one registry.
type Metrics struct {
	CyclesTotal    prometheus.Counter
	CycleLatency   prometheus.Histogram
	OrdersTotal    *prometheus.CounterVec
	DecisionsTotal *prometheus.CounterVec
	ErrorsTotal    prometheus.Counter
	Equity         prometheus.Gauge
	DrawdownPct    prometheus.Gauge
	OpenPositions  prometheus.Gauge
}

// New registers the bot instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "candlebot_cycles_total",
			Help: "Completed trading cycles.",
		}),
		CycleLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "candlebot_cycle_latency_seconds",
			Help:    "Wall time of one trading cycle.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		OrdersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "candlebot_orders_total",
			Help: "Order dispatches by action and outcome.",
		}, []string{"action", "outcome"}),
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "candlebot_decisions_total",
			Help: "Persisted decisions by status.",
		}, []string{"status"}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "candlebot_errors_total",
			Help: "Cycle errors recorded.",
		}),
		Equity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "candlebot_equity",
			Help: "Account equity.",
		}),
		DrawdownPct: factory.NewGauge(prometheus.GaugeOpts{
			Name: "candlebot_drawdown_pct",
			Help: "Fractional drawdown from peak equity.",
		}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "candlebot_open_positions",
			Help: "Open bot positions.",
		}),
	}
}
