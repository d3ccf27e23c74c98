// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Tick metrics
	TicksTotal       *prometheus.CounterVec
	TickDuration     prometheus.Histogram
	PairsEvaluated   prometheus.Counter
	SignalsEmitted   *prometheus.CounterVec
	Decisions        *prometheus.CounterVec
	TickLockContended prometheus.Counter

	// Lifecycle metrics
	TradeExits   *prometheus.CounterVec
	StopsUpdated prometheus.Counter
	OpenTrades   prometheus.Gauge

	// Market data metrics
	CandleFetchDuration prometheus.Histogram
	CandleFetchErrors   prometheus.Counter
	QuoteReconnects     prometheus.Counter

	// Broker metrics
	OrdersPlaced *prometheus.CounterVec
	OrderErrors  prometheus.Counter

	// Health metrics
	LastSuccessfulTick prometheus.Gauge
	ConfigVersion      prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trade_autopilot"
	}

	return &Metrics{
		TicksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tick",
			Name:      "runs_total",
			Help:      "Total number of tick runs by status",
		}, []string{"status", "dry_run"}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tick",
			Name:      "duration_seconds",
			Help:      "Tick execution duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		PairsEvaluated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tick",
			Name:      "pairs_evaluated_total",
			Help:      "Total number of symbol/strategy pairs evaluated",
		}),
		SignalsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tick",
			Name:      "signals_emitted_total",
			Help:      "Total number of actionable signals emitted by strategy",
		}, []string{"strategy"}),
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tick",
			Name:      "decisions_total",
			Help:      "Total number of admission decisions by outcome",
		}, []string{"decision"}),
		TickLockContended: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tick",
			Name:      "lock_contended_total",
			Help:      "Total number of tick requests rejected because a tick was running",
		}),

		TradeExits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "trade_exits_total",
			Help:      "Total number of trade exits by reason",
		}, []string{"reason"}),
		StopsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "stops_updated_total",
			Help:      "Total number of trailing stop updates",
		}),
		OpenTrades: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "open_trades",
			Help:      "Current number of ACTIVE tracked trades",
		}),

		CandleFetchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "candle_fetch_duration_seconds",
			Help:      "Candle fetch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CandleFetchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "candle_fetch_errors_total",
			Help:      "Total number of failed candle fetches",
		}),
		QuoteReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "quote_reconnects_total",
			Help:      "Total number of quote stream reconnects",
		}),

		OrdersPlaced: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "orders_placed_total",
			Help:      "Total number of orders placed by action",
		}, []string{"action"}),
		OrderErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "order_errors_total",
			Help:      "Total number of failed order placements",
		}),

		LastSuccessfulTick: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of the last successful tick",
		}),
		ConfigVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "config_version",
			Help:      "Version of the automation config currently in effect",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")
