package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsSubsystem = "engine"

// Metrics contains the engine's Prometheus collectors.
type Metrics struct {
	// Orders accepted, by side and type.
	OrdersPlaced *prometheus.CounterVec
	// Orders refused before matching, by reason.
	OrdersRejected *prometheus.CounterVec
	// Executions produced by the matching pass.
	Trades prometheus.Counter
	// Wall time of one PlaceOrder critical section.
	MatchSeconds prometheus.Histogram
	// Distinct price levels per side after the last mutation.
	BookLevels *prometheus.GaugeVec
	// Trades the recorder failed to persist.
	RecordFailures prometheus.Counter
}

// NewMetrics builds the collectors and registers them with reg when it
// is non-nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "orders_placed_total",
			Help:      "Orders accepted by the matching engine.",
		}, []string{"side", "type"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "orders_rejected_total",
			Help:      "Orders refused before any state change.",
		}, []string{"reason"}),
		Trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "trades_total",
			Help:      "Executions between an incoming and a resting order.",
		}),
		MatchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "match_duration_seconds",
			Help:      "Time spent inside one PlaceOrder call.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		BookLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "book_levels",
			Help:      "Distinct price levels resting on each side.",
		}, []string{"side"}),
		RecordFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "trade_record_failures_total",
			Help:      "Trades that could not be handed to the outbox.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.OrdersPlaced,
			m.OrdersRejected,
			m.Trades,
			m.MatchSeconds,
			m.BookLevels,
			m.RecordFailures,
		)
	}
	return m
}

// NopMetrics returns collectors that are never registered.
func NopMetrics() *Metrics {
	return NewMetrics("", nil)
}
