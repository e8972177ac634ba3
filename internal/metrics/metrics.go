// Package metrics exposes Prometheus instruments for the station engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const namespace = "station_engine"

// Metrics groups every instrument.
type Metrics struct {
	operations       *prometheus.CounterVec
	operationSeconds *prometheus.HistogramVec
	settlements      *prometheus.CounterVec
	revenue          *prometheus.CounterVec
	storageConflicts *prometheus.CounterVec
	expiredStations  prometheus.Gauge
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Service operations by outcome kind",
			},
			[]string{"operation", "outcome"},
		),
		operationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Service operation latency",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"operation"},
		),
		settlements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlements_total",
				Help:      "Bills created by kind and payment method",
			},
			[]string{"kind", "payment_method"},
		),
		revenue: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "billed_amount_total",
				Help:      "Sum of bill totals in rupees",
			},
			[]string{"payment_method"},
		),
		storageConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_conflicts_total",
				Help:      "Optimistic write conflicts that triggered a retry",
			},
			[]string{"entity"},
		),
		expiredStations: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "expired_stations",
				Help:      "In-use stations whose timers have all run out, as of the last sweep",
			},
		),
	}
}

// ObserveOperation records one service call. outcome is "ok" or an error
// kind label.
func (m *Metrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.operationSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Settled records a created bill.
func (m *Metrics) Settled(kind, paymentMethod string, total decimal.Decimal) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(kind, paymentMethod).Inc()
	amount, _ := total.Float64()
	m.revenue.WithLabelValues(paymentMethod).Add(amount)
}

// Conflict records a retried optimistic write on entity.
func (m *Metrics) Conflict(entity string) {
	if m == nil {
		return
	}
	m.storageConflicts.WithLabelValues(entity).Inc()
}

// SetExpiredStations records the result of an expiry sweep.
func (m *Metrics) SetExpiredStations(n int) {
	if m == nil {
		return
	}
	m.expiredStations.Set(float64(n))
}
