package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marketcore"

// CoreMetrics records order, stock and payout outcomes. A nil *CoreMetrics
// is valid and records nothing.
type CoreMetrics struct {
	ordersCreated       *prometheus.CounterVec
	transitions         *prometheus.CounterVec
	reservationFailures *prometheus.CounterVec
	payouts             *prometheus.CounterVec
	duration            *prometheus.HistogramVec
}

// NewCoreMetrics registers the core metrics on the provided registerer.
func NewCoreMetrics(reg prometheus.Registerer) *CoreMetrics {
	if reg == nil {
		return &CoreMetrics{}
	}
	ordersCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_created_total",
		Help:      "Order creation requests by outcome (created, duplicate).",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Accepted order status transitions.",
	}, []string{"from", "to"})
	reservationFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reservation_failures_total",
		Help:      "Stock reservations rejected, by reason.",
	}, []string{"reason"})
	payouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payout_requests_total",
		Help:      "Vendor payout requests by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Duration of core operations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(ordersCreated, transitions, reservationFailures, payouts, duration)
	return &CoreMetrics{
		ordersCreated:       ordersCreated,
		transitions:         transitions,
		reservationFailures: reservationFailures,
		payouts:             payouts,
		duration:            duration,
	}
}

// IncOrderCreated counts a create request that produced or replayed an order.
func (m *CoreMetrics) IncOrderCreated(outcome string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTransition counts an accepted status change.
func (m *CoreMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncReservationFailure counts a rejected stock reservation.
func (m *CoreMetrics) IncReservationFailure(reason string) {
	if m == nil || m.reservationFailures == nil {
		return
	}
	m.reservationFailures.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncPayout counts a payout request outcome.
func (m *CoreMetrics) IncPayout(outcome string) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveDuration records how long the named operation took.
func (m *CoreMetrics) ObserveDuration(operation string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(d.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
