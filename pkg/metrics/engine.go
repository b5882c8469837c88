package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records order engine activity.
type EngineMetrics struct {
	transitions     *prometheus.CounterVec
	checkoutErrors  *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	lockContention  *prometheus.CounterVec
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Committed order status transitions by target status.",
	}, []string{"status"})
	checkoutErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_checkout_failures_total",
		Help: "Checkout precondition failures by reason.",
	}, []string{"reason"})
	processDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "order_process_duration_seconds",
		Help:    "Duration of order processing passes in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	lockContention := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_lock_contention_total",
		Help: "Lock acquisition attempts that found the lock held.",
	}, []string{"operation"})
	reg.MustRegister(transitions, checkoutErrors, processDuration, lockContention)
	return &EngineMetrics{
		transitions:     transitions,
		checkoutErrors:  checkoutErrors,
		processDuration: processDuration,
		lockContention:  lockContention,
	}
}

// IncTransition counts a committed transition into the given status.
func (m *EngineMetrics) IncTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncCheckoutFailure counts a failed checkout precondition.
func (m *EngineMetrics) IncCheckoutFailure(reason string) {
	if m == nil || m.checkoutErrors == nil {
		return
	}
	m.checkoutErrors.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveProcessDuration records the duration of one processing pass.
func (m *EngineMetrics) ObserveProcessDuration(operation string, duration time.Duration) {
	if m == nil || m.processDuration == nil {
		return
	}
	m.processDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncLockContention counts a lock attempt that found the lock held.
func (m *EngineMetrics) IncLockContention(operation string) {
	if m == nil || m.lockContention == nil {
		return
	}
	m.lockContention.WithLabelValues(normalizeLabel(operation)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
