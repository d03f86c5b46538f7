package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for request intake, fan-out and lifecycle.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Submitted requests by verdict
	RequestsSubmitted *prometheus.CounterVec

	// Fan-out passes by outcome: completed, skipped, failed
	FanoutRuns *prometheus.CounterVec

	NotificationsCreated prometheus.Counter

	FanoutDuration prometheus.Histogram

	// Status transitions by request kind and target status
	Transitions *prometheus.CounterVec

	// Fraud history lookups that failed open
	FraudFailOpen prometheus.Counter
}

// New registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smartblood_requests_submitted_total",
			Help: "Blood requests accepted for storage by fraud verdict",
		}, []string{"verdict"}), // verdict: "clean", "suspicious"

		FanoutRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smartblood_fanout_runs_total",
			Help: "Fan-out attempts by outcome",
		}, []string{"outcome"}),

		NotificationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "smartblood_notifications_created_total",
			Help: "Notifications written by fan-out and lifecycle transitions",
		}),

		FanoutDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartblood_fanout_duration_seconds",
			Help:    "Duration of a claimed fan-out pass",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smartblood_transitions_total",
			Help: "Applied status transitions by request kind and target status",
		}, []string{"kind", "status"}),

		FraudFailOpen: factory.NewCounter(prometheus.CounterOpts{
			Name: "smartblood_fraud_fail_open_total",
			Help: "Fraud classifications that skipped history because the store was unavailable",
		}),
	}
}

func (m *Metrics) IncrementSubmitted(suspicious bool) {
	if m == nil {
		return
	}
	verdict := "clean"
	if suspicious {
		verdict = "suspicious"
	}
	m.RequestsSubmitted.WithLabelValues(verdict).Inc()
}

func (m *Metrics) IncrementFanout(outcome string) {
	if m != nil {
		m.FanoutRuns.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) AddNotifications(n int) {
	if m != nil {
		m.NotificationsCreated.Add(float64(n))
	}
}

func (m *Metrics) ObserveFanout(d time.Duration) {
	if m != nil {
		m.FanoutDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementTransition(kind, status string) {
	if m != nil {
		m.Transitions.WithLabelValues(kind, status).Inc()
	}
}

func (m *Metrics) IncrementFraudFailOpen() {
	if m != nil {
		m.FraudFailOpen.Inc()
	}
}
