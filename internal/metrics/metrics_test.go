package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementSubmitted(true)
	m.IncrementSubmitted(true)
	m.IncrementSubmitted(false)
	m.IncrementFanout("completed")
	m.AddNotifications(3)
	m.IncrementTransition("blood_request", "completed")
	m.IncrementFraudFailOpen()
	m.ObserveFanout(20 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsSubmitted.WithLabelValues("suspicious")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsSubmitted.WithLabelValues("clean")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FanoutRuns.WithLabelValues("completed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.NotificationsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("blood_request", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FraudFailOpen))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementSubmitted(true)
		m.IncrementFanout("failed")
		m.AddNotifications(1)
		m.ObserveFanout(time.Second)
		m.IncrementTransition("donor_request", "accepted")
		m.IncrementFraudFailOpen()
	})
}
