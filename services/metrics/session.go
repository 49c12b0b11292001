package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/aits/core/session"
)

// SessionMetrics implements session.Observer.
type SessionMetrics struct {
	Refreshes       *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	Refreshing      prometheus.Gauge
	QueuedRequests  prometheus.Counter
}

var _ session.Observer = (*SessionMetrics)(nil)

func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refreshes_total",
			Help:      "Access token refreshes by result.",
		}, []string{"result"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of access token refreshes in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		Refreshing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refresh_in_flight",
			Help:      "1 while an access token refresh is in flight.",
		}),
		QueuedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "queued_requests_total",
			Help:      "Requests that waited on an in-flight refresh.",
		}),
	}
	reg.MustRegister(m.Refreshes, m.RefreshDuration, m.Refreshing, m.QueuedRequests)
	return m
}

func (m *SessionMetrics) RefreshStarted() {
	m.Refreshing.Set(1)
}

func (m *SessionMetrics) RefreshFinished(err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.Refreshes.WithLabelValues(result).Inc()
	m.RefreshDuration.Observe(elapsed.Seconds())
	m.Refreshing.Set(0)
}

func (m *SessionMetrics) RequestQueued() {
	m.QueuedRequests.Inc()
}
