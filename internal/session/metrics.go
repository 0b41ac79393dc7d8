package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the session collectors. A nil *Metrics records nothing.
type Metrics struct {
	refreshes       *prometheus.CounterVec
	refreshJoins    prometheus.Counter
	refreshDuration prometheus.Histogram
	retries         prometheus.Counter
	unauthorized    prometheus.Counter
	events          *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendai",
			Subsystem: "session",
			Name:      "refresh_total",
			Help:      "Token refresh attempts that reached the backend, by outcome.",
		}, []string{"outcome"}),
		refreshJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendai",
			Subsystem: "session",
			Name:      "refresh_joined_total",
			Help:      "Callers that waited on a refresh already in flight.",
		}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "attendai",
			Subsystem: "session",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of token refresh calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendai",
			Subsystem: "gateway",
			Name:      "retries_total",
			Help:      "Requests re-sent once after a 401 and a refresh.",
		}),
		unauthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendai",
			Subsystem: "gateway",
			Name:      "unauthorized_total",
			Help:      "Requests that could not be authorized.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendai",
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Session lifecycle events, by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.refreshes, m.refreshJoins, m.refreshDuration, m.retries, m.unauthorized, m.events)
	return m
}

func (m *Metrics) refresh(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.refreshDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) joined() {
	if m != nil {
		m.refreshJoins.Inc()
	}
}

func (m *Metrics) retried() {
	if m != nil {
		m.retries.Inc()
	}
}

func (m *Metrics) rejected() {
	if m != nil {
		m.unauthorized.Inc()
	}
}

func (m *Metrics) event(t EventType) {
	if m != nil {
		m.events.WithLabelValues(string(t)).Inc()
	}
}
