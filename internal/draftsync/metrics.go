package draftsync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for draft persistence. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Save attempts by outcome: saved, unchanged, inflight, spacing, failed, superseded
	Saves *prometheus.CounterVec

	// Loads by adopted source: local, remote, initial, shared
	Loads *prometheus.CounterVec

	// Remote calls by operation (fetch, push, discard) and outcome
	RemoteCalls *prometheus.CounterVec

	RemoteLatency *prometheus.HistogramVec

	// Local entries dropped on load: expired, malformed
	LocalEvictions *prometheus.CounterVec

	BreakerState prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Saves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "immimate_draft_saves_total",
			Help: "Draft save attempts by outcome",
		}, []string{"outcome"}),
		Loads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "immimate_draft_loads_total",
			Help: "Draft loads by adopted source",
		}, []string{"source"}),
		RemoteCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "immimate_draft_remote_calls_total",
			Help: "Remote draft calls by operation and outcome",
		}, []string{"op", "outcome"}),
		RemoteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "immimate_draft_remote_duration_seconds",
			Help:    "Remote draft call latency by operation",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op"}),
		LocalEvictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "immimate_draft_local_evictions_total",
			Help: "Local draft entries removed on load by reason",
		}, []string{"reason"}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "immimate_draft_breaker_state",
			Help: "Remote draft circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) incSave(outcome string) {
	if m != nil {
		m.Saves.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) incLoad(source string) {
	if m != nil {
		m.Loads.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) observeRemote(op, outcome string, d time.Duration) {
	if m != nil {
		m.RemoteCalls.WithLabelValues(op, outcome).Inc()
		m.RemoteLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}

func (m *Metrics) incEviction(reason string) {
	if m != nil {
		m.LocalEvictions.WithLabelValues(reason).Inc()
	}
}

// SetBreakerState is suitable as a Breaker state hook.
func (m *Metrics) SetBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
