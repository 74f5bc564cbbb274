package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for event shipping.
type Metrics struct {
	Emitted             prometheus.Counter
	Persisted           prometheus.Counter
	Dropped             *prometheus.CounterVec
	PersistFailures     prometheus.Counter
	CircuitBreakerState prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Emitted: f.NewCounter(prometheus.CounterOpts{
			Name: "immimate_audit_events_emitted_total",
			Help: "Total number of audit events handed to the publisher",
		}),
		Persisted: f.NewCounter(prometheus.CounterOpts{
			Name: "immimate_audit_events_persisted_total",
			Help: "Total number of audit events written to the sink",
		}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "immimate_audit_events_dropped_total",
			Help: "Total number of audit events dropped, by reason",
		}, []string{"reason"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "immimate_audit_persist_failures_total",
			Help: "Total number of failed sink writes",
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "immimate_audit_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) incEmitted() {
	if m != nil {
		m.Emitted.Inc()
	}
}

func (m *Metrics) addPersisted(n int) {
	if m != nil {
		m.Persisted.Add(float64(n))
	}
}

func (m *Metrics) addDropped(reason string, n int) {
	if m != nil {
		m.Dropped.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) incPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) setCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
