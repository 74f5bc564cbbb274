package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for score conversion.
type Metrics struct {
	// Conversions by test type and outcome (hit, miss, invalid)
	Conversions *prometheus.CounterVec

	// Table loads by outcome (ok, error, invalid)
	TableLoads *prometheus.CounterVec

	TableLoadLatency prometheus.Histogram
}

// New registers the conversion metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "immimate_clb_conversions_total",
			Help: "Score to CLB conversions by test type and outcome",
		}, []string{"test_type", "outcome"}),

		TableLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "immimate_clb_table_loads_total",
			Help: "Conversion table loads by outcome",
		}, []string{"outcome"}),

		TableLoadLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "immimate_clb_table_load_duration_seconds",
			Help:    "Duration of conversion table loads, including cache hits",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementConversion(testType, outcome string) {
	if m != nil {
		m.Conversions.WithLabelValues(testType, outcome).Inc()
	}
}

func (m *Metrics) IncrementTableLoad(outcome string) {
	if m != nil {
		m.TableLoads.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveTableLoad(d time.Duration) {
	if m != nil {
		m.TableLoadLatency.Observe(d.Seconds())
	}
}
