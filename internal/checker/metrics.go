package checker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ralt/depcheck/internal/models"
)

const metricsNamespace = "depcheck"

// Metrics records checker activity. A nil *Metrics records nothing.
type Metrics struct {
	SolverCalls     *prometheus.CounterVec
	ShortCircuits   prometheus.Counter
	Problems        *prometheus.CounterVec
	CheckDuration   *prometheus.HistogramVec
	ManifestFetches prometheus.Counter
}

// NewMetrics creates the checker metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SolverCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "solver_invocations_total",
				Help:      "Solver invocations by goal mode",
			},
			[]string{"mode"},
		),
		ShortCircuits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "short_circuits_total",
			Help:      "Requirements reported unsatisfied without consulting the solver",
		}),
		Problems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "problems_total",
				Help:      "Problems reported by kind",
			},
			[]string{"kind"},
		),
		CheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "check_duration_seconds",
				Help:      "Wall time of each check",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"check"},
		),
		ManifestFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "manifest_fetches_total",
			Help:      "Package headers fetched to learn file digests",
		}),
	}
	reg.MustRegister(m.SolverCalls, m.ShortCircuits, m.Problems, m.CheckDuration, m.ManifestFetches)
	return m
}

func (m *Metrics) solverCall(mode string) {
	if m != nil {
		m.SolverCalls.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) shortCircuit() {
	if m != nil {
		m.ShortCircuits.Inc()
	}
}

func (m *Metrics) manifestFetch() {
	if m != nil {
		m.ManifestFetches.Inc()
	}
}

func (m *Metrics) observeCheck(name Name, d time.Duration) {
	if m != nil {
		m.CheckDuration.WithLabelValues(string(name)).Observe(d.Seconds())
	}
}

func (m *Metrics) countProblems(problems []models.Problem) {
	if m == nil {
		return
	}
	for _, p := range problems {
		m.Problems.WithLabelValues(p.Kind.String()).Inc()
	}
}
