// Package metrics exports solver activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chazu/ik/pkg/solver"
)

// SolveMetrics is a solver.Observer that records every solve.
type SolveMetrics struct {
	solves     *prometheus.CounterVec
	iterations *prometheus.HistogramVec
	duration   *prometheus.HistogramVec
	subtrees   *prometheus.GaugeVec
}

var _ solver.Observer = (*SolveMetrics)(nil)

// New creates the metrics and registers them on reg. A nil reg leaves them
// unregistered.
func New(reg prometheus.Registerer) *SolveMetrics {
	f := promauto.With(reg)
	return &SolveMetrics{
		solves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ik_solves_total",
			Help: "Solves by algorithm and terminal status",
		}, []string{"algorithm", "status"}),
		iterations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ik_solve_iterations",
			Help:    "Iterations used by the slowest subtree of a solve",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}, []string{"algorithm"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ik_solve_duration_seconds",
			Help:    "Wall time of a solve",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
		}, []string{"algorithm"}),
		subtrees: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ik_solve_subtrees",
			Help: "Subtrees solved by the last solve",
		}, []string{"algorithm"}),
	}
}

func (m *SolveMetrics) ObserveSolve(algorithm string, res solver.Result, took time.Duration) {
	m.solves.WithLabelValues(algorithm, res.Status.String()).Inc()
	m.iterations.WithLabelValues(algorithm).Observe(float64(res.Iterations))
	m.duration.WithLabelValues(algorithm).Observe(took.Seconds())
	m.subtrees.WithLabelValues(algorithm).Set(float64(len(res.Subtrees)))
}
