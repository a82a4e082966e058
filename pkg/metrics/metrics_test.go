package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/ik/pkg/solver"
	"github.com/chazu/ik/pkg/solver/fabrik"
	"github.com/chazu/ik/pkg/tree"
	"github.com/chazu/ik/pkg/vmath"
)

// counters flattens every counter and gauge in reg into "name{labels}"
// keys, and histograms into their sample counts.
func counters(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, l := range m.GetLabel() {
				key += "," + l.GetName() + "=" + l.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestObserveSolve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSolve("fabrik", solver.Result{Status: solver.Converged, Iterations: 3, Subtrees: make([]solver.Outcome, 2)}, time.Millisecond)
	m.ObserveSolve("fabrik", solver.Result{Status: solver.MaxIterationsReached, Iterations: 20, Subtrees: make([]solver.Outcome, 1)}, time.Millisecond)
	m.ObserveSolve("fabrik", solver.Result{Status: solver.Converged, Iterations: 1}, time.Millisecond)

	got := counters(t, reg)
	assert.Equal(t, 2.0, got["ik_solves_total,algorithm=fabrik,status=converged"])
	assert.Equal(t, 1.0, got["ik_solves_total,algorithm=fabrik,status=max-iterations-reached"])
	assert.Equal(t, 3.0, got["ik_solve_iterations,algorithm=fabrik"])
	assert.Equal(t, 3.0, got["ik_solve_duration_seconds,algorithm=fabrik"])
	assert.Equal(t, 0.0, got["ik_solve_subtrees,algorithm=fabrik"])
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
	assert.NotPanics(t, func() { New(nil) })
}

func TestSolverReportsToMetrics(t *testing.T) {
	root := tree.Create(tree.NewNodeID("root"))
	tip := root.CreateChild(tree.NewNodeID("tip"))
	tip.Position = vmath.Vec3{Y: 1}
	e := tree.NewEffector()
	e.TargetPosition = vmath.Vec3{X: 1}
	tip.AttachEffector(e)

	algos := solver.NewRegistry()
	require.NoError(t, fabrik.Register(algos))
	reg := prometheus.NewRegistry()
	s, err := solver.New(algos, root, fabrik.Name, solver.WithObserver(New(reg)))
	require.NoError(t, err)
	defer s.Close()

	res, err := s.Solve()
	require.NoError(t, err)

	got := counters(t, reg)
	assert.Equal(t, 1.0, got["ik_solves_total,algorithm=fabrik,status="+res.Status.String()])
	assert.Equal(t, 1.0, got["ik_solve_subtrees,algorithm=fabrik"])
}
