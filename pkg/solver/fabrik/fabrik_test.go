package fabrik

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/ik/pkg/solver"
	"github.com/chazu/ik/pkg/transform"
	"github.com/chazu/ik/pkg/tree"
	"github.com/chazu/ik/pkg/vmath"
)

// chain returns a straight chain of unit segments along +Y.
func chain(segments int) []*tree.Node {
	n := make([]*tree.Node, segments+1)
	n[0] = tree.Create(tree.NewNodeID("base"))
	for i := 1; i <= segments; i++ {
		n[i] = n[i-1].CreateChild(tree.NewNodeID(fmt.Sprintf("seg%d", i)))
		n[i].Position = vmath.Vec3{Y: 1}
	}
	return n
}

func aim(n *tree.Node, target vmath.Vec3) *tree.Effector {
	e := tree.NewEffector()
	e.TargetPosition = target
	n.AttachEffector(e)
	return e
}

func newSolver(t *testing.T, root *tree.Node, cfg solver.Config) *solver.Solver {
	t.Helper()
	r := solver.NewRegistry()
	require.NoError(t, Register(r))
	s, err := solver.New(r, root, Name,
		solver.WithConfig(cfg),
		solver.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func generous() solver.Config {
	cfg := solver.DefaultConfig()
	cfg.MaxIterations = 200
	return cfg
}

func assertSegmentLengths(t *testing.T, nodes []*tree.Node, want float64) {
	t.Helper()
	poses := transform.GlobalPoses(nodes[0])
	for _, n := range nodes[1:] {
		got := poses[n].Position.Distance(poses[n.Parent()].Position)
		assert.InDelta(t, want, got, 1e-9, "segment to %s", n.ID.Short())
	}
}

func TestRegister(t *testing.T) {
	r := solver.NewRegistry()
	require.NoError(t, Register(r))
	assert.Equal(t, []string{"fabrik"}, r.Names())
	assert.Error(t, Register(r))
}

func TestReachableChainConverges(t *testing.T) {
	targets := []vmath.Vec3{
		{X: 1.5, Y: 2, Z: 1},
		{X: 0.5, Y: 3, Z: 0},
		{X: -2, Y: 0.5, Z: 1},
		{X: 0.3, Y: -1, Z: 2},
		{X: 2, Y: 2, Z: 2},
	}
	for _, target := range targets {
		t.Run(fmt.Sprint(target), func(t *testing.T) {
			n := chain(4)
			aim(n[4], target)
			s := newSolver(t, n[0], generous())

			res, err := s.Solve()
			require.NoError(t, err)
			assert.Equal(t, solver.Converged, res.Status)
			assert.Positive(t, res.Iterations)

			tip := transform.GlobalPoses(n[0])[n[4]].Position
			assert.LessOrEqual(t, tip.Distance(target), s.Config().Tolerance)
			assertSegmentLengths(t, n, 1)
			assert.Equal(t, vmath.Zero, n[0].Position, "base stays put")
		})
	}
}

func TestTargetOnChainLineConverges(t *testing.T) {
	// Each target lies on the line of the straight chain, ahead of the
	// tip, between base and tip, or behind the base.
	targets := []vmath.Vec3{
		{Y: 3.5},
		{Y: 0.5},
		{Y: -2.5},
		{Y: -3.9},
		{},
	}
	for _, target := range targets {
		t.Run(fmt.Sprint(target), func(t *testing.T) {
			n := chain(4)
			aim(n[4], target)
			s := newSolver(t, n[0], solver.DefaultConfig())

			res, err := s.Solve()
			require.NoError(t, err)
			assert.Equal(t, solver.Converged, res.Status)

			tip := transform.GlobalPoses(n[0])[n[4]].Position
			assert.LessOrEqual(t, tip.Distance(target), s.Config().Tolerance)
			assertSegmentLengths(t, n, 1)
		})
	}
}

func TestNearFullReachWithDefaults(t *testing.T) {
	targets := []vmath.Vec3{
		{X: 2.8, Y: 2.8},
		{Z: 3.99},
		{Y: -3.95, Z: 0.3},
	}
	for _, target := range targets {
		t.Run(fmt.Sprint(target), func(t *testing.T) {
			n := chain(4)
			aim(n[4], target)
			s := newSolver(t, n[0], solver.DefaultConfig())

			res, err := s.Solve()
			require.NoError(t, err)
			assert.Equal(t, solver.Converged, res.Status)
			assert.LessOrEqual(t, res.Iterations, 2)

			tip := transform.GlobalPoses(n[0])[n[4]].Position
			assert.LessOrEqual(t, tip.Distance(target), s.Config().Tolerance)
			assertSegmentLengths(t, n, 1)
		})
	}
}

// stairs returns a four-segment chain bent at right angles in the XY plane.
func stairs() []*tree.Node {
	n := chain(4)
	n[2].Position = vmath.Vec3{X: 1}
	n[4].Position = vmath.Vec3{X: 1}
	return n
}

func TestBentChainNearFullReach(t *testing.T) {
	// 99% of the reach: too slow for the default budget, fine with more.
	target := vmath.Vec3{Z: 3.96}

	n := stairs()
	aim(n[4], target)
	s := newSolver(t, n[0], solver.DefaultConfig())
	res, err := s.Solve()
	require.NoError(t, err)
	assert.Equal(t, solver.MaxIterationsReached, res.Status)
	assert.Equal(t, 20, res.Iterations)
	tip := transform.GlobalPoses(n[0])[n[4]].Position
	assert.Less(t, tip.Distance(target), 0.05)

	n = stairs()
	aim(n[4], target)
	cfg := solver.DefaultConfig()
	cfg.MaxIterations = 100
	s = newSolver(t, n[0], cfg)
	res, err = s.Solve()
	require.NoError(t, err)
	assert.Equal(t, solver.Converged, res.Status)
	assert.Greater(t, res.Iterations, 20)
	tip = transform.GlobalPoses(n[0])[n[4]].Position
	assert.LessOrEqual(t, tip.Distance(target), cfg.Tolerance)
	assertSegmentLengths(t, n, 1)
}

func TestUnreachableChainExtends(t *testing.T) {
	n := chain(4)
	target := vmath.Vec3{X: 6, Y: 6}
	aim(n[4], target)
	s := newSolver(t, n[0], solver.DefaultConfig())

	res, err := s.Solve()
	require.NoError(t, err)
	assert.Equal(t, solver.MaxIterationsReached, res.Status)
	assert.Equal(t, 1, res.Iterations, "laid straight without iterating")

	dir := target.Normalize()
	poses := transform.GlobalPoses(n[0])
	for i, node := range n {
		want := dir.MulScalar(float64(i))
		assert.InDelta(t, 0, want.Distance(poses[node].Position), 1e-9, "node %d", i)
	}
	assertSegmentLengths(t, n, 1)
}

func TestUnreachableConstrainedChainExtends(t *testing.T) {
	n := chain(4)
	target := vmath.Vec3{X: 6, Y: 6}
	aim(n[4], target)
	// A cone that allows everything still rules out the straight-line
	// shortcut, so this exercises the iterations.
	n[2].AttachConstraint(tree.NewConeConstraint(math.Pi))
	s := newSolver(t, n[0], generous())

	res, err := s.Solve()
	require.NoError(t, err)
	assert.Equal(t, solver.MaxIterationsReached, res.Status)
	assert.Equal(t, 200, res.Iterations)
	assertSegmentLengths(t, n, 1)

	tip := transform.GlobalPoses(n[0])[n[4]].Position
	assert.InDelta(t, target.Length()-4, tip.Distance(target), 1e-3)
}

func TestZeroSegmentSnaps(t *testing.T) {
	root := tree.Create(tree.NewNodeID("lonely"))
	e := aim(root, vmath.Vec3{X: 3, Y: 4, Z: 5})
	e.TargetRotation = vmath.QuatFromAxisAngle(vmath.Vec3{Z: 1}, 0.7)
	e.RotationWeight = 1
	s := newSolver(t, root, solver.DefaultConfig())

	res, err := s.Solve()
	require.NoError(t, err)
	assert.Equal(t, solver.Converged, res.Status)
	assert.Equal(t, vmath.Vec3{X: 3, Y: 4, Z: 5}, root.Position)
	assert.InDelta(t, 1, math.Abs(root.Rotation.Dot(e.TargetRotation)), 1e-12)

	var visited int
	s.IterateNodes(func(p vmath.Vec3, _ vmath.Quat) {
		visited++
		assert.Equal(t, root.Position, p)
	})
	assert.Equal(t, 1, visited)
}

func TestAlreadyAtTarget(t *testing.T) {
	n := chain(3)
	aim(n[3], vmath.Vec3{Y: 3})
	s := newSolver(t, n[0], solver.DefaultConfig())

	res, err := s.Solve()
	require.NoError(t, err)
	assert.Equal(t, solver.Converged, res.Status)
	assert.Zero(t, res.Iterations)
	for _, node := range n[1:] {
		assert.InDelta(t, 0, node.Position.Distance(vmath.Vec3{Y: 1}), 1e-12)
	}
}

func TestEffectorWeight(t *testing.T) {
	n := chain(4)
	e := aim(n[4], vmath.Vec3{X: 2, Y: 2})
	e.Weight = 0.5
	s := newSolver(t, n[0], generous())

	res, err := s.Solve()
	require.NoError(t, err)
	assert.Equal(t, solver.Converged, res.Status)
	tip := transform.GlobalPoses(n[0])[n[4]].Position
	assert.LessOrEqual(t, tip.Distance(vmath.Vec3{X: 1, Y: 3}), 1e-3)
}

func TestJointRotationsFollowSegments(t *testing.T) {
	n := chain(4)
	aim(n[4], vmath.Vec3{X: 1.5, Y: 2, Z: 1})
	s := newSolver(t, n[0], generous())

	_, err := s.Solve()
	require.NoError(t, err)

	// Each node turned with its segment, so every local offset is back to
	// pointing straight along +Y.
	for i, node := range n[1:] {
		assert.InDelta(t, 0, node.Position.Distance(vmath.Vec3{Y: 1}), 1e-9, "node %d", i+1)
	}
	// The tip turned with its parent.
	assert.InDelta(t, 1, math.Abs(n[4].Rotation.Dot(vmath.IdentityQuat)), 1e-9)
}

func TestWithoutJointRotations(t *testing.T) {
	n := chain(4)
	aim(n[4], vmath.Vec3{X: 1.5, Y: 2, Z: 1})
	cfg := generous()
	cfg.Flags = solver.FlagConstraints
	s := newSolver(t, n[0], cfg)

	_, err := s.Solve()
	require.NoError(t, err)
	for _, node := range n {
		assert.Equal(t, vmath.IdentityQuat, node.Rotation)
	}
}

func TestTargetRotation(t *testing.T) {
	n := chain(3)
	e := aim(n[3], vmath.Vec3{X: 1, Y: 2})
	e.TargetRotation = vmath.QuatFromAxisAngle(vmath.Vec3{X: 1, Y: 1}, 1.2)
	e.RotationWeight = 1
	s := newSolver(t, n[0], generous())

	_, err := s.Solve()
	require.NoError(t, err)
	got := transform.GlobalPoses(n[0])[n[3]].Rotation
	assert.InDelta(t, 1, math.Abs(got.Dot(e.TargetRotation)), 1e-9)
}

// fork builds a symmetric Y: a stem n0-n1-n2 with arms n3-n4 and n5-n6.
func fork() []*tree.Node {
	n := make([]*tree.Node, 7)
	n[0] = tree.Create(tree.NewNodeID("n0"))
	n[1] = n[0].CreateChild(tree.NewNodeID("n1"))
	n[2] = n[1].CreateChild(tree.NewNodeID("n2"))
	n[3] = n[2].CreateChild(tree.NewNodeID("n3"))
	n[4] = n[3].CreateChild(tree.NewNodeID("n4"))
	n[5] = n[2].CreateChild(tree.NewNodeID("n5"))
	n[6] = n[5].CreateChild(tree.NewNodeID("n6"))
	offsets := []vmath.Vec3{{}, {Y: 1}, {Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}, {X: -1, Y: 1}, {X: -1, Y: 1}}
	for i, node := range n {
		node.Position = offsets[i]
	}
	return n
}

func TestMultiEffectorTree(t *testing.T) {
	n := fork()
	aim(n[4], vmath.Vec3{X: 2.5, Y: 3})
	aim(n[6], vmath.Vec3{X: -2.5, Y: 3})
	s := newSolver(t, n[0], generous())
	require.Len(t, s.Subtrees(), 1)

	res, err := s.Solve()
	require.NoError(t, err)
	assert.Equal(t, solver.Converged, res.Status)

	poses := transform.GlobalPoses(n[0])
	assert.LessOrEqual(t, poses[n[4]].Position.Distance(vmath.Vec3{X: 2.5, Y: 3}), 1e-3)
	assert.LessOrEqual(t, poses[n[6]].Position.Distance(vmath.Vec3{X: -2.5, Y: 3}), 1e-3)
	assert.InDelta(t, 1, poses[n[1]].Position.Distance(poses[n[0]].Position), 1e-9)
	assert.InDelta(t, math.Sqrt2, poses[n[4]].Position.Distance(poses[n[3]].Position), 1e-9)

	var visited int
	s.IterateNodes(func(vmath.Vec3, vmath.Quat) { visited++ })
	assert.Equal(t, 6, visited, "every node but the base, once")
}

func TestNestedSubtrees(t *testing.T) {
	n := chain(6)
	aim(n[3], vmath.Vec3{X: 1, Y: 2})
	aim(n[6], vmath.Vec3{X: 1, Y: 4, Z: 1})
	s := newSolver(t, n[0], generous())
	require.Len(t, s.Subtrees(), 2)

	res, err := s.Solve()
	require.NoError(t, err)
	assert.Equal(t, solver.Converged, res.Status)
	require.Len(t, res.Subtrees, 2)

	poses := transform.GlobalPoses(n[0])
	assert.LessOrEqual(t, poses[n[3]].Position.Distance(vmath.Vec3{X: 1, Y: 2}), 1e-3)
	assert.LessOrEqual(t, poses[n[6]].Position.Distance(vmath.Vec3{X: 1, Y: 4, Z: 1}), 1e-3)
	assertSegmentLengths(t, n, 1)
}

func TestRebuildAddsSubtree(t *testing.T) {
	n := fork()
	aim(n[4], vmath.Vec3{X: 2, Y: 3})
	s := newSolver(t, n[0], generous())
	assert.Len(t, s.Subtrees(), 1)

	aim(n[2], vmath.Vec3{Y: 2})
	require.NoError(t, s.Rebuild(n[0]))
	assert.Len(t, s.Subtrees(), 2)

	res, err := s.Solve()
	require.NoError(t, err)
	assert.Len(t, res.Subtrees, 2)
}

func TestConeConstraintHolds(t *testing.T) {
	n := chain(3)
	n[1].AttachConstraint(tree.NewConeConstraint(math.Pi / 8))
	n[2].AttachConstraint(tree.NewConeConstraint(math.Pi / 6))
	n[3].AttachConstraint(tree.NewConeConstraint(math.Pi / 6))
	aim(n[3], vmath.Vec3{X: 2, Y: -0.5})
	cfg := solver.DefaultConfig()
	cfg.Flags = solver.FlagConstraints
	s := newSolver(t, n[0], cfg)

	_, err := s.Solve()
	require.NoError(t, err)

	poses := transform.GlobalPoses(n[0])
	seg := func(i int) vmath.Vec3 { return poses[n[i]].Position.Sub(poses[n[i-1]].Position) }
	// The first segment is measured against its rest direction.
	assert.LessOrEqual(t, seg(1).Angle(vmath.Vec3{Y: 1}), math.Pi/8+1e-9)
	assert.LessOrEqual(t, seg(2).Angle(seg(1)), math.Pi/6+1e-9)
	assert.LessOrEqual(t, seg(3).Angle(seg(2)), math.Pi/6+1e-9)
	assertSegmentLengths(t, n, 1)
}

func TestRootConeHoldsAcrossSolves(t *testing.T) {
	n := chain(3)
	n[1].AttachConstraint(tree.NewConeConstraint(math.Pi / 8))
	aim(n[3], vmath.Vec3{X: 2, Y: -0.5})
	s := newSolver(t, n[0], solver.DefaultConfig())

	for i := 0; i < 5; i++ {
		_, err := s.Solve()
		require.NoError(t, err)

		poses := transform.GlobalPoses(n[0])
		seg := poses[n[1]].Position.Sub(poses[n[0]].Position)
		assert.LessOrEqual(t, seg.Angle(vmath.Vec3{Y: 1}), math.Pi/8+1e-9, "solve %d", i)
	}
	assertSegmentLengths(t, n, 1)
}

func TestConstraintsFlagOff(t *testing.T) {
	n := chain(2)
	n[2].AttachConstraint(tree.NewConeConstraint(0.1))
	target := vmath.Vec3{X: 1.2, Y: 1.2}
	aim(n[2], target)
	cfg := generous()
	cfg.Flags = 0
	s := newSolver(t, n[0], cfg)

	res, err := s.Solve()
	require.NoError(t, err)
	assert.Equal(t, solver.Converged, res.Status)
}

func TestHingeConstraintHolds(t *testing.T) {
	n := chain(3)
	n[2].AttachConstraint(tree.NewHingeConstraint(vmath.Vec3{Z: 1}))
	n[3].AttachConstraint(tree.NewHingeConstraint(vmath.Vec3{Z: 1}))
	aim(n[3], vmath.Vec3{X: 1, Y: 1, Z: 1})
	cfg := solver.DefaultConfig()
	cfg.Flags = solver.FlagConstraints
	s := newSolver(t, n[0], cfg)

	_, err := s.Solve()
	require.NoError(t, err)

	poses := transform.GlobalPoses(n[0])
	for _, i := range []int{2, 3} {
		seg := poses[n[i]].Position.Sub(poses[n[i-1]].Position)
		assert.InDelta(t, 0, seg.Z, 1e-9, "segment %d", i)
	}
	assertSegmentLengths(t, n, 1)
}

func TestDegenerateTargetStaysFinite(t *testing.T) {
	n := chain(3)
	aim(n[3], vmath.Zero)
	s := newSolver(t, n[0], solver.DefaultConfig())

	_, err := s.Solve()
	require.NoError(t, err)
	for _, node := range n {
		assert.True(t, node.Position.IsFinite(), "%v", node.Position)
		assert.True(t, node.Rotation.IsFinite(), "%v", node.Rotation)
	}
	assertSegmentLengths(t, n, 1)
}

func TestNoEffectors(t *testing.T) {
	n := chain(3)
	s := newSolver(t, n[0], solver.DefaultConfig())
	res, err := s.Solve()
	require.NoError(t, err)
	assert.Equal(t, solver.Converged, res.Status)
	assert.Empty(t, s.Subtrees())
}

func TestCone(t *testing.T) {
	up := vmath.Vec3{Y: 1}
	inside := vmath.Vec3{X: 0.1, Y: 1}.Normalize()
	assert.Equal(t, inside, cone(inside, up, 0.5))

	got := cone(vmath.Vec3{X: 1}, up, math.Pi/4)
	assert.InDelta(t, math.Pi/4, got.Angle(up), 1e-12)
	assert.Greater(t, got.X, 0.0, "swings toward the requested side")
	assert.InDelta(t, 1, got.Length(), 1e-12)

	// Straight backwards picks some side but respects the angle.
	got = cone(vmath.Vec3{Y: -1}, up, 0.3)
	assert.InDelta(t, 0.3, got.Angle(up), 1e-12)
}

func TestHinge(t *testing.T) {
	z := vmath.Vec3{Z: 1}
	got := hinge(vmath.Vec3{X: 1, Z: 1}, vmath.Vec3{Y: 1}, z)
	assert.InDelta(t, 0, got.Distance(vmath.Vec3{X: 1}), 1e-12)

	// Along the axis: fall back to the reference direction.
	got = hinge(z, vmath.Vec3{Y: 1, Z: 1}, z)
	assert.InDelta(t, 0, got.Distance(vmath.Vec3{Y: 1}), 1e-12)

	// A zero axis constrains nothing.
	d := vmath.Vec3{X: 1, Y: 2, Z: 3}
	assert.Equal(t, d, hinge(d, z, vmath.Zero))
}
