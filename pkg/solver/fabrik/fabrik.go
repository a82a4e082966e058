// Package fabrik implements Forward And Backward Reaching Inverse
// Kinematics over one subtree.
//
// Each iteration first drags every tip onto its target and pulls the
// ancestors after it (backward pass), then pins the base back to where it
// started and pushes the descendants out again at their rest lengths
// (forward pass). Constraints are applied in the forward pass. Nodes with
// several chain children are placed at the average of the positions their
// children ask for. A straight chain is folded toward its target before the
// first iteration, since the passes alone cannot bend it.
package fabrik

import (
	"github.com/pkg/errors"

	"github.com/chazu/ik/pkg/solver"
	"github.com/chazu/ik/pkg/subtree"
	"github.com/chazu/ik/pkg/tree"
	"github.com/chazu/ik/pkg/vmath"
)

// Name is the registry name of the algorithm.
const Name = "fabrik"

// Descriptor returns the registry entry for FABRIK.
func Descriptor() solver.Descriptor {
	return solver.Descriptor{
		Name: Name,
		New:  func() (solver.Algorithm, error) { return &Algorithm{}, nil },
	}
}

// Register adds FABRIK to r.
func Register(r *solver.Registry) error {
	return r.Register(Descriptor())
}

// Algorithm is one FABRIK instance bound to one subtree.
type Algorithm struct {
	st *subtree.Subtree

	// chain is set when the subtree is a single unbranched chain.
	chain       bool
	constrained bool
	total       float64

	// Scratch, reused between solves.
	start   map[*tree.Node]vmath.Vec3
	pos     map[*tree.Node]vmath.Vec3
	targets map[*tree.Node]vmath.Vec3
}

var _ solver.Algorithm = (*Algorithm)(nil)

func (a *Algorithm) Rebuild(st *subtree.Subtree) error {
	if st == nil || st.Base == nil {
		return errors.New("fabrik: empty subtree")
	}
	a.st = st
	a.start = make(map[*tree.Node]vmath.Vec3, len(st.Nodes))
	a.pos = make(map[*tree.Node]vmath.Vec3, len(st.Nodes))
	a.targets = make(map[*tree.Node]vmath.Vec3, len(st.Tips))

	a.chain = len(st.Tips) == 1
	a.constrained = false
	for _, n := range st.Nodes {
		if len(st.Children(n)) > 1 {
			a.chain = false
		}
		if n != st.Base && n.Constraint != nil {
			a.constrained = true
		}
	}
	a.UpdateTranslations()
	return nil
}

func (a *Algorithm) UpdateTranslations() {
	a.total = a.st.TotalLength()
}

// Solve runs up to cfg.MaxIterations iterations and commits the result to
// the tree. Every member must hold its global pose.
//
// A single unconstrained chain whose target is out of reach is laid
// straight toward it without iterating; the outcome is
// MaxIterationsReached with Iterations set to 1.
//
// Convergence slows as a target approaches the full reach of a bent chain.
// A four-segment chain bent at right angles needs about 76 iterations for a
// target at 99% of its reach and about 200 at 99.75%, so the default of 20
// leaves such targets a few hundredths short. A straight chain is aimed and
// bent before iterating and converges at once anywhere within reach.
func (a *Algorithm) Solve(cfg solver.Config) solver.Outcome {
	st := a.st
	for _, n := range st.Nodes {
		a.start[n] = n.Position
		a.pos[n] = n.Position
	}
	for _, tip := range st.Tips {
		e := tip.Effector
		a.targets[tip] = a.start[tip].Lerp(e.TargetPosition, e.Weight)
	}

	if st.SegmentCount() == 0 {
		st.Base.Position = a.targets[st.Base]
		orientTip(st.Base)
		return solver.Outcome{Status: solver.Converged}
	}

	out := solver.Outcome{Status: solver.MaxIterationsReached}
	useConstraints := cfg.Flags.Has(solver.FlagConstraints)
	switch {
	case a.converged(cfg.Tolerance):
		out.Status = solver.Converged
	case a.chain && !(useConstraints && a.constrained) && a.unreachable():
		a.stretch()
		out.Iterations = 1
	default:
		a.unfold()
		for i := 1; i <= cfg.MaxIterations; i++ {
			a.backward(st.Base)
			a.pos[st.Base] = a.start[st.Base]
			a.forward(st.Base, useConstraints)
			out.Iterations = i
			if a.converged(cfg.Tolerance) {
				out.Status = solver.Converged
				break
			}
		}
	}

	a.commit(cfg.Flags.Has(solver.FlagJointRotations))
	return out
}

func (a *Algorithm) converged(tolerance float64) bool {
	for _, tip := range a.st.Tips {
		if a.pos[tip].Distance(a.targets[tip]) > tolerance {
			return false
		}
	}
	return true
}

func (a *Algorithm) unreachable() bool {
	tip := a.st.Tips[0]
	return a.start[a.st.Base].Distance(a.targets[tip]) > a.total
}

// stretch lays a single chain out straight toward its target.
func (a *Algorithm) stretch() {
	base := a.start[a.st.Base]
	dir := a.targets[a.st.Tips[0]].Sub(base).Normalize()
	var along float64
	for _, n := range a.st.Nodes[1:] {
		along += a.st.Length(n)
		a.pos[n] = base.Add(dir.MulScalar(along))
	}
}

// backward places n's descendants first, then n between them.
func (a *Algorithm) backward(n *tree.Node) {
	kids := a.st.Children(n)
	for _, c := range kids {
		a.backward(c)
	}
	if a.st.IsTip(n) {
		a.pos[n] = a.targets[n]
		return
	}
	if n == a.st.Base {
		return
	}
	var sum vmath.Vec3
	for _, c := range kids {
		dir := a.pos[n].Sub(a.pos[c]).Normalize()
		sum = sum.Add(a.pos[c].Add(dir.MulScalar(a.st.Length(c))))
	}
	a.pos[n] = sum.DivScalar(float64(len(kids)))
}

// forward places p's descendants at their rest lengths from p.
func (a *Algorithm) forward(p *tree.Node, useConstraints bool) {
	for _, c := range a.st.Children(p) {
		dir := a.pos[c].Sub(a.pos[p]).Normalize()
		if useConstraints && c.Constraint != nil {
			dir = a.constrain(c, p, dir)
		}
		a.pos[c] = a.pos[p].Add(dir.MulScalar(a.st.Length(c)))
		a.forward(c, useConstraints)
	}
}

// commit writes the solved positions back and, if asked, turns every
// node so its rotation follows its segments.
func (a *Algorithm) commit(jointRotations bool) {
	st := a.st
	deltas := make(map[*tree.Node]vmath.Quat, len(st.Nodes))
	for _, n := range st.Nodes {
		if jointRotations {
			delta := vmath.IdentityQuat
			if kids := st.Children(n); len(kids) > 0 {
				var before, after vmath.Vec3
				for _, c := range kids {
					before = before.Add(a.start[c].Sub(a.start[n]).Normalize())
					after = after.Add(a.pos[c].Sub(a.pos[n]).Normalize())
				}
				delta = vmath.QuatBetween(before, after)
			} else if p := st.Parent(n); p != nil {
				delta = deltas[p]
			}
			deltas[n] = delta
			n.Rotation = delta.Mul(n.Rotation).Normalize()
		}
		if n != st.Base {
			n.Position = a.pos[n]
		}
	}
	for _, tip := range st.Tips {
		orientTip(tip)
	}
}

// orientTip blends a tip's rotation toward its effector's target rotation.
func orientTip(tip *tree.Node) {
	e := tip.Effector
	if e == nil || e.RotationWeight <= 0 {
		return
	}
	tip.Rotation = tip.Rotation.Slerp(e.TargetRotation, e.RotationWeight).Normalize()
}

// IterateNodes reports every node the subtree moves: all members except
// the base, or the base alone for a zero-segment subtree.
func (a *Algorithm) IterateNodes(fn solver.NodeFunc) {
	if a.st == nil {
		return
	}
	nodes := a.st.Nodes[1:]
	if len(nodes) == 0 {
		nodes = a.st.Nodes
	}
	for _, n := range nodes {
		fn(n.Position, n.Rotation)
	}
}

func (a *Algorithm) Close() {
	a.st = nil
	a.start, a.pos, a.targets = nil, nil, nil
}
