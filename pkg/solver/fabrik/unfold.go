package fabrik

import (
	"math"

	"github.com/chazu/ik/pkg/tree"
	"github.com/chazu/ik/pkg/vmath"
)

// parallel is the largest |u×v| of two unit directions treated as parallel.
const parallel = 1e-9

// unfold prepares a straight chain before iterating. The passes keep a
// straight chain on its own line, so one lying along the base-target line
// never folds and one pointing elsewhere swings only slowly. unfold aims
// the chain at the target, bends it at the middle joint until the tip is
// as far from the base as the target is, and aims it again.
func (a *Algorithm) unfold() {
	nodes := a.st.Nodes
	if !a.chain || len(nodes) < 3 || !a.straight() {
		return
	}
	tip := nodes[len(nodes)-1]
	target := a.targets[tip]
	a.aim(tip, target)

	base := a.pos[nodes[0]]
	mid := nodes[len(nodes)/2]
	first := a.pos[mid].Sub(base)
	rest := a.pos[tip].Sub(a.pos[mid])
	la, lb := first.Length(), rest.Length()
	if la*lb < degenerate {
		return
	}
	d := target.Distance(base)
	cos := (d*d - la*la - lb*lb) / (2 * la * lb)
	bend := math.Acos(math.Max(-1, math.Min(1, cos))) - first.Angle(rest)
	if math.Abs(bend) < parallel {
		return
	}

	q := vmath.QuatFromAxisAngle(first.Normalize().Perpendicular(), bend)
	pivot := a.pos[mid]
	for _, n := range nodes[len(nodes)/2+1:] {
		a.pos[n] = pivot.Add(a.pos[n].Sub(pivot).Rotate(q))
	}
	a.aim(tip, target)
}

// straight reports whether every segment of the chain is parallel to the
// others. Zero-length segments are ignored.
func (a *Algorithm) straight() bool {
	var u vmath.Vec3
	for _, n := range a.st.Nodes[1:] {
		d := a.pos[n].Sub(a.pos[n.Parent()])
		if d.LengthSquared() < degenerate {
			continue
		}
		d = d.Normalize()
		if u.IsZero() {
			u = d
			continue
		}
		if d.Cross(u).Length() > parallel {
			return false
		}
	}
	return true
}

// aim swings the whole chain rigidly about its base so that the tip lies on
// the line from the base toward target.
func (a *Algorithm) aim(tip *tree.Node, target vmath.Vec3) {
	base := a.pos[a.st.Base]
	from, to := a.pos[tip].Sub(base), target.Sub(base)
	if from.LengthSquared() < degenerate || to.LengthSquared() < degenerate {
		return
	}
	q := vmath.QuatBetween(from, to)
	for _, n := range a.st.Nodes[1:] {
		a.pos[n] = base.Add(a.pos[n].Sub(base).Rotate(q))
	}
}
