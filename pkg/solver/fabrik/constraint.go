package fabrik

import (
	"github.com/chazu/ik/pkg/tree"
	"github.com/chazu/ik/pkg/vmath"
)

// degenerate is the squared length below which a projected direction is
// treated as zero.
const degenerate = 1e-18

// constrain limits dir, the direction from p to its child c, to what c's
// constraint allows.
func (a *Algorithm) constrain(c, p *tree.Node, dir vmath.Vec3) vmath.Vec3 {
	ref := a.reference(c, p)
	switch c.Constraint.Kind {
	case tree.ConstraintCone:
		return cone(dir, ref, c.Constraint.MaxAngle)
	case tree.ConstraintHinge:
		axis := c.Constraint.Axis.Rotate(p.Rotation)
		return hinge(dir, ref, axis)
	}
	return dir
}

// reference is the direction the segment p->c is measured against: the
// segment above p as currently solved, p's incoming segment from outside
// the subtree, or, below the root, the segment's rest direction from the
// last rebuild. The rest direction does not follow the solved pose, so
// repeated solves cannot walk a root segment past its limit.
func (a *Algorithm) reference(c, p *tree.Node) vmath.Vec3 {
	if gp := a.st.Parent(p); gp != nil {
		return a.pos[p].Sub(a.pos[gp]).Normalize()
	}
	if gp := p.Parent(); gp != nil {
		if d := p.Position.Sub(gp.Position); d.LengthSquared() > degenerate {
			return d.Normalize()
		}
	}
	if r := a.st.Rest(c); !r.IsZero() {
		return r
	}
	return a.start[c].Sub(a.start[p]).Normalize()
}

// cone swings dir back onto the boundary of the cone of half-angle
// maxAngle around ref.
func cone(dir, ref vmath.Vec3, maxAngle float64) vmath.Vec3 {
	if ref.Angle(dir) <= maxAngle {
		return dir
	}
	axis := ref.Cross(dir)
	if axis.LengthSquared() < degenerate {
		axis = ref.Perpendicular()
	}
	return ref.Rotate(vmath.QuatFromAxisAngle(axis, maxAngle)).Normalize()
}

// hinge projects dir onto the plane perpendicular to axis.
func hinge(dir, ref, axis vmath.Vec3) vmath.Vec3 {
	if axis.LengthSquared() < degenerate {
		return dir
	}
	for _, v := range []vmath.Vec3{dir, ref} {
		if proj := v.Sub(v.Project(axis)); proj.LengthSquared() > degenerate {
			return proj.Normalize()
		}
	}
	return dir
}
