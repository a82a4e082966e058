package tree

import (
	"fmt"

	"github.com/chazu/ik/pkg/vmath"
)

// Effector is a target pose attached to a node.
type Effector struct {
	TargetPosition vmath.Vec3
	TargetRotation vmath.Quat

	// Weight blends the solved tip position from its starting position (0)
	// to TargetPosition (1).
	Weight float64
	// RotationWeight blends the tip's solved rotation toward TargetRotation.
	// Zero means position-only solving.
	RotationWeight float64

	// ChainLength limits how many segments above the effector node are
	// solved. Zero extends the chain to the root or the nearest ancestor
	// carrying an effector.
	ChainLength int
}

// NewEffector returns an effector with full position weight, no rotation
// weight and an unlimited chain.
func NewEffector() *Effector {
	return &Effector{
		TargetRotation: vmath.IdentityQuat,
		Weight:         1,
	}
}

// ConstraintKind selects how a constraint limits a segment.
type ConstraintKind int

const (
	ConstraintCone  ConstraintKind = iota // max angle from the parent segment
	ConstraintHinge                       // segment confined to a plane
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintCone:
		return "cone"
	case ConstraintHinge:
		return "hinge"
	default:
		return fmt.Sprintf("ConstraintKind(%d)", int(k))
	}
}

// Constraint limits the direction of the segment from a node's parent to
// the node. Violations are projected back onto the allowed set.
type Constraint struct {
	Kind ConstraintKind

	// MaxAngle is the cone half-angle in radians (ConstraintCone).
	MaxAngle float64

	// Axis is the hinge axis in the parent's frame (ConstraintHinge). The
	// segment stays in the plane perpendicular to it.
	Axis vmath.Vec3
}

// NewConeConstraint limits a segment to within maxAngle radians of the
// parent segment's direction. A segment hanging off the root is measured
// against its rest direction.
func NewConeConstraint(maxAngle float64) *Constraint {
	return &Constraint{Kind: ConstraintCone, MaxAngle: maxAngle}
}

// NewHingeConstraint restricts a segment to the plane perpendicular to axis.
func NewHingeConstraint(axis vmath.Vec3) *Constraint {
	return &Constraint{Kind: ConstraintHinge, Axis: axis}
}

// Effectors returns every node under root carrying an effector, in
// pre-order.
func Effectors(root *Node) []*Node {
	var out []*Node
	for n := range PreOrder(root) {
		if n.Effector != nil {
			out = append(out, n)
		}
	}
	return out
}
