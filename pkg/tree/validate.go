package tree

import (
	"fmt"
	"math"
)

// ValidationSeverity indicates whether a finding makes the tree unsolvable
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // solving is undefined
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Code     string
	NodeID   NodeID
	Message  string
	Severity ValidationSeverity
}

func (e ValidationError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.NodeID.IsZero() {
		return fmt.Sprintf("[%s] %s", e.Severity, msg)
	}
	return fmt.Sprintf("[%s] node %s: %s", e.Severity, e.NodeID.Short(), msg)
}

// Validate checks the structural invariants of the tree under root and the
// sanity of its attachments. An empty result means the tree is solvable.
// Validate never mutates the tree.
func Validate(root *Node) []ValidationError {
	if root == nil {
		return nil
	}
	errs, cyclic := validateStructure(root)
	if cyclic {
		// Pre-order traversal would not terminate.
		return errs
	}
	for n := range PreOrder(root) {
		errs = append(errs, validatePose(n)...)
		errs = append(errs, validateEffector(n)...)
		errs = append(errs, validateConstraint(n)...)
	}
	return errs
}

// validateStructure walks child links with a visited set so a corrupted
// tree cannot loop forever, and checks every back-reference.
func validateStructure(root *Node) (errs []ValidationError, cyclic bool) {
	visited := make(map[*Node]bool)
	ids := make(map[NodeID]bool)

	var visit func(n *Node)
	visit = func(n *Node) {
		if visited[n] {
			cyclic = true
			errs = append(errs, ValidationError{
				Code:     "CYCLE",
				NodeID:   n.ID,
				Message:  "cycle detected: node reachable twice",
				Severity: SeverityError,
			})
			return
		}
		visited[n] = true
		if ids[n.ID] {
			errs = append(errs, ValidationError{
				Code:     "DUPLICATE_ID",
				NodeID:   n.ID,
				Message:  "duplicate node ID",
				Severity: SeverityWarning,
			})
		}
		ids[n.ID] = true
		for _, c := range n.children {
			if c.parent != n {
				errs = append(errs, ValidationError{
					Code:     "PARENT_MISMATCH",
					NodeID:   c.ID,
					Message:  fmt.Sprintf("parent link does not point at %s", n.ID.Short()),
					Severity: SeverityError,
				})
			}
			visit(c)
		}
	}
	visit(root)
	return errs, cyclic
}

func validatePose(n *Node) []ValidationError {
	if n.Position.IsFinite() && n.Rotation.IsFinite() {
		return nil
	}
	return []ValidationError{{
		Code:     "INVALID_POSE",
		NodeID:   n.ID,
		Message:  "position or rotation is not finite",
		Severity: SeverityError,
	}}
}

func validateEffector(n *Node) []ValidationError {
	e := n.Effector
	if e == nil {
		return nil
	}
	var errs []ValidationError
	add := func(msg string) {
		errs = append(errs, ValidationError{Code: "INVALID_EFFECTOR", NodeID: n.ID, Message: msg, Severity: SeverityError})
	}
	if e.Weight < 0 || e.Weight > 1 || math.IsNaN(e.Weight) {
		add(fmt.Sprintf("weight %g outside [0,1]", e.Weight))
	}
	if e.RotationWeight < 0 || e.RotationWeight > 1 || math.IsNaN(e.RotationWeight) {
		add(fmt.Sprintf("rotation weight %g outside [0,1]", e.RotationWeight))
	}
	if e.ChainLength < 0 {
		add(fmt.Sprintf("negative chain length %d", e.ChainLength))
	}
	if !e.TargetPosition.IsFinite() || !e.TargetRotation.IsFinite() {
		add("target is not finite")
	}
	return errs
}

func validateConstraint(n *Node) []ValidationError {
	c := n.Constraint
	if c == nil {
		return nil
	}
	var msg string
	switch c.Kind {
	case ConstraintCone:
		if c.MaxAngle < 0 || math.IsNaN(c.MaxAngle) || math.IsInf(c.MaxAngle, 0) {
			msg = fmt.Sprintf("cone angle %g is invalid", c.MaxAngle)
		}
	case ConstraintHinge:
		if c.Axis.IsZero() || !c.Axis.IsFinite() {
			msg = "hinge axis must be a finite non-zero vector"
		}
	default:
		msg = fmt.Sprintf("unknown constraint kind %v", c.Kind)
	}
	var errs []ValidationError
	if msg != "" {
		errs = append(errs, ValidationError{Code: "INVALID_CONSTRAINT", NodeID: n.ID, Message: msg, Severity: SeverityError})
	}
	if n.parent == nil {
		errs = append(errs, ValidationError{
			Code:     "ROOT_CONSTRAINT",
			NodeID:   n.ID,
			Message:  "constraint on a root node has no segment to limit",
			Severity: SeverityWarning,
		})
	}
	return errs
}
