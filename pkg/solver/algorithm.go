// Package solver binds an IK algorithm to a node tree. A Solver partitions
// the tree into subtrees, hands each to its own Algorithm instance and runs
// the shared pipeline around them: space conversion, rigid ride-along of
// nodes outside every subtree, and write-back.
//
// Algorithms are looked up by name in a Registry, so several of them can
// share the tree and transform infrastructure.
package solver

import (
	"fmt"

	"github.com/chazu/ik/pkg/subtree"
	"github.com/chazu/ik/pkg/vmath"
)

// NodeFunc receives one node's pose during IterateNodes.
type NodeFunc func(position vmath.Vec3, rotation vmath.Quat)

// Algorithm solves a single subtree. Implementations work in global space:
// when Solve is called every member of the subtree holds its global pose.
type Algorithm interface {
	// Rebuild binds the algorithm to a freshly partitioned subtree whose
	// segment lengths are already cached.
	Rebuild(st *subtree.Subtree) error
	// UpdateTranslations refreshes anything derived from segment lengths
	// after the caller changed the tree's translations.
	UpdateTranslations()
	// Solve moves the subtree's nodes toward their effector targets.
	Solve(cfg Config) Outcome
	// IterateNodes calls fn for every node this algorithm positions.
	IterateNodes(fn NodeFunc)
	// Close releases the instance. It is not used afterwards.
	Close()
}

// Descriptor registers an algorithm under a name.
type Descriptor struct {
	// Name is 1 to MaxNameLength bytes long and unique in a registry.
	Name string
	// New creates one algorithm instance. A solver creates one per subtree.
	New func() (Algorithm, error)
}

// MaxNameLength bounds descriptor names.
const MaxNameLength = 16

// Status is the terminal state of a solve.
type Status int

const (
	// Converged means every effector ended within tolerance of its target.
	Converged Status = iota
	// MaxIterationsReached means some effector is still out of tolerance,
	// either because the iteration budget ran out or because its target is
	// out of reach. The pose is the best effort; this is not an error.
	MaxIterationsReached
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case MaxIterationsReached:
		return "max-iterations-reached"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome is one algorithm instance's result for one subtree.
type Outcome struct {
	Status Status
	// Iterations counts the passes actually run. It is 0 when the subtree
	// was already at its targets, and an algorithm that settles an
	// unreachable target without iterating reports MaxIterationsReached
	// with fewer iterations than the configured maximum.
	Iterations int
}

// Result aggregates a solve over all subtrees.
type Result struct {
	// Status is MaxIterationsReached if any subtree failed to converge.
	Status Status
	// Iterations is the largest iteration count of any subtree.
	Iterations int
	// Subtrees holds the outcome per subtree, in solve order.
	Subtrees []Outcome
}
