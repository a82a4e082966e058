// Package subtree partitions a node tree into the disjoint units a solver
// works on. Each subtree has one base node that stays fixed and one or more
// tips carrying effectors. Subtrees are derived data: any change to the
// tree's topology or effector set requires partitioning again.
package subtree

import (
	"github.com/chazu/ik/pkg/tree"
	"github.com/chazu/ik/pkg/vmath"
)

// Subtree is a solvable part of a node tree.
type Subtree struct {
	Base *tree.Node
	// Tips are the nodes carrying effectors, in pre-order.
	Tips []*tree.Node
	// Nodes lists every member in pre-order, starting with Base.
	Nodes []*tree.Node

	children map[*tree.Node][]*tree.Node
	lengths  map[*tree.Node]float64
	rest     map[*tree.Node]vmath.Vec3
	tips     map[*tree.Node]bool
	members  map[*tree.Node]bool
}

// Partition derives the subtrees of the tree under root, ordered so that a
// subtree comes after any subtree containing its base. A tree without
// effectors yields no subtrees.
//
// From every effector the walk climbs toward the root, claiming one segment
// per step, and stops at the effector's chain length, at the root, or once
// it reaches a node that carries its own effector. Overlapping walks merge
// into one subtree.
func Partition(root *tree.Node) []*Subtree {
	if root == nil {
		return nil
	}

	// claimed[n] marks the segment between n and its parent.
	claimed := make(map[*tree.Node]bool)
	for _, e := range tree.Effectors(root) {
		limit := e.Effector.ChainLength
		n := e
		for steps := 0; n != root && n.Parent() != nil; steps++ {
			if limit > 0 && steps == limit {
				break
			}
			claimed[n] = true
			n = n.Parent()
			if n.Effector != nil {
				break
			}
		}
	}

	var out []*Subtree
	for n := range tree.PreOrder(root) {
		// An effector with nothing above it to move forms a subtree of its
		// own, solved before anything based on it.
		if n.Effector != nil && !claimed[n] {
			out = append(out, newSubtree(n, nil))
		}
		if claimed[n] && n.Effector == nil {
			continue
		}
		var kids []*tree.Node
		for _, c := range n.Children() {
			if claimed[c] {
				kids = append(kids, c)
			}
		}
		if len(kids) > 0 {
			out = append(out, collect(n, claimed))
		}
	}
	return out
}

func newSubtree(base *tree.Node, claimed map[*tree.Node]bool) *Subtree {
	st := &Subtree{
		Base:     base,
		children: make(map[*tree.Node][]*tree.Node),
		lengths:  make(map[*tree.Node]float64),
		rest:     make(map[*tree.Node]vmath.Vec3),
		tips:     make(map[*tree.Node]bool),
		members:  map[*tree.Node]bool{base: true},
	}
	st.Nodes = append(st.Nodes, base)
	if claimed == nil {
		// Zero-segment subtree: the base is its own tip.
		st.Tips = []*tree.Node{base}
		st.tips[base] = true
	}
	return st
}

// collect gathers the claimed nodes below base, stopping at tips.
func collect(base *tree.Node, claimed map[*tree.Node]bool) *Subtree {
	st := newSubtree(base, claimed)
	var walk func(n *tree.Node)
	walk = func(n *tree.Node) {
		for _, c := range n.Children() {
			if !claimed[c] {
				continue
			}
			st.children[n] = append(st.children[n], c)
			st.Nodes = append(st.Nodes, c)
			st.members[c] = true
			if c.Effector != nil {
				st.Tips = append(st.Tips, c)
				st.tips[c] = true
				continue
			}
			walk(c)
		}
	}
	walk(base)
	return st
}

// Parent returns n's parent within the subtree, or nil for the base.
func (st *Subtree) Parent(n *tree.Node) *tree.Node {
	if n == st.Base {
		return nil
	}
	return n.Parent()
}

// Children returns n's children that belong to the subtree.
func (st *Subtree) Children(n *tree.Node) []*tree.Node {
	return st.children[n]
}

// IsTip reports whether n is one of the subtree's effector tips.
func (st *Subtree) IsTip(n *tree.Node) bool {
	return st.tips[n]
}

// SegmentCount returns the number of parent-child segments in the subtree.
func (st *Subtree) SegmentCount() int {
	return len(st.Nodes) - 1
}

// Contains reports whether n is a member of the subtree.
func (st *Subtree) Contains(n *tree.Node) bool {
	return st.members[n]
}

// Length returns the cached length of the segment from n's parent to n.
func (st *Subtree) Length(n *tree.Node) float64 {
	return st.lengths[n]
}

// Rest returns the unit direction of the segment from n's parent to n in
// global coordinates, as of the last UpdateLengths. It is zero for a
// zero-length segment.
func (st *Subtree) Rest(n *tree.Node) vmath.Vec3 {
	return st.rest[n]
}

// TotalLength returns the sum of all cached segment lengths.
func (st *Subtree) TotalLength() float64 {
	var sum float64
	for _, l := range st.lengths {
		sum += l
	}
	return sum
}

// UpdateLengths recomputes every segment length and rest direction from the
// given global positions and mirrors the length into each node's
// DistToParent. Lengths are assumed rigid while solving, so this only needs
// to run after the tree's translations change.
func (st *Subtree) UpdateLengths(global func(*tree.Node) vmath.Vec3) {
	for _, n := range st.Nodes[1:] {
		seg := global(n).Sub(global(n.Parent()))
		l := seg.Length()
		st.lengths[n] = l
		if l > 0 {
			st.rest[n] = seg.DivScalar(l)
		} else {
			delete(st.rest, n)
		}
		n.DistToParent = l
	}
}
