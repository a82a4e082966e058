// Package transform converts node trees between local space (each node
// relative to its parent) and global space (relative to the tree root's
// frame). Conversions are in place and never fail; a nil node is a no-op.
package transform

import (
	"fmt"

	"github.com/chazu/ik/pkg/tree"
	"github.com/chazu/ik/pkg/vmath"
)

// Direction selects the conversion.
type Direction int

const (
	LocalToGlobal Direction = iota
	GlobalToLocal
)

func (d Direction) String() string {
	switch d {
	case LocalToGlobal:
		return "local-to-global"
	case GlobalToLocal:
		return "global-to-local"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Components selects which parts of each node's pose are converted. The
// zero value converts both.
type Components uint8

const (
	Translations Components = 1 << iota
	Rotations

	Both = Translations | Rotations
)

// Pose is a position and rotation pair.
type Pose struct {
	Position vmath.Vec3
	Rotation vmath.Quat
}

// Apply converts the subtree under n in the given direction. n itself is
// left untouched: the subtree's root acts as its own parent.
//
// A component that is not converted is read as currently stored. In
// particular, converting translations alone rotates offsets by the parent's
// stored rotation, whatever space that rotation is in.
func Apply(n *tree.Node, dir Direction, comps Components) {
	if n == nil {
		return
	}
	if comps == 0 {
		comps = Both
	}
	switch dir {
	case LocalToGlobal:
		localToGlobal(n, comps)
	case GlobalToLocal:
		globalToLocal(n, comps)
	}
}

// localToGlobal walks pre-order so every parent is already global when its
// children read it.
func localToGlobal(n *tree.Node, comps Components) {
	for node := range tree.PreOrder(n) {
		if node == n {
			continue
		}
		p := node.Parent()
		if comps&Translations != 0 {
			node.Position = p.Position.Add(node.Position.Rotate(p.Rotation))
		}
		if comps&Rotations != 0 {
			node.Rotation = p.Rotation.Mul(node.Rotation)
		}
	}
}

// globalToLocal walks post-order so every node reads its parent before the
// parent itself is rewritten.
func globalToLocal(n *tree.Node, comps Components) {
	for node := range tree.PostOrder(n) {
		if node == n {
			continue
		}
		p := node.Parent()
		if comps&Translations != 0 {
			node.Position = node.Position.Sub(p.Position).NRotate(p.Rotation)
		}
		if comps&Rotations != 0 {
			node.Rotation = p.Rotation.Conj().Mul(node.Rotation)
		}
	}
}

// GlobalPoses computes the global pose of every node under root, treating
// the stored values as local, without modifying the tree.
func GlobalPoses(root *tree.Node) map[*tree.Node]Pose {
	poses := make(map[*tree.Node]Pose)
	if root == nil {
		return poses
	}
	for node := range tree.PreOrder(root) {
		if node == root {
			poses[node] = Pose{Position: node.Position, Rotation: node.Rotation}
			continue
		}
		poses[node] = Compose(poses[node.Parent()], Pose{Position: node.Position, Rotation: node.Rotation})
	}
	return poses
}

// Compose returns the pose of child (expressed relative to parent) in the
// frame parent is expressed in.
func Compose(parent, child Pose) Pose {
	return Pose{
		Position: parent.Position.Add(child.Position.Rotate(parent.Rotation)),
		Rotation: parent.Rotation.Mul(child.Rotation),
	}
}

// Relative returns child expressed relative to parent. It inverts Compose.
func Relative(parent, child Pose) Pose {
	return Pose{
		Position: child.Position.Sub(parent.Position).NRotate(parent.Rotation),
		Rotation: parent.Rotation.Conj().Mul(child.Rotation),
	}
}
