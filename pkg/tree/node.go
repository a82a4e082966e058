// Package tree defines the skeleton node tree solved by the IK solvers.
//
// A node owns its children; the parent link is a back-reference only. Each
// node stores its position and rotation, which are local (relative to the
// parent) or global depending on the last transform applied to the tree.
// Structural edits (create, destroy, reparent, attaching or detaching
// effectors) invalidate any solver built from the tree until it is rebuilt.
package tree

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/chazu/ik/pkg/vmath"
)

var (
	// ErrNilNode is returned when a required node argument is nil.
	ErrNilNode = errors.New("tree: nil node")
	// ErrCycle is returned when a reparent would make a node its own ancestor.
	ErrCycle = errors.New("tree: reparent would create a cycle")
)

// nodeNamespace scopes name-derived node IDs.
var nodeNamespace = uuid.MustParse("7c1f0e9a-4b3d-5e2a-9f61-2d8c4a7b1e05")

// NodeID is an opaque, user-visible node identifier.
type NodeID uuid.UUID

// NewNodeID derives a stable ID from a name, so the same name always maps to
// the same node ID.
func NewNodeID(name string) NodeID {
	return NodeID(uuid.NewSHA1(nodeNamespace, []byte(name)))
}

// RandomNodeID returns a fresh random ID.
func RandomNodeID() NodeID {
	return NodeID(uuid.New())
}

// String returns the canonical UUID form.
func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

// Short returns the first 8 hex characters, for logs.
func (id NodeID) Short() string {
	return id.String()[:8]
}

// IsZero reports whether id is the zero UUID.
func (id NodeID) IsZero() bool {
	return id == NodeID(uuid.Nil)
}

// Node is a rigid segment joint in the skeleton.
type Node struct {
	ID NodeID

	Position vmath.Vec3
	Rotation vmath.Quat

	// DistToParent caches the segment length to the parent. Refreshed by
	// subtree.UpdateLengths for nodes that belong to a solvable subtree.
	DistToParent float64

	Effector   *Effector
	Constraint *Constraint

	parent   *Node
	children []*Node
}

// Create returns a new root node with identity rotation.
func Create(id NodeID) *Node {
	return &Node{
		ID:       id,
		Rotation: vmath.IdentityQuat,
	}
}

// CreateChild creates a node and appends it to n's children.
func (n *Node) CreateChild(id NodeID) *Node {
	c := Create(id)
	n.addChild(c)
	return c
}

// Destroy detaches n from its parent and tears down its subtree. Every node
// in the subtree loses its parent, children and attachments.
func Destroy(n *Node) {
	if n == nil {
		return
	}
	if n.parent != nil {
		n.parent.removeChild(n)
	}
	// Collect first; teardown clears the child slices PostOrder walks.
	var all []*Node
	for d := range PostOrder(n) {
		all = append(all, d)
	}
	for _, d := range all {
		d.parent = nil
		d.children = nil
		d.Effector = nil
		d.Constraint = nil
	}
}

// Reparent moves n (with its subtree) under newParent. Passing a nil
// newParent makes n a standalone root.
func Reparent(n, newParent *Node) error {
	if n == nil {
		return ErrNilNode
	}
	for a := newParent; a != nil; a = a.parent {
		if a == n {
			return errors.Wrapf(ErrCycle, "node %s under %s", n.ID.Short(), newParent.ID.Short())
		}
	}
	if n.parent != nil {
		n.parent.removeChild(n)
	}
	if newParent != nil {
		newParent.addChild(n)
	}
	return nil
}

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the node's children. The slice must not be modified.
func (n *Node) Children() []*Node {
	return n.children
}

// ChildCount returns the number of direct children.
func (n *Node) ChildCount() int {
	return len(n.children)
}

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool {
	return n.parent == nil
}

// Root follows parent links to the top of the tree.
func (n *Node) Root() *Node {
	r := n
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Depth returns the number of edges between n and its root.
func (n *Node) Depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Find returns the first node in n's subtree (pre-order) with the given ID.
func (n *Node) Find(id NodeID) *Node {
	for d := range PreOrder(n) {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// Count returns the number of nodes in n's subtree, n included.
func (n *Node) Count() int {
	c := 0
	for range PreOrder(n) {
		c++
	}
	return c
}

// PackChildren compacts child storage after removals. It has no semantic
// effect.
func (n *Node) PackChildren() {
	if cap(n.children) == len(n.children) {
		return
	}
	packed := make([]*Node, len(n.children))
	copy(packed, n.children)
	n.children = packed
}

// AttachEffector attaches e to n, replacing any existing effector.
func (n *Node) AttachEffector(e *Effector) {
	n.Effector = e
}

// DetachEffector removes and returns n's effector.
func (n *Node) DetachEffector() *Effector {
	e := n.Effector
	n.Effector = nil
	return e
}

// AttachConstraint attaches c to n, replacing any existing constraint.
func (n *Node) AttachConstraint(c *Constraint) {
	n.Constraint = c
}

// DetachConstraint removes and returns n's constraint.
func (n *Node) DetachConstraint() *Constraint {
	c := n.Constraint
	n.Constraint = nil
	return c
}

func (n *Node) addChild(c *Node) {
	c.parent = n
	n.children = append(n.children, c)
}

func (n *Node) removeChild(c *Node) {
	for i, x := range n.children {
		if x == c {
			copy(n.children[i:], n.children[i+1:])
			n.children[len(n.children)-1] = nil
			n.children = n.children[:len(n.children)-1]
			break
		}
	}
	c.parent = nil
}
