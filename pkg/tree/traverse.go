package tree

import "iter"

// PreOrder yields n and its descendants, each node before its children.
// A nil n yields nothing.
func PreOrder(n *Node) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		if n == nil {
			return
		}
		stack := []*Node{n}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(top) {
				return
			}
			// Push in reverse so children come out in order.
			for i := len(top.children) - 1; i >= 0; i-- {
				stack = append(stack, top.children[i])
			}
		}
	}
}

// PostOrder yields n's descendants before n, each node after its children.
func PostOrder(n *Node) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		if n == nil {
			return
		}
		postOrder(n, yield)
	}
}

func postOrder(n *Node, yield func(*Node) bool) bool {
	for _, c := range n.children {
		if !postOrder(c, yield) {
			return false
		}
	}
	return yield(n)
}
