package layout

// FindByID returns the node with the given ID, or nil. Depth-first, children
// visited in array order.
func FindByID(t Tree, id string) *Node {
	var found *Node
	t.Root.Walk(func(n *Node) bool {
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindLeafByPayloadKey returns the first leaf whose payload key (session
// identifier for terminals, url for browsers) matches key, or nil.
func FindLeafByPayloadKey(t Tree, key string) *Node {
	if key == "" {
		return nil
	}
	var found *Node
	t.Root.Walk(func(n *Node) bool {
		if n.IsLeaf() && n.Key() == key {
			found = n
			return false
		}
		return true
	})
	return found
}

// NewLeaf returns the leaf present in next but absent from prev, or nil
// when the mutation added nothing. Payload keys are not consulted, so two
// leaves sharing a key (two browser panes at the same url) stay
// distinguishable.
func NewLeaf(prev, next Tree) *Node {
	var found *Node
	next.Root.Walk(func(n *Node) bool {
		if n.IsLeaf() && (prev.Root == nil || !contains(prev.Root, n.ID)) {
			found = n
			return false
		}
		return true
	})
	return found
}

// DetachedLeaves returns prev's leaves that are absent from next, in
// depth-first order.
func DetachedLeaves(prev, next Tree) []*Node {
	var detached []*Node
	prev.Root.Walk(func(n *Node) bool {
		if n.IsLeaf() && (next.Root == nil || !contains(next.Root, n.ID)) {
			detached = append(detached, n)
		}
		return true
	})
	return detached
}

// AllLeaves returns every leaf in depth-first order.
func AllLeaves(t Tree) []*Node {
	var leaves []*Node
	t.Root.Walk(func(n *Node) bool {
		if n.IsLeaf() {
			leaves = append(leaves, n)
		}
		return true
	})
	return leaves
}

// AllOfKind returns every leaf of the given kind in depth-first order.
func AllOfKind(t Tree, kind Kind) []*Node {
	var leaves []*Node
	t.Root.Walk(func(n *Node) bool {
		if n.IsLeaf() && n.Kind == kind {
			leaves = append(leaves, n)
		}
		return true
	})
	return leaves
}

// contains reports whether the subtree rooted at n holds a node with id.
func contains(n *Node, id string) bool {
	found := false
	n.Walk(func(node *Node) bool {
		if node.ID == id {
			found = true
			return false
		}
		return true
	})
	return found
}
