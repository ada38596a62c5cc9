package layout

import "math"

// SizeTolerance is the floating tolerance on the sum-to-100 invariant.
const SizeTolerance = 0.01

// DefaultMinShare is the minimum percentage share a divider drag may leave
// any participant with.
const DefaultMinShare = 10.0

// Tree is one immutable revision of the pane layout. The zero value is the
// canonical empty tree. Version increases strictly with every applied
// mutation; rejected or no-op mutations return the input revision unchanged.
type Tree struct {
	Root    *Node
	Version uint64
}

// IsEmpty reports whether the tree holds no panes.
func (t Tree) IsEmpty() bool {
	return t.Root == nil
}

// CreateWithLeaf builds a single-leaf tree at version 1.
func CreateWithLeaf(kind Kind, payload Payload) Tree {
	return Tree{Root: newLeaf(kind, payload), Version: 1}
}

// AddLeaf appends a pane at the requested edge of the workspace. If the root
// is a horizontal split the new leaf joins it with an equal share of 100/(n+1)
// and every sibling scaled by n/(n+1); shares are never recomputed from pixel
// measurements so repeated insertions stay order-independent. Otherwise the
// existing root and the new leaf are wrapped into a fresh 50/50 horizontal
// split, ordered by edge.
func AddLeaf(t Tree, kind Kind, payload Payload, edge Edge) Tree {
	leaf := newLeaf(kind, payload)

	if t.Root == nil {
		return Tree{Root: leaf, Version: t.Version + 1}
	}

	if t.Root.IsSplit() && t.Root.Axis == AxisHorizontal {
		n := len(t.Root.Children)
		scale := float64(n) / float64(n+1)

		children := make([]*Node, 0, n+1)
		sizes := make([]float64, 0, n+1)
		if edge == EdgeStart {
			children = append(children, leaf)
			sizes = append(sizes, 100.0/float64(n+1))
		}
		for i, child := range t.Root.Children {
			children = append(children, child)
			sizes = append(sizes, t.Root.Sizes[i]*scale)
		}
		if edge == EdgeEnd {
			children = append(children, leaf)
			sizes = append(sizes, 100.0/float64(n+1))
		}

		root := &Node{ID: t.Root.ID, Axis: AxisHorizontal, Children: children, Sizes: sizes}
		return Tree{Root: root, Version: t.Version + 1}
	}

	children := []*Node{t.Root, leaf}
	if edge == EdgeStart {
		children = []*Node{leaf, t.Root}
	}
	root := &Node{ID: newID(), Axis: AxisHorizontal, Children: children, Sizes: []float64{50, 50}}
	return Tree{Root: root, Version: t.Version + 1}
}

// InsertAfter adds a pane as a top-level sibling immediately after the
// top-level child containing targetID, renormalizing every top-level share
// to 100/n. When the root is not a horizontal split or the target cannot be
// located, it falls back to wrapping the whole tree in a new 50/50
// horizontal split with the new leaf second.
func InsertAfter(t Tree, targetID string, kind Kind, payload Payload) Tree {
	leaf := newLeaf(kind, payload)

	if t.Root == nil {
		return Tree{Root: leaf, Version: t.Version + 1}
	}

	if t.Root.IsSplit() && t.Root.Axis == AxisHorizontal {
		at := -1
		for i, child := range t.Root.Children {
			if contains(child, targetID) {
				at = i
				break
			}
		}
		if at >= 0 {
			n := len(t.Root.Children) + 1
			children := make([]*Node, 0, n)
			children = append(children, t.Root.Children[:at+1]...)
			children = append(children, leaf)
			children = append(children, t.Root.Children[at+1:]...)

			sizes := make([]float64, n)
			for i := range sizes {
				sizes[i] = 100.0 / float64(n)
			}

			root := &Node{ID: t.Root.ID, Axis: AxisHorizontal, Children: children, Sizes: sizes}
			return Tree{Root: root, Version: t.Version + 1}
		}
	}

	root := &Node{ID: newID(), Axis: AxisHorizontal, Children: []*Node{t.Root, leaf}, Sizes: []float64{50, 50}}
	return Tree{Root: root, Version: t.Version + 1}
}

// SplitAt replaces the target node in place with a new split along the given
// axis whose two 50/50 children are the target and a fresh leaf, ordered by
// edge. Sibling sizes outside the replaced subtree are untouched. Missing
// targets are a structural no-op.
func SplitAt(t Tree, targetID string, axis Axis, edge SplitEdge, kind Kind, payload Payload) Tree {
	if t.Root == nil {
		return t
	}

	leaf := newLeaf(kind, payload)
	root, replaced := replaceNode(t.Root, targetID, func(target *Node) *Node {
		children := []*Node{target, leaf}
		if edge == SplitBefore {
			children = []*Node{leaf, target}
		}
		return &Node{ID: newID(), Axis: axis, Children: children, Sizes: []float64{50, 50}}
	})
	if !replaced {
		return t
	}
	return Tree{Root: root, Version: t.Version + 1}
}

// RemoveLeaf drops the identified node. Removing the sole root content
// yields the canonical empty tree. Otherwise the parent split loses the
// matching child and size entry, remaining siblings are renormalized to sum
// to 100, and any split left with a single child collapses to that child,
// rippling upward. Missing IDs are a no-op.
func RemoveLeaf(t Tree, id string) Tree {
	if t.Root == nil {
		return t
	}
	if t.Root.ID == id {
		return Tree{Root: nil, Version: t.Version + 1}
	}

	root, removed := removeNode(t.Root, id)
	if !removed {
		return t
	}
	return Tree{Root: root, Version: t.Version + 1}
}

// Resize replaces the sizes of the identified split verbatim. Supplying a
// normalized, same-length array is the caller's contract: interactive drag
// resize writes provisional sizes on every pointer move and cannot pay a
// revalidation cost. A wrong-length array is a no-op; a sum drifted past
// tolerance is renormalized on write instead of panicking.
func Resize(t Tree, splitID string, newSizes []float64) Tree {
	if t.Root == nil {
		return t
	}

	root, replaced := replaceNode(t.Root, splitID, func(target *Node) *Node {
		if !target.IsSplit() || len(newSizes) != len(target.Children) {
			return nil
		}
		sizes := normalizeSizes(newSizes)
		return &Node{ID: target.ID, Axis: target.Axis, Children: target.Children, Sizes: sizes}
	})
	if !replaced {
		return t
	}
	return Tree{Root: root, Version: t.Version + 1}
}

// AdjustDivider moves delta percentage points from child index+1 to child
// index of the identified split. The adjustment is rejected, prior sizes
// untouched, if either participant would drop below minShare.
func AdjustDivider(t Tree, splitID string, index int, delta, minShare float64) Tree {
	if t.Root == nil {
		return t
	}

	root, replaced := replaceNode(t.Root, splitID, func(target *Node) *Node {
		if !target.IsSplit() || index < 0 || index+1 >= len(target.Sizes) {
			return nil
		}
		a := target.Sizes[index] + delta
		b := target.Sizes[index+1] - delta
		if a < minShare || b < minShare {
			return nil
		}
		sizes := append([]float64(nil), target.Sizes...)
		sizes[index] = a
		sizes[index+1] = b
		return &Node{ID: target.ID, Axis: target.Axis, Children: target.Children, Sizes: sizes}
	})
	if !replaced {
		return t
	}
	return Tree{Root: root, Version: t.Version + 1}
}

// RepointLeaf swaps the payload of the identified leaf without changing tree
// shape, used when exchanging two terminals' contents.
func RepointLeaf(t Tree, id string, payload Payload) Tree {
	if t.Root == nil {
		return t
	}

	root, replaced := replaceNode(t.Root, id, func(target *Node) *Node {
		if !target.IsLeaf() {
			return nil
		}
		return &Node{ID: target.ID, Kind: target.Kind, Payload: payload}
	})
	if !replaced {
		return t
	}
	return Tree{Root: root, Version: t.Version + 1}
}

// replaceNode rebuilds the path from root to the node matching id, applying
// fn to it. fn returning nil rejects the replacement. Only the spine is
// copied; untouched subtrees are shared between revisions.
func replaceNode(n *Node, id string, fn func(*Node) *Node) (*Node, bool) {
	if n.ID == id {
		replacement := fn(n)
		if replacement == nil {
			return n, false
		}
		return replacement, true
	}
	for i, child := range n.Children {
		newChild, replaced := replaceNode(child, id, fn)
		if !replaced {
			continue
		}
		children := append([]*Node(nil), n.Children...)
		children[i] = newChild
		return &Node{ID: n.ID, Axis: n.Axis, Children: children, Sizes: n.Sizes}, true
	}
	return n, false
}

// removeNode rebuilds the tree without the node matching id. Collapse is
// strictly bottom-up: the immediate parent is checked first, and a parent
// left with one child is itself replaced by that child on the way up.
func removeNode(n *Node, id string) (*Node, bool) {
	if n.IsLeaf() {
		return n, false
	}
	for i, child := range n.Children {
		if child.ID == id {
			children := make([]*Node, 0, len(n.Children)-1)
			children = append(children, n.Children[:i]...)
			children = append(children, n.Children[i+1:]...)
			if len(children) == 1 {
				return children[0], true
			}
			sizes := make([]float64, 0, len(n.Sizes)-1)
			sizes = append(sizes, n.Sizes[:i]...)
			sizes = append(sizes, n.Sizes[i+1:]...)
			return &Node{ID: n.ID, Axis: n.Axis, Children: children, Sizes: normalizeSizes(sizes)}, true
		}

		newChild, removed := removeNode(child, id)
		if !removed {
			continue
		}
		children := append([]*Node(nil), n.Children...)
		children[i] = newChild
		if len(children) == 1 {
			return children[0], true
		}
		return &Node{ID: n.ID, Axis: n.Axis, Children: children, Sizes: n.Sizes}, true
	}
	return n, false
}

// normalizeSizes scales shares so they sum to 100. Degenerate input (zero or
// non-finite sum) falls back to equal shares.
func normalizeSizes(sizes []float64) []float64 {
	sum := 0.0
	for _, s := range sizes {
		sum += s
	}
	out := make([]float64, len(sizes))
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		for i := range out {
			out[i] = 100.0 / float64(len(out))
		}
		return out
	}
	if math.Abs(sum-100.0) <= SizeTolerance {
		copy(out, sizes)
		return out
	}
	for i, s := range sizes {
		out[i] = s * 100.0 / sum
	}
	return out
}
