package bounds

import "github.com/wizterm/wizterm/internal/layout"

// Measurer resolves a tree revision into per-leaf bounds. The production
// implementation is probe-backed (one invisible probe per leaf, measured by
// the host UI runtime); Resolver computes the same geometry from the tree's
// proportional shares and a container rect, which is exact whenever no leaf
// carries an explicit pixel override.
type Measurer interface {
	Measure(tree layout.Tree, container Rect)
}

// Resolver derives leaf bounds by recursively partitioning the container
// along each split's axis according to its size shares, writing results
// through the store's epsilon filter.
type Resolver struct {
	store *Store
}

// NewResolver creates a resolver writing into store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Measure recomputes bounds for every leaf of the tree within container.
func (r *Resolver) Measure(tree layout.Tree, container Rect) {
	if tree.Root == nil {
		return
	}
	r.measureNode(tree.Root, container)
}

// Prune drops cached entries whose leaf is no longer present in the tree.
func (r *Resolver) Prune(tree layout.Tree) {
	present := make(map[string]bool)
	tree.Root.Walk(func(n *layout.Node) bool {
		if n.IsLeaf() {
			present[n.ID] = true
		}
		return true
	})
	for _, id := range r.store.IDs() {
		if !present[id] {
			r.store.Remove(id)
		}
	}
}

func (r *Resolver) measureNode(n *layout.Node, rect Rect) {
	if n.IsLeaf() {
		r.store.Update(n.ID, rect)
		return
	}

	offset := 0.0
	for i, child := range n.Children {
		share := n.Sizes[i] / 100.0
		childRect := rect
		if n.Axis == layout.AxisHorizontal {
			childRect.X = rect.X + offset
			childRect.Width = rect.Width * share
			offset += childRect.Width
		} else {
			childRect.Y = rect.Y + offset
			childRect.Height = rect.Height * share
			offset += childRect.Height
		}
		r.measureNode(child, childRect)
	}
}
