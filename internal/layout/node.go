// Package layout implements the logical pane tree: an immutable structure
// describing how terminal and browser panes are split across the workspace.
// All mutation operations are pure; they return a new tree and never touch
// the input, so callers can hold references to prior revisions for undo or
// concurrent reads.
package layout

import "github.com/google/uuid"

// Kind identifies what a leaf pane renders.
type Kind int

const (
	KindTerminal Kind = iota
	KindBrowser
)

// String returns the serialized name of the kind.
func (k Kind) String() string {
	if k == KindBrowser {
		return "browser"
	}
	return "terminal"
}

// Axis is the direction along which a split arranges its children.
type Axis int

const (
	AxisHorizontal Axis = iota
	AxisVertical
)

// String returns the serialized name of the axis.
func (a Axis) String() string {
	if a == AxisVertical {
		return "vertical"
	}
	return "horizontal"
}

// Edge selects which end of a split an insertion targets.
type Edge int

const (
	EdgeStart Edge = iota
	EdgeEnd
)

// SplitEdge selects where the new pane lands relative to the split target.
type SplitEdge int

const (
	SplitBefore SplitEdge = iota
	SplitAfter
)

// Payload carries the leaf's content reference: a session identifier for
// terminals, a url/title pair for browser views. The session identifier is
// a resource key into the pane registry; it is distinct from the node ID
// even though both are uuids by convention, so a leaf can be re-pointed to
// a different resource without changing tree shape.
type Payload struct {
	SessionID string
	URL       string
	Title     string
}

// Node is a tagged union: a leaf holding one pane, or a split holding at
// least two ordered children with proportional size shares summing to 100.
type Node struct {
	ID string

	// Leaf fields.
	Kind    Kind
	Payload Payload

	// Split fields. A node is a split iff it has children.
	Axis     Axis
	Children []*Node
	Sizes    []float64
}

// IsLeaf reports whether the node holds a pane rather than children.
func (n *Node) IsLeaf() bool {
	return n != nil && len(n.Children) == 0
}

// IsSplit reports whether the node arranges children along an axis.
func (n *Node) IsSplit() bool {
	return n != nil && len(n.Children) > 0
}

// Key returns the payload key used for resource lookups: the session
// identifier for terminal leaves, the url for browser leaves.
func (n *Node) Key() string {
	if n == nil || !n.IsLeaf() {
		return ""
	}
	if n.Kind == KindBrowser {
		return n.Payload.URL
	}
	return n.Payload.SessionID
}

// Walk traverses the subtree depth-first, children in array order.
// Returns early if fn returns false.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	for _, child := range n.Children {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// newID generates node identifiers. Overridable in tests that need
// deterministic trees.
var newID = func() string { return uuid.NewString() }

// newLeaf builds a leaf node with a fresh ID.
func newLeaf(kind Kind, payload Payload) *Node {
	return &Node{ID: newID(), Kind: kind, Payload: payload}
}
