package layout

import "encoding/json"

// FormatVersion is the current serialization schema version. Deserialize
// rejects unknown versions rather than guessing at forward compatibility.
const FormatVersion = 1

type treeEnvelope struct {
	Version     int       `json:"version"`
	TreeVersion uint64    `json:"tree_version"`
	Root        *nodeJSON `json:"root,omitempty"`
}

type nodeJSON struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"` // "leaf" or "split"
	Kind      string      `json:"kind,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	URL       string      `json:"url,omitempty"`
	Title     string      `json:"title,omitempty"`
	Axis      string      `json:"axis,omitempty"`
	Sizes     []float64   `json:"sizes,omitempty"`
	Children  []*nodeJSON `json:"children,omitempty"`
}

// Serialize encodes the tree as an opaque versioned string. Round-trips
// preserve IDs, kinds, axes, child order, and sizes exactly.
func Serialize(t Tree) string {
	env := treeEnvelope{
		Version:     FormatVersion,
		TreeVersion: t.Version,
		Root:        encodeNode(t.Root),
	}
	data, err := json.Marshal(env)
	if err != nil {
		// The envelope contains only strings, floats and slices; this
		// cannot fail for a structurally valid tree.
		return ""
	}
	return string(data)
}

// Deserialize decodes a serialized tree. Returns nil, never panics, on
// malformed input: bad JSON, missing or unknown version tag, splits with
// fewer than two children, or sizes not matching children. Split sizes
// whose sum drifted in storage are renormalized to 100 on load. Callers
// recover from nil by discarding the layout and starting fresh.
func Deserialize(data string) *Tree {
	var env treeEnvelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil
	}
	if env.Version != FormatVersion {
		return nil
	}

	root, ok := decodeNode(env.Root)
	if !ok {
		return nil
	}
	t := Tree{Root: root, Version: env.TreeVersion}

	if !validIDs(t) {
		return nil
	}
	return &t
}

func encodeNode(n *Node) *nodeJSON {
	if n == nil {
		return nil
	}
	if n.IsLeaf() {
		return &nodeJSON{
			ID:        n.ID,
			Type:      "leaf",
			Kind:      n.Kind.String(),
			SessionID: n.Payload.SessionID,
			URL:       n.Payload.URL,
			Title:     n.Payload.Title,
		}
	}

	children := make([]*nodeJSON, len(n.Children))
	for i, child := range n.Children {
		children[i] = encodeNode(child)
	}
	return &nodeJSON{
		ID:       n.ID,
		Type:     "split",
		Axis:     n.Axis.String(),
		Sizes:    append([]float64(nil), n.Sizes...),
		Children: children,
	}
}

func decodeNode(j *nodeJSON) (*Node, bool) {
	if j == nil {
		return nil, true
	}
	if j.ID == "" {
		return nil, false
	}

	switch j.Type {
	case "leaf":
		var kind Kind
		switch j.Kind {
		case "terminal":
			kind = KindTerminal
		case "browser":
			kind = KindBrowser
		default:
			return nil, false
		}
		return &Node{
			ID:   j.ID,
			Kind: kind,
			Payload: Payload{
				SessionID: j.SessionID,
				URL:       j.URL,
				Title:     j.Title,
			},
		}, true

	case "split":
		if len(j.Children) < 2 || len(j.Sizes) != len(j.Children) {
			return nil, false
		}
		var axis Axis
		switch j.Axis {
		case "horizontal":
			axis = AxisHorizontal
		case "vertical":
			axis = AxisVertical
		default:
			return nil, false
		}
		children := make([]*Node, len(j.Children))
		for i, childJSON := range j.Children {
			child, ok := decodeNode(childJSON)
			if !ok || child == nil {
				return nil, false
			}
			children[i] = child
		}
		return &Node{
			ID:       j.ID,
			Axis:     axis,
			Children: children,
			Sizes:    normalizeSizes(j.Sizes),
		}, true

	default:
		return nil, false
	}
}

// validIDs rejects trees with duplicate node IDs.
func validIDs(t Tree) bool {
	seen := make(map[string]bool)
	unique := true
	t.Root.Walk(func(n *Node) bool {
		if seen[n.ID] {
			unique = false
			return false
		}
		seen[n.ID] = true
		return true
	})
	return unique
}
