package layout

import (
	"fmt"
	"math"
	"testing"

	"pgregory.net/rapid"
)

// checkInvariants walks the tree verifying the structural invariants that
// must hold after any operation sequence: split sizes sum to 100, every
// split has matched children/sizes with at least two entries, and node IDs
// are unique.
func checkInvariants(t *rapid.T, tree Tree) {
	seen := make(map[string]bool)
	tree.Root.Walk(func(n *Node) bool {
		if seen[n.ID] {
			t.Fatalf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true

		if n.IsLeaf() {
			return true
		}
		if len(n.Children) < 2 {
			t.Fatalf("split %q has %d children", n.ID, len(n.Children))
		}
		if len(n.Sizes) != len(n.Children) {
			t.Fatalf("split %q has %d sizes for %d children", n.ID, len(n.Sizes), len(n.Children))
		}
		sum := 0.0
		for _, s := range n.Sizes {
			sum += s
		}
		if math.Abs(sum-100.0) > 0.01 {
			t.Fatalf("split %q sizes sum to %f", n.ID, sum)
		}
		return true
	})
}

func drawLeaf(t *rapid.T, tree Tree, label string) *Node {
	leaves := AllLeaves(tree)
	if len(leaves) == 0 {
		return nil
	}
	return leaves[rapid.IntRange(0, len(leaves)-1).Draw(t, label)]
}

func drawSplit(t *rapid.T, tree Tree, label string) *Node {
	var splits []*Node
	tree.Root.Walk(func(n *Node) bool {
		if n.IsSplit() {
			splits = append(splits, n)
		}
		return true
	})
	if len(splits) == 0 {
		return nil
	}
	return splits[rapid.IntRange(0, len(splits)-1).Draw(t, label)]
}

func TestTreeInvariantsUnderRandomOperations(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tree := Tree{}
		lastVersion := uint64(0)
		nextSession := 0

		numOps := rapid.IntRange(1, 60).Draw(t, "numOps")
		for i := 0; i < numOps; i++ {
			nextSession++
			payload := Payload{SessionID: fmt.Sprintf("s%d", nextSession)}

			switch op := rapid.IntRange(0, 5).Draw(t, "op"); op {
			case 0:
				edge := EdgeEnd
				if rapid.Bool().Draw(t, "atStart") {
					edge = EdgeStart
				}
				tree = AddLeaf(tree, KindTerminal, payload, edge)
			case 1:
				if leaf := drawLeaf(t, tree, "insertTarget"); leaf != nil {
					tree = InsertAfter(tree, leaf.ID, KindTerminal, payload)
				}
			case 2:
				if leaf := drawLeaf(t, tree, "splitTarget"); leaf != nil {
					axis := AxisHorizontal
					if rapid.Bool().Draw(t, "vertical") {
						axis = AxisVertical
					}
					edge := SplitAfter
					if rapid.Bool().Draw(t, "before") {
						edge = SplitBefore
					}
					tree = SplitAt(tree, leaf.ID, axis, edge, KindTerminal, payload)
				}
			case 3:
				if leaf := drawLeaf(t, tree, "removeTarget"); leaf != nil {
					tree = RemoveLeaf(tree, leaf.ID)
				}
			case 4:
				if split := drawSplit(t, tree, "resizeTarget"); split != nil {
					sizes := make([]float64, len(split.Children))
					remaining := 100.0
					for j := range sizes[:len(sizes)-1] {
						share := rapid.Float64Range(1, remaining-float64(len(sizes)-1-j)).Draw(t, "share")
						sizes[j] = share
						remaining -= share
					}
					sizes[len(sizes)-1] = remaining
					tree = Resize(tree, split.ID, sizes)
				}
			case 5:
				if split := drawSplit(t, tree, "dividerTarget"); split != nil {
					index := rapid.IntRange(0, len(split.Children)-2).Draw(t, "dividerIndex")
					delta := rapid.Float64Range(-30, 30).Draw(t, "delta")
					tree = AdjustDivider(tree, split.ID, index, delta, DefaultMinShare)
				}
			}

			checkInvariants(t, tree)
			if tree.Version < lastVersion {
				t.Fatalf("version went backwards: %d -> %d", lastVersion, tree.Version)
			}
			lastVersion = tree.Version
		}
	})
}

func TestSerializeRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tree := Tree{}
		numOps := rapid.IntRange(1, 30).Draw(t, "numOps")
		for i := 0; i < numOps; i++ {
			payload := Payload{SessionID: fmt.Sprintf("s%d", i)}
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				tree = AddLeaf(tree, KindTerminal, payload, EdgeEnd)
			case 1:
				tree = AddLeaf(tree, KindBrowser, Payload{URL: fmt.Sprintf("https://example.com/%d", i)}, EdgeEnd)
			case 2:
				if leaf := drawLeaf(t, tree, "splitTarget"); leaf != nil {
					tree = SplitAt(tree, leaf.ID, AxisVertical, SplitAfter, KindTerminal, payload)
				}
			}
		}

		restored := Deserialize(Serialize(tree))
		if restored == nil {
			t.Fatalf("round trip rejected a valid tree: %s", Serialize(tree))
		}
		if Serialize(*restored) != Serialize(tree) {
			t.Fatalf("round trip altered the tree")
		}
	})
}
