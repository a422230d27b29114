package tree

import "testing"

// TestTopologyContiguousRanges checks the exact C=5 case worked out by hand
// in DESIGN.md: under the naive heap formula, node 1's descendant leaves are
// {4,7,8} (not contiguous). This topology must instead give every node a
// genuine contiguous chunk range, for every C from 1 to 20.
func TestTopologyContiguousRanges(t *testing.T) {
	for c := 1; c <= 20; c++ {
		topo := BuildTopology(c)
		for i := 0; i < topo.NumNodes(); i++ {
			lo, hi := topo.ChunkRange(i)
			if hi <= lo {
				t.Fatalf("C=%d node %d: empty or inverted range [%d,%d)", c, i, lo, hi)
			}
			if lo < 0 || hi > c {
				t.Fatalf("C=%d node %d: range [%d,%d) out of bounds", c, i, lo, hi)
			}
			if topo.IsLeaf(i) {
				if hi-lo != 1 {
					t.Fatalf("C=%d leaf %d: range width %d, want 1", c, i, hi-lo)
				}
				continue
			}
			left, right := topo.Children(i)
			lLo, lHi := topo.ChunkRange(left)
			rLo, rHi := topo.ChunkRange(right)
			if lHi != rLo {
				t.Fatalf("C=%d node %d: children ranges not adjacent [%d,%d) [%d,%d)", c, i, lLo, lHi, rLo, rHi)
			}
			if lLo != lo || rHi != hi {
				t.Fatalf("C=%d node %d: children don't partition parent range", c, i)
			}
		}
	}
}

func TestTopologyExternalContract(t *testing.T) {
	for c := 2; c <= 12; c++ {
		topo := BuildTopology(c)
		if topo.NumNodes() != 2*c-1 {
			t.Fatalf("C=%d: NumNodes=%d, want %d", c, topo.NumNodes(), 2*c-1)
		}
		for leaf := 0; leaf < c; leaf++ {
			idx := LeafIndex(leaf, c)
			if idx != c-1+leaf {
				t.Fatalf("C=%d: LeafIndex(%d)=%d, want %d", c, leaf, idx, c-1+leaf)
			}
			if !topo.IsLeaf(idx) {
				t.Fatalf("C=%d: index %d should be a leaf", c, idx)
			}
		}
		for i := 0; i < c-1; i++ {
			left, right := topo.Children(i)
			if left <= i || right <= i {
				t.Fatalf("C=%d node %d: children %d,%d must both exceed parent index", c, i, left, right)
			}
			if topo.Parent(left) != i || topo.Parent(right) != i {
				t.Fatalf("C=%d node %d: child->parent mismatch", c, i)
			}
		}
	}
}

func TestTopologyInternalByDepthDescOrdering(t *testing.T) {
	topo := BuildTopology(13)
	seen := make(map[int32]bool)
	for _, wave := range topo.InternalByDepthDesc() {
		for _, n := range wave {
			left, right := topo.Children(int(n))
			for _, child := range []int{left, right} {
				if !topo.IsLeaf(child) && !seen[int32(child)] {
					t.Fatalf("node %d processed before internal child %d", n, child)
				}
			}
			seen[n] = true
		}
	}
	if len(seen) != 13-1 {
		t.Fatalf("got %d internal nodes processed, want %d", len(seen), 13-1)
	}
}

func TestIsAncestor(t *testing.T) {
	topo := BuildTopology(5)
	root := topo.Root()
	for i := 1; i < topo.NumNodes(); i++ {
		if !topo.IsAncestor(root, i) {
			t.Fatalf("root should be an ancestor of every other node, failed for %d", i)
		}
	}
	if topo.IsAncestor(root, root) {
		t.Fatalf("a node is not its own ancestor")
	}
}
