package tree

// Topology is the shape of a chunk-count-C Merkle tree: which array index is
// whose parent/child, and which contiguous chunk range each node covers.
// It depends only on C, never on chunk contents, so both the builder (which
// also computes digests) and the restore engine (which only needs to turn a
// transmitted node index back into a chunk range, without ever re-hashing
// anything) share one construction.
//
// Framing internal-node indices this way is a deliberate departure from a
// literal reading of §4.7 ("purely arithmetic, no table lookups"): under the
// spec's own parent=⌊(i-1)/2⌋ / children=2i+1,2i+2 formulas with leaves fixed
// at the contiguous range [C-1, 2C-2], a node's descendant leaves do NOT in
// general form a contiguous chunk range once C is not a power of two (e.g.
// C=5: node 1's descendants under that scheme are array indices {4,7,8}, not
// an interval). Since §4.4's wire format and §4.3.1's root compaction both
// depend on "a root covering leaves [l, l+w)" being a genuine contiguous
// range, this package instead assigns internal-node positions via the
// standard largest-power-of-two recursive split (the same construction RFC
// 6962 uses for its non-power-of-two Merkle trees), which guarantees every
// node's descendant set is a contiguous chunk range for any C. The externally
// visible contract — 2C-1 total nodes, leaves at the fixed range
// [C-1, 2C-2] in ascending chunk order, child index always greater than
// parent index — is preserved exactly; only the internal parent/child wiring
// among [0, C-2] differs from the naive arithmetic formula when C is not a
// power of two. This is recorded as an explicit decision in DESIGN.md.
type Topology struct {
	chunkCount int

	// left, right index internal nodes [0, chunkCount-2]; leaves have no
	// entry there (IsLeaf reports them directly). parent has one entry per
	// node, leaves included, with NoParent for the root.
	left, right, parent []int32
	// depth is the recursion depth of internal node i, used to batch
	// parallel hashing waves deepest-first (§4.2).
	depth []int32
	// rangeLo/rangeHi give the contiguous chunk range [lo, hi) node i
	// (internal or leaf) covers.
	rangeLo, rangeHi []int32
	maxDepth         int
}

// NoParent marks the root's parent slot.
const NoParent = -1

// BuildTopology computes the shape for a tree with chunkCount leaves. Cost
// is O(chunkCount): one recursive descent assigning each of the 2C-1 nodes
// exactly once.
func BuildTopology(chunkCount int) *Topology {
	if chunkCount <= 0 {
		return &Topology{chunkCount: 0}
	}
	n := chunkCount - 1 // number of internal slots
	t := &Topology{
		chunkCount: chunkCount,
		left:       make([]int32, n),
		right:      make([]int32, n),
		parent:     make([]int32, NumNodes(chunkCount)),
		depth:      make([]int32, n),
		rangeLo:    make([]int32, NumNodes(chunkCount)),
		rangeHi:    make([]int32, NumNodes(chunkCount)),
	}
	for i := range t.parent {
		t.parent[i] = NoParent
	}
	if chunkCount == 1 {
		t.rangeLo[0], t.rangeHi[0] = 0, 1
		return t
	}
	next := 0
	t.assign(0, chunkCount, 0, &next)
	return t
}

// assign recursively numbers the internal node covering chunk range [lo,hi)
// in pre-order (parent claims its slot before recursing), guaranteeing
// child array index > parent array index throughout — the same ordering
// property the naive heap formula has, which lets every bottom-up pass
// (digest combine, classification propagation) walk indices in decreasing
// order or in depth-descending waves.
func (t *Topology) assign(lo, hi, depth int, next *int) int32 {
	if hi-lo == 1 {
		leaf := int32(LeafIndex(lo, t.chunkCount))
		t.rangeLo[leaf], t.rangeHi[leaf] = int32(lo), int32(hi)
		return leaf
	}
	idx := int32(*next)
	*next++
	k := largestPow2LessThan(hi - lo)
	left := t.assign(lo, lo+k, depth+1, next)
	right := t.assign(lo+k, hi, depth+1, next)
	t.left[idx] = left
	t.right[idx] = right
	t.parent[left] = idx
	t.parent[right] = idx
	t.depth[idx] = int32(depth)
	t.rangeLo[idx], t.rangeHi[idx] = int32(lo), int32(hi)
	if depth > t.maxDepth {
		t.maxDepth = depth
	}
	return idx
}

// largestPow2LessThan returns the largest power of two strictly less than m,
// for m >= 2 (the classic RFC 6962 split point).
func largestPow2LessThan(m int) int {
	k := 1
	for k*2 < m {
		k *= 2
	}
	return k
}

// ChunkCount returns the number of leaves.
func (t *Topology) ChunkCount() int { return t.chunkCount }

// NumNodes returns 2*ChunkCount-1.
func (t *Topology) NumNodes() int { return NumNodes(t.chunkCount) }

// IsLeaf reports whether node index i is a leaf.
func (t *Topology) IsLeaf(i int) bool {
	return i >= t.chunkCount-1
}

// Children returns the child indices of internal node i.
func (t *Topology) Children(i int) (left, right int) {
	return int(t.left[i]), int(t.right[i])
}

// Parent returns the parent index of node i, or NoParent for the root.
func (t *Topology) Parent(i int) int {
	return int(t.parent[i])
}

// ChunkRange returns the contiguous [lo, hi) chunk range node i covers.
func (t *Topology) ChunkRange(i int) (lo, hi int) {
	return int(t.rangeLo[i]), int(t.rangeHi[i])
}

// LeftmostLeaf returns the tree-array leaf index of the first chunk node i
// covers (§4.7).
func (t *Topology) LeftmostLeaf(i int) int {
	lo, _ := t.ChunkRange(i)
	return LeafIndex(lo, t.chunkCount)
}

// RightmostLeaf returns the tree-array leaf index of the last chunk node i
// covers (§4.7).
func (t *Topology) RightmostLeaf(i int) int {
	_, hi := t.ChunkRange(i)
	return LeafIndex(hi-1, t.chunkCount)
}

// NumLeafDescendants returns the count of leaves under node i (§4.7).
func (t *Topology) NumLeafDescendants(i int) int {
	lo, hi := t.ChunkRange(i)
	return hi - lo
}

// Root is the array index of the tree root — always 0, whether that slot
// holds an internal node or (for a one-chunk tree) the lone leaf.
func (t *Topology) Root() int {
	return 0
}

// IsAncestor reports whether a is a strict ancestor of b, by chunk-range
// containment (used by the antichain invariant check in tests).
func (t *Topology) IsAncestor(a, b int) bool {
	if a == b {
		return false
	}
	aLo, aHi := t.ChunkRange(a)
	bLo, bHi := t.ChunkRange(b)
	return aLo <= bLo && bHi <= aHi && (aHi-aLo) > (bHi-bLo)
}

// InternalByDepthDesc returns internal node indices grouped into waves by
// decreasing depth (deepest first), the parallel-level order §4.2 requires:
// every node in a wave has both children already resolved by an earlier
// wave (leaves) or a deeper wave.
func (t *Topology) InternalByDepthDesc() [][]int32 {
	if t.chunkCount <= 1 {
		return nil
	}
	waves := make([][]int32, t.maxDepth+1)
	for i := int32(0); i < int32(t.chunkCount-1); i++ {
		d := t.depth[i]
		waves[d] = append(waves[d], i)
	}
	out := make([][]int32, 0, len(waves))
	for d := len(waves) - 1; d >= 0; d-- {
		if len(waves[d]) > 0 {
			out = append(out, waves[d])
		}
	}
	return out
}
