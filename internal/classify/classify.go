// Package classify implements §4.3's TreeDedup classifier and §4.3.1's root
// compaction: every tree node is labeled FirstOccurrence, ShiftedDuplicate or
// Identical, then only the maximal roots of monochromatic subtrees are kept
// for emission. This is the algorithmic heart the spec calls out as "the
// interesting algorithm"; everything else in this module exists to feed it
// (digest.Map) or consume its output (internal/wire, dedup.TreeDedup).
package classify

import (
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/MuriData/chkpdedup/internal/config"
	"github.com/MuriData/chkpdedup/internal/deduperr"
	"github.com/MuriData/chkpdedup/internal/digest"
	"github.com/MuriData/chkpdedup/internal/ref"
	"github.com/MuriData/chkpdedup/internal/tree"
)

// Class is one of the three provenance labels §4.3 assigns to every node.
type Class uint8

const (
	Identical Class = iota
	FirstOccurrence
	ShiftedDuplicate
)

// Result is the outcome of classifying and compacting one snapshot's tree.
type Result struct {
	// FirstOccRoots and ShiftDuplRoots are the two emitted, ascending-sorted
	// vectors §4.3.1 calls first_ocur_roots / shift_dupl_roots.
	FirstOccRoots  []int
	ShiftDuplRoots []int
	// Sources gives, for every node in ShiftDuplRoots, the NodeID its digest
	// was first claimed by (the wire repeat table's prev_node).
	Sources map[int]ref.NodeID
}

// Classify labels every node of tr, then compacts the labels into maximal
// roots per §4.3.1, using policy for the mixed-children tie-break.
//
// fom is the deduplicator's cross-snapshot first-occurrence map; it is
// mutated (append-only) by this call. prevNodes is the immediately prior
// snapshot's digest array (nil for a baseline / first-ever snapshot), used
// for the Identical check.
//
// Root compaction here only ever inserts a node's digest into fom once it
// has decided that node IS the maximal root to emit — an internal node whose
// two children's digests differ is never itself inserted, since it will
// never be reported; only the (possibly much deeper) nodes where a merge
// finally fails, or the leaves, get a map entry. This matters for a subtree
// where every leaf byte is identical (§8 scenario 4): every level up to the
// root combines two *equal* child digests, so the whole subtree merges into
// one root, and exactly one digest (the root's) is ever inserted for it.
func Classify(tr *tree.Tree, curID uint32, fom *digest.Map, prevNodes []digest.Digest, policy config.RootPolicy) (*Result, error) {
	numNodes := len(tr.Nodes)
	if numNodes == 0 {
		return &Result{Sources: map[int]ref.NodeID{}}, nil
	}

	// identical marks which nodes' whole subtree is byte-for-byte unchanged
	// from the immediately prior snapshot (§4.3's Identical class): a pure
	// function of this tree's digests and prevNodes, independent of fom, so
	// it's cheapest to compute once, bottom-up, before compaction runs. A
	// bitset.BitSet holds the "covered" flag for every node rather than a
	// []bool, mirroring dedup.BasicDedup's changed-chunk bitset.
	identical := bitset.New(uint(numNodes))
	if prevNodes != nil {
		chunkCount := tr.ChunkCount()
		for c := 0; c < chunkCount; c++ {
			leaf := tree.LeafIndex(c, chunkCount)
			if tr.Nodes[leaf] == prevNodes[leaf] {
				identical.Set(uint(leaf))
			}
		}
		for _, wave := range tr.Topo.InternalByDepthDesc() {
			for _, n32 := range wave {
				n := int(n32)
				left, right := tr.Topo.Children(n)
				if tr.Nodes[n] == prevNodes[n] && identical.Test(uint(left)) && identical.Test(uint(right)) {
					identical.Set(uint(n))
				}
			}
		}
	}

	var firstOcc, shiftDupl []int
	sources := make(map[int]ref.NodeID)

	classifyAndEmit := func(n int) error {
		owner, outcome := fom.Insert(tr.Nodes[n], ref.NodeID{Node: uint32(n), Tree: curID})
		switch outcome {
		case digest.Inserted:
			firstOcc = append(firstOcc, n)
		case digest.AlreadyPresent:
			shiftDupl = append(shiftDupl, n)
			sources[n] = owner
		case digest.CapacityExhausted:
			return deduperr.Newf(deduperr.ResourceError, "classify", "first-occurrence map exhausted at node %d (capacity %d)", n, fom.Cap())
		}
		return nil
	}

	// decide walks top-down: n is the maximal monochromatic root if its two
	// children carry an identical digest (§4.3.1 step 2's "both children
	// have the same class" — equal content is what makes two sibling
	// subtrees the same class, regardless of which one the global map ends
	// up actually claiming) and neither child is itself Identical. A
	// mismatch recurses into each child separately; reaching a leaf always
	// terminates in an individual classification. This walk alone decides
	// ownership under LowOffset (fom.Insert's atomic-first-wins keeps
	// whichever root decide happens to visit first); LowRoot's tie-break
	// runs as a separate pass below, via reconcileLowRoot.
	var decide func(n int) error
	decide = func(n int) error {
		if identical.Test(uint(n)) {
			return nil
		}
		if tr.Topo.IsLeaf(n) {
			return classifyAndEmit(n)
		}
		left, right := tr.Topo.Children(n)
		if !identical.Test(uint(left)) && !identical.Test(uint(right)) && tr.Nodes[left] == tr.Nodes[right] {
			return classifyAndEmit(n)
		}
		if err := decide(left); err != nil {
			return err
		}
		return decide(right)
	}
	if err := decide(tr.Topo.Root()); err != nil {
		return nil, err
	}

	if policy == config.LowRoot {
		firstOcc, shiftDupl = reconcileLowRoot(tr, curID, firstOcc, shiftDupl, sources)
	}

	sort.Ints(firstOcc)
	sort.Ints(shiftDupl)

	return &Result{FirstOccRoots: firstOcc, ShiftDuplRoots: shiftDupl, Sources: sources}, nil
}

// reconcileLowRoot re-settles which root owns a digest when two or more
// roots emitted from the SAME tree collide (both first occurrences of an
// equal subtree, discovered in decide's walk order). Under LowOffset the
// map's atomic-first-wins rule leaves the winner as whichever root decide
// happened to visit first — an artifact of walk order, not a chosen
// tie-break. LowRoot instead makes the smallest NodeID (§4.3.1's "smallest
// NodeID lexicographically, tree first then node", ref.NodeID.Less) the
// canonical owner regardless of discovery order, and repoints every other
// colliding root in this tree at it.
func reconcileLowRoot(tr *tree.Tree, curID uint32, firstOcc, shiftDupl []int, sources map[int]ref.NodeID) ([]int, []int) {
	groups := make(map[digest.Digest][]int)
	inFirstOcc := make(map[int]bool, len(firstOcc))
	for _, n := range firstOcc {
		inFirstOcc[n] = true
		groups[tr.Nodes[n]] = append(groups[tr.Nodes[n]], n)
	}
	for _, n := range shiftDupl {
		if owner := sources[n]; owner.Tree == curID {
			groups[tr.Nodes[n]] = append(groups[tr.Nodes[n]], n)
		}
	}

	// promoted/demoted track roots whose class flips relative to what decide
	// and fom.Insert's discovery order originally assigned.
	promoted := make(map[int]bool)
	demoted := make(map[int]bool)
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		canonical := members[0]
		for _, n := range members[1:] {
			if (ref.NodeID{Node: uint32(n), Tree: curID}).Less(ref.NodeID{Node: uint32(canonical), Tree: curID}) {
				canonical = n
			}
		}
		canonicalID := ref.NodeID{Node: uint32(canonical), Tree: curID}
		for _, n := range members {
			if n == canonical {
				delete(sources, n)
				if !inFirstOcc[n] {
					promoted[n] = true
				}
				continue
			}
			sources[n] = canonicalID
			if inFirstOcc[n] {
				demoted[n] = true
			}
		}
	}
	if len(promoted) == 0 && len(demoted) == 0 {
		return firstOcc, shiftDupl
	}

	newFirstOcc := make([]int, 0, len(firstOcc)+len(promoted))
	for _, n := range firstOcc {
		if !demoted[n] {
			newFirstOcc = append(newFirstOcc, n)
		}
	}
	for n := range promoted {
		newFirstOcc = append(newFirstOcc, n)
	}

	newShiftDupl := make([]int, 0, len(shiftDupl)+len(demoted))
	for _, n := range shiftDupl {
		if !promoted[n] {
			newShiftDupl = append(newShiftDupl, n)
		}
	}
	for n := range demoted {
		newShiftDupl = append(newShiftDupl, n)
	}
	return newFirstOcc, newShiftDupl
}
