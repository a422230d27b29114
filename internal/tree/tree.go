// Package tree builds the contiguous Merkle-tree array described in §3 and
// §4.2: 2C-1 digest slots, leaves at [C-1, 2C-2], each level computed in
// parallel from the level below. The array layout replaces pointer-linked
// nodes (as in the teacher's pkg/merkle.MerkleNode) with index arithmetic:
// parent/child lookups are O(1) table lookups against a precomputed
// Topology (see topology.go) and every depth is an independent
// goroutine-parallel range (§4.2 "Parallelism").
package tree

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/MuriData/chkpdedup/internal/digest"
)

// Tree is the digest array for one snapshot, plus the Topology describing
// its shape.
type Tree struct {
	Nodes     []digest.Digest // length 2*ChunkCount-1
	Topo      *Topology
	ChunkSize int
	DataLen   int
}

// ChunkCount returns C, the number of leaves.
func (t *Tree) ChunkCount() int { return t.Topo.ChunkCount() }

// NumNodes returns 2C-1 for a tree with chunkCount chunks.
func NumNodes(chunkCount int) int {
	if chunkCount == 0 {
		return 0
	}
	return 2*chunkCount - 1
}

// ChunkCount computes C = ceil(L/chunkSize).
func ChunkCount(dataLen, chunkSize int) int {
	if dataLen == 0 {
		return 0
	}
	return (dataLen + chunkSize - 1) / chunkSize
}

// ChunkBounds returns the half-open byte range [start, end) spanned by
// chunk c, per §4.1. The last chunk is truncated to dataLen.
func ChunkBounds(c, chunkSize, dataLen int) (start, end int) {
	start = c * chunkSize
	end = start + chunkSize
	if end > dataLen {
		end = dataLen
	}
	return start, end
}

// LeafIndex returns the tree-array index of the leaf for chunk c, given C
// total chunks: C-1+c.
func LeafIndex(c, chunkCount int) int {
	return chunkCount - 1 + c
}

// ChunkOfLeaf is the inverse of LeafIndex.
func ChunkOfLeaf(leafIdx, chunkCount int) int {
	return leafIdx - (chunkCount - 1)
}

// Build constructs the tree array for data split into chunkSize-sized
// chunks. Topology is computed once (O(C), no hashing), then every depth of
// the digest array is hashed by a parallel worker pool via errgroup,
// generalizing the teacher's sync.WaitGroup + channel worker pool
// (pkg/merkle/merkle.go:GenerateSparseMerkleTree) into a
// cancellation-propagating group: a failure partway through a depth aborts
// the whole depth instead of leaving partial results.
//
// Determinism (§4.2): the output is a pure function of (data, chunkSize);
// no goroutine scheduling order affects any node's digest, since each
// worker only ever writes the slot(s) it alone owns.
func Build(ctx context.Context, data []byte, chunkSize int) (*Tree, error) {
	chunkCount := ChunkCount(len(data), chunkSize)
	topo := BuildTopology(chunkCount)
	if chunkCount == 0 {
		return &Tree{Nodes: nil, Topo: topo, ChunkSize: chunkSize, DataLen: len(data)}, nil
	}

	nodes := make([]digest.Digest, topo.NumNodes())

	// Leaf level: hash each chunk's valid bytes (never padded, §4.1).
	if err := parallelFor(ctx, chunkCount, func(c int) error {
		start, end := ChunkBounds(c, chunkSize, len(data))
		nodes[LeafIndex(c, chunkCount)] = digest.Sum(data[start:end])
		return nil
	}); err != nil {
		return nil, err
	}

	// Internal nodes are processed one topology depth at a time, deepest
	// first: every node in a wave has both children already resolved,
	// either by the leaf pass above or by a previously processed (deeper)
	// wave, since the topology guarantees child index > parent index.
	for _, wave := range topo.InternalByDepthDesc() {
		wave := wave
		if err := parallelFor(ctx, len(wave), func(k int) error {
			parent := int(wave[k])
			left, right := topo.Children(parent)
			nodes[parent] = digest.Combine(nodes[left], nodes[right])
			return nil
		}); err != nil {
			return nil, err
		}
	}

	return &Tree{Nodes: nodes, Topo: topo, ChunkSize: chunkSize, DataLen: len(data)}, nil
}

// parallelFor runs fn(i) for i in [0,n) across a bounded worker pool, using
// errgroup so the first error cancels outstanding work and is returned to
// the caller. This is the "parallel for over [a,b)" primitive §5 requires.
func parallelFor(ctx context.Context, n int, fn func(int) error) error {
	if n == 0 {
		return nil
	}
	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	g, _ := errgroup.WithContext(ctx)
	chunkPer := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunkPer
		hi := lo + chunkPer
		if hi > n {
			hi = n
		}
		if lo >= hi {
			continue
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := fn(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
