package dedup

import (
	"context"
	"sort"

	"github.com/MuriData/chkpdedup/internal/classify"
	"github.com/MuriData/chkpdedup/internal/config"
	"github.com/MuriData/chkpdedup/internal/digest"
	"github.com/MuriData/chkpdedup/internal/logx"
	"github.com/MuriData/chkpdedup/internal/tree"
	"github.com/MuriData/chkpdedup/internal/wire"
)

// TreeDedup is the Merkle-forest deduplicator of §4.2-§4.4: per snapshot it
// builds a tree (internal/tree), classifies and compacts it (internal/classify),
// and serializes the compacted roots (internal/wire).
type TreeDedup struct {
	cfg         config.Config
	mapCapacity int
	log         logx.Logger

	life      lifecycle
	fom       *digest.Map
	prevNodes []digest.Digest
}

// NewTreeDedup constructs a TreeDedup. mapCapacity sizes the cross-snapshot
// first-occurrence map (§4.3.2, config.MapCapacity); it is re-allocated at
// this size every time a baseline clears it.
func NewTreeDedup(cfg config.Config, mapCapacity int, log logx.Logger) (*TreeDedup, error) {
	if err := cfg.Validate(0); err != nil {
		return nil, err
	}
	return &TreeDedup{
		cfg:         cfg,
		mapCapacity: mapCapacity,
		log:         log,
		fom:         digest.NewMap(mapCapacity),
	}, nil
}

// Checkpoint implements Dedup.
func (d *TreeDedup) Checkpoint(ctx context.Context, data []byte, makeBaseline bool) (*wire.Diff, Stats, error) {
	if err := d.cfg.Validate(len(data)); err != nil {
		return nil, Stats{}, err
	}
	chkptID, refID := d.life.advance(makeBaseline)

	prevNodes := d.prevNodes
	if makeBaseline {
		d.fom = digest.NewMap(d.mapCapacity)
		prevNodes = nil
	}

	tr, err := tree.Build(ctx, data, d.cfg.ChunkSize)
	if err != nil {
		return nil, Stats{}, err
	}
	result, err := classify.Classify(tr, chkptID, d.fom, prevNodes, d.cfg.RootPolicy)
	if err != nil {
		return nil, Stats{}, err
	}
	d.prevNodes = tr.Nodes

	diff := buildTreeDiff(tr, result, chkptID, refID, uint32(d.cfg.WindowSize), data)
	d.log.Debug().
		Uint32("chkpt_id", chkptID).
		Uint32("ref_id", refID).
		Int("distinct", len(result.FirstOccRoots)).
		Int("shift_dupl", len(result.ShiftDuplRoots)).
		Msg("tree checkpoint built")

	stats := Stats{
		TotalChunks:   tr.ChunkCount(),
		ChunksWritten: rootWidthSum(tr, result.FirstOccRoots),
		BytesWritten:  len(diff.Payload),
	}
	stats.ChunksDeduped = stats.TotalChunks - stats.ChunksWritten
	return diff, stats, nil
}

// rootWidthSum sums the leaf-descendant count of every compacted root,
// giving the number of chunks a set of roots actually covers (§4.3.1: a
// single root may stand in for many leaves).
func rootWidthSum(tr *tree.Tree, roots []int) int {
	total := 0
	for _, n := range roots {
		total += tr.Topo.NumLeafDescendants(n)
	}
	return total
}

func buildTreeDiff(tr *tree.Tree, result *classify.Result, chkptID, refID, windowSize uint32, data []byte) *wire.Diff {
	distinct := make([]uint32, len(result.FirstOccRoots))
	for i, n := range result.FirstOccRoots {
		distinct[i] = uint32(n)
	}

	// Group shifted-duplicate roots by the tree id of their source NodeID.
	// The group for chkptID itself (a root whose digest was already claimed
	// earlier in this same tree — pure spatial dedup) becomes curr_repeat;
	// every other group is prev_repeat, one per distinct older snapshot.
	byTree := make(map[uint32][]int)
	for _, n := range result.ShiftDuplRoots {
		src := result.Sources[n]
		byTree[src.Tree] = append(byTree[src.Tree], n)
	}
	treeIDs := make([]uint32, 0, len(byTree))
	for t := range byTree {
		treeIDs = append(treeIDs, t)
	}
	sort.Slice(treeIDs, func(i, j int) bool { return treeIDs[i] < treeIDs[j] })

	priorIndex := make([]wire.PriorIndexEntry, 0, len(treeIDs))
	repeats := make([]wire.RepeatEntry, 0, len(result.ShiftDuplRoots))
	var currRepeatSize, prevRepeatSize uint32
	for _, t := range treeIDs {
		nodes := byTree[t] // already ascending: filtered from a sorted slice
		for _, n := range nodes {
			repeats = append(repeats, wire.RepeatEntry{
				Node:     uint32(n),
				PrevNode: result.Sources[n].Node,
			})
		}
		count := uint32(len(nodes))
		priorIndex = append(priorIndex, wire.PriorIndexEntry{PriorID: t, Count: count})
		if t == chkptID {
			currRepeatSize += count
		} else {
			prevRepeatSize += count
		}
	}

	payload := make([]byte, 0)
	chunkCount := tr.ChunkCount()
	for _, n := range result.FirstOccRoots {
		lo := tree.ChunkOfLeaf(tr.Topo.LeftmostLeaf(n), chunkCount)
		hi := tree.ChunkOfLeaf(tr.Topo.RightmostLeaf(n), chunkCount)
		start, _ := tree.ChunkBounds(lo, tr.ChunkSize, tr.DataLen)
		_, end := tree.ChunkBounds(hi, tr.ChunkSize, tr.DataLen)
		payload = append(payload, data[start:end]...)
	}

	return &wire.Diff{
		Header: wire.Header{
			RefID:          refID,
			ChkptID:        chkptID,
			DataLen:        uint64(len(data)),
			ChunkSize:      uint32(tr.ChunkSize),
			WindowSize:     windowSize,
			NumPriorChkpts: uint32(len(priorIndex)),
			DistinctSize:   uint32(len(distinct)),
			CurrRepeatSize: currRepeatSize,
			PrevRepeatSize: prevRepeatSize,
		},
		Distinct:   distinct,
		PriorIndex: priorIndex,
		Repeats:    repeats,
		Payload:    payload,
	}
}
