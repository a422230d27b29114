package dedup

import (
	"context"
	"sort"

	"github.com/MuriData/chkpdedup/internal/config"
	"github.com/MuriData/chkpdedup/internal/deduperr"
	"github.com/MuriData/chkpdedup/internal/digest"
	"github.com/MuriData/chkpdedup/internal/logx"
	"github.com/MuriData/chkpdedup/internal/ref"
	"github.com/MuriData/chkpdedup/internal/tree"
	"github.com/MuriData/chkpdedup/internal/wire"
)

// ListDedup is the flat-map baseline (§4.6): no tree structure, just a
// process-wide Digest -> (firstSeenLeaf, chkpt_id) map. Every chunk of a new
// snapshot is classified as distinct (first time this digest has ever been
// seen), current-repeat (digest already claimed earlier in this same
// snapshot) or previous-repeat (digest claimed by an earlier snapshot). The
// diff layout mirrors §4.4 exactly, except every node field names a leaf
// index rather than a tree node.
type ListDedup struct {
	cfg         config.Config
	mapCapacity int
	log         logx.Logger

	life lifecycle
	fom  *digest.Map
}

// NewListDedup constructs a ListDedup. mapCapacity sizes the process-wide
// digest map, re-allocated at this size on every forced baseline.
func NewListDedup(cfg config.Config, mapCapacity int, log logx.Logger) (*ListDedup, error) {
	if err := cfg.Validate(0); err != nil {
		return nil, err
	}
	return &ListDedup{
		cfg:         cfg,
		mapCapacity: mapCapacity,
		log:         log,
		fom:         digest.NewMap(mapCapacity),
	}, nil
}

// Checkpoint implements Dedup.
func (d *ListDedup) Checkpoint(ctx context.Context, data []byte, makeBaseline bool) (*wire.Diff, Stats, error) {
	if err := d.cfg.Validate(len(data)); err != nil {
		return nil, Stats{}, err
	}
	chkptID, refID := d.life.advance(makeBaseline)
	if makeBaseline {
		d.fom = digest.NewMap(d.mapCapacity)
	}

	chunkCount := tree.ChunkCount(len(data), d.cfg.ChunkSize)
	class := make([]listClass, chunkCount)
	source := make([]ref.NodeID, chunkCount)

	// Insert is atomic-first-wins and safe to call concurrently across
	// distinct leaf indices (§5 "Ordering guarantees").
	if err := parallelChunks(ctx, chunkCount, func(c int) error {
		start, end := tree.ChunkBounds(c, d.cfg.ChunkSize, len(data))
		h := digest.Sum(data[start:end])
		owner, outcome := d.fom.Insert(h, ref.NodeID{Node: uint32(c), Tree: chkptID})
		switch outcome {
		case digest.Inserted:
			class[c] = listDistinct
		case digest.AlreadyPresent:
			source[c] = owner
			if owner.Tree == chkptID {
				class[c] = listCurrRepeat
			} else {
				class[c] = listPrevRepeat
			}
		case digest.CapacityExhausted:
			return deduperr.Newf(deduperr.ResourceError, "list_checkpoint", "first-occurrence map exhausted at leaf %d (capacity %d)", c, d.fom.Cap())
		}
		return nil
	}); err != nil {
		return nil, Stats{}, err
	}

	diff := buildListDiff(class, source, chkptID, refID, uint32(d.cfg.WindowSize), d.cfg.ChunkSize, data)
	d.log.Debug().
		Uint32("chkpt_id", chkptID).
		Int("distinct", len(diff.Distinct)).
		Msg("list checkpoint built")

	stats := Stats{
		TotalChunks:   chunkCount,
		ChunksWritten: len(diff.Distinct),
		ChunksDeduped: chunkCount - len(diff.Distinct),
		BytesWritten:  len(diff.Payload),
	}
	return diff, stats, nil
}

type listClass uint8

const (
	listDistinct listClass = iota
	listCurrRepeat
	listPrevRepeat
)

func buildListDiff(class []listClass, source []ref.NodeID, chkptID, refID, windowSize uint32, chunkSize int, data []byte) *wire.Diff {
	var distinct []uint32
	byTree := make(map[uint32][]int)
	for c, cl := range class {
		switch cl {
		case listDistinct:
			distinct = append(distinct, uint32(c))
		case listCurrRepeat, listPrevRepeat:
			t := source[c].Tree
			byTree[t] = append(byTree[t], c)
		}
	}

	treeIDs := make([]uint32, 0, len(byTree))
	for t := range byTree {
		treeIDs = append(treeIDs, t)
	}
	sort.Slice(treeIDs, func(i, j int) bool { return treeIDs[i] < treeIDs[j] })

	priorIndex := make([]wire.PriorIndexEntry, 0, len(treeIDs))
	repeats := make([]wire.RepeatEntry, 0)
	var currRepeatSize, prevRepeatSize uint32
	for _, t := range treeIDs {
		leaves := byTree[t]
		sort.Ints(leaves)
		for _, c := range leaves {
			repeats = append(repeats, wire.RepeatEntry{Node: uint32(c), PrevNode: source[c].Node})
		}
		count := uint32(len(leaves))
		priorIndex = append(priorIndex, wire.PriorIndexEntry{PriorID: t, Count: count})
		if t == chkptID {
			currRepeatSize += count
		} else {
			prevRepeatSize += count
		}
	}

	payload := make([]byte, 0)
	for _, c := range distinct {
		start, end := tree.ChunkBounds(int(c), chunkSize, len(data))
		payload = append(payload, data[start:end]...)
	}

	return &wire.Diff{
		Header: wire.Header{
			RefID:          refID,
			ChkptID:        chkptID,
			DataLen:        uint64(len(data)),
			ChunkSize:      uint32(chunkSize),
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
