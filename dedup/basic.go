package dedup

import (
	"context"

	"github.com/bits-and-blooms/bitset"

	"github.com/MuriData/chkpdedup/internal/config"
	"github.com/MuriData/chkpdedup/internal/digest"
	"github.com/MuriData/chkpdedup/internal/logx"
	"github.com/MuriData/chkpdedup/internal/tree"
	"github.com/MuriData/chkpdedup/internal/wire"
)

// BasicDedup is the simplest baseline (§4.6): one digest per chunk index,
// kept across snapshots in a flat HashList. Each checkpoint computes the new
// snapshot's per-chunk digests, marks a bitset of the indices that changed
// against the prior snapshot, and emits only those chunks. It cannot exploit
// spatial redundancy — a chunk that merely moved is still emitted in full.
type BasicDedup struct {
	cfg config.Config
	log logx.Logger

	life     lifecycle
	hashList []digest.Digest // one digest per chunk index, from the prior checkpoint
}

// NewBasicDedup constructs a BasicDedup.
func NewBasicDedup(cfg config.Config, log logx.Logger) (*BasicDedup, error) {
	if err := cfg.Validate(0); err != nil {
		return nil, err
	}
	return &BasicDedup{cfg: cfg, log: log}, nil
}

// Checkpoint implements Dedup.
func (d *BasicDedup) Checkpoint(ctx context.Context, data []byte, makeBaseline bool) (*wire.Diff, Stats, error) {
	if err := d.cfg.Validate(len(data)); err != nil {
		return nil, Stats{}, err
	}
	chkptID, refID := d.life.advance(makeBaseline)
	if makeBaseline {
		d.hashList = nil
	}

	chunkCount := tree.ChunkCount(len(data), d.cfg.ChunkSize)
	curDigests := make([]digest.Digest, chunkCount)
	// One bool per chunk index, written by at most one worker each (workers
	// own disjoint sub-ranges), then folded into a bitset single-threaded
	// below — bitset.BitSet.Set is not safe to call concurrently on indices
	// that may share an underlying word.
	diffFlags := make([]bool, chunkCount)

	if err := parallelChunks(ctx, chunkCount, func(c int) error {
		start, end := tree.ChunkBounds(c, d.cfg.ChunkSize, len(data))
		h := digest.Sum(data[start:end])
		curDigests[c] = h
		if d.hashList == nil || h != d.hashList[c] {
			diffFlags[c] = true
		}
		return nil
	}); err != nil {
		return nil, Stats{}, err
	}
	d.hashList = curDigests

	changed := bitset.New(uint(chunkCount))
	for c, flag := range diffFlags {
		if flag {
			changed.Set(uint(c))
		}
	}

	distinct := make([]uint32, 0, changed.Count())
	payload := make([]byte, 0)
	for i, e := changed.NextSet(0); e; i, e = changed.NextSet(i + 1) {
		c := int(i)
		distinct = append(distinct, uint32(c))
		start, end := tree.ChunkBounds(c, d.cfg.ChunkSize, len(data))
		payload = append(payload, data[start:end]...)
	}

	d.log.Debug().
		Uint32("chkpt_id", chkptID).
		Int("changed", len(distinct)).
		Int("total", chunkCount).
		Msg("basic checkpoint built")

	diff := &wire.Diff{
		Header: wire.Header{
			RefID:        refID,
			ChkptID:      chkptID,
			DataLen:      uint64(len(data)),
			ChunkSize:    uint32(d.cfg.ChunkSize),
			DistinctSize: uint32(len(distinct)),
		},
		Distinct: distinct,
		Payload:  payload,
	}
	stats := Stats{
		TotalChunks:   chunkCount,
		ChunksWritten: len(distinct),
		ChunksDeduped: chunkCount - len(distinct),
		BytesWritten:  len(payload),
	}
	return diff, stats, nil
}
