package dedup

import (
	"context"

	"github.com/MuriData/chkpdedup/internal/config"
	"github.com/MuriData/chkpdedup/internal/logx"
	"github.com/MuriData/chkpdedup/internal/tree"
	"github.com/MuriData/chkpdedup/internal/wire"
)

// FullDedup is the no-dedup boundary case (§1, §6): every checkpoint writes
// header + the entire buffer, unconditionally a baseline.
type FullDedup struct {
	cfg config.Config
	log logx.Logger
	life lifecycle
}

// NewFullDedup constructs a FullDedup.
func NewFullDedup(cfg config.Config, log logx.Logger) *FullDedup {
	return &FullDedup{cfg: cfg, log: log}
}

// Checkpoint implements Dedup. makeBaseline is accepted for interface
// symmetry but has no effect: every FullDedup checkpoint is self-sufficient,
// so ref_id always equals chkpt_id.
func (d *FullDedup) Checkpoint(_ context.Context, data []byte, _ bool) (*wire.Diff, Stats, error) {
	chkptID, _ := d.life.advance(true)
	d.log.Debug().Uint32("chkpt_id", chkptID).Int("bytes", len(data)).Msg("full checkpoint built")
	diff := &wire.Diff{
		Header: wire.Header{
			RefID:     chkptID,
			ChkptID:   chkptID,
			DataLen:   uint64(len(data)),
			ChunkSize: uint32(d.cfg.ChunkSize),
		},
		Payload: append([]byte(nil), data...),
	}

	chunkCount := 1
	if d.cfg.ChunkSize > 0 {
		chunkCount = tree.ChunkCount(len(data), d.cfg.ChunkSize)
	}
	stats := Stats{
		TotalChunks:   chunkCount,
		ChunksWritten: chunkCount,
		ChunksDeduped: 0,
		BytesWritten:  len(diff.Payload),
	}
	return diff, stats, nil
}
