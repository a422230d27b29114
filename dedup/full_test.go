package dedup

import (
	"bytes"
	"context"
	"testing"

	"github.com/MuriData/chkpdedup/internal/config"
	"github.com/MuriData/chkpdedup/internal/logx"
)

func TestFullDedupAlwaysWritesWholeBuffer(t *testing.T) {
	d := NewFullDedup(config.Default(4), logx.Noop())
	ctx := context.Background()

	diff1, stats1, err := d.Checkpoint(ctx, []byte("AAAABBBB"), false)
	if err != nil {
		t.Fatalf("checkpoint 1: %v", err)
	}
	if diff1.Header.RefID != diff1.Header.ChkptID {
		t.Fatalf("ref_id=%d chkpt_id=%d, want equal (always a baseline)", diff1.Header.RefID, diff1.Header.ChkptID)
	}
	if !bytes.Equal(diff1.Payload, []byte("AAAABBBB")) {
		t.Fatalf("payload=%q, want full buffer", diff1.Payload)
	}
	if stats1.ChunksDeduped != 0 || stats1.ChunksWritten != stats1.TotalChunks {
		t.Fatalf("stats1=%+v, want ChunksDeduped:0 and ChunksWritten==TotalChunks", stats1)
	}

	diff2, _, err := d.Checkpoint(ctx, []byte("AAAABBBB"), false)
	if err != nil {
		t.Fatalf("checkpoint 2: %v", err)
	}
	if diff2.Header.RefID != diff2.Header.ChkptID {
		t.Fatalf("second checkpoint must also self-reference")
	}
	if diff2.Header.ChkptID == diff1.Header.ChkptID {
		t.Fatalf("chkpt_id did not advance")
	}
	if !bytes.Equal(diff2.Payload, []byte("AAAABBBB")) {
		t.Fatalf("second payload=%q, want full buffer even though content is unchanged", diff2.Payload)
	}
}

func TestFullDedupMutatingCallerBufferDoesNotAffectDiff(t *testing.T) {
	d := NewFullDedup(config.Default(4), logx.Noop())
	data := []byte("AAAABBBB")
	diff, _, err := d.Checkpoint(context.Background(), data, false)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	data[0] = 'Z'
	if bytes.Equal(diff.Payload, data) {
		t.Fatalf("diff payload must be an independent copy of the input buffer")
	}
}
