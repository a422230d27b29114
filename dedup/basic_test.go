package dedup

import (
	"bytes"
	"context"
	"testing"

	"github.com/MuriData/chkpdedup/internal/config"
	"github.com/MuriData/chkpdedup/internal/logx"
)

func newBasicDedupForTest(t *testing.T, chunkSize int) *BasicDedup {
	t.Helper()
	d, err := NewBasicDedup(config.Default(chunkSize), logx.Noop())
	if err != nil {
		t.Fatalf("NewBasicDedup: %v", err)
	}
	return d
}

func TestBasicDedupEmitsOnlyChangedChunks(t *testing.T) {
	d := newBasicDedupForTest(t, 4)
	ctx := context.Background()
	if _, _, err := d.Checkpoint(ctx, []byte("AAAABBBB"), true); err != nil {
		t.Fatalf("baseline checkpoint: %v", err)
	}
	diff, stats, err := d.Checkpoint(ctx, []byte("AAAACCCC"), false)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if diff.Header.DistinctSize != 1 || diff.Distinct[0] != 1 {
		t.Fatalf("distinct table = %v, want [1]", diff.Distinct)
	}
	if !bytes.Equal(diff.Payload, []byte("CCCC")) {
		t.Fatalf("payload=%q, want %q", diff.Payload, "CCCC")
	}
	if stats.TotalChunks != 2 || stats.ChunksWritten != 1 || stats.ChunksDeduped != 1 || stats.BytesWritten != 4 {
		t.Fatalf("stats=%+v, want {TotalChunks:2 ChunksWritten:1 ChunksDeduped:1 BytesWritten:4}", stats)
	}
}

// TestBasicDedupCannotDetectSpatialShift demonstrates the whole point of the
// baseline (§4.6): a chunk that only moved is still emitted in full, since
// BasicDedup only compares against the chunk at the SAME index.
func TestBasicDedupCannotDetectSpatialShift(t *testing.T) {
	d := newBasicDedupForTest(t, 4)
	ctx := context.Background()
	if _, _, err := d.Checkpoint(ctx, []byte("XXXXYYYY"), true); err != nil {
		t.Fatalf("baseline checkpoint: %v", err)
	}
	diff, _, err := d.Checkpoint(ctx, []byte("YYYYXXXX"), false)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if diff.Header.DistinctSize != 2 {
		t.Fatalf("distinct_size=%d, want 2 (both chunks differ positionally)", diff.Header.DistinctSize)
	}
	if !bytes.Equal(diff.Payload, []byte("YYYYXXXX")) {
		t.Fatalf("payload=%q, want %q", diff.Payload, "YYYYXXXX")
	}
}

func TestBasicDedupUnchangedSnapshot(t *testing.T) {
	d := newBasicDedupForTest(t, 4)
	ctx := context.Background()
	if _, _, err := d.Checkpoint(ctx, []byte("AAAAAAAA"), true); err != nil {
		t.Fatalf("baseline checkpoint: %v", err)
	}
	diff, stats, err := d.Checkpoint(ctx, []byte("AAAAAAAA"), false)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if diff.Header.DistinctSize != 0 || len(diff.Payload) != 0 {
		t.Fatalf("unchanged snapshot should emit nothing, got %+v", diff.Header)
	}
	if stats.ChunksWritten != 0 || stats.ChunksDeduped != 2 {
		t.Fatalf("stats=%+v, want ChunksWritten:0 ChunksDeduped:2", stats)
	}
}
