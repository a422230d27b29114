package tree

import (
	"bytes"
	"context"
	"testing"
)

func TestBuildDeterministic(t *testing.T) {
	data := []byte("AAAABBBBCCCCDDDDE") // 17 bytes, prime, chunk_size=4 -> C=5, last chunk short
	a, err := Build(context.Background(), data, 4)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := Build(context.Background(), data, 4)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(a.Nodes) != len(b.Nodes) {
		t.Fatalf("node count mismatch: %d vs %d", len(a.Nodes), len(b.Nodes))
	}
	for i := range a.Nodes {
		if a.Nodes[i] != b.Nodes[i] {
			t.Fatalf("node %d differs between identical builds", i)
		}
	}
}

func TestBuildLastChunkShort(t *testing.T) {
	data := []byte("AAAABBBBC") // 9 bytes, chunk_size=4 -> C=3, last chunk is "C" (1 byte)
	tr, err := Build(context.Background(), data, 4)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tr.ChunkCount() != 3 {
		t.Fatalf("ChunkCount=%d, want 3", tr.ChunkCount())
	}
	start, end := ChunkBounds(2, 4, len(data))
	if !bytes.Equal(data[start:end], []byte("C")) {
		t.Fatalf("last chunk = %q, want %q", data[start:end], "C")
	}
}

func TestBuildEmpty(t *testing.T) {
	tr, err := Build(context.Background(), nil, 4)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tr.ChunkCount() != 0 || len(tr.Nodes) != 0 {
		t.Fatalf("empty data should produce an empty tree, got ChunkCount=%d len(Nodes)=%d", tr.ChunkCount(), len(tr.Nodes))
	}
}

func TestBuildAllIdenticalChunksCollapseToOneDigestPattern(t *testing.T) {
	data := bytes.Repeat([]byte("X"), 8) // chunk_size=1 -> C=8, every chunk equal
	tr, err := Build(context.Background(), data, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	leaf0 := LeafIndex(0, tr.ChunkCount())
	for c := 1; c < tr.ChunkCount(); c++ {
		leaf := LeafIndex(c, tr.ChunkCount())
		if tr.Nodes[leaf] != tr.Nodes[leaf0] {
			t.Fatalf("leaf %d digest differs from leaf 0 despite identical chunk bytes", c)
		}
	}
}
