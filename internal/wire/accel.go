package wire

import "github.com/ronanh/intcomp"

// CompressedIndex is an in-memory-only bit-packed form of a diff's sorted
// node-index array (the distinct table). It never touches the on-disk
// layout — Write/Read in wire.go always produce and consume plain
// little-endian uint32s exactly as §4.4/§6 specify. The restore engine
// (§4.5) packs each diff's distinct table into one and unpacks it right
// before walking it; wire.Diff itself always holds the plain []uint32.
type CompressedIndex struct {
	packed []uint32
	n      int
}

// NewCompressedIndex packs an ascending sorted []uint32 (a distinct table or
// a repeat table's Node column, both required to be sorted by §3/§5).
func NewCompressedIndex(sorted []uint32) *CompressedIndex {
	if len(sorted) == 0 {
		return &CompressedIndex{}
	}
	packed := intcomp.CompressUint32(sorted, nil)
	return &CompressedIndex{packed: packed, n: len(sorted)}
}

// Decompress restores the original sorted []uint32.
func (c *CompressedIndex) Decompress() []uint32 {
	if c.n == 0 {
		return nil
	}
	out := make([]uint32, 0, c.n)
	return intcomp.UncompressUint32(c.packed, out)
}

// Len returns the number of indexes packed, without decompressing.
func (c *CompressedIndex) Len() int { return c.n }
