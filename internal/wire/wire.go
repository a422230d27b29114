// Package wire implements the on-disk diff format of §4.4/§6: a fixed
// 48-byte header, a distinct-node table, a prior-checkpoint index, repeat
// tables, and a payload of raw chunk bytes — little-endian throughout. This
// mirrors the teacher module's own binary.Write/Read header-then-tables
// shape (pkg/merkle/checkpoint.go's SaveCheckpointed/LoadCheckpointedSMT),
// adapted from that module's big-endian, big.Int-valued fields to the
// fixed little-endian uint32/uint64 fields this spec mandates.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/MuriData/chkpdedup/internal/deduperr"
)

// HeaderSize is the fixed on-wire header width (§4.4 step 1).
const HeaderSize = 48

// Header is the fixed 48-byte diff preamble.
type Header struct {
	RefID          uint32
	ChkptID        uint32
	DataLen        uint64
	ChunkSize      uint32
	WindowSize     uint32 // 0 = baseline-only scope, nonzero = global scope (§4.4)
	NumPriorChkpts uint32
	DistinctSize   uint32
	CurrRepeatSize uint32
	PrevRepeatSize uint32
}

// PriorIndexEntry partitions the repeat table by the source snapshot of the
// referenced first occurrence (§4.4 step 3).
type PriorIndexEntry struct {
	PriorID uint32
	Count   uint32
}

// RepeatEntry maps a node in this diff's tree to the node whose bytes it
// reuses (§4.4 step 4). In List mode both fields are leaf indices, not tree
// nodes.
type RepeatEntry struct {
	Node     uint32
	PrevNode uint32
}

// Diff is one fully-assembled, not-yet-written checkpoint diff.
type Diff struct {
	Header     Header
	Distinct   []uint32 // ascending node indices, first-occurrence roots
	PriorIndex []PriorIndexEntry
	Repeats    []RepeatEntry // grouped in PriorIndex order (ascending prior id), so a curr_repeat group, whose prior id is this diff's chkpt_id, comes after every prev_repeat group
	Payload    []byte
}

// Write serializes d to w in the exact §4.4/§6 byte layout. Per §7 and §5,
// the whole diff is assembled into a staging buffer first and written with
// one Write call, so a partially-constructed diff is never observable by w.
func Write(w io.Writer, d *Diff) error {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(d.Distinct)*4 + len(d.PriorIndex)*8 + len(d.Repeats)*8 + len(d.Payload))

	fields := []any{
		d.Header.RefID,
		d.Header.ChkptID,
		d.Header.DataLen,
		d.Header.ChunkSize,
		d.Header.WindowSize,
		d.Header.NumPriorChkpts,
		d.Header.DistinctSize,
		d.Header.CurrRepeatSize,
		d.Header.PrevRepeatSize,
	}
	for _, f := range fields {
		if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
			return deduperr.New(deduperr.IOError, "wire.Write", fmt.Errorf("header field: %w", err))
		}
	}
	var pad [8]byte // offset 40: reserved, brings the header to exactly 48 bytes
	buf.Write(pad[:])

	for _, n := range d.Distinct {
		if err := binary.Write(&buf, binary.LittleEndian, n); err != nil {
			return deduperr.New(deduperr.IOError, "wire.Write", fmt.Errorf("distinct table: %w", err))
		}
	}
	for _, p := range d.PriorIndex {
		if err := binary.Write(&buf, binary.LittleEndian, p.PriorID); err != nil {
			return deduperr.New(deduperr.IOError, "wire.Write", fmt.Errorf("prior index: %w", err))
		}
		if err := binary.Write(&buf, binary.LittleEndian, p.Count); err != nil {
			return deduperr.New(deduperr.IOError, "wire.Write", fmt.Errorf("prior index: %w", err))
		}
	}
	for _, rep := range d.Repeats {
		if err := binary.Write(&buf, binary.LittleEndian, rep.Node); err != nil {
			return deduperr.New(deduperr.IOError, "wire.Write", fmt.Errorf("repeat table: %w", err))
		}
		if err := binary.Write(&buf, binary.LittleEndian, rep.PrevNode); err != nil {
			return deduperr.New(deduperr.IOError, "wire.Write", fmt.Errorf("repeat table: %w", err))
		}
	}
	buf.Write(d.Payload)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return deduperr.New(deduperr.IOError, "wire.Write", err)
	}
	return nil
}

// Read parses a Diff from r, which must yield exactly one diff's bytes
// (a whole file, or a bytes.Reader/bytes.NewReader over an in-memory diff).
func Read(r io.Reader) (*Diff, error) {
	var h Header
	fields := []any{
		&h.RefID, &h.ChkptID, &h.DataLen, &h.ChunkSize, &h.WindowSize,
		&h.NumPriorChkpts, &h.DistinctSize, &h.CurrRepeatSize, &h.PrevRepeatSize,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, deduperr.New(deduperr.IOError, "wire.Read", fmt.Errorf("header field: %w", err))
		}
	}
	var pad [8]byte
	if _, err := io.ReadFull(r, pad[:]); err != nil {
		return nil, deduperr.New(deduperr.IOError, "wire.Read", fmt.Errorf("header padding: %w", err))
	}

	d := &Diff{Header: h}

	d.Distinct = make([]uint32, h.DistinctSize)
	for i := range d.Distinct {
		if err := binary.Read(r, binary.LittleEndian, &d.Distinct[i]); err != nil {
			return nil, deduperr.New(deduperr.FormatError, "wire.Read", fmt.Errorf("distinct table: %w", err))
		}
	}

	d.PriorIndex = make([]PriorIndexEntry, h.NumPriorChkpts)
	for i := range d.PriorIndex {
		if err := binary.Read(r, binary.LittleEndian, &d.PriorIndex[i].PriorID); err != nil {
			return nil, deduperr.New(deduperr.FormatError, "wire.Read", fmt.Errorf("prior index: %w", err))
		}
		if err := binary.Read(r, binary.LittleEndian, &d.PriorIndex[i].Count); err != nil {
			return nil, deduperr.New(deduperr.FormatError, "wire.Read", fmt.Errorf("prior index: %w", err))
		}
	}

	total := h.CurrRepeatSize + h.PrevRepeatSize
	d.Repeats = make([]RepeatEntry, total)
	for i := range d.Repeats {
		if err := binary.Read(r, binary.LittleEndian, &d.Repeats[i].Node); err != nil {
			return nil, deduperr.New(deduperr.FormatError, "wire.Read", fmt.Errorf("repeat table: %w", err))
		}
		if err := binary.Read(r, binary.LittleEndian, &d.Repeats[i].PrevNode); err != nil {
			return nil, deduperr.New(deduperr.FormatError, "wire.Read", fmt.Errorf("repeat table: %w", err))
		}
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, deduperr.New(deduperr.IOError, "wire.Read", fmt.Errorf("payload: %w", err))
	}
	d.Payload = payload

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the §4.4.1 wire invariants that can be verified without
// consulting any other diff.
func (d *Diff) Validate() error {
	h := d.Header
	numNodes := 0
	if h.ChunkSize > 0 {
		numNodes = 2*int((h.DataLen+uint64(h.ChunkSize)-1)/uint64(h.ChunkSize)) - 1
		if h.DataLen == 0 {
			numNodes = 0
		}
	}
	total := int(h.DistinctSize) + int(h.CurrRepeatSize) + int(h.PrevRepeatSize)
	if numNodes > 0 && total > numNodes {
		return deduperr.Newf(deduperr.FormatError, "wire.Validate",
			"distinct_size+curr_repeat_size+prev_repeat_size = %d exceeds 2C-1 = %d", total, numNodes)
	}
	if len(d.Distinct) != int(h.DistinctSize) {
		return deduperr.Newf(deduperr.FormatError, "wire.Validate", "distinct table length %d != distinct_size %d", len(d.Distinct), h.DistinctSize)
	}
	if len(d.PriorIndex) != int(h.NumPriorChkpts) {
		return deduperr.Newf(deduperr.FormatError, "wire.Validate", "prior index length %d != num_prior_chkpts %d", len(d.PriorIndex), h.NumPriorChkpts)
	}
	if len(d.Repeats) != int(h.CurrRepeatSize+h.PrevRepeatSize) {
		return deduperr.Newf(deduperr.FormatError, "wire.Validate", "repeat table length %d != curr+prev repeat size", len(d.Repeats))
	}
	if h.RefID > h.ChkptID {
		return deduperr.Newf(deduperr.FormatError, "wire.Validate", "ref_id %d exceeds chkpt_id %d", h.RefID, h.ChkptID)
	}
	return nil
}
