// Package manifest implements an optional, out-of-band run summary: which
// chunk size and variant a run used, and the ref_id/chkpt_id/size bookkeeping
// for every checkpoint written. It is never consulted to restore a byte — the
// diffs alone are sufficient per §4.5 — but a CLI or operator tool can use it
// to sanity-check a diff directory before attempting a restore, and to reject
// diffs written by an incompatible format version up front rather than
// failing deep inside table parsing.
package manifest

import (
	"fmt"
	"io"

	"github.com/blang/semver/v4"
	"github.com/fxamacker/cbor/v2"

	"github.com/MuriData/chkpdedup/internal/config"
	"github.com/MuriData/chkpdedup/internal/deduperr"
	"github.com/MuriData/chkpdedup/internal/wire"
)

// Entry records one checkpoint() call's header-level facts.
type Entry struct {
	ChkptID        uint32 `cbor:"chkpt_id"`
	RefID          uint32 `cbor:"ref_id"`
	DataLen        uint64 `cbor:"data_len"`
	DistinctSize   uint32 `cbor:"distinct_size"`
	CurrRepeatSize uint32 `cbor:"curr_repeat_size"`
	PrevRepeatSize uint32 `cbor:"prev_repeat_size"`
}

// Manifest is the whole-run summary.
type Manifest struct {
	FormatVersion string  `cbor:"format_version"`
	ChunkSize     int     `cbor:"chunk_size"`
	Variant       string  `cbor:"variant"`
	Entries       []Entry `cbor:"entries"`
}

// New starts an empty manifest for a run using the given config.
func New(cfg config.Config) *Manifest {
	return &Manifest{
		FormatVersion: wire.FormatVersion.String(),
		ChunkSize:     cfg.ChunkSize,
		Variant:       cfg.Variant.String(),
	}
}

// Append records one checkpoint's header facts.
func (m *Manifest) Append(h wire.Header) {
	m.Entries = append(m.Entries, Entry{
		ChkptID:        h.ChkptID,
		RefID:          h.RefID,
		DataLen:        h.DataLen,
		DistinctSize:   h.DistinctSize,
		CurrRepeatSize: h.CurrRepeatSize,
		PrevRepeatSize: h.PrevRepeatSize,
	})
}

// Write CBOR-encodes m to w.
func Write(w io.Writer, m *Manifest) error {
	enc := cbor.NewEncoder(w)
	if err := enc.Encode(m); err != nil {
		return deduperr.New(deduperr.IOError, "manifest.Write", fmt.Errorf("cbor encode: %w", err))
	}
	return nil
}

// Read decodes a manifest from r and verifies it was produced by a
// FormatVersion this build can read (wire.CompatibleWith).
func Read(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := cbor.NewDecoder(r).Decode(&m); err != nil {
		return nil, deduperr.New(deduperr.FormatError, "manifest.Read", fmt.Errorf("cbor decode: %w", err))
	}
	produced, err := semver.Parse(m.FormatVersion)
	if err != nil {
		return nil, deduperr.New(deduperr.FormatError, "manifest.Read", fmt.Errorf("parse format_version %q: %w", m.FormatVersion, err))
	}
	if !wire.CompatibleWith(produced) {
		return nil, deduperr.Newf(deduperr.FormatError, "manifest.Read",
			"manifest format version %s is incompatible with this build's %s", produced, wire.FormatVersion)
	}
	return &m, nil
}
