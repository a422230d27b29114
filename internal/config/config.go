// Package config holds the runtime tunables shared by every dedup strategy,
// following the same "one place for size constants" shape as the teacher
// module's config package, but validated at construction time instead of
// fixed at compile time — chunk size here is caller-supplied per run, not
// baked into a circuit.
package config

import "github.com/MuriData/chkpdedup/internal/deduperr"

// Variant selects which deduplication strategy a Dedup instance runs.
type Variant int

const (
	// VariantFull writes the entire buffer on every checkpoint.
	VariantFull Variant = iota
	// VariantBasic compares per-offset digests against the prior snapshot.
	VariantBasic
	// VariantList keeps a flat digest -> offset map, no tree structure.
	VariantList
	// VariantTree builds a Merkle forest and emits compacted roots.
	VariantTree
)

func (v Variant) String() string {
	switch v {
	case VariantFull:
		return "full"
	case VariantBasic:
		return "basic"
	case VariantList:
		return "list"
	case VariantTree:
		return "tree"
	default:
		return "unknown"
	}
}

// RootPolicy selects the tie-break rule §4.3.1 uses when a node has mixed
// children during root compaction.
type RootPolicy int

const (
	// LowOffset leaves root ownership exactly as classify's top-down walk and
	// the first-occurrence map's atomic-first-wins rule decide it. This is
	// the default per §4.3.1.
	LowOffset RootPolicy = iota
	// LowRoot only matters when two roots emitted from the SAME tree turn
	// out to carry an equal digest (a whole-subtree collision discovered
	// within one checkpoint, not across checkpoints): it re-settles the
	// winner to the lexicographically smallest NodeID (ref.NodeID.Less,
	// tree then node) rather than whichever root the walk visited first.
	LowRoot
)

// Config bundles the tunables a Dedup instance is constructed with.
type Config struct {
	// ChunkSize is the byte width of every chunk but the last (§4.1).
	ChunkSize int
	// Variant selects the strategy (§2 "strategy dispatch").
	Variant Variant
	// RootPolicy selects the TreeDedup tie-break rule; ignored by other
	// variants.
	RootPolicy RootPolicy
	// WindowSize is copied verbatim into every diff's wire.Header.WindowSize
	// field (§6: "0=local scope, >0=global scope"). No dedup variant changes
	// what it emits because of it, and restore walks the full chain back to
	// the baseline for either value (see restore package doc comment) — this
	// field is a round-tripped label for tooling, not a runtime behavior
	// switch in this implementation.
	WindowSize int
}

// Unbounded is the conventional WindowSize value for "global scope" (§6).
const Unbounded = 1

// LocalScope is the WindowSize value for "local/baseline-only scope" (§6).
const LocalScope = 0

// Default returns a Config matching the distilled spec's baseline behavior:
// global scope, low-offset tie-break, and the caller's chosen chunk size.
func Default(chunkSize int) Config {
	return Config{
		ChunkSize:  chunkSize,
		Variant:    VariantTree,
		RootPolicy: LowOffset,
		WindowSize: Unbounded,
	}
}

// MapCapacity returns a reasonable first-occurrence map size for a run whose
// individual snapshots never exceed maxDataLen bytes and which expects to
// retain, across its whole lifetime, no more than expectedCheckpoints worth
// of distinct digests before the next forced baseline. §4.3.2 only mandates
// sizing to 2C-1 for a single tree; since the map persists across
// checkpoints between baselines (§3 "Lifecycle"), this scales that bound by
// the expected run length.
func MapCapacity(chunkSize, maxDataLen, expectedCheckpoints int) int {
	c := 1
	if chunkSize > 0 {
		c = (maxDataLen + chunkSize - 1) / chunkSize
	}
	if c < 1 {
		c = 1
	}
	nodesPerTree := 2*c - 1
	if expectedCheckpoints < 1 {
		expectedCheckpoints = 1
	}
	return nodesPerTree * expectedCheckpoints
}

// Validate checks the config against §4.3.2's error conditions, returning a
// ConfigError on violation.
func (c Config) Validate(dataLen int) error {
	if c.ChunkSize <= 0 {
		return deduperr.Newf(deduperr.ConfigError, "validate", "chunk size must be a positive integer, got %d", c.ChunkSize)
	}
	if dataLen > 0 && c.ChunkSize > dataLen {
		return deduperr.Newf(deduperr.ConfigError, "validate", "chunk size %d exceeds region length %d", c.ChunkSize, dataLen)
	}
	if c.WindowSize < 0 {
		return deduperr.Newf(deduperr.ConfigError, "validate", "window size must be non-negative, got %d", c.WindowSize)
	}
	return nil
}
