// Package deduperr implements the error taxonomy of §7: every failure
// surfaced by the dedup/restore pipeline carries one of five Kinds so
// callers can dispatch with errors.As instead of string matching, while the
// underlying cause still chains with %w the way the teacher module wraps
// binary.Write/Read failures throughout pkg/merkle.
package deduperr

import (
	"errors"
	"fmt"
)

// Kind is one of the five taxonomy members from §7.
type Kind int

const (
	// ConfigError — invalid chunk_size, target_id out of range.
	ConfigError Kind = iota
	// IOError — short read, write failure, missing file.
	IOError
	// FormatError — header field inconsistency.
	FormatError
	// CorruptChainError — a restore references a snapshot id absent from
	// the provided list, or a lookup fails after exhausting the chain.
	CorruptChainError
	// ResourceError — a pre-sized map or vector cannot hold the required
	// entries.
	ResourceError
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "ConfigError"
	case IOError:
		return "IOError"
	case FormatError:
		return "FormatError"
	case CorruptChainError:
		return "CorruptChainError"
	case ResourceError:
		return "ResourceError"
	default:
		return "UnknownError"
	}
}

// Error is the single error type the package exposes. Op names the failing
// operation (e.g. "checkpoint", "restore") for log correlation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error wrapping cause under op with kind.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Newf builds an Error whose cause is a formatted message, mirroring the
// teacher's fmt.Errorf("...: %w", err) idiom but routed through the typed
// Kind instead of an ad hoc string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Is reports whether the first *Error found in err's chain carries Kind k.
func Is(err error, k Kind) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Kind == k
}
