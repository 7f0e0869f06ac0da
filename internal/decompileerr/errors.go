// Package decompileerr defines the fatal error taxonomy from spec §7
// and maps each kind to the CLI exit code from spec §6.
package decompileerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a fatal decompilation error.
type Kind int

const (
	// Format covers truncated code segments, unknown opcodes, invalid
	// branch targets, and invalid advance-string kinds.
	Format Kind = iota
	// Structural covers CFG nodes with more than two successors and
	// cyclic blocks that do not end in a branch.
	Structural
	// Internal covers broken invariants that indicate a decoder or
	// analyzer bug (e.g. the dominator algorithm failing to assign an
	// idom to a reachable node).
	Internal
)

func (k Kind) String() string {
	switch k {
	case Format:
		return "format error"
	case Structural:
		return "structural error"
	case Internal:
		return "internal invariant"
	default:
		return "error"
	}
}

// ExitCode returns the CLI exit code for k, per spec §6:
// 1 = file error, 2 = disassembly error, 3 = structural error.
// Internal invariant failures also exit 3 — they surface from the same
// analysis phase a caller can't recover from locally.
func (k Kind) ExitCode() int {
	switch k {
	case Format:
		return 2
	case Structural, Internal:
		return 3
	default:
		return 1
	}
}

// Error is a fatal decompilation error tagged with its Kind and
// wrapped with the pkg/errors call chain that produced it.
type Error struct {
	Kind Kind
	err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.err) }

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.err }

// New builds a Kind-tagged error from a format string.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, err: errors.Errorf(format, args...)}
}

// Wrap annotates err with a Kind and a message, preserving err's stack
// via pkg/errors.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, err: errors.Wrapf(err, format, args...)}
}

// ExitCode extracts the CLI exit code for any error: a *Error yields
// its Kind's code, any other non-nil error yields 1 (file error), and
// nil yields 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind.ExitCode()
	}
	return 1
}
