// Package failure carries the engine's error taxonomy.
//
// Every error that crosses a component boundary is wrapped in an *Error
// tagged with a types.ErrorKind, so callers can decide between local
// recovery (corruption, network during a differential transfer), a single
// elevation retry (permission) and terminal reporting (everything else)
// without string matching.
package failure

import (
	"errors"
	"fmt"

	"github.com/adamancini/hatch/internal/types"
)

// Error is a classified engine error.
type Error struct {
	Kind types.ErrorKind
	Op   string // operation that failed, e.g. "reconstruct" or "spawn installer"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and op. A nil err still produces an error.
func New(kind types.ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Configuration returns a configuration error.
func Configuration(op string, err error) *Error { return New(types.KindConfiguration, op, err) }

// Network returns a network error.
func Network(op string, err error) *Error { return New(types.KindNetwork, op, err) }

// Verification returns a verification error.
func Verification(op string, err error) *Error { return New(types.KindVerification, op, err) }

// Process returns a process error.
func Process(op string, err error) *Error { return New(types.KindProcess, op, err) }

// Corruption returns a corruption error.
func Corruption(op string, err error) *Error { return New(types.KindCorruption, op, err) }

// KindOf returns the kind of the outermost *Error in err's chain, or ""
// when err is not classified.
func KindOf(err error) types.ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind types.ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Recoverable reports whether a differential-transfer error may be healed
// by falling back to a full download. Configuration errors never are.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case types.KindNetwork, types.KindCorruption, types.KindVerification:
		return true
	case "":
		// Unclassified I/O errors inside the differential phase.
		return err != nil
	default:
		return false
	}
}
