// Package ferrors defines the error kinds surfaced by the fat, blockdev, and
// fatfs packages.
package ferrors

import (
	"fmt"
)

// FatError is a sentinel error type, following the same pattern as disko's
// DiskoError: a handful of `const`-declared string values that callers can
// compare against with errors.Is, optionally wrapped with extra context via
// WithMessage or Wrap.
type FatError string

func (e FatError) Error() string { return string(e) }

// CorruptFilesystem indicates an on-disk structure violates an invariant the
// driver relies on: redundant FAT copies disagree, a read or write fell
// outside the volume's bounds, or a cluster chain contains a cycle.
const CorruptFilesystem = FatError("corrupt filesystem")

// ReadOnly indicates a mutation was attempted on a volume whose block device
// has no Write method, or whose mount options forced read-only.
const ReadOnly = FatError("read-only file system")

// NoSpace indicates the cluster allocator could not satisfy a growth
// request.
const NoSpace = FatError("no space left on device")

// InvalidArgument indicates a malformed 8.3 name or an illegal path.
const InvalidArgument = FatError("invalid argument")

// NotFound indicates path traversal did not resolve to an existing entry.
const NotFound = FatError("no such file or directory")

// AlreadyExists indicates a create or rename target already exists.
const AlreadyExists = FatError("file exists")

// InvalidState indicates an internal invariant was violated at flush time,
// e.g. a chain's pending buffer with no backing link to read old bytes
// from, or an altered FAT sector outside the in-memory FAT.
const InvalidState = FatError("invalid internal state")

// detailedError pairs a sentinel FatError with a human-readable message
// and/or a wrapped cause, the way disko.DriverError pairs a DiskoError with
// a message.
type detailedError struct {
	kind    FatError
	message string
	cause   error
}

func (e *detailedError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.kind.Error()
}

func (e *detailedError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return e.kind
}

func (e *detailedError) Is(target error) bool {
	return target == e.kind
}

// WithMessage attaches a custom message to the sentinel error, preserving
// errors.Is(result, e).
func (e FatError) WithMessage(message string) error {
	return &detailedError{kind: e, message: message}
}

// WithMessagef is a convenience wrapper around WithMessage + fmt.Sprintf.
func (e FatError) WithMessagef(format string, args ...any) error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Wrap attaches an underlying cause to the sentinel error. errors.Is(result, e)
// and errors.Is(result, cause) both hold.
func (e FatError) Wrap(cause error) error {
	return &detailedError{
		kind:    e,
		message: fmt.Sprintf("%s: %s", e.Error(), cause.Error()),
		cause:   cause,
	}
}
