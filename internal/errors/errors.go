// Package errors defines the error values shared by the blob core and its
// storage and metadata adapters. Nothing here carries transport semantics;
// the HTTP layer maps these values to status codes.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel errors for the core operations. Match with errors.Is.
var (
	// ErrInvalidPayloadEncoding is returned when a payload is not valid
	// base64 or carries a malformed data-URI prefix.
	ErrInvalidPayloadEncoding = stderrors.New("invalid payload encoding")

	// ErrDuplicateID is returned when a blob id is already recorded.
	ErrDuplicateID = stderrors.New("duplicate blob id")

	// ErrNotFound is returned when no record exists for a blob id.
	ErrNotFound = stderrors.New("blob not found")

	// ErrStorageWrite is the class of all payload write failures.
	ErrStorageWrite = stderrors.New("storage write failed")

	// ErrStorageRead is the class of all payload read failures, including
	// bytes missing from the medium.
	ErrStorageRead = stderrors.New("storage read failed")

	// ErrInvalidID is returned when a blob id cannot be used by a backend,
	// e.g. a path traversal attempt against the local filesystem.
	ErrInvalidID = stderrors.New("invalid blob id")

	// ErrBackendUnavailable is returned when a record names a backend that
	// is not configured in this process.
	ErrBackendUnavailable = stderrors.New("storage backend not configured")
)

// Storage operations reported in a StorageError.
const (
	OpWrite = "write"
	OpRead  = "read"
)

// StorageError wraps a medium failure with the operation, backend tag and
// blob id it happened on. It matches ErrStorageWrite or ErrStorageRead
// depending on Op, and also unwraps to the underlying cause.
type StorageError struct {
	Op      string
	Backend string
	ID      string
	Err     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s/%s: %v", e.Op, e.Backend, e.ID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error { return e.Err }

// Is reports whether target is the class sentinel for this error's Op.
func (e *StorageError) Is(target error) bool {
	switch target {
	case ErrStorageWrite:
		return e.Op == OpWrite
	case ErrStorageRead:
		return e.Op == OpRead
	}
	return false
}

// WriteError wraps err as a write failure on the given backend.
func WriteError(backend, id string, err error) error {
	return &StorageError{Op: OpWrite, Backend: backend, ID: id, Err: err}
}

// ReadError wraps err as a read failure on the given backend.
func ReadError(backend, id string, err error) error {
	return &StorageError{Op: OpRead, Backend: backend, ID: id, Err: err}
}

// Is and As are re-exported so callers importing this package under its
// own name do not also need the standard library errors package.
var (
	Is  = stderrors.Is
	As  = stderrors.As
	New = stderrors.New
)
