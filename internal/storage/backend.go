// Package storage defines the interface and implementations for blobd's
// payload storage layer. Backends know nothing about metadata; they move raw
// bytes in and out of a medium keyed by blob id.
package storage

import (
	"context"
	"fmt"
	"strings"

	blobderr "github.com/bleepstore/blobd/internal/errors"
)

// Backend stores and retrieves raw blob payloads. Implementations must be
// safe for concurrent use.
//
// Writing the same id twice is not guarded here; id uniqueness is owned by
// the metadata store. A failed Write must leave nothing readable under id.
type Backend interface {
	// Write durably stores data under id. Failures match
	// errors.ErrStorageWrite.
	Write(ctx context.Context, id string, data []byte) error

	// Read returns the bytes stored under id. A missing id or an unreachable
	// medium matches errors.ErrStorageRead.
	Read(ctx context.Context, id string) ([]byte, error)

	// HealthCheck verifies that the medium is reachable.
	HealthCheck(ctx context.Context) error
}

// Tag names a backend variant. Tags are persisted in blob records, so the
// string values must never change.
type Tag string

const (
	TagLocal  Tag = "local"
	TagDB     Tag = "db"
	TagS3     Tag = "s3"
	TagGCS    Tag = "gcs"
	TagAzure  Tag = "azure"
	TagMemory Tag = "memory"
)

// Tags lists every known variant.
var Tags = []Tag{TagLocal, TagDB, TagS3, TagGCS, TagAzure, TagMemory}

// ParseTag converts a configuration string into a Tag.
func ParseTag(s string) (Tag, error) {
	t := Tag(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Tags {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown storage backend %q", s)
}

// String implements fmt.Stringer.
func (t Tag) String() string { return string(t) }

// ValidateID rejects ids that are unsafe to use as a single path component:
// empty ids, the "." and ".." segments, ids containing a "/" or "\"
// separator, and NUL bytes. Dots inside a component ("report..v2") are fine.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty id", blobderr.ErrInvalidID)
	case id == "." || id == "..":
		return fmt.Errorf("%w: %q contains a dot segment", blobderr.ErrInvalidID, id)
	case strings.ContainsAny(id, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", blobderr.ErrInvalidID, id)
	case strings.ContainsRune(id, 0):
		return fmt.Errorf("%w: id contains a NUL byte", blobderr.ErrInvalidID)
	}
	return nil
}
