// Package metadata defines the interface and implementations for blobd's
// metadata layer, which records one immutable entry per stored blob.
package metadata

import (
	"context"
	"io"
	"time"

	"github.com/bleepstore/blobd/internal/storage"
)

// BlobRecord describes one stored blob. Records are created once and never
// mutated.
type BlobRecord struct {
	ID string
	// Size is the byte length of the raw payload.
	Size      int64
	CreatedAt time.Time
	// Backend names the storage variant that holds the bytes.
	Backend storage.Tag
}

// Store persists BlobRecords keyed by id.
//
// Create must enforce id uniqueness at the point of insertion, using the
// engine's native constraint or conditional write, so that of two concurrent
// creates for one id exactly one succeeds. An Exists check beforehand is an
// optimization only.
type Store interface {
	// Exists reports whether a record for id exists.
	Exists(ctx context.Context, id string) (bool, error)

	// Create inserts rec. It returns errors.ErrDuplicateID if a record with
	// the same id already exists.
	Create(ctx context.Context, rec *BlobRecord) error

	// Get returns the record for id, or errors.ErrNotFound.
	Get(ctx context.Context, id string) (*BlobRecord, error)

	// Ping checks connectivity to the underlying engine.
	Ping(ctx context.Context) error

	io.Closer
}

// Engine names accepted in configuration.
const (
	EngineSQLite    = "sqlite"
	EngineMemory    = "memory"
	EngineBolt      = "bolt"
	EngineDynamoDB  = "dynamodb"
	EngineFirestore = "firestore"
	EngineCosmos    = "cosmos"
	EngineMongo     = "mongo"
)

// timeFormat is the ISO 8601 format used for timestamps stored as text.
const timeFormat = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}
