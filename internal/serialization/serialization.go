// Package serialization exports blob metadata from SQLite to JSON and imports
// it back through any metadata engine.
package serialization

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	blobderr "github.com/bleepstore/blobd/internal/errors"
	"github.com/bleepstore/blobd/internal/metadata"
	"github.com/bleepstore/blobd/internal/storage"
)

const (
	Version       = "0.1.0"
	ExportVersion = 1
)

const timeFormat = "2006-01-02T15:04:05.000Z"

// Envelope describes where and when an export was produced.
type Envelope struct {
	Version       int    `json:"version"`
	ExportedAt    string `json:"exported_at"`
	SchemaVersion int    `json:"schema_version"`
	Source        string `json:"source"`
}

// Row is one blobs_meta record in export form.
type Row struct {
	ID        string `json:"id"`
	Size      int64  `json:"size"`
	Backend   string `json:"backend"`
	CreatedAt string `json:"created_at"`
}

// Document is the top-level export document.
type Document struct {
	Export    Envelope `json:"blobd_export"`
	BlobsMeta []Row    `json:"blobs_meta"`
}

// ImportResult holds the result of an import operation.
type ImportResult struct {
	Imported int
	Skipped  int
	Warnings []string
}

// ExportMetadata reads every blobs_meta row from the SQLite database at
// dbPath, ordered by id, and returns an indented JSON document.
func ExportMetadata(ctx context.Context, dbPath string) (string, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return "", fmt.Errorf("opening database: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return "", fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	doc := Document{
		Export: Envelope{
			Version:       ExportVersion,
			ExportedAt:    time.Now().UTC().Format(timeFormat),
			SchemaVersion: getSchemaVersion(ctx, db),
			Source:        "go/" + Version,
		},
		BlobsMeta: make([]Row, 0),
	}

	rows, err := db.QueryContext(ctx, `SELECT id, size, backend, created_at FROM blobs_meta ORDER BY id`)
	if err != nil {
		return "", fmt.Errorf("querying blobs_meta: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Size, &r.Backend, &r.CreatedAt); err != nil {
			return "", fmt.Errorf("scanning blobs_meta row: %w", err)
		}
		doc.BlobsMeta = append(doc.BlobsMeta, r)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating blobs_meta: %w", err)
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ImportMetadata parses an export document and creates each record in store.
// Ids that already exist are skipped; rows that cannot be parsed or stored
// are skipped with a warning.
func ImportMetadata(ctx context.Context, store metadata.Store, jsonStr string) (*ImportResult, error) {
	var doc Document
	if err := json.Unmarshal([]byte(jsonStr), &doc); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if doc.Export.Version < 1 || doc.Export.Version > ExportVersion {
		return nil, fmt.Errorf("unsupported export version: %d", doc.Export.Version)
	}

	result := &ImportResult{}
	for _, r := range doc.BlobsMeta {
		rec, err := r.record()
		if err != nil {
			result.Skipped++
			result.Warnings = append(result.Warnings, fmt.Sprintf("Skipped %q: %v", r.ID, err))
			continue
		}
		if err := store.Create(ctx, rec); err != nil {
			result.Skipped++
			if !blobderr.Is(err, blobderr.ErrDuplicateID) {
				result.Warnings = append(result.Warnings, fmt.Sprintf("Skipped %q: %v", r.ID, err))
			}
			continue
		}
		result.Imported++
	}
	return result, nil
}

func (r Row) record() (*metadata.BlobRecord, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("empty id")
	}
	if r.Size < 0 {
		return nil, fmt.Errorf("negative size %d", r.Size)
	}
	tag, err := storage.ParseTag(r.Backend)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(timeFormat, r.CreatedAt)
	if err != nil {
		createdAt, err = time.Parse(time.RFC3339Nano, r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("bad created_at %q", r.CreatedAt)
		}
	}
	return &metadata.BlobRecord{
		ID:        r.ID,
		Size:      r.Size,
		Backend:   tag,
		CreatedAt: createdAt.UTC(),
	}, nil
}

func getSchemaVersion(ctx context.Context, db *sql.DB) int {
	var version int
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		return 1
	}
	return version
}
