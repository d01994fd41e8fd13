package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	blobderr "github.com/bleepstore/blobd/internal/errors"
	"github.com/bleepstore/blobd/internal/storage"
)

// SQLiteStore implements Store on SQLite. The blobs_meta primary key is the
// uniqueness constraint for blob ids.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore with the given DSN and initializes
// the database schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}
	// PRAGMAs are per connection; one connection keeps them applied.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite database: %w", err)
	}
	return s, nil
}

// initDB applies PRAGMAs and creates the schema. Safe to call repeatedly.
func (s *SQLiteStore) initDB() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS blobs_meta (
			id         TEXT PRIMARY KEY,
			size       INTEGER NOT NULL CHECK (size >= 0),
			backend    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (1, ?)`,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	return nil
}

// DB returns the underlying database handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Exists reports whether a row for id exists.
func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM blobs_meta WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking blob %q: %w", id, err)
	}
	return true, nil
}

// Create inserts rec, relying on the primary key to reject duplicates.
func (s *SQLiteStore) Create(ctx context.Context, rec *BlobRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs_meta (id, size, backend, created_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Size, string(rec.Backend), formatTime(rec.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", blobderr.ErrDuplicateID, rec.ID)
		}
		return fmt.Errorf("creating blob record %q: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record for id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*BlobRecord, error) {
	var (
		rec       BlobRecord
		backend   string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, size, backend, created_at FROM blobs_meta WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Size, &backend, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", blobderr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting blob record %q: %w", id, err)
	}
	rec.Backend = storage.Tag(backend)
	rec.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at for %q: %w", id, err)
	}
	return &rec, nil
}

// isUniqueViolation reports whether err is a primary key or unique
// constraint failure.
func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
