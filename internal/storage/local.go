package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	blobderr "github.com/bleepstore/blobd/internal/errors"
)

// LocalBackend implements Backend on the local filesystem. Each blob is one
// file directly under RootDir, named by its id.
type LocalBackend struct {
	// RootDir is the directory that holds blob files.
	RootDir string
}

// NewLocalBackend creates a new LocalBackend rooted at the given directory.
// It creates the root directory and the temp directory if they do not exist.
func NewLocalBackend(rootDir string) (*LocalBackend, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root directory %q: %w", rootDir, err)
	}
	tmpDir := filepath.Join(rootDir, ".tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory %q: %w", tmpDir, err)
	}
	return &LocalBackend{RootDir: rootDir}, nil
}

// CleanTempFiles removes all files in the .tmp directory. Anything found
// there is a write interrupted by a crash and was never renamed into place,
// so no record can reference it. Called once on startup.
func (b *LocalBackend) CleanTempFiles() error {
	tmpDir := filepath.Join(b.RootDir, ".tmp")
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading temp directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			os.Remove(filepath.Join(tmpDir, entry.Name()))
		}
	}
	return nil
}

// blobPath validates id and returns the file path for it.
func (b *LocalBackend) blobPath(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	// ".tmp" is the staging directory.
	if id == ".tmp" {
		return "", fmt.Errorf("%w: %q is reserved", blobderr.ErrInvalidID, id)
	}
	return filepath.Join(b.RootDir, id), nil
}

func (b *LocalBackend) tempPath() string {
	return filepath.Join(b.RootDir, ".tmp", "tmp-"+uuid.NewString())
}

// Write stores data with the crash-only pattern: write a temp file, fsync,
// then rename over the final path. A failure at any step removes the temp
// file, so a reader sees either the whole payload or nothing.
func (b *LocalBackend) Write(ctx context.Context, id string, data []byte) error {
	path, err := b.blobPath(id)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return blobderr.WriteError(string(TagLocal), id, err)
	}

	tmpPath := b.tempPath()
	f, err := os.Create(tmpPath)
	if err != nil {
		return blobderr.WriteError(string(TagLocal), id, fmt.Errorf("creating temp file: %w", err))
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return blobderr.WriteError(string(TagLocal), id, fmt.Errorf("writing temp file: %w", err))
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return blobderr.WriteError(string(TagLocal), id, fmt.Errorf("syncing temp file: %w", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return blobderr.WriteError(string(TagLocal), id, fmt.Errorf("closing temp file: %w", err))
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return blobderr.WriteError(string(TagLocal), id, fmt.Errorf("renaming temp file: %w", err))
	}
	return nil
}

// Read returns the contents of the blob file.
func (b *LocalBackend) Read(ctx context.Context, id string) ([]byte, error) {
	path, err := b.blobPath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, blobderr.ReadError(string(TagLocal), id, fmt.Errorf("blob file missing"))
		}
		return nil, blobderr.ReadError(string(TagLocal), id, err)
	}
	return data, nil
}

// HealthCheck verifies the root directory exists and is a directory.
func (b *LocalBackend) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(b.RootDir)
	if err != nil {
		return fmt.Errorf("storage root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %q is not a directory", b.RootDir)
	}
	return nil
}
