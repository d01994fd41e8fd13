package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	blobderr "github.com/bleepstore/blobd/internal/errors"
)

func newTestBackend(t *testing.T) *LocalBackend {
	t.Helper()
	rootDir := t.TempDir()
	backend, err := NewLocalBackend(rootDir)
	if err != nil {
		t.Fatalf("NewLocalBackend failed: %v", err)
	}
	return backend
}

// testBackendContract runs the write/read behavior every backend shares.
func testBackendContract(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	content := []byte("hello world")
	if err := b.Write(ctx, "doc-1", content); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := b.Read(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Read = %q, want %q", got, content)
	}

	// Empty payloads are legal.
	if err := b.Write(ctx, "empty", []byte{}); err != nil {
		t.Fatalf("Write empty failed: %v", err)
	}
	got, err = b.Read(ctx, "empty")
	if err != nil {
		t.Fatalf("Read empty failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Read empty = %q, want empty", got)
	}

	binary := []byte{0x00, 0xff, 0x10, 0x00}
	if err := b.Write(ctx, "bin", binary); err != nil {
		t.Fatalf("Write binary failed: %v", err)
	}
	got, err = b.Read(ctx, "bin")
	if err != nil {
		t.Fatalf("Read binary failed: %v", err)
	}
	if !bytes.Equal(got, binary) {
		t.Errorf("Read binary = %v, want %v", got, binary)
	}

	_, err = b.Read(ctx, "never-written")
	if !errors.Is(err, blobderr.ErrStorageRead) {
		t.Errorf("Read missing: got %v, want ErrStorageRead", err)
	}

	if err := b.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestLocalBackendContract(t *testing.T) {
	testBackendContract(t, newTestBackend(t))
}

func TestLocalWriteLayout(t *testing.T) {
	backend := newTestBackend(t)
	if err := backend.Write(context.Background(), "doc-1", []byte("x")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(backend.RootDir, "doc-1"))
	if err != nil {
		t.Fatalf("blob file not at <root>/<id>: %v", err)
	}
	if string(data) != "x" {
		t.Errorf("file content = %q", data)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(backend.RootDir, ".tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty .tmp, found %d entries", len(entries))
	}
}

func TestLocalRejectsTraversal(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "blobs")
	backend, err := NewLocalBackend(root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	ids := []string{
		"../../etc/passwd",
		"..",
		".",
		"../escape",
		"a/b",
		`a\b`,
		"",
		".tmp",
		"nul\x00byte",
	}
	for _, id := range ids {
		if err := backend.Write(ctx, id, []byte("pwned")); !errors.Is(err, blobderr.ErrInvalidID) {
			t.Errorf("Write(%q) = %v, want ErrInvalidID", id, err)
		}
		if _, err := backend.Read(ctx, id); !errors.Is(err, blobderr.ErrInvalidID) {
			t.Errorf("Read(%q) = %v, want ErrInvalidID", id, err)
		}
	}

	// Nothing may have been created outside or inside the root.
	if _, err := os.Stat(filepath.Join(parent, "escape")); !os.IsNotExist(err) {
		t.Errorf("traversal wrote outside root: %v", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != ".tmp" {
			t.Errorf("unexpected entry in root: %s", e.Name())
		}
	}
}

func TestLocalAcceptsDotsInsideID(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	for _, id := range []string{"report..v2", "a...b", "release-1..2.tar", "..hidden", "trailing.."} {
		if err := backend.Write(ctx, id, []byte(id)); err != nil {
			t.Errorf("Write(%q) = %v", id, err)
			continue
		}
		got, err := backend.Read(ctx, id)
		if err != nil {
			t.Errorf("Read(%q) = %v", id, err)
			continue
		}
		if string(got) != id {
			t.Errorf("Read(%q) = %q", id, got)
		}
		if _, err := os.Stat(filepath.Join(backend.RootDir, id)); err != nil {
			t.Errorf("%q not stored directly under root: %v", id, err)
		}
	}
}

func TestLocalOverwriteIsWholeFile(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	if err := backend.Write(ctx, "k", []byte("a long first payload")); err != nil {
		t.Fatal(err)
	}
	if err := backend.Write(ctx, "k", []byte("short")); err != nil {
		t.Fatal(err)
	}
	got, err := backend.Read(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "short" {
		t.Errorf("Read = %q, want %q", got, "short")
	}
}

func TestLocalWriteFailureLeavesNothing(t *testing.T) {
	backend := newTestBackend(t)
	// Remove the staging directory so the temp file cannot be created.
	if err := os.RemoveAll(filepath.Join(backend.RootDir, ".tmp")); err != nil {
		t.Fatal(err)
	}
	err := backend.Write(context.Background(), "doc-1", []byte("x"))
	if !errors.Is(err, blobderr.ErrStorageWrite) {
		t.Fatalf("Write = %v, want ErrStorageWrite", err)
	}
	if _, err := backend.Read(context.Background(), "doc-1"); !errors.Is(err, blobderr.ErrStorageRead) {
		t.Errorf("Read after failed write = %v, want ErrStorageRead", err)
	}
}

func TestLocalWriteCanceledContext(t *testing.T) {
	backend := newTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := backend.Write(ctx, "doc-1", []byte("x")); !errors.Is(err, blobderr.ErrStorageWrite) {
		t.Errorf("Write with canceled ctx = %v, want ErrStorageWrite", err)
	}
}

func TestCleanTempFiles(t *testing.T) {
	backend := newTestBackend(t)
	tmpDir := filepath.Join(backend.RootDir, ".tmp")
	for _, name := range []string{"tmp-a", "tmp-b"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("partial"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := backend.CleanTempFiles(); err != nil {
		t.Fatalf("CleanTempFiles failed: %v", err)
	}
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected .tmp to be empty, got %d entries", len(entries))
	}
}

func TestLocalHealthCheckMissingRoot(t *testing.T) {
	backend := &LocalBackend{RootDir: filepath.Join(t.TempDir(), "missing")}
	if err := backend.HealthCheck(context.Background()); err == nil {
		t.Error("expected HealthCheck to fail for a missing root")
	}
}

func TestParseTag(t *testing.T) {
	for _, s := range []string{"local", "DB", " s3 ", "gcs", "azure", "memory"} {
		if _, err := ParseTag(s); err != nil {
			t.Errorf("ParseTag(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseTag("ftp"); err == nil {
		t.Error("ParseTag(ftp) should fail")
	}
}
