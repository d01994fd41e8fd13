package storage

import (
	"context"
	"errors"
	"testing"

	blobderr "github.com/bleepstore/blobd/internal/errors"
)

func TestMemoryBackendContract(t *testing.T) {
	testBackendContract(t, NewMemoryBackend(0))
}

func TestMemoryBackendLimit(t *testing.T) {
	b := NewMemoryBackend(8)
	ctx := context.Background()
	if err := b.Write(ctx, "a", []byte("12345")); err != nil {
		t.Fatal(err)
	}
	if err := b.Write(ctx, "b", []byte("12345")); !errors.Is(err, blobderr.ErrStorageWrite) {
		t.Fatalf("Write over limit = %v, want ErrStorageWrite", err)
	}
	if _, err := b.Read(ctx, "b"); !errors.Is(err, blobderr.ErrStorageRead) {
		t.Errorf("rejected write is readable: %v", err)
	}
	// Overwriting in place only counts the difference.
	if err := b.Write(ctx, "a", []byte("12345678")); err != nil {
		t.Errorf("overwrite within limit failed: %v", err)
	}
}

func TestMemoryBackendCopies(t *testing.T) {
	b := NewMemoryBackend(0)
	ctx := context.Background()
	data := []byte("abc")
	if err := b.Write(ctx, "k", data); err != nil {
		t.Fatal(err)
	}
	data[0] = 'z'
	got, _ := b.Read(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored bytes aliased caller buffer: %q", got)
	}
	got[1] = 'z'
	again, _ := b.Read(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("returned bytes aliased stored buffer: %q", again)
	}
}
