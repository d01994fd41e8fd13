package storage

import (
	"context"
	"fmt"
	"sync"

	blobderr "github.com/bleepstore/blobd/internal/errors"
)

// MemoryBackend implements Backend with an in-process map. Contents are lost
// on restart; it exists for tests and development.
type MemoryBackend struct {
	mu          sync.RWMutex
	blobs       map[string][]byte
	currentSize int64
	// maxSizeBytes caps the total stored bytes; 0 means unlimited.
	maxSizeBytes int64
}

// NewMemoryBackend creates an empty MemoryBackend. Writes that would push
// the total past maxSizeBytes fail; 0 disables the limit.
func NewMemoryBackend(maxSizeBytes int64) *MemoryBackend {
	return &MemoryBackend{
		blobs:        make(map[string][]byte),
		maxSizeBytes: maxSizeBytes,
	}
}

// Write stores a copy of data.
func (b *MemoryBackend) Write(ctx context.Context, id string, data []byte) error {
	copied := make([]byte, len(data))
	copy(copied, data)

	b.mu.Lock()
	defer b.mu.Unlock()

	newSize := b.currentSize - int64(len(b.blobs[id])) + int64(len(copied))
	if b.maxSizeBytes > 0 && newSize > b.maxSizeBytes {
		return blobderr.WriteError(string(TagMemory), id,
			fmt.Errorf("memory limit exceeded: %d of %d bytes in use", b.currentSize, b.maxSizeBytes))
	}
	b.blobs[id] = copied
	b.currentSize = newSize
	return nil
}

// Read returns a copy of the stored bytes.
func (b *MemoryBackend) Read(ctx context.Context, id string) ([]byte, error) {
	b.mu.RLock()
	data, ok := b.blobs[id]
	b.mu.RUnlock()
	if !ok {
		return nil, blobderr.ReadError(string(TagMemory), id, fmt.Errorf("no such blob"))
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

// HealthCheck always succeeds.
func (b *MemoryBackend) HealthCheck(ctx context.Context) error {
	return nil
}

// Len returns the number of stored blobs.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}

var (
	_ Backend = (*LocalBackend)(nil)
	_ Backend = (*SQLiteBackend)(nil)
	_ Backend = (*RemoteBackend)(nil)
	_ Backend = (*GCSBackend)(nil)
	_ Backend = (*AzureBackend)(nil)
	_ Backend = (*MemoryBackend)(nil)
)
