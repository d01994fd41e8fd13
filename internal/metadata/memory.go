package metadata

import (
	"context"
	"fmt"
	"sync"

	blobderr "github.com/bleepstore/blobd/internal/errors"
)

// MemoryStore implements Store with an in-process map. The existence check
// and insert in Create happen under one write lock.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]BlobRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]BlobRecord)}
}

func (m *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[id]
	return ok, nil
}

func (m *MemoryStore) Create(ctx context.Context, rec *BlobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; ok {
		return fmt.Errorf("%w: %s", blobderr.ErrDuplicateID, rec.ID)
	}
	m.records[rec.ID] = *rec
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*BlobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", blobderr.ErrNotFound, id)
	}
	return &rec, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
