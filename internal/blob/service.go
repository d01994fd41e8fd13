// Package blob implements the blob service: it decodes submitted payloads,
// writes them to the active storage backend and records their metadata, and
// serves them back from whichever backend a record names.
package blob

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/bleepstore/blobd/internal/codec"
	blobderr "github.com/bleepstore/blobd/internal/errors"
	"github.com/bleepstore/blobd/internal/logging"
	"github.com/bleepstore/blobd/internal/metadata"
	"github.com/bleepstore/blobd/internal/metrics"
	"github.com/bleepstore/blobd/internal/storage"
)

// Caller identifies the authenticated principal making a request. The
// service only logs it.
type Caller string

// Anonymous is the caller used when authentication is disabled.
const Anonymous Caller = "anonymous"

// lockStripes is the number of mutexes creates are striped over.
const lockStripes = 64

// Service orchestrates the codec, storage backends and metadata store. The
// backend map and active tag are fixed at construction and never mutated.
type Service struct {
	meta     metadata.Store
	backends map[storage.Tag]storage.Backend
	active   storage.Tag
	now      func() time.Time

	// creates serializes the check-write-insert sequence per id within this
	// process, so a losing create never overwrites the winner's payload.
	creates [lockStripes]sync.Mutex
}

// NewService returns a Service writing new blobs to backends[active].
func NewService(meta metadata.Store, backends map[storage.Tag]storage.Backend, active storage.Tag) (*Service, error) {
	if meta == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if _, ok := backends[active]; !ok {
		return nil, fmt.Errorf("active backend %q is not configured", active)
	}
	copied := make(map[storage.Tag]storage.Backend, len(backends))
	for t, b := range backends {
		copied[t] = b
	}
	return &Service{
		meta:     meta,
		backends: copied,
		active:   active,
		now:      time.Now,
	}, nil
}

// Active returns the tag new blobs are written to.
func (s *Service) Active() storage.Tag { return s.active }

// CreateBlob decodes encoded and stores it under id.
//
// Steps run in order: decode, uniqueness check, payload write, record
// insert. A failure at any step aborts the rest. Once decoding succeeds the
// remaining steps run detached from ctx cancellation, so a disconnecting
// client cannot leave a payload written without its record.
//
// Creates for the same id are serialized within the process. Across
// processes sharing a metadata store, the store's insert is the arbiter: the
// loser gets ErrDuplicateID and its payload write may be left orphaned.
func (s *Service) CreateBlob(ctx context.Context, caller Caller, id, encoded string) (*metadata.BlobRecord, error) {
	log := logging.FromContext(ctx).With("caller", string(caller), "id", id)

	data, err := codec.Decode(encoded)
	if err != nil {
		observe("create", err)
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)

	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	exists, err := s.meta.Exists(ctx, id)
	if err != nil {
		log.Warn("Metadata existence check failed", "error", err)
		observe("create", err)
		return nil, fmt.Errorf("checking blob %q: %w", id, err)
	}
	if exists {
		observe("create", blobderr.ErrDuplicateID)
		return nil, fmt.Errorf("%w: %s", blobderr.ErrDuplicateID, id)
	}

	backend := s.backends[s.active]
	start := time.Now()
	err = backend.Write(ctx, id, data)
	metrics.StorageDuration.WithLabelValues(string(s.active), blobderr.OpWrite).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Warn("Payload write failed", "backend", s.active, "error", err)
		observe("create", err)
		return nil, err
	}

	rec := &metadata.BlobRecord{
		ID:        id,
		Size:      int64(len(data)),
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
		Backend:   s.active,
	}
	if err := s.meta.Create(ctx, rec); err != nil {
		if blobderr.Is(err, blobderr.ErrDuplicateID) {
			log.Warn("Lost create race; payload orphaned", "backend", s.active)
		} else {
			log.Warn("Metadata insert failed; payload orphaned", "backend", s.active, "error", err)
		}
		observe("create", err)
		return nil, err
	}

	metrics.BlobBytesTotal.WithLabelValues("in").Add(float64(rec.Size))
	observe("create", nil)
	log.Debug("Blob stored", "size", rec.Size, "backend", rec.Backend)
	return rec, nil
}

// GetBlob returns the record for id and its payload as canonical base64. The
// payload is read from the backend named in the record, which need not be
// the active one.
func (s *Service) GetBlob(ctx context.Context, caller Caller, id string) (*metadata.BlobRecord, string, error) {
	log := logging.FromContext(ctx).With("caller", string(caller), "id", id)

	rec, err := s.meta.Get(ctx, id)
	if err != nil {
		observe("get", err)
		return nil, "", err
	}

	backend, ok := s.backends[rec.Backend]
	if !ok {
		log.Warn("Record names an unconfigured backend", "backend", rec.Backend)
		observe("get", blobderr.ErrBackendUnavailable)
		return nil, "", fmt.Errorf("%w: %s", blobderr.ErrBackendUnavailable, rec.Backend)
	}

	start := time.Now()
	data, err := backend.Read(ctx, id)
	metrics.StorageDuration.WithLabelValues(string(rec.Backend), blobderr.OpRead).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Warn("Payload read failed", "backend", rec.Backend, "error", err)
		observe("get", err)
		return nil, "", err
	}

	metrics.BlobBytesTotal.WithLabelValues("out").Add(float64(len(data)))
	observe("get", nil)
	return rec, codec.Encode(data), nil
}

func (s *Service) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.creates[h.Sum32()%lockStripes]
}

// Ready checks the metadata store and the active backend.
func (s *Service) Ready(ctx context.Context) error {
	if err := s.meta.Ping(ctx); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	if err := s.backends[s.active].HealthCheck(ctx); err != nil {
		return fmt.Errorf("storage %s: %w", s.active, err)
	}
	return nil
}

func observe(op string, err error) {
	metrics.BlobOperationsTotal.WithLabelValues(op, statusOf(err)).Inc()
}

// statusOf maps an error to its metric status label.
func statusOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case blobderr.Is(err, blobderr.ErrInvalidPayloadEncoding), blobderr.Is(err, blobderr.ErrInvalidID):
		return "invalid"
	case blobderr.Is(err, blobderr.ErrDuplicateID):
		return "duplicate"
	case blobderr.Is(err, blobderr.ErrNotFound):
		return "not_found"
	case blobderr.Is(err, blobderr.ErrStorageWrite), blobderr.Is(err, blobderr.ErrStorageRead),
		blobderr.Is(err, blobderr.ErrBackendUnavailable):
		return "storage"
	default:
		return "metadata"
	}
}
