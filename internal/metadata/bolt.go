package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	blobderr "github.com/bleepstore/blobd/internal/errors"
	"github.com/bleepstore/blobd/internal/storage"
)

var blobsBucket = []byte("blobs")

// storedRecord is the msgpack form of a BlobRecord, shared by the bolt
// store and the redis cache.
type storedRecord struct {
	ID        string    `msgpack:"id"`
	Size      int64     `msgpack:"size"`
	Backend   string    `msgpack:"backend"`
	CreatedAt time.Time `msgpack:"created_at"`
}

func encodeRecord(rec *BlobRecord) ([]byte, error) {
	return msgpack.Marshal(&storedRecord{
		ID:        rec.ID,
		Size:      rec.Size,
		Backend:   string(rec.Backend),
		CreatedAt: rec.CreatedAt.UTC(),
	})
}

func decodeRecord(data []byte) (*BlobRecord, error) {
	var sr storedRecord
	if err := msgpack.Unmarshal(data, &sr); err != nil {
		return nil, err
	}
	return &BlobRecord{
		ID:        sr.ID,
		Size:      sr.Size,
		Backend:   storage.Tag(sr.Backend),
		CreatedAt: sr.CreatedAt.UTC(),
	}, nil
}

// BoltStore implements Store on an embedded bbolt database. bbolt allows a
// single writer at a time, so checking for the key and putting it inside one
// Update transaction is atomic.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blobsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bolt bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Exists(ctx context.Context, id string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(blobsBucket).Get([]byte(id)) != nil
		return nil
	})
	return found, err
}

func (s *BoltStore) Create(ctx context.Context, rec *BlobRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encoding blob record %q: %w", rec.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(blobsBucket)
		if b.Get([]byte(rec.ID)) != nil {
			return fmt.Errorf("%w: %s", blobderr.ErrDuplicateID, rec.ID)
		}
		return b.Put([]byte(rec.ID), data)
	})
}

func (s *BoltStore) Get(ctx context.Context, id string) (*BlobRecord, error) {
	var rec *BlobRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(blobsBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", blobderr.ErrNotFound, id)
		}
		var err error
		rec, err = decodeRecord(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(blobsBucket) == nil {
			return fmt.Errorf("bolt bucket %q missing", blobsBucket)
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
