package metadata

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bleepstore/blobd/internal/config"
	blobderr "github.com/bleepstore/blobd/internal/errors"
	"github.com/bleepstore/blobd/internal/storage"
)

// FirestoreStore implements Store on a Firestore collection. Document ids
// are the base64url form of the blob id, since Firestore forbids "/" in ids.
// DocumentRef.Create fails with AlreadyExists when the document is present,
// which is the uniqueness constraint.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

type firestoreDoc struct {
	ID        string    `firestore:"id"`
	Size      int64     `firestore:"size"`
	Backend   string    `firestore:"backend"`
	CreatedAt time.Time `firestore:"created_at"`
}

func NewFirestoreStore(ctx context.Context, cfg *config.FirestoreConfig) (*FirestoreStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("firestore config is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "blobs_meta"
	}
	return &FirestoreStore{client: client, collection: collection}, nil
}

func docID(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func (s *FirestoreStore) doc(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(docID(id))
}

func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.client.Collection(s.collection).Limit(1).Documents(ctx).Next()
	if err != nil && err != iterator.Done {
		return err
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// firestoreError maps the gRPC status of a document call onto the store
// sentinels.
func firestoreError(op, id string, err error) error {
	switch status.Code(err) {
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", blobderr.ErrDuplicateID, id)
	case codes.NotFound:
		return fmt.Errorf("%w: %s", blobderr.ErrNotFound, id)
	}
	return fmt.Errorf("%s blob record %q: %w", op, id, err)
}

func (s *FirestoreStore) Exists(ctx context.Context, id string) (bool, error) {
	snap, err := s.doc(id).Get(ctx)
	if err != nil {
		err = firestoreError("checking", id, err)
		if blobderr.Is(err, blobderr.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return snap.Exists(), nil
}

func (s *FirestoreStore) Create(ctx context.Context, rec *BlobRecord) error {
	_, err := s.doc(rec.ID).Create(ctx, firestoreDoc{
		ID:        rec.ID,
		Size:      rec.Size,
		Backend:   string(rec.Backend),
		CreatedAt: rec.CreatedAt.UTC(),
	})
	if err != nil {
		return firestoreError("creating", rec.ID, err)
	}
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*BlobRecord, error) {
	snap, err := s.doc(id).Get(ctx)
	if err != nil {
		return nil, firestoreError("getting", id, err)
	}
	var d firestoreDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decoding blob record %q: %w", id, err)
	}
	return &BlobRecord{
		ID:        d.ID,
		Size:      d.Size,
		Backend:   storage.Tag(d.Backend),
		CreatedAt: d.CreatedAt.UTC(),
	}, nil
}
