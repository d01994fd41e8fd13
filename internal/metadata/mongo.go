package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bleepstore/blobd/internal/config"
	blobderr "github.com/bleepstore/blobd/internal/errors"
	"github.com/bleepstore/blobd/internal/storage"
)

// MongoCollection is the subset of *mongo.Collection the store uses.
type MongoCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// MongoStore implements Store on a MongoDB (or DocumentDB) collection. The
// blob id is the document _id, so the primary index rejects duplicates.
type MongoStore struct {
	client     *mongo.Client
	collection MongoCollection
}

type mongoRecord struct {
	ID        string    `bson:"_id"`
	Size      int64     `bson:"size"`
	Backend   string    `bson:"backend"`
	CreatedAt time.Time `bson:"created_at"`
}

func NewMongoStore(ctx context.Context, cfg *config.MongoConfig) (*MongoStore, error) {
	if cfg == nil || cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "blobd"
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "blobs_meta"
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// NewMongoStoreWithCollection is used by tests. Close is a no-op.
func NewMongoStoreWithCollection(coll MongoCollection) *MongoStore {
	return &MongoStore{collection: coll}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if s.client == nil {
		_, err := s.collection.CountDocuments(ctx, bson.M{}, options.Count().SetLimit(1))
		return err
	}
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("checking blob %q: %w", id, err)
	}
	return n > 0, nil
}

func (s *MongoStore) Create(ctx context.Context, rec *BlobRecord) error {
	_, err := s.collection.InsertOne(ctx, mongoRecord{
		ID:        rec.ID,
		Size:      rec.Size,
		Backend:   string(rec.Backend),
		CreatedAt: rec.CreatedAt.UTC(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", blobderr.ErrDuplicateID, rec.ID)
		}
		return fmt.Errorf("creating blob record %q: %w", rec.ID, err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*BlobRecord, error) {
	var doc mongoRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", blobderr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting blob record %q: %w", id, err)
	}
	return &BlobRecord{
		ID:        doc.ID,
		Size:      doc.Size,
		Backend:   storage.Tag(doc.Backend),
		CreatedAt: doc.CreatedAt.UTC(),
	}, nil
}
