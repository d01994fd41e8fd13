package metadata

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	blobderr "github.com/bleepstore/blobd/internal/errors"
)

// fakeMongo enforces the unique _id index the way a server does, answering
// with write error 11000.
type fakeMongo struct {
	mu        sync.Mutex
	docs      map[string]mongoRecord
	insertErr error
}

func newFakeMongo() *fakeMongo {
	return &fakeMongo{docs: make(map[string]mongoRecord)}
}

func (f *fakeMongo) InsertOne(ctx context.Context, document interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	doc := document.(mongoRecord)
	if _, ok := f.docs[doc.ID]; ok {
		return nil, mongo.WriteException{WriteErrors: mongo.WriteErrors{{
			Code:    11000,
			Message: "E11000 duplicate key error collection: blobd.blobs_meta index: _id_",
		}}}
	}
	f.docs[doc.ID] = doc
	return &mongo.InsertOneResult{InsertedID: doc.ID}, nil
}

func (f *fakeMongo) FindOne(ctx context.Context, filter interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := filter.(bson.M)["_id"].(string)
	doc, ok := f.docs[id]
	if !ok {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(doc, nil, nil)
}

func (f *fakeMongo) CountDocuments(ctx context.Context, filter interface{}, _ ...*options.CountOptions) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := filter.(bson.M)["_id"].(string); ok {
		if _, found := f.docs[id]; found {
			return 1, nil
		}
		return 0, nil
	}
	return int64(len(f.docs)), nil
}

func TestMongoStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store {
		return NewMongoStoreWithCollection(newFakeMongo())
	})
}

func TestMongoStoreDocumentLayout(t *testing.T) {
	fake := newFakeMongo()
	s := NewMongoStoreWithCollection(fake)
	if err := s.Create(context.Background(), newRecord("doc-1", 11)); err != nil {
		t.Fatal(err)
	}
	doc, ok := fake.docs["doc-1"]
	if !ok {
		t.Fatalf("document not stored under _id doc-1: %v", fake.docs)
	}
	if doc.Size != 11 || doc.Backend != "local" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestMongoStoreOtherWriteErrorsAreNotDuplicates(t *testing.T) {
	fake := newFakeMongo()
	fake.insertErr = mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 121, Message: "Document failed validation"}}}
	s := NewMongoStoreWithCollection(fake)

	err := s.Create(context.Background(), newRecord("doc-1", 1))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, blobderr.ErrDuplicateID) {
		t.Errorf("validation failure reported as duplicate: %v", err)
	}
}
