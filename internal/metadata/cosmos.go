package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/bleepstore/blobd/internal/config"
	blobderr "github.com/bleepstore/blobd/internal/errors"
	"github.com/bleepstore/blobd/internal/storage"
)

// CosmosStore implements Store on an Azure Cosmos DB container partitioned
// on /id. Item ids use the same encoding as Firestore document ids because
// Cosmos rejects "/" and "\" in ids. CreateItem returns 409 Conflict for an
// existing id.
type CosmosStore struct {
	client    CosmosContainer
	database  string
	container string
}

// CosmosContainer is the subset of *azcosmos.ContainerClient the store uses.
type CosmosContainer interface {
	CreateItem(ctx context.Context, partitionKey azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	ReadItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemId string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	Read(ctx context.Context, o *azcosmos.ReadContainerOptions) (azcosmos.ContainerResponse, error)
}

type cosmosItem struct {
	ID        string `json:"id"`
	BlobID    string `json:"blob_id"`
	Size      int64  `json:"size"`
	Backend   string `json:"backend"`
	CreatedAt string `json:"created_at"`
}

func NewCosmosStore(ctx context.Context, cfg *config.CosmosConfig) (*CosmosStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cosmos config is required")
	}
	if cfg.Endpoint == "" || cfg.MasterKey == "" {
		return nil, fmt.Errorf("cosmos endpoint and master key are required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("cosmos database name is required")
	}
	if cfg.Container == "" {
		return nil, fmt.Errorf("cosmos container name is required")
	}

	cred, err := azcosmos.NewKeyCredential(cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("creating cosmos key credential: %w", err)
	}

	client, err := azcosmos.NewClientWithKey(cfg.Endpoint, cred, &azcosmos.ClientOptions{
		ClientOptions: policy.ClientOptions{},
	})
	if err != nil {
		return nil, fmt.Errorf("creating cosmos client: %w", err)
	}

	dbClient, err := client.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("getting database client: %w", err)
	}

	containerClient, err := dbClient.NewContainer(cfg.Container)
	if err != nil {
		return nil, fmt.Errorf("getting container client: %w", err)
	}

	return &CosmosStore{
		client:    containerClient,
		database:  cfg.Database,
		container: cfg.Container,
	}, nil
}

// NewCosmosStoreWithClient is used by tests.
func NewCosmosStoreWithClient(client CosmosContainer, database, container string) *CosmosStore {
	return &CosmosStore{client: client, database: database, container: container}
}

func cosmosStatus(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

func (s *CosmosStore) Ping(ctx context.Context) error {
	_, err := s.client.Read(ctx, nil)
	return err
}

func (s *CosmosStore) Close() error {
	return nil
}

func (s *CosmosStore) Exists(ctx context.Context, id string) (bool, error) {
	key := docID(id)
	_, err := s.client.ReadItem(ctx, azcosmos.NewPartitionKeyString(key), key, nil)
	if err != nil {
		if cosmosStatus(err) == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("checking blob %q: %w", id, err)
	}
	return true, nil
}

func (s *CosmosStore) Create(ctx context.Context, rec *BlobRecord) error {
	key := docID(rec.ID)
	data, err := json.Marshal(cosmosItem{
		ID:        key,
		BlobID:    rec.ID,
		Size:      rec.Size,
		Backend:   string(rec.Backend),
		CreatedAt: formatTime(rec.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("marshaling blob record %q: %w", rec.ID, err)
	}

	_, err = s.client.CreateItem(ctx, azcosmos.NewPartitionKeyString(key), data, nil)
	if err != nil {
		if cosmosStatus(err) == http.StatusConflict {
			return fmt.Errorf("%w: %s", blobderr.ErrDuplicateID, rec.ID)
		}
		return fmt.Errorf("creating blob record %q: %w", rec.ID, err)
	}
	return nil
}

func (s *CosmosStore) Get(ctx context.Context, id string) (*BlobRecord, error) {
	key := docID(id)
	resp, err := s.client.ReadItem(ctx, azcosmos.NewPartitionKeyString(key), key, nil)
	if err != nil {
		if cosmosStatus(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", blobderr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting blob record %q: %w", id, err)
	}

	var item cosmosItem
	if err := json.Unmarshal(resp.Value, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling blob record %q: %w", id, err)
	}
	createdAt, err := parseTime(item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at for %q: %w", id, err)
	}
	return &BlobRecord{
		ID:        item.BlobID,
		Size:      item.Size,
		Backend:   storage.Tag(item.Backend),
		CreatedAt: createdAt,
	}, nil
}
