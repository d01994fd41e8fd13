package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	blobderr "github.com/bleepstore/blobd/internal/errors"
)

// AzureBlobAPI defines the subset of the Azure Blob Storage client the
// backend uses. This allows mocking in tests.
type AzureBlobAPI interface {
	// UploadBlob uploads data to a blob, overwriting if it already exists.
	UploadBlob(ctx context.Context, containerName, blobName string, data []byte) error
	// DownloadBlob downloads a blob's contents.
	DownloadBlob(ctx context.Context, containerName, blobName string) ([]byte, error)
	// ContainerExists reports an error if the container cannot be reached.
	ContainerExists(ctx context.Context, containerName string) error
}

// AzureConfig holds the settings for NewAzureBackend.
type AzureConfig struct {
	Container string
	// AccountURL is the storage account URL, e.g.
	// https://account.blob.core.windows.net.
	AccountURL         string
	ConnectionString   string
	UseManagedIdentity bool
	Prefix             string
}

// AzureBackend implements Backend on an Azure Blob Storage container. Blob
// id maps to blob name Prefix+id.
type AzureBackend struct {
	// Container is the Azure Blob container name.
	Container string
	// Prefix is prepended to every blob name.
	Prefix string
	client AzureBlobAPI
}

// NewAzureBackend creates an Azure Blob client from cfg.
func NewAzureBackend(ctx context.Context, cfg AzureConfig) (*AzureBackend, error) {
	if cfg.Container == "" {
		return nil, fmt.Errorf("azure container is required")
	}
	client, err := newRealAzureClient(cfg.AccountURL, cfg.ConnectionString, cfg.UseManagedIdentity)
	if err != nil {
		return nil, err
	}
	slog.Info("Azure storage backend initialized", "container", cfg.Container, "account", cfg.AccountURL, "prefix", cfg.Prefix)
	return NewAzureBackendWithClient(cfg.Container, cfg.Prefix, client), nil
}

// NewAzureBackendWithClient creates an AzureBackend with a pre-configured
// client. Used by tests.
func NewAzureBackendWithClient(container, prefix string, client AzureBlobAPI) *AzureBackend {
	return &AzureBackend{Container: container, Prefix: prefix, client: client}
}

// Write uploads data as a block blob.
func (b *AzureBackend) Write(ctx context.Context, id string, data []byte) error {
	if err := b.client.UploadBlob(ctx, b.Container, b.Prefix+id, data); err != nil {
		return blobderr.WriteError(string(TagAzure), id, err)
	}
	return nil
}

// Read downloads the blob.
func (b *AzureBackend) Read(ctx context.Context, id string) ([]byte, error) {
	data, err := b.client.DownloadBlob(ctx, b.Container, b.Prefix+id)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, blobderr.ReadError(string(TagAzure), id, fmt.Errorf("blob missing from container %q", b.Container))
		}
		return nil, blobderr.ReadError(string(TagAzure), id, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// HealthCheck verifies the container is reachable.
func (b *AzureBackend) HealthCheck(ctx context.Context) error {
	return b.client.ContainerExists(ctx, b.Container)
}
