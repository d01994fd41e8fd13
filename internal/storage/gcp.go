package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	blobderr "github.com/bleepstore/blobd/internal/errors"
)

// GCSAPI defines the subset of the GCS client the backend uses. This allows
// mocking in tests.
type GCSAPI interface {
	// NewWriter returns a writer for the given object. The upload is
	// abandoned if ctx is canceled before Close.
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
	// NewReader returns a reader for the given object.
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	// BucketExists reports an error if the bucket cannot be reached.
	BucketExists(ctx context.Context, bucket string) error
}

// realGCSClient wraps the official GCS client to satisfy GCSAPI.
type realGCSClient struct {
	client *gcs.Client
}

func (c *realGCSClient) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	return w
}

func (c *realGCSClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (c *realGCSClient) BucketExists(ctx context.Context, bucket string) error {
	_, err := c.client.Bucket(bucket).Attrs(ctx)
	return err
}

// GCSBackend implements Backend on a Google Cloud Storage bucket. Blob id
// maps to object name Prefix+id.
type GCSBackend struct {
	// Bucket is the GCS bucket name.
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
	client GCSAPI
}

// NewGCSBackend creates a GCS client using Application Default Credentials,
// or the service account key file when credentialsFile is set.
func NewGCSBackend(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSBackend, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	slog.Info("GCS storage backend initialized", "bucket", bucket, "prefix", prefix)
	return NewGCSBackendWithClient(bucket, prefix, &realGCSClient{client: client}), nil
}

// NewGCSBackendWithClient creates a GCSBackend with a pre-configured client.
// Used by tests.
func NewGCSBackendWithClient(bucket, prefix string, client GCSAPI) *GCSBackend {
	return &GCSBackend{Bucket: bucket, Prefix: prefix, client: client}
}

// Write uploads data. GCS only creates the object when the writer closes
// successfully, so a failed upload leaves nothing behind.
func (b *GCSBackend) Write(ctx context.Context, id string, data []byte) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := b.client.NewWriter(ctx, b.Bucket, b.Prefix+id)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		cancel()
		_ = w.Close()
		return blobderr.WriteError(string(TagGCS), id, err)
	}
	if err := w.Close(); err != nil {
		return blobderr.WriteError(string(TagGCS), id, fmt.Errorf("finalizing upload: %w", err))
	}
	return nil
}

// Read downloads the object.
func (b *GCSBackend) Read(ctx context.Context, id string) ([]byte, error) {
	r, err := b.client.NewReader(ctx, b.Bucket, b.Prefix+id)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, blobderr.ReadError(string(TagGCS), id, fmt.Errorf("object missing from bucket %q", b.Bucket))
		}
		return nil, blobderr.ReadError(string(TagGCS), id, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, blobderr.ReadError(string(TagGCS), id, err)
	}
	return data, nil
}

// HealthCheck verifies the bucket is reachable.
func (b *GCSBackend) HealthCheck(ctx context.Context) error {
	return b.client.BucketExists(ctx, b.Bucket)
}
