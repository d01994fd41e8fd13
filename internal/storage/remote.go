// Remote object backend.
//
// Each blob is one object in a single bucket of an S3-compatible service,
// addressed path-style as <endpoint>/<bucket>/<id>. Every Write is exactly
// one signed PUT and every Read exactly one GET: SDK retries are disabled so
// failure semantics match the other backends. Any non-2xx response is an
// error.

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	blobderr "github.com/bleepstore/blobd/internal/errors"
)

// DefaultRegion is used when neither configuration nor the endpoint host
// name a region.
const DefaultRegion = "us-east-1"

// S3API defines the subset of the S3 client the remote backend uses. This
// allows mocking in tests.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// RemoteConfig holds the settings for NewRemoteBackend.
type RemoteConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	// Region overrides the region derived from Endpoint.
	Region string
}

// RemoteBackend implements Backend against an S3-compatible object store.
type RemoteBackend struct {
	// Bucket is the remote bucket name.
	Bucket string
	// Region is the signing region.
	Region string
	client S3API
}

// regionPatterns extract a region from well-known provider host names.
var regionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`s3[.-]([a-z0-9-]+)\.amazonaws\.com`),
	regexp.MustCompile(`([a-z0-9-]+)\.digitaloceanspaces\.com`),
	regexp.MustCompile(`([a-z0-9-]+)\.linodeobjects\.com`),
	regexp.MustCompile(`s3\.([a-z0-9-]+)\.backblazeb2\.com`),
	regexp.MustCompile(`s3\.([a-z0-9-]+)\.wasabisys\.com`),
}

// RegionFromEndpoint derives the signing region from an endpoint URL,
// falling back to DefaultRegion.
func RegionFromEndpoint(endpoint string) string {
	host := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	for _, re := range regionPatterns {
		if m := re.FindStringSubmatch(host); m != nil {
			return m[1]
		}
	}
	return DefaultRegion
}

// NewRemoteBackend builds an S3 client for the configured endpoint with
// path-style addressing, static (or anonymous) credentials and retries
// disabled. It does not contact the endpoint.
func NewRemoteBackend(ctx context.Context, cfg RemoteConfig) (*RemoteBackend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote storage endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("remote storage bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = RegionFromEndpoint(cfg.Endpoint)
	}

	var creds aws.CredentialsProvider = aws.AnonymousCredentials{}
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
		o.Retryer = aws.NopRetryer{}
	})

	slog.Info("Remote storage backend initialized", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket, "region", region)
	return NewRemoteBackendWithClient(cfg.Bucket, region, client), nil
}

// NewRemoteBackendWithClient creates a RemoteBackend with a pre-configured
// client. Used by tests.
func NewRemoteBackendWithClient(bucket, region string, client S3API) *RemoteBackend {
	return &RemoteBackend{Bucket: bucket, Region: region, client: client}
}

// Write uploads data with a single PUT.
func (b *RemoteBackend) Write(ctx context.Context, id string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.Bucket),
		Key:           aws.String(id),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return blobderr.WriteError(string(TagS3), id, err)
	}
	return nil
}

// Read downloads the object with a single GET.
func (b *RemoteBackend) Read(ctx context.Context, id string) ([]byte, error) {
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		if isRemoteNotFound(err) {
			return nil, blobderr.ReadError(string(TagS3), id, fmt.Errorf("object missing from bucket %q", b.Bucket))
		}
		return nil, blobderr.ReadError(string(TagS3), id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, blobderr.ReadError(string(TagS3), id, fmt.Errorf("reading response body: %w", err))
	}
	return data, nil
}

// HealthCheck verifies that the bucket is reachable.
func (b *RemoteBackend) HealthCheck(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.Bucket),
	})
	return err
}

// isRemoteNotFound checks if an S3 error is a 404/NoSuchKey/NotFound error.
func isRemoteNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}
