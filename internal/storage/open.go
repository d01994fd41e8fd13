package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bleepstore/blobd/internal/config"
)

// Open constructs the backend for tag from cfg.
func Open(ctx context.Context, tag Tag, cfg *config.Config) (Backend, error) {
	sc := &cfg.Storage
	switch tag {
	case TagLocal:
		b, err := NewLocalBackend(sc.Local.RootDir)
		if err != nil {
			return nil, err
		}
		if err := b.CleanTempFiles(); err != nil {
			slog.Warn("Failed to clean temp files", "root", sc.Local.RootDir, "error", err)
		}
		return b, nil
	case TagDB:
		path := sc.DB.Path
		if path == "" {
			path = cfg.Metadata.SQLite.Path
		}
		return NewSQLiteBackend(path)
	case TagS3:
		return NewRemoteBackend(ctx, RemoteConfig{
			Endpoint:  sc.S3.Endpoint,
			Bucket:    sc.S3.Bucket,
			AccessKey: sc.S3.AccessKey,
			SecretKey: sc.S3.SecretKey,
			Region:    sc.S3.Region,
		})
	case TagGCS:
		return NewGCSBackend(ctx, sc.GCS.Bucket, sc.GCS.Prefix, sc.GCS.CredentialsFile)
	case TagAzure:
		return NewAzureBackend(ctx, AzureConfig{
			Container:          sc.Azure.Container,
			AccountURL:         sc.Azure.AccountURL,
			ConnectionString:   sc.Azure.ConnectionString,
			UseManagedIdentity: sc.Azure.UseManagedIdentity,
			Prefix:             sc.Azure.Prefix,
		})
	case TagMemory:
		return NewMemoryBackend(sc.Memory.MaxSizeBytes), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", tag)
}

// OpenAll constructs the active backend and every read backend. It returns
// the backends keyed by tag and the active tag.
func OpenAll(ctx context.Context, cfg *config.Config) (map[Tag]Backend, Tag, error) {
	active, err := ParseTag(cfg.Storage.Backend)
	if err != nil {
		return nil, "", err
	}
	tags := []Tag{active}
	for _, name := range cfg.Storage.ReadBackends {
		t, err := ParseTag(name)
		if err != nil {
			return nil, "", err
		}
		tags = append(tags, t)
	}

	backends := make(map[Tag]Backend, len(tags))
	for _, t := range tags {
		if _, ok := backends[t]; ok {
			continue
		}
		b, err := Open(ctx, t, cfg)
		if err != nil {
			CloseAll(backends)
			return nil, "", fmt.Errorf("opening %s backend: %w", t, err)
		}
		backends[t] = b
	}
	return backends, active, nil
}

// CloseAll closes every backend that holds resources.
func CloseAll(backends map[Tag]Backend) error {
	var errs []error
	for _, b := range backends {
		if c, ok := b.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
