package metadata

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore is a read-through redis cache in front of another Store.
// Records are immutable, so a cached entry never needs invalidation; the TTL
// only bounds memory. Redis failures are logged and fall through to the
// wrapped store. Exists is served by the wrapped store.
type CachedStore struct {
	Store
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCachedStore wraps next with a cache on client.
func NewCachedStore(next Store, client *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{Store: next, client: client, ttl: ttl, prefix: "blobd:meta:"}
}

func (c *CachedStore) key(id string) string {
	return c.prefix + id
}

func (c *CachedStore) lookup(ctx context.Context, id string) *BlobRecord {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Record cache read failed", "id", id, "error", err)
		}
		return nil
	}
	rec, err := decodeRecord(data)
	if err != nil {
		slog.Warn("Record cache entry corrupt", "id", id, "error", err)
		return nil
	}
	return rec
}

func (c *CachedStore) remember(ctx context.Context, rec *BlobRecord) {
	data, err := encodeRecord(rec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(rec.ID), data, c.ttl).Err(); err != nil {
		slog.Warn("Record cache write failed", "id", rec.ID, "error", err)
	}
}

// Create writes through to the wrapped store and caches the record only
// after the insert succeeded.
func (c *CachedStore) Create(ctx context.Context, rec *BlobRecord) error {
	if err := c.Store.Create(ctx, rec); err != nil {
		return err
	}
	c.remember(ctx, rec)
	return nil
}

func (c *CachedStore) Get(ctx context.Context, id string) (*BlobRecord, error) {
	if rec := c.lookup(ctx, id); rec != nil {
		return rec, nil
	}
	rec, err := c.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, rec)
	return rec, nil
}

// Ping reports the wrapped store's health. A redis outage only degrades
// reads, so it is logged and not returned.
func (c *CachedStore) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		slog.Warn("Record cache ping failed", "error", err)
	}
	return c.Store.Ping(ctx)
}

func (c *CachedStore) Close() error {
	return errors.Join(c.client.Close(), c.Store.Close())
}
