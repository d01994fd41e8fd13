package metadata

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/bleepstore/blobd/internal/config"
)

// Open constructs the store selected by cfg.Engine, wrapped in a redis
// cache when cfg.Redis.Addr is set.
func Open(ctx context.Context, cfg *config.MetadataConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Engine {
	case EngineSQLite, "":
		store, err = NewSQLiteStore(cfg.SQLite.Path)
	case EngineMemory:
		store = NewMemoryStore()
	case EngineBolt:
		store, err = NewBoltStore(cfg.Bolt.Path)
	case EngineDynamoDB:
		store, err = NewDynamoDBStore(ctx, &cfg.DynamoDB)
	case EngineFirestore:
		store, err = NewFirestoreStore(ctx, &cfg.Firestore)
	case EngineCosmos:
		store, err = NewCosmosStore(ctx, &cfg.Cosmos)
	case EngineMongo:
		store, err = NewMongoStore(ctx, &cfg.Mongo)
	default:
		return nil, fmt.Errorf("unknown metadata engine %q", cfg.Engine)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Addr == "" {
		return store, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("Record cache unreachable at startup", "addr", cfg.Redis.Addr, "error", err)
	}
	slog.Info("Record cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
	return NewCachedStore(store, client, cfg.Redis.TTL), nil
}
