package cachestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// StoreType represents the backend used to persist cache blobs.
type StoreType string

const (
	// StoreTypeDir keeps one file per blob in a directory.
	StoreTypeDir StoreType = "dir"
	// StoreTypeSQLite keeps all blobs in one SQLite file.
	StoreTypeSQLite StoreType = "sqlite"
	// StoreTypeRedis keeps blobs in a Redis instance.
	StoreTypeRedis StoreType = "redis"
)

// StoreConfig holds configuration for creating a cache store.
type StoreConfig struct {
	Type          StoreType    // Type of backend to create
	Path          string       // Directory (dir) or database file (sqlite)
	RedisAddr     string       // Address of the Redis server (redis)
	RedisPassword string       // Password of the Redis server (redis)
	RedisDB       int          // Redis database number (redis)
	Logger        *slog.Logger // Logger for the store
}

// NewStore creates a cache store based on the provided configuration.
//
// Supported store types:
// - "dir": a directory with one file per blob (default)
// - "sqlite": a single SQLite database file
// - "redis": a Redis instance shared by several processes
func NewStore(ctx context.Context, config StoreConfig) (Store, error) {
	switch config.Type {
	case StoreTypeDir, "":
		return newDirStore(config)
	case StoreTypeSQLite:
		return newSQLiteStore(ctx, config)
	case StoreTypeRedis:
		return newRedisStore(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported cache store type: %s", config.Type)
	}
}

func newDirStore(config StoreConfig) (Store, error) {
	if config.Path == "" {
		return nil, errors.New("path is required for dir cache store")
	}
	return NewDirStore(config.Path)
}

func newSQLiteStore(ctx context.Context, config StoreConfig) (Store, error) {
	if config.Path == "" {
		return nil, errors.New("path is required for sqlite cache store")
	}
	return NewSQLiteStore(ctx, config.Path)
}

func newRedisStore(ctx context.Context, config StoreConfig) (Store, error) {
	if config.RedisAddr == "" {
		return nil, errors.New("address is required for redis cache store")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis cache: %w", err)
	}
	config.Logger.Debug("Connected to redis cache", "addr", config.RedisAddr, "db", config.RedisDB)

	return NewRedisStore(client, DefaultRedisPrefix), nil
}
