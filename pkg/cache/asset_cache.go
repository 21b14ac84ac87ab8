package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

/**
 * @file: asset_cache.go
 * @description: redis-backed cache for plugin asset blobs (icons etc.)
 */

// ErrAssetMiss is returned when the asset is not cached.
var ErrAssetMiss = errors.New("asset cache miss")

type AssetCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewAssetCache(client *redis.Client, prefix string, ttl time.Duration) *AssetCache {
	if prefix == "" {
		prefix = "plugin:asset:"
	}
	return &AssetCache{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the cached asset bytes and mimetype.
func (ac *AssetCache) Get(ctx context.Context, key string) ([]byte, string, error) {
	if ac == nil || ac.client == nil {
		return nil, "", ErrAssetMiss
	}
	vals, err := ac.client.HMGet(ctx, ac.prefix+key, "data", "mime").Result()
	if err != nil {
		return nil, "", err
	}
	data, ok := vals[0].(string)
	if !ok || data == "" {
		return nil, "", ErrAssetMiss
	}
	mime, _ := vals[1].(string)
	return []byte(data), mime, nil
}

// Set stores the asset bytes and mimetype with the configured TTL.
func (ac *AssetCache) Set(ctx context.Context, key string, data []byte, mime string) error {
	if ac == nil || ac.client == nil {
		return nil
	}
	k := ac.prefix + key
	pipe := ac.client.TxPipeline()
	pipe.HSet(ctx, k, "data", data, "mime", mime)
	if ac.ttl > 0 {
		pipe.Expire(ctx, k, ac.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
