package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/valkey-io/valkey-go"

	"github.com/zkreputation/verification-node/internal/config"
	"github.com/zkreputation/verification-node/internal/log"
)

const (
	ForEver = 0 * time.Second // ForEver It can be cached forever
)

// Cache interface propose an interface that any cache should adhere
type Cache interface {
	// Set sets a value in the caches accessible by the key. The ttl param is the maximum time to live in the cache
	// a ttl=0 means that the entry could be cached forever
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get searches for a non expired entry in the cache and returns the result in the value variable sent as reference and a found paramenter. You should only trust the returned value if f is true
	Get(ctx context.Context, key string, value any) bool
	// Exists tells whether a key exists in the cache with a valid ttl
	Exists(ctx context.Context, key string) bool
	// Delete removes an entry from the cache.
	Delete(ctx context.Context, key string) error
}

// NewCacheClient - creates a new cache client based on the configuration. Connections are opened by
// the caller so they can be shared with the pubsub and the health checks.
func NewCacheClient(ctx context.Context, cfg config.Configuration, rdb *redis.Client, vk valkey.Client) (Cache, error) {
	switch cfg.Cache.Provider {
	case config.CacheProviderRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis cache requires a redis client")
		}
		return NewRedisCache(rdb), nil
	case config.CacheProviderValKey:
		if vk == nil {
			return nil, fmt.Errorf("valkey cache requires a valkey client")
		}
		return NewValKeyCache(vk), nil
	case config.CacheProviderMemory, "":
		return NewMemoryCache(), nil
	}
	log.Error(ctx, "unknown cache provider", "provider", cfg.Cache.Provider)
	return nil, fmt.Errorf("unknown cache provider <%s>", cfg.Cache.Provider)
}
