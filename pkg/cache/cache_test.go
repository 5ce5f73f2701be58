package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkreputation/verification-node/internal/config"
	"github.com/zkreputation/verification-node/internal/redis"
)

type stats struct {
	Total  int64
	Active int64
}

func TestCaches(t *testing.T) {
	ctx := context.Background()
	s := miniredis.RunT(t)
	rdb, err := redis.Open(ctx, "redis://"+s.Addr())
	require.NoError(t, err)

	type testConfig struct {
		name  string
		cache Cache
	}
	for _, tc := range []testConfig{
		{name: "memory", cache: NewMemoryCache()},
		{name: "redis", cache: NewRedisCache(rdb)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var got stats
			assert.False(t, tc.cache.Get(ctx, "stats", &got))
			assert.False(t, tc.cache.Exists(ctx, "stats"))

			require.NoError(t, tc.cache.Set(ctx, "stats", stats{Total: 5, Active: 2}, time.Minute))
			assert.True(t, tc.cache.Exists(ctx, "stats"))
			require.True(t, tc.cache.Get(ctx, "stats", &got))
			assert.Equal(t, stats{Total: 5, Active: 2}, got)

			require.NoError(t, tc.cache.Delete(ctx, "stats"))
			assert.False(t, tc.cache.Get(ctx, "stats", &got))
		})
	}
}

func TestMemoryCacheTypes(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	require.NoError(t, c.Set(ctx, "ptr", &stats{Total: 1}, ForEver))
	var got stats
	require.True(t, c.Get(ctx, "ptr", &got))
	assert.Equal(t, int64(1), got.Total)

	var wrong string
	assert.False(t, c.Get(ctx, "ptr", &wrong))
	assert.False(t, c.Get(ctx, "ptr", got))
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.Set(ctx, "k", 1, 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	var v int
	assert.False(t, c.Get(ctx, "k", &v))
}

func TestNewCacheClient(t *testing.T) {
	ctx := context.Background()
	c, err := NewCacheClient(ctx, config.Configuration{Cache: config.Cache{Provider: config.CacheProviderMemory}}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = NewCacheClient(ctx, config.Configuration{Cache: config.Cache{Provider: config.CacheProviderRedis}}, nil, nil)
	assert.Error(t, err)

	_, err = NewCacheClient(ctx, config.Configuration{Cache: config.Cache{Provider: "memcached"}}, nil, nil)
	assert.Error(t, err)
}
