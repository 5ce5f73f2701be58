package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/valkey-io/valkey-go"

	"github.com/zkreputation/verification-node/internal/config"
	"github.com/zkreputation/verification-node/internal/log"
)

const dialTimeout = 5 * time.Second

// Connections holds the shared cache backend connection. At most one of them is set, depending on
// the configured cache provider. Both are nil for the memory provider.
type Connections struct {
	Redis  *redis.Client
	ValKey valkey.Client
}

// Connect opens the connection required by the cache provider in cfg
func Connect(ctx context.Context, cfg config.Cache) (*Connections, error) {
	conns := &Connections{}
	switch cfg.Provider {
	case config.CacheProviderRedis:
		rdb, err := Open(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		conns.Redis = rdb
	case config.CacheProviderValKey:
		vk, err := OpenValKey(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		conns.ValKey = vk
	case config.CacheProviderMemory, "":
		log.Warn(ctx, "memory cache provider: sessions are not shared between instances")
	default:
		return nil, fmt.Errorf("unknown cache provider <%s>", cfg.Provider)
	}
	return conns, nil
}

// Ping checks whichever backend is open. It is a no op for the memory provider.
func (c *Connections) Ping(ctx context.Context) error {
	switch {
	case c == nil:
		return nil
	case c.Redis != nil:
		return Status(ctx, c.Redis)
	case c.ValKey != nil:
		return ValKeyStatus(ctx, c.ValKey)
	}
	return nil
}

// Enabled tells whether a remote backend is open
func (c *Connections) Enabled() bool {
	return c != nil && (c.Redis != nil || c.ValKey != nil)
}

// Close closes the open connections
func (c *Connections) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Error(ctx, "closing redis", "err", err)
		}
	}
	if c.ValKey != nil {
		c.ValKey.Close()
	}
}

// Open opens a connection to redis and returns it
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := Status(ctx, rdb); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return rdb, nil
}

// Status returns nil of redis status is ok. Otherwise a redis status err
func Status(ctx context.Context, rdb *redis.Client) error {
	return rdb.Ping(ctx).Err()
}

// OpenValKey opens a valkey client. addr is a host:port pair.
func OpenValKey(ctx context.Context, addr string) (valkey.Client, error) {
	vk, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
		Dialer:      net.Dialer{Timeout: dialTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to valkey: %w", err)
	}
	if err := ValKeyStatus(ctx, vk); err != nil {
		vk.Close()
		return nil, fmt.Errorf("connecting to valkey: %w", err)
	}
	return vk, nil
}

// ValKeyStatus pings valkey
func ValKeyStatus(ctx context.Context, vk valkey.Client) error {
	return vk.Do(ctx, vk.B().Ping().Build()).Error()
}
