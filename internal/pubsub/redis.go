package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/zkreputation/verification-node/internal/log"
)

// RedisClient struct
type RedisClient struct {
	conn *redis.Client

	mu   sync.Mutex
	subs []*redis.PubSub
}

// NewRedis returns a redis pubsub client
func NewRedis(rdb *redis.Client) *RedisClient {
	return &RedisClient{conn: rdb}
}

// Publish publishes a new topic payload
func (rdb *RedisClient) Publish(ctx context.Context, topic string, payload Event) error {
	data, err := wrap(payload)
	if err != nil {
		return err
	}
	return rdb.conn.Publish(ctx, topic, data).Err()
}

// Subscribe adds a topic to the subscriber
func (rdb *RedisClient) Subscribe(ctx context.Context, topic string, callback EventHandler) error {
	sub := rdb.conn.Subscribe(ctx, topic)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	rdb.mu.Lock()
	rdb.subs = append(rdb.subs, sub)
	rdb.mu.Unlock()

	ch := sub.Channel()
	go func() {
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				if event.Channel != topic {
					log.Error(ctx, "msg channel != topic", "channel", event.Channel, "topic", topic)
					continue
				}
				msg, err := unwrap([]byte(event.Payload))
				if err != nil {
					log.Error(ctx, "unmarshal msg payload", "err", err)
					continue
				}
				dispatch(ctx, topic, callback, msg)
			case <-ctx.Done():
				_ = sub.Close()
				return
			}
		}
	}()
	return nil
}

// Close closes every active subscription. The redis connection is owned by the caller.
func (rdb *RedisClient) Close() error {
	rdb.mu.Lock()
	defer rdb.mu.Unlock()
	var firstErr error
	for _, sub := range rdb.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	rdb.subs = nil
	return firstErr
}

// dispatch runs the callback, so a panicking handler does not kill the subscription loop
func dispatch(ctx context.Context, topic string, callback EventHandler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, "recovered from panic in pubsub handler", "topic", topic, "panic", r)
		}
	}()
	if err := callback(ctx, msg); err != nil {
		log.Error(ctx, "executing callback function", "topic", topic, "err", err)
	}
}
