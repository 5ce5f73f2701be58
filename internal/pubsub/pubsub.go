package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/zkreputation/verification-node/internal/config"
)

// Event defines the payload
type Event interface {
	Marshal() (msg Message, err error)
	Unmarshal(msg Message) error
}

// Message is the payload received in a pubsub subscriber. The input for callback functions
type Message []byte

// Publisher sends topics to the pubsub
type Publisher interface {
	Publish(ctx context.Context, topic string, payload Event) error
}

// EventHandler is the type that functions that handle an MyEvent must comply.
type EventHandler func(context.Context, Message) error

// Subscriber subscribes to the pubsub topics. Subscribe returns once the subscription is set up;
// messages are delivered from a background goroutine until ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, callback EventHandler) error
}

// Client is formed by the publisher and subscriber
type Client interface {
	Publisher
	Subscriber
	Close() error
}

// NewPubSub - creates a new pubsub client based on the configuration. The memory provider has no
// peers to talk to, so it gets the in process mock.
func NewPubSub(cfg config.Configuration, rdb *redis.Client, vk valkey.Client) (Client, error) {
	switch cfg.Cache.Provider {
	case config.CacheProviderRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis pubsub requires a redis client")
		}
		return NewRedis(rdb), nil
	case config.CacheProviderValKey:
		if vk == nil {
			return nil, fmt.Errorf("valkey pubsub requires a valkey client")
		}
		return NewValKeyClient(vk), nil
	case config.CacheProviderMemory, "":
		return NewMock(), nil
	}
	return nil, fmt.Errorf("unknown pubsub provider <%s>", cfg.Cache.Provider)
}

// envelope wraps every published message
type envelope struct {
	ID   uuid.UUID `json:"id"`
	Time time.Time `json:"time"`
	Msg  []byte    `json:"msg"`
}

func wrap(event Event) ([]byte, error) {
	msg, err := event.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshalling event: %w", err)
	}
	return json.Marshal(envelope{ID: uuid.New(), Time: time.Now().UTC(), Msg: msg})
}

func unwrap(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return env.Msg, nil
}
