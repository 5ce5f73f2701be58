package pubsub

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/zkreputation/verification-node/internal/log"
)

type valkeyClient struct {
	client valkey.Client
}

// NewValKeyClient returns a new pubsub client based on Valkey
func NewValKeyClient(client valkey.Client) Client {
	return &valkeyClient{
		client: client,
	}
}

// Publish publishes a new topic payload
func (vk *valkeyClient) Publish(ctx context.Context, topic string, event Event) error {
	p, err := wrap(event)
	if err != nil {
		log.Error(ctx, "error marshalling payload", "err", err)
		return err
	}
	return vk.client.Do(ctx, vk.client.B().Publish().Channel(topic).Message(string(p)).Build()).Error()
}

// Subscribe adds a topic to the subscriber. Receive blocks for the life of the subscription so it
// runs in its own goroutine.
func (vk *valkeyClient) Subscribe(ctx context.Context, topic string, callback EventHandler) error {
	if ctx.Err() != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, ctx.Err())
	}
	go func() {
		err := vk.client.Receive(ctx, vk.client.B().Subscribe().Channel(topic).Build(), func(msg valkey.PubSubMessage) {
			payload, err := unwrap([]byte(msg.Message))
			if err != nil {
				log.Error(ctx, "error unmarshalling payload", "err", err)
				return
			}
			dispatch(ctx, topic, callback, payload)
		})
		if err != nil && ctx.Err() == nil {
			log.Error(ctx, "error subscribing to topic", "topic", topic, "err", err)
		}
	}()
	return nil
}

// Close closes the pubsub client
func (vk *valkeyClient) Close() error {
	vk.client.Close()
	return nil
}
