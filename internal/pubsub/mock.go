package pubsub

import (
	"context"
	"sync"
)

// Mock is an in process pubsub client. Messages are delivered synchronously to the handlers
// subscribed in the same process.
type Mock struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	sent     map[string]int
}

// NewMock returns a new mock pubsub client
func NewMock() *Mock {
	return &Mock{handlers: map[string][]EventHandler{}, sent: map[string]int{}}
}

// Publish mock
func (m *Mock) Publish(ctx context.Context, topic string, payload Event) error {
	msg, err := payload.Marshal()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sent[topic]++
	handlers := append([]EventHandler(nil), m.handlers[topic]...)
	m.mu.Unlock()
	for _, h := range handlers {
		dispatch(ctx, topic, h, msg)
	}
	return nil
}

// Subscribe mock
func (m *Mock) Subscribe(_ context.Context, topic string, callback EventHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = append(m.handlers[topic], callback)
	return nil
}

// Published returns how many messages were sent to topic
func (m *Mock) Published(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sent[topic]
}

// Close mock
func (m *Mock) Close() error { return nil }
