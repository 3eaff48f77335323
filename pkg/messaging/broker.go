package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Publisher defines the interface for publishing messages
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// CountingPublisher reports how many subscribers received a message.
type CountingPublisher interface {
	PublishCount(ctx context.Context, channel string, message interface{}) (int64, error)
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
