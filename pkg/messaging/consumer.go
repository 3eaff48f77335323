package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

// Subscriber is the receiving half of a Broker.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Envelope is a received Message with its payload still encoded.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Consume subscribes to channel and runs handler for every message in the
// background until the subscription closes. Malformed messages and handler
// errors are passed to onError and do not stop the loop.
func Consume(ctx context.Context, sub Subscriber, channel string, handler func(Envelope) error, onError func(error)) error {
	msgs, err := sub.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	if onError == nil {
		onError = func(error) {}
	}

	go func() {
		for raw := range msgs {
			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				onError(fmt.Errorf("malformed message on %s: %w", channel, err))
				continue
			}
			if err := handler(env); err != nil {
				onError(err)
			}
		}
	}()
	return nil
}
