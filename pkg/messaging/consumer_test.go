package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSubscriber struct {
	ch  chan []byte
	err error
}

func (s *chanSubscriber) Subscribe(context.Context, string) (<-chan []byte, error) {
	return s.ch, s.err
}

func TestConsumeDecodesAndSkipsBadMessages(t *testing.T) {
	sub := &chanSubscriber{ch: make(chan []byte, 3)}
	sub.ch <- []byte(`{"type":"read","payload":{"user_id":"u1"}}`)
	sub.ch <- []byte(`not json`)
	sub.ch <- []byte(`{"type":"reset","payload":{"user_id":"u2"}}`)
	close(sub.ch)

	var (
		mu     sync.Mutex
		users  []string
		errs   []error
		doneCh = make(chan struct{})
	)
	handler := func(env Envelope) error {
		var p struct {
			UserID string `json:"user_id"`
		}
		assert.NoError(t, env.Decode(&p))
		mu.Lock()
		defer mu.Unlock()
		users = append(users, env.Type+":"+p.UserID)
		if len(users) == 2 {
			close(doneCh)
		}
		return nil
	}
	onError := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	}

	require.NoError(t, Consume(context.Background(), sub, "c", handler, onError))
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("messages were not consumed")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"read:u1", "reset:u2"}, users)
	assert.Len(t, errs, 1)
}

func TestConsumeSubscribeError(t *testing.T) {
	boom := errors.New("down")
	err := Consume(context.Background(), &chanSubscriber{err: boom}, "c", func(Envelope) error { return nil }, nil)
	assert.ErrorIs(t, err, boom)
}
