package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rikseotools/vence/internal/model"
	"github.com/rikseotools/vence/pkg/messaging"
)

type countingPublisher struct {
	receivers int64
	err       error
	channels  []string
	messages  []interface{}
}

func (p *countingPublisher) PublishCount(_ context.Context, channel string, msg interface{}) (int64, error) {
	p.channels = append(p.channels, channel)
	p.messages = append(p.messages, msg)
	return p.receivers, p.err
}

func TestBrokerPushPublishesToUserChannel(t *testing.T) {
	pub := &countingPublisher{receivers: 2}
	push := NewBrokerPush(pub, 0, 0)

	require.NoError(t, push.Send(context.Background(), user, "t", "b"))
	assert.Equal(t, []string{"push:u1"}, pub.channels)
	msg := pub.messages[0].(messaging.Message)
	assert.Equal(t, PushMessage{Title: "t", Body: "b"}, msg.Payload)
}

func TestBrokerPushUnavailable(t *testing.T) {
	pub := &countingPublisher{}
	push := NewBrokerPush(pub, 0, 0)

	err := push.Send(context.Background(), user, "t", "b")
	assert.ErrorIs(t, err, ErrPushUnavailable)

	err = push.Send(context.Background(), model.User{ID: "u2"}, "t", "b")
	assert.ErrorIs(t, err, ErrPushUnavailable)
	assert.Len(t, pub.channels, 1)
}

func TestBrokerPushOpensCircuit(t *testing.T) {
	pub := &countingPublisher{err: errors.New("redis down")}
	push := NewBrokerPush(pub, 0, 0)
	for i := 0; i < 5; i++ {
		assert.Error(t, push.Send(context.Background(), user, "t", "b"))
	}
	calls := len(pub.channels)
	assert.Error(t, push.Send(context.Background(), user, "t", "b"))
	assert.Equal(t, calls, len(pub.channels))
}
