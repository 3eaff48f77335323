package delivery

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/rikseotools/vence/internal/model"
	"github.com/rikseotools/vence/pkg/circuitbreaker"
	"github.com/rikseotools/vence/pkg/messaging"
)

var (
	// ErrPushUnavailable means the user cannot currently receive pushes.
	ErrPushUnavailable = errors.New("push unavailable")
)

// PushChannel delivers a short notification to the user's devices.
type PushChannel interface {
	Send(ctx context.Context, user model.User, title, body string) error
}

// PushMessage is published to the user's push channel.
type PushMessage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PushChannelName returns the pub/sub channel a user's devices listen on.
func PushChannelName(userID string) string {
	return "push:" + userID
}

// BrokerPush publishes pushes through a message broker. A publish that
// reaches no subscriber counts as unavailable.
type BrokerPush struct {
	pub     messaging.CountingPublisher
	limiter *rate.Limiter
	cb      *circuitbreaker.CircuitBreaker
}

func NewBrokerPush(pub messaging.CountingPublisher, perSecond float64, burst int) *BrokerPush {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &BrokerPush{
		pub:     pub,
		limiter: rate.NewLimiter(limit, burst),
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "push",
			MaxFailures: 5,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
		}),
	}
}

func (p *BrokerPush) Send(ctx context.Context, user model.User, title, body string) error {
	if !user.PushEnabled {
		return ErrPushUnavailable
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	var receivers int64
	err := p.cb.Execute(func() error {
		msg := messaging.Message{Type: "push", Payload: PushMessage{Title: title, Body: body}}
		n, err := p.pub.PublishCount(ctx, PushChannelName(user.ID), msg)
		receivers = n
		return err
	})
	if err != nil {
		return err
	}
	if receivers == 0 {
		return ErrPushUnavailable
	}
	return nil
}
