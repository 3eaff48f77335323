package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/rikseotools/vence/internal/email"
	"github.com/rikseotools/vence/internal/model"
	"github.com/rikseotools/vence/internal/repository"
	apperrors "github.com/rikseotools/vence/pkg/errors"
	"github.com/rikseotools/vence/pkg/keylock"
	"github.com/rikseotools/vence/pkg/logger"
	"github.com/rikseotools/vence/pkg/metrics"
	"github.com/rikseotools/vence/pkg/validator"
)

const (
	ChannelPush  = "push"
	ChannelEmail = "email"
)

// Outcome describes what Deliver did.
type Outcome struct {
	Success   bool   `json:"success"`
	Channel   string `json:"channel,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Fallback  bool   `json:"fallback"`
	Duplicate bool   `json:"duplicate"`
}

type Config struct {
	PushTimeout       time.Duration
	EmailTimeout      time.Duration
	IdempotencyWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		PushTimeout:       3 * time.Second,
		EmailTimeout:      10 * time.Second,
		IdempotencyWindow: 24 * time.Hour,
	}
}

// LinkFunc returns the absolute URL mailed with a notification, or "".
type LinkFunc func(model.Candidate) string

type content struct {
	Title   string `json:"title" validate:"required,notblank"`
	Message string `json:"message" validate:"required,notblank"`
}

// Coordinator delivers a notification out of band: push first, then a
// single email attempt.
type Coordinator struct {
	records   *repository.RecordStore
	push      PushChannel
	email     email.Service
	validator validator.Validator
	link      LinkFunc
	locks     *keylock.Map
	cfg       Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewCoordinator(
	records *repository.RecordStore,
	push PushChannel,
	mail email.Service,
	v validator.Validator,
	link LinkFunc,
	cfg Config,
	log *logger.Logger,
	m *metrics.Metrics,
) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	if v == nil {
		v = validator.New()
	}
	def := DefaultConfig()
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = def.PushTimeout
	}
	if cfg.EmailTimeout <= 0 {
		cfg.EmailTimeout = def.EmailTimeout
	}
	if cfg.IdempotencyWindow <= 0 {
		cfg.IdempotencyWindow = def.IdempotencyWindow
	}
	return &Coordinator{
		records:   records,
		push:      push,
		email:     mail,
		validator: v,
		link:      link,
		locks:     keylock.New(),
		cfg:       cfg,
		logger:    log.Component("delivery"),
		metrics:   m,
	}
}

// Deliver sends c to user at most once per idempotency window. Attempts for
// one user are serialized. An email failure yields Success=false, not an
// error; only invalid content is an error.
func (c *Coordinator) Deliver(ctx context.Context, user model.User, cand model.Candidate) (Outcome, error) {
	if err := c.validator.Validate(content{Title: cand.Title, Message: cand.Message}); err != nil {
		return Outcome{}, apperrors.Validation("notification cannot be delivered", err)
	}

	unlock := c.locks.Lock(user.ID)
	defer unlock()

	key := repository.DeliveryKey(user.ID, cand.ID)
	var prev model.DeliveryRecord
	ok, err := c.records.Load(ctx, key, &prev)
	if err != nil {
		c.logger.Warn(err, "delivery record lookup failed", "user_id", user.ID, "id", cand.ID)
	}
	if ok {
		return Outcome{Success: true, Channel: prev.Channel, MessageID: prev.MessageID, Duplicate: true}, nil
	}

	if c.push != nil {
		err := c.sendPush(ctx, user, cand)
		if err == nil {
			out := Outcome{Success: true, Channel: ChannelPush}
			c.remember(ctx, key, user.ID, out)
			return out, nil
		}
		c.logger.Debug("push failed, falling back to email", "user_id", user.ID, "id", cand.ID, "error", err.Error())
	}

	out := Outcome{Channel: ChannelEmail, Fallback: c.push != nil}
	if c.email == nil {
		return out, nil
	}
	id, err := c.sendEmail(ctx, user, cand)
	if err != nil {
		c.logger.Error(apperrors.DeliveryFailure(ChannelEmail, err), "email delivery failed", "user_id", user.ID, "id", cand.ID)
		return out, nil
	}
	out.Success = true
	out.MessageID = id
	c.remember(ctx, key, user.ID, out)
	return out, nil
}

func (c *Coordinator) sendPush(ctx context.Context, user model.User, cand model.Candidate) error {
	if c.push == nil {
		return ErrPushUnavailable
	}
	started := time.Now()
	pctx, cancel := context.WithTimeout(ctx, c.cfg.PushTimeout)
	defer cancel()

	err := c.push.Send(pctx, user, cand.Title, cand.Message)
	c.metrics.ObserveDelivery(ChannelPush, status(err), started)
	return err
}

func (c *Coordinator) sendEmail(ctx context.Context, user model.User, cand model.Candidate) (string, error) {
	started := time.Now()
	ectx, cancel := context.WithTimeout(ctx, c.cfg.EmailTimeout)
	defer cancel()

	p := email.Payload{Subject: cand.Title, Body: cand.Message}
	if c.link != nil {
		p.Link = c.link(cand)
	}
	id, err := c.email.Send(ectx, user, p)
	c.metrics.ObserveDelivery(ChannelEmail, status(err), started)
	return id, err
}

func (c *Coordinator) remember(ctx context.Context, key repository.Key, userID string, out Outcome) {
	rec := model.DeliveryRecord{Channel: out.Channel, MessageID: out.MessageID, At: c.records.Now()}
	if err := c.records.Save(ctx, key, rec, c.cfg.IdempotencyWindow); err != nil {
		c.logger.Warn(err, "failed to record delivery", "user_id", userID)
	}
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrPushUnavailable), errors.Is(err, email.ErrNoAddress):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
