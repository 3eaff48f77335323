package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rikseotools/vence/internal/model"
	"github.com/rikseotools/vence/internal/repository"
	apperrors "github.com/rikseotools/vence/pkg/errors"
	"github.com/rikseotools/vence/pkg/logger"
	"github.com/rikseotools/vence/pkg/messaging"
	"github.com/rikseotools/vence/pkg/metrics"
)

// ChangedChannel carries ChangeEvents so every replica can drop cached feeds.
const ChangedChannel = "notifications.changed"

const (
	EventRead      = "read"
	EventDismissed = "dismissed"
	EventReset     = "reset"
)

type ChangeEvent struct {
	UserID         string `json:"user_id"`
	NotificationID string `json:"notification_id,omitempty"`
}

type Config struct {
	ReadTTL            time.Duration
	DismissTTL         time.Duration
	MotivationCooldown time.Duration
	// Retention bounds how long acknowledged cooldown records are kept.
	Retention time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReadTTL:            24 * time.Hour,
		DismissTTL:         24 * time.Hour,
		MotivationCooldown: 14 * 24 * time.Hour,
		Retention:          30 * 24 * time.Hour,
	}
}

type Manager struct {
	records   *repository.RecordStore
	disputes  repository.DisputeRepository
	support   repository.SupportRepository
	publisher messaging.Publisher
	cfg       Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// NewManager wires the lifecycle manager. publisher may be nil on
// single-replica deployments.
func NewManager(
	records *repository.RecordStore,
	disputes repository.DisputeRepository,
	support repository.SupportRepository,
	publisher messaging.Publisher,
	cfg Config,
	log *logger.Logger,
	m *metrics.Metrics,
) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		records:   records,
		disputes:  disputes,
		support:   support,
		publisher: publisher,
		cfg:       cfg,
		logger:    log.Component("lifecycle"),
		metrics:   m,
	}
}

func validateIDs(userID, id string) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.BadRequest("user id is required", nil)
	}
	if strings.TrimSpace(id) == "" {
		return apperrors.BadRequest("notification id is required", nil)
	}
	return nil
}

// MarkRead records a read. Upstream-backed notifications are marked read at
// the source first and their local record never expires.
func (m *Manager) MarkRead(ctx context.Context, userID, id string) (err error) {
	defer func() { m.observe(EventRead, err) }()
	if err := validateIDs(userID, id); err != nil {
		return err
	}

	ttl := m.cfg.ReadTTL
	if model.IsDurableID(id) {
		if err := m.markUpstream(ctx, userID, id); err != nil {
			return err
		}
		ttl = 0
	}

	rec := model.LifecycleRecord{Action: model.ActionRead, At: m.records.Now()}
	if err := m.records.Save(ctx, repository.LifecycleKey(userID, id), rec, ttl); err != nil {
		return err
	}
	m.acknowledge(ctx, userID, id)
	m.publish(ctx, EventRead, userID, id)
	return nil
}

func (m *Manager) markUpstream(ctx context.Context, userID, id string) error {
	upstreamID := model.UpstreamID(id)
	if upstreamID == "" {
		return apperrors.BadRequest(fmt.Sprintf("malformed notification id %q", id), nil)
	}

	var (
		err    error
		source model.SourceName
	)
	switch model.TypeOfID(id) {
	case model.TypeDisputeUpdate:
		source = model.SourceDisputes
		if m.disputes == nil {
			return apperrors.SourceUnavailable(string(source), errors.New("no dispute repository"))
		}
		err = m.disputes.MarkDisputeRead(ctx, userID, upstreamID)
	case model.TypeSupportReply, model.TypeSystemMessage:
		source = model.SourceSupport
		if m.support == nil {
			return apperrors.SourceUnavailable(string(source), errors.New("no support repository"))
		}
		err = m.support.MarkSupportMessageRead(ctx, userID, upstreamID)
	default:
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("notification", err)
	}
	if err != nil {
		return apperrors.SourceUnavailable(string(source), err)
	}
	return nil
}

// Dismiss hides a notification for DismissTTL. Repeating it while the
// dismissal is live changes nothing. Motivational dismissals also start the
// category cooldown.
func (m *Manager) Dismiss(ctx context.Context, userID, id string) (err error) {
	defer func() { m.observe(EventDismissed, err) }()
	if err := validateIDs(userID, id); err != nil {
		return err
	}
	now := m.records.Now()

	t := model.TypeOfID(id)
	if t.Category() == model.CategoryMotivation {
		cc := model.CategoryCooldown{StartedAt: now}
		if err := m.records.Save(ctx, repository.CategoryKey(userID, t), cc, m.cfg.MotivationCooldown); err != nil {
			return err
		}
	}

	key := repository.LifecycleKey(userID, id)
	var existing model.LifecycleRecord
	ok, err := m.records.Load(ctx, key, &existing)
	if err != nil {
		m.logger.Warn(err, "lifecycle lookup failed before dismiss", "user_id", userID, "id", id)
	}
	if ok && existing.Action == model.ActionDismissed {
		return nil
	}

	rec := model.LifecycleRecord{Action: model.ActionDismissed, At: now}
	if err := m.records.Save(ctx, key, rec, m.cfg.DismissTTL); err != nil {
		return err
	}
	m.acknowledge(ctx, userID, id)
	m.publish(ctx, EventDismissed, userID, id)
	return nil
}

// Reset deletes every record held for the user.
func (m *Manager) Reset(ctx context.Context, userID string) (err error) {
	defer func() { m.observe(EventReset, err) }()
	if strings.TrimSpace(userID) == "" {
		return apperrors.BadRequest("user id is required", nil)
	}
	if err := m.records.DeleteUser(ctx, userID); err != nil {
		return err
	}
	m.logger.Info("notification state reset", "user_id", userID)
	m.publish(ctx, EventReset, userID, "")
	return nil
}

// acknowledge marks the cooldown records written when id was emitted, so the
// filter stops treating id as the active notification.
func (m *Manager) acknowledge(ctx context.Context, userID, id string) {
	activeKey := repository.ActiveKey(userID, id)
	var idx model.ActiveIndex
	ok, err := m.records.Load(ctx, activeKey, &idx)
	if err != nil {
		m.logger.Warn(err, "active index lookup failed", "user_id", userID, "id", id)
		return
	}
	if !ok {
		return
	}

	now := m.records.Now()
	for _, name := range idx.CooldownKeys {
		key := repository.CooldownKey(userID, name)
		var rec model.CooldownRecord
		found, err := m.records.Load(ctx, key, &rec)
		if err != nil {
			m.logger.Warn(err, "cooldown lookup failed during acknowledge", "user_id", userID, "key", name)
			continue
		}
		if !found || rec.NotificationID != id || rec.Acknowledged {
			continue
		}
		remaining := m.cfg.Retention - now.Sub(rec.LastShownAt)
		if remaining <= 0 {
			continue
		}
		rec.Acknowledged = true
		if err := m.records.Save(ctx, key, rec, remaining); err != nil {
			m.logger.Warn(err, "failed to acknowledge cooldown", "user_id", userID, "key", name)
		}
	}
	if err := m.records.Delete(ctx, activeKey); err != nil {
		m.logger.Warn(err, "failed to clear active index", "user_id", userID, "id", id)
	}
}

func (m *Manager) publish(ctx context.Context, event, userID, id string) {
	if m.publisher == nil {
		return
	}
	msg := messaging.Message{Type: event, Payload: ChangeEvent{UserID: userID, NotificationID: id}}
	if err := m.publisher.Publish(ctx, ChangedChannel, msg); err != nil {
		m.logger.Warn(err, "failed to publish change event", "user_id", userID, "event", event)
	}
}

func (m *Manager) observe(action string, err error) {
	if m.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.metrics.LifecycleActions.WithLabelValues(action, status).Inc()
}
