package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rikseotools/vence/internal/model"
	apperrors "github.com/rikseotools/vence/pkg/errors"
	"github.com/rikseotools/vence/pkg/metrics"
)

// envelope is the stored form of every record. Expiry is decided against the
// injected clock; backend TTLs only reclaim space.
type envelope struct {
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// RecordStore layers JSON records with explicit expiry over a Store.
type RecordStore struct {
	store   Store
	now     func() time.Time
	metrics *metrics.Metrics
}

func NewRecordStore(store Store, now func() time.Time, m *metrics.Metrics) *RecordStore {
	if now == nil {
		now = time.Now
	}
	return &RecordStore{store: store, now: now, metrics: m}
}

// Now returns the store clock.
func (r *RecordStore) Now() time.Time {
	return r.now()
}

// Load decodes the record at key into v. It reports false when the record is
// missing or expired.
func (r *RecordStore) Load(ctx context.Context, key Key, v interface{}) (bool, error) {
	started := time.Now()
	raw, ok, err := r.store.Get(ctx, key)
	r.metrics.ObserveStore("get", started, err)
	if err != nil {
		return false, apperrors.PersistenceUnavailable("get", err)
	}
	if !ok {
		return false, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, apperrors.PersistenceUnavailable("decode", fmt.Errorf("%s: %w", key, err))
	}
	if env.ExpiresAt != nil && !r.now().Before(*env.ExpiresAt) {
		return false, nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return false, apperrors.PersistenceUnavailable("decode", fmt.Errorf("%s: %w", key, err))
	}
	return true, nil
}

// Save stores v under key. A zero ttl never expires.
func (r *RecordStore) Save(ctx context.Context, key Key, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.NewInternal(fmt.Errorf("encode %s: %w", key, err))
	}
	env := envelope{Data: data}
	if ttl > 0 {
		expires := r.now().Add(ttl)
		env.ExpiresAt = &expires
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return apperrors.NewInternal(err)
	}

	started := time.Now()
	err = r.store.Set(ctx, key, raw, ttl)
	r.metrics.ObserveStore("set", started, err)
	if err != nil {
		return apperrors.PersistenceUnavailable("set", err)
	}
	return nil
}

func (r *RecordStore) Delete(ctx context.Context, key Key) error {
	started := time.Now()
	err := r.store.Delete(ctx, key)
	r.metrics.ObserveStore("delete", started, err)
	if err != nil {
		return apperrors.PersistenceUnavailable("delete", err)
	}
	return nil
}

// DeleteUser removes every record owned by userID.
func (r *RecordStore) DeleteUser(ctx context.Context, userID string) error {
	started := time.Now()
	err := r.store.DeleteUser(ctx, userID)
	r.metrics.ObserveStore("delete_user", started, err)
	if err != nil {
		return apperrors.PersistenceUnavailable("delete_user", err)
	}
	return nil
}

const quotaAchievements = "achievements"

func CooldownKey(userID, name string) Key {
	return Key{UserID: userID, Kind: KindCooldown, Name: name}
}

func QuotaKey(userID string) Key {
	return Key{UserID: userID, Kind: KindQuota, Name: quotaAchievements}
}

func LifecycleKey(userID, notificationID string) Key {
	return Key{UserID: userID, Kind: KindLifecycle, Name: notificationID}
}

func CategoryKey(userID string, t model.NotificationType) Key {
	return Key{UserID: userID, Kind: KindCategory, Name: string(t)}
}

func ActiveKey(userID, notificationID string) Key {
	return Key{UserID: userID, Kind: KindActive, Name: notificationID}
}

func DeliveryKey(userID, notificationID string) Key {
	return Key{UserID: userID, Kind: KindDelivery, Name: notificationID}
}
