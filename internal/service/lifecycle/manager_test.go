package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rikseotools/vence/internal/model"
	"github.com/rikseotools/vence/internal/repository"
	"github.com/rikseotools/vence/internal/repository/memory"
	apperrors "github.com/rikseotools/vence/pkg/errors"
	"github.com/rikseotools/vence/pkg/messaging"
	"github.com/rikseotools/vence/pkg/metrics"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type fakeUpstream struct {
	mu       sync.Mutex
	disputes []string
	messages []string
	err      error
}

func (f *fakeUpstream) DisputeUpdates(context.Context, string) ([]model.DisputeUpdate, error) {
	return nil, nil
}

func (f *fakeUpstream) MarkDisputeRead(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.disputes = append(f.disputes, id)
	return nil
}

func (f *fakeUpstream) SupportMessages(context.Context, string) ([]model.SupportMessage, error) {
	return nil, nil
}

func (f *fakeUpstream) MarkSupportMessageRead(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, id)
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []messaging.Message
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, msg interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if channel != ChangedChannel {
		return errors.New("unexpected channel " + channel)
	}
	p.messages = append(p.messages, msg.(messaging.Message))
	return nil
}

type fixture struct {
	manager  *Manager
	records  *repository.RecordStore
	upstream *fakeUpstream
	pub      *recordingPublisher
	clock    *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)}
	records := repository.NewRecordStore(memory.NewStore(time.Minute), clock.Now, nil)
	up := &fakeUpstream{}
	pub := &recordingPublisher{}
	m := NewManager(records, up, up, pub, DefaultConfig(), nil, metrics.New("test"))
	return &fixture{manager: m, records: records, upstream: up, pub: pub, clock: clock}
}

func (f *fixture) lifecycle(t *testing.T, id string) (model.LifecycleRecord, bool) {
	t.Helper()
	var rec model.LifecycleRecord
	ok, err := f.records.Load(context.Background(), repository.LifecycleKey("u1", id), &rec)
	require.NoError(t, err)
	return rec, ok
}

func TestMarkReadTransient(t *testing.T) {
	f := newFixture(t)
	id := "level_regression:lpac"
	require.NoError(t, f.manager.MarkRead(context.Background(), "u1", id))

	rec, ok := f.lifecycle(t, id)
	require.True(t, ok)
	assert.Equal(t, model.ActionRead, rec.Action)

	f.clock.t = f.clock.t.Add(24 * time.Hour)
	_, ok = f.lifecycle(t, id)
	assert.False(t, ok)
	assert.Empty(t, f.upstream.disputes)
	require.Len(t, f.pub.messages, 1)
	assert.Equal(t, EventRead, f.pub.messages[0].Type)
}

func TestMarkReadDurableCallsUpstream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.MarkRead(ctx, "u1", "dispute_update:d1:resolved"))
	require.NoError(t, f.manager.MarkRead(ctx, "u1", "support_reply:m1"))
	require.NoError(t, f.manager.MarkRead(ctx, "u1", "system_message:m2"))

	assert.Equal(t, []string{"d1"}, f.upstream.disputes)
	assert.Equal(t, []string{"m1", "m2"}, f.upstream.messages)

	f.clock.t = f.clock.t.AddDate(1, 0, 0)
	_, ok := f.lifecycle(t, "dispute_update:d1:resolved")
	assert.True(t, ok)
}

func TestMarkReadKeepsColonsInUpstreamIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.MarkRead(ctx, "u1", "dispute_update:q:42:resolved"))
	require.NoError(t, f.manager.MarkRead(ctx, "u1", "support_reply:conv:7"))

	assert.Equal(t, []string{"q:42"}, f.upstream.disputes)
	assert.Equal(t, []string{"conv:7"}, f.upstream.messages)
}

func TestMarkReadDurableSurfacesUpstreamErrors(t *testing.T) {
	f := newFixture(t)
	f.upstream.err = errors.New("db down")
	err := f.manager.MarkRead(context.Background(), "u1", "dispute_update:d1:resolved")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrSourceUnavailable))
	_, ok := f.lifecycle(t, "dispute_update:d1:resolved")
	assert.False(t, ok)

	f.upstream.err = repository.ErrNotFound
	err = f.manager.MarkRead(context.Background(), "u1", "support_reply:missing")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}

func TestDismissIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := "problematic_articles:lpac:14"

	require.NoError(t, f.manager.Dismiss(ctx, "u1", id))
	first, ok := f.lifecycle(t, id)
	require.True(t, ok)

	f.clock.t = f.clock.t.Add(time.Hour)
	require.NoError(t, f.manager.Dismiss(ctx, "u1", id))
	second, ok := f.lifecycle(t, id)
	require.True(t, ok)
	assert.Equal(t, first, second)
	assert.Len(t, f.pub.messages, 1)

	// The original expiry still applies.
	f.clock.t = first.At.Add(24 * time.Hour)
	_, ok = f.lifecycle(t, id)
	assert.False(t, ok)
}

func TestDismissMotivationStartsCategoryCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Dismiss(ctx, "u1", "motivation_best_time:2026-W10"))

	var cc model.CategoryCooldown
	ok, err := f.records.Load(ctx, repository.CategoryKey("u1", model.TypeMotivationBestTime), &cc)
	require.NoError(t, err)
	assert.True(t, ok)

	f.clock.t = f.clock.t.Add(14 * 24 * time.Hour)
	ok, err = f.records.Load(ctx, repository.CategoryKey("u1", model.TypeMotivationBestTime), &cc)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDismissAcknowledgesActiveCooldowns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := "problematic_articles:lpac:14,21"
	for _, name := range []string{"lpac:14", "lpac:21"} {
		rec := model.CooldownRecord{LastShownAt: f.clock.t, CountAtLastShown: 10, NotificationID: id}
		require.NoError(t, f.records.Save(ctx, repository.CooldownKey("u1", name), rec, DefaultConfig().Retention))
	}
	require.NoError(t, f.records.Save(ctx, repository.ActiveKey("u1", id), model.ActiveIndex{CooldownKeys: []string{"lpac:14", "lpac:21"}}, DefaultConfig().Retention))

	require.NoError(t, f.manager.Dismiss(ctx, "u1", id))

	for _, name := range []string{"lpac:14", "lpac:21"} {
		var rec model.CooldownRecord
		ok, err := f.records.Load(ctx, repository.CooldownKey("u1", name), &rec)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, rec.Acknowledged, name)
	}
	var idx model.ActiveIndex
	ok, err := f.records.Load(ctx, repository.ActiveKey("u1", id), &idx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResetClearsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Dismiss(ctx, "u1", "level_regression:ce"))
	require.NoError(t, f.manager.Reset(ctx, "u1"))

	_, ok := f.lifecycle(t, "level_regression:ce")
	assert.False(t, ok)
	assert.Equal(t, EventReset, f.pub.messages[len(f.pub.messages)-1].Type)
}

func TestRejectsEmptyIDs(t *testing.T) {
	f := newFixture(t)
	err := f.manager.Dismiss(context.Background(), "u1", " ")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
	err = f.manager.Reset(context.Background(), "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
}
