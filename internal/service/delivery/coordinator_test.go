package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rikseotools/vence/internal/email"
	"github.com/rikseotools/vence/internal/model"
	"github.com/rikseotools/vence/internal/repository"
	"github.com/rikseotools/vence/internal/repository/memory"
	apperrors "github.com/rikseotools/vence/pkg/errors"
	"github.com/rikseotools/vence/pkg/metrics"
)

type fakePush struct {
	mu    sync.Mutex
	err   error
	block bool
	calls int
}

func (f *fakePush) Send(ctx context.Context, _ model.User, _, _ string) error {
	f.mu.Lock()
	f.calls++
	err, block := f.err, f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

type fakeEmail struct {
	mu       sync.Mutex
	err      error
	payloads []email.Payload
}

func (f *fakeEmail) Send(_ context.Context, _ model.User, p email.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, p)
	return "msg-1", nil
}

var (
	now  = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	user = model.User{ID: "u1", Email: "ana@example.com", PushEnabled: true}
)

func candidate() model.Candidate {
	return model.NewCandidate(model.TypeLevelRegression, model.RegressionPayload{LawCode: "LPAC"}, "Tu nivel ha bajado", "Has bajado un 20% en la Ley 39/2015", now)
}

type harness struct {
	coord   *Coordinator
	push    *fakePush
	mail    *fakeEmail
	records *repository.RecordStore
	clock   *time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	clock := now
	records := repository.NewRecordStore(memory.NewStore(time.Minute), func() time.Time { return clock }, nil)
	h := &harness{push: &fakePush{}, mail: &fakeEmail{}, records: records, clock: &clock}
	link := func(c model.Candidate) string { return "https://vence.es/notificaciones?notification_id=" + c.ID }
	h.coord = NewCoordinator(records, h.push, h.mail, nil, link, cfg, nil, metrics.New("test"))
	return h
}

func TestDeliverPrefersPush(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	out, err := h.coord.Deliver(context.Background(), user, candidate())
	require.NoError(t, err)
	assert.Equal(t, Outcome{Success: true, Channel: ChannelPush}, out)
	assert.Empty(t, h.mail.payloads)
}

func TestDeliverFallsBackToEmailOnce(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.push.err = ErrPushUnavailable

	out, err := h.coord.Deliver(context.Background(), user, candidate())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.True(t, out.Fallback)
	assert.Equal(t, ChannelEmail, out.Channel)
	assert.Equal(t, "msg-1", out.MessageID)
	require.Len(t, h.mail.payloads, 1)
	assert.Equal(t, "Tu nivel ha bajado", h.mail.payloads[0].Subject)
	assert.Contains(t, h.mail.payloads[0].Link, "notification_id=level_regression")
	assert.Equal(t, 1, h.push.calls)
}

func TestDeliverPushTimeoutTriggersEmail(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PushTimeout = 10 * time.Millisecond
	h := newHarness(t, cfg)
	h.push.block = true

	out, err := h.coord.Deliver(context.Background(), user, candidate())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, ChannelEmail, out.Channel)
}

func TestDeliverEmailFailureIsNotAnError(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.push.err = errors.New("broker down")
	h.mail.err = errors.New("smtp down")

	out, err := h.coord.Deliver(context.Background(), user, candidate())
	require.NoError(t, err)
	assert.False(t, out.Success)

	// Nothing was recorded, so a retry attempts again.
	h.mail.err = nil
	out, err = h.coord.Deliver(context.Background(), user, candidate())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.False(t, out.Duplicate)
}

func TestDeliverRejectsBlankContent(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	c := candidate()
	c.Title = "  "

	_, err := h.coord.Deliver(context.Background(), user, c)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
	assert.Zero(t, h.push.calls)
	assert.Empty(t, h.mail.payloads)
}

func TestDeliverIsIdempotentWithinWindow(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	_, err := h.coord.Deliver(ctx, user, candidate())
	require.NoError(t, err)
	out, err := h.coord.Deliver(ctx, user, candidate())
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Equal(t, 1, h.push.calls)

	*h.clock = now.Add(24 * time.Hour)
	out, err = h.coord.Deliver(ctx, user, candidate())
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.Equal(t, 2, h.push.calls)
}

func TestDeliverConcurrentCallsSendOnce(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.coord.Deliver(context.Background(), user, candidate())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, h.push.calls)
}

func TestDeliverWithoutPushChannel(t *testing.T) {
	clock := now
	records := repository.NewRecordStore(memory.NewStore(time.Minute), func() time.Time { return clock }, nil)
	mail := &fakeEmail{}
	coord := NewCoordinator(records, nil, mail, nil, nil, Config{}, nil, nil)

	out, err := coord.Deliver(context.Background(), user, candidate())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.False(t, out.Fallback)
	assert.Equal(t, "", mail.payloads[0].Link)
}
