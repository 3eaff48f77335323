package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	rows    int64
	err     error
}

func (p *fakePruner) Prune(_ context.Context, before time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, before)
	return p.rows, p.err
}

func TestRunOnceUsesClock(t *testing.T) {
	now := time.Date(2026, 3, 4, 3, 0, 0, 0, time.UTC)
	p := &fakePruner{rows: 7}
	w, err := NewPruneWorker(p, "0 3 * * *", func() time.Time { return now }, nil)
	require.NoError(t, err)

	rows, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), rows)
	assert.Equal(t, []time.Time{now}, p.cutoffs)
}

func TestRunOnceWrapsErrors(t *testing.T) {
	boom := errors.New("db gone")
	w, err := NewPruneWorker(&fakePruner{err: boom}, "@hourly", nil, nil)
	require.NoError(t, err)
	_, err = w.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestInvalidSchedule(t *testing.T) {
	_, err := NewPruneWorker(&fakePruner{}, "every tuesday", nil, nil)
	assert.Error(t, err)
}

func TestStartStopsWithContext(t *testing.T) {
	w, err := NewPruneWorker(&fakePruner{}, "@daily", nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
