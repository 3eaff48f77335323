package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rikseotools/vence/internal/repository"
	"github.com/rikseotools/vence/pkg/logger"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// PruneWorker deletes expired notification records on a cron schedule.
type PruneWorker struct {
	pruner   repository.Pruner
	schedule cron.Schedule
	spec     string
	now      func() time.Time
	logger   *logger.Logger
}

func NewPruneWorker(pruner repository.Pruner, spec string, now func() time.Time, log *logger.Logger) (*PruneWorker, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", spec, err)
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PruneWorker{
		pruner:   pruner,
		schedule: schedule,
		spec:     spec,
		now:      now,
		logger:   log.Component("prune"),
	}, nil
}

// RunOnce prunes every record that expired before now.
func (w *PruneWorker) RunOnce(ctx context.Context) (int64, error) {
	cutoff := w.now()
	rows, err := w.pruner.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune notification records: %w", err)
	}
	w.logger.Info("pruned expired notification records", "rows", rows, "cutoff", cutoff)
	return rows, nil
}

// Start runs the schedule until ctx is done, then waits for a running prune.
func (w *PruneWorker) Start(ctx context.Context) {
	c := cron.New(cron.WithParser(parser))
	c.Schedule(w.schedule, cron.FuncJob(func() {
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error(err, "prune run failed")
		}
	}))
	c.Start()
	w.logger.Info("prune worker started", "schedule", w.spec)

	<-ctx.Done()
	<-c.Stop().Done()
	w.logger.Info("prune worker stopped")
}
