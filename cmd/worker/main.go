package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rikseotools/vence/internal/config"
	"github.com/rikseotools/vence/internal/repository/postgres"
	"github.com/rikseotools/vence/internal/worker"
	"github.com/rikseotools/vence/pkg/logger"
)

// The worker prunes expired rows of the sql record store. The memory and
// redis backends expire entries on their own and need no worker.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.NewLogger(nil).Fatal(err, "failed to load configuration")
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Logging.Level),
		TimeFormat: time.RFC3339,
		Console:    cfg.Logging.Console,
	})

	if cfg.Store.Backend != "sql" {
		log.Info("store backend expires records itself, nothing to prune", "store", cfg.Store.Backend)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal(err, "failed to migrate database")
	}

	store := postgres.NewStore(postgres.NewBaseRepository(db))
	w, err := worker.NewPruneWorker(store, cfg.Worker.PruneSchedule, time.Now, log)
	if err != nil {
		log.Fatal(err, "failed to create prune worker")
	}

	if _, err := w.RunOnce(ctx); err != nil {
		log.Error(err, "initial prune failed")
	}
	w.Start(ctx)
	log.Info("worker exited properly")
}
