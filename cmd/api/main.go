package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rikseotools/vence/internal/config"
	"github.com/rikseotools/vence/internal/email"
	"github.com/rikseotools/vence/internal/handler/health"
	notificationHandler "github.com/rikseotools/vence/internal/handler/notification"
	prometheusHandler "github.com/rikseotools/vence/internal/handler/prometheus"
	"github.com/rikseotools/vence/internal/middleware"
	"github.com/rikseotools/vence/internal/repository"
	"github.com/rikseotools/vence/internal/repository/memory"
	"github.com/rikseotools/vence/internal/repository/postgres"
	redisStore "github.com/rikseotools/vence/internal/repository/redis"
	"github.com/rikseotools/vence/internal/router"
	"github.com/rikseotools/vence/internal/service/action"
	"github.com/rikseotools/vence/internal/service/cooldown"
	"github.com/rikseotools/vence/internal/service/delivery"
	"github.com/rikseotools/vence/internal/service/lifecycle"
	"github.com/rikseotools/vence/internal/service/notification"
	"github.com/rikseotools/vence/internal/service/source"
	"github.com/rikseotools/vence/pkg/logger"
	"github.com/rikseotools/vence/pkg/messaging/redis"
	"github.com/rikseotools/vence/pkg/metrics"
	"github.com/rikseotools/vence/pkg/validator"
)

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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(cfg.Metrics.Namespace, "engine", registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]health.Check{}

	// Redis carries change events and pushes; it is optional on a single replica.
	var broker *redis.RedisBroker
	if cfg.Redis.URL != "" {
		broker, err = redis.NewRedisBroker(redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, &log.ZL)
		if err != nil {
			log.Fatal(err, "failed to connect to Redis")
		}
		defer broker.Close()
		checks["redis"] = func(ctx context.Context) error {
			return broker.Client().Ping(ctx).Err()
		}
	}

	var db *sqlx.DB
	if cfg.Store.Backend == "sql" || !cfg.Engine.StaticSource {
		db, err = postgres.NewDB(cfg.Database)
		if err != nil {
			log.Fatal(err, "failed to connect to database")
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal(err, "failed to migrate database")
		}
		checks["database"] = db.PingContext
	}

	store, err := newStore(cfg, db, broker)
	if err != nil {
		log.Fatal(err, "failed to initialize record store")
	}
	records := repository.NewRecordStore(store, time.Now, m)
	v := validator.New()

	var (
		sources  []source.Source
		disputes repository.DisputeRepository
		support  repository.SupportRepository
		users    repository.UserDirectory
	)
	if cfg.Engine.StaticSource {
		log.Warn(nil, "serving static debug notifications")
		sources = []source.Source{source.NewStatic(source.DebugCandidates(time.Now())...)}
	} else {
		base := postgres.NewBaseRepository(db)
		analytics := postgres.NewAnalyticsRepository(base)
		disputes = postgres.NewDisputeRepository(base)
		support = postgres.NewSupportRepository(base)
		users = postgres.NewUserDirectory(base)
		thresholds := thresholdsFromConfig(cfg.Cooldown)
		sources = []source.Source{
			source.NewProblematicArticles(analytics, thresholds),
			source.NewRegressions(analytics, thresholds),
			source.NewAchievements(analytics, thresholds),
			source.NewMotivation(analytics),
			source.NewDisputes(disputes),
			source.NewSupport(support),
		}
	}

	filter := cooldown.NewFilter(records, v, cooldownFromConfig(cfg.Cooldown), log, m)

	lifecycleCfg := lifecycle.DefaultConfig()
	lifecycleCfg.ReadTTL = cfg.Lifecycle.ReadTTL
	lifecycleCfg.DismissTTL = cfg.Lifecycle.DismissTTL
	lifecycleCfg.MotivationCooldown = cfg.Cooldown.MotivationCooldown
	lifecycleCfg.Retention = cfg.Cooldown.Retention

	var (
		manager *lifecycle.Manager
		push    delivery.PushChannel
	)
	if broker != nil {
		manager = lifecycle.NewManager(records, disputes, support, broker, lifecycleCfg, log, m)
		push = delivery.NewBrokerPush(broker, cfg.Delivery.PushRatePerSecond, cfg.Delivery.PushBurst)
	} else {
		manager = lifecycle.NewManager(records, disputes, support, nil, lifecycleCfg, log, m)
	}

	resolver := action.NewResolver(nil)
	mailer := email.NewSMTPService(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	coordinator := delivery.NewCoordinator(records, push, mailer, v, resolver.PrimaryLink(cfg.Delivery.BaseURL), delivery.Config{
		PushTimeout:       cfg.Delivery.PushTimeout,
		EmailTimeout:      cfg.Delivery.EmailTimeout,
		IdempotencyWindow: cfg.Delivery.IdempotencyWindow,
	}, log, m)

	engine := notification.NewService(notification.Deps{
		Sources:   sources,
		Filter:    filter,
		Lifecycle: manager,
		Resolver:  resolver,
		Delivery:  coordinator,
		Users:     users,
		Clock:     time.Now,
	}, notification.Config{
		SourceTimeout:  cfg.Engine.SourceTimeout,
		MaxConcurrency: cfg.Engine.MaxConcurrency,
		FeedCacheTTL:   cfg.Engine.FeedCacheTTL,
		AllowReset:     cfg.Engine.AllowReset,
	}, log, m)

	if broker != nil {
		if err := engine.ListenForChanges(ctx, broker); err != nil {
			log.Fatal(err, "failed to subscribe to change events")
		}
	}

	r := router.NewRouter(
		log,
		prometheusHandler.New(cfg.Metrics.Namespace, registry),
		health.NewHandler(checks),
		[]router.Handler{notificationHandler.NewHandler(engine)},
		router.RouterConfig{
			Mode: cfg.Server.Mode,
			RateLimiter: middleware.RateLimiterConfig{
				RPS:     cfg.RateLimit.RequestsPerSecond,
				Burst:   cfg.RateLimit.Burst,
				IdleTTL: 10 * time.Minute,
			},
			CORS:         middleware.DefaultCORSConfig(),
			Timeout:      middleware.TimeoutConfig{Duration: cfg.Server.WriteTimeout},
			Security:     middleware.DefaultSecurityConfig(),
			MaxBodyBytes: middleware.DefaultMaxBodyBytes,
		},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting server", "port", cfg.Server.Port, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}
	log.Info("server exited properly")
}

func newStore(cfg *config.Config, db *sqlx.DB, broker *redis.RedisBroker) (repository.Store, error) {
	switch cfg.Store.Backend {
	case "sql":
		return postgres.NewStore(postgres.NewBaseRepository(db)), nil
	case "redis":
		if broker == nil {
			return nil, fmt.Errorf("redis store needs redis.url")
		}
		return redisStore.NewStore(broker.Client()), nil
	default:
		return memory.NewStore(cfg.Store.CleanupInterval), nil
	}
}

func cooldownFromConfig(c config.CooldownConfig) cooldown.Config {
	return cooldown.Config{
		ArticleMinDays:        c.ArticleMinDays,
		ArticleMinTests:       c.ArticleMinTests,
		UrgentAccuracy:        c.UrgentAccuracy,
		UrgentMinTests:        c.UrgentMinTests,
		Retention:             c.Retention,
		DailyAchievementLimit: c.DailyAchievementLimit,
		QuotaWindow:           c.QuotaWindow,
		MotivationCooldown:    c.MotivationCooldown,
		StreakMilestones:      c.StreakMilestones,
		WeeklyTestsMilestones: c.WeeklyTestsMilestones,
		ScoreMilestones:       c.ScoreMilestones,
	}
}

func thresholdsFromConfig(c config.CooldownConfig) source.Thresholds {
	t := source.DefaultThresholds()
	t.ProblematicMaxAccuracy = c.ProblematicMaxAccuracy
	t.ProblematicMinAttempts = c.ProblematicMinAttempts
	t.RegressionMinDrop = c.RegressionMinDrop
	return t
}
