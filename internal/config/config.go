package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Cooldown  CooldownConfig  `mapstructure:"cooldown"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Mode         string        `mapstructure:"mode"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open_conns"`
	MaxIdle  int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

// StoreConfig selects the cooldown store backend: memory, redis or sql.
type StoreConfig struct {
	Backend         string        `mapstructure:"backend"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

type EngineConfig struct {
	SourceTimeout  time.Duration `mapstructure:"source_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	FeedCacheTTL   time.Duration `mapstructure:"feed_cache_ttl"`
	// StaticSource enables the debug source serving fixed notifications.
	StaticSource bool `mapstructure:"static_source"`
	AllowReset   bool `mapstructure:"allow_reset"`
}

type CooldownConfig struct {
	ArticleMinDays         int           `mapstructure:"article_min_days"`
	ArticleMinTests        int           `mapstructure:"article_min_tests"`
	UrgentAccuracy         float64       `mapstructure:"urgent_accuracy"`
	UrgentMinTests         int           `mapstructure:"urgent_min_tests"`
	Retention              time.Duration `mapstructure:"retention"`
	DailyAchievementLimit  int           `mapstructure:"daily_achievement_limit"`
	QuotaWindow            time.Duration `mapstructure:"quota_window"`
	MotivationCooldown     time.Duration `mapstructure:"motivation_cooldown"`
	StreakMilestones       []int         `mapstructure:"streak_milestones"`
	WeeklyTestsMilestones  []int         `mapstructure:"weekly_tests_milestones"`
	ScoreMilestones        []int         `mapstructure:"score_milestones"`
	RegressionMinDrop      float64       `mapstructure:"regression_min_drop"`
	ProblematicMaxAccuracy float64       `mapstructure:"problematic_max_accuracy"`
	ProblematicMinAttempts int           `mapstructure:"problematic_min_attempts"`
}

type LifecycleConfig struct {
	ReadTTL    time.Duration `mapstructure:"read_ttl"`
	DismissTTL time.Duration `mapstructure:"dismiss_ttl"`
}

type DeliveryConfig struct {
	PushTimeout       time.Duration `mapstructure:"push_timeout"`
	EmailTimeout      time.Duration `mapstructure:"email_timeout"`
	IdempotencyWindow time.Duration `mapstructure:"idempotency_window"`
	PushRatePerSecond float64       `mapstructure:"push_rate_per_second"`
	PushBurst         int           `mapstructure:"push_burst"`
	BaseURL           string        `mapstructure:"base_url"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type WorkerConfig struct {
	PruneSchedule string `mapstructure:"prune_schedule"`
}

// Secrets are only read from the environment, prefixed with VENCE_.
type Secrets struct {
	DatabaseDSN      string `envconfig:"DATABASE_DSN"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	RedisURL         string `envconfig:"REDIS_URL"`
	SMTPUsername     string `envconfig:"SMTP_USERNAME"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "vence")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "vence")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.cleanup_interval", "10m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", false)
	v.SetDefault("metrics.namespace", "vence")

	v.SetDefault("engine.source_timeout", "2s")
	v.SetDefault("engine.max_concurrency", 4)
	v.SetDefault("engine.feed_cache_ttl", "30s")
	v.SetDefault("engine.static_source", false)
	v.SetDefault("engine.allow_reset", false)

	v.SetDefault("cooldown.article_min_days", 3)
	v.SetDefault("cooldown.article_min_tests", 5)
	v.SetDefault("cooldown.urgent_accuracy", 30.0)
	v.SetDefault("cooldown.urgent_min_tests", 3)
	v.SetDefault("cooldown.retention", "720h")
	v.SetDefault("cooldown.daily_achievement_limit", 2)
	v.SetDefault("cooldown.quota_window", "24h")
	v.SetDefault("cooldown.motivation_cooldown", "336h")
	v.SetDefault("cooldown.streak_milestones", []int{5, 10, 20, 30, 50, 100, 200, 365})
	v.SetDefault("cooldown.weekly_tests_milestones", []int{10, 25, 50, 100, 200})
	v.SetDefault("cooldown.score_milestones", []int{80, 85, 90, 95, 100})
	v.SetDefault("cooldown.regression_min_drop", 15.0)
	v.SetDefault("cooldown.problematic_max_accuracy", 70.0)
	v.SetDefault("cooldown.problematic_min_attempts", 2)

	v.SetDefault("lifecycle.read_ttl", "24h")
	v.SetDefault("lifecycle.dismiss_ttl", "24h")

	v.SetDefault("delivery.push_timeout", "3s")
	v.SetDefault("delivery.email_timeout", "10s")
	v.SetDefault("delivery.idempotency_window", "24h")
	v.SetDefault("delivery.push_rate_per_second", 50.0)
	v.SetDefault("delivery.push_burst", 100)
	v.SetDefault("delivery.base_url", "https://www.vence.es")

	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "notificaciones@vence.es")

	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("worker.prune_schedule", "@every 1h")
}

// LoadConfig reads config.yml from the given directories (or ".", "./config"),
// applies VENCE_* environment overrides and then the secrets.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	v.SetEnvPrefix("VENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var secrets Secrets
	if err := envconfig.Process("VENCE", &secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}
	config.applySecrets(secrets)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applySecrets(s Secrets) {
	if s.DatabaseDSN != "" {
		c.Database.DSN = s.DatabaseDSN
	}
	if s.DatabasePassword != "" {
		c.Database.Password = s.DatabasePassword
	}
	if s.RedisURL != "" {
		c.Redis.URL = s.RedisURL
	}
	if s.SMTPUsername != "" {
		c.SMTP.Username = s.SMTPUsername
	}
	if s.SMTPPassword != "" {
		c.SMTP.Password = s.SMTPPassword
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "sql":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("store backend redis requires redis.url")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Cooldown.DailyAchievementLimit < 0 {
		return fmt.Errorf("cooldown.daily_achievement_limit must not be negative")
	}
	if c.Cooldown.QuotaWindow <= 0 {
		return fmt.Errorf("cooldown.quota_window must be positive")
	}
	if c.Engine.SourceTimeout <= 0 {
		return fmt.Errorf("engine.source_timeout must be positive")
	}
	return nil
}
