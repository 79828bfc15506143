// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// IngestConfig governs the run pipeline.
type IngestConfig struct {
	Workers           int `mapstructure:"workers"`
	QueueDepth        int `mapstructure:"queue_depth"`
	MaxRecordsDefault int `mapstructure:"max_records_default"`
	LeaseTTLMinutes   int `mapstructure:"lease_ttl_minutes"`
	MaxRetries        int `mapstructure:"max_retries"`
	BackoffInitialMs  int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int `mapstructure:"backoff_max_ms"`
}

// SchedulerConfig governs cron cadence and cleanup.
type SchedulerConfig struct {
	SweepSpec            string `mapstructure:"sweep_spec"`
	CleanupSpec          string `mapstructure:"cleanup_spec"`
	DefaultIntervalHours int    `mapstructure:"default_interval_hours"`
	MaxJobAgeDays        int    `mapstructure:"max_job_age_days"`
}

// ExtractConfig configures the crawl collector.
type ExtractConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxPages       int    `mapstructure:"max_pages"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig enables the Redis-backed run lease. With no URL the
// in-process lease is used.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// PubSubConfig enables the Pub/Sub run queue. With no project the
// in-memory queue is used.
type PubSubConfig struct {
	ProjectID      string `mapstructure:"project_id"`
	TopicID        string `mapstructure:"topic_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.queue_depth", 64)
	v.SetDefault("ingest.max_records_default", 500)
	v.SetDefault("ingest.lease_ttl_minutes", 30)
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("ingest.backoff_initial_ms", 250)
	v.SetDefault("ingest.backoff_max_ms", 5000)
	v.SetDefault("scheduler.sweep_spec", "@every 1m")
	v.SetDefault("scheduler.cleanup_spec", "@daily")
	v.SetDefault("scheduler.default_interval_hours", 6)
	v.SetDefault("scheduler.max_job_age_days", 30)
	v.SetDefault("extract.user_agent", "job-ingest-bot/0.1")
	v.SetDefault("extract.respect_robots", true)
	v.SetDefault("extract.timeout_seconds", 15)
	v.SetDefault("extract.max_pages", 50)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be > 0")
	}
	if c.Extract.TimeoutSeconds <= 0 {
		return fmt.Errorf("extract.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.PubSub.ProjectID != "" && (c.PubSub.TopicID == "" || c.PubSub.SubscriptionID == "") {
		return fmt.Errorf("pubsub.topic_id and pubsub.subscription_id must be set with pubsub.project_id")
	}
	return nil
}

// LeaseTTL converts the lease knob into a duration.
func (c Config) LeaseTTL() time.Duration {
	return time.Duration(c.Ingest.LeaseTTLMinutes) * time.Minute
}

// ExtractTimeout converts the collector timeout knob into a duration.
func (c Config) ExtractTimeout() time.Duration {
	return time.Duration(c.Extract.TimeoutSeconds) * time.Second
}

// DefaultInterval converts the scheduler cadence knob into a duration.
func (c Config) DefaultInterval() time.Duration {
	return time.Duration(c.Scheduler.DefaultIntervalHours) * time.Hour
}

// MaxJobAge converts the cleanup knob into a duration.
func (c Config) MaxJobAge() time.Duration {
	return time.Duration(c.Scheduler.MaxJobAgeDays) * 24 * time.Hour
}
