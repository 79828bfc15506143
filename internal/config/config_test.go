package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
ingest:
  workers: 6
  queue_depth: 128
  max_records_default: 250
  lease_ttl_minutes: 45
  max_retries: 4
  backoff_initial_ms: 100
  backoff_max_ms: 500
scheduler:
  sweep_spec: "@every 5m"
  cleanup_spec: "@midnight"
  default_interval_hours: 12
  max_job_age_days: 14
extract:
  user_agent: ingest-agent
  respect_robots: false
  timeout_seconds: 45
  max_pages: 10
db:
  dsn: postgres://localhost/ingest
  max_conns: 8
redis:
  url: redis://localhost:6379/0
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Ingest.Workers != 6 || cfg.Ingest.QueueDepth != 128 {
		t.Fatalf("expected ingest overrides to apply, got %+v", cfg.Ingest)
	}
	if cfg.Scheduler.SweepSpec != "@every 5m" {
		t.Fatalf("expected sweep spec override, got %q", cfg.Scheduler.SweepSpec)
	}
	if cfg.Extract.RespectRobots {
		t.Fatal("expected respect_robots override to false")
	}
	if cfg.DB.DSN != "postgres://localhost/ingest" || cfg.DB.MaxConns != 8 {
		t.Fatalf("expected db overrides to apply, got %+v", cfg.DB)
	}
	if cfg.Logging.Development {
		t.Fatal("expected development logging disabled")
	}
	if got := cfg.LeaseTTL(); got != 45*time.Minute {
		t.Fatalf("expected lease ttl 45m, got %v", got)
	}
	if got := cfg.ExtractTimeout(); got != 45*time.Second {
		t.Fatalf("expected extract timeout 45s, got %v", got)
	}
	if got := cfg.DefaultInterval(); got != 12*time.Hour {
		t.Fatalf("expected default interval 12h, got %v", got)
	}
	if got := cfg.MaxJobAge(); got != 14*24*time.Hour {
		t.Fatalf("expected max job age 14d, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Ingest.Workers != 4 || cfg.Ingest.MaxRecordsDefault != 500 {
		t.Fatalf("expected ingest defaults, got %+v", cfg.Ingest)
	}
	if !cfg.Extract.RespectRobots {
		t.Fatal("expected robots respected by default")
	}
	if cfg.Scheduler.SweepSpec != "@every 1m" || cfg.Scheduler.CleanupSpec != "@daily" {
		t.Fatalf("expected scheduler defaults, got %+v", cfg.Scheduler)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Ingest:  IngestConfig{Workers: 1},
		Extract: ExtractConfig{TimeoutSeconds: 10},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid workers",
			cfg: func() Config {
				c := base
				c.Ingest.Workers = 0
				return c
			}(),
			want: "ingest.workers",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.Extract.TimeoutSeconds = 0
				return c
			}(),
			want: "extract.timeout_seconds",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
		{
			name: "pubsub missing topic",
			cfg: func() Config {
				c := base
				c.PubSub.ProjectID = "proj"
				return c
			}(),
			want: "pubsub.topic_id",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
