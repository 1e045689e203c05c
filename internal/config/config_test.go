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
  enabled: true
  port: 9090
portal:
  base_url: https://portal.example.edu
  username: u123
  password: hunter2
  cookie_file: /tmp/cookies.json
  timeout_seconds: 45
  auth_ttl_minutes: 10
crawler:
  workers: 8
  cache_lookups: false
  destructive_turn_sync: true
  first_year: 2010
  cron: "0 3 * * *"
db:
  dsn: postgres://crawler@localhost/portal
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

	if !cfg.Server.Enabled || cfg.Server.Port != 9090 {
		t.Fatalf("expected server overrides to apply, got %+v", cfg.Server)
	}
	if cfg.Portal.BaseURL != "https://portal.example.edu" || cfg.Portal.Username != "u123" {
		t.Fatalf("expected portal overrides to apply, got %+v", cfg.Portal)
	}
	if cfg.Portal.LoginPath != "/login" {
		t.Fatalf("expected login path default, got %q", cfg.Portal.LoginPath)
	}
	if got := cfg.Portal.Timeout(); got != 45*time.Second {
		t.Fatalf("expected 45s timeout, got %v", got)
	}
	if got := cfg.Portal.AuthTTL(); got != 10*time.Minute {
		t.Fatalf("expected 10m auth ttl, got %v", got)
	}
	if cfg.Crawler.Workers != 8 || cfg.Crawler.CacheLookups || !cfg.Crawler.DestructiveTurnSync {
		t.Fatalf("expected crawler overrides to apply, got %+v", cfg.Crawler)
	}
	if cfg.Crawler.Cron != "0 3 * * *" {
		t.Fatalf("expected cron override, got %q", cfg.Crawler.Cron)
	}
	if cfg.DB.DSN == "" || cfg.DB.MaxConns != 10 {
		t.Fatalf("expected db dsn with pool defaults, got %+v", cfg.DB)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected logging.development override to apply")
	}
}

func TestLoadAppliesWorkerDefault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
portal:
  base_url: https://portal.example.edu
  username: u123
  password: hunter2
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.Workers != 6 {
		t.Fatalf("expected 6 workers by default, got %d", cfg.Crawler.Workers)
	}
	if !cfg.Crawler.CacheLookups {
		t.Fatalf("expected lookup caching on by default")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Portal: PortalConfig{
			BaseURL:        "https://portal.example.edu",
			Username:       "u123",
			Password:       "hunter2",
			TimeoutSeconds: 120,
		},
		Crawler: CrawlerConfig{Workers: 6},
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
			name: "missing base url",
			cfg: func() Config {
				c := base
				c.Portal.BaseURL = ""
				return c
			}(),
			want: "portal.base_url",
		},
		{
			name: "missing credentials",
			cfg: func() Config {
				c := base
				c.Portal.Password = ""
				return c
			}(),
			want: "portal.username",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.Portal.TimeoutSeconds = 0
				return c
			}(),
			want: "portal.timeout_seconds",
		},
		{
			name: "invalid workers",
			cfg: func() Config {
				c := base
				c.Crawler.Workers = 0
				return c
			}(),
			want: "crawler.workers",
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
