// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Portal  PortalConfig  `mapstructure:"portal"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// PortalConfig locates the portal and carries the crawl credentials.
type PortalConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	LoginPath      string `mapstructure:"login_path"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	CookieFile     string `mapstructure:"cookie_file"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	AuthTTLMinutes int    `mapstructure:"auth_ttl_minutes"`
}

// Timeout is the per-request HTTP budget.
func (p PortalConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// AuthTTL is how long one login is trusted before re-authenticating.
func (p PortalConfig) AuthTTL() time.Duration {
	return time.Duration(p.AuthTTLMinutes) * time.Minute
}

// CrawlerConfig governs the worker pools and reconciliation behavior.
type CrawlerConfig struct {
	Workers             int    `mapstructure:"workers"`
	CacheLookups        bool   `mapstructure:"cache_lookups"`
	DestructiveTurnSync bool   `mapstructure:"destructive_turn_sync"`
	FirstYear           int    `mapstructure:"first_year"`
	Cron                string `mapstructure:"cron"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("portal.login_path", "/login")
	v.SetDefault("portal.user_agent", "portalcrawler/0.1")
	v.SetDefault("portal.timeout_seconds", 120)
	v.SetDefault("portal.auth_ttl_minutes", 15)
	v.SetDefault("crawler.workers", 6)
	v.SetDefault("crawler.cache_lookups", true)
	v.SetDefault("crawler.destructive_turn_sync", false)
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url must be set")
	}
	if c.Portal.Username == "" || c.Portal.Password == "" {
		return fmt.Errorf("portal.username and portal.password must be set")
	}
	if c.Portal.TimeoutSeconds <= 0 {
		return fmt.Errorf("portal.timeout_seconds must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	return nil
}
