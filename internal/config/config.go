// Package config loads the scheduler's runtime configuration from a YAML
// file (optional) overlaid with environment variables, matching the
// teacher's env-var + struct pattern (cfg.Sessions.Scope,
// cfg.ResolveDefaultAgentID(), etc).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of knobs the scheduler, HTTP surface, and
// gateway need at startup.
type Config struct {
	BindAddr string `yaml:"bind_addr"`

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`

	Scheduler SchedulerConfig `yaml:"scheduler"`

	DefaultTimeZone string `yaml:"default_time_zone"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
	// LockKeyPrefix namespaces the distributed tick lock when more than
	// one scheduler process runs against the same database
	// (SPEC_FULL §5 Redis advisory-lock promotion).
	LockKeyPrefix string `yaml:"lock_key_prefix"`
}

type SchedulerConfig struct {
	TickPeriod time.Duration `yaml:"tick_period"`
}

// Default returns the configuration used when neither a file nor
// environment variables override it.
func Default() *Config {
	return &Config{
		BindAddr:        ":8080",
		DefaultTimeZone: "UTC",
		Scheduler:       SchedulerConfig{TickPeriod: 30 * time.Second},
		Redis:           RedisConfig{LockKeyPrefix: "goclaw:scheduler:"},
	}
}

// Load builds a Config starting from Default, overlaying path (if
// non-empty and the file exists) and then environment variables, which
// always win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("config: database DSN is required (set database.dsn or GOCLAW_DATABASE_DSN)")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GOCLAW_BIND_ADDR"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("GOCLAW_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("GOCLAW_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("GOCLAW_DEFAULT_TIME_ZONE"); v != "" {
		cfg.DefaultTimeZone = v
	}
	if v := os.Getenv("GOCLAW_TICK_PERIOD_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.TickPeriod = time.Duration(secs) * time.Second
		}
	}
}
