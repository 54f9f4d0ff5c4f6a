package cliconfig

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvConfig holds the CACHEGATE_* environment variables.
type EnvConfig struct {
	Listen          string   `env:"CACHEGATE_LISTEN"`
	Origin          string   `env:"CACHEGATE_ORIGIN"`
	CacheName       string   `env:"CACHEGATE_CACHE_NAME"`
	SeedFiles       []string `env:"CACHEGATE_SEED_FILES" envSeparator:","`
	Store           string   `env:"CACHEGATE_STORE"`
	StateDir        string   `env:"CACHEGATE_STATE_DIR"`
	ShutdownTimeout string   `env:"CACHEGATE_SHUTDOWN_TIMEOUT"`
	LogLevel        string   `env:"CACHEGATE_LOG_LEVEL"`
	WatchConfig     string   `env:"CACHEGATE_WATCH_CONFIG"`
}

// LoadEnvConfig reads the CACHEGATE_* variables.
func LoadEnvConfig() (EnvConfig, error) {
	var ec EnvConfig
	if err := env.Parse(&ec); err != nil {
		return ec, fmt.Errorf("parse env: %w", err)
	}
	return ec, nil
}

// ApplyEnvConfig applies configuration from environment variables (CACHEGATE_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	ec, err := LoadEnvConfig()
	if err != nil {
		return err
	}
	s := newConfigSetter(changed)

	s.setString("listen", ec.Listen, &cfg.Listen)
	s.setString("origin", ec.Origin, &cfg.Origin)
	s.setString("cache-name", ec.CacheName, &cfg.CacheName)
	s.setStrings("seed", ec.SeedFiles, &cfg.SeedFiles)
	s.setString("store", ec.Store, &cfg.StorePath)
	s.setString("state-dir", ec.StateDir, &cfg.StateDir)
	s.setString("log-level", ec.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("shutdown-timeout", ec.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setBoolFromString("watch-config", ec.WatchConfig, &cfg.WatchConfig)
	return nil
}
