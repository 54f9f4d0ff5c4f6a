package cliconfig

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Defaults for the viewer deployment.
const (
	DefaultListen    = ":8080"
	DefaultCacheName = "segarro-v6"
	DefaultSeedFile  = "./SEGARROPREMIX.html"
	DefaultLogLevel  = "info"
)

// MemoryStore selects the in-memory storage instead of a SQLite file.
const MemoryStore = "memory"

// Config holds CLI configuration for cachegate.
type Config struct {
	Listen string
	Origin string

	CacheName string
	SeedFiles []string

	StorePath string
	StateDir  string

	ShutdownTimeout time.Duration
	LogLevel        string
	WatchConfig     bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Listen:          DefaultListen,
		CacheName:       DefaultCacheName,
		SeedFiles:       []string{DefaultSeedFile},
		StorePath:       DefaultStorePath(),
		StateDir:        "", // Derived from StorePath during Validate
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        DefaultLogLevel,
	}
}

// DefaultStorePath returns ~/.cachegate/caches.db, or the memory store when
// the home directory is unknown.
func DefaultStorePath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".cachegate", "caches.db")
	}
	return MemoryStore
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Origin == "" {
		return fmt.Errorf("origin is required")
	}
	u, err := url.Parse(c.Origin)
	if err != nil {
		return fmt.Errorf("parse origin: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("origin must be an absolute http(s) URL, got %q", c.Origin)
	}

	c.CacheName = strings.TrimSpace(c.CacheName)
	if c.CacheName == "" {
		return fmt.Errorf("cache name is required")
	}
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}

	var seeds []string
	for _, s := range c.SeedFiles {
		if s = strings.TrimSpace(s); s != "" {
			seeds = append(seeds, s)
		}
	}
	c.SeedFiles = seeds

	if c.StorePath == "" {
		c.StorePath = MemoryStore
	}
	if c.StateDir == "" && !c.InMemory() {
		c.StateDir = filepath.Dir(c.StorePath)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return nil
}

// InMemory reports whether the memory store is selected.
func (c *Config) InMemory() bool {
	return c.StorePath == MemoryStore
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setStrings sets a list if non-empty and flag not changed.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]string(nil), value...)
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
