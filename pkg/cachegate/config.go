package cachegate

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/segarro/cachegate/internal/app"
	"github.com/segarro/cachegate/internal/domain"
)

// Config holds the configuration of a Service.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config struct {
	// Origin is the base URL the viewer is served from.
	Origin string

	// CacheName names the current cache and embeds the version tag.
	CacheName string

	// SeedFiles are stored at install, relative to Origin.
	SeedFiles []string

	// StorePath is the SQLite database file. Empty selects in-memory storage.
	StorePath string

	// StateDir holds registration.json. Empty disables persistence.
	StateDir string

	// ShutdownTimeout bounds how long Stop waits for background writes.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with default values. Origin must be set.
func DefaultConfig() Config {
	return Config{
		CacheName:       "segarro-v6",
		SeedFiles:       append([]string(nil), app.DefaultSeedFiles...),
		ShutdownTimeout: 30 * time.Second,
	}
}

// SetDefaults fills zero-valued fields.
func (c *Config) SetDefaults() {
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Origin)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: origin %q is not an absolute URL", domain.ErrInvalidConfig, c.Origin)
	}
	if strings.TrimSpace(c.CacheName) == "" {
		return fmt.Errorf("%w: cache name is required", domain.ErrInvalidConfig)
	}
	return nil
}

func (c *Config) originURL() *url.URL {
	u, _ := url.Parse(c.Origin)
	return u
}
