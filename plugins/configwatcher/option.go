package configwatcher

import "github.com/segarro/cachegate/pkg/cachegate"

// WithConfigWatcher returns a cachegate Option that enables config file
// watching.
//
// Usage:
//
//	svc, err := cachegate.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        Path:          "/etc/cachegate/config.toml",
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithConfigWatcher(cfg Config) cachegate.Option {
	return cachegate.WithPlugin(New(cfg))
}

// WithDefaultConfigWatcher watches path with default settings
// (retry every 5s, debounce 100ms).
func WithDefaultConfigWatcher(path string) cachegate.Option {
	return WithConfigWatcher(DefaultConfig(path))
}
