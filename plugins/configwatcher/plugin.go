// Package configwatcher bumps the cache version when the config file
// changes. It watches the file's directory with fsnotify, re-reads
// cache_name after a short debounce and hands a new name to the gate,
// whose activation then deletes the older caches.
package configwatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/segarro/cachegate/pkg/cachegate"
	"github.com/segarro/cachegate/pkg/log"
)

// Plugin implements config watching functionality.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	path          string
	retryInterval time.Duration
	debounceDelay time.Duration

	// Runtime state
	current  string
	updater  cachegate.Updater
	logger   cachegate.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// Path is the TOML file to watch. Empty disables the plugin.
	Path string

	// RetryInterval is the delay between update attempts after an install
	// failure.
	// Default: 5 seconds
	RetryInterval time.Duration

	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		RetryInterval: 5 * time.Second,
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		path:          cfg.Path,
		retryInterval: cfg.RetryInterval,
		debounceDelay: cfg.DebounceDelay,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize records the running cache name and starts the watcher.
func (p *Plugin) Initialize(ctx context.Context, cfg cachegate.PluginConfig) error {
	p.mu.Lock()
	p.current = cfg.CacheName
	p.updater = cfg.Updater
	p.logger = cfg.Logger
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	p.mu.Unlock()

	if p.path == "" || p.updater == nil {
		p.logger.Warn("config watcher disabled: no config path or updater")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("config watcher initialized", log.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	return nil
}

// Shutdown stops the config watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	if p.debounce != nil && p.debounce.Stop() {
		p.wg.Done()
	}
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

// CacheName returns the cache name last applied by the plugin.
func (p *Plugin) CacheName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			// editors often replace the file with a rename
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// a timer stopped before firing never runs its func
	if p.debounce != nil && p.debounce.Stop() {
		p.wg.Done()
	}

	p.wg.Add(1)
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		defer p.wg.Done()
		p.reloadWithRetry(ctx)
	})
}

// reloadWithRetry applies the file's cache name, retrying until the install
// succeeds, the name changes again or ctx is cancelled.
func (p *Plugin) reloadWithRetry(ctx context.Context) {
	for {
		name, err := readCacheName(p.path)
		if err != nil {
			p.logger.Warn("config watcher: could not read config", log.Err(err))
			return
		}
		if name == "" || name == p.CacheName() {
			return
		}

		err = p.updater.Update(ctx, name)
		if err == nil {
			p.mu.Lock()
			p.current = name
			p.mu.Unlock()
			p.logger.Info("config watcher: cache version updated", log.String("cache", name))
			return
		}

		p.logger.Error("config watcher: update failed",
			log.String("cache", name),
			log.Err(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.retryInterval):
		}
	}
}

func readCacheName(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var fc struct {
		CacheName string `toml:"cache_name"`
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	return strings.TrimSpace(fc.CacheName), nil
}

// Ensure Plugin implements cachegate.Plugin.
var _ cachegate.Plugin = (*Plugin)(nil)
