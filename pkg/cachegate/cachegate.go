package cachegate

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	httpAdapter "github.com/segarro/cachegate/internal/adapters/http"
	"github.com/segarro/cachegate/internal/adapters/sqlite"
	"github.com/segarro/cachegate/internal/app"
	"github.com/segarro/cachegate/internal/domain"
	"github.com/segarro/cachegate/pkg/lifecycle"
	"github.com/segarro/cachegate/pkg/log"
	"github.com/segarro/cachegate/pkg/state"
	"github.com/segarro/cachegate/pkg/store"
)

// Service is a cache-first gate that can be embedded in other applications.
// Use New() to create an instance, Start() to install the first worker and
// Handler() to serve pages through it.
type Service struct {
	config  Config
	opts    options
	host    *app.Host
	storage store.Storage
	owned   bool
	tracker *lifecycle.Tracker
	logger  log.Logger
	emitter *eventEmitterWrapper

	plugins []Plugin

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New creates a new Service with the given configuration.
// Storage is opened here; nothing is installed until Start.
func New(cfg Config, opts ...Option) (*Service, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	emitter := &eventEmitterWrapper{handler: o.eventHandler}

	storage, owned := o.storage, false
	if storage == nil {
		var err error
		storage, err = openStorage(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		owned = true
	}

	repo := o.registrations
	if repo == nil {
		if cfg.StateDir != "" {
			repo = state.NewFileRepository(cfg.StateDir)
		} else {
			repo = state.NopRepository{}
		}
	}

	tracker := lifecycle.NewTracker(context.Background(), logger)
	tracker.SetObserver(emitter.onTaskDone)

	origin := cfg.originURL()
	host, err := app.NewHost(app.HostConfig{
		Origin:        origin,
		Storage:       storage,
		Fetcher:       httpAdapter.NewFetcher(o.httpClient, origin, logger),
		Registrations: repo,
		Tracker:       tracker,
		Logger:        logger,
		Emitter:       emitter,
	})
	if err != nil {
		if owned {
			_ = storage.Close()
		}
		return nil, err
	}

	return &Service{
		config:  cfg,
		opts:    o,
		host:    host,
		storage: storage,
		owned:   owned,
		tracker: tracker,
		logger:  logger,
		emitter: emitter,
		plugins: o.plugins,
	}, nil
}

func openStorage(path string) (store.Storage, error) {
	if path == "" {
		return store.NewMemoryStorage(), nil
	}
	s, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

// Start installs and activates the worker for Config.CacheName, then
// initializes plugins. An install failure is returned and leaves the
// Service stopped.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return domain.ErrAlreadyRunning
	}

	if err := s.register(ctx, s.config.CacheName); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	pluginCfg := PluginConfig{
		CacheName: s.config.CacheName,
		Origin:    s.host.Origin().String(),
		Logger:    s.logger,
		Updater:   s,
	}
	for _, p := range s.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			s.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			cancel()
			return err
		}
		s.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	s.running = true
	s.logger.Info("gate started",
		log.String("cache", s.config.CacheName),
		log.String("origin", s.host.Origin().String()),
	)
	return nil
}

// Update installs a worker for cacheName. Its activation removes every
// other cache. Updating to the current name is a no-op.
func (s *Service) Update(ctx context.Context, cacheName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return domain.ErrNotRunning
	}
	if err := s.register(ctx, cacheName); err != nil {
		return err
	}
	s.config.CacheName = cacheName
	return nil
}

func (s *Service) register(ctx context.Context, cacheName string) error {
	gate, err := app.NewGate(app.GateConfig{
		CacheName: cacheName,
		SeedFiles: s.config.SeedFiles,
	}, s.logger)
	if err != nil {
		return err
	}
	return s.host.Register(ctx, gate.CacheName(), gate)
}

// Stop shuts down plugins, waits for background cache writes and closes
// storage opened by New. Returns ErrShutdownTimeout if writes are still
// running after Config.ShutdownTimeout.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	shutdownCtx := context.Background()
	for i := len(s.plugins) - 1; i >= 0; i-- {
		p := s.plugins[i]
		if err := p.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err))
		} else {
			s.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
		}
	}

	// handlers still draining may try to queue writes; refuse them
	s.tracker.Close()
	err := s.tracker.WaitWithTimeout(s.config.ShutdownTimeout)
	if err != nil {
		s.tracker.Cancel()
		err = domain.ErrShutdownTimeout
	}

	if s.owned {
		if cerr := s.storage.Close(); cerr != nil {
			s.logger.Error("close store", log.Err(cerr))
		}
	}

	completed, failed := s.tracker.Stats()
	s.logger.Info("gate stopped",
		log.Int("cache_writes", completed),
		log.Int("cache_write_failures", failed),
		log.Int("cache_writes_dropped", s.tracker.Dropped()),
	)
	return err
}

// Handler returns the HTTP handler that serves pages through the gate.
func (s *Service) Handler() http.Handler {
	return s.host
}

// Status returns the state of the active worker, or StateParsed when no
// worker is active. Safe to call concurrently from any goroutine.
func (s *Service) Status() State {
	st, _ := s.host.ActiveState()
	return st
}

// ActiveVersion returns the cache name of the active worker.
func (s *Service) ActiveVersion() string {
	return s.host.ActiveVersion()
}

// CacheNames lists the caches present in storage, oldest first.
func (s *Service) CacheNames(ctx context.Context) ([]string, error) {
	return s.host.Caches().Keys(ctx)
}

// WaitForWrites blocks until background cache writes have finished.
func (s *Service) WaitForWrites() {
	s.tracker.Wait()
}

// validateModuleVersions checks that all module versions are compatible.
// Returns an error if any module version is below its minimum compatible version.
func validateModuleVersions() error {
	modules := map[string]struct {
		version    string
		minVersion string
	}{
		"store":     {store.Version, store.MinCompatibleVersion},
		"state":     {state.Version, state.MinCompatibleVersion},
		"lifecycle": {lifecycle.Version, lifecycle.MinCompatibleVersion},
		"log":       {log.Version, log.MinCompatibleVersion},
	}

	for name, m := range modules {
		if !isVersionCompatible(m.version, m.minVersion) {
			return fmt.Errorf("module %s version %s is below minimum compatible version %s",
				name, m.version, m.minVersion)
		}
	}

	return nil
}

// isVersionCompatible checks if version >= minVersion using semantic versioning.
// Assumes versions are in format "major.minor.patch".
func isVersionCompatible(version, minVersion string) bool {
	var vMajor, vMinor, vPatch int
	var mMajor, mMinor, mPatch int

	_, _ = fmt.Sscanf(version, "%d.%d.%d", &vMajor, &vMinor, &vPatch)
	_, _ = fmt.Sscanf(minVersion, "%d.%d.%d", &mMajor, &mMinor, &mPatch)

	if vMajor != mMajor {
		return vMajor > mMajor
	}
	if vMinor != mMinor {
		return vMinor > mMinor
	}
	return vPatch >= mPatch
}
