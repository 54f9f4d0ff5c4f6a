package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/segarro/cachegate/internal/domain"
	"github.com/segarro/cachegate/pkg/log"
)

// DefaultSeedFiles is the HTML entry point of the viewer.
var DefaultSeedFiles = []string{"./SEGARROPREMIX.html"}

// GateConfig configures the cache-first gate.
type GateConfig struct {
	// CacheName names the current store and embeds the version tag,
	// e.g. "segarro-v6". Changing it invalidates every other store on the
	// next activation.
	CacheName string

	// SeedFiles are stored at install time, all or nothing.
	SeedFiles []string
}

// Gate is the cache-first policy: seed on install, drop stale stores on
// activate, and serve from the current store with a network fallback that
// fills it.
type Gate struct {
	cacheName string
	seedFiles []string
	logger    log.Logger
}

var _ Handler = (*Gate)(nil)

// NewGate validates cfg and returns the gate.
func NewGate(cfg GateConfig, logger log.Logger) (*Gate, error) {
	name := strings.TrimSpace(cfg.CacheName)
	if name == "" {
		return nil, fmt.Errorf("%w: cache name is required", domain.ErrInvalidConfig)
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Gate{
		cacheName: name,
		seedFiles: append([]string(nil), cfg.SeedFiles...),
		logger:    log.With(logger, log.String("cache", name)),
	}, nil
}

// CacheName returns the name of the current store.
func (g *Gate) CacheName() string {
	return g.cacheName
}

// OnInstall seeds the current store and asks to activate without waiting.
func (g *Gate) OnInstall(ev *InstallEvent) {
	scope := ev.Scope()
	ev.WaitUntil(func(ctx context.Context) error {
		c, err := scope.Caches().Open(ctx, g.cacheName)
		if err != nil {
			return err
		}
		if err := c.AddAll(ctx, g.seedFiles); err != nil {
			return fmt.Errorf("seed %s: %w", g.cacheName, err)
		}
		g.logger.Info("seeded cache", log.Int("files", len(g.seedFiles)))
		return nil
	})
	scope.SkipWaiting()
}

// OnActivate deletes every store except the current one and takes control
// of open clients.
func (g *Gate) OnActivate(ev *ActivateEvent) {
	scope := ev.Scope()
	ev.WaitUntil(func(ctx context.Context) error {
		names, err := scope.Caches().Keys(ctx)
		if err != nil {
			return err
		}
		eg, egCtx := errgroup.WithContext(ctx)
		for _, name := range names {
			if name == g.cacheName {
				continue
			}
			eg.Go(func() error {
				if _, err := scope.Caches().Delete(egCtx, name); err != nil {
					return fmt.Errorf("delete stale cache %s: %w", name, err)
				}
				g.logger.Info("deleted stale cache", log.String("stale", name))
				return nil
			})
		}
		return eg.Wait()
	})
	clients := scope.Clients()
	if err := clients.Claim(); err != nil {
		g.logger.Warn("claim clients", log.Err(err))
		return
	}
	g.logger.Debug("claimed clients", log.Int("clients", clients.Count()))
}

// OnFetch answers from the current store, falling back to the network and
// storing qualifying responses in the background. The network response is
// streamed to the page while a copy of the body is collected for the store.
func (g *Gate) OnFetch(ev *FetchEvent) {
	scope := ev.Scope()
	req := ev.Request()
	ev.RespondWith(func(ctx context.Context) (*domain.Response, error) {
		// Lookup, not Open: a stale worker must not recreate a deleted cache.
		c, found, err := scope.Caches().Lookup(ctx, g.cacheName)
		if err != nil {
			return nil, err
		}
		if found {
			cached, ok, err := c.Match(ctx, req)
			if err != nil {
				return nil, err
			}
			if ok {
				g.logger.Debug("cache hit", log.String("url", req.URL.String()))
				return cached, nil
			}
		}

		res, err := scope.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		if !found || req.Method != http.MethodGet || !Cacheable(res) {
			return res, nil
		}

		capture, err := res.Tee()
		if err != nil {
			return nil, err
		}
		ev.WaitUntil("cache put "+req.URL.String(), func(ctx context.Context) error {
			full, err := capture.Wait(ctx)
			if err != nil {
				return err
			}
			if !scope.Active() {
				scope.Logger().Debug("dropped cache write from replaced worker",
					log.String("url", req.URL.String()))
				return nil
			}
			return c.Put(ctx, req, full)
		})
		return res, nil
	})
}

// Cacheable reports whether a network response may be stored: it exists,
// its status is exactly 200, and it is neither opaque nor an error.
func Cacheable(res *domain.Response) bool {
	if res == nil || res.StatusCode != http.StatusOK {
		return false
	}
	return res.Type != domain.TypeOpaque && res.Type != domain.TypeError
}
