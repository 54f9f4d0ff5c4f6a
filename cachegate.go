// Package cachegate serves an offline-capable viewer through a cache-first
// HTTP gate.
//
// Example usage:
//
//	cfg := cachegate.DefaultConfig()
//	cfg.Origin = "http://127.0.0.1:8000/"
//	cfg.StorePath = "/var/lib/cachegate/caches.db"
//	if err := cachegate.Run(ctx, ":8080", cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// For embedding with options, events and plugins see pkg/cachegate.
package cachegate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	gate "github.com/segarro/cachegate/pkg/cachegate"
)

// Config holds the configuration of the gate.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = gate.Config

// Option configures optional behavior of the gate.
type Option = gate.Option

// DefaultConfig returns a Config with sensible default values.
// At minimum, you must set Origin before calling Run.
func DefaultConfig() Config {
	return gate.DefaultConfig()
}

// Run installs the gate and serves it on addr until ctx is cancelled. It
// then drains HTTP connections and background cache writes within
// cfg.ShutdownTimeout.
func Run(ctx context.Context, addr string, cfg Config, opts ...Option) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return Serve(ctx, ln, cfg, opts...)
}

// Serve is like Run on an existing listener. It closes ln.
func Serve(ctx context.Context, ln net.Listener, cfg Config, opts ...Option) error {
	cfg.SetDefaults()

	svc, err := gate.New(cfg, opts...)
	if err != nil {
		_ = ln.Close()
		return err
	}
	if err := svc.Start(ctx); err != nil {
		_ = ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("shutdown http: %w", err)
	}
	if err := svc.Stop(); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}
