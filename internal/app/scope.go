package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/segarro/cachegate/internal/domain"
	"github.com/segarro/cachegate/pkg/lifecycle"
	"github.com/segarro/cachegate/pkg/log"
)

// Scope is what a worker's handlers see of the host: the cache storage, the
// network, and the client-control calls.
type Scope struct {
	host   *Host
	worker *worker
}

// Caches returns the origin's cache storage.
func (s *Scope) Caches() *CacheStorage {
	return s.host.caches
}

// Fetch performs a network request, bypassing every worker.
func (s *Scope) Fetch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	return s.host.fetcher.Fetch(ctx, req)
}

// Active reports whether the worker is still the host's active worker.
func (s *Scope) Active() bool {
	active, _ := s.host.workers()
	return active == s.worker
}

// SkipWaiting lets the worker activate as soon as it is installed, without
// waiting for clients of the previous worker to go away.
func (s *Scope) SkipWaiting() {
	s.worker.skipWaiting.Store(true)
}

// Clients returns the client-control API.
func (s *Scope) Clients() *ClientsAPI {
	return &ClientsAPI{clients: s.host.clients, worker: s.worker}
}

// Logger returns the host logger tagged with the worker version.
func (s *Scope) Logger() log.Logger {
	return log.With(s.host.logger, log.String("worker", s.worker.version))
}

// ClientsAPI exposes client control to a worker.
type ClientsAPI struct {
	clients *Clients
	worker  *worker
}

// Claim makes the worker the controller of every known client.
// It only succeeds while the worker is activating or activated.
func (c *ClientsAPI) Claim() error {
	st := c.worker.lc.State()
	if st != lifecycle.StateActivating && st != lifecycle.StateActivated {
		return fmt.Errorf("claim: worker %s is %s", c.worker.version, strings.ToLower(st.String()))
	}
	c.clients.ClaimAll()
	return nil
}

// Count returns the number of known clients.
func (c *ClientsAPI) Count() int {
	return c.clients.Count()
}
