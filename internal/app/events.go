package app

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/segarro/cachegate/internal/domain"
	"github.com/segarro/cachegate/pkg/lifecycle"
)

// Handler receives the three lifecycle events of a worker.
type Handler interface {
	OnInstall(ev *InstallEvent)
	OnActivate(ev *ActivateEvent)
	OnFetch(ev *FetchEvent)
}

// ExtendableEvent is an event whose lifecycle step is held open until every
// task registered through WaitUntil has settled.
type ExtendableEvent struct {
	ctx   context.Context
	scope *Scope
	group *errgroup.Group
}

func newExtendableEvent(ctx context.Context, scope *Scope) ExtendableEvent {
	g, gctx := errgroup.WithContext(ctx)
	return ExtendableEvent{ctx: gctx, scope: scope, group: g}
}

// Context returns the event context. It is cancelled when a registered task fails.
func (e *ExtendableEvent) Context() context.Context { return e.ctx }

// Scope returns the worker scope.
func (e *ExtendableEvent) Scope() *Scope { return e.scope }

// WaitUntil extends the lifetime of the event until fn returns.
// The first error fails the lifecycle step.
func (e *ExtendableEvent) WaitUntil(fn func(ctx context.Context) error) {
	e.group.Go(func() error { return fn(e.ctx) })
}

func (e *ExtendableEvent) settle() error {
	return e.group.Wait()
}

// InstallEvent is dispatched once when a worker is registered.
type InstallEvent struct {
	ExtendableEvent
}

// ActivateEvent is dispatched when a worker becomes the active one.
type ActivateEvent struct {
	ExtendableEvent
}

// ResponseFunc produces the response for a fetch event.
type ResponseFunc func(ctx context.Context) (*domain.Response, error)

// FetchEvent is dispatched for every request made by a controlled client.
type FetchEvent struct {
	ctx     context.Context
	scope   *Scope
	request *domain.Request
	tracker *lifecycle.Tracker

	mu      sync.Mutex
	respond ResponseFunc
}

// Context returns the request context.
func (e *FetchEvent) Context() context.Context { return e.ctx }

// Scope returns the worker scope.
func (e *FetchEvent) Scope() *Scope { return e.scope }

// Request returns the intercepted request.
func (e *FetchEvent) Request() *domain.Request { return e.request }

// RespondWith supplies the response. Only the first call counts; without a
// call the request goes to the network.
func (e *FetchEvent) RespondWith(fn ResponseFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.respond == nil {
		e.respond = fn
	}
}

// WaitUntil hands fn to the host's task tracker. The response does not wait
// for it and its error never reaches the page.
func (e *FetchEvent) WaitUntil(name string, fn func(ctx context.Context) error) {
	e.tracker.Go(name, fn)
}

func (e *FetchEvent) responder() ResponseFunc {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.respond
}
