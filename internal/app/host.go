package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/segarro/cachegate/internal/domain"
	"github.com/segarro/cachegate/internal/ports"
	"github.com/segarro/cachegate/pkg/lifecycle"
	"github.com/segarro/cachegate/pkg/log"
	"github.com/segarro/cachegate/pkg/state"
	"github.com/segarro/cachegate/pkg/store"
)

// ClientCookie carries the client id of a page.
const ClientCookie = "cachegate_client"

// HostConfig wires a Host to its infrastructure.
type HostConfig struct {
	// Origin is the base URL pages are served from. Relative request paths
	// and seed files resolve against it.
	Origin *url.URL

	Storage       store.Storage
	Fetcher       ports.Fetcher
	Registrations state.Repository
	Tracker       *lifecycle.Tracker
	Logger        log.Logger
	Emitter       lifecycle.EventEmitter
}

// Host runs workers: it dispatches install and activate, routes page
// requests through the active worker, and owns the detached tasks.
type Host struct {
	origin  *url.URL
	caches  *CacheStorage
	fetcher ports.Fetcher
	repo    state.Repository
	tracker *lifecycle.Tracker
	logger  log.Logger
	emitter lifecycle.EventEmitter
	clients *Clients

	// mu serializes registration and activation.
	mu sync.Mutex

	stateMu sync.RWMutex
	active  *worker
	waiting *worker
}

type worker struct {
	version     string
	handler     Handler
	lc          *lifecycle.Manager
	skipWaiting atomic.Bool
	installedAt time.Time
	ready       chan struct{}
}

// NewHost validates cfg and returns a host with no workers.
func NewHost(cfg HostConfig) (*Host, error) {
	if cfg.Origin == nil || !cfg.Origin.IsAbs() {
		return nil, fmt.Errorf("%w: origin must be an absolute URL", domain.ErrInvalidConfig)
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("%w: storage is required", domain.ErrInvalidConfig)
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher is required", domain.ErrInvalidConfig)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}
	if cfg.Registrations == nil {
		cfg.Registrations = state.NopRepository{}
	}
	if cfg.Tracker == nil {
		cfg.Tracker = lifecycle.NewTracker(context.Background(), cfg.Logger)
	}

	origin := *cfg.Origin
	origin.RawQuery = ""
	origin.Fragment = ""
	if !strings.HasSuffix(origin.Path, "/") {
		origin.Path += "/"
	}

	h := &Host{
		origin:  &origin,
		fetcher: cfg.Fetcher,
		repo:    cfg.Registrations,
		tracker: cfg.Tracker,
		logger:  cfg.Logger,
		emitter: cfg.Emitter,
		clients: NewClients(),
	}
	h.caches = &CacheStorage{storage: cfg.Storage, fetcher: cfg.Fetcher, resolve: h.resolve}
	return h, nil
}

// Register installs handler as the worker for version. Registering the
// version that is already active or waiting is a no-op. A version recorded
// as activated in the registration repository whose cache still exists is
// adopted without running install.
//
// Install failure is fatal: the worker becomes redundant and the error wraps
// domain.ErrInstallFailed. The previous active worker keeps running.
func (h *Host) Register(ctx context.Context, version string, handler Handler) error {
	if strings.TrimSpace(version) == "" {
		return fmt.Errorf("%w: worker version is required", domain.ErrInvalidConfig)
	}
	if handler == nil {
		return fmt.Errorf("%w: handler is required", domain.ErrInvalidConfig)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	active, waiting := h.workers()
	if active != nil && active.version == version {
		h.logger.Debug("worker already active", log.String("worker", version))
		return nil
	}
	if waiting != nil && waiting.version == version {
		h.logger.Debug("worker already waiting", log.String("worker", version))
		return nil
	}

	w := h.newWorker(version, handler)

	if active == nil {
		restored, err := h.restore(ctx, w)
		if err != nil {
			h.logger.Warn("could not restore registration", log.Err(err))
		}
		if restored {
			return nil
		}
	}

	if err := w.lc.TransitionTo(lifecycle.StateInstalling, "register"); err != nil {
		return err
	}
	ev := &InstallEvent{ExtendableEvent: newExtendableEvent(ctx, h.scope(w))}
	err := dispatch(func() { handler.OnInstall(ev) })
	if err == nil {
		err = ev.settle()
	}
	if err != nil {
		_ = w.lc.TransitionTo(lifecycle.StateRedundant, "install failed")
		h.logger.Error("install failed", log.String("worker", version), log.Err(err))
		return fmt.Errorf("%w: %s: %w", domain.ErrInstallFailed, version, err)
	}
	w.installedAt = time.Now().UTC()
	if err := w.lc.TransitionTo(lifecycle.StateInstalled, "install complete"); err != nil {
		return err
	}

	h.stateMu.Lock()
	replaced := h.waiting
	h.waiting = w
	h.stateMu.Unlock()
	if replaced != nil {
		_ = replaced.lc.TransitionTo(lifecycle.StateRedundant, "replaced by "+version)
	}

	if w.skipWaiting.Load() || active == nil || h.clients.ControlledCount() == 0 {
		h.activateLocked(ctx)
		return nil
	}
	h.logger.Info("worker waiting for clients to close",
		log.String("worker", version),
		log.Int("clients", h.clients.ControlledCount()),
	)
	return nil
}

// ActivateWaiting activates the waiting worker, if any.
func (h *Host) ActivateWaiting(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, waiting := h.workers(); waiting == nil {
		return false
	}
	h.activateLocked(ctx)
	return true
}

// CloseClient forgets a client. When no controlled client remains a waiting
// worker activates.
func (h *Host) CloseClient(ctx context.Context, id string) {
	h.clients.Close(id)
	if h.clients.ControlledCount() == 0 {
		h.ActivateWaiting(ctx)
	}
}

func (h *Host) activateLocked(ctx context.Context) {
	h.stateMu.Lock()
	w := h.waiting
	old := h.active
	h.waiting = nil
	h.active = w
	h.stateMu.Unlock()

	if old != nil {
		_ = old.lc.TransitionTo(lifecycle.StateRedundant, "replaced by "+w.version)
	}
	_ = w.lc.TransitionTo(lifecycle.StateActivating, "activate")

	ev := &ActivateEvent{ExtendableEvent: newExtendableEvent(ctx, h.scope(w))}
	err := dispatch(func() { w.handler.OnActivate(ev) })
	if err == nil {
		err = ev.settle()
	}
	if err != nil {
		// an activation failure does not stop the worker from becoming active
		h.logger.Error("activate failed", log.String("worker", w.version), log.Err(err))
	}

	_ = w.lc.TransitionTo(lifecycle.StateActivated, "activate complete")
	close(w.ready)

	if err := h.repo.Save(ctx, state.Registration{
		ActiveVersion: w.version,
		WorkerState:   lifecycle.StateActivated.String(),
		InstalledAt:   w.installedAt,
	}); err != nil {
		h.logger.Error("failed to save registration", log.Err(err))
	}
}

// restore adopts a previously activated version without install.
func (h *Host) restore(ctx context.Context, w *worker) (bool, error) {
	reg, err := h.repo.Load(ctx)
	if err != nil {
		return false, err
	}
	if reg.ActiveVersion != w.version || lifecycle.ParseState(reg.WorkerState) != lifecycle.StateActivated {
		return false, nil
	}
	ok, err := h.caches.Has(ctx, w.version)
	if err != nil || !ok {
		return false, err
	}

	for _, s := range []lifecycle.State{lifecycle.StateInstalling, lifecycle.StateInstalled, lifecycle.StateActivating, lifecycle.StateActivated} {
		if err := w.lc.TransitionTo(s, "restored"); err != nil {
			return false, err
		}
	}
	w.installedAt = reg.InstalledAt
	close(w.ready)

	h.stateMu.Lock()
	h.active = w
	h.stateMu.Unlock()
	h.logger.Info("restored active worker", log.String("worker", w.version))
	return true, nil
}

// Dispatch routes a page request. Requests from controlled clients go to
// the active worker's fetch handler; everything else goes to the network.
func (h *Host) Dispatch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	active, _ := h.workers()
	if !h.clients.Touch(req.ClientID, active != nil) || active == nil {
		return h.fetcher.Fetch(ctx, req)
	}

	select {
	case <-active.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ev := &FetchEvent{ctx: ctx, scope: h.scope(active), request: req, tracker: h.tracker}
	if err := dispatch(func() { active.handler.OnFetch(ev) }); err != nil {
		h.logger.Error("fetch handler panicked", log.String("worker", active.version), log.Err(err))
	}

	respond := ev.responder()
	if respond == nil {
		return h.fetcher.Fetch(ctx, req)
	}
	res, err := respond(ctx)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("fetch handler produced no response")
	}
	return res, nil
}

// ServeHTTP serves a page request through Dispatch.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := h.clientID(w, r)

	req, err := h.request(r, clientID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.Dispatch(r.Context(), req)
	if err != nil {
		h.logger.Debug("request failed", log.String("url", req.URL.String()), log.Err(err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	if res.Body != nil {
		defer res.Body.Close()
	}
	if res.Type == domain.TypeError {
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	for k, vs := range res.Header {
		w.Header()[k] = append([]string(nil), vs...)
	}
	status := res.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if r.Method == http.MethodHead || res.Body == nil {
		return
	}
	if _, err := io.Copy(w, res.Body); err != nil {
		h.logger.Debug("write response body", log.String("url", req.URL.String()), log.Err(err))
	}
}

// ActiveVersion returns the version of the active worker, or "".
func (h *Host) ActiveVersion() string {
	active, _ := h.workers()
	if active == nil {
		return ""
	}
	return active.version
}

// WaitingVersion returns the version of the waiting worker, or "".
func (h *Host) WaitingVersion() string {
	_, waiting := h.workers()
	if waiting == nil {
		return ""
	}
	return waiting.version
}

// ActiveState returns the lifecycle state of the active worker.
func (h *Host) ActiveState() (lifecycle.State, bool) {
	active, _ := h.workers()
	if active == nil {
		return lifecycle.StateParsed, false
	}
	return active.lc.State(), true
}

// Caches returns the host's cache storage.
func (h *Host) Caches() *CacheStorage {
	return h.caches
}

// Clients returns the client registry.
func (h *Host) Clients() *Clients {
	return h.clients
}

// Tracker returns the detached task tracker.
func (h *Host) Tracker() *lifecycle.Tracker {
	return h.tracker
}

// Origin returns the base URL of the host.
func (h *Host) Origin() *url.URL {
	u := *h.origin
	return &u
}

func (h *Host) workers() (active, waiting *worker) {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.active, h.waiting
}

func (h *Host) newWorker(version string, handler Handler) *worker {
	return &worker{
		version: version,
		handler: handler,
		lc:      lifecycle.NewManager(version, h.logger, h.emitter),
		ready:   make(chan struct{}),
	}
}

func (h *Host) scope(w *worker) *Scope {
	return &Scope{host: h, worker: w}
}

// resolve turns a path into an absolute URL under the origin.
func (h *Host) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}
	if ref.IsAbs() {
		return ref, nil
	}
	if strings.HasPrefix(ref.Path, "/") {
		ref.Path = strings.TrimPrefix(ref.Path, "/")
	}
	return h.origin.ResolveReference(ref), nil
}

func (h *Host) request(r *http.Request, clientID string) (*domain.Request, error) {
	var u *url.URL
	if r.URL.IsAbs() {
		// forward-proxy form, e.g. a CDN script
		c := *r.URL
		u = &c
	} else {
		ref := &url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery}
		var err error
		if u, err = h.resolve(ref.String()); err != nil {
			return nil, err
		}
	}

	header := r.Header.Clone()
	header.Del("Cookie")
	var cookies []string
	for _, c := range r.Cookies() {
		if c.Name != ClientCookie {
			cookies = append(cookies, c.Name+"="+c.Value)
		}
	}
	if len(cookies) > 0 {
		header.Set("Cookie", strings.Join(cookies, "; "))
	}

	req := &domain.Request{
		Method:   r.Method,
		URL:      u,
		Header:   header,
		ClientID: clientID,
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		req.Body = r.Body
	}
	return req, nil
}

func (h *Host) clientID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(ClientCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if r.URL.IsAbs() {
		// cookies set on a proxied response would belong to the other origin
		return ""
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// dispatch runs a handler callback, turning a panic into an error.
func dispatch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	fn()
	return nil
}
