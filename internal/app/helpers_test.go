package app

import (
	"context"
	"errors"
	"io"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/segarro/cachegate/internal/domain"
	"github.com/segarro/cachegate/pkg/state"
	"github.com/segarro/cachegate/pkg/store"
)

const testOrigin = "http://viewer.local/"

// fakeNetwork serves canned responses keyed by absolute URL and counts calls.
type fakeNetwork struct {
	mu      sync.Mutex
	routes  map[string]func() *domain.Response
	calls   map[string]int
	offline bool
}

func newFakeNetwork() *fakeNetwork {
	n := &fakeNetwork{
		routes: make(map[string]func() *domain.Response),
		calls:  make(map[string]int),
	}
	n.serve("http://viewer.local/SEGARROPREMIX.html", domain.TypeBasic, 200, "<html>viewer</html>")
	n.serve("http://viewer.local/RECURSOS/model.fbx", domain.TypeBasic, 200, "FBX-binary")
	return n
}

func (n *fakeNetwork) serve(rawURL string, typ domain.ResponseType, status int, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[rawURL] = func() *domain.Response {
		res := domain.NewResponse(typ, status, nil, []byte(body))
		res.URL = rawURL
		return res
	}
}

func (n *fakeNetwork) setOffline(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = v
}

func (n *fakeNetwork) Calls(rawURL string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[rawURL]
}

func (n *fakeNetwork) Fetch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	u := req.URL.String()
	n.calls[u]++
	if n.offline {
		return nil, errors.New("network unreachable")
	}
	route, ok := n.routes[u]
	if !ok {
		return domain.NewResponse(domain.TypeBasic, 404, nil, []byte("not found")), nil
	}
	return route(), nil
}

type hostOptions struct {
	storage store.Storage
	repo    state.Repository
}

func newTestHost(t *testing.T, net *fakeNetwork, opts ...func(*hostOptions)) *Host {
	t.Helper()
	o := hostOptions{storage: store.NewMemoryStorage()}
	for _, opt := range opts {
		opt(&o)
	}
	origin, _ := url.Parse(testOrigin)
	h, err := NewHost(HostConfig{
		Origin:        origin,
		Storage:       o.storage,
		Fetcher:       net,
		Registrations: o.repo,
	})
	if err != nil {
		t.Fatalf("NewHost() error = %v", err)
	}
	return h
}

func newTestGate(t *testing.T, name string, seeds ...string) *Gate {
	t.Helper()
	if len(seeds) == 0 {
		seeds = DefaultSeedFiles
	}
	g, err := NewGate(GateConfig{CacheName: name, SeedFiles: seeds}, nil)
	if err != nil {
		t.Fatalf("NewGate() error = %v", err)
	}
	return g
}

func getRequest(t *testing.T, rawURL, clientID string) *domain.Request {
	t.Helper()
	req, err := domain.NewRequest("GET", rawURL)
	if err != nil {
		t.Fatal(err)
	}
	req.ClientID = clientID
	return req
}

func dispatchBody(t *testing.T, h *Host, req *domain.Request) string {
	t.Helper()
	res, err := h.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch(%s) error = %v", req.URL, err)
	}
	body, err := res.ReadBody()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func cacheKeys(t *testing.T, h *Host, name string) []string {
	t.Helper()
	c, err := h.Caches().Open(context.Background(), name)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", name, err)
	}
	keys, err := c.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	return keys
}

// failingStorage wraps a storage whose caches reject Put.
type failingStorage struct {
	store.Storage
}

func (s failingStorage) Open(ctx context.Context, name string) (store.Cache, error) {
	c, err := s.Storage.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return failingCache{c}, nil
}

type failingCache struct {
	store.Cache
}

func (failingCache) Put(context.Context, store.Entry) error {
	return errors.New("disk full")
}

// recordingHandler is a worker that never skips waiting and records events.
type recordingHandler struct {
	mu        sync.Mutex
	installs  int
	activates int
	fetches   int
	panicOn   string
}

func (r *recordingHandler) OnInstall(ev *InstallEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installs++
}

func (r *recordingHandler) OnActivate(ev *ActivateEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activates++
}

func (r *recordingHandler) OnFetch(ev *FetchEvent) {
	r.mu.Lock()
	r.fetches++
	r.mu.Unlock()
	if r.panicOn != "" && ev.Request().URL.Path == r.panicOn {
		panic("handler bug")
	}
}

// streamRoute serves rawURL from a pipe. The first chunk is written at once,
// the rest after release is closed.
func (n *fakeNetwork) streamRoute(rawURL, first, rest string) (release chan struct{}) {
	release = make(chan struct{})
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[rawURL] = func() *domain.Response {
		pr, pw := io.Pipe()
		go func() {
			if _, err := pw.Write([]byte(first)); err != nil {
				return
			}
			<-release
			_, _ = pw.Write([]byte(rest))
			_ = pw.Close()
		}()
		res := domain.NewResponse(domain.TypeBasic, 200, nil, nil)
		res.URL = rawURL
		res.Body = pr
		return res
	}
	return release
}

// dispatchWithin fails the test if Dispatch does not return in time.
func dispatchWithin(t *testing.T, h *Host, req *domain.Request, d time.Duration) *domain.Response {
	t.Helper()
	type result struct {
		res *domain.Response
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := h.Dispatch(context.Background(), req)
		done <- result{res, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Dispatch() error = %v", r.err)
		}
		return r.res
	case <-time.After(d):
		t.Fatalf("Dispatch(%s) did not return within %v", req.URL, d)
		return nil
	}
}
