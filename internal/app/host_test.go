package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/segarro/cachegate/internal/domain"
	"github.com/segarro/cachegate/internal/ports"
	"github.com/segarro/cachegate/pkg/lifecycle"
	"github.com/segarro/cachegate/pkg/state"
	"github.com/segarro/cachegate/pkg/store"
)

func TestNewHost_Validation(t *testing.T) {
	origin, _ := url.Parse(testOrigin)
	relative, _ := url.Parse("/viewer/")
	net := newFakeNetwork()
	storage := store.NewMemoryStorage()

	tests := []struct {
		name string
		cfg  HostConfig
	}{
		{"missing origin", HostConfig{Storage: storage, Fetcher: net}},
		{"relative origin", HostConfig{Origin: relative, Storage: storage, Fetcher: net}},
		{"missing storage", HostConfig{Origin: origin, Fetcher: net}},
		{"missing fetcher", HostConfig{Origin: origin, Storage: storage}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewHost(tt.cfg); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("NewHost() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestHost_RegisterValidation(t *testing.T) {
	h := newTestHost(t, newFakeNetwork())
	if err := h.Register(context.Background(), "", newTestGate(t, "segarro-v6")); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Register(empty version) error = %v", err)
	}
	if err := h.Register(context.Background(), "segarro-v6", nil); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Register(nil handler) error = %v", err)
	}
}

func TestHost_NoWorkerGoesToNetwork(t *testing.T) {
	net := newFakeNetwork()
	h := newTestHost(t, net)

	got := dispatchBody(t, h, getRequest(t, "http://viewer.local/RECURSOS/model.fbx", "page-1"))
	if got != "FBX-binary" {
		t.Errorf("body = %q", got)
	}
	if h.Clients().Controlled("page-1") {
		t.Error("client seen before activation should not be controlled")
	}
}

func TestHost_ClaimControlsExistingClients(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	h := newTestHost(t, net)

	const model = "http://viewer.local/RECURSOS/model.fbx"
	dispatchBody(t, h, getRequest(t, model, "page-1"))

	if err := h.Register(ctx, "segarro-v6", newTestGate(t, "segarro-v6")); err != nil {
		t.Fatal(err)
	}
	if !h.Clients().Controlled("page-1") {
		t.Fatal("client should be controlled after claim")
	}

	dispatchBody(t, h, getRequest(t, model, "page-1"))
	h.Tracker().Wait()
	net.setOffline(true)
	if got := dispatchBody(t, h, getRequest(t, model, "page-1")); got != "FBX-binary" {
		t.Errorf("body = %q", got)
	}
}

func TestHost_UnclaimedClientStaysUncontrolled(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	h := newTestHost(t, net)
	handler := &recordingHandler{}

	dispatchBody(t, h, getRequest(t, "http://viewer.local/SEGARROPREMIX.html", "early"))
	if err := h.Register(ctx, "v1", handler); err != nil {
		t.Fatal(err)
	}

	dispatchBody(t, h, getRequest(t, "http://viewer.local/SEGARROPREMIX.html", "early"))
	dispatchBody(t, h, getRequest(t, "http://viewer.local/SEGARROPREMIX.html", "late"))

	if handler.fetches != 1 {
		t.Errorf("fetch events = %d, want 1 (late client only)", handler.fetches)
	}
	if h.Clients().Controlled("early") {
		t.Error("early client should stay uncontrolled without claim")
	}
}

func TestHost_WaitingWorkerActivatesWhenClientsClose(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	h := newTestHost(t, net)
	v1, v2 := &recordingHandler{}, &recordingHandler{}

	if err := h.Register(ctx, "v1", v1); err != nil {
		t.Fatal(err)
	}
	dispatchBody(t, h, getRequest(t, "http://viewer.local/SEGARROPREMIX.html", "page-1"))

	if err := h.Register(ctx, "v2", v2); err != nil {
		t.Fatal(err)
	}
	if got := h.WaitingVersion(); got != "v2" {
		t.Fatalf("WaitingVersion() = %q, want v2", got)
	}
	if got := h.ActiveVersion(); got != "v1" {
		t.Fatalf("ActiveVersion() = %q, want v1", got)
	}
	if v2.activates != 0 {
		t.Errorf("v2 activated while waiting")
	}

	h.CloseClient(ctx, "page-1")

	if got := h.ActiveVersion(); got != "v2" {
		t.Errorf("ActiveVersion() = %q, want v2", got)
	}
	if got := h.WaitingVersion(); got != "" {
		t.Errorf("WaitingVersion() = %q, want none", got)
	}
	if v2.installs != 1 || v2.activates != 1 {
		t.Errorf("v2 installs = %d activates = %d, want 1, 1", v2.installs, v2.activates)
	}
}

func TestHost_ActivateWaiting(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(t, newFakeNetwork())

	if h.ActivateWaiting(ctx) {
		t.Error("ActivateWaiting() = true with no waiting worker")
	}
	if err := h.Register(ctx, "v1", &recordingHandler{}); err != nil {
		t.Fatal(err)
	}
	dispatchBody(t, h, getRequest(t, "http://viewer.local/SEGARROPREMIX.html", "page-1"))
	if err := h.Register(ctx, "v2", &recordingHandler{}); err != nil {
		t.Fatal(err)
	}
	if !h.ActivateWaiting(ctx) {
		t.Fatal("ActivateWaiting() = false, want true")
	}
	if got := h.ActiveVersion(); got != "v2" {
		t.Errorf("ActiveVersion() = %q, want v2", got)
	}
}

func TestHost_RegisterSameVersionIsNoop(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	h := newTestHost(t, net)

	for i := 0; i < 2; i++ {
		if err := h.Register(ctx, "segarro-v6", newTestGate(t, "segarro-v6")); err != nil {
			t.Fatal(err)
		}
	}
	if calls := net.Calls("http://viewer.local/SEGARROPREMIX.html"); calls != 1 {
		t.Errorf("seed fetched %d times, want 1", calls)
	}
}

func TestHost_RestoresRegistration(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	storage := store.NewMemoryStorage()
	repo := state.NewFileRepository(t.TempDir())
	withShared := func(o *hostOptions) {
		o.storage = storage
		o.repo = repo
	}

	first := newTestHost(t, net, withShared)
	if err := first.Register(ctx, "segarro-v6", newTestGate(t, "segarro-v6")); err != nil {
		t.Fatal(err)
	}

	reg, err := repo.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if reg.ActiveVersion != "segarro-v6" || reg.WorkerState != lifecycle.StateActivated.String() {
		t.Fatalf("saved registration = %+v", reg)
	}

	second := newTestHost(t, net, withShared)
	if err := second.Register(ctx, "segarro-v6", newTestGate(t, "segarro-v6")); err != nil {
		t.Fatal(err)
	}
	if st, ok := second.ActiveState(); !ok || st != lifecycle.StateActivated {
		t.Errorf("ActiveState() = %v, %v, want Activated", st, ok)
	}
	if calls := net.Calls("http://viewer.local/SEGARROPREMIX.html"); calls != 1 {
		t.Errorf("seed fetched %d times, want 1", calls)
	}

	net.setOffline(true)
	got := dispatchBody(t, second, getRequest(t, "http://viewer.local/SEGARROPREMIX.html", "page-1"))
	if got != "<html>viewer</html>" {
		t.Errorf("body = %q", got)
	}
}

func TestHost_RestoreNeedsCache(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	repo := state.NewFileRepository(t.TempDir())
	if err := repo.Save(ctx, state.Registration{
		ActiveVersion: "segarro-v6",
		WorkerState:   lifecycle.StateActivated.String(),
	}); err != nil {
		t.Fatal(err)
	}

	h := newTestHost(t, net, func(o *hostOptions) { o.repo = repo })
	if err := h.Register(ctx, "segarro-v6", newTestGate(t, "segarro-v6")); err != nil {
		t.Fatal(err)
	}
	if calls := net.Calls("http://viewer.local/SEGARROPREMIX.html"); calls != 1 {
		t.Errorf("seed fetched %d times, want 1 (fresh install)", calls)
	}
}

func TestHost_PanickingFetchHandlerFallsBack(t *testing.T) {
	net := newFakeNetwork()
	h := newTestHost(t, net)
	if err := h.Register(context.Background(), "v1", &recordingHandler{panicOn: "/RECURSOS/model.fbx"}); err != nil {
		t.Fatal(err)
	}

	got := dispatchBody(t, h, getRequest(t, "http://viewer.local/RECURSOS/model.fbx", "page-1"))
	if got != "FBX-binary" {
		t.Errorf("body = %q", got)
	}
}

type claimingHandler struct {
	recordingHandler
	claimErr error
}

func (c *claimingHandler) OnInstall(ev *InstallEvent) {
	c.claimErr = ev.Scope().Clients().Claim()
}

func TestScope_ClaimBeforeActivation(t *testing.T) {
	h := newTestHost(t, newFakeNetwork())
	handler := &claimingHandler{}
	if err := h.Register(context.Background(), "v1", handler); err != nil {
		t.Fatal(err)
	}
	if handler.claimErr == nil {
		t.Error("Claim() during install should fail")
	}
}

func TestHost_ServeHTTP(t *testing.T) {
	var forwarded *domain.Request
	fetcher := ports.FetcherFunc(func(ctx context.Context, req *domain.Request) (*domain.Response, error) {
		forwarded = req
		if strings.HasSuffix(req.URL.Path, "/down") {
			return nil, errors.New("connection refused")
		}
		res := domain.NewResponse(domain.TypeBasic, http.StatusOK, http.Header{"Content-Type": {"text/html"}}, []byte("<html>viewer</html>"))
		return res, nil
	})
	origin, _ := url.Parse(testOrigin)
	h, err := NewHost(HostConfig{Origin: origin, Storage: store.NewMemoryStorage(), Fetcher: fetcher})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("assigns client cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/SEGARROPREMIX.html", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if rec.Body.String() != "<html>viewer</html>" {
			t.Errorf("body = %q", rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/html" {
			t.Errorf("Content-Type = %q", ct)
		}
		var found bool
		for _, c := range rec.Result().Cookies() {
			if c.Name == ClientCookie && c.Value != "" {
				found = true
			}
		}
		if !found {
			t.Error("client cookie not set")
		}
		if got := forwarded.URL.String(); got != "http://viewer.local/SEGARROPREMIX.html" {
			t.Errorf("forwarded URL = %q", got)
		}
	})

	t.Run("strips client cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/RECURSOS/model.fbx?lod=2", nil)
		r.AddCookie(&http.Cookie{Name: ClientCookie, Value: "page-7"})
		r.AddCookie(&http.Cookie{Name: "session", Value: "xyz"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		if len(rec.Result().Cookies()) != 0 {
			t.Error("cookie reassigned for a known client")
		}
		if forwarded.ClientID != "page-7" {
			t.Errorf("ClientID = %q, want page-7", forwarded.ClientID)
		}
		if got := forwarded.Header.Get("Cookie"); got != "session=xyz" {
			t.Errorf("forwarded Cookie = %q, want session=xyz", got)
		}
		if got := forwarded.URL.String(); got != "http://viewer.local/RECURSOS/model.fbx?lod=2" {
			t.Errorf("forwarded URL = %q", got)
		}
	})

	t.Run("head has no body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/SEGARROPREMIX.html", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("body = %q, want empty", rec.Body.String())
		}
	})

	t.Run("network failure is bad gateway", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/down", nil))
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
	})
}

func TestCache_PutRules(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(t, newFakeNetwork())
	c, err := h.Caches().Open(ctx, "segarro-v6")
	if err != nil {
		t.Fatal(err)
	}
	const asset = "http://viewer.local/RECURSOS/model.fbx"

	post, _ := domain.NewRequest(http.MethodPost, asset)
	get := getRequest(t, asset, "")

	tests := []struct {
		name    string
		req     *domain.Request
		res     *domain.Response
		wantErr error
	}{
		{"post", post, domain.NewResponse(domain.TypeBasic, 200, nil, nil), domain.ErrMethodNotCacheable},
		{"partial content", get, domain.NewResponse(domain.TypeBasic, 206, nil, nil), domain.ErrPartialContent},
		{"vary wildcard", get, domain.NewResponse(domain.TypeBasic, 200, http.Header{"Vary": {"Accept, *"}}, nil), domain.ErrVaryWildcard},
		{"ok", get, domain.NewResponse(domain.TypeBasic, 200, nil, []byte("FBX")), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Put(ctx, tt.req, tt.res)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Put() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	res, ok, err := c.Match(ctx, get)
	if err != nil || !ok {
		t.Fatalf("Match() = %v, %v", ok, err)
	}
	body, _ := res.ReadBody()
	if string(body) != "FBX" {
		t.Errorf("body = %q", body)
	}
	if _, ok, _ := c.Match(ctx, post); ok {
		t.Error("POST should never match")
	}
}

func TestCache_AddAllIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(t, newFakeNetwork())
	c, err := h.Caches().Open(ctx, "segarro-v6")
	if err != nil {
		t.Fatal(err)
	}

	err = c.AddAll(ctx, []string{"./SEGARROPREMIX.html", "/RECURSOS/model.fbx", "./missing.js"})
	if !errors.Is(err, domain.ErrNotOK) {
		t.Fatalf("AddAll() error = %v, want ErrNotOK", err)
	}
	if keys, _ := c.Keys(ctx); len(keys) != 0 {
		t.Errorf("keys = %v, want none", keys)
	}

	if err := c.AddAll(ctx, []string{"./SEGARROPREMIX.html", "/RECURSOS/model.fbx"}); err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	if keys, _ := c.Keys(ctx); len(keys) != 2 {
		t.Errorf("keys = %v, want 2", keys)
	}
}

func TestCacheStorage_Match(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(t, newFakeNetwork())
	const asset = "http://viewer.local/RECURSOS/model.fbx"

	for _, name := range []string{"segarro-v5", "segarro-v6"} {
		c, err := h.Caches().Open(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		res := domain.NewResponse(domain.TypeBasic, 200, nil, []byte(name))
		if err := c.Put(ctx, getRequest(t, asset, ""), res); err != nil {
			t.Fatal(err)
		}
	}

	res, ok, err := h.Caches().Match(ctx, getRequest(t, asset, ""))
	if err != nil || !ok {
		t.Fatalf("Match() = %v, %v", ok, err)
	}
	body, _ := res.ReadBody()
	if string(body) != "segarro-v5" {
		t.Errorf("body = %q, want oldest cache first", body)
	}

	if _, ok, _ := h.Caches().Match(ctx, getRequest(t, "http://viewer.local/nope", "")); ok {
		t.Error("Match() found an entry that was never stored")
	}
}

func TestCache_MatchHonorsVary(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(t, newFakeNetwork())
	c, err := h.Caches().Open(ctx, "segarro-v6")
	if err != nil {
		t.Fatal(err)
	}
	const asset = "http://viewer.local/RECURSOS/model.fbx"

	stored := getRequest(t, asset, "")
	stored.Header.Set("Accept-Encoding", "gzip")
	res := domain.NewResponse(domain.TypeBasic, 200, http.Header{"Vary": {"accept-encoding"}}, []byte("gzipped"))
	if err := c.Put(ctx, stored, res); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	tests := []struct {
		name     string
		encoding string
		want     bool
	}{
		{"same header", "gzip", true},
		{"other value", "br", false},
		{"header missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := getRequest(t, asset, "")
			if tt.encoding != "" {
				req.Header.Set("Accept-Encoding", tt.encoding)
			}
			_, ok, err := c.Match(ctx, req)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if ok != tt.want {
				t.Errorf("Match() found = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestCacheStorage_Lookup(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(t, newFakeNetwork())

	if _, ok, err := h.Caches().Lookup(ctx, "segarro-v6"); err != nil || ok {
		t.Fatalf("Lookup(missing) = %v, %v", ok, err)
	}
	if has, _ := h.Caches().Has(ctx, "segarro-v6"); has {
		t.Error("Lookup created the cache")
	}

	if _, err := h.Caches().Open(ctx, "segarro-v6"); err != nil {
		t.Fatal(err)
	}
	c, ok, err := h.Caches().Lookup(ctx, "segarro-v6")
	if err != nil || !ok || c.Name() != "segarro-v6" {
		t.Errorf("Lookup() = %v, %v, %v", c, ok, err)
	}
}
