package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/segarro/cachegate/internal/domain"
	"github.com/segarro/cachegate/internal/ports"
	"github.com/segarro/cachegate/pkg/store"
)

// CacheStorage is the request-level view of a store.Storage.
type CacheStorage struct {
	storage store.Storage
	fetcher ports.Fetcher
	resolve func(string) (*url.URL, error)
}

// Open returns the named cache, creating it if absent.
func (cs *CacheStorage) Open(ctx context.Context, name string) (*Cache, error) {
	c, err := cs.storage.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: c, fetcher: cs.fetcher, resolve: cs.resolve}, nil
}

// Lookup returns the named cache only if it already exists.
func (cs *CacheStorage) Lookup(ctx context.Context, name string) (*Cache, bool, error) {
	ok, err := cs.storage.Has(ctx, name)
	if err != nil || !ok {
		return nil, false, err
	}
	c, err := cs.Open(ctx, name)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// Has reports whether the named cache exists.
func (cs *CacheStorage) Has(ctx context.Context, name string) (bool, error) {
	return cs.storage.Has(ctx, name)
}

// Delete removes the named cache.
func (cs *CacheStorage) Delete(ctx context.Context, name string) (bool, error) {
	return cs.storage.Delete(ctx, name)
}

// Keys returns the cache names in creation order.
func (cs *CacheStorage) Keys(ctx context.Context) ([]string, error) {
	return cs.storage.Keys(ctx)
}

// Match looks req up in every cache, oldest first.
func (cs *CacheStorage) Match(ctx context.Context, req *domain.Request) (*domain.Response, bool, error) {
	names, err := cs.storage.Keys(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, name := range names {
		c, err := cs.Open(ctx, name)
		if err != nil {
			return nil, false, err
		}
		res, ok, err := c.Match(ctx, req)
		if err != nil || ok {
			return res, ok, err
		}
	}
	return nil, false, nil
}

// Cache is one named cache seen through requests and responses.
type Cache struct {
	inner   store.Cache
	fetcher ports.Fetcher
	resolve func(string) (*url.URL, error)
}

// Name returns the cache name.
func (c *Cache) Name() string {
	return c.inner.Name()
}

// Match returns the stored response for req. Only GET requests match, and
// the request headers named by the stored response's Vary must equal the
// ones recorded at Put.
func (c *Cache) Match(ctx context.Context, req *domain.Request) (*domain.Response, bool, error) {
	if req.Method != http.MethodGet {
		return nil, false, nil
	}
	e, ok, err := c.inner.Match(ctx, req.Key())
	if err != nil || !ok {
		return nil, false, err
	}
	if !varyMatches(e, req.Header) {
		return nil, false, nil
	}
	return entryResponse(e), true, nil
}

// Put stores res under req, consuming the response body.
func (c *Cache) Put(ctx context.Context, req *domain.Request, res *domain.Response) error {
	e, err := newEntry(req, res)
	if err != nil {
		return err
	}
	return c.inner.Put(ctx, e)
}

// AddAll fetches every path and stores all responses in one batch. If any
// fetch fails or returns a non-2xx status nothing is stored.
func (c *Cache) AddAll(ctx context.Context, paths []string) error {
	reqs := make([]*domain.Request, len(paths))
	for i, p := range paths {
		u, err := c.resolve(p)
		if err != nil {
			return err
		}
		reqs[i] = &domain.Request{Method: http.MethodGet, URL: u, Header: http.Header{}}
	}

	entries := make([]store.Entry, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := c.fetcher.Fetch(gctx, req)
			if err != nil {
				return err
			}
			if !res.OK() {
				if res.Body != nil {
					_ = res.Body.Close()
				}
				return fmt.Errorf("%w: %s returned %d", domain.ErrNotOK, req.URL, res.StatusCode)
			}
			e, err := newEntry(req, res)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return c.inner.PutAll(ctx, entries)
}

// Delete removes the entry for req.
func (c *Cache) Delete(ctx context.Context, req *domain.Request) (bool, error) {
	return c.inner.Delete(ctx, req.Key())
}

// Keys returns the stored request keys.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	return c.inner.Keys(ctx)
}

// newEntry applies the storage rules for a request/response pair and reads
// the body.
func newEntry(req *domain.Request, res *domain.Response) (store.Entry, error) {
	if req.Method != http.MethodGet {
		return store.Entry{}, fmt.Errorf("%w: %s", domain.ErrMethodNotCacheable, req.Method)
	}
	if res.StatusCode == http.StatusPartialContent {
		return store.Entry{}, domain.ErrPartialContent
	}
	if varyWildcard(res.Header) {
		return store.Entry{}, domain.ErrVaryWildcard
	}
	body, err := res.ReadBody()
	if err != nil {
		return store.Entry{}, err
	}
	return store.Entry{
		Key:           req.Key(),
		Method:        req.Method,
		URL:           req.URL.String(),
		Type:          string(res.Type),
		StatusCode:    res.StatusCode,
		Status:        res.Status,
		Header:        res.Header.Clone(),
		RequestHeader: variedHeaders(res.Header, req.Header),
		Body:          body,
	}, nil
}

func entryResponse(e store.Entry) *domain.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &domain.Response{
		Type:       domain.ResponseType(e.Type),
		URL:        e.URL,
		StatusCode: e.StatusCode,
		Status:     e.Status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(e.Body)),
	}
}

func varyWildcard(h http.Header) bool {
	for _, v := range h.Values("Vary") {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "*" {
				return true
			}
		}
	}
	return false
}

// varyNames returns the canonical header names listed in Vary.
func varyNames(h http.Header) []string {
	var names []string
	for _, v := range h.Values("Vary") {
		for _, part := range strings.Split(v, ",") {
			if name := strings.TrimSpace(part); name != "" && name != "*" {
				names = append(names, http.CanonicalHeaderKey(name))
			}
		}
	}
	return names
}

// variedHeaders records the request headers a response varies on.
func variedHeaders(resHeader, reqHeader http.Header) http.Header {
	names := varyNames(resHeader)
	if len(names) == 0 {
		return nil
	}
	out := http.Header{}
	for _, name := range names {
		if vs := reqHeader.Values(name); len(vs) > 0 {
			out[name] = append([]string(nil), vs...)
		}
	}
	return out
}

func varyMatches(e store.Entry, reqHeader http.Header) bool {
	for _, name := range varyNames(e.Header) {
		if strings.Join(e.RequestHeader.Values(name), ",") != strings.Join(reqHeader.Values(name), ",") {
			return false
		}
	}
	return true
}
