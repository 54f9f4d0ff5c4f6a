// Package storetest checks a store.Storage implementation against the
// behavior the gate relies on.
package storetest

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/segarro/cachegate/pkg/store"
)

// Run exercises the storage returned by open. Each subtest gets a fresh
// storage and closes it.
func Run(t *testing.T, open func(t *testing.T) store.Storage) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Storage)
	}{
		{"OpenCreatesOnce", testOpenCreatesOnce},
		{"PutMatch", testPutMatch},
		{"PutReplaces", testPutReplaces},
		{"RequestHeaders", testRequestHeaders},
		{"PutAll", testPutAll},
		{"DeleteEntry", testDeleteEntry},
		{"DeleteCache", testDeleteCache},
		{"CachesAreIsolated", testCachesAreIsolated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

func entry(key, body string) store.Entry {
	return store.Entry{
		Key:        "GET " + key,
		Method:     http.MethodGet,
		URL:        key,
		Type:       "basic",
		StatusCode: http.StatusOK,
		Status:     "OK",
		Header:     http.Header{"Content-Type": {"text/html"}},
		Body:       []byte(body),
	}
}

func testOpenCreatesOnce(t *testing.T, s store.Storage) {
	ctx := context.Background()
	for _, name := range []string{"segarro-v5", "segarro-v6", "segarro-v5"} {
		if _, err := s.Open(ctx, name); err != nil {
			t.Fatalf("Open(%s) error = %v", name, err)
		}
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "segarro-v5" || keys[1] != "segarro-v6" {
		t.Errorf("Keys() = %v, want [segarro-v5 segarro-v6]", keys)
	}

	ok, err := s.Has(ctx, "segarro-v6")
	if err != nil || !ok {
		t.Errorf("Has(segarro-v6) = %v, %v", ok, err)
	}
	ok, err = s.Has(ctx, "segarro-v4")
	if err != nil || ok {
		t.Errorf("Has(segarro-v4) = %v, %v", ok, err)
	}
}

func testPutMatch(t *testing.T, s store.Storage) {
	ctx := context.Background()
	c, err := s.Open(ctx, "segarro-v6")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if c.Name() != "segarro-v6" {
		t.Errorf("Name() = %q", c.Name())
	}

	want := entry("http://viewer.local/SEGARROPREMIX.html", "<html>")
	if err := c.Put(ctx, want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := c.Match(ctx, want.Key)
	if err != nil || !ok {
		t.Fatalf("Match() = %v, %v", ok, err)
	}
	if got.URL != want.URL || got.Method != want.Method || got.Type != want.Type {
		t.Errorf("Match() = %+v", got)
	}
	if got.StatusCode != 200 || got.Status != "OK" {
		t.Errorf("status = %d %q", got.StatusCode, got.Status)
	}
	if got.Header.Get("Content-Type") != "text/html" {
		t.Errorf("Content-Type = %q", got.Header.Get("Content-Type"))
	}
	if !bytes.Equal(got.Body, want.Body) {
		t.Errorf("Body = %q, want %q", got.Body, want.Body)
	}
	if got.StoredAt.IsZero() {
		t.Error("StoredAt not set")
	}

	// mutating a match result must not change the stored entry
	got.Body[0] = 'X'
	again, _, _ := c.Match(ctx, want.Key)
	if !bytes.Equal(again.Body, want.Body) {
		t.Errorf("stored body changed to %q", again.Body)
	}

	if _, ok, err := c.Match(ctx, "GET http://viewer.local/missing"); err != nil || ok {
		t.Errorf("Match(missing) = %v, %v", ok, err)
	}
}

func testPutReplaces(t *testing.T, s store.Storage) {
	ctx := context.Background()
	c, err := s.Open(ctx, "segarro-v6")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := c.Put(ctx, entry("http://viewer.local/a", "one")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := c.Put(ctx, entry("http://viewer.local/a", "two")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, _, err := c.Match(ctx, "GET http://viewer.local/a")
	if err != nil || string(got.Body) != "two" {
		t.Errorf("Match() body = %q, %v, want two", got.Body, err)
	}
	keys, err := c.Keys(ctx)
	if err != nil || len(keys) != 1 {
		t.Errorf("Keys() = %v, %v, want one key", keys, err)
	}
}

func testPutAll(t *testing.T, s store.Storage) {
	ctx := context.Background()
	c, err := s.Open(ctx, "segarro-v6")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	entries := []store.Entry{
		entry("http://viewer.local/a", "a"),
		entry("http://viewer.local/b", "b"),
	}
	if err := c.PutAll(ctx, entries); err != nil {
		t.Fatalf("PutAll() error = %v", err)
	}
	keys, err := c.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != entries[0].Key || keys[1] != entries[1].Key {
		t.Errorf("Keys() = %v", keys)
	}

	bad := []store.Entry{entry("http://viewer.local/c", "c"), {}}
	if err := c.PutAll(ctx, bad); err == nil {
		t.Fatal("PutAll() with an empty key should fail")
	}
	if _, ok, _ := c.Match(ctx, bad[0].Key); ok {
		t.Error("PutAll() stored part of a failed batch")
	}
}

func testDeleteEntry(t *testing.T, s store.Storage) {
	ctx := context.Background()
	c, err := s.Open(ctx, "segarro-v6")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	e := entry("http://viewer.local/a", "a")
	if err := c.Put(ctx, e); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if ok, err := c.Delete(ctx, e.Key); err != nil || !ok {
		t.Errorf("Delete() = %v, %v, want true", ok, err)
	}
	if ok, err := c.Delete(ctx, e.Key); err != nil || ok {
		t.Errorf("second Delete() = %v, %v, want false", ok, err)
	}
	if _, ok, _ := c.Match(ctx, e.Key); ok {
		t.Error("Match() after Delete found the entry")
	}
}

func testDeleteCache(t *testing.T, s store.Storage) {
	ctx := context.Background()
	c, err := s.Open(ctx, "segarro-v5")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := c.Put(ctx, entry("http://viewer.local/RECURSOS/model.fbx", "fbx")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if ok, err := s.Delete(ctx, "segarro-v5"); err != nil || !ok {
		t.Fatalf("Delete() = %v, %v, want true", ok, err)
	}
	if ok, err := s.Delete(ctx, "segarro-v5"); err != nil || ok {
		t.Errorf("second Delete() = %v, %v, want false", ok, err)
	}
	if ok, _ := s.Has(ctx, "segarro-v5"); ok {
		t.Error("Has() after Delete = true")
	}

	reopened, err := s.Open(ctx, "segarro-v5")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	keys, err := reopened.Keys(ctx)
	if err != nil || len(keys) != 0 {
		t.Errorf("reopened cache Keys() = %v, %v, want empty", keys, err)
	}
}

func testCachesAreIsolated(t *testing.T, s store.Storage) {
	ctx := context.Background()
	v5, err := s.Open(ctx, "segarro-v5")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	v6, err := s.Open(ctx, "segarro-v6")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	e := entry("http://viewer.local/a", "old")
	if err := v5.Put(ctx, e); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok, _ := v6.Match(ctx, e.Key); ok {
		t.Error("entry leaked into another cache")
	}
}

func testRequestHeaders(t *testing.T, s store.Storage) {
	ctx := context.Background()
	c, err := s.Open(ctx, "segarro-v6")
	if err != nil {
		t.Fatal(err)
	}

	varied := entry("http://viewer.local/RECURSOS/model.fbx", "gzipped")
	varied.Header.Set("Vary", "Accept-Encoding")
	varied.RequestHeader = http.Header{"Accept-Encoding": {"gzip"}}
	plain := entry("http://viewer.local/SEGARROPREMIX.html", "viewer")

	if err := c.PutAll(ctx, []store.Entry{varied, plain}); err != nil {
		t.Fatalf("PutAll() error = %v", err)
	}

	got, ok, err := c.Match(ctx, varied.Key)
	if err != nil || !ok {
		t.Fatalf("Match() = %v, %v", ok, err)
	}
	if v := got.RequestHeader.Get("Accept-Encoding"); v != "gzip" {
		t.Errorf("RequestHeader Accept-Encoding = %q, want gzip", v)
	}

	got, ok, err = c.Match(ctx, plain.Key)
	if err != nil || !ok {
		t.Fatalf("Match() = %v, %v", ok, err)
	}
	if len(got.RequestHeader) != 0 {
		t.Errorf("RequestHeader = %v, want empty", got.RequestHeader)
	}
}
