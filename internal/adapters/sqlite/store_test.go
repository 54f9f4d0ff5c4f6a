package sqlite

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/segarro/cachegate/pkg/store"
	"github.com/segarro/cachegate/pkg/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "caches.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Storage {
		return openTestStore(t)
	})
}

func TestStore_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	if _, err := s.Open(context.Background(), "segarro-v6"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caches.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	c, err := s.Open(ctx, "segarro-v6")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := c.Put(ctx, store.Entry{
		Key:        "GET http://viewer.local/SEGARROPREMIX.html",
		Method:     http.MethodGet,
		URL:        "http://viewer.local/SEGARROPREMIX.html",
		Type:       "basic",
		StatusCode: http.StatusOK,
		Status:     "OK",
		Body:       []byte("<html>"),
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// migrations must be idempotent across opens
	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s.Close()

	n, err := s.EntryCount(ctx, "segarro-v6")
	if err != nil || n != 1 {
		t.Errorf("EntryCount() = %d, %v, want 1", n, err)
	}
}

func TestStore_DeleteCascadesEntries(t *testing.T) {
	s := openTestStore(t)
	defer s.Close()
	ctx := context.Background()

	c, err := s.Open(ctx, "segarro-v5")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := c.Put(ctx, store.Entry{Key: "GET http://viewer.local/RECURSOS/model.fbx", Method: http.MethodGet, Body: []byte("fbx")}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := s.Delete(ctx, "segarro-v5"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if n != 0 {
		t.Errorf("%d entries left after deleting their cache", n)
	}
}

func TestUpSection(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n"
	got := strings.TrimSpace(upSection(content))
	if got != "CREATE TABLE a (id INTEGER);" {
		t.Errorf("upSection() = %q", got)
	}
}
