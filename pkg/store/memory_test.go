package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/segarro/cachegate/pkg/store"
	"github.com/segarro/cachegate/pkg/store/storetest"
)

func TestMemoryStorage(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Storage {
		return store.NewMemoryStorage()
	})
}

func TestMemoryStorage_Closed(t *testing.T) {
	s := store.NewMemoryStorage()
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ctx := context.Background()
	if _, err := s.Open(ctx, "segarro-v6"); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Open() after Close = %v, want ErrClosed", err)
	}
	if _, err := s.Keys(ctx); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Keys() after Close = %v, want ErrClosed", err)
	}
}

func TestMemoryStorage_EmptyName(t *testing.T) {
	if _, err := store.NewMemoryStorage().Open(context.Background(), ""); err == nil {
		t.Error("Open(\"\") expected error")
	}
}
