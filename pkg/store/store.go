package store

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrClosed is returned by operations on a closed storage.
var ErrClosed = errors.New("store: closed")

// Entry is a stored response.
type Entry struct {
	// Key is the request key (method and absolute URL).
	Key string

	Method string
	URL    string

	// Type is the response type at the time it was stored (basic, cors, ...).
	Type string

	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte

	// RequestHeader holds the request headers named by the response's Vary
	// header, as they were when the entry was stored.
	RequestHeader http.Header

	StoredAt time.Time
}

// Cache is one named store of entries.
type Cache interface {
	// Name returns the cache name.
	Name() string

	// Match returns the entry stored under key.
	Match(ctx context.Context, key string) (Entry, bool, error)

	// Put stores e under e.Key, replacing any previous entry.
	Put(ctx context.Context, e Entry) error

	// PutAll stores all entries or none of them.
	PutAll(ctx context.Context, entries []Entry) error

	// Delete removes the entry stored under key.
	Delete(ctx context.Context, key string) (bool, error)

	// Keys returns the stored keys in insertion order.
	Keys(ctx context.Context) ([]string, error)
}

// Storage holds the named caches of one origin.
type Storage interface {
	// Open returns the named cache, creating it if absent.
	Open(ctx context.Context, name string) (Cache, error)

	// Has reports whether a cache with the given name exists.
	Has(ctx context.Context, name string) (bool, error)

	// Delete removes the named cache and all its entries.
	// It reports whether a cache was removed.
	Delete(ctx context.Context, name string) (bool, error)

	// Keys returns the cache names in creation order.
	Keys(ctx context.Context) ([]string, error)

	// Close releases resources held by the storage.
	Close() error
}
