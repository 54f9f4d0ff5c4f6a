package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStorage is an in-process Storage.
type MemoryStorage struct {
	mu     sync.RWMutex
	names  []string
	caches map[string]*memoryCache
	closed bool
}

// NewMemoryStorage returns an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{caches: make(map[string]*memoryCache)}
}

// Open returns the named cache, creating it if absent.
func (s *MemoryStorage) Open(ctx context.Context, name string) (Cache, error) {
	if name == "" {
		return nil, fmt.Errorf("cache name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if c, ok := s.caches[name]; ok {
		return c, nil
	}
	c := &memoryCache{name: name, entries: make(map[string]Entry)}
	s.caches[name] = c
	s.names = append(s.names, name)
	return c, nil
}

// Has reports whether the named cache exists.
func (s *MemoryStorage) Has(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.caches[name]
	return ok, nil
}

// Delete removes the named cache.
func (s *MemoryStorage) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if _, ok := s.caches[name]; !ok {
		return false, nil
	}
	delete(s.caches, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
	return true, nil
}

// Keys returns the cache names in creation order.
func (s *MemoryStorage) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return append([]string(nil), s.names...), nil
}

// Close marks the storage closed. Entries are dropped.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.caches = nil
	s.names = nil
	return nil
}

type memoryCache struct {
	name string

	mu      sync.RWMutex
	order   []string
	entries map[string]Entry
}

func (c *memoryCache) Name() string { return c.name }

func (c *memoryCache) Match(ctx context.Context, key string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	return copyEntry(e), true, nil
}

func (c *memoryCache) Put(ctx context.Context, e Entry) error {
	if e.Key == "" {
		return fmt.Errorf("entry key is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(e)
	return nil
}

func (c *memoryCache) PutAll(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if e.Key == "" {
			return fmt.Errorf("entry key is required")
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.put(e)
	}
	return nil
}

func (c *memoryCache) put(e Entry) {
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now().UTC()
	}
	if _, ok := c.entries[e.Key]; !ok {
		c.order = append(c.order, e.Key)
	}
	c.entries[e.Key] = copyEntry(e)
}

func (c *memoryCache) Delete(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false, nil
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (c *memoryCache) Keys(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...), nil
}

// copyEntry detaches the body and headers so callers cannot mutate stored data.
func copyEntry(e Entry) Entry {
	out := e
	out.Header = e.Header.Clone()
	out.RequestHeader = e.RequestHeader.Clone()
	if e.Body != nil {
		out.Body = append([]byte(nil), e.Body...)
	}
	return out
}
