package store

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Cache is a byte-oriented key/value backend. Values are encoded snapshots, so a
// caller never shares memory with what the cache holds.
type Cache interface {
	Set(ctx context.Context, key string, val []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// MemoryCache is a process-local Cache. Its contents are lost on restart.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

func (m *MemoryCache) Set(ctx context.Context, key string, val []byte) error {
	m.mu.Lock()
	m.entries[key] = slices.Clone(val)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	val, ok := m.entries[key]
	m.mu.RUnlock()
	return slices.Clone(val), ok, nil
}

func (m *MemoryCache) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Keys returns the keys under prefix in lexical order.
func (m *MemoryCache) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	var keys []string
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()
	slices.Sort(keys)
	return keys, nil
}
