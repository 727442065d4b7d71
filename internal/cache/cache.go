// Package cache implements the satellite's kernel RPC cache: a plain
// key/value store borrowed by the loaded kernel across
// CacheGetRequest/CachePutRequest (spec §4.3, §5 Shared resources).
package cache

import "sync"

// Cache is the external collaborator the satellite Session borrows
// between CacheGetRequest and CachePutRequest.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) bool
	Close() error
}

// MemoryCache is the default, RAM-resident Cache, matching the
// firmware's cache (cleared on process restart).
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string][]byte)}
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

func (c *MemoryCache) Put(key string, value []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]byte(nil), value...)
	return true
}

func (c *MemoryCache) Close() error { return nil }

var _ Cache = (*MemoryCache)(nil)
