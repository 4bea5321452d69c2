package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process TTL cache. It is safe for concurrent use.
type Memory struct {
	cache *gocache.Cache
}

// NewMemory creates a memory cache whose entries expire after ttl. A zero
// ttl keeps entries until the process exits.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	cleanup := 10 * time.Minute
	if ttl > 0 && ttl < cleanup {
		cleanup = ttl
	}
	return &Memory{cache: gocache.New(ttl, cleanup)}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	if val, found := c.cache.Get(key); found {
		return val.([]byte), true, nil
	}
	return nil, false, nil
}

func (c *Memory) Save(_ context.Context, key string, data []byte) error {
	c.cache.SetDefault(key, data)
	return nil
}

// Len reports the number of live entries.
func (c *Memory) Len() int {
	return c.cache.ItemCount()
}

// Flush drops every entry.
func (c *Memory) Flush() {
	c.cache.Flush()
}
