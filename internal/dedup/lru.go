package dedup

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCapacity = 10000
	DefaultTTL      = time.Hour
)

// LRUCache evicts by capacity (least recently used) and by age.
type LRUCache struct {
	entries *expirable.LRU[string, Entry]
}

func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRUCache{
		entries: expirable.NewLRU[string, Entry](capacity, nil, ttl),
	}
}

func (c *LRUCache) Lookup(_ context.Context, keys []string) (Entry, bool, error) {
	for _, key := range keys {
		if entry, ok := c.entries.Get(key); ok {
			return entry, true, nil
		}
	}
	return Entry{}, false, nil
}

func (c *LRUCache) Record(_ context.Context, keys []string, entry Entry) error {
	for _, key := range keys {
		c.entries.Add(key, entry)
	}
	return nil
}

func (c *LRUCache) Len() int {
	return c.entries.Len()
}
