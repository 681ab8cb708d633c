// Package memcache is the TTL-mode shard store: an in-process LRU whose
// entries expire natively, so the manager never schedules a purge sweep
// for it.
package memcache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/seclayer/urlfilter/internal/urlfilter/domain"
	"github.com/seclayer/urlfilter/internal/urlfilter/repos/shardcache"
)

// Cache stores shard trees with a fixed TTL. A Put refreshes the entry's
// TTL; reads of expired entries report a miss without explicit purging.
type Cache struct {
	lru *expirable.LRU[string, *domain.ShardTree]
}

// New returns a Cache holding at most size shards (0 means unbounded),
// each expiring ttl after its last write.
func New(size int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, *domain.ShardTree](size, nil, ttl)}
}

func (c *Cache) Get(key string) (*domain.ShardTree, bool, error) {
	tree, ok := c.lru.Get(key)
	return tree, ok, nil
}

func (c *Cache) Put(key string, tree *domain.ShardTree) error {
	// Add re-inserts, which resets the entry's expiry.
	c.lru.Add(key, tree)
	return nil
}

func (c *Cache) Delete(key string) error {
	c.lru.Remove(key)
	return nil
}

func (c *Cache) Keys() ([]string, error) {
	return c.lru.Keys(), nil
}

func (c *Cache) Close() error { return nil }

var _ shardcache.Store = (*Cache)(nil)
