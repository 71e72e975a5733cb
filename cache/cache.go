// Package cache is the generic LRU wrapper described in spec §2's
// ambient list, fronting hashicorp/golang-lru/v2. schema.Cache and
// index/tree.CachingFetcher are both built on it rather than on
// golang-lru directly.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// Cache is a size-bounded LRU keyed by K, versioned by an external
// transaction id. Invalidate drops every entry and logs the reason
// whenever that version changes (spec §5).
type Cache[K comparable, V any] struct {
	name  string
	inner *lru.Cache[K, V]
	t     int64
	log   *logrus.Entry
}

// New builds a Cache with room for size entries, labeled name for log
// lines and held at the given starting transaction id.
func New[K comparable, V any](name string, size int, t int64, log *logrus.Entry) (*Cache[K, V], error) {
	inner, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Cache[K, V]{name: name, inner: inner, t: t, log: log.WithField("cache", name)}, nil
}

// Get returns the cached value for key, if present.
func (c *Cache[K, V]) Get(key K) (V, bool) { return c.inner.Get(key) }

// Put adds or refreshes key's entry.
func (c *Cache[K, V]) Put(key K, val V) { c.inner.Add(key, val) }

// Len reports the number of entries currently cached.
func (c *Cache[K, V]) Len() int { return c.inner.Len() }

// Invalidate drops every entry if t differs from the cache's current
// version (in either direction), and logs the invalidation (spec §1.1: one
// of the named logrus sites, "cache invalidation").
func (c *Cache[K, V]) Invalidate(t int64) {
	if t == c.t {
		return
	}
	c.log.WithFields(logrus.Fields{"from_t": c.t, "to_t": t}).Info("cache invalidated")
	c.inner.Purge()
	c.t = t
}
