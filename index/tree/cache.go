package tree

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/flakegraph/query/cache"
)

// cacheKey is a node handle plus the t-range resolution was performed
// under, matching spec §5: "the LRU cache of resolved index nodes is
// shared across concurrent queries keyed by node handle and t-range".
type cacheKey struct {
	handle     Handle
	fromT, toT int64
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%s[%d,%d]", k.handle, k.fromT, k.toT)
}

// CachingFetcher wraps a Fetcher with a shared cache.Cache, the same
// versioned LRU wrapper schema.Cache uses. It holds no lock of its own:
// misses run their underlying Fetch concurrently, and two concurrent
// misses on the same key may both fetch it.
type CachingFetcher struct {
	inner      Fetcher
	cache      *cache.Cache[cacheKey, Node]
	fromT, toT int64
}

// NewCachingFetcher builds a CachingFetcher with room for size nodes,
// scoped to the t-range [fromT, toT] its caller resolves under. log is
// nil-safe.
func NewCachingFetcher(inner Fetcher, size int, fromT, toT int64, log *logrus.Entry) (*CachingFetcher, error) {
	c, err := cache.New[cacheKey, Node]("tree.nodes", size, fromT, log)
	if err != nil {
		return nil, err
	}
	return &CachingFetcher{inner: inner, cache: c, fromT: fromT, toT: toT}, nil
}

// Fetch resolves h, serving from cache on hit.
func (f *CachingFetcher) Fetch(ctx context.Context, h Handle) (Node, error) {
	key := cacheKey{handle: h, fromT: f.fromT, toT: f.toT}
	if n, ok := f.cache.Get(key); ok {
		return n, nil
	}
	n, err := f.inner.Fetch(ctx, h)
	if err != nil {
		return Node{}, err
	}
	f.cache.Put(key, n)
	return n, nil
}
