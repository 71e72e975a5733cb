// Package schema resolves predicate IRIs to subject ids, resolves tags,
// and computes class/subclass closures, all versioned by the
// db's transaction id and backed by a shared LRU. It never owns the IRI
// dictionary itself (out of scope, spec §1) — callers supply a Resolver
// that performs the actual subid/iri lookups.
package schema

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/sirupsen/logrus"

	"github.com/flakegraph/query/cache"
)

// PredicateInfo is everything the matcher/optimizer/shaper need to know
// about a predicate, resolved once and cached by sid.
type PredicateInfo struct {
	Sid                int64
	Datatype           int32
	Multi              bool
	Component          bool
	Ref                bool
	Class              bool
	Indexed            bool
	FullText           bool
	Unique             bool
	RestrictCollection string
}

// Resolver performs the actual, externally-owned IRI/tag lookups this
// cache fronts: predicate IRI -> sid, sid -> PredicateInfo, and the
// direct (non-transitive) rdfs:subClassOf edges for a class sid.
type Resolver interface {
	ResolvePredicateIRI(iri string) (sid int64, ok bool)
	ResolvePredicateInfo(sid int64) (PredicateInfo, bool)
	ResolveTagIRI(iri string) (sid int64, ok bool)
	ResolveTagName(sid int64) (name string, ok bool)
	DirectSubclasses(classSid int64) []int64
}

// Cache is the versioned, LRU-backed schema cache described in spec
// §4.D. Each sub-cache is a cache.Cache rather than a raw lru.Cache, so
// schema gets the same named, logged invalidation every other ambient
// cache in this engine uses. It is safe for concurrent use.
type Cache struct {
	resolver Resolver

	mu         sync.RWMutex
	t          int64
	predByIRI  *cache.Cache[string, int64]
	predByID   *cache.Cache[int64, PredicateInfo]
	tagByIRI   *cache.Cache[string, int64]
	tagByID    *cache.Cache[int64, string]
	subclasses *cache.Cache[int64, *roaring.Bitmap]
}

// New builds a Cache at transaction t, with room for size entries per
// sub-cache. log is nil-safe (cache.New falls back to logrus's standard
// logger).
func New(resolver Resolver, t int64, size int, log *logrus.Entry) *Cache {
	predByIRI, _ := cache.New[string, int64]("schema.pred-by-iri", size, t, log)
	predByID, _ := cache.New[int64, PredicateInfo]("schema.pred-by-id", size, t, log)
	tagByIRI, _ := cache.New[string, int64]("schema.tag-by-iri", size, t, log)
	tagByID, _ := cache.New[int64, string]("schema.tag-by-id", size, t, log)
	subclasses, _ := cache.New[int64, *roaring.Bitmap]("schema.subclasses", size, t, log)
	return &Cache{
		resolver:   resolver,
		t:          t,
		predByIRI:  predByIRI,
		predByID:   predByID,
		tagByIRI:   tagByIRI,
		tagByID:    tagByID,
		subclasses: subclasses,
	}
}

// Invalidate rebuilds the cache lazily at a new transaction id.
// Invariant (spec §5): "the schema cache atomically invalidates on
// db.schema.t decrease" — it purges every sub-cache whenever t differs
// from the one this Cache holds, so a decrease is covered along with
// any other change; the same t is a no-op.
func (c *Cache) Invalidate(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t == c.t {
		return
	}
	c.t = t
	c.predByIRI.Invalidate(t)
	c.predByID.Invalidate(t)
	c.tagByIRI.Invalidate(t)
	c.tagByID.Invalidate(t)
	c.subclasses.Invalidate(t)
}

// PredicateSid resolves a predicate IRI to its sid, nil (ok=false) on
// an unknown IRI — per spec §7, an unresolvable IRI is never an error
// at this layer, only a signal to the caller that the pattern matches
// zero solutions.
func (c *Cache) PredicateSid(iri string) (int64, bool) {
	if sid, ok := c.predByIRI.Get(iri); ok {
		return sid, true
	}
	sid, ok := c.resolver.ResolvePredicateIRI(iri)
	if ok {
		c.predByIRI.Put(iri, sid)
	}
	return sid, ok
}

// Predicate resolves the full PredicateInfo for a sid.
func (c *Cache) Predicate(sid int64) (PredicateInfo, bool) {
	if info, ok := c.predByID.Get(sid); ok {
		return info, true
	}
	info, ok := c.resolver.ResolvePredicateInfo(sid)
	if ok {
		c.predByID.Put(sid, info)
	}
	return info, ok
}

// TagSid resolves a tag-like IRI string to its sid.
func (c *Cache) TagSid(iri string) (int64, bool) {
	if sid, ok := c.tagByIRI.Get(iri); ok {
		return sid, true
	}
	sid, ok := c.resolver.ResolveTagIRI(iri)
	if ok {
		c.tagByIRI.Put(iri, sid)
	}
	return sid, ok
}

// TagName resolves a tag sid back to its display name — the reverse of
// TagSid — for graph-crawl's tag-predicate rendering (spec §4.J: "if
// the predicate is tag, resolve the tag sid to its name via schema").
func (c *Cache) TagName(sid int64) (string, bool) {
	if name, ok := c.tagByID.Get(sid); ok {
		return name, true
	}
	name, ok := c.resolver.ResolveTagName(sid)
	if ok {
		c.tagByID.Put(sid, name)
	}
	return name, ok
}

// Subclasses computes {class} ∪ subclasses*(class), the transitive
// closure over rdfs:subClassOf, memoized per class sid. A
// RoaringBitmap backs the visited set: subclass closures are often
// large, sparse sid sets and the caller immediately needs membership
// tests (class-expansion dedup in the matcher).
func (c *Cache) Subclasses(classSid int64) *roaring.Bitmap {
	if bm, ok := c.subclasses.Get(classSid); ok {
		return bm.Clone()
	}
	bm := roaring.New()
	c.closure(classSid, bm)
	c.subclasses.Put(classSid, bm.Clone())
	return bm
}

func (c *Cache) closure(classSid int64, seen *roaring.Bitmap) {
	u32 := uint32(classSid)
	if seen.Contains(u32) {
		return
	}
	seen.Add(u32)
	for _, child := range c.resolver.DirectSubclasses(classSid) {
		c.closure(child, seen)
	}
}
