package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	predByIRI  map[string]int64
	predByID   map[int64]PredicateInfo
	tagByIRI   map[string]int64
	tagByID    map[int64]string
	subclasses map[int64][]int64
	calls      int
}

func (r *fakeResolver) ResolvePredicateIRI(iri string) (int64, bool) {
	r.calls++
	sid, ok := r.predByIRI[iri]
	return sid, ok
}

func (r *fakeResolver) ResolvePredicateInfo(sid int64) (PredicateInfo, bool) {
	r.calls++
	info, ok := r.predByID[sid]
	return info, ok
}

func (r *fakeResolver) ResolveTagIRI(iri string) (int64, bool) {
	sid, ok := r.tagByIRI[iri]
	return sid, ok
}

func (r *fakeResolver) ResolveTagName(sid int64) (string, bool) {
	name, ok := r.tagByID[sid]
	return name, ok
}

func (r *fakeResolver) DirectSubclasses(classSid int64) []int64 {
	return r.subclasses[classSid]
}

func TestPredicateSidCachesResolverCalls(t *testing.T) {
	resolver := &fakeResolver{predByIRI: map[string]int64{"ex:knows": 10}}
	c := New(resolver, 1, 64, nil)

	sid, ok := c.PredicateSid("ex:knows")
	require.True(t, ok)
	require.Equal(t, int64(10), sid)
	require.Equal(t, 1, resolver.calls)

	sid, ok = c.PredicateSid("ex:knows")
	require.True(t, ok)
	require.Equal(t, int64(10), sid)
	require.Equal(t, 1, resolver.calls, "second call should hit cache, not the resolver")
}

func TestPredicateSidUnknownIRIIsNotAnError(t *testing.T) {
	resolver := &fakeResolver{}
	c := New(resolver, 1, 64, nil)
	_, ok := c.PredicateSid("ex:unknown")
	require.False(t, ok)
}

func TestTagNameResolvesAndCaches(t *testing.T) {
	resolver := &fakeResolver{tagByID: map[int64]string{7: "active"}}
	c := New(resolver, 1, 64, nil)

	name, ok := c.TagName(7)
	require.True(t, ok)
	require.Equal(t, "active", name)

	_, ok = c.TagName(8)
	require.False(t, ok)
}

func TestSubclassesComputesTransitiveClosure(t *testing.T) {
	const animal, mammal, dog int64 = 1, 2, 3
	resolver := &fakeResolver{subclasses: map[int64][]int64{
		animal: {mammal},
		mammal: {dog},
	}}
	c := New(resolver, 1, 64, nil)

	bm := c.Subclasses(animal)
	require.True(t, bm.Contains(uint32(animal)))
	require.True(t, bm.Contains(uint32(mammal)))
	require.True(t, bm.Contains(uint32(dog)))
	require.Equal(t, uint64(3), bm.GetCardinality())
}

func TestInvalidateClearsCacheOnVersionChange(t *testing.T) {
	resolver := &fakeResolver{predByIRI: map[string]int64{"ex:knows": 10}}
	c := New(resolver, 1, 64, nil)

	_, _ = c.PredicateSid("ex:knows")
	require.Equal(t, 1, resolver.calls)

	c.Invalidate(1) // same t: no-op
	_, _ = c.PredicateSid("ex:knows")
	require.Equal(t, 1, resolver.calls, "invalidating at the same t must not purge the cache")

	c.Invalidate(2)
	_, _ = c.PredicateSid("ex:knows")
	require.Equal(t, 2, resolver.calls, "invalidating at a new t must purge the cache")
}

func TestPredicateCachesByID(t *testing.T) {
	resolver := &fakeResolver{predByID: map[int64]PredicateInfo{10: {Sid: 10, Component: true}}}
	c := New(resolver, 1, 64, nil)

	info, ok := c.Predicate(10)
	require.True(t, ok)
	require.True(t, info.Component)
	require.Equal(t, 1, resolver.calls)

	_, _ = c.Predicate(10)
	require.Equal(t, 1, resolver.calls)
}
