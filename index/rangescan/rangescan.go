// Package rangescan implements the range engine (spec §4.C): translating
// a triple pattern plus bounds into a bounded, policy-filtered,
// subject-paged stream of flakes over one covering index.
package rangescan

import (
	"context"

	"github.com/flakegraph/query/db"
	"github.com/flakegraph/query/flake"
	"github.com/flakegraph/query/index/tree"
)

// Bound is a partially-specified flake pattern: nil components are
// unbound and get padded to the ordering's sentinel min/max when a
// start or end flake is built from them.
type Bound struct {
	S  *int64
	P  *int64
	O  *flake.Object
	DT *int32
}

// I64, I32 and Obj build the pointer-typed bound components callers
// assemble a Bound from.
func I64(v int64) *int64              { return &v }
func I32(v int32) *int32              { return &v }
func Obj(o flake.Object) *flake.Object { return &o }

// Options controls the non-range parts of a scan: component predicates,
// subject paging, and the hard flake-limit cutoff (spec §4.C steps 4, 6).
type Options struct {
	SubjectFn   func(int64) bool
	PredicateFn func(int64) bool
	ObjectFn    func(flake.Object) bool

	// Offset/Limit page by distinct subject, not by flake.
	Offset int
	Limit  int // 0 = unlimited

	FlakeLimit int // 0 = unlimited

	// Parallelism bounds concurrent node resolution (spec §4.B).
	Parallelism int
	CacheSize   int
}

// IndexRange runs the full range-engine pipeline described in spec §4.C
// and returns the sorted result vector.
func IndexRange(
	ctx context.Context,
	database *db.Db,
	o flake.Ordering,
	startTest flake.Test, start Bound,
	endTest flake.Test, end Bound,
	opts Options,
) ([]flake.Flake, error) {
	cmp := o.Comparator()
	startFlake := o.BuildBound(flake.MinFlake(o), start.S, start.P, start.O, start.DT)
	endFlake := o.BuildBound(flake.MaxFlake(o), end.S, end.P, end.O, end.DT)

	resolver := tree.TRangeResolver{
		Novelty:  database.NoveltyFor(o),
		Ordering: o,
		FromT:    database.T,
		ToT:      database.T,
	}

	transduce := componentTransducer(start, end, opts)

	errs := make(chan error, 1)
	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 2
	}
	chunks := tree.Chan(ctx, database.Fetcher, resolver, database.Root(o), cmp, startFlake, endFlake, parallelism, transduce, errs)

	var flakes []flake.Flake
	for chunk := range chunks {
		flakes = append(flakes, chunk...)
	}
	select {
	case err := <-errs:
		return nil, err
	default:
	}

	flakes, err := applyPolicy(ctx, database, flakes)
	if err != nil {
		return nil, err
	}

	flakes = pageBySubject(flakes, opts.Offset, opts.Limit)

	if opts.FlakeLimit > 0 && len(flakes) > opts.FlakeLimit {
		flakes = flakes[:opts.FlakeLimit]
	}
	return flakes, nil
}

// TimeRange is the history-query analog of IndexRange: it accepts an
// explicit [fromT, toT] transaction window and a history resolver that
// merges every flake version with no shadow elimination (spec §4.C,
// "the analogous time-range operation"). fromT == toT == db.T recovers
// point-in-time semantics.
func TimeRange(
	ctx context.Context,
	database *db.Db,
	o flake.Ordering,
	startTest flake.Test, start Bound,
	endTest flake.Test, end Bound,
	fromT, toT int64,
	opts Options,
) ([]flake.Flake, error) {
	cmp := o.Comparator()
	startFlake := o.BuildBound(flake.MinFlake(o), start.S, start.P, start.O, start.DT)
	endFlake := o.BuildBound(flake.MaxFlake(o), end.S, end.P, end.O, end.DT)

	resolver := tree.HistoryRangeResolver{Novelty: database.NoveltyFor(o), Ordering: o}
	transduce := componentTransducer(start, end, opts)

	errs := make(chan error, 1)
	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 2
	}
	chunks := tree.Chan(ctx, database.Fetcher, resolver, database.Root(o), cmp, startFlake, endFlake, parallelism, transduce, errs)

	var flakes []flake.Flake
	for chunk := range chunks {
		flakes = append(flakes, chunk...)
	}
	select {
	case err := <-errs:
		return nil, err
	default:
	}

	flakes = filterTWindow(flakes, fromT, toT)

	flakes, err := applyPolicy(ctx, database, flakes)
	if err != nil {
		return nil, err
	}
	if opts.FlakeLimit > 0 && len(flakes) > opts.FlakeLimit {
		flakes = flakes[:opts.FlakeLimit]
	}
	return flakes, nil
}

// filterTWindow restricts flakes to those whose transaction id falls in
// [fromT, toT], the scoping HistoryRangeResolver itself intentionally
// skips (it merges every version so shadow elimination never runs).
func filterTWindow(flakes []flake.Flake, fromT, toT int64) []flake.Flake {
	out := flakes[:0:0]
	for _, f := range flakes {
		if f.T >= fromT && f.T <= toT {
			out = append(out, f)
		}
	}
	return out
}

// componentTransducer drops the leaf's raw :flakes wrapper (implicit,
// since Resolve already returns a flat slice), then applies any
// subject/predicate/object component filters (spec §4.C step 4).
func componentTransducer(start, end Bound, opts Options) tree.Transducer {
	if opts.SubjectFn == nil && opts.PredicateFn == nil && opts.ObjectFn == nil {
		return nil
	}
	return func(fs []flake.Flake) []flake.Flake {
		out := fs[:0:0]
		for _, f := range fs {
			if opts.SubjectFn != nil && !opts.SubjectFn(f.S) {
				continue
			}
			if opts.PredicateFn != nil && !opts.PredicateFn(f.P) {
				continue
			}
			if opts.ObjectFn != nil && !opts.ObjectFn(f.O) {
				continue
			}
			out = append(out, f)
		}
		return out
	}
}

// applyPolicy passes flakes through unchanged when the request is root
// (spec §4.C step 5); otherwise it authorizes each flake individually,
// always permitting schema flakes.
func applyPolicy(ctx context.Context, database *db.Db, flakes []flake.Flake) ([]flake.Flake, error) {
	if database.Policy == nil || database.Policy.Root() {
		return flakes, nil
	}
	out := make([]flake.Flake, 0, len(flakes))
	for _, f := range flakes {
		if database.Policy.IsSchemaFlake(f) {
			out = append(out, f)
			continue
		}
		ok, err := database.Policy.AllowFlake(f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return out, nil
}

// pageBySubject implements spec §4.C step 6: partition by subject,
// drop the first `offset` subject-groups, keep at most `limit`, and
// flatten back into a sorted vector (the input is already sorted by
// the index ordering, so subjects are grouped in consecutive runs only
// for the spot/psot/tspo orderings; callers scanning post/opst pass
// offset=0 limit=0 since subject is not a leading slot there).
func pageBySubject(flakes []flake.Flake, offset, limit int) []flake.Flake {
	if offset == 0 && limit == 0 {
		return flakes
	}
	groups := partitionBySubject(flakes)
	if offset >= len(groups) {
		return nil
	}
	groups = groups[offset:]
	if limit > 0 && limit < len(groups) {
		groups = groups[:limit]
	}
	out := make([]flake.Flake, 0, len(flakes))
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func partitionBySubject(flakes []flake.Flake) [][]flake.Flake {
	var groups [][]flake.Flake
	i := 0
	for i < len(flakes) {
		j := i + 1
		for j < len(flakes) && flakes[j].S == flakes[i].S {
			j++
		}
		groups = append(groups, flakes[i:j])
		i = j
	}
	return groups
}

// SingleSided expands a single (test, match) pattern-component
// constraint into the full start/end Bound pair (spec §4.C step 1),
// for callers that only ever bind one component per slot.
func SingleSided(o flake.Ordering, test flake.Test, s, p *int64, object *flake.Object, dt *int32) (flake.Test, Bound, flake.Test, Bound) {
	var zero flake.Flake
	st, _, et, _ := flake.ExpandInterval(o, test, zero)
	startBound := Bound{S: s, P: p, O: object, DT: dt}
	endBound := Bound{S: s, P: p, O: object, DT: dt}
	switch test {
	case flake.LT:
		startBound = Bound{}
	case flake.GT:
		endBound = Bound{}
	case flake.LTE:
		startBound = Bound{}
	case flake.GTE:
		endBound = Bound{}
	}
	return st, startBound, et, endBound
}
