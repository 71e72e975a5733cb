// Package match implements the where-pattern matcher (spec §4.E):
// dispatch on pattern kind, each matcher consuming one partial solution
// and emitting an asynchronous stream of its extensions.
package match

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/flakegraph/query/db"
	"github.com/flakegraph/query/dberr"
	"github.com/flakegraph/query/flake"
	"github.com/flakegraph/query/index/rangescan"
	"github.com/flakegraph/query/query"
)

// Pattern dispatches sol through pattern and returns its extensions.
// The returned channel is always closed; a fatal error is sent to errs
// (capacity >= 1) and the channel closes early.
func Pattern(ctx context.Context, database *db.Db, sol query.Solution, pattern query.Pattern, errs chan<- error) <-chan query.Solution {
	switch pattern.Kind {
	case query.KindTuple:
		return matchTuple(ctx, database, sol, pattern.Tuple, errs)
	case query.KindClass:
		return matchClass(ctx, database, sol, pattern.ClassTuple, errs)
	case query.KindID:
		return matchID(ctx, database, sol, pattern, errs)
	case query.KindFilter:
		return matchFilter(sol, pattern, errs)
	case query.KindUnion:
		return matchUnion(ctx, database, sol, pattern.Branches, errs)
	case query.KindOptional:
		return matchOptional(ctx, database, sol, pattern.Clause, errs)
	case query.KindMinus, query.KindNotExists:
		return matchMinus(ctx, database, sol, pattern.Clause, errs)
	case query.KindExists:
		return matchExists(ctx, database, sol, pattern.Clause, errs)
	case query.KindPropertyJoin:
		return matchPropertyJoin(ctx, database, sol, pattern, errs)
	case query.KindGraph:
		return matchGraph(ctx, database, sol, pattern, errs)
	default:
		out := make(chan query.Solution)
		close(out)
		sendErr(errs, dberr.New(dberr.InvalidQuery, "unknown pattern kind %d", pattern.Kind))
		return out
	}
}

func sendErr(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}

func closedEmpty() <-chan query.Solution {
	out := make(chan query.Solution)
	close(out)
	return out
}

func single(s query.Solution) <-chan query.Solution {
	out := make(chan query.Solution, 1)
	out <- s
	close(out)
	return out
}

// resolveComponent substitutes a bound variable from sol into m, if m
// is itself unbound and sol has a binding for it; returns the
// effective match to use for this evaluation.
func resolveComponent(sol query.Solution, m query.Match) query.Match {
	if m.Bound {
		return m
	}
	if bound, ok := sol[m.Variable]; ok {
		return bound
	}
	return m
}

// selectIndex implements the index-choice rule from spec §4.E: spot if
// s bound; post if p and o bound; psot if only p bound; opst if only o
// bound; else spot (full scan).
func selectIndex(sBound, pBound, oBound bool) flake.Ordering {
	switch {
	case sBound:
		return flake.SPOT
	case pBound && oBound:
		return flake.POST
	case pBound:
		return flake.PSOT
	case oBound:
		return flake.OPST
	default:
		return flake.SPOT
	}
}

func matchTuple(ctx context.Context, database *db.Db, sol query.Solution, t query.Tuple, errs chan<- error) <-chan query.Solution {
	s := resolveComponent(sol, t.S)
	p := resolveComponent(sol, t.P)
	o := resolveComponent(sol, t.O)

	pSid, pOK := resolvePredicate(database, p)
	if p.Bound || !pOK && p.IRI {
		if p.IRI && !pOK {
			// Unknown predicate IRI: matches zero solutions, not an
			// error (spec §7).
			return closedEmpty()
		}
	}

	idx := selectIndex(s.Bound, p.Bound, o.Bound)
	bound := rangescan.Bound{}
	if s.Bound && s.Val.IsSid {
		bound.S = rangescan.I64(s.Val.Sid)
	}
	if p.Bound {
		bound.P = rangescan.I64(pSid)
	}
	if o.Bound {
		bound.O = rangescan.Obj(o.Val)
		bound.DT = rangescan.I32(o.Datatype)
	}

	opts := rangescan.Options{}
	if o.Fn != nil {
		oFn := o.Fn
		opts.ObjectFn = func(v flake.Object) bool { return oFn(v) }
	}
	if o.Range != nil {
		r := o.Range
		opts.ObjectFn = combineObjectFn(opts.ObjectFn, func(v flake.Object) bool {
			return (!r.HasStart || flake.CompareCrossType(o.Datatype, v, o.Datatype, r.StartO) >= startCmpFloor(r.StartTest)) &&
				(!r.HasEnd || flake.CompareCrossType(o.Datatype, v, o.Datatype, r.EndO) <= endCmpCeil(r.EndTest))
		})
	}

	flakes, err := rangescan.IndexRange(ctx, database, idx, flake.GTE, bound, flake.LTE, bound, opts)
	out := make(chan query.Solution)
	go func() {
		defer close(out)
		if err != nil {
			sendErr(errs, err)
			return
		}
		for _, f := range flakes {
			ext := sol
			if !s.Bound {
				ext = ext.Extend(s.Variable, query.BoundMatch(flake.SidObject(f.S), 0))
			}
			if !p.Bound {
				ext = ext.Extend(p.Variable, query.BoundMatch(flake.SidObject(f.P), 0))
			}
			if !o.Bound {
				om := query.BoundMatch(f.O, f.DT)
				if o.Fn != nil && !o.Fn(f.O) {
					continue
				}
				ext = ext.Extend(o.Variable, om)
			}
			select {
			case out <- ext:
			case <-ctx.Done():
				sendErr(errs, ctx.Err())
				return
			}
		}
	}()
	return out
}

func combineObjectFn(a, b func(flake.Object) bool) func(flake.Object) bool {
	if a == nil {
		return b
	}
	return func(v flake.Object) bool { return a(v) && b(v) }
}

func startCmpFloor(t flake.Test) int {
	if t == flake.GT {
		return 1
	}
	return 0
}

func endCmpCeil(t flake.Test) int {
	if t == flake.LT {
		return -1
	}
	return 0
}

func resolvePredicate(database *db.Db, p query.Match) (int64, bool) {
	if !p.Bound {
		return 0, false
	}
	if p.IRI {
		if database.Schema == nil {
			return 0, false
		}
		return database.Schema.PredicateSid(p.IRIValue)
	}
	return p.Val.Sid, true
}

// matchClass implements class-pattern expansion (spec §4.E, §8.5):
// {cls} ∪ subclasses*(cls), matched against rdf:type, deduplicated by
// subject id across classes via a roaring bitmap.
func matchClass(ctx context.Context, database *db.Db, sol query.Solution, t query.Tuple, errs chan<- error) <-chan query.Solution {
	out := make(chan query.Solution)
	go func() {
		defer close(out)
		classMatch := resolveComponent(sol, t.O)
		if !classMatch.Bound || !classMatch.Val.IsSid {
			sendErr(errs, dberr.New(dberr.InvalidQuery, "class pattern requires a bound class"))
			return
		}
		classes := database.Schema.Subclasses(classMatch.Val.Sid)

		seen := roaring.New()
		it := classes.Iterator()
		for it.HasNext() {
			cls := int64(it.Next())
			tuple := query.Tuple{S: t.S, P: t.P, O: query.BoundMatch(flake.SidObject(cls), 0)}
			inner := matchTuple(ctx, database, sol, tuple, errs)
			for ext := range inner {
				sMatch := ext[t.S.Variable]
				if !t.S.Bound && sMatch.Val.IsSid {
					if seen.Contains(uint32(sMatch.Val.Sid)) {
						continue
					}
					seen.Add(uint32(sMatch.Val.Sid))
				}
				select {
				case out <- ext:
				case <-ctx.Done():
					sendErr(errs, ctx.Err())
					return
				}
			}
		}
	}()
	return out
}

// matchID constrains sol to subjects existing at database.T: an id
// pattern resolves its match to a sid and checks it has at least one
// spot-range flake.
func matchID(ctx context.Context, database *db.Db, sol query.Solution, pattern query.Pattern, errs chan<- error) <-chan query.Solution {
	m := resolveComponent(sol, pattern.IDMatch)
	if !m.Bound || !m.Val.IsSid {
		return closedEmpty()
	}
	sid := m.Val.Sid
	flakes, err := rangescan.IndexRange(ctx, database, flake.SPOT,
		flake.GTE, rangescan.Bound{S: rangescan.I64(sid)},
		flake.LTE, rangescan.Bound{S: rangescan.I64(sid)},
		rangescan.Options{FlakeLimit: 1})
	if err != nil {
		sendErr(errs, err)
		return closedEmpty()
	}
	if len(flakes) == 0 {
		return closedEmpty()
	}
	ext := sol
	if !pattern.IDMatch.Bound {
		ext = ext.Extend(pattern.IDVar, m)
	}
	return single(ext)
}

// matchUnion runs each branch independently against sol and
// concatenates their streams in declared order (spec §5: "Union
// concatenates branches in declared order after each branch
// completes").
func matchUnion(ctx context.Context, database *db.Db, sol query.Solution, branches [][]query.Pattern, errs chan<- error) <-chan query.Solution {
	out := make(chan query.Solution)
	go func() {
		defer close(out)
		for _, branch := range branches {
			inner := matchClauseSingle(ctx, database, sol, branch, errs)
			for ext := range inner {
				select {
				case out <- ext:
				case <-ctx.Done():
					sendErr(errs, ctx.Err())
					return
				}
			}
		}
	}()
	return out
}

// matchOptional runs clause against sol; if it produces no solutions,
// emits sol unchanged (spec §4.E, §8.6).
func matchOptional(ctx context.Context, database *db.Db, sol query.Solution, clause []query.Pattern, errs chan<- error) <-chan query.Solution {
	out := make(chan query.Solution)
	go func() {
		defer close(out)
		inner := matchClauseSingle(ctx, database, sol, clause, errs)
		any := false
		for ext := range inner {
			any = true
			select {
			case out <- ext:
			case <-ctx.Done():
				sendErr(errs, ctx.Err())
				return
			}
		}
		if !any {
			select {
			case out <- sol:
			case <-ctx.Done():
				sendErr(errs, ctx.Err())
			}
		}
	}()
	return out
}

// matchMinus emits sol iff clause produces zero solutions against it.
func matchMinus(ctx context.Context, database *db.Db, sol query.Solution, clause []query.Pattern, errs chan<- error) <-chan query.Solution {
	out := make(chan query.Solution)
	go func() {
		defer close(out)
		inner := matchClauseSingle(ctx, database, sol, clause, errs)
		any := false
		for range inner {
			any = true
		}
		if !any {
			select {
			case out <- sol:
			case <-ctx.Done():
				sendErr(errs, ctx.Err())
			}
		}
	}()
	return out
}

// matchExists emits sol iff clause produces at least one solution.
func matchExists(ctx context.Context, database *db.Db, sol query.Solution, clause []query.Pattern, errs chan<- error) <-chan query.Solution {
	out := make(chan query.Solution)
	go func() {
		defer close(out)
		inner := matchClauseSingle(ctx, database, sol, clause, errs)
		any := false
		for range inner {
			any = true
		}
		if any {
			select {
			case out <- sol:
			case <-ctx.Done():
				sendErr(errs, ctx.Err())
			}
		}
	}()
	return out
}

// matchFilter evaluates a standalone (non-inlined) filter's compiled
// FilterFn.
// A truthy-but-nil result from an inner throw is treated as false
// (spec §4.E).
func matchFilter(sol query.Solution, pattern query.Pattern, errs chan<- error) <-chan query.Solution {
	if pattern.FilterFn == nil {
		return closedEmpty()
	}
	ok, err := pattern.FilterFn(sol)
	if err != nil {
		ok = false
	}
	if !ok {
		return closedEmpty()
	}
	return single(sol)
}

// matchGraph evaluates pattern.GraphClause against the same db and
// index family as the enclosing clause; the alias does not select a
// different index. A `##...` (virtual-graph) alias is rejected with
// dberr.InvalidQuery when database.Policy is nil; otherwise it too runs
// the clause against the same db, with no separate executor.
func matchGraph(ctx context.Context, database *db.Db, sol query.Solution, pattern query.Pattern, errs chan<- error) <-chan query.Solution {
	if len(pattern.GraphAlias) >= 2 && pattern.GraphAlias[:2] == "##" {
		if database.Policy == nil {
			sendErr(errs, dberr.New(dberr.InvalidQuery, "virtual graph %q has no executor", pattern.GraphAlias))
			return closedEmpty()
		}
	}
	return matchClauseSingle(ctx, database, sol, pattern.GraphClause, errs)
}

// matchClauseSingle sequentially folds sol through clause's patterns,
// used by the higher-order matchers (union/optional/minus/exists/graph)
// which need a single-input, single-output evaluation rather than the
// full fan-out pipeline.
func matchClauseSingle(ctx context.Context, database *db.Db, sol query.Solution, clause []query.Pattern, errs chan<- error) <-chan query.Solution {
	frontier := single(sol)
	for _, p := range clause {
		frontier = fanOut(ctx, database, frontier, p, errs)
	}
	return frontier
}

func fanOut(ctx context.Context, database *db.Db, in <-chan query.Solution, p query.Pattern, errs chan<- error) <-chan query.Solution {
	out := make(chan query.Solution)
	go func() {
		defer close(out)
		for s := range in {
			inner := Pattern(ctx, database, s, p, errs)
			for ext := range inner {
				select {
				case out <- ext:
				case <-ctx.Done():
					sendErr(errs, ctx.Err())
					return
				}
			}
		}
	}()
	return out
}
