package match

import (
	"context"

	"github.com/flakegraph/query/db"
	"github.com/flakegraph/query/flake"
	"github.com/flakegraph/query/index/rangescan"
	"github.com/flakegraph/query/query"
)

// matchPropertyJoin implements spec §4.E's property-join matcher: a set
// of triples sharing a variable subject, resolved with a single spot
// scan per candidate subject instead of one scan per triple (spec §8.5
// example E5).
func matchPropertyJoin(ctx context.Context, database *db.Db, sol query.Solution, pattern query.Pattern, errs chan<- error) <-chan query.Solution {
	out := make(chan query.Solution)
	go func() {
		defer close(out)

		subjectVar := pattern.PropertyJoinSubject
		var candidates []int64
		if bound, ok := sol[subjectVar]; ok && bound.Bound && bound.Val.IsSid {
			candidates = []int64{bound.Val.Sid}
		} else {
			var err error
			candidates, err = discoverCandidates(ctx, database, pattern.Triples)
			if err != nil {
				sendErr(errs, err)
				return
			}
		}

		for _, s := range candidates {
			flakes, err := rangescan.IndexRange(ctx, database, flake.SPOT,
				flake.GTE, rangescan.Bound{S: rangescan.I64(s)},
				flake.LTE, rangescan.Bound{S: rangescan.I64(s)},
				rangescan.Options{})
			if err != nil {
				sendErr(errs, err)
				return
			}

			byPred := make(map[int64][]flake.Flake)
			for _, f := range flakes {
				byPred[f.P] = append(byPred[f.P], f)
			}

			ext, ok := distribute(sol, subjectVar, s, pattern.Triples, byPred, database)
			if !ok {
				continue
			}
			for _, e := range ext {
				select {
				case out <- e:
				case <-ctx.Done():
					sendErr(errs, ctx.Err())
					return
				}
			}
		}
	}()
	return out
}

func discoverCandidates(ctx context.Context, database *db.Db, triples []query.Tuple) ([]int64, error) {
	if len(triples) == 0 {
		return nil, nil
	}
	p := resolveComponent(query.Solution{}, triples[0].P)
	pSid, ok := resolvePredicate(database, p)
	if !ok {
		return nil, nil
	}
	flakes, err := rangescan.IndexRange(ctx, database, flake.PSOT,
		flake.GTE, rangescan.Bound{P: rangescan.I64(pSid)},
		flake.LTE, rangescan.Bound{P: rangescan.I64(pSid)},
		rangescan.Options{})
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(flakes))
	var out []int64
	for _, f := range flakes {
		if !seen[f.S] {
			seen[f.S] = true
			out = append(out, f.S)
		}
	}
	return out, nil
}

// distribute fans a single subject's flakes (grouped by predicate)
// across every triple in the join group, producing the cross product
// of multi-valued predicates extended with the join subject itself.
// ok is false if any triple's predicate has no matching flake for this
// subject (the join fails for s).
func distribute(sol query.Solution, subjectVar query.Var, s int64, triples []query.Tuple, byPred map[int64][]flake.Flake, database *db.Db) ([]query.Solution, bool) {
	base := sol.Extend(subjectVar, query.BoundMatch(flake.SidObject(s), 0))
	results := []query.Solution{base}

	for _, t := range triples {
		p := resolveComponent(sol, t.P)
		pSid, ok := resolvePredicate(database, p)
		if !ok {
			return nil, false
		}
		vals, ok := byPred[pSid]
		if !ok || len(vals) == 0 {
			return nil, false
		}

		o := resolveComponent(sol, t.O)
		var next []query.Solution
		for _, base := range results {
			for _, f := range vals {
				if o.Bound {
					if flake.CompareCrossType(o.Datatype, o.Val, f.DT, f.O) != 0 {
						continue
					}
					next = append(next, base)
					continue
				}
				next = append(next, base.Extend(o.Variable, query.BoundMatch(f.O, f.DT)))
			}
		}
		if len(next) == 0 {
			return nil, false
		}
		results = next
	}
	return results, true
}
