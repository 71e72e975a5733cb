// Package graphcrawl implements the subgraph formatter (spec §4.J):
// recursive nested subject-map construction with cycle detection via a
// copy-on-recurse "seen" set, fuel-bounded cost tracking, component
// embedding, and reverse-reference resolution.
package graphcrawl

import (
	"context"
	"sort"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/flakegraph/query/db"
	"github.com/flakegraph/query/dberr"
	"github.com/flakegraph/query/flake"
	"github.com/flakegraph/query/index/rangescan"
	"github.com/flakegraph/query/query"
	"github.com/flakegraph/query/schema"
)

// Fuel tracks the accumulated traversal cost of one subgraph expansion,
// raising dberr.ExceededCost once spent crosses max (spec §4.J: every
// query runs under a cost ceiling so an unexpectedly broad or deeply
// recursive select can't run unbounded).
type Fuel struct {
	spent      int64
	max        int64
	compact    func(sid int64) (string, error)
	querySpend func(n int64) error
}

// NewFuel returns a Fuel ceiling at max units (0 = unlimited).
func NewFuel(max int64) *Fuel { return &Fuel{max: max} }

// WithCompactor attaches a sid -> display-IRI resolver, letting a bare
// (non-followed, non-tag) ref value render as a compacted string
// instead of a raw sid when a select-spec sets compact? (spec §4.J).
// Mirrors shape.IRICache.Compact, the same compaction shape.displayValue
// applies to top-level selectors.
func (f *Fuel) WithCompactor(c func(sid int64) (string, error)) *Fuel {
	f.compact = c
	return f
}

// WithQuerySpend attaches the owning query's queryctx.Context.Spend, so
// subgraph-expansion cost also counts against the query-wide fuel
// ceiling and not just this Fuel's own local one.
func (f *Fuel) WithQuerySpend(spend func(n int64) error) *Fuel {
	f.querySpend = spend
	return f
}

func (f *Fuel) spend(n int64) error {
	f.spent += n
	if f.max > 0 && f.spent > f.max {
		return dberr.New(dberr.ExceededCost, "subgraph expansion exceeded cost ceiling of %d", f.max)
	}
	if f.querySpend != nil {
		return f.querySpend(n)
	}
	return nil
}

// Node is one subject's rendered subgraph, keyed by the display label
// the caller chose for each predicate (a raw predicate sid here;
// compaction to a curie/IRI string is shape's job, not this package's).
type Node map[string]interface{}

// FlakesToResult recursively builds root's nested subject map per spec,
// following spec.ByPred/Wildcard predicate selection (spec.NSLookup is
// not consulted; a predicate reached only by name is skipped), limiting
// recursion depth via spec.Recur, and guarding cycles with seen — a
// roaring.Bitmap that is cloned (never mutated) before a branch
// recurses, so sibling branches don't see each other's visited sids.
func FlakesToResult(ctx context.Context, database *db.Db, root int64, spec *query.SubgraphSpec, fuel *Fuel, depth int, seen *roaring.Bitmap) (Node, error) {
	if err := fuel.spend(1); err != nil {
		return nil, err
	}
	if spec == nil {
		spec = &query.SubgraphSpec{Wildcard: true, WithID: true}
	}

	u32 := uint32(root)
	if seen.Contains(u32) {
		// Cycle: stop expanding, return a bare reference.
		return Node{"_id": root, "_ref": true}, nil
	}
	branch := seen.Clone()
	branch.Add(u32)

	flakes, err := rangescan.IndexRange(ctx, database, flake.SPOT,
		flake.GTE, rangescan.Bound{S: rangescan.I64(root)},
		flake.LTE, rangescan.Bound{S: rangescan.I64(root)},
		rangescan.Options{})
	if err != nil {
		return nil, err
	}

	out := Node{}
	if spec.WithID {
		out["_id"] = root
	}

	byPred := make(map[int64][]flake.Flake)
	var predOrder []int64
	for _, f := range flakes {
		if _, ok := byPred[f.P]; !ok {
			predOrder = append(predOrder, f.P)
		}
		byPred[f.P] = append(byPred[f.P], f)
	}

	for _, predSid := range predOrder {
		childSpec, ok := spec.ByPred[predSid]
		if !ok && !spec.Wildcard {
			continue
		}
		var info schema.PredicateInfo
		if database.Schema != nil {
			info, _ = database.Schema.Predicate(predSid)
		}
		vals := byPred[predSid]
		rendered, err := renderValues(ctx, database, vals, childSpec, spec, fuel, depth, branch, info.Component && spec.ComponentFollow)
		if err != nil {
			return nil, err
		}
		out[predLabel(predSid)] = rendered
	}

	for revPredSid, childSpec := range spec.ReversePred {
		refs, err := rangescan.IndexRange(ctx, database, flake.OPST,
			flake.GTE, rangescan.Bound{O: rangescan.Obj(flake.SidObject(root)), P: rangescan.I64(revPredSid)},
			flake.LTE, rangescan.Bound{O: rangescan.Obj(flake.SidObject(root)), P: rangescan.I64(revPredSid)},
			rangescan.Options{})
		if err != nil {
			return nil, err
		}
		var subjects []int64
		for _, f := range refs {
			subjects = append(subjects, f.S)
		}
		nested, err := renderSubjects(ctx, database, subjects, childSpec, fuel, depth+1, branch)
		if err != nil {
			return nil, err
		}
		out[reverseLabel(revPredSid)] = nested
	}

	return out, nil
}

// renderValues turns one predicate's flake group into its output value:
// a scalar/array of scalars for literal objects, or recursively
// expanded nested nodes for refs when the caller asked this predicate
// to follow (childSpec != nil or componentFollow) and parent.Recur is
// not yet exhausted. A predicate selected only through Wildcard renders
// its refs as bare sids (or compacted IRIs). A ref that resolves to a tag
// name always renders as that name instead of recursing or following
// (spec §4.J: "if the predicate is tag, resolve the tag sid to its name
// via schema").
func renderValues(ctx context.Context, database *db.Db, vals []flake.Flake, childSpec *query.SubgraphSpec, parent *query.SubgraphSpec, fuel *Fuel, depth int, seen *roaring.Bitmap, componentFollow bool) (interface{}, error) {
	sorted := vals
	if childSpec != nil && childSpec.OrderBy != 0 {
		sorted = append([]flake.Flake(nil), vals...)
		sort.Slice(sorted, func(i, j int) bool {
			return flake.CompareCrossType(sorted[i].DT, sorted[i].O, sorted[j].DT, sorted[j].O) < 0
		})
	}
	if childSpec != nil && (childSpec.Offset > 0 || childSpec.Limit > 0) {
		sorted = page(sorted, childSpec.Offset, childSpec.Limit)
	}

	follow := childSpec != nil || componentFollow
	var out []interface{}
	for _, f := range sorted {
		if !f.O.IsSid {
			out = append(out, scalarOf(f.O))
			continue
		}
		if database.Schema != nil {
			if name, ok := database.Schema.TagName(f.O.Sid); ok {
				out = append(out, name)
				continue
			}
		}
		if !follow || (parent.Recur > 0 && depth+1 >= parent.Recur) {
			if parent.Compact && fuel.compact != nil {
				compacted, err := fuel.compact(f.O.Sid)
				if err != nil {
					return nil, err
				}
				out = append(out, compacted)
				continue
			}
			out = append(out, f.O.Sid)
			continue
		}
		node, err := FlakesToResult(ctx, database, f.O.Sid, childSpec, fuel, depth+1, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

func renderSubjects(ctx context.Context, database *db.Db, subjects []int64, spec *query.SubgraphSpec, fuel *Fuel, depth int, seen *roaring.Bitmap) (interface{}, error) {
	var out []interface{}
	for _, s := range subjects {
		node, err := FlakesToResult(ctx, database, s, spec, fuel, depth, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

func page(flakes []flake.Flake, offset, limit int) []flake.Flake {
	if offset > 0 {
		if offset >= len(flakes) {
			return nil
		}
		flakes = flakes[offset:]
	}
	if limit > 0 && limit < len(flakes) {
		flakes = flakes[:limit]
	}
	return flakes
}

func scalarOf(o flake.Object) interface{} {
	switch {
	case o.IsStr:
		return o.Str
	case o.IsNum:
		return o.Num
	case o.IsBool:
		return o.Bool
	default:
		return nil
	}
}

// predLabel/reverseLabel use the raw predicate sid as the output key;
// a caller wanting compacted IRI labels runs the result through
// shape.IRICache, which is the only piece of this engine that knows
// how to render a sid as a display string.
func predLabel(sid int64) string    { return "p" + strconv.FormatInt(sid, 10) }
func reverseLabel(sid int64) string { return "_p" + strconv.FormatInt(sid, 10) }
