// Package shape implements the result shaper (spec §4.I): the fixed
// group -> order -> offset -> limit -> select -> collect pipeline over
// fully-bound solutions.
package shape

import (
	"context"
	"sort"
	"strconv"

	"github.com/flakegraph/query/dberr"
	"github.com/flakegraph/query/filter"
	"github.com/flakegraph/query/flake"
	"github.com/flakegraph/query/query"
)

// Row is one output record: selector label -> display value. It is the
// engine's final, JSON-ready shape, the boundary handed back to a
// caller's marshaling layer.
type Row map[string]interface{}

// SubgraphResolver expands a SelectSubgraph selector for a bound
// variable (spec §4.J). It is supplied by the caller rather than
// imported directly, since graph-crawl formatting depends on schema and
// db state this package doesn't otherwise need.
type SubgraphResolver func(ctx context.Context, root flake.Object, spec *query.SubgraphSpec) (interface{}, error)

// IRICache memoizes sid -> display-IRI resolution for one query
// execution (spec §4.I: "per-query IRI-compaction-and-memoization
// cache").
type IRICache struct {
	resolve func(sid int64) (string, error)
	cache   map[int64]string
}

// NewIRICache wraps resolve with a per-query memoization cache.
func NewIRICache(resolve func(sid int64) (string, error)) *IRICache {
	return &IRICache{resolve: resolve, cache: make(map[int64]string)}
}

func (c *IRICache) Compact(sid int64) (string, error) {
	if v, ok := c.cache[sid]; ok {
		return v, nil
	}
	v, err := c.resolve(sid)
	if err != nil {
		return "", err
	}
	c.cache[sid] = v
	return v, nil
}

// group partitions solutions into buckets keyed by the bound values of
// groupBy, preserving first-seen bucket order for a stable final sort.
func group(solutions []query.Solution, groupBy []query.Var) [][]query.Solution {
	if len(groupBy) == 0 {
		// No GROUP BY: every solution is its own row.
		out := make([][]query.Solution, len(solutions))
		for i, s := range solutions {
			out[i] = []query.Solution{s}
		}
		return out
	}
	type key struct {
		dt  int32
		val flake.Object
	}
	keyOf := func(sol query.Solution) string {
		// A slice key can't be a map key directly; build a string digest
		// from each grouping variable's datatype-tagged value instead.
		var b []byte
		for _, v := range groupBy {
			m := sol[v]
			k := key{dt: m.Datatype, val: m.Val}
			b = append(b, []byte(flakeKeyString(k.dt, k.val))...)
			b = append(b, 0)
		}
		return string(b)
	}
	order := make([]string, 0)
	buckets := make(map[string][]query.Solution)
	for _, sol := range solutions {
		k := keyOf(sol)
		if _, ok := buckets[k]; !ok {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], sol)
	}
	out := make([][]query.Solution, 0, len(order))
	for _, k := range order {
		out = append(out, buckets[k])
	}
	return out
}

func flakeKeyString(dt int32, o flake.Object) string {
	prefix := strconv.Itoa(int(dt)) + ":"
	switch {
	case o.IsSid:
		return prefix + "s" + strconv.FormatInt(o.Sid, 10)
	case o.IsStr:
		return prefix + "t" + o.Str
	case o.IsNum:
		return prefix + "n" + strconv.FormatFloat(o.Num, 'g', -1, 64)
	case o.IsBool:
		if o.Bool {
			return prefix + "b1"
		}
		return prefix + "b0"
	default:
		return prefix + "?"
	}
}

// orderGroups sorts groups by the first solution in each group's
// binding for each order term, comparing datatype first, then value, a
// stable sort so ties preserve group-forming order.
func orderGroups(groups [][]query.Solution, terms []query.OrderTerm) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i][0], groups[j][0]
		for _, t := range terms {
			ma, mb := a[t.Var], b[t.Var]
			c := compareOrdered(ma, mb)
			if c != 0 {
				if t.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return false
	})
}

// compareOrdered compares by datatype first, then value, matching the
// teacher's cross-type ordering convention used throughout flake.
func compareOrdered(a, b query.Match) int {
	if !a.Bound && !b.Bound {
		return 0
	}
	if !a.Bound {
		return -1
	}
	if !b.Bound {
		return 1
	}
	if a.Datatype != b.Datatype {
		if a.Datatype < b.Datatype {
			return -1
		}
		return 1
	}
	return a.Val.Compare(b.Val)
}

// paginate applies offset then limit (0 = unlimited) to groups.
func paginate(groups [][]query.Solution, offset, limit int) [][]query.Solution {
	if offset > 0 {
		if offset >= len(groups) {
			return nil
		}
		groups = groups[offset:]
	}
	if limit > 0 && limit < len(groups) {
		groups = groups[:limit]
	}
	return groups
}

// Options carries the dependencies select needs beyond the solutions
// themselves.
type Options struct {
	Subgraph SubgraphResolver
	IRI      *IRICache
}

// Shape runs group -> order -> offset -> limit -> select -> collect
// over solutions and returns the final rows (spec §4.I).
func Shape(ctx context.Context, solutions []query.Solution, p query.Parsed, opts Options) ([]Row, error) {
	groups := group(solutions, p.GroupBy)
	orderGroups(groups, p.OrderBy)
	groups = paginate(groups, p.Offset, p.Limit)

	rows := make([]Row, 0, len(groups))
	for _, g := range groups {
		row, err := selectRow(ctx, g, p.Select, opts)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if p.SelectOne && len(rows) > 1 {
		rows = rows[:1]
	}
	return rows, nil
}

func selectRow(ctx context.Context, bucket []query.Solution, selectors []query.Selector, opts Options) (Row, error) {
	row := make(Row, len(selectors))
	head := bucket[0]
	for _, sel := range selectors {
		label := sel.Label
		switch sel.Kind {
		case query.SelectVar:
			m := head[sel.Var]
			v, err := displayValue(m, opts)
			if err != nil {
				return nil, err
			}
			row[label] = v
		case query.SelectAggregate:
			vals := make([]flake.Object, 0, len(bucket))
			for _, sol := range bucket {
				m := sol[sel.Var]
				if m.Bound {
					vals = append(vals, m.Val)
				}
			}
			if sel.Distinct {
				vals = filter.Distinct(vals)
			}
			agg, ok := filter.Lookup(sel.AggregateFn)
			if !ok {
				return nil, dberr.New(dberr.InvalidFn, "aggregate function %q is not in the allow-list", sel.AggregateFn)
			}
			result, err := agg.Apply(vals)
			if err != nil {
				return nil, err
			}
			row[label] = result
		case query.SelectSubgraph:
			m := head[sel.Var]
			if !m.Bound {
				row[label] = nil
				continue
			}
			if opts.Subgraph == nil {
				return nil, dberr.New(dberr.InvalidQuery, "subgraph selector present but no resolver configured")
			}
			v, err := opts.Subgraph(ctx, m.Val, sel.SubgraphSpec)
			if err != nil {
				return nil, err
			}
			row[label] = v
		case query.SelectExpression:
			v, err := sel.Expression(head)
			if err != nil {
				return nil, err
			}
			row[label] = v
		}
	}
	return row, nil
}

func displayValue(m query.Match, opts Options) (interface{}, error) {
	if !m.Bound {
		return nil, nil
	}
	if m.Val.IsSid && opts.IRI != nil {
		return opts.IRI.Compact(m.Val.Sid)
	}
	switch {
	case m.Val.IsStr:
		return m.Val.Str, nil
	case m.Val.IsNum:
		return m.Val.Num, nil
	case m.Val.IsBool:
		return m.Val.Bool, nil
	case m.Val.IsSid:
		return m.Val.Sid, nil
	default:
		return nil, nil
	}
}
