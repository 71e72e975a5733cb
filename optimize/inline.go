package optimize

import (
	"github.com/flakegraph/query/flake"
	"github.com/flakegraph/query/query"
)

// Inline implements spec §4.G's filter-inlining pass: a :filter pattern
// that reads exactly one variable is removed from the clause and its
// compiled predicate (and, for a numeric comparison, its derived range)
// is attached to the latest pattern preceding it that binds that
// variable. A filter reading more than one variable cannot attach to a
// single match slot, but once every one of its variables is already
// bound by an earlier pattern it is relocated to run immediately after
// the last of those binders, instead of sitting at its original
// position past patterns that have nothing to do with it. A filter
// with no eligible single binder, or whose variables aren't all bound
// yet, is left in place as its own pipeline stage.
func Inline(clause []query.Pattern) []query.Pattern {
	out := make([]query.Pattern, 0, len(clause))
	boundAt := make(map[query.Var]int) // variable -> index into out

	for _, p := range clause {
		if p.Kind == query.KindFilter && len(p.FilterVars) == 1 && p.FilterValueFn != nil {
			v := p.FilterVars[0]
			if idx, ok := boundAt[v]; ok && attachInline(&out[idx], v, p) {
				continue
			}
		}
		if p.Kind == query.KindFilter && len(p.FilterVars) > 1 {
			if idx, ok := maxBoundAt(p.FilterVars, boundAt); ok {
				out = relocate(out, idx+1, p)
				continue
			}
		}
		out = append(out, p)
		for _, v := range bindsOf(p) {
			boundAt[v] = len(out) - 1
		}
	}
	return out
}

// maxBoundAt reports the latest out-index among vars, or false if any
// of them has not been bound yet.
func maxBoundAt(vars []query.Var, boundAt map[query.Var]int) (int, bool) {
	max := -1
	for _, v := range vars {
		idx, ok := boundAt[v]
		if !ok {
			return 0, false
		}
		if idx > max {
			max = idx
		}
	}
	return max, true
}

// relocate inserts p at position i in out, shifting later elements
// right by one.
func relocate(out []query.Pattern, i int, p query.Pattern) []query.Pattern {
	out = append(out, query.Pattern{})
	copy(out[i+1:], out[i:])
	out[i] = p
	return out
}

// attachInline attaches filter's compiled predicate onto target's match
// slot for v, returning false if v isn't a variable slot on target (in
// which case the filter must stay a separate stage).
func attachInline(target *query.Pattern, v query.Var, filter query.Pattern) bool {
	var tuple *query.Tuple
	switch target.Kind {
	case query.KindTuple:
		tuple = &target.Tuple
	case query.KindClass:
		tuple = &target.ClassTuple
	default:
		return false
	}

	m := matchFor(tuple, v)
	if m == nil {
		return false
	}
	fn := filter.FilterValueFn
	if prev := m.Fn; prev != nil {
		// Already carries an inlined filter from an earlier pass; chain
		// both so neither is lost.
		m.Fn = func(val flake.Object) bool { return prev(val) && evalInline(fn, val) }
	} else {
		m.Fn = func(val flake.Object) bool { return evalInline(fn, val) }
	}
	if filter.FilterRange != nil {
		m.Range = filter.FilterRange
	}
	return true
}

func evalInline(fn func(flake.Object) (bool, error), val flake.Object) bool {
	ok, err := fn(val)
	return err == nil && ok
}

func matchFor(t *query.Tuple, v query.Var) *query.Match {
	switch {
	case !t.S.Bound && t.S.Variable == v:
		return &t.S
	case !t.P.Bound && t.P.Variable == v:
		return &t.P
	case !t.O.Bound && t.O.Variable == v:
		return &t.O
	}
	return nil
}

func bindsOf(p query.Pattern) []query.Var {
	switch p.Kind {
	case query.KindTuple:
		return tupleVars(p.Tuple)
	case query.KindClass:
		return tupleVars(p.ClassTuple)
	case query.KindID:
		return []query.Var{p.IDVar}
	case query.KindPropertyJoin:
		var vs []query.Var
		vs = append(vs, p.PropertyJoinSubject)
		for _, t := range p.Triples {
			vs = append(vs, tupleVars(t)...)
		}
		return vs
	default:
		return nil
	}
}

func tupleVars(t query.Tuple) []query.Var {
	var vs []query.Var
	if !t.S.Bound {
		vs = append(vs, t.S.Variable)
	}
	if !t.P.Bound {
		vs = append(vs, t.P.Variable)
	}
	if !t.O.Bound {
		vs = append(vs, t.O.Variable)
	}
	return vs
}
