package filter

import (
	"github.com/flakegraph/query/flake"
	"github.com/flakegraph/query/query"
)

// VarsOf returns the distinct variables e reads, in first-seen order.
func VarsOf(e Expr) []query.Var {
	seen := make(map[query.Var]bool)
	var out []query.Var
	var walk func(Expr)
	walk = func(n Expr) {
		switch n.Kind {
		case NodeVar:
			if !seen[n.Var] {
				seen[n.Var] = true
				out = append(out, n.Var)
			}
		case NodeCall:
			for _, a := range n.Args {
				walk(a)
			}
		}
	}
	walk(e)
	return out
}

// Bind compiles a parsed filter expression into the set of hooks a
// query.Pattern of KindFilter carries: a whole-Solution predicate, the
// variables it reads, and — when it reads exactly one variable — a
// single-value predicate plus, for a direct numeric comparison, a
// derived object range, both consumed by the optimizer's inlining pass
// (spec §4.G).
func Bind(e Expr) (query.Pattern, error) {
	fn, err := Compile(e)
	if err != nil {
		return query.Pattern{}, err
	}
	vars := VarsOf(e)

	p := query.Pattern{
		Kind:       query.KindFilter,
		FilterVars: vars,
		FilterFn: func(sol query.Solution) (bool, error) {
			v, err := fn(sol)
			if err != nil {
				return false, err
			}
			return truthy(v), nil
		},
	}

	if len(vars) == 1 {
		v := vars[0]
		p.FilterValueFn = func(val flake.Object) (bool, error) {
			sol := query.Solution{v: query.BoundMatch(val, 0)}
			out, err := fn(sol)
			if err != nil {
				return false, err
			}
			return truthy(out), nil
		}
		if rng, ok := rangeOf(e, v); ok {
			p.FilterRange = rng
		}
	}

	return p, nil
}

// rangeOf detects a direct comparison of v against a single numeric
// literal and derives an object range from it: one-sided for <, <=, >,
// >=, two-sided (both ends at the literal) for =.
func rangeOf(e Expr, v query.Var) (*query.ObjectRange, bool) {
	if e.Kind != NodeCall || len(e.Args) != 2 {
		return nil, false
	}
	var test flake.Test
	switch e.Op {
	case "<":
		test = flake.LT
	case "<=":
		test = flake.LTE
	case ">":
		test = flake.GT
	case ">=":
		test = flake.GTE
	case "=":
		test = flake.EQ
	default:
		return nil, false
	}

	left, right := e.Args[0], e.Args[1]
	varOnLeft := left.Kind == NodeVar && left.Var == v && right.Kind == NodeLiteral
	varOnRight := right.Kind == NodeVar && right.Var == v && left.Kind == NodeLiteral
	if !varOnLeft && !varOnRight {
		return nil, false
	}

	lit := right
	if varOnRight {
		lit = left
		test = flipTest(test)
	}
	if lit.LitKind != LitNumber {
		return nil, false
	}
	o := flake.NumObject(lit.LitNum)

	switch test {
	case flake.GT, flake.GTE:
		return &query.ObjectRange{HasStart: true, StartTest: test, StartO: o}, true
	case flake.LT, flake.LTE:
		return &query.ObjectRange{HasEnd: true, EndTest: test, EndO: o}, true
	case flake.EQ:
		return &query.ObjectRange{HasStart: true, StartTest: flake.GTE, StartO: o, HasEnd: true, EndTest: flake.LTE, EndO: o}, true
	}
	return nil, false
}

func flipTest(t flake.Test) flake.Test {
	switch t {
	case flake.GT:
		return flake.LT
	case flake.GTE:
		return flake.LTE
	case flake.LT:
		return flake.GT
	case flake.LTE:
		return flake.GTE
	default:
		return t
	}
}
