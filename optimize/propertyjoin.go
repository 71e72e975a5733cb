package optimize

import "github.com/flakegraph/query/query"

// GroupPropertyJoins implements spec §4.G's property-join grouping: two
// or more consecutive :tuple patterns that share the same unbound
// subject variable, and whose predicate is bound, are rewritten into a
// single :property-join pattern so the matcher fetches that subject's
// spot-range once instead of once per triple (spec §8.5, scenario E5).
func GroupPropertyJoins(clause []query.Pattern) []query.Pattern {
	out := make([]query.Pattern, 0, len(clause))
	i := 0
	for i < len(clause) {
		p := clause[i]
		subjectVar, ok := joinableSubject(p)
		if !ok {
			out = append(out, p)
			i++
			continue
		}
		j := i + 1
		group := []query.Tuple{p.Tuple}
		for j < len(clause) {
			q := clause[j]
			sv, ok := joinableSubject(q)
			if !ok || sv != subjectVar {
				break
			}
			group = append(group, q.Tuple)
			j++
		}
		if len(group) < 2 {
			out = append(out, p)
			i++
			continue
		}
		out = append(out, query.Pattern{
			Kind:                query.KindPropertyJoin,
			PropertyJoinSubject: subjectVar,
			Triples:             group,
		})
		i = j
	}
	return out
}

// joinableSubject reports whether p is a :tuple pattern with an unbound
// subject variable and a bound predicate, and carries no inlined filter
// on any of its components — spec §4.G condition (c): a triple with a
// component filter function attached must keep evaluating on its own,
// since matchPropertyJoin's distribute never consults Fn/Range and
// would otherwise let unfiltered rows leak through a merged triple.
func joinableSubject(p query.Pattern) (query.Var, bool) {
	if p.Kind != query.KindTuple {
		return 0, false
	}
	t := p.Tuple
	if t.S.Bound || !t.P.Bound {
		return 0, false
	}
	if hasInlineFilter(t.S) || hasInlineFilter(t.P) || hasInlineFilter(t.O) {
		return 0, false
	}
	return t.S.Variable, true
}

func hasInlineFilter(m query.Match) bool {
	return m.Fn != nil || m.Range != nil
}
