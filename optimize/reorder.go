package optimize

import (
	"sort"

	"github.com/flakegraph/query/db"
	"github.com/flakegraph/query/query"
)

// isOptimizable reports whether p participates in reordering (spec
// §4.G: ":tuple", ":class", ":id"); every other kind is a boundary.
func isOptimizable(p query.Pattern) bool {
	switch p.Kind {
	case query.KindTuple, query.KindClass, query.KindID:
		return true
	default:
		return false
	}
}

// Segment is a maximal contiguous run of optimizable patterns.
type Segment struct {
	Start, End int // [Start, End) into the original clause
}

// Reorder splits clause into maximal contiguous segments of
// optimizable patterns, scores each pattern within a segment, and
// stable-sorts it ascending by score (spec §4.G). Boundary patterns
// (anything else) are left in place. usedStats reports whether any
// pattern's score came from real statistics rather than the missing-stat
// fallback, for Explain's :statistics / :heuristics / :none tag.
func Reorder(clause []query.Pattern, stats db.Stats) (optimized []query.Pattern, segments []Segment, selectivities []Selectivity, usedStats bool) {
	optimized = append([]query.Pattern{}, clause...)
	selectivities = make([]Selectivity, len(clause))

	i := 0
	for i < len(clause) {
		if !isOptimizable(clause[i]) {
			selectivities[i] = Selectivity{Fallback: true}
			i++
			continue
		}
		j := i
		for j < len(clause) && isOptimizable(clause[j]) {
			j++
		}
		segments = append(segments, Segment{Start: i, End: j})

		segScores := make([]Selectivity, j-i)
		for k := i; k < j; k++ {
			segScores[k-i] = Score(clause[k], stats)
			if !segScores[k-i].Fallback {
				usedStats = true
			}
		}

		idxs := make([]int, j-i)
		for k := range idxs {
			idxs[k] = k
		}
		sort.SliceStable(idxs, func(a, b int) bool {
			sa, sb := segScores[idxs[a]], segScores[idxs[b]]
			if sa.Score != sb.Score {
				return sa.Score < sb.Score
			}
			return boundBeforeUnbound(clause[i+idxs[a]], clause[i+idxs[b]])
		})

		for k, idx := range idxs {
			optimized[i+k] = clause[i+idx]
			selectivities[i+k] = segScores[idx]
		}
		i = j
	}
	return optimized, segments, selectivities, usedStats
}

// boundBeforeUnbound is the tie-breaker: compare flake-component-wise,
// bound slots sorting before unbound ones.
func boundBeforeUnbound(a, b query.Pattern) bool {
	boundCount := func(p query.Pattern) int {
		var t query.Tuple
		switch p.Kind {
		case query.KindTuple:
			t = p.Tuple
		case query.KindClass:
			t = p.ClassTuple
		default:
			return 0
		}
		n := 0
		if t.S.Bound {
			n++
		}
		if t.P.Bound {
			n++
		}
		if t.O.Bound {
			n++
		}
		return n
	}
	return boundCount(a) > boundCount(b)
}
