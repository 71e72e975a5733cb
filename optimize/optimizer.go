package optimize

import (
	"github.com/flakegraph/query/db"
	"github.com/flakegraph/query/query"
)

// Optimize runs the full optimizer pipeline over a where-clause (spec
// §4.G): reorder by selectivity within each boundary-delimited segment,
// inline single-variable filters onto their binding pattern, then group
// adjacent co-subject triples into property joins. Inlining runs before
// grouping, and grouping leaves out any triple that carries an inlined
// Fn/Range, since a property join never consults those hooks.
func Optimize(clause []query.Pattern, stats db.Stats) ([]query.Pattern, Explain) {
	reordered, segments, selectivities, usedStats := Reorder(clause, stats)

	source := StatsNone
	if usedStats {
		source = StatsReal
	} else if len(segments) > 0 {
		source = StatsHeuristic
	}

	inlined := Inline(reordered)
	inlineApplied := len(inlined) != len(reordered)

	grouped := GroupPropertyJoins(inlined)
	joinHits := 0
	for _, p := range grouped {
		if p.Kind == query.KindPropertyJoin {
			joinHits++
		}
	}

	return grouped, Explain{
		Original:        clause,
		Optimized:       grouped,
		Segments:        segments,
		Selectivities:   selectivities,
		Source:          source,
		ReorderApplied:  len(segments) > 0,
		InlineApplied:   inlineApplied,
		PropertyJoinHit: joinHits,
	}
}
