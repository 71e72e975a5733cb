// Package optimize implements the query optimizer (spec §4.G): pattern
// reordering by statistical selectivity, inlining of single-variable
// filters onto the pattern that binds their variable, and grouping of
// co-subject triples into property joins.
package optimize

import (
	"math"

	"github.com/flakegraph/query/db"
	"github.com/flakegraph/query/query"
)

// Selectivity records the statistics inputs behind a pattern's score,
// surfaced through Explain.
type Selectivity struct {
	Count     int64
	NdvValues int64
	NdvSubjects int64
	Score     float64
	Fallback  bool
	Clamped   bool
}

const fullScanScore = 1e12
const missingStatFallback = 1000

// Score implements the table in spec §4.G.
func Score(p query.Pattern, stats db.Stats) Selectivity {
	switch p.Kind {
	case query.KindID:
		return Selectivity{Score: 0}
	case query.KindClass:
		cls := p.ClassTuple.O
		if !cls.Bound || !cls.Val.IsSid {
			return Selectivity{Score: missingStatFallback, Fallback: true}
		}
		if stats == nil {
			return Selectivity{Score: missingStatFallback, Fallback: true}
		}
		count, ok := stats.ClassCount(cls.Val.Sid)
		if !ok {
			return Selectivity{Score: missingStatFallback, Fallback: true}
		}
		return Selectivity{Count: count, Score: float64(count)}
	case query.KindTuple:
		return scoreTuple(p.Tuple, stats)
	default:
		return Selectivity{Score: missingStatFallback, Fallback: true}
	}
}

func scoreTuple(t query.Tuple, stats db.Stats) Selectivity {
	sBound, pBound, oBound := t.S.Bound, t.P.Bound, t.O.Bound

	if sBound && pBound && oBound {
		return Selectivity{Score: 0}
	}
	if !pBound {
		return Selectivity{Score: fullScanScore}
	}
	if stats == nil || !t.P.Bound {
		return Selectivity{Score: missingStatFallback, Fallback: true}
	}

	pSid := t.P.Val.Sid
	count, ok := stats.Count(pSid)
	if !ok {
		return Selectivity{Score: missingStatFallback, Fallback: true}
	}

	switch {
	case !sBound && oBound:
		ndv, ok := stats.NdvValues(pSid)
		if !ok {
			return Selectivity{Count: count, Score: missingStatFallback, Fallback: true}
		}
		return clamp(count, ndv)
	case sBound && !oBound:
		ndv, ok := stats.NdvSubjects(pSid)
		if !ok {
			return Selectivity{Count: count, Score: missingStatFallback, Fallback: true}
		}
		return clamp(count, ndv)
	default: // !sBound && !oBound
		return Selectivity{Count: count, Score: float64(count)}
	}
}

func clamp(count, ndv int64) Selectivity {
	denom := ndv
	if denom < 1 {
		denom = 1
	}
	score := math.Ceil(float64(count) / float64(denom))
	clamped := score < 1
	if clamped {
		score = 1
	}
	return Selectivity{Count: count, NdvValues: ndv, NdvSubjects: ndv, Score: score, Clamped: clamped}
}
