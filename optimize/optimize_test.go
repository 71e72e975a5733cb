package optimize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flakegraph/query/flake"
	"github.com/flakegraph/query/query"
)

type fakeStats struct {
	count, ndvValues, ndvSubjects, classCount map[int64]int64
}

func (s fakeStats) Count(p int64) (int64, bool)        { v, ok := s.count[p]; return v, ok }
func (s fakeStats) NdvValues(p int64) (int64, bool)    { v, ok := s.ndvValues[p]; return v, ok }
func (s fakeStats) NdvSubjects(p int64) (int64, bool)  { v, ok := s.ndvSubjects[p]; return v, ok }
func (s fakeStats) ClassCount(c int64) (int64, bool)   { v, ok := s.classCount[c]; return v, ok }

const (
	varS query.Var = iota
	varO1
	varO2
)

func boundPred(sid int64) query.Match { return query.BoundMatch(flake.SidObject(sid), 0) }

func TestScoreAllBoundIsZero(t *testing.T) {
	p := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: boundPred(1), P: boundPred(2), O: boundPred(3),
	}}
	sel := Score(p, fakeStats{})
	require.Equal(t, 0.0, sel.Score)
}

func TestScoreUnboundPredicateIsFullScan(t *testing.T) {
	p := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: query.UnboundMatch(varO1), O: query.UnboundMatch(varO2),
	}}
	sel := Score(p, fakeStats{})
	require.Equal(t, fullScanScore, sel.Score)
}

func TestScoreBoundObjectUsesNdvValues(t *testing.T) {
	stats := fakeStats{
		count:     map[int64]int64{10: 1000},
		ndvValues: map[int64]int64{10: 100},
	}
	p := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(10), O: boundPred(5),
	}}
	sel := Score(p, stats)
	require.Equal(t, 10.0, sel.Score)
}

func TestScoreMissingStatFalls(t *testing.T) {
	p := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(99), O: boundPred(5),
	}}
	sel := Score(p, fakeStats{})
	require.True(t, sel.Fallback)
	require.Equal(t, float64(missingStatFallback), sel.Score)
}

func TestReorderSortsSegmentBySelectivity(t *testing.T) {
	stats := fakeStats{
		count: map[int64]int64{1: 5000, 2: 10},
	}
	expensive := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(1), O: query.UnboundMatch(varO1),
	}}
	cheap := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(2), O: query.UnboundMatch(varO2),
	}}
	clause := []query.Pattern{expensive, cheap}

	optimized, segments, sels, usedStats := Reorder(clause, stats)
	require.Len(t, segments, 1)
	require.Equal(t, Segment{Start: 0, End: 2}, segments[0])
	require.True(t, usedStats)
	require.Equal(t, int64(2), optimized[0].Tuple.P.Val.Sid)
	require.Equal(t, int64(1), optimized[1].Tuple.P.Val.Sid)
	require.Less(t, sels[0].Score, sels[1].Score)
}

func TestReorderRespectsBoundaries(t *testing.T) {
	opt1 := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(1), O: query.UnboundMatch(varO1),
	}}
	boundary := query.Pattern{Kind: query.KindOptional}
	opt2 := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(2), O: query.UnboundMatch(varO2),
	}}
	clause := []query.Pattern{opt1, boundary, opt2}

	_, segments, _, _ := Reorder(clause, fakeStats{})
	require.Len(t, segments, 2)
	require.Equal(t, Segment{Start: 0, End: 1}, segments[0])
	require.Equal(t, Segment{Start: 2, End: 3}, segments[1])
}

func TestInlineAttachesSingleVarFilterToBinder(t *testing.T) {
	tuple := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(1), O: query.UnboundMatch(varO1),
	}}
	filterCalled := false
	filterPattern := query.Pattern{
		Kind:       query.KindFilter,
		FilterVars: []query.Var{varO1},
		FilterValueFn: func(v flake.Object) (bool, error) {
			filterCalled = true
			return v.Num > 5, nil
		},
	}
	out := Inline([]query.Pattern{tuple, filterPattern})
	require.Len(t, out, 1, "the filter pattern should be folded into the tuple")
	require.NotNil(t, out[0].Tuple.O.Fn)
	ok := out[0].Tuple.O.Fn(flake.NumObject(10))
	require.True(t, ok)
	require.True(t, filterCalled)
}

func TestGroupPropertyJoinsCombinesCoSubjectTriples(t *testing.T) {
	t1 := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(1), O: query.UnboundMatch(varO1),
	}}
	t2 := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(2), O: query.UnboundMatch(varO2),
	}}
	out := GroupPropertyJoins([]query.Pattern{t1, t2})
	require.Len(t, out, 1)
	require.Equal(t, query.KindPropertyJoin, out[0].Kind)
	require.Equal(t, varS, out[0].PropertyJoinSubject)
	require.Len(t, out[0].Triples, 2)
}

func TestGroupPropertyJoinsLeavesSingletonAlone(t *testing.T) {
	t1 := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(1), O: query.UnboundMatch(varO1),
	}}
	other := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: boundPred(7), P: boundPred(2), O: query.UnboundMatch(varO2),
	}}
	out := GroupPropertyJoins([]query.Pattern{t1, other})
	require.Len(t, out, 2)
	require.Equal(t, query.KindTuple, out[0].Kind)
}

func TestInlineRelocatesMultiVarFilterOnceAllVarsBound(t *testing.T) {
	const varC query.Var = 100
	t1 := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(1), O: query.UnboundMatch(varO1),
	}}
	t2 := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(2), O: query.UnboundMatch(varO2),
	}}
	unrelated := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(3), O: query.UnboundMatch(varC),
	}}
	multiVar := query.Pattern{
		Kind:       query.KindFilter,
		FilterVars: []query.Var{varO1, varO2},
		FilterFn:   func(query.Solution) (bool, error) { return true, nil },
	}
	out := Inline([]query.Pattern{t1, t2, unrelated, multiVar})
	require.Len(t, out, 4, "the filter relocates rather than disappearing")
	require.Equal(t, query.KindFilter, out[2].Kind, "filter should move right after the pattern that binds its last variable")
	require.Equal(t, query.KindTuple, out[3].Kind)
	require.Equal(t, int64(3), out[3].Tuple.P.Val.Sid, "the unrelated tuple now runs after the filter")
}

func TestInlineLeavesMultiVarFilterAsStageWhenNotAllBound(t *testing.T) {
	tuple := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(1), O: query.UnboundMatch(varO1),
	}}
	multiVar := query.Pattern{
		Kind:       query.KindFilter,
		FilterVars: []query.Var{varO1, varO2},
	}
	out := Inline([]query.Pattern{tuple, multiVar})
	require.Len(t, out, 2)
	require.Equal(t, query.KindFilter, out[1].Kind)
}

func TestGroupPropertyJoinsExcludesTupleWithInlinedFilter(t *testing.T) {
	t1 := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(1), O: query.UnboundMatch(varO1),
	}}
	// Simulate Inline having attached "(> ?a 5)" to t1's object slot.
	t1.Tuple.O.Fn = func(flake.Object) bool { return true }
	t2 := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(2), O: query.UnboundMatch(varO2),
	}}
	out := GroupPropertyJoins([]query.Pattern{t1, t2})
	require.Len(t, out, 2, "a triple carrying an inlined filter must not be folded into a property-join")
	require.Equal(t, query.KindTuple, out[0].Kind)
	require.Equal(t, query.KindTuple, out[1].Kind)
}

func TestOptimizeComposesAllPasses(t *testing.T) {
	stats := fakeStats{count: map[int64]int64{1: 5000, 2: 10}}
	expensive := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(1), O: query.UnboundMatch(varO1),
	}}
	cheap := query.Pattern{Kind: query.KindTuple, Tuple: query.Tuple{
		S: query.UnboundMatch(varS), P: boundPred(2), O: query.UnboundMatch(varO2),
	}}
	out, explain := Optimize([]query.Pattern{expensive, cheap}, stats)
	require.True(t, explain.ReorderApplied)
	require.Equal(t, 1, explain.PropertyJoinHit)
	require.Len(t, out, 1)
	require.Equal(t, query.KindPropertyJoin, out[0].Kind)
}
