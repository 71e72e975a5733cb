package optimize

import "github.com/flakegraph/query/query"

// StatsSource tags where a plan's selectivity numbers came from, for
// Explain's report to the caller.
type StatsSource int

const (
	StatsNone StatsSource = iota
	StatsHeuristic
	StatsReal
)

func (s StatsSource) String() string {
	switch s {
	case StatsReal:
		return "statistics"
	case StatsHeuristic:
		return "heuristics"
	default:
		return "none"
	}
}

// Explain is the record returned alongside an optimized clause (spec
// §4.G: "explain recorded selectivity inputs and which optimizations
// fired").
type Explain struct {
	Original        []query.Pattern
	Optimized       []query.Pattern
	Segments        []Segment
	Selectivities   []Selectivity
	Source          StatsSource
	ReorderApplied  bool
	InlineApplied   bool
	PropertyJoinHit int // number of groups formed
}
