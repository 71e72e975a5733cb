// Package query defines the parsed-query form (spec §6): the stable,
// in-process contract that SPARQL/SQL surface parsers (out of scope
// here) produce and this engine consumes.
package query

import "github.com/flakegraph/query/flake"

// Var is an interned variable id, assigned contiguous small integers at
// parse time (Design Note: "boxed-everything solutions" -> O(1) access).
type Var int

// Match is a pattern-tuple slot: either an unbound Var, or a bound
// value with its datatype and whether it denotes an IRI pending sid
// resolution.
type Match struct {
	Variable Var
	Bound    bool
	Val      flake.Object
	Datatype int32
	IRI      bool
	IRIValue string

	// Fn is an inlined filter hook attached to this match by the
	// optimizer (spec §6: "inlined filter lives under ::fn on a match").
	Fn func(val flake.Object) bool
	// Range is a derived object range attached by filter inlining for
	// numeric comparisons (spec §6: "a derived range under ::range").
	// The matcher applies it as a per-flake object filter; it does not
	// narrow the index scan's start/end bounds.
	Range *ObjectRange
}

// ObjectRange is an object-slot range produced by inlining a numeric
// filter onto the pattern that binds its variable. HasStart/
// HasEnd mark which side a single-sided inequality actually constrains;
// the other side is left unbounded rather than defaulted to a sentinel
// test value.
type ObjectRange struct {
	HasStart  bool
	StartTest flake.Test
	StartO    flake.Object
	HasEnd    bool
	EndTest   flake.Test
	EndO      flake.Object
}

// UnboundMatch returns a Match for an unbound variable.
func UnboundMatch(v Var) Match { return Match{Variable: v} }

// BoundMatch returns a Match for a bound value.
func BoundMatch(val flake.Object, dt int32) Match {
	return Match{Bound: true, Val: val, Datatype: dt}
}

// Tuple is a [s p o] pattern, each slot a Match.
type Tuple struct {
	S, P, O Match
}

// PatternKind tags the variant of a Pattern (Design Note: "dynamic
// dispatch on pattern type" -> an int tag that match.Pattern switches on).
type PatternKind int

const (
	KindTuple PatternKind = iota
	KindClass
	KindID
	KindFilter
	KindBind
	KindUnion
	KindOptional
	KindMinus
	KindExists
	KindNotExists
	KindGraph
	KindPropertyJoin
)

// Pattern is one where-clause element. Exactly one of the
// kind-specific fields is populated, selected by Kind.
type Pattern struct {
	Kind PatternKind

	Tuple Tuple // KindTuple

	ClassTuple Tuple // KindClass: S/P fixed to rdf:type, O names the class

	IDVar   Var   // KindID
	IDMatch Match // KindID

	FilterExpr string                      // KindFilter: raw S-expression
	FilterFn   func(Solution) (bool, error) // KindFilter: compiled

	// FilterVars lists the variables FilterExpr reads, in source order
	// (spec §4.G: inlining needs this to tell single-variable filters
	// from multi-variable ones).
	FilterVars []Var
	// FilterValueFn is set only when FilterExpr references exactly one
	// variable: the same predicate as FilterFn, but over a single bound
	// value instead of a whole Solution, so it can run inline as a
	// match's ::fn hook instead of as a separate pipeline stage.
	FilterValueFn func(val flake.Object) (bool, error)
	// FilterRange is set when FilterExpr is additionally a single
	// numeric comparison against a constant; inlining attaches it to the
	// binding match's Range, which the matcher checks per flake.
	FilterRange *ObjectRange

	Branches [][]Pattern // KindUnion: each branch is a clause

	Clause []Pattern // KindOptional/KindMinus/KindExists/KindNotExists: nested clause

	GraphAlias  string      // KindGraph
	GraphClause []Pattern   // KindGraph

	PropertyJoinSubject Var
	Triples             []Tuple // KindPropertyJoin
}

// Solution is a partial variable binding produced during evaluation
// (spec §3). It is copy-on-write: Extend never mutates its receiver.
type Solution map[Var]Match

// Extend returns a new Solution with v bound to m and every other
// binding copied from s.
func (s Solution) Extend(v Var, m Match) Solution {
	out := make(Solution, len(s)+1)
	for k, val := range s {
		out[k] = val
	}
	out[v] = m
	return out
}

// Selector is one projected output column (spec §4.I).
type SelectorKind int

const (
	SelectVar SelectorKind = iota
	SelectAggregate
	SelectSubgraph
	SelectExpression
)

type Selector struct {
	Kind SelectorKind

	Var Var // SelectVar / SelectAggregate (the variable aggregated over)

	AggregateFn  string // "count", "sum", ...
	AggregateAs  Var
	Distinct     bool

	SubgraphSpec *SubgraphSpec // SelectSubgraph

	Expression func(Solution) (flake.Object, error) // SelectExpression
	Label      string
}

// SubgraphSpec mirrors spec §4.J's select-spec keys.
type SubgraphSpec struct {
	Wildcard        bool
	WithID          bool
	Compact         bool
	ComponentFollow bool
	ByPred          map[int64]*SubgraphSpec
	NSLookup        map[string]*SubgraphSpec
	ReversePred     map[int64]*SubgraphSpec
	Limit           int
	Offset          int
	OrderBy         int64 // nonzero: sort a multi-valued predicate's values by object value
	Recur           int
}

// OrderTerm is one [var dir] entry in order-by.
type OrderTerm struct {
	Var  Var
	Desc bool
}

// TRange describes the {from, to, at} time window for history queries
// (spec §6).
type TRange struct {
	From, To, At *int64
}

// History is the {history, commit-details, t} request shape (spec §6).
type History struct {
	S, P, O       *Match
	CommitDetails bool
	T             TRange
}

// Options carries the ambient tunables threaded through every
// execution (spec §1.1: the teacher's sqle.Config pattern).
type Options struct {
	MaxFuel            int64
	DefaultParallelism int
	CacheSize          int
	Cache              bool
}

// DefaultOptions returns the engine's default tunables.
func DefaultOptions() Options {
	return Options{MaxFuel: 10_000_000, DefaultParallelism: 2, CacheSize: 4096, Cache: true}
}

// Parsed is the full parsed-query form (spec §6).
type Parsed struct {
	Vars    Solution // initial bindings, e.g. from VALUES
	Where   []Pattern
	Select  []Selector
	// SelectOne, when true, means Select describes a single-row
	// projection (spec: ":select-one").
	SelectOne bool
	GroupBy   []Var
	OrderBy   []OrderTerm
	Offset    int
	Limit     int // 0 = unlimited
	Opts      Options
}
