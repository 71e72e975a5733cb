// Package engine is the top-level entrypoint wiring parse (out of
// scope, consumed only as a producer of query.Parsed) through optimize,
// the solution pipeline, the filter/aggregate evaluator, the result
// shaper, and the graph-crawl subgraph formatter (spec §2's component
// table end to end). It mirrors the teacher's engine.go: a small struct
// of tunables populated by functional options, with one exported entry
// point per request shape.
package engine

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/sirupsen/logrus"

	"github.com/flakegraph/query/db"
	"github.com/flakegraph/query/dberr"
	"github.com/flakegraph/query/flake"
	"github.com/flakegraph/query/graphcrawl"
	"github.com/flakegraph/query/history"
	"github.com/flakegraph/query/match/pipeline"
	"github.com/flakegraph/query/optimize"
	"github.com/flakegraph/query/query"
	"github.com/flakegraph/query/queryctx"
	"github.com/flakegraph/query/shape"
)

// Engine holds the ambient tunables threaded through every execution
// (spec §1.1: the teacher's sqle.Config pattern in engine.go).
type Engine struct {
	opts query.Options
	log  *logrus.Logger
	iri  *shape.IRICache
}

// Option configures an Engine at construction, the way the teacher
// builds its Config via functional options into NewDefault.
type Option func(*Engine)

// WithOptions overrides the engine's tunables (MaxFuel, DefaultParallelism,
// CacheSize, Cache).
func WithOptions(o query.Options) Option {
	return func(e *Engine) { e.opts = o }
}

// WithLogger overrides the logrus logger every component logs through;
// the zero value uses logrus's standard logger.
func WithLogger(l *logrus.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithIRICache installs the IRI-compaction cache the shaper uses to
// render sid/IRI selectors (spec §4.I).
func WithIRICache(c *shape.IRICache) Option {
	return func(e *Engine) { e.iri = c }
}

// New builds an Engine with query.DefaultOptions() tunables unless
// overridden by opts.
func New(opts ...Option) *Engine {
	e := &Engine{opts: query.DefaultOptions(), log: logrus.StandardLogger()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Result is one Execute call's output: the shaped rows plus the
// optimizer's explain record and the query's correlation id, so a
// caller can log or surface it alongside the rows.
type Result struct {
	Rows    []shape.Row
	Explain optimize.Explain
	QueryID string
}

// Execute runs parsed's where-clause to completion and shapes the
// result (spec §4.F through §4.I in sequence): optimize, pipeline,
// shape. Select-subgraph selectors resolve through graphcrawl via a
// SubgraphResolver closure built over database and the query's fuel
// counter, so a single query-wide cost ceiling governs every nested
// expansion (spec §4.J).
func (e *Engine) Execute(ctx context.Context, database *db.Db, parsed query.Parsed) (*Result, error) {
	if err := query.Validate(parsed); err != nil {
		return nil, err
	}
	qctx := queryctx.New(effectiveMaxFuel(parsed.Opts, e.opts), e.log)

	optimized, explain := optimize.Optimize(parsed.Where, database.Stats)
	if explain.Source != optimize.StatsReal {
		qctx.Log("optimizer").WithField("source", explain.Source.String()).
			Debug("optimizer ran without real statistics")
	}

	parallelism := parsed.Opts.DefaultParallelism
	if parallelism <= 0 {
		parallelism = e.opts.DefaultParallelism
	}

	solutions, errs := pipeline.Run(ctx, database, parsed.Vars, optimized, parallelism)

	var collected []query.Solution
	for sol := range solutions {
		collected = append(collected, sol)
	}
	// pipeline.Run's errs is never closed (late stage goroutines may
	// still report after ctx cancellation), so drain whatever already
	// arrived into the query's sink rather than ranging over it.
drainErrs:
	for {
		select {
		case err := <-errs:
			qctx.Sink.Send(err)
		default:
			break drainErrs
		}
	}
	if err, ok := qctx.Sink.First(); ok {
		return nil, err
	}

	fuel := e.subgraphFuel(qctx)
	rows, err := shape.Shape(ctx, collected, parsed, shape.Options{
		Subgraph: e.subgraphResolver(database, fuel, qctx),
		IRI:      e.iri,
	})
	if err != nil {
		return nil, err
	}

	return &Result{Rows: rows, Explain: explain, QueryID: qctx.ID.String()}, nil
}

// HistoryEntry pairs one history.Entry with its rendered subgraph
// snapshots, when a subgraph spec was requested alongside the history
// query (spec §4.K: entries are "grouped by subject via graph-crawl").
type HistoryEntry struct {
	history.Entry
	AssertedNodes  []graphcrawl.Node
	RetractedNodes []graphcrawl.Node
}

// History runs a history/commit-reconstruction request end to end
// (spec §4.K), optionally resolving subgraph snapshots for each entry
// under the same fuel ceiling as Execute.
func (e *Engine) History(ctx context.Context, database *db.Db, h query.History, spec *query.SubgraphSpec) ([]HistoryEntry, error) {
	if err := query.ValidateHistory(h); err != nil {
		return nil, err
	}
	qctx := queryctx.New(e.opts.MaxFuel, e.log)
	entries, err := history.Query(ctx, database, h)
	if err != nil {
		qctx.Log("history").WithError(err).Warn("history query failed")
		return nil, err
	}
	out := make([]HistoryEntry, len(entries))
	for i, entry := range entries {
		out[i] = HistoryEntry{Entry: entry}
	}
	if spec == nil {
		return out, nil
	}
	fuel := e.subgraphFuel(qctx)
	for i := range out {
		asserted, retracted, err := history.Subgraph(ctx, database, out[i].Entry, spec, fuel)
		if err != nil {
			return nil, err
		}
		out[i].AssertedNodes = asserted
		out[i].RetractedNodes = retracted
	}
	return out, nil
}

// subgraphResolver adapts graphcrawl.FlakesToResult (which expands a
// bare subject sid) to shape.SubgraphResolver (which receives the
// bound flake.Object a selector variable resolved to): non-sid objects
// have no subgraph to expand, matching spec §4.I's "subgraph selector
// on a non-ref binding yields nil".
func (e *Engine) subgraphResolver(database *db.Db, fuel *graphcrawl.Fuel, qctx *queryctx.Context) shape.SubgraphResolver {
	return func(ctx context.Context, root flake.Object, spec *query.SubgraphSpec) (interface{}, error) {
		if !root.IsSid {
			return nil, nil
		}
		node, err := graphcrawl.FlakesToResult(ctx, database, root.Sid, spec, fuel, 0, roaring.New())
		if err != nil {
			if de, ok := dberr.As(err); ok && de.Code() == dberr.ExceededCost {
				qctx.Log("graphcrawl").WithField("root", root.Sid).Warn("subgraph expansion exceeded cost ceiling")
			}
			return nil, err
		}
		return node, nil
	}
}

// subgraphFuel builds the fuel ceiling every graph-crawl expansion for
// this query shares, attaching the IRI-compaction resolver so select
// specs that set compact? (spec §4.J) render bare refs the same way
// shape.displayValue compacts top-level selectors, and charging every
// unit it spends against the query's own qctx.Spend so subgraph cost
// shows up in qctx.Spent() alongside the rest of the query's fuel use.
func (e *Engine) subgraphFuel(qctx *queryctx.Context) *graphcrawl.Fuel {
	fuel := graphcrawl.NewFuel(qctx.MaxFuel()).WithQuerySpend(qctx.Spend)
	if e.iri != nil {
		fuel.WithCompactor(e.iri.Compact)
	}
	return fuel
}

func effectiveMaxFuel(per, def query.Options) int64 {
	if per.MaxFuel > 0 {
		return per.MaxFuel
	}
	return def.MaxFuel
}
