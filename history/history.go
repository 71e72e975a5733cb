// Package history implements the history/commit reconstructor (spec
// §4.K): time-range scans over a subject/predicate/object pattern,
// grouped by transaction id descending and split into asserted vs.
// retracted flakes, with optional commit-detail assembly.
package history

import (
	"context"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/flakegraph/query/db"
	"github.com/flakegraph/query/flake"
	"github.com/flakegraph/query/graphcrawl"
	"github.com/flakegraph/query/index/rangescan"
	"github.com/flakegraph/query/query"
)

func emptySeen() *roaring.Bitmap { return roaring.New() }

// Entry is one transaction's worth of change to the matched pattern.
type Entry struct {
	T        int64
	Asserted []flake.Flake
	Retracted []flake.Flake
	Commit   *CommitDetail
}

// CommitDetail is the optional wrapper/metadata/data split assembled
// from a tspo scan when a history request asks for it (spec §4.K).
type CommitDetail struct {
	CommitSubject int64
	Metadata      []flake.Flake
	DataAssert    []flake.Flake
	DataRetract   []flake.Flake
}

// chooseOrdering picks the covering index that keeps the bound
// components as a leading prefix, mirroring match.selectIndex's rule
// (spec §4.B): s bound -> spot, p bound (s unbound) -> psot, only o
// bound -> post, nothing bound -> spot.
func chooseOrdering(h query.History) flake.Ordering {
	switch {
	case h.S != nil && h.S.Bound:
		return flake.SPOT
	case h.P != nil && h.P.Bound:
		return flake.PSOT
	case h.O != nil && h.O.Bound:
		return flake.POST
	default:
		return flake.SPOT
	}
}

// Query runs the time-range scan described by h and groups the result
// by t descending, splitting each group's flakes into assert/retract.
func Query(ctx context.Context, database *db.Db, h query.History) ([]Entry, error) {
	o := chooseOrdering(h)

	var sB, pB *int64
	var oB *flake.Object
	var dtB *int32
	if h.S != nil && h.S.Bound && h.S.Val.IsSid {
		sid := h.S.Val.Sid
		sB = &sid
	}
	if h.P != nil && h.P.Bound && h.P.Val.IsSid {
		sid := h.P.Val.Sid
		pB = &sid
	}
	if h.O != nil && h.O.Bound {
		oB = &h.O.Val
		dtB = &h.O.Datatype
	}

	fromT, toT := resolveWindow(h.T, database.T)

	start := rangescan.Bound{S: sB, P: pB, O: oB, DT: dtB}
	end := rangescan.Bound{S: sB, P: pB, O: oB, DT: dtB}

	flakes, err := rangescan.TimeRange(ctx, database, o,
		flake.GTE, start, flake.LTE, end, fromT, toT, rangescan.Options{})
	if err != nil {
		return nil, err
	}

	entries := groupByT(flakes)
	if h.CommitDetails {
		for i := range entries {
			detail, err := assembleCommit(ctx, database, entries[i].T)
			if err != nil {
				return nil, err
			}
			entries[i].Commit = detail
		}
	}
	return entries, nil
}

// resolveWindow turns spec §6's {from, to, at} shape into an explicit
// [fromT, toT] scan window: "at" pins both ends to one transaction, a
// missing bound defaults to the db's full history range.
func resolveWindow(r query.TRange, current int64) (fromT, toT int64) {
	if r.At != nil {
		return *r.At, *r.At
	}
	fromT = flake.MinSid
	toT = current
	if r.From != nil {
		fromT = *r.From
	}
	if r.To != nil {
		toT = *r.To
	}
	return fromT, toT
}

// groupByT partitions flakes (already sorted ascending by the scan's
// ordering, whose tail slot is t ascending) into per-t Entries ordered
// by t descending (largest t first; a smaller t is newer, so this lists
// the oldest transaction first), splitting each group by op.
func groupByT(flakes []flake.Flake) []Entry {
	byT := make(map[int64][]flake.Flake)
	var ts []int64
	for _, f := range flakes {
		if _, ok := byT[f.T]; !ok {
			ts = append(ts, f.T)
		}
		byT[f.T] = append(byT[f.T], f)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] > ts[j] }) // descending: largest t first

	entries := make([]Entry, 0, len(ts))
	for _, t := range ts {
		var asserted, retracted []flake.Flake
		for _, f := range byT[t] {
			if f.Op {
				asserted = append(asserted, f)
			} else {
				retracted = append(retracted, f)
			}
		}
		entries = append(entries, Entry{T: t, Asserted: asserted, Retracted: retracted})
	}
	return entries
}

// Commit predicate sids used to assemble a commit's
// detail record from its tspo-ordered flakes. These mirror the ledger
// schema a commit is written under: a commit subject per t, tagged
// metadata flakes, and data-assert/data-retract flakes naming the
// subjects that changed in that transaction.
const (
	PredCommitMeta   int64 = -100
	PredDataAssert   int64 = -101
	PredDataRetract  int64 = -102
)

// assembleCommit scans the tspo index for transaction t and splits its
// flakes into metadata vs. data-assert vs. data-retract by predicate
// (spec §4.K: "optional commit-detail assembly via tspo scans").
func assembleCommit(ctx context.Context, database *db.Db, t int64) (*CommitDetail, error) {
	tVal := t
	flakes, err := rangescan.TimeRange(ctx, database, flake.TSPOT,
		flake.GTE, rangescan.Bound{}, flake.LTE, rangescan.Bound{}, tVal, tVal, rangescan.Options{})
	if err != nil {
		return nil, err
	}
	detail := &CommitDetail{}
	for _, f := range flakes {
		switch f.P {
		case PredCommitMeta:
			detail.Metadata = append(detail.Metadata, f)
			detail.CommitSubject = f.S
		case PredDataAssert:
			detail.DataAssert = append(detail.DataAssert, f)
		case PredDataRetract:
			detail.DataRetract = append(detail.DataRetract, f)
		}
	}
	return detail, nil
}

// Subgraph renders one history Entry's changed subjects through
// graphcrawl, grouping asserted/retracted flakes by subject (spec
// §4.K: "split by op into assert/retract ... grouped by subject via
// graph-crawl").
func Subgraph(ctx context.Context, database *db.Db, e Entry, spec *query.SubgraphSpec, fuel *graphcrawl.Fuel) (asserted, retracted []graphcrawl.Node, err error) {
	asserted, err = subjectNodes(ctx, database, e.Asserted, spec, fuel)
	if err != nil {
		return nil, nil, err
	}
	retracted, err = subjectNodes(ctx, database, e.Retracted, spec, fuel)
	if err != nil {
		return nil, nil, err
	}
	return asserted, retracted, nil
}

func subjectNodes(ctx context.Context, database *db.Db, flakes []flake.Flake, spec *query.SubgraphSpec, fuel *graphcrawl.Fuel) ([]graphcrawl.Node, error) {
	seen := make(map[int64]bool)
	var subjects []int64
	for _, f := range flakes {
		if !seen[f.S] {
			seen[f.S] = true
			subjects = append(subjects, f.S)
		}
	}
	nodes := make([]graphcrawl.Node, 0, len(subjects))
	for _, s := range subjects {
		node, err := graphcrawl.FlakesToResult(ctx, database, s, spec, fuel, 0, emptySeen())
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
