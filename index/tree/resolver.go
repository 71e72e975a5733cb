package tree

import "github.com/flakegraph/query/flake"

// TRangeResolver merges a leaf's historical content with the in-memory
// novelty set restricted to [FromT, ToT] and eliminates retractions
// shadowed by a later assert — point-in-time semantics when
// FromT == ToT == db.t.
type TRangeResolver struct {
	Novelty  []flake.Flake
	Ordering flake.Ordering
	FromT    int64
	ToT      int64
}

func (r TRangeResolver) Resolve(leaf Node) []flake.Flake {
	cmp := r.Ordering.Comparator()
	return MergeNovelty(leaf.Flakes, r.Novelty, cmp, r.FromT, r.ToT)
}

// HistoryRangeResolver merges a leaf's historical content with all
// novelty flakes, performing no shadow elimination, used by history and
// commit-detail queries which need every version, not just the current
// one.
type HistoryRangeResolver struct {
	Novelty  []flake.Flake
	Ordering flake.Ordering
}

func (r HistoryRangeResolver) Resolve(leaf Node) []flake.Flake {
	cmp := r.Ordering.Comparator()
	return MergeAllVersions(leaf.Flakes, r.Novelty, cmp)
}
