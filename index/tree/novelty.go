package tree

import (
	"sort"

	"github.com/flakegraph/query/flake"
)

// identity is the (s, p, o, dt) key that shadow-elimination groups on:
// successive flakes sharing an identity are different t-versions of the
// same logical assertion.
type identity struct {
	s, p, dt int64
	o        flake.Object
}

func identityOf(f flake.Flake) identity {
	return identity{s: f.S, p: f.P, dt: int64(f.DT), o: f.O}
}

// MergeNovelty merges historical leaf flakes with an in-memory novelty
// slice (both sorted under cmp), restricted to t in [fromT, toT], and
// eliminates retractions shadowed by a later assert (spec §4.B, the
// T-range resolver variant). Novelty merge commutativity (spec §8.2)
// means this is safe to call once per leaf regardless of whether
// novelty was already folded into the backing store.
func MergeNovelty(historical, novelty []flake.Flake, cmp flake.Comparator, fromT, toT int64) []flake.Flake {
	merged := mergeSorted(historical, filterT(novelty, fromT, toT), cmp)
	return shadowEliminate(merged, cmp)
}

// MergeAllVersions merges historical leaf flakes with all novelty
// flakes (no t restriction, no shadow elimination) for history queries
// (spec §4.B, the history-range resolver variant).
func MergeAllVersions(historical, novelty []flake.Flake, cmp flake.Comparator) []flake.Flake {
	return mergeSorted(historical, novelty, cmp)
}

func filterT(fs []flake.Flake, fromT, toT int64) []flake.Flake {
	out := make([]flake.Flake, 0, len(fs))
	for _, f := range fs {
		if f.T >= fromT && f.T <= toT {
			out = append(out, f)
		}
	}
	return out
}

func mergeSorted(a, b []flake.Flake, cmp flake.Comparator) []flake.Flake {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		out := append([]flake.Flake{}, b...)
		sort.Slice(out, func(i, j int) bool { return cmp(out[i], out[j]) < 0 })
		return out
	}
	out := make([]flake.Flake, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if cmp(a[i], b[j]) <= 0 {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// shadowEliminate collapses multiple t-versions of the same (s,p,o,dt)
// identity down to the single most-recent one (smallest t, since t
// decreases with age), dropping it entirely if that version is a
// retraction. The ordering of identities in the output matches the
// input ordering (stable, since the merge above is already sorted by
// the full comparator which tie-breaks after o/dt by t).
func shadowEliminate(fs []flake.Flake, cmp flake.Comparator) []flake.Flake {
	if len(fs) == 0 {
		return fs
	}
	out := make([]flake.Flake, 0, len(fs))
	i := 0
	for i < len(fs) {
		j := i + 1
		best := fs[i]
		for j < len(fs) && identityOf(fs[j]) == identityOf(fs[i]) {
			if fs[j].T < best.T { // smaller t = newer
				best = fs[j]
			}
			j++
		}
		if best.Op {
			out = append(out, best)
		}
		i = j
	}
	return out
}
