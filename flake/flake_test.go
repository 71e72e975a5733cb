package flake

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func f(s, p int64, o int64, t int64) Flake {
	return New(s, p, SidObject(o), 0, t, true, 0)
}

func TestOrderingComparatorsAreTotalOrders(t *testing.T) {
	flakes := []Flake{f(1, 1, 1, 1), f(1, 1, 2, 1), f(2, 1, 1, 1), f(1, 2, 1, 1)}
	for _, o := range []Ordering{SPOT, PSOT, POST, OPST, TSPOT} {
		cmp := o.Comparator()
		sorted := append([]Flake{}, flakes...)
		sort.Slice(sorted, func(i, j int) bool { return cmp(sorted[i], sorted[j]) < 0 })
		for i := 0; i < len(sorted)-1; i++ {
			require.LessOrEqual(t, cmp(sorted[i], sorted[i+1]), 0, "ordering %v not stable", o)
		}
	}
}

// TestSubrangeCorrectness checks the quantified invariant from spec §8.1:
// Subrange(F, ...) equals the naive filter-comprehension over F, for
// randomized flake sets and randomized bounds.
func TestSubrangeCorrectness(t *testing.T) {
	cmp := SPOT.Comparator()
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		n := r.Intn(30)
		set := make([]Flake, n)
		for i := range set {
			set[i] = f(int64(r.Intn(10)), int64(r.Intn(3)), int64(r.Intn(10)), 1)
		}
		sort.Slice(set, func(i, j int) bool { return cmp(set[i], set[j]) < 0 })

		start := f(int64(r.Intn(10)), 0, MinSid, 1)
		end := f(int64(r.Intn(10)), 0, MaxSid, 1)
		got := Subrange(set, cmp, GTE, start, LTE, end)

		var want []Flake
		for _, fl := range set {
			if satisfies(cmp(fl, start), GTE) && satisfies(cmp(fl, end), LTE) {
				want = append(want, fl)
			}
		}
		require.Equal(t, len(want), len(got), "trial %d mismatch", trial)
		for i := range want {
			require.Equal(t, want[i], got[i])
		}
	}
}

func TestExpandIntervalEquality(t *testing.T) {
	match := f(5, 0, 0, 0)
	st, s, et, e := ExpandInterval(SPOT, EQ, match)
	require.Equal(t, GTE, st)
	require.Equal(t, LTE, et)
	require.Equal(t, match, s)
	require.Equal(t, match, e)
}

func TestCompareCrossTypeFallsBackToDatatype(t *testing.T) {
	a := StrObject("x")
	b := NumObject(1)
	require.NotEqual(t, 0, CompareCrossType(1, a, 2, b))
	require.Equal(t, 0, CompareCrossType(1, a, 1, a))
}
