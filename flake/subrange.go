package flake

import "sort"

// Test is one of the four boundary tests used to express a half- or
// fully-bounded range.
type Test uint8

const (
	GT Test = iota
	GTE
	LT
	LTE
	EQ // single-sided equality, only meaningful to ExpandInterval
)

func (t Test) String() string {
	switch t {
	case GT:
		return ">"
	case GTE:
		return ">="
	case LT:
		return "<"
	case LTE:
		return "<="
	case EQ:
		return "="
	default:
		return "?"
	}
}

// Subrange returns the contiguous slice of set (assumed sorted by cmp)
// satisfying startTest(f, start) && endTest(f, end). It is computed with
// two binary searches, giving O(log n + k) instead of a linear scan.
//
// Testable property (spec §8.1): for any flake set F, ordering, and
// tests, Subrange(F, ...) equals the set comprehension
// {f in F : startTest(f, start) && endTest(f, end)}.
func Subrange(set []Flake, cmp Comparator, startTest Test, start Flake, endTest Test, end Flake) []Flake {
	if len(set) == 0 {
		return set[:0]
	}

	// start is a lower bound (GT/GTE); end is an upper bound (LT/LTE).
	// Both predicates are monotonic over a sorted set, so each binary
	// search below is valid regardless of which of the two tests fires.
	lo := sort.Search(len(set), func(i int) bool {
		return satisfies(cmp(set[i], start), startTest)
	})

	hi := sort.Search(len(set), func(i int) bool {
		c := cmp(set[i], end)
		// hi is the first index that VIOLATES endTest; Subrange keeps
		// [lo, hi).
		return !satisfies(c, endTest)
	})

	if lo >= hi || lo >= len(set) {
		return set[:0]
	}
	return set[lo:hi]
}

func satisfies(c int, t Test) bool {
	switch t {
	case GT:
		return c > 0
	case GTE:
		return c >= 0
	case LT:
		return c < 0
	case LTE:
		return c <= 0
	default:
		return false
	}
}

// ExpandInterval turns a single (test, match) constraint into a
// (startTest, start, endTest, end) interval per spec §4.C step 1.
func ExpandInterval(o Ordering, test Test, match Flake) (startTest Test, start Flake, endTest Test, end Flake) {
	min, max := MinFlake(o), MaxFlake(o)
	switch test {
	case EQ:
		return GTE, match, LTE, match
	case LT:
		return GT, min, LT, match
	case GT:
		return GT, match, LTE, max
	case LTE:
		return GTE, min, LTE, match
	case GTE:
		return GTE, match, LTE, max
	}
	return GTE, match, LTE, match
}
