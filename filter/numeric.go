package filter

import "golang.org/x/exp/constraints"

// minMax reduces ns to its minimum and maximum in one pass, generic
// over any ordered numeric type so a numeric-only aggregate set can
// skip flake.Object.Compare's cross-datatype path entirely. Callers
// must pass a non-empty slice.
func minMax[T constraints.Ordered](ns []T) (min, max T) {
	min, max = ns[0], ns[0]
	for _, n := range ns[1:] {
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	return min, max
}
