package filter

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/flakegraph/query/dberr"
	"github.com/flakegraph/query/flake"
)

// Aggregate reduces a multi-valued binding's flake.Object values to a
// single result (spec §4.H aggregate table). Distinct is applied by the
// caller before Apply is invoked, since "distinct" composes with every
// aggregate rather than being one itself.
type Aggregate struct {
	Name  string
	Apply func(vals []flake.Object) (flake.Object, error)
}

var aggregates map[string]Aggregate

func init() {
	aggregates = map[string]Aggregate{
		"count":          {Name: "count", Apply: aggCount},
		"count-distinct": {Name: "count-distinct", Apply: aggCount},
		"sum":            {Name: "sum", Apply: aggSum},
		"avg":            {Name: "avg", Apply: aggAvg},
		"min":            {Name: "min", Apply: aggMin},
		"max":            {Name: "max", Apply: aggMax},
		"median":         {Name: "median", Apply: aggMedian},
		"stddev":         {Name: "stddev", Apply: aggStddev},
		"variance":       {Name: "variance", Apply: aggVariance},
		"sample":         {Name: "sample", Apply: aggSample},
		"rand":           {Name: "rand", Apply: aggSample},
		"distinct":       {Name: "distinct", Apply: aggCollect},
		"groupconcat":    {Name: "groupconcat", Apply: aggGroupConcat},
		"str":            {Name: "str", Apply: aggStr},
		"abs":            {Name: "abs", Apply: aggAbs},
		"ceil":           {Name: "ceil", Apply: aggCeil},
		"floor":          {Name: "floor", Apply: aggFloor},
	}
}

// Lookup returns the named aggregate, or false if name is not in the
// fixed table (spec §4.H: reject with dberr.InvalidFn, same as a filter
// symbol outside the allow-list).
func Lookup(name string) (Aggregate, bool) {
	a, ok := aggregates[name]
	return a, ok
}

// Distinct removes duplicate values, preserving first occurrence order.
func Distinct(vals []flake.Object) []flake.Object {
	seen := make(map[flake.Object]bool, len(vals))
	out := make([]flake.Object, 0, len(vals))
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func nums(vals []flake.Object) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if v.IsNum {
			out = append(out, v.Num)
		}
	}
	return out
}

func aggCount(vals []flake.Object) (flake.Object, error) {
	return flake.NumObject(float64(len(vals))), nil
}

func aggSum(vals []flake.Object) (flake.Object, error) {
	var s float64
	for _, n := range nums(vals) {
		s += n
	}
	return flake.NumObject(s), nil
}

func aggAvg(vals []flake.Object) (flake.Object, error) {
	ns := nums(vals)
	if len(ns) == 0 {
		return flake.Object{}, dberr.New(dberr.InvalidFn, "avg of empty set")
	}
	var s float64
	for _, n := range ns {
		s += n
	}
	return flake.NumObject(s / float64(len(ns))), nil
}

func aggMin(vals []flake.Object) (flake.Object, error) {
	if len(vals) == 0 {
		return flake.Object{}, dberr.New(dberr.InvalidFn, "min of empty set")
	}
	if ns := nums(vals); len(ns) == len(vals) {
		lo, _ := minMax(ns)
		return flake.NumObject(lo), nil
	}
	min := vals[0]
	for _, v := range vals[1:] {
		if v.Compare(min) < 0 {
			min = v
		}
	}
	return min, nil
}

func aggMax(vals []flake.Object) (flake.Object, error) {
	if len(vals) == 0 {
		return flake.Object{}, dberr.New(dberr.InvalidFn, "max of empty set")
	}
	if ns := nums(vals); len(ns) == len(vals) {
		_, hi := minMax(ns)
		return flake.NumObject(hi), nil
	}
	max := vals[0]
	for _, v := range vals[1:] {
		if v.Compare(max) > 0 {
			max = v
		}
	}
	return max, nil
}

func aggMedian(vals []flake.Object) (flake.Object, error) {
	ns := nums(vals)
	if len(ns) == 0 {
		return flake.Object{}, dberr.New(dberr.InvalidFn, "median of empty set")
	}
	sort.Float64s(ns)
	mid := len(ns) / 2
	if len(ns)%2 == 1 {
		return flake.NumObject(ns[mid]), nil
	}
	return flake.NumObject((ns[mid-1] + ns[mid]) / 2), nil
}

func aggVariance(vals []flake.Object) (flake.Object, error) {
	ns := nums(vals)
	if len(ns) < 2 {
		return flake.NumObject(0), nil
	}
	var mean float64
	for _, n := range ns {
		mean += n
	}
	mean /= float64(len(ns))
	var sq float64
	for _, n := range ns {
		sq += (n - mean) * (n - mean)
	}
	return flake.NumObject(sq / float64(len(ns)-1)), nil
}

func aggStddev(vals []flake.Object) (flake.Object, error) {
	v, err := aggVariance(vals)
	if err != nil {
		return flake.Object{}, err
	}
	return flake.NumObject(math.Sqrt(v.Num)), nil
}

func aggSample(vals []flake.Object) (flake.Object, error) {
	if len(vals) == 0 {
		return flake.Object{}, dberr.New(dberr.InvalidFn, "sample of empty set")
	}
	return vals[0], nil
}

func aggCollect(vals []flake.Object) (flake.Object, error) {
	d := Distinct(vals)
	if len(d) == 0 {
		return flake.StrObject(""), nil
	}
	return d[0], nil
}

func aggGroupConcat(vals []flake.Object) (flake.Object, error) {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		parts = append(parts, toStr(v))
	}
	return flake.StrObject(strings.Join(parts, " ")), nil
}

func aggStr(vals []flake.Object) (flake.Object, error) {
	if len(vals) == 0 {
		return flake.StrObject(""), nil
	}
	return flake.StrObject(toStr(vals[0])), nil
}

func aggAbs(vals []flake.Object) (flake.Object, error) {
	return mapFirstNum(vals, math.Abs)
}

func aggCeil(vals []flake.Object) (flake.Object, error) {
	return mapFirstNum(vals, math.Ceil)
}

func aggFloor(vals []flake.Object) (flake.Object, error) {
	return mapFirstNum(vals, math.Floor)
}

func mapFirstNum(vals []flake.Object, f func(float64) float64) (flake.Object, error) {
	if len(vals) == 0 || !vals[0].IsNum {
		return flake.Object{}, dberr.New(dberr.InvalidFn, "expected a numeric argument")
	}
	return flake.NumObject(f(vals[0].Num)), nil
}

func toStr(v flake.Object) string {
	switch {
	case v.IsStr:
		return v.Str
	case v.IsNum:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case v.IsBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case v.IsSid:
		return strconv.FormatInt(v.Sid, 10)
	default:
		return ""
	}
}
