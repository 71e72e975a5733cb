// Package flake implements the immutable 7-tuple assertion/retraction
// record that is the atomic unit of the store, its five total orderings,
// and the subrange operation used throughout the range engine.
package flake

import "fmt"

// Object is the tagged union over a flake's object value: a subject id,
// a float64, a string, or a bool. Datatype disambiguates numeric vs.
// string vs. ref storage the way DT does; Object itself just carries the
// Go-native value so comparators can switch on its concrete type.
type Object struct {
	Sid    int64
	Num    float64
	Str    string
	Bool   bool
	IsSid  bool
	IsNum  bool
	IsStr  bool
	IsBool bool
}

// SidObject builds an Object wrapping a subject id (a ref).
func SidObject(s int64) Object { return Object{Sid: s, IsSid: true} }

// NumObject builds an Object wrapping a numeric value.
func NumObject(n float64) Object { return Object{Num: n, IsNum: true} }

// StrObject builds an Object wrapping a string value.
func StrObject(s string) Object { return Object{Str: s, IsStr: true} }

// BoolObject builds an Object wrapping a boolean value.
func BoolObject(b bool) Object { return Object{Bool: b, IsBool: true} }

// Compare gives a total order over heterogeneous objects: sid < num <
// str < bool, then by value within a kind. Used only when datatypes
// agree has already failed to disambiguate (see CompareCrossType).
func (o Object) Compare(other Object) int {
	rank := func(v Object) int {
		switch {
		case v.IsSid:
			return 0
		case v.IsNum:
			return 1
		case v.IsStr:
			return 2
		default:
			return 3
		}
	}
	if ra, rb := rank(o), rank(other); ra != rb {
		return ra - rb
	}
	switch {
	case o.IsSid:
		return cmpInt64(o.Sid, other.Sid)
	case o.IsNum:
		return cmpFloat64(o.Num, other.Num)
	case o.IsStr:
		if o.Str < other.Str {
			return -1
		} else if o.Str > other.Str {
			return 1
		}
		return 0
	default:
		if o.Bool == other.Bool {
			return 0
		}
		if !o.Bool {
			return -1
		}
		return 1
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Flake is the atomic, immutable unit: subject, predicate, object,
// datatype, transaction id (strictly decreasing; smaller = newer), op
// (true = assert, false = retract), and a metadata tiebreaker.
type Flake struct {
	S  int64
	P  int64
	O  Object
	DT int32
	T  int64
	Op bool
	M  int64
}

// New constructs a Flake from its seven components.
func New(s, p int64, o Object, dt int32, t int64, op bool, m int64) Flake {
	return Flake{S: s, P: p, O: o, DT: dt, T: t, Op: op, M: m}
}

func (f Flake) String() string {
	op := "+"
	if !f.Op {
		op = "-"
	}
	return fmt.Sprintf("%s(s=%d p=%d o=%v dt=%d t=%d m=%d)", op, f.S, f.P, f.O, f.DT, f.T, f.M)
}

// CompareCrossType compares objects of possibly differing datatypes:
// datatype id first, value second — spec §4.E filter semantics.
func CompareCrossType(aDT int32, a Object, bDT int32, b Object) int {
	if aDT != bDT {
		return cmpInt64(int64(aDT), int64(bDT))
	}
	return a.Compare(b)
}
