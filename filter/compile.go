package filter

import (
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/flakegraph/query/dberr"
	"github.com/flakegraph/query/flake"
	"github.com/flakegraph/query/query"
)

// wallClockMs is the seam (now) closes over to get the query-time
// epoch-ms (spec §4.H). Tests substitute it for a fixed instant the
// same way the teacher's RunWithNowFunc swaps its clock.
var wallClockMs = func() int64 { return time.Now().UnixMilli() }

// value is filter evaluation's internal result type: either nil, or a
// flake.Object with its datatype, matching spec §4.H's "swallow nil"
// semantics (nil is a first-class outcome, not an error).
type value struct {
	Nil bool
	Obj flake.Object
	DT  int32
}

var nilValue = value{Nil: true}

func objValue(o flake.Object, dt int32) value { return value{Obj: o, DT: dt} }

// compiled is a compiled expression: a closure over a Solution.
type compiled func(query.Solution) (value, error)

// Compile turns a parsed Expr into a closure. It is the only place
// allow-listed symbols are given Go semantics; anything not in the
// allow-list was already rejected by Parse.
func Compile(e Expr) (compiled, error) {
	switch e.Kind {
	case NodeLiteral:
		return compileLiteral(e), nil
	case NodeVar:
		v := e.Var
		return func(sol query.Solution) (value, error) {
			m, ok := sol[v]
			if !ok || !m.Bound {
				return nilValue, nil
			}
			return objValue(m.Val, m.Datatype), nil
		}, nil
	case NodeCall:
		return compileCall(e)
	}
	return nil, dberr.New(dberr.InvalidFn, "unrecognized expression node")
}

func compileLiteral(e Expr) compiled {
	switch e.LitKind {
	case LitNumber:
		o := flake.NumObject(e.LitNum)
		return func(query.Solution) (value, error) { return objValue(o, 0), nil }
	case LitString:
		o := flake.StrObject(e.LitStr)
		return func(query.Solution) (value, error) { return objValue(o, 0), nil }
	case LitBool:
		o := flake.BoolObject(e.LitBool)
		return func(query.Solution) (value, error) { return objValue(o, 0), nil }
	default:
		return func(query.Solution) (value, error) { return nilValue, nil }
	}
}

func compileCall(e Expr) (compiled, error) {
	args := make([]compiled, len(e.Args))
	for i, a := range e.Args {
		c, err := Compile(a)
		if err != nil {
			return nil, err
		}
		args[i] = c
	}

	switch e.Op {
	case "bound":
		return func(sol query.Solution) (value, error) {
			v, err := args[0](sol)
			if err != nil {
				return nilValue, err
			}
			return objValue(flake.BoolObject(!v.Nil), 0), nil
		}, nil
	case "nil?":
		return func(sol query.Solution) (value, error) {
			v, err := args[0](sol)
			if err != nil {
				return nilValue, err
			}
			return objValue(flake.BoolObject(v.Nil), 0), nil
		}, nil
	case "!", "not":
		return func(sol query.Solution) (value, error) {
			v, err := args[0](sol)
			if err != nil {
				return nilValue, err
			}
			return objValue(flake.BoolObject(!truthy(v)), 0), nil
		}, nil
	case "&&", "and":
		return func(sol query.Solution) (value, error) {
			for _, a := range args {
				v, err := a(sol)
				if err != nil {
					return nilValue, err
				}
				if !truthy(v) {
					return objValue(flake.BoolObject(false), 0), nil
				}
			}
			return objValue(flake.BoolObject(true), 0), nil
		}, nil
	case "||", "or":
		return func(sol query.Solution) (value, error) {
			for _, a := range args {
				v, err := a(sol)
				if err != nil {
					return nilValue, err
				}
				if truthy(v) {
					return objValue(flake.BoolObject(true), 0), nil
				}
			}
			return objValue(flake.BoolObject(false), 0), nil
		}, nil
	case "<", "<=", ">", ">=", "=", "not=":
		return compileComparison(e.Op, args), nil
	case "+", "-", "*", "/":
		return compileArith(e.Op, args), nil
	case "strStarts":
		return compileStrPred(func(s, prefix string) bool { return strings.HasPrefix(s, prefix) }, args), nil
	case "strEnds":
		return compileStrPred(func(s, suffix string) bool { return strings.HasSuffix(s, suffix) }, args), nil
	case "re-pattern":
		return func(sol query.Solution) (value, error) {
			v, err := args[0](sol)
			if err != nil || v.Nil {
				return nilValue, err
			}
			return objValue(flake.StrObject(v.Obj.Str), 0), nil
		}, nil
	case "re-find":
		return func(sol query.Solution) (value, error) {
			pat, err := args[0](sol)
			if err != nil {
				return nilValue, err
			}
			str, err := args[1](sol)
			if err != nil {
				return nilValue, err
			}
			if pat.Nil || str.Nil {
				return nilValue, nil
			}
			re, err := regexp.Compile(pat.Obj.Str)
			if err != nil {
				return nilValue, dberr.Wrap(dberr.InvalidFn, err, "invalid regex %q", pat.Obj.Str)
			}
			if !re.MatchString(str.Obj.Str) {
				return nilValue, nil
			}
			return objValue(flake.StrObject(re.FindString(str.Obj.Str)), 0), nil
		}, nil
	case "coalesce":
		return compileCoalesce(args), nil
	case "if":
		return func(sol query.Solution) (value, error) {
			cond, err := args[0](sol)
			if err != nil {
				return nilValue, err
			}
			if truthy(cond) {
				return args[1](sol)
			}
			if len(args) > 2 {
				return args[2](sol)
			}
			return nilValue, nil
		}, nil
	case "now":
		return func(query.Solution) (value, error) {
			return objValue(flake.NumObject(float64(wallClockMs())), 0), nil
		}, nil
	}
	return nil, dberr.New(dberr.InvalidFn, "filter function %q is not in the allow-list", e.Op)
}

// truthy implements the evaluator's boolean coercion: nil and bool
// false are false, everything else (including 0 and "") is true.
func truthy(v value) bool {
	if v.Nil {
		return false
	}
	if v.Obj.IsBool {
		return v.Obj.Bool
	}
	return true
}

func compileComparison(op string, args []compiled) compiled {
	return func(sol query.Solution) (value, error) {
		a, err := args[0](sol)
		if err != nil {
			return nilValue, err
		}
		b, err := args[1](sol)
		if err != nil {
			return nilValue, err
		}
		if a.Nil || b.Nil {
			return nilValue, nil
		}
		c := flake.CompareCrossType(a.DT, a.Obj, b.DT, b.Obj)
		var result bool
		switch op {
		case "<":
			result = c < 0
		case "<=":
			result = c <= 0
		case ">":
			result = c > 0
		case ">=":
			result = c >= 0
		case "=":
			result = c == 0
		case "not=":
			result = c != 0
		}
		return objValue(flake.BoolObject(result), 0), nil
	}
}

func compileArith(op string, args []compiled) compiled {
	return func(sol query.Solution) (value, error) {
		a, err := args[0](sol)
		if err != nil {
			return nilValue, err
		}
		b, err := args[1](sol)
		if err != nil {
			return nilValue, err
		}
		if a.Nil || b.Nil {
			return nilValue, nil
		}
		// Arithmetic operands may arrive as strings (e.g. a literal typed
		// as xsd:decimal but stored as text); coerce through cast rather
		// than requiring the caller to pre-normalize every datatype.
		an, err := cast.ToFloat64E(goValue(a.Obj))
		if err != nil {
			return nilValue, dberr.Wrap(dberr.InvalidFn, err, "left operand of %q is not numeric", op)
		}
		bn, err := cast.ToFloat64E(goValue(b.Obj))
		if err != nil {
			return nilValue, dberr.Wrap(dberr.InvalidFn, err, "right operand of %q is not numeric", op)
		}
		var r float64
		switch op {
		case "+":
			r = an + bn
		case "-":
			r = an - bn
		case "*":
			r = an * bn
		case "/":
			if bn == 0 {
				return nilValue, dberr.New(dberr.InvalidFn, "division by zero")
			}
			r = an / bn
		}
		return objValue(flake.NumObject(r), 0), nil
	}
}

// goValue unwraps a flake.Object to the Go-native value cast coerces
// from (string, float64, or bool).
func goValue(o flake.Object) interface{} {
	switch {
	case o.IsStr:
		return o.Str
	case o.IsNum:
		return o.Num
	case o.IsBool:
		return o.Bool
	default:
		return o.Sid
	}
}

func compileStrPred(pred func(s, needle string) bool, args []compiled) compiled {
	return func(sol query.Solution) (value, error) {
		a, err := args[0](sol)
		if err != nil {
			return nilValue, err
		}
		b, err := args[1](sol)
		if err != nil {
			return nilValue, err
		}
		if a.Nil || b.Nil {
			return nilValue, nil
		}
		return objValue(flake.BoolObject(pred(a.Obj.Str, b.Obj.Str)), 0), nil
	}
}

// compileCoalesce returns the first argument that neither errors nor
// yields nil. Nil and errors are swallowed in every non-terminal arm;
// when the final arm is also nil or errors, it fails with
// dberr.InvalidQuery (wrapping the final arm's error, if any).
func compileCoalesce(args []compiled) compiled {
	return func(sol query.Solution) (value, error) {
		var lastErr error
		for i, a := range args {
			v, err := a(sol)
			terminal := i == len(args)-1
			if err != nil {
				if terminal {
					return nilValue, dberr.Wrap(dberr.InvalidQuery, err, "coalesce: every argument was nil or errored")
				}
				lastErr = err
				continue
			}
			if !v.Nil {
				return v, nil
			}
			if terminal {
				return nilValue, dberr.New(dberr.InvalidQuery, "coalesce: every argument was nil or errored")
			}
		}
		return nilValue, lastErr
	}
}
