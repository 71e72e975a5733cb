// Package filter implements the :filter and aggregate evaluator (spec
// §4.H): a fixed S-expression symbol allow-list compiled once into Go
// closures, never evaluated through a language eval.
package filter

import "github.com/flakegraph/query/query"

// NodeKind tags an Expr variant (Design Note: tagged sum type instead
// of an interface hierarchy, matching the "dynamic dispatch" pattern
// used throughout this engine).
type NodeKind int

const (
	NodeLiteral NodeKind = iota
	NodeVar
	NodeCall
)

// Expr is one parsed S-expression node.
type Expr struct {
	Kind NodeKind

	// NodeLiteral
	LitNum  float64
	LitStr  string
	LitBool bool
	LitNil  bool
	LitKind LitKind

	// NodeVar
	VarName string
	Var     query.Var

	// NodeCall
	Op   string
	Args []Expr
}

// LitKind disambiguates a NodeLiteral's Go-native payload.
type LitKind int

const (
	LitNumber LitKind = iota
	LitString
	LitBool
	LitNilVal
)

// allowList is the fixed set of callable symbols (spec §4.H). Compile
// rejects anything outside it with dberr.InvalidFn.
var allowList = map[string]bool{
	"bound": true, "!": true, "&&": true, "||": true,
	"not": true, "and": true, "or": true,
	"<": true, "<=": true, ">": true, ">=": true, "=": true, "not=": true,
	"+": true, "-": true, "*": true, "/": true,
	"nil?": true, "strStarts": true, "strEnds": true,
	"re-find": true, "re-pattern": true,
	"coalesce": true, "if": true, "now": true,
}
