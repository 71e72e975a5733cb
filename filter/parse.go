package filter

import (
	"strconv"
	"strings"

	"github.com/flakegraph/query/dberr"
	"github.com/flakegraph/query/query"
)

// Parse parses a fixed S-expression filter body, resolving variable
// tokens (prefixed "?") through vars. Unknown call symbols are rejected
// up front with dberr.InvalidFn so nothing outside the allow-list ever
// reaches Compile.
func Parse(src string, vars map[string]query.Var) (Expr, error) {
	toks := tokenize(src)
	if len(toks) == 0 {
		return Expr{}, dberr.New(dberr.InvalidQuery, "empty filter expression")
	}
	p := &parser{toks: toks, vars: vars}
	expr, err := p.parseExpr()
	if err != nil {
		return Expr{}, err
	}
	if p.pos != len(p.toks) {
		return Expr{}, dberr.New(dberr.InvalidQuery, "trailing tokens after filter expression")
	}
	return expr, nil
}

func tokenize(src string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	inStr := false
	for _, r := range src {
		switch {
		case inStr:
			cur.WriteRune(r)
			if r == '"' {
				inStr = false
				flush()
			}
		case r == '"':
			flush()
			cur.WriteRune(r)
			inStr = true
		case r == '(' || r == ')':
			flush()
			toks = append(toks, string(r))
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

type parser struct {
	toks []string
	pos  int
	vars map[string]query.Var
}

func (p *parser) parseExpr() (Expr, error) {
	if p.pos >= len(p.toks) {
		return Expr{}, dberr.New(dberr.InvalidQuery, "unexpected end of filter expression")
	}
	tok := p.toks[p.pos]
	switch tok {
	case "(":
		return p.parseCall()
	case ")":
		return Expr{}, dberr.New(dberr.InvalidQuery, "unexpected )")
	default:
		p.pos++
		return parseAtom(tok, p.vars)
	}
}

func (p *parser) parseCall() (Expr, error) {
	p.pos++ // consume "("
	if p.pos >= len(p.toks) {
		return Expr{}, dberr.New(dberr.InvalidQuery, "unterminated call")
	}
	op := p.toks[p.pos]
	if !allowList[op] {
		return Expr{}, dberr.New(dberr.InvalidFn, "filter function %q is not in the allow-list", op)
	}
	p.pos++
	var args []Expr
	for {
		if p.pos >= len(p.toks) {
			return Expr{}, dberr.New(dberr.InvalidQuery, "unterminated call %q", op)
		}
		if p.toks[p.pos] == ")" {
			p.pos++
			break
		}
		arg, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		args = append(args, arg)
	}
	return Expr{Kind: NodeCall, Op: op, Args: args}, nil
}

func parseAtom(tok string, vars map[string]query.Var) (Expr, error) {
	switch {
	case strings.HasPrefix(tok, "?"):
		v, ok := vars[tok]
		if !ok {
			return Expr{}, dberr.New(dberr.InvalidQuery, "filter references unbound variable %q", tok)
		}
		return Expr{Kind: NodeVar, VarName: tok, Var: v}, nil
	case tok == "true" || tok == "false":
		return Expr{Kind: NodeLiteral, LitKind: LitBool, LitBool: tok == "true"}, nil
	case tok == "nil":
		return Expr{Kind: NodeLiteral, LitKind: LitNilVal, LitNil: true}, nil
	case strings.HasPrefix(tok, `"`) && strings.HasSuffix(tok, `"`) && len(tok) >= 2:
		return Expr{Kind: NodeLiteral, LitKind: LitString, LitStr: strings.Trim(tok, `"`)}, nil
	default:
		n, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return Expr{}, dberr.New(dberr.InvalidQuery, "unrecognized filter token %q", tok)
		}
		return Expr{Kind: NodeLiteral, LitKind: LitNumber, LitNum: n}, nil
	}
}
