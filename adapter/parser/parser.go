// Package parser contains the default [domain.Parser] implementation: a
// hand-rolled recursive descent parser for the select statement surface.
//
// The grammar covers single-table selects with an optional FORCE_INDEX hint,
// unnest bindings (the unnest(...) form and bare "path as $var" sources),
// where/group by/order by clauses, quantified comparisons (the "=any"
// family), exists, in lists, the aggregate and sequence functions, and array
// and object constructors. Malformed text fails with [domain.ErrParse] at
// prepare time, never at execute time.
package parser

import (
	"fmt"
	"strings"

	"github.com/nestdb/nestdb/domain"
)

// Parser implements [domain.Parser].
type Parser struct{}

// NewParser returns a new implementation of domain.Parser.
func NewParser() domain.Parser {
	return &Parser{}
}

// Parse implements [domain.Parser].
func (*Parser) Parse(text string) (*domain.Query, error) {
	ps := &parseState{lex: lexer{src: text}}
	if err := ps.advance(); err != nil {
		return nil, err
	}
	q, err := ps.parseQuery()
	if err != nil {
		return nil, err
	}
	if ps.tok.kind != tokEOF {
		return nil, ps.errorf("unexpected trailing input")
	}
	return q, nil
}

type parseState struct {
	lex lexer
	tok token
}

func (p *parseState) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parseState) errorf(format string, args ...any) error {
	return &domain.ErrParse{Pos: p.tok.pos, Near: p.tok.text, Msg: fmt.Sprintf(format, args...)}
}

func (p *parseState) keyword(kw string) bool {
	return p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, kw)
}

func (p *parseState) acceptKeyword(kw string) (bool, error) {
	if !p.keyword(kw) {
		return false, nil
	}
	return true, p.advance()
}

func (p *parseState) expectKeyword(kw string) error {
	if !p.keyword(kw) {
		return p.errorf("expected %q", kw)
	}
	return p.advance()
}

func (p *parseState) punct(s string) bool {
	return p.tok.kind == tokPunct && p.tok.text == s
}

func (p *parseState) acceptPunct(s string) (bool, error) {
	if !p.punct(s) {
		return false, nil
	}
	return true, p.advance()
}

func (p *parseState) expectPunct(s string) error {
	if !p.punct(s) {
		return p.errorf("expected %q", s)
	}
	return p.advance()
}

func (p *parseState) expectIdent() (string, error) {
	if p.tok.kind != tokIdent {
		return "", p.errorf("expected identifier")
	}
	name := p.tok.text
	return name, p.advance()
}

func (p *parseState) expectVar() (string, error) {
	if p.tok.kind != tokVar {
		return "", p.errorf("expected variable")
	}
	name := p.tok.text
	return name, p.advance()
}

func (p *parseState) parseQuery() (*domain.Query, error) {
	if err := p.expectKeyword("select"); err != nil {
		return nil, err
	}

	q := &domain.Query{}

	if p.tok.kind == tokHint {
		hint, err := parseHint(p.tok)
		if err != nil {
			return nil, err
		}
		q.Hint = hint
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		q.Select = append(q.Select, item)
		ok, err := p.acceptPunct(",")
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	for n := range q.Select {
		if q.Select[n].As == "" {
			q.Select[n].As = fmt.Sprintf("Column_%d", n+1)
		}
	}

	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	q.Table = table
	q.TableVar = table
	if p.tok.kind == tokVar || (p.tok.kind == tokIdent && !p.reservedAfterFrom()) {
		q.TableVar = p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	for {
		ok, err := p.acceptPunct(",")
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		binds, err := p.parseUnnestSource()
		if err != nil {
			return nil, err
		}
		q.Unnest = append(q.Unnest, binds...)
	}

	ok, err := p.acceptKeyword("where")
	if err != nil {
		return nil, err
	}
	if ok {
		q.Where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}

	if p.keyword("group") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("by"); err != nil {
			return nil, err
		}
		q.GroupBy, err = p.parseExprList()
		if err != nil {
			return nil, err
		}
	}

	if p.keyword("order") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("by"); err != nil {
			return nil, err
		}
		for {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			key := domain.OrderKey{Expr: expr}
			if ok, err := p.acceptKeyword("desc"); err != nil {
				return nil, err
			} else if !ok {
				if _, err := p.acceptKeyword("asc"); err != nil {
					return nil, err
				}
			} else {
				key.Desc = true
			}
			q.OrderBy = append(q.OrderBy, key)
			ok, err := p.acceptPunct(",")
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
		}
	}

	return q, nil
}

// reservedAfterFrom reports whether the current identifier starts a clause
// rather than naming the table alias.
func (p *parseState) reservedAfterFrom() bool {
	for _, kw := range []string{"where", "group", "order", "unnest"} {
		if p.keyword(kw) {
			return true
		}
	}
	return false
}

func parseHint(tok token) (*domain.IndexHint, error) {
	text := tok.text
	if !strings.HasPrefix(strings.ToUpper(text), "FORCE_INDEX(") || !strings.HasSuffix(text, ")") {
		return nil, &domain.ErrParse{Pos: tok.pos, Near: text, Msg: "unknown hint, expected FORCE_INDEX(table index)"}
	}
	inner := text[len("FORCE_INDEX(") : len(text)-1]
	fields := strings.Fields(inner)
	if len(fields) != 2 {
		return nil, &domain.ErrParse{Pos: tok.pos, Near: text, Msg: "FORCE_INDEX wants a table and an index name"}
	}
	return &domain.IndexHint{Table: fields[0], Index: fields[1]}, nil
}

func (p *parseState) parseSelectItem() (domain.SelectItem, error) {
	expr, err := p.parseExpr()
	if err != nil {
		return domain.SelectItem{}, err
	}
	item := domain.SelectItem{Expr: expr, As: defaultName(expr)}
	ok, err := p.acceptKeyword("as")
	if err != nil {
		return domain.SelectItem{}, err
	}
	if ok {
		item.As, err = p.expectIdent()
		if err != nil {
			return domain.SelectItem{}, err
		}
	}
	return item, nil
}

// defaultName derives the output name of an unaliased select item: the last
// field step of a path, or the bare variable name.
func defaultName(expr domain.Expr) string {
	pe, ok := expr.(*domain.PathExpr)
	if !ok {
		return ""
	}
	for n := len(pe.Path) - 1; n >= 0; n-- {
		if pe.Path[n].Field != "" {
			return pe.Path[n].Field
		}
	}
	return strings.TrimPrefix(pe.Var, "$")
}

func (p *parseState) parseUnnestSource() ([]domain.UnnestBind, error) {
	if p.keyword("unnest") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		var binds []domain.UnnestBind
		for {
			bind, err := p.parseUnnestBind()
			if err != nil {
				return nil, err
			}
			binds = append(binds, bind)
			ok, err := p.acceptPunct(",")
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return binds, nil
	}

	bind, err := p.parseUnnestBind()
	if err != nil {
		return nil, err
	}
	return []domain.UnnestBind{bind}, nil
}

func (p *parseState) parseUnnestBind() (domain.UnnestBind, error) {
	source, err := p.parseUnary()
	if err != nil {
		return domain.UnnestBind{}, err
	}
	if err := p.expectKeyword("as"); err != nil {
		return domain.UnnestBind{}, err
	}
	name, err := p.expectVar()
	if err != nil {
		return domain.UnnestBind{}, err
	}
	return domain.UnnestBind{Source: source, Var: name}, nil
}

func (p *parseState) parseExprList() ([]domain.Expr, error) {
	var exprs []domain.Expr
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
		ok, err := p.acceptPunct(",")
		if err != nil {
			return nil, err
		}
		if !ok {
			return exprs, nil
		}
	}
}

func (p *parseState) parseExpr() (domain.Expr, error) {
	return p.parseOr()
}

func (p *parseState) parseOr() (domain.Expr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	args := []domain.Expr{first}
	for p.keyword("or") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		args = append(args, next)
	}
	if len(args) == 1 {
		return first, nil
	}
	return &domain.Or{Args: args}, nil
}

func (p *parseState) parseAnd() (domain.Expr, error) {
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	args := []domain.Expr{first}
	for p.keyword("and") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		next, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		args = append(args, next)
	}
	if len(args) == 1 {
		return first, nil
	}
	return &domain.And{Args: args}, nil
}

func (p *parseState) parseNot() (domain.Expr, error) {
	if p.keyword("not") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		arg, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &domain.Not{Arg: arg}, nil
	}
	return p.parseComparison()
}

func (p *parseState) parseComparison() (domain.Expr, error) {
	if p.keyword("exists") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &domain.Exists{Arg: arg}, nil
	}

	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	if p.tok.kind == tokOp {
		op := domain.CompareOp(p.tok.text)
		if err := p.advance(); err != nil {
			return nil, err
		}
		cmp := &domain.Compare{Op: op, LHS: lhs}
		if p.keyword("any") {
			cmp.Any = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		cmp.RHS, err = p.parseUnary()
		if err != nil {
			return nil, err
		}
		return cmp, nil
	}

	if p.keyword("in") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		elems, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return &domain.InList{LHS: lhs, Elems: elems}, nil
	}

	return lhs, nil
}

var functions = map[string]struct{}{
	"count":         {},
	"sum":           {},
	"seq_sum":       {},
	"size":          {},
	"seq_transform": {},
}

func (p *parseState) parseUnary() (domain.Expr, error) {
	switch p.tok.kind {
	case tokNumber, tokString:
		lit := &domain.Literal{Value: p.tok.val}
		return lit, p.advance()

	case tokVar:
		name := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.parsePathSteps(name)

	case tokIdent:
		switch {
		case p.keyword("true"):
			return &domain.Literal{Value: true}, p.advance()
		case p.keyword("false"):
			return &domain.Literal{Value: false}, p.advance()
		case p.keyword("null"):
			return &domain.Literal{Value: nil}, p.advance()
		}
		name := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.punct("(") {
			return p.parseCall(name)
		}
		return p.parsePathSteps(name)

	case tokPunct:
		switch p.tok.text {
		case "(":
			if err := p.advance(); err != nil {
				return nil, err
			}
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return expr, p.expectPunct(")")
		case "[":
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.punct("]") {
				return &domain.ArrayExpr{}, p.advance()
			}
			elems, err := p.parseExprList()
			if err != nil {
				return nil, err
			}
			return &domain.ArrayExpr{Elems: elems}, p.expectPunct("]")
		case "{":
			return p.parseObject()
		}
	}
	return nil, p.errorf("expected expression")
}

func (p *parseState) parseCall(name string) (domain.Expr, error) {
	fn := strings.ToLower(name)
	if _, ok := functions[fn]; !ok {
		return nil, p.errorf("unknown function %q", name)
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	call := &domain.Call{Name: fn}
	if fn == "count" && p.punct("*") {
		call.Star = true
		if err := p.advance(); err != nil {
			return nil, err
		}
		return call, p.expectPunct(")")
	}
	args, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	call.Args = args
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	want := 1
	if fn == "seq_transform" {
		want = 2
	}
	if len(call.Args) != want {
		return nil, p.errorf("%s wants %d argument(s), got %d", fn, want, len(call.Args))
	}
	return call, nil
}

func (p *parseState) parsePathSteps(head string) (domain.Expr, error) {
	pe := &domain.PathExpr{Var: head}
	for {
		switch {
		case p.punct("."):
			if err := p.advance(); err != nil {
				return nil, err
			}
			field, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			pe.Path = append(pe.Path, domain.PathStep{Field: field})

		case p.punct("["):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.punct("]") {
				pe.Path = append(pe.Path, domain.PathStep{Iterate: true})
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			pred, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			pe.Path = append(pe.Path, domain.PathStep{Filter: pred})

		default:
			return pe, nil
		}
	}
}

func (p *parseState) parseObject() (domain.Expr, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	obj := &domain.ObjectExpr{}
	if ok, err := p.acceptPunct("}"); err != nil || ok {
		return obj, err
	}
	for {
		var name string
		switch p.tok.kind {
		case tokString:
			name = p.tok.val.(string)
		case tokIdent:
			name = p.tok.text
		default:
			return nil, p.errorf("expected field name")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		obj.Fields = append(obj.Fields, domain.ObjectField{Name: name, Value: value})
		ok, err := p.acceptPunct(",")
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	return obj, p.expectPunct("}")
}
