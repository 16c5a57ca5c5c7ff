package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a node of the query expression tree. Every node renders back to
// source notation via String, which plan explains and error messages use.
type Expr interface {
	fmt.Stringer
	expr()
}

// CompareOp is a scalar comparison operator.
type CompareOp string

// Comparison operators.
const (
	OpEq CompareOp = "="
	OpNe CompareOp = "!="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// Literal is a constant scalar value.
type Literal struct {
	Value any
}

func (*Literal) expr() {}

// String implements [Expr].
func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	default:
		return fmt.Sprint(v)
	}
}

// PathExpr is a variable reference followed by zero or more path steps, e.g.
// u.info.shows[$element.showId = 16].seriesInfo. The variable is the table
// row variable, a name introduced by unnest, $element inside a filter step,
// or $sqN inside seq_transform.
type PathExpr struct {
	Var  string
	Path Path
}

func (*PathExpr) expr() {}

// String implements [Expr].
func (p *PathExpr) String() string {
	if len(p.Path) == 0 {
		return p.Var
	}
	rest := p.Path.String()
	if strings.HasPrefix(rest, "[") {
		return p.Var + rest
	}
	return p.Var + "." + rest
}

// Compare applies a scalar comparison. When Any is set the left operand is
// flattened to a sequence and the comparison holds if at least one element
// satisfies it (the "=any" family of quantified operators).
type Compare struct {
	Op  CompareOp
	Any bool
	LHS Expr
	RHS Expr
}

func (*Compare) expr() {}

// String implements [Expr].
func (c *Compare) String() string {
	op := string(c.Op)
	if c.Any {
		op += "any"
	}
	return fmt.Sprintf("%s %s %s", c.LHS, op, c.RHS)
}

// InList is a membership test against a literal list.
type InList struct {
	LHS   Expr
	Elems []Expr
}

func (*InList) expr() {}

// String implements [Expr].
func (i *InList) String() string {
	parts := make([]string, len(i.Elems))
	for n, e := range i.Elems {
		parts[n] = e.String()
	}
	return fmt.Sprintf("%s in (%s)", i.LHS, strings.Join(parts, ", "))
}

// And is a conjunction, evaluated left to right with short-circuit.
type And struct {
	Args []Expr
}

func (*And) expr() {}

// String implements [Expr].
func (a *And) String() string { return joinArgs(a.Args, " and ") }

// Or is a disjunction, evaluated left to right with short-circuit.
type Or struct {
	Args []Expr
}

func (*Or) expr() {}

// String implements [Expr].
func (o *Or) String() string { return joinArgs(o.Args, " or ") }

// Not negates its argument.
type Not struct {
	Arg Expr
}

func (*Not) expr() {}

// String implements [Expr].
func (n *Not) String() string { return "not " + n.Arg.String() }

// Exists is true iff the argument evaluates to a non-empty sequence.
type Exists struct {
	Arg Expr
}

func (*Exists) expr() {}

// String implements [Expr].
func (e *Exists) String() string { return "exists " + e.Arg.String() }

// Call is a function call: count, sum, seq_sum, size or seq_transform. Star
// marks count(*).
type Call struct {
	Name string
	Args []Expr
	Star bool
}

func (*Call) expr() {}

// String implements [Expr].
func (c *Call) String() string {
	if c.Star {
		return c.Name + "(*)"
	}
	parts := make([]string, len(c.Args))
	for n, a := range c.Args {
		parts[n] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(parts, ", "))
}

// Aggregate reports whether the call is an aggregate function computed by
// the group stage. seq_sum is not one: it sums a flattened path per row.
func (c *Call) Aggregate() bool {
	switch c.Name {
	case "count", "sum":
		return true
	}
	return false
}

// ArrayExpr constructs an array from its element expressions. A sequence
// element contributes all of its items.
type ArrayExpr struct {
	Elems []Expr
}

func (*ArrayExpr) expr() {}

// String implements [Expr].
func (a *ArrayExpr) String() string {
	parts := make([]string, len(a.Elems))
	for n, e := range a.Elems {
		parts[n] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ObjectField is one member of an object constructor.
type ObjectField struct {
	Name  string
	Value Expr
}

// ObjectExpr constructs a document from named expressions, preserving the
// declared field names.
type ObjectExpr struct {
	Fields []ObjectField
}

func (*ObjectExpr) expr() {}

// String implements [Expr].
func (o *ObjectExpr) String() string {
	parts := make([]string, len(o.Fields))
	for n, f := range o.Fields {
		parts[n] = fmt.Sprintf("%q: %s", f.Name, f.Value)
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func joinArgs(args []Expr, sep string) string {
	parts := make([]string, len(args))
	for n, a := range args {
		parts[n] = a.String()
	}
	return strings.Join(parts, sep)
}

// SelectItem is one projected expression and its output name.
type SelectItem struct {
	Expr Expr
	As   string
}

// UnnestBind introduces a variable bound to each element of the source
// sequence. Binds compose left to right: later sources may reference earlier
// variables, which makes composed unnests an implicit flat-map over
// flat-map.
type UnnestBind struct {
	Source Expr
	Var    string
}

// OrderKey is one sort criterion.
type OrderKey struct {
	Expr Expr
	Desc bool
}

// IndexHint forces the planner to use a specific index, overriding
// selection. Hinted and unhinted plans must be result-equivalent.
type IndexHint struct {
	Table string
	Index string
}

// Query is the parsed form of a select statement.
type Query struct {
	Hint     *IndexHint
	Select   []SelectItem
	Table    string
	TableVar string
	Unnest   []UnnestBind
	Where    Expr
	GroupBy  []Expr
	OrderBy  []OrderKey
}
