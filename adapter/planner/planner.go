// Package planner contains the default [domain.Planner] implementation.
//
// The planner is deliberately simple: it normalizes the conjuncts of the
// where clause into (path, op, literal) atoms, including atoms found inside
// exists chains and filter-step predicates, and picks the index whose key
// prefix binds the most leading atoms. Equality atoms bind seek columns; a
// trailing range atom bounds the next column; everything else stays in the
// residual filter, which is always re-applied in full because index entries
// are per array-element combination.
package planner

import (
	"fmt"
	"strings"

	"github.com/nestdb/nestdb/domain"
)

// Planner implements [domain.Planner].
type Planner struct{}

// NewPlanner returns a new implementation of domain.Planner.
func NewPlanner() domain.Planner {
	return &Planner{}
}

// Plan implements [domain.Planner].
func (p *Planner) Plan(q *domain.Query, table domain.Table) (*domain.Plan, error) {
	plan := &domain.Plan{
		Scan:    domain.ScanNode{Table: q.Table, Var: q.TableVar},
		Filter:  q.Where,
		Unnest:  q.Unnest,
		Project: q.Select,
		Sort:    q.OrderBy,
	}

	aggs := collectAggregates(q)
	if len(q.GroupBy) > 0 || len(aggs) > 0 {
		plan.Group = &domain.GroupNode{Keys: q.GroupBy, Aggs: aggs}
	}

	atoms := collectAtoms(q.Where, q.TableVar)

	if q.Hint != nil {
		if q.Hint.Table != q.Table {
			return nil, &domain.ErrPlan{Query: q.Table, Msg: fmt.Sprintf("hint references table %q, query reads %q", q.Hint.Table, q.Table)}
		}
		idx, ok := table.Index(q.Hint.Index)
		if !ok {
			return nil, &domain.ErrPlan{Query: q.Table, Msg: fmt.Sprintf("%v: %s", domain.ErrIndexNotFound, q.Hint.Index)}
		}
		seek := buildSeek(idx.Def(), atoms)
		if seek == nil {
			seek = &domain.IndexSeek{Index: q.Hint.Index}
		}
		seek.Index = q.Hint.Index
		plan.Scan.Seek = seek
		plan.Scan.Forced = true
		return plan, nil
	}

	var best *domain.IndexSeek
	bestScore := 0
	for _, idx := range table.Indexes() {
		seek := buildSeek(idx.Def(), atoms)
		if seek == nil {
			continue
		}
		score := len(seek.EqVals)
		if seek.Range != nil {
			score++
		}
		if score > bestScore {
			seek.Index = idx.Def().Name
			best = seek
			bestScore = score
		}
	}
	plan.Scan.Seek = best
	return plan, nil
}

// atom is one normalized predicate: the canonical field sequence of the path
// it constrains, the comparison, and the literal operand.
type atom struct {
	fields []string
	op     domain.CompareOp
	value  any
}

// collectAtoms flattens the conjuncts of the filter and extracts the atoms an
// index seek can use. Disjunctions and negations contribute nothing.
func collectAtoms(expr domain.Expr, tableVar string) []atom {
	switch x := expr.(type) {
	case *domain.And:
		var atoms []atom
		for _, arg := range x.Args {
			atoms = append(atoms, collectAtoms(arg, tableVar)...)
		}
		return atoms

	case *domain.Compare:
		lhs, okL := x.LHS.(*domain.PathExpr)
		rhs, okR := x.RHS.(*domain.Literal)
		op := x.Op
		if !okL || !okR {
			// literal on the left flips the operator
			if lit, ok := x.LHS.(*domain.Literal); ok {
				if pe, ok := x.RHS.(*domain.PathExpr); ok {
					lhs, rhs, okL, okR = pe, lit, true, true
					op = flip(op)
				}
			}
			if !okL || !okR {
				return nil
			}
		}
		atoms, fields, ok := walkPath(lhs, tableVar)
		if !ok {
			return atoms
		}
		return append(atoms, atom{fields: fields, op: op, value: rhs.Value})

	case *domain.Exists:
		pe, ok := x.Arg.(*domain.PathExpr)
		if !ok {
			return nil
		}
		atoms, _, _ := walkPath(pe, tableVar)
		return atoms
	}
	return nil
}

func flip(op domain.CompareOp) domain.CompareOp {
	switch op {
	case domain.OpLt:
		return domain.OpGt
	case domain.OpLe:
		return domain.OpGe
	case domain.OpGt:
		return domain.OpLt
	case domain.OpGe:
		return domain.OpLe
	}
	return op
}

// walkPath canonicalizes a path rooted at the row variable: iterate steps
// drop out, field steps accumulate, and filter-step predicates contribute
// atoms over the accumulated prefix. The returned fields are the full
// canonical sequence; ok is false when the path is not rooted at the row
// variable or ends in a form a seek cannot use.
func walkPath(pe *domain.PathExpr, tableVar string) ([]atom, []string, bool) {
	if pe.Var != tableVar {
		return nil, nil, false
	}

	var atoms []atom
	var fields []string
	for _, step := range pe.Path {
		switch {
		case step.Field != "":
			fields = append(fields, step.Field)
		case step.Iterate:
		case step.Filter != nil:
			atoms = append(atoms, filterAtoms(step.Filter, fields)...)
		}
	}
	return atoms, fields, true
}

// filterAtoms extracts atoms from a filter-step predicate, resolving
// $element paths against the accumulated prefix.
func filterAtoms(pred domain.Expr, prefix []string) []atom {
	switch x := pred.(type) {
	case *domain.And:
		var atoms []atom
		for _, arg := range x.Args {
			atoms = append(atoms, filterAtoms(arg, prefix)...)
		}
		return atoms

	case *domain.Compare:
		lhs, okL := x.LHS.(*domain.PathExpr)
		rhs, okR := x.RHS.(*domain.Literal)
		op := x.Op
		if !okL || !okR {
			if lit, ok := x.LHS.(*domain.Literal); ok {
				if pe, ok := x.RHS.(*domain.PathExpr); ok {
					lhs, rhs, okL, okR = pe, lit, true, true
					op = flip(op)
				}
			}
			if !okL || !okR {
				return nil
			}
		}
		atoms, fields, ok := walkElementPath(lhs, prefix)
		if !ok {
			return atoms
		}
		return append(atoms, atom{fields: fields, op: op, value: rhs.Value})

	case *domain.Exists:
		if pe, ok := x.Arg.(*domain.PathExpr); ok {
			atoms, _, _ := walkElementPath(pe, prefix)
			return atoms
		}
	}
	return nil
}

func walkElementPath(pe *domain.PathExpr, prefix []string) ([]atom, []string, bool) {
	if pe.Var != "$element" {
		return nil, nil, false
	}

	var atoms []atom
	fields := append([]string{}, prefix...)
	for _, step := range pe.Path {
		switch {
		case step.Field != "":
			fields = append(fields, step.Field)
		case step.Iterate:
		case step.Filter != nil:
			atoms = append(atoms, filterAtoms(step.Filter, fields)...)
		}
	}
	return atoms, fields, true
}

// buildSeek binds the leading key components of the index from the atoms:
// equality atoms bind seek columns, then one range-bounded column closes the
// prefix. Nil when not even the first component binds.
func buildSeek(def domain.IndexDef, atoms []atom) *domain.IndexSeek {
	seek := &domain.IndexSeek{}
	for _, kp := range def.Keys {
		fields := keyFields(kp.Path)

		if v, ok := findEq(atoms, fields); ok {
			seek.EqVals = append(seek.EqVals, v)
			continue
		}
		if r := findRange(atoms, fields); r != nil {
			seek.Range = r
		}
		break
	}
	if len(seek.EqVals) == 0 && seek.Range == nil {
		return nil
	}
	return seek
}

func keyFields(path domain.Path) []string {
	var fields []string
	for _, step := range path {
		if step.Field != "" {
			fields = append(fields, step.Field)
		}
	}
	return fields
}

func sameFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for n := range a {
		if a[n] != b[n] {
			return false
		}
	}
	return true
}

func findEq(atoms []atom, fields []string) (any, bool) {
	for _, a := range atoms {
		if a.op == domain.OpEq && sameFields(a.fields, fields) {
			return a.value, true
		}
	}
	return nil, false
}

func findRange(atoms []atom, fields []string) *domain.SeekRange {
	var r *domain.SeekRange
	for _, a := range atoms {
		if !sameFields(a.fields, fields) {
			continue
		}
		switch a.op {
		case domain.OpGt, domain.OpGe, domain.OpLt, domain.OpLe:
		default:
			continue
		}
		if r == nil {
			r = &domain.SeekRange{}
		}
		switch a.op {
		case domain.OpGt:
			if r.Low == nil {
				r.Low = a.value
			}
		case domain.OpGe:
			if r.Low == nil {
				r.Low, r.LowInc = a.value, true
			}
		case domain.OpLt:
			if r.High == nil {
				r.High = a.value
			}
		case domain.OpLe:
			if r.High == nil {
				r.High, r.HighInc = a.value, true
			}
		}
	}
	return r
}

// collectAggregates gathers every aggregate call node reachable from the
// select, order by and group by expressions. The group stage computes them
// and later stages resolve them by node identity.
func collectAggregates(q *domain.Query) []*domain.Call {
	var aggs []*domain.Call
	add := func(expr domain.Expr) {
		walk(expr, func(e domain.Expr) {
			if c, ok := e.(*domain.Call); ok && c.Aggregate() {
				aggs = append(aggs, c)
			}
		})
	}
	for _, item := range q.Select {
		add(item.Expr)
	}
	for _, key := range q.OrderBy {
		add(key.Expr)
	}
	return aggs
}

func walk(expr domain.Expr, visit func(domain.Expr)) {
	if expr == nil {
		return
	}
	visit(expr)
	switch x := expr.(type) {
	case *domain.Compare:
		walk(x.LHS, visit)
		walk(x.RHS, visit)
	case *domain.And:
		for _, a := range x.Args {
			walk(a, visit)
		}
	case *domain.Or:
		for _, a := range x.Args {
			walk(a, visit)
		}
	case *domain.Not:
		walk(x.Arg, visit)
	case *domain.Exists:
		walk(x.Arg, visit)
	case *domain.InList:
		walk(x.LHS, visit)
		for _, e := range x.Elems {
			walk(e, visit)
		}
	case *domain.Call:
		for _, a := range x.Args {
			walk(a, visit)
		}
	case *domain.ArrayExpr:
		for _, e := range x.Elems {
			walk(e, visit)
		}
	case *domain.ObjectExpr:
		for _, f := range x.Fields {
			walk(f.Value, visit)
		}
	case *domain.PathExpr:
		for _, step := range x.Path {
			if step.Filter != nil {
				walk(step.Filter, visit)
			}
		}
	}
}

// Explain implements [domain.Planner].
func (p *Planner) Explain(plan *domain.Plan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "SCAN %s AS %s", plan.Scan.Table, plan.Scan.Var)
	if seek := plan.Scan.Seek; seek != nil {
		fmt.Fprintf(&b, " VIA INDEX %s", seek.Index)
		if len(seek.EqVals) > 0 {
			fmt.Fprintf(&b, " EQ %v", seek.EqVals)
		}
		if r := seek.Range; r != nil {
			b.WriteString(" RANGE")
			if r.Low != nil {
				op := ">"
				if r.LowInc {
					op = ">="
				}
				fmt.Fprintf(&b, " %s %v", op, r.Low)
			}
			if r.High != nil {
				op := "<"
				if r.HighInc {
					op = "<="
				}
				fmt.Fprintf(&b, " %s %v", op, r.High)
			}
		}
	} else {
		b.WriteString(" FULL")
	}
	if plan.Scan.Forced {
		b.WriteString(" FORCED")
	}
	b.WriteByte('\n')

	if plan.Filter != nil {
		fmt.Fprintf(&b, "FILTER %s\n", plan.Filter)
	}
	for _, u := range plan.Unnest {
		fmt.Fprintf(&b, "UNNEST %s AS %s\n", u.Source, u.Var)
	}
	if g := plan.Group; g != nil {
		b.WriteString("GROUP BY")
		if len(g.Keys) == 0 {
			b.WriteString(" ()")
		}
		for n, k := range g.Keys {
			if n > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, " %s", k)
		}
		b.WriteString(" AGG")
		for _, a := range g.Aggs {
			fmt.Fprintf(&b, " %s", a)
		}
		b.WriteByte('\n')
	}
	if len(plan.Project) > 0 {
		b.WriteString("PROJECT")
		for n, item := range plan.Project {
			if n > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, " %s AS %s", item.Expr, item.As)
		}
		b.WriteByte('\n')
	}
	if len(plan.Sort) > 0 {
		b.WriteString("SORT")
		for n, key := range plan.Sort {
			if n > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, " %s", key.Expr)
			if key.Desc {
				b.WriteString(" DESC")
			}
		}
		b.WriteByte('\n')
	}

	return b.String()
}
