// Package eval contains the default [domain.Evaluator] implementation: the
// query-side expression evaluator.
//
// Unlike the pathnav adapter, which evaluates the strict DDL path notation,
// this evaluator handles the full expression surface: implicit array
// iteration on field steps, filtered steps binding $element, quantified
// comparisons (flatten-then-test), existential tests, boolean connectives
// with three-valued logic, and the sequence functions including
// seq_transform with its depth-numbered $sqN variables.
package eval

import (
	"fmt"
	"strconv"

	"github.com/nestdb/nestdb/adapter/comparer"
	"github.com/nestdb/nestdb/adapter/data"
	"github.com/nestdb/nestdb/domain"
)

// depthVar carries the seq_transform nesting depth through the binding
// environment. The NUL prefix keeps it out of the parseable variable space.
const depthVar = "\x00seqDepth"

// Evaluator implements [domain.Evaluator].
type Evaluator struct {
	comparer domain.Comparer
	factory  domain.DocumentFactory
}

// Option configures an [Evaluator].
type Option func(*Evaluator)

// WithComparer sets the comparer used by scalar comparisons.
func WithComparer(c domain.Comparer) Option {
	return func(e *Evaluator) { e.comparer = c }
}

// WithDocumentFactory sets the factory backing object constructors.
func WithDocumentFactory(f domain.DocumentFactory) Option {
	return func(e *Evaluator) { e.factory = f }
}

// NewEvaluator returns a new implementation of domain.Evaluator.
func NewEvaluator(options ...Option) domain.Evaluator {
	e := &Evaluator{
		comparer: comparer.NewComparer(),
		factory:  data.NewDocument,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Eval implements [domain.Evaluator].
func (e *Evaluator) Eval(env *domain.Env, expr domain.Expr) (any, bool, error) {
	switch x := expr.(type) {
	case *domain.Literal:
		return x.Value, true, nil

	case *domain.PathExpr:
		seq, err := e.evalPath(env, x)
		if err != nil {
			return nil, false, err
		}
		switch len(seq) {
		case 0:
			return nil, false, nil
		case 1:
			return seq[0], true, nil
		}
		return seq, true, nil

	case *domain.Compare, *domain.And, *domain.Or, *domain.Not, *domain.Exists, *domain.InList:
		v, known, err := e.evalBool(env, expr)
		if err != nil {
			return nil, false, err
		}
		if !known {
			return nil, false, nil
		}
		return v, true, nil

	case *domain.Call:
		return e.evalCall(env, x)

	case *domain.ArrayExpr:
		arr := make([]any, 0, len(x.Elems))
		for _, elem := range x.Elems {
			seq, err := e.EvalSeq(env, elem)
			if err != nil {
				return nil, false, err
			}
			arr = append(arr, seq...)
		}
		return arr, true, nil

	case *domain.ObjectExpr:
		doc, err := e.factory(nil)
		if err != nil {
			return nil, false, err
		}
		for _, f := range x.Fields {
			v, defined, err := e.Eval(env, f.Value)
			if err != nil {
				return nil, false, err
			}
			if !defined {
				continue
			}
			doc.Set(f.Name, v)
		}
		return doc, true, nil
	}
	return nil, false, fmt.Errorf("cannot evaluate %T", expr)
}

// EvalSeq implements [domain.Evaluator].
//
// Path results flatten one array level per element, the "multi-level
// flattened result set" the quantified operators test against.
func (e *Evaluator) EvalSeq(env *domain.Env, expr domain.Expr) ([]any, error) {
	switch x := expr.(type) {
	case *domain.PathExpr:
		seq, err := e.evalPath(env, x)
		if err != nil {
			return nil, err
		}
		return flatten(seq), nil

	case *domain.Call:
		if x.Name == "seq_transform" {
			return e.evalSeqTransform(env, x)
		}
	}

	v, defined, err := e.Eval(env, expr)
	if err != nil {
		return nil, err
	}
	if !defined {
		return nil, nil
	}
	if arr, ok := v.([]any); ok {
		return flatten(arr), nil
	}
	return []any{v}, nil
}

// Truth implements [domain.Evaluator].
func (e *Evaluator) Truth(env *domain.Env, expr domain.Expr) (bool, error) {
	v, known, err := e.evalBool(env, expr)
	if err != nil {
		return false, err
	}
	return known && v, nil
}

func flatten(seq []any) []any {
	flat := make([]any, 0, len(seq))
	for _, v := range seq {
		if arr, ok := v.([]any); ok {
			flat = append(flat, flatten(arr)...)
			continue
		}
		flat = append(flat, v)
	}
	return flat
}

// evalPath walks the path steps, mapping each step over the current result
// set. Field steps auto-iterate arrays; missing fields and scalar branches
// drop out without error; filter steps bind $element per candidate.
func (e *Evaluator) evalPath(env *domain.Env, pe *domain.PathExpr) ([]any, error) {
	root, ok := env.Lookup(pe.Var)
	if !ok {
		return nil, fmt.Errorf("unbound variable %q", pe.Var)
	}

	curr := []any{root}
	for n, step := range pe.Path {
		next := make([]any, 0, len(curr))
		for _, item := range curr {
			switch {
			case step.Field != "":
				next = appendField(next, item, step.Field)

			case step.Iterate:
				switch t := item.(type) {
				case nil:
				case []any:
					next = append(next, t...)
				default:
					return nil, &domain.ErrTypeMismatch{
						Path: pe.Var + "." + pe.Path[:n+1].String(),
						Want: "array",
						Got:  item,
					}
				}

			case step.Filter != nil:
				elems, ok := item.([]any)
				if !ok {
					if item == nil {
						continue
					}
					elems = []any{item}
				}
				for _, elem := range elems {
					keep, err := e.Truth(env.Bind("$element", elem), step.Filter)
					if err != nil {
						return nil, err
					}
					if keep {
						next = append(next, elem)
					}
				}
			}
		}
		curr = next
	}
	return curr, nil
}

func appendField(dst []any, item any, field string) []any {
	switch t := item.(type) {
	case domain.Document:
		if t.Has(field) {
			dst = append(dst, t.Get(field))
		}
	case []any:
		for _, elem := range t {
			if doc, ok := elem.(domain.Document); ok && doc.Has(field) {
				dst = append(dst, doc.Get(field))
			}
		}
	}
	return dst
}

// evalBool evaluates a predicate under three-valued logic. The second result
// reports whether the value is known; unknown filters as false but projects
// as NULL.
func (e *Evaluator) evalBool(env *domain.Env, expr domain.Expr) (bool, bool, error) {
	switch x := expr.(type) {
	case *domain.Compare:
		return e.evalCompare(env, x)

	case *domain.And:
		unknown := false
		for _, arg := range x.Args {
			v, known, err := e.evalBool(env, arg)
			if err != nil {
				return false, false, err
			}
			if known && !v {
				return false, true, nil
			}
			unknown = unknown || !known
		}
		return !unknown, !unknown, nil

	case *domain.Or:
		unknown := false
		for _, arg := range x.Args {
			v, known, err := e.evalBool(env, arg)
			if err != nil {
				return false, false, err
			}
			if known && v {
				return true, true, nil
			}
			unknown = unknown || !known
		}
		return false, !unknown, nil

	case *domain.Not:
		v, known, err := e.evalBool(env, x.Arg)
		if err != nil {
			return false, false, err
		}
		return !v, known, nil

	case *domain.Exists:
		seq, err := e.EvalSeq(env, x.Arg)
		if err != nil {
			return false, false, err
		}
		return len(seq) > 0, true, nil

	case *domain.InList:
		lhs, defined, err := e.Eval(env, x.LHS)
		if err != nil {
			return false, false, err
		}
		if !defined {
			return false, false, nil
		}
		for _, elem := range x.Elems {
			rhs, defined, err := e.Eval(env, elem)
			if err != nil {
				return false, false, err
			}
			if !defined {
				continue
			}
			eq, known, err := e.compareScalars(domain.OpEq, lhs, rhs)
			if err != nil {
				return false, false, err
			}
			if known && eq {
				return true, true, nil
			}
		}
		return false, true, nil
	}

	v, defined, err := e.Eval(env, expr)
	if err != nil {
		return false, false, err
	}
	if !defined {
		return false, false, nil
	}
	b, ok := v.(bool)
	return b, ok, nil
}

func (e *Evaluator) evalCompare(env *domain.Env, cmp *domain.Compare) (bool, bool, error) {
	rhs, defined, err := e.Eval(env, cmp.RHS)
	if err != nil {
		return false, false, err
	}
	if !defined {
		return false, false, nil
	}

	if cmp.Any {
		seq, err := e.EvalSeq(env, cmp.LHS)
		if err != nil {
			return false, false, err
		}
		for _, lhs := range seq {
			ok, known, err := e.compareScalars(cmp.Op, lhs, rhs)
			if err != nil {
				return false, false, err
			}
			if known && ok {
				return true, true, nil
			}
		}
		return false, true, nil
	}

	lhs, defined, err := e.Eval(env, cmp.LHS)
	if err != nil {
		return false, false, err
	}
	if !defined {
		return false, false, nil
	}
	return e.compareScalars(cmp.Op, lhs, rhs)
}

// compareScalars applies Op to two defined values. Values of different type
// classes are unequal under = / != and unknown under the ordering operators.
func (e *Evaluator) compareScalars(op domain.CompareOp, lhs, rhs any) (bool, bool, error) {
	if lhs == nil || rhs == nil {
		if op == domain.OpEq {
			return lhs == nil && rhs == nil, true, nil
		}
		if op == domain.OpNe {
			return (lhs == nil) != (rhs == nil), true, nil
		}
		return false, false, nil
	}
	if !e.comparer.Comparable(lhs, rhs) {
		switch op {
		case domain.OpEq:
			return false, true, nil
		case domain.OpNe:
			return true, true, nil
		}
		return false, false, nil
	}
	c, err := e.comparer.Compare(lhs, rhs)
	if err != nil {
		return false, false, err
	}
	switch op {
	case domain.OpEq:
		return c == 0, true, nil
	case domain.OpNe:
		return c != 0, true, nil
	case domain.OpLt:
		return c < 0, true, nil
	case domain.OpLe:
		return c <= 0, true, nil
	case domain.OpGt:
		return c > 0, true, nil
	case domain.OpGe:
		return c >= 0, true, nil
	}
	return false, false, fmt.Errorf("unknown comparison operator %q", op)
}

func (e *Evaluator) evalCall(env *domain.Env, call *domain.Call) (any, bool, error) {
	if call.Aggregate() {
		if v, ok := env.Aggregate(call); ok {
			return v, true, nil
		}
		return nil, false, fmt.Errorf("aggregate %s outside group context", call)
	}

	switch call.Name {
	case "size":
		v, defined, err := e.Eval(env, call.Args[0])
		if err != nil {
			return nil, false, err
		}
		if !defined {
			return nil, false, nil
		}
		arr, ok := v.([]any)
		if !ok {
			return nil, false, &domain.ErrTypeMismatch{Path: call.Args[0].String(), Want: "array", Got: v}
		}
		return int64(len(arr)), true, nil

	case "seq_sum":
		seq, err := e.EvalSeq(env, call.Args[0])
		if err != nil {
			return nil, false, err
		}
		return Sum(seq)

	case "seq_transform":
		seq, err := e.evalSeqTransform(env, call)
		if err != nil {
			return nil, false, err
		}
		switch len(seq) {
		case 0:
			return nil, false, nil
		case 1:
			return seq[0], true, nil
		}
		return seq, true, nil
	}
	return nil, false, fmt.Errorf("unknown function %q", call.Name)
}

// evalSeqTransform maps the second argument over each element of the first,
// binding the element to $sqN where N counts enclosing seq_transform calls.
func (e *Evaluator) evalSeqTransform(env *domain.Env, call *domain.Call) ([]any, error) {
	src, err := e.EvalSeq(env, call.Args[0])
	if err != nil {
		return nil, err
	}

	depth := 1
	if d, ok := env.Lookup(depthVar); ok {
		depth = d.(int) + 1
	}
	name := "$sq" + strconv.Itoa(depth)

	out := make([]any, 0, len(src))
	for _, elem := range src {
		sub := env.Bind(name, elem).Bind(depthVar, depth)
		seq, err := e.EvalSeq(sub, call.Args[1])
		if err != nil {
			return nil, err
		}
		out = append(out, seq...)
	}
	return out, nil
}

// Sum adds the numeric values of a flattened sequence. The result stays an
// int64 until a float shows up; non-numeric elements are a type mismatch.
func Sum(seq []any) (any, bool, error) {
	var i int64
	var f float64
	isFloat := false
	defined := false
	for _, v := range seq {
		switch t := v.(type) {
		case nil:
			continue
		case int64:
			i += t
			f += float64(t)
		case float64:
			isFloat = true
			f += t
		default:
			return nil, false, &domain.ErrTypeMismatch{Want: "number", Got: v}
		}
		defined = true
	}
	if !defined {
		return nil, false, nil
	}
	if isFloat {
		return f, true, nil
	}
	return i, true, nil
}
