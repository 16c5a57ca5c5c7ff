// Package pathnav contains the default [domain.PathNavigator] implementation.
//
// It handles DDL-notation paths: dotted field steps and explicit "[]" array
// iteration, the notation index definitions use. Query expressions, which
// additionally support filtered steps and implicit iteration, evaluate
// through the eval adapter instead.
package pathnav

import (
	"fmt"
	"strings"

	"github.com/nestdb/nestdb/domain"
)

// PathNavigator implements [domain.PathNavigator].
type PathNavigator struct{}

// NewPathNavigator returns a new implementation of [domain.PathNavigator].
func NewPathNavigator() domain.PathNavigator {
	return &PathNavigator{}
}

// Value is a path evaluation result. The zero Value is undefined.
type Value struct {
	v       any
	defined bool
}

// NewValue returns a defined result.
func NewValue(v any) Value { return Value{v: v, defined: true} }

// Undefined returns an undefined result.
func Undefined() Value { return Value{} }

// Get implements [domain.Getter].
func (v Value) Get() (any, bool) { return v.v, v.defined }

// ParsePath implements [domain.PathNavigator].
func (pn *PathNavigator) ParsePath(s string) (domain.Path, error) {
	if s == "" {
		return nil, fmt.Errorf("empty path")
	}
	var path domain.Path
	for _, seg := range strings.Split(s, ".") {
		name := seg
		iters := 0
		for strings.HasSuffix(name, "[]") {
			name = name[:len(name)-2]
			iters++
		}
		if name == "" || strings.ContainsAny(name, "[]") {
			return nil, fmt.Errorf("invalid path segment %q in %q", seg, s)
		}
		path = append(path, domain.PathStep{Field: name})
		for range iters {
			path = append(path, domain.PathStep{Iterate: true})
		}
	}
	return path, nil
}

// Eval implements [domain.PathNavigator].
//
// Each step maps over the current result set. A missing field or a step
// through an undefined branch stays a single undefined result, so a
// document without the path still contributes one (null) index key.
// Iterating a non-array value is a type mismatch.
func (pn *PathNavigator) Eval(root any, path domain.Path) ([]domain.Getter, error) {
	curr := []Value{NewValue(root)}

	for n, step := range path {
		next := make([]Value, 0, len(curr))
		for _, item := range curr {
			if !item.defined {
				next = append(next, item)
				continue
			}
			switch {
			case step.Field != "":
				doc, ok := item.v.(domain.Document)
				if !ok {
					if _, isArr := item.v.([]any); isArr {
						return nil, &domain.ErrTypeMismatch{
							Path: path[:n+1].String(),
							Want: "document",
							Got:  item.v,
						}
					}
					next = append(next, Undefined())
					continue
				}
				if !doc.Has(step.Field) {
					next = append(next, Undefined())
					continue
				}
				next = append(next, NewValue(doc.Get(step.Field)))
			case step.Iterate:
				arr, ok := item.v.([]any)
				if !ok {
					return nil, &domain.ErrTypeMismatch{
						Path: path[:n+1].String(),
						Want: "array",
						Got:  item.v,
					}
				}
				for _, el := range arr {
					next = append(next, NewValue(el))
				}
			default:
				return nil, fmt.Errorf("filtered step %q outside query context", path[:n+1])
			}
		}
		curr = next
	}

	res := make([]domain.Getter, len(curr))
	for n, v := range curr {
		res[n] = v
	}
	return res, nil
}
