package domain

// ScanNode is the leaf stage of a plan: a full table scan in primary key
// order, or an index scan when Seek is set. Both yield every qualifying
// document exactly once bound to Var, so the two forms are
// result-equivalent.
type ScanNode struct {
	Table  string
	Var    string
	Seek   *IndexSeek
	Forced bool
}

// GroupNode groups the binding stream by the key expressions (NULL keys
// group together) and computes the aggregate calls per group. It drains its
// input fully before emitting the first group.
type GroupNode struct {
	Keys []Expr
	Aggs []*Call
}

// Plan is a chain of stages: Scan, Filter, Unnest, Group/Aggregate, Project,
// Sort. Stages stream binding environments; Group and Sort are the only
// stages that materialize.
//
// Filter always re-applies the full residual predicate, also under an index
// scan: index entries are per array-element combination, so the seek only
// narrows the candidate set.
type Plan struct {
	Scan    ScanNode
	Filter  Expr
	Unnest  []UnnestBind
	Group   *GroupNode
	Project []SelectItem
	Sort    []OrderKey
}

// PreparedQuery is the product of Prepare: the query parsed and planned
// once. Prepared queries are immutable and safe for concurrent Execute
// calls.
type PreparedQuery struct {
	ID    string
	Text  string
	Query *Query
	Plan  *Plan
}

// Env is a binding environment: the named document values visible at one
// point of a plan. Environments are immutable; Bind layers a new binding
// over the receiver, so sibling rows never observe each other's variables.
type Env struct {
	parent *Env
	name   string
	value  any
	aggs   map[*Call]any
}

// Bind returns an environment extending e with name bound to value.
func (e *Env) Bind(name string, value any) *Env {
	return &Env{parent: e, name: name, value: value}
}

// Lookup resolves a variable, innermost binding first.
func (e *Env) Lookup(name string) (any, bool) {
	for env := e; env != nil; env = env.parent {
		if env.name == name {
			return env.value, true
		}
	}
	return nil, false
}

// WithAggregates returns an environment in which the group stage's computed
// aggregate values are visible to projection and sort expressions.
func (e *Env) WithAggregates(aggs map[*Call]any) *Env {
	return &Env{parent: e, aggs: aggs}
}

// Aggregate resolves a computed aggregate value for the given call node.
func (e *Env) Aggregate(c *Call) (any, bool) {
	for env := e; env != nil; env = env.parent {
		if env.aggs != nil {
			if v, ok := env.aggs[c]; ok {
				return v, true
			}
		}
	}
	return nil, false
}
