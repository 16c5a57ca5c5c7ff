package domain

import (
	"context"
	"io"
	"iter"
)

// Comparer provides type-ranked ordering for every value a document can
// hold. Values of different types order by type rank, so index key tuples
// with mixed types still order deterministically.
type Comparer interface {
	// Compare returns -1, 0, or 1 based on the comparison of two values.
	Compare(any, any) (int, error)
	// Comparable returns true if two values compare meaningfully as
	// scalars (both numbers, both strings, or both booleans).
	Comparable(any, any) bool
}

// Hasher generates hash values for grouping keys and key tuple
// deduplication. Equal values must hash equal; collisions are resolved with
// the comparer.
type Hasher interface {
	// Hash generates a hash value for the given data.
	Hash(any) (uint64, error)
}

// Decoder converts result documents into user-defined Go values.
type Decoder interface {
	// Decode converts from one data representation to another.
	Decode(any, any) error
}

// Getter represents a path evaluation result that can be undefined. An unset
// field, an out-of-bounds element, or a step through a missing branch counts
// as undefined; an explicit null does not.
type Getter interface {
	// Get returns the value and whether it counts as defined.
	Get() (value any, defined bool)
}

// Document represents a JSON-like record: a mapping from field names to
// scalars, arrays ([]any) and nested Documents. Stored documents are
// immutable once inserted; queries operate on the stored values directly and
// must not mutate them.
type Document interface {
	// D returns the subdocument for the given key, if any.
	D(string) Document
	// Get returns the value under the given key, or nil if unset.
	Get(string) any
	// Set sets the value under the given key.
	Set(string, any)
	// Unset unsets the value under the given key.
	Unset(string)
	// Iter returns an unordered sequence of key-value pairs.
	Iter() iter.Seq2[string, any]
	// Keys returns an unordered sequence of keys.
	Keys() iter.Seq[string]
	// Values returns an unordered sequence of values.
	Values() iter.Seq[any]
	// Has reports whether a value is set under the given key.
	Has(string) bool
	// Len returns the number of set fields.
	Len() int
}

// PathNavigator parses and evaluates DDL-notation paths: dotted field steps
// and explicit "[]" array iteration, no filter steps. Index key extraction
// uses it; query expressions evaluate through [Evaluator] instead.
type PathNavigator interface {
	// ParsePath parses dotted/bracketed source notation into a Path.
	ParsePath(string) (Path, error)
	// Eval evaluates the path against a root value and returns the flat
	// sequence of results. Absent fields yield undefined getters; "[]"
	// over a non-array is a type mismatch.
	Eval(any, Path) ([]Getter, error)
}

// Evaluator evaluates query expressions against a binding environment,
// including implicit array iteration, filtered path steps, quantified
// comparisons and the sequence functions.
type Evaluator interface {
	// Eval produces the single-value result of an expression: an empty
	// sequence is undefined, a singleton is its value, and a longer
	// sequence stays a sequence ([]any).
	Eval(*Env, Expr) (any, bool, error)
	// EvalSeq produces the flattened sequence result of an expression.
	EvalSeq(*Env, Expr) ([]any, error)
	// Truth evaluates an expression as a filter predicate: unknown and
	// undefined count as false.
	Truth(*Env, Expr) (bool, error)
}

// Index provides ordered lookups over key tuples extracted from stored
// documents. Entry maintenance happens synchronously inside the owning
// table's writes, so an index is never observably stale relative to a
// completed Put or Delete.
type Index interface {
	// Def returns the index definition.
	Def() IndexDef
	// Insert adds the record's entries, one per key tuple combination.
	Insert(context.Context, Record) error
	// Remove drops every entry owned by the record.
	Remove(context.Context, Record) error
	// Lookup seeks with the given equality prefix and optional range and
	// returns the ordered entry sequence.
	Lookup(context.Context, IndexSeek) (iter.Seq2[IndexEntry, error], error)
	// Entries returns every entry in key tuple order.
	Entries(context.Context) iter.Seq2[IndexEntry, error]
	// NumKeys returns the number of distinct key tuples.
	NumKeys() int
	// Dump writes the ordered (key tuple, primary key) entry list as JSON
	// lines, for diffing against an independently computed expectation.
	Dump(context.Context, io.Writer) error
}

// Table is the document store for one table: documents keyed by primary key,
// plus the secondary indexes defined on it.
type Table interface {
	// Def returns the table definition.
	Def() TableDef
	// Put inserts a document, extracting the primary key from the key
	// fields. Fails with ErrDuplicateKey if the key is already present.
	// All indexes are updated before Put returns.
	Put(context.Context, any) (Key, error)
	// Get returns the document stored under the key, or ErrNotFound.
	Get(context.Context, Key) (Document, error)
	// Delete removes the document and its index entries, reporting
	// whether a document was present.
	Delete(context.Context, Key) (bool, error)
	// Fetch returns the full record under the key, or ErrNotFound.
	Fetch(context.Context, Key) (Record, error)
	// Scan returns every record in primary key order. The sequence is a
	// snapshot: concurrent writes do not affect an in-flight scan.
	Scan(context.Context) (iter.Seq2[Record, error], error)
	// Len returns the number of stored documents.
	Len() int
	// CreateIndex validates the definition, builds entries for every
	// stored document and registers the index.
	CreateIndex(context.Context, IndexDef) error
	// DropIndex removes an index by name, reporting whether it existed.
	DropIndex(context.Context, string) (bool, error)
	// Index returns a registered index by name.
	Index(string) (Index, bool)
	// Indexes returns every registered index.
	Indexes() []Index
}

// Parser turns query text into an AST. Malformed text fails with ErrParse at
// prepare time, never at execute time.
type Parser interface {
	Parse(string) (*Query, error)
}

// Planner chooses between a full table scan and an eligible index for a
// parsed query, and renders plans for humans.
type Planner interface {
	// Plan builds the stage chain for the query against the table.
	Plan(*Query, Table) (*Plan, error)
	// Explain renders a human-readable plan tree.
	Explain(*Plan) string
}

// Executor runs a plan against a table, streaming result documents through
// a cursor.
type Executor interface {
	Execute(context.Context, Table, *Plan) (Cursor, error)
}

// Cursor provides lazy iteration over query results. Closing a cursor early
// stops upstream stages without consuming further input; Close is
// idempotent.
type Cursor interface {
	// Next advances to the next result, returning true if one is
	// available.
	Next() bool
	// Doc returns the current result document.
	Doc() Document
	// Scan decodes the current result into the target value.
	Scan(any) error
	// Err returns any error that occurred during iteration.
	Err() error
	// Close releases cursor resources and should be called when done.
	Close() error
}

// Store is the embeddable engine facade: administrative DDL calls, document
// access through tables, and the prepare/execute query surface.
type Store interface {
	// CreateTable registers a new table.
	CreateTable(context.Context, TableDef) error
	// DropTable removes a table and its indexes, reporting whether it
	// existed.
	DropTable(context.Context, string) (bool, error)
	// CreateIndex builds a new index on the named table.
	CreateIndex(context.Context, string, IndexDef) error
	// Table returns a table by name.
	Table(string) (Table, bool)
	// Prepare parses and plans a query once. The result is cached by
	// query text and safe for repeated Execute calls.
	Prepare(context.Context, string) (*PreparedQuery, error)
	// Execute runs a prepared query and returns a lazy result cursor.
	Execute(context.Context, *PreparedQuery) (Cursor, error)
	// Explain renders the prepared query's plan.
	Explain(*PreparedQuery) string
}

// DocumentFactory constructs [Document] instances from structured data
// types. If nil is provided, returns an empty document.
type DocumentFactory = func(any) (Document, error)
