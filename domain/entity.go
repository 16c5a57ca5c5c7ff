// Package domain contains the interfaces, entities and functional options
// shared by every nestdb adapter.
//
// The core entities model a table of JSON-like documents identified by a
// composite primary key, secondary indexes whose key paths may traverse
// nested arrays, and the query plans produced for the SQL-like query surface.
package domain

import "strings"

// Key is a primary key: an ordered tuple of scalar values extracted from the
// table's key fields. Keys compare component-wise with the type-aware
// comparer.
type Key []any

// Record pairs a stored document with its primary key and its record number.
// Recnos increase monotonically per table and never repeat, which lets index
// scans deduplicate documents with a bitmap instead of comparing key tuples.
type Record struct {
	Key   Key
	Recno uint64
	Doc   Document
}

// PathStep is a single step of a path expression. Exactly one of the three
// forms is set: a field access, an array iteration ("[]"), or a filtered
// array iteration ("[predicate]", with $element bound to the element under
// test).
type PathStep struct {
	Field   string
	Iterate bool
	Filter  Expr
}

// Path is a parsed path expression: a sequence of steps applied left to
// right. Evaluating a path against a document yields a flat sequence of
// matching sub-values, possibly empty.
type Path []PathStep

// String renders the path in source notation.
func (p Path) String() string {
	var b strings.Builder
	for n, s := range p {
		switch {
		case s.Field != "":
			if n > 0 {
				b.WriteByte('.')
			}
			b.WriteString(s.Field)
		case s.Filter != nil:
			b.WriteByte('[')
			b.WriteString(s.Filter.String())
			b.WriteByte(']')
		case s.Iterate:
			b.WriteString("[]")
		}
	}
	return b.String()
}

// ScalarType is the declared type of an index key path. Index builds reject
// values of a different type instead of coercing them.
type ScalarType string

// Declared index key types.
const (
	TypeAny     ScalarType = "any"
	TypeInteger ScalarType = "integer"
	TypeNumber  ScalarType = "number"
	TypeString  ScalarType = "string"
	TypeBoolean ScalarType = "boolean"
)

// IndexKeyPath is one component of an index key: the path it extracts plus
// its declared scalar type. Raw keeps the source notation for diagnostics
// and dump files.
type IndexKeyPath struct {
	Raw  string
	Path Path
	Type ScalarType
}

// IndexDef is the DDL-equivalent structured definition of a secondary index.
//
// When a key path yields multiple array elements, entry generation takes the
// cross product across all multi-valued components, one entry per
// combination. UniqueKeysPerRow deduplicates key tuples contributed by the
// same document, for paths expected to identify one property per row.
type IndexDef struct {
	Name             string
	Keys             []IndexKeyPath
	UniqueKeysPerRow bool
}

// IndexEntry maps one key tuple to the primary key of the document that
// produced it. Entries of an index are ordered by key tuple.
type IndexEntry struct {
	Key     []any
	Primary Key
	Recno   uint64
}

// TableDef is the DDL-equivalent structured definition of a table: its name
// and the ordered list of top-level fields that form the primary key.
type TableDef struct {
	Name      string
	KeyFields []string
}

// SeekRange bounds a single key tuple component during an index seek.
type SeekRange struct {
	Low     any
	High    any
	LowInc  bool
	HighInc bool
}

// IndexSeek describes how an index scan seeks: equality values bind the
// leading key components and an optional range bounds the next one. Key
// components after the first unbound position cannot seek; they only
// post-filter.
type IndexSeek struct {
	Index  string
	EqVals []any
	Range  *SeekRange
}
