// Package nestdb provides an embedded query engine for JSON documents with
// nested arrays.
//
// A store holds named tables of documents keyed by declared key fields.
// Secondary indexes cover paths that traverse arrays, producing one entry
// per combination of array elements, and a small SQL-like query language
// with quantified comparisons, array filters, unnesting, grouping and
// ordering runs over them.
//
// The basic usage starts with creating a new [Store] instance, which can be
// done by calling [NewStore], registering tables and indexes, and then
// preparing and executing queries:
//
//	store, err := nestdb.NewStore()
//	...
//	err = store.CreateTable(ctx, nestdb.TableDef{Name: "users", KeyFields: []string{"id"}})
//	...
//	pq, err := store.Prepare(ctx, `select count(*) from users $u where $u.age >= 18`)
//	...
//	cur, err := store.Execute(ctx, pq)
package nestdb

import (
	"github.com/nestdb/nestdb/adapter/catalog"
	"github.com/nestdb/nestdb/domain"
)

var (
	// ErrNotFound is returned when a table lookup by key matches no
	// document.
	ErrNotFound = domain.ErrNotFound
	// ErrDuplicateKey is returned when inserting a document whose key is
	// already present in the table.
	ErrDuplicateKey = domain.ErrDuplicateKey
	// ErrResourceExhausted is returned when an operation exceeds the
	// table's configured read or write units. The operation had no
	// effect and can be retried.
	ErrResourceExhausted = domain.ErrResourceExhausted
	// ErrCursorClosed is returned when trying to perform operations on a
	// closed [Cursor].
	ErrCursorClosed = domain.ErrCursorClosed
	// ErrScanBeforeNext is returned when calling [Cursor.Scan] before
	// calling [Cursor.Next].
	ErrScanBeforeNext = domain.ErrScanBeforeNext
	// ErrTargetNil is returned when user provides a nil value as a target
	// to decode data, for example, calling [Cursor.Scan].
	ErrTargetNil = domain.ErrTargetNil
	// ErrTableExists is returned when creating a table under a name that
	// is already registered.
	ErrTableExists = domain.ErrTableExists
	// ErrTableNotFound is returned when addressing a table that was never
	// created or has been dropped.
	ErrTableNotFound = domain.ErrTableNotFound
	// ErrIndexExists is returned when creating an index under a name the
	// table already carries.
	ErrIndexExists = domain.ErrIndexExists
	// ErrIndexNotFound is returned when dropping or forcing an index the
	// table does not carry.
	ErrIndexNotFound = domain.ErrIndexNotFound
)

// ErrTypeMismatch is returned when a value's type contradicts a declared
// index key type or an operation's expectations.
type ErrTypeMismatch = domain.ErrTypeMismatch

// ErrParse is returned by [Store.Prepare] when query text is malformed. It
// carries the byte offset and the text near it.
type ErrParse = domain.ErrParse

// ErrPlan is returned by [Store.Prepare] when a parsed query cannot be
// planned, for example when a FORCE_INDEX hint names an unknown index.
type ErrPlan = domain.ErrPlan

// ErrStage wraps an evaluation error with the execution stage it surfaced
// in.
type ErrStage = domain.ErrStage

// NewStore creates a new Store instance with the provided configuration
// options:
//
// - [WithComparer]: sets the comparer for value comparison operations.
//
// - [WithHasher]: sets the hasher for grouping keys and index key tuples.
//
// - [WithDecoder]: sets the decoder for converting result documents.
//
// - [WithDocumentFactory]: sets the function for creating [Document]
// instances.
//
// - [WithPathNavigator]: sets the navigator parsing and evaluating index
// key paths.
//
// - [WithParser]: sets the query parser.
//
// - [WithPlanner]: sets the query planner.
//
// - [WithExecutor]: sets the plan executor.
//
// - [WithReadUnits]: caps read operations per second per table.
//
// - [WithWriteUnits]: caps write operations per second per table.
//
// - [WithBuildWorkers]: sets the worker pool size for index maintenance.
//
// - [WithPreparedCacheSize]: caps the prepared query cache.
func NewStore(options ...StoreOption) (Store, error) {
	return catalog.NewCatalog(options...)
}

// Store is the embeddable engine facade: administrative DDL calls, document
// access through tables, and the prepare/execute query surface.
//
// All operations are safe to use concurrently from multiple goroutines.
type Store = domain.Store

// Table holds documents ordered by key and maintains the table's secondary
// indexes on every write.
type Table = domain.Table

// Index maps key tuples evaluated over array paths to the primary keys of
// the documents that produced them.
type Index = domain.Index

// Cursor provides lazy iteration over query results.
type Cursor = domain.Cursor

// Document represents a JSON-like record with ordered fields.
type Document = domain.Document

// Key is an ordered tuple of key field values identifying a document.
type Key = domain.Key

// TableDef declares a table name and the top-level fields forming its
// primary key.
type TableDef = domain.TableDef

// IndexDef declares a named index over one or more key paths.
type IndexDef = domain.IndexDef

// IndexKeyPath declares one indexed path and an optional scalar type
// constraint.
type IndexKeyPath = domain.IndexKeyPath

// PreparedQuery is the reusable product of [Store.Prepare]: parsed text and
// a bound plan.
type PreparedQuery = domain.PreparedQuery

// Comparer provides ordering and comparison for different data types.
type Comparer = domain.Comparer

// Hasher generates hash values for grouping and deduplication.
type Hasher = domain.Hasher

// Decoder converts between different data representations.
type Decoder = domain.Decoder

// PathNavigator parses and evaluates index key paths.
type PathNavigator = domain.PathNavigator

// Parser turns query text into an AST.
type Parser = domain.Parser

// Planner chooses the access path and builds the stage chain for a parsed
// query.
type Planner = domain.Planner

// Executor runs plans against tables.
type Executor = domain.Executor

// DocumentFactory represents a [Document] constructor that can be
// reimplemented. It should accept structured data types and create an
// equivalent [Document], respecting the given structure. If nil is given as
// argument, a document of length 0 should be returned.
type DocumentFactory = domain.DocumentFactory

// StoreOption configures store behavior through the functional options
// pattern.
type StoreOption = domain.StoreOption

// WithComparer sets the comparer for value comparison operations.
func WithComparer(c Comparer) StoreOption {
	return domain.WithComparer(c)
}

// WithHasher sets the hasher for grouping keys and index key tuples.
func WithHasher(h Hasher) StoreOption {
	return domain.WithHasher(h)
}

// WithDecoder sets the decoder for converting result documents.
func WithDecoder(d Decoder) StoreOption {
	return domain.WithDecoder(d)
}

// WithDocumentFactory sets the factory function for creating [Document]
// instances.
func WithDocumentFactory(f DocumentFactory) StoreOption {
	return domain.WithDocumentFactory(f)
}

// WithPathNavigator sets the navigator parsing and evaluating index key
// paths.
func WithPathNavigator(p PathNavigator) StoreOption {
	return domain.WithPathNavigator(p)
}

// WithParser sets the query parser.
func WithParser(p Parser) StoreOption {
	return domain.WithParser(p)
}

// WithPlanner sets the query planner.
func WithPlanner(p Planner) StoreOption {
	return domain.WithPlanner(p)
}

// WithExecutor sets the plan executor.
func WithExecutor(e Executor) StoreOption {
	return domain.WithExecutor(e)
}

// WithReadUnits caps read operations per second per table. Zero disables
// throttling.
func WithReadUnits(n int) StoreOption {
	return domain.WithReadUnits(n)
}

// WithWriteUnits caps write operations per second per table. Zero disables
// throttling.
func WithWriteUnits(n int) StoreOption {
	return domain.WithWriteUnits(n)
}

// WithBuildWorkers sets the worker pool size for index maintenance. Zero
// means one worker per CPU.
func WithBuildWorkers(n int) StoreOption {
	return domain.WithBuildWorkers(n)
}

// WithPreparedCacheSize caps the prepared query cache. Zero uses the
// default size.
func WithPreparedCacheSize(n int) StoreOption {
	return domain.WithPreparedCacheSize(n)
}
