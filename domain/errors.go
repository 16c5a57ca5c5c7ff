package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by [Table.Get] and [Table.Delete] when no
	// document is stored under the given primary key.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicateKey is returned by [Table.Put] when a document already
	// exists under the given primary key.
	ErrDuplicateKey = errors.New("duplicate primary key")
	// ErrResourceExhausted is returned when an operation exceeds the
	// table's read or write unit budget. Callers are expected to back off
	// and retry; the store performs no implicit retry.
	ErrResourceExhausted = errors.New("operation throttled: unit budget exceeded")
	// ErrCursorClosed is returned when trying to perform operations on a
	// closed [Cursor].
	ErrCursorClosed = errors.New("cursor is closed")
	// ErrScanBeforeNext is returned when calling [Cursor.Scan] before
	// calling [Cursor.Next].
	ErrScanBeforeNext = errors.New("called Scan before calling Next")
	// ErrTargetNil is returned when a nil value is passed as the decode
	// target, for example when calling [Cursor.Scan].
	ErrTargetNil = errors.New("target interface is nil")
	// ErrTableExists is returned by [Store.CreateTable] when a table with
	// the same name already exists.
	ErrTableExists = errors.New("table already exists")
	// ErrTableNotFound is returned when an operation references a table
	// that has not been created.
	ErrTableNotFound = errors.New("table not found")
	// ErrIndexExists is returned by [Table.CreateIndex] when an index with
	// the same name already exists on the table.
	ErrIndexExists = errors.New("index already exists")
	// ErrIndexNotFound is returned when a FORCE_INDEX hint or a lookup
	// references an index that does not exist.
	ErrIndexNotFound = errors.New("index not found")
)

// ErrTypeMismatch is returned when a path step is applied to a value of an
// incompatible type, either during index key extraction or query evaluation.
// Absent fields are not a type mismatch; they propagate as undefined.
type ErrTypeMismatch struct {
	Path string
	Want string
	Got  any
}

// Error implements [error].
func (e *ErrTypeMismatch) Error() string {
	return fmt.Sprintf("type mismatch at %q: expected %s, got %T", e.Path, e.Want, e.Got)
}

// ErrParse is returned by [Store.Prepare] when the query text is malformed.
// It never surfaces at execute time.
type ErrParse struct {
	Pos  int
	Near string
	Msg  string
}

// Error implements [error].
func (e *ErrParse) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("parse error at offset %d: %s", e.Pos, e.Msg)
	}
	return fmt.Sprintf("parse error at offset %d near %q: %s", e.Pos, e.Near, e.Msg)
}

// ErrPlan is returned by [Store.Prepare] when a syntactically valid query
// cannot be planned, for example when a FORCE_INDEX hint names a missing
// index.
type ErrPlan struct {
	Query string
	Msg   string
}

// Error implements [error].
func (e *ErrPlan) Error() string {
	return fmt.Sprintf("cannot plan query: %s", e.Msg)
}

// ErrStage wraps an evaluation error with the executor stage and the
// expression that produced it, so a failed query can be diagnosed. Rows
// already delivered by the streaming plan are not retracted.
type ErrStage struct {
	Stage string
	Expr  string
	Err   error
}

// Error implements [error].
func (e *ErrStage) Error() string {
	if e.Expr == "" {
		return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s stage, expression %s: %v", e.Stage, e.Expr, e.Err)
}

// Unwrap exposes the wrapped evaluation error.
func (e *ErrStage) Unwrap() error { return e.Err }
