// Package cursor contains the default [domain.Cursor] implementation.
//
// A cursor lazily pulls result documents from the executor's stage chain.
// Closing it stops the upstream iterator without consuming further input;
// Close is idempotent.
package cursor

import (
	"context"
	"iter"

	"github.com/nestdb/nestdb/adapter/decoder"
	"github.com/nestdb/nestdb/domain"
)

// Cursor implements domain.Cursor.
type Cursor struct {
	next    func() (domain.Document, error, bool)
	stop    func()
	dec     domain.Decoder
	doc     domain.Document
	err     error
	started bool
	closed  bool
}

// Option configures a [Cursor].
type Option func(*Cursor)

// WithDecoder sets the decoder backing Scan.
func WithDecoder(dec domain.Decoder) Option {
	return func(c *Cursor) { c.dec = dec }
}

// NewCursor returns a new implementation of Cursor pulling from the given
// result sequence.
func NewCursor(ctx context.Context, seq iter.Seq2[domain.Document, error], options ...Option) (domain.Cursor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	next, stop := iter.Pull2(seq)
	cur := &Cursor{
		next: next,
		stop: stop,
		dec:  decoder.NewDecoder(),
	}
	for _, option := range options {
		option(cur)
	}
	return cur, nil
}

// Next implements domain.Cursor.
func (c *Cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	doc, err, ok := c.next()
	if !ok {
		return false
	}
	if err != nil {
		c.err = err
		return false
	}
	c.doc = doc
	c.started = true
	return true
}

// Doc implements domain.Cursor.
func (c *Cursor) Doc() domain.Document {
	return c.doc
}

// Scan implements domain.Cursor.
func (c *Cursor) Scan(target any) error {
	if c.closed {
		return domain.ErrCursorClosed
	}
	if !c.started {
		return domain.ErrScanBeforeNext
	}
	return c.dec.Decode(c.doc, target)
}

// Err implements domain.Cursor.
func (c *Cursor) Err() error {
	return c.err
}

// Close implements domain.Cursor.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.stop()
	return nil
}
