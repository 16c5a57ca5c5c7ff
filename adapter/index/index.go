// Package index contains the default [domain.Index] implementation.
//
// Entries live in an AVL tree ordered by key tuple, so equality and range
// lookups on a prefix of the tuple are ordered traversals. A document whose
// key paths reach multiple array elements contributes the cross product of
// the per-path value sequences, one entry per combination, unless the index
// deduplicates key tuples per row.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/dolmen-go/contextio"
	"github.com/vinicius-lino-figueiredo/bst"
	"github.com/vinicius-lino-figueiredo/bst/adapter/avl"

	"github.com/nestdb/nestdb/adapter/comparer"
	"github.com/nestdb/nestdb/adapter/hasher"
	"github.com/nestdb/nestdb/adapter/pathnav"
	"github.com/nestdb/nestdb/domain"
	"github.com/nestdb/nestdb/pkg/uncomparable"
)

// Index implements [domain.Index].
type Index struct {
	def domain.IndexDef
	// Exported to allow testing. Should not be a problem because Index is
	// used as interface.
	Tree          bst.BST[any, domain.IndexEntry]
	comparer      domain.Comparer
	bstComparer   bst.Comparer[any, domain.IndexEntry]
	hasher        domain.Hasher
	pathNavigator domain.PathNavigator
}

// Option configures an [Index].
type Option func(*Index)

// WithComparer sets the comparer ordering key tuples.
func WithComparer(c domain.Comparer) Option {
	return func(i *Index) { i.comparer = c }
}

// WithHasher sets the hasher used for per-row key tuple deduplication.
func WithHasher(h domain.Hasher) Option {
	return func(i *Index) { i.hasher = h }
}

// WithPathNavigator sets the navigator evaluating key paths.
func WithPathNavigator(p domain.PathNavigator) Option {
	return func(i *Index) { i.pathNavigator = p }
}

// NewIndex returns a new implementation of domain.Index for the given
// definition. The definition's paths must already be parsed.
func NewIndex(def domain.IndexDef, options ...Option) (domain.Index, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("index definition has no name")
	}
	if len(def.Keys) == 0 {
		return nil, fmt.Errorf("index %q has no key paths", def.Name)
	}
	i := &Index{
		def:           def,
		comparer:      comparer.NewComparer(),
		hasher:        hasher.NewHasher(),
		pathNavigator: pathnav.NewPathNavigator(),
	}
	for _, option := range options {
		option(i)
	}
	i.bstComparer = NewBSTComparer(i.comparer)
	i.Tree = avl.NewBST(false, 8, i.bstComparer)
	return i, nil
}

// Def implements [domain.Index].
func (i *Index) Def() domain.IndexDef {
	return i.def
}

// keyTuples evaluates every key path against the document and returns the
// cross product of the per-path value sequences. An undefined path
// contributes a null component. Tuples repeat per combination unless the
// index is unique-keys-per-row, in which case duplicates from the same
// document collapse.
func (i *Index) keyTuples(doc domain.Document) ([][]any, error) {
	columns := make([][]any, len(i.def.Keys))
	for n, keyPath := range i.def.Keys {
		values, err := i.pathNavigator.Eval(doc, keyPath.Path)
		if err != nil {
			return nil, fmt.Errorf("index %s, path %s: %w", i.def.Name, keyPath.Raw, err)
		}
		col := make([]any, 0, len(values))
		for _, g := range values {
			v, defined := g.Get()
			if !defined {
				v = nil
			}
			if err := checkType(keyPath, v); err != nil {
				return nil, err
			}
			col = append(col, v)
		}
		if len(col) == 0 {
			col = append(col, nil)
		}
		columns[n] = col
	}

	tuples := crossProduct(columns)
	if !i.def.UniqueKeysPerRow {
		return tuples, nil
	}

	seen := uncomparable.New[struct{}](i.hasher, i.comparer)
	dedup := tuples[:0]
	for _, t := range tuples {
		if _, ok, err := seen.Get(t); err != nil {
			return nil, err
		} else if ok {
			continue
		}
		if err := seen.Set(t, struct{}{}); err != nil {
			return nil, err
		}
		dedup = append(dedup, t)
	}
	return dedup, nil
}

func checkType(kp domain.IndexKeyPath, v any) error {
	if v == nil {
		return nil
	}
	ok := true
	switch kp.Type {
	case domain.TypeInteger:
		switch v.(type) {
		case int, int32, int64:
		default:
			ok = false
		}
	case domain.TypeNumber:
		switch v.(type) {
		case int, int32, int64, float32, float64:
		default:
			ok = false
		}
	case domain.TypeString:
		_, ok = v.(string)
	case domain.TypeBoolean:
		_, ok = v.(bool)
	}
	if !ok {
		return &domain.ErrTypeMismatch{Path: kp.Raw, Want: string(kp.Type), Got: v}
	}
	return nil
}

// crossProduct walks the columns like an odometer, materializing one tuple
// per combination.
func crossProduct(columns [][]any) [][]any {
	total := 1
	for _, col := range columns {
		total *= len(col)
	}
	tuples := make([][]any, 0, total)
	idx := make([]int, len(columns))
	for {
		t := make([]any, len(columns))
		for n, col := range columns {
			t[n] = col[idx[n]]
		}
		tuples = append(tuples, t)

		pos := len(columns) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(columns[pos]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return tuples
		}
	}
}

// Insert implements [domain.Index].
func (i *Index) Insert(ctx context.Context, rec domain.Record) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	tuples, err := i.keyTuples(rec.Doc)
	if err != nil {
		return err
	}

	inserted := make([][]any, 0, len(tuples))
	for _, t := range tuples {
		entry := domain.IndexEntry{Key: t, Primary: rec.Key, Recno: rec.Recno}
		if err = i.Tree.Insert(t, entry); err != nil {
			break
		}
		inserted = append(inserted, t)
	}
	if err != nil {
		nErrs := make([]error, 1, len(inserted)+1)
		nErrs[0] = err
		entry := domain.IndexEntry{Key: nil, Primary: rec.Key, Recno: rec.Recno}
		for _, t := range inserted {
			if dErr := i.Tree.Delete(t, &entry); dErr != nil {
				nErrs = append(nErrs, dErr)
			}
		}
		if len(nErrs) > 1 {
			return errors.Join(nErrs...)
		}
		return err
	}
	return nil
}

// Remove implements [domain.Index].
func (i *Index) Remove(ctx context.Context, rec domain.Record) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	tuples, err := i.keyTuples(rec.Doc)
	if err != nil {
		return err
	}

	var errs []error
	entry := domain.IndexEntry{Primary: rec.Key, Recno: rec.Recno}
	for _, t := range tuples {
		if err := i.Tree.Delete(t, &entry); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Lookup implements [domain.Index].
//
// The seek binds the leading tuple components by equality and may bound the
// next one with a range; the [comparer.Max] sentinel closes the prefix so
// every entry sharing it falls inside the bounds.
func (i *Index) Lookup(ctx context.Context, seek domain.IndexSeek) (iter.Seq2[domain.IndexEntry, error], error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if len(seek.EqVals) == 0 && seek.Range == nil {
		return i.Entries(ctx), nil
	}

	var qry bst.Query[any]

	low := append([]any{}, seek.EqVals...)
	high := append([]any{}, seek.EqVals...)

	if r := seek.Range; r != nil {
		if r.Low != nil {
			lowTuple := append(low, r.Low)
			if !r.LowInc {
				// entries equal in this component but longer
				// sort after [prefix, low], so close the prefix
				lowTuple = append(lowTuple, comparer.Max{})
			}
			qry.GreaterThan = &bst.Bound[any]{Value: lowTuple, IncludeEqual: r.LowInc}
		} else {
			qry.GreaterThan = &bst.Bound[any]{Value: low, IncludeEqual: true}
		}
		if r.High != nil {
			highTuple := append(high, r.High)
			if r.HighInc {
				highTuple = append(highTuple, comparer.Max{})
			}
			qry.LowerThan = &bst.Bound[any]{Value: highTuple, IncludeEqual: false}
		} else {
			qry.LowerThan = &bst.Bound[any]{Value: append(high, comparer.Max{}), IncludeEqual: false}
		}
	} else {
		qry.GreaterThan = &bst.Bound[any]{Value: low, IncludeEqual: true}
		qry.LowerThan = &bst.Bound[any]{Value: append(high, comparer.Max{}), IncludeEqual: false}
	}

	// Range the tree from the lower bound only and cut at the upper bound
	// here. A two-sided tree query faults when the bounds select nothing.
	upper := qry.LowerThan
	qry.LowerThan = nil

	return func(yield func(domain.IndexEntry, error) bool) {
		for entry, err := range i.Tree.Query(qry) {
			select {
			case <-ctx.Done():
				yield(domain.IndexEntry{}, ctx.Err())
				return
			default:
			}
			if err != nil {
				yield(domain.IndexEntry{}, err)
				return
			}
			cmp, err := i.comparer.Compare(entry.Key, upper.Value)
			if err != nil {
				yield(domain.IndexEntry{}, err)
				return
			}
			if cmp > 0 || (cmp == 0 && !upper.IncludeEqual) {
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}, nil
}

// Entries implements [domain.Index].
func (i *Index) Entries(ctx context.Context) iter.Seq2[domain.IndexEntry, error] {
	return func(yield func(domain.IndexEntry, error) bool) {
		for entry := range i.Tree.GetAll() {
			select {
			case <-ctx.Done():
				yield(domain.IndexEntry{}, ctx.Err())
				return
			default:
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// NumKeys implements [domain.Index].
func (i *Index) NumKeys() int {
	return i.Tree.GetNumberOfKeys()
}

// Dump implements [domain.Index].
func (i *Index) Dump(ctx context.Context, w io.Writer) error {
	cw := contextio.NewWriter(ctx, w)
	for entry, err := range i.Entries(ctx) {
		if err != nil {
			return err
		}
		line, err := json.Marshal(dumpLine{Key: entry.Key, Primary: entry.Primary})
		if err != nil {
			return err
		}
		if _, err := cw.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}

type dumpLine struct {
	Key     []any      `json:"key"`
	Primary domain.Key `json:"primary"`
}
