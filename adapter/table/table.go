// Package table contains the default [domain.Table] implementation.
//
// Documents live in a unique AVL tree keyed by primary key. Secondary index
// maintenance happens inside the write path, fanned out over a shared worker
// pool, so every index reflects a completed write before Put or Delete
// returns. Optional read and write rate limits fail fast with
// [domain.ErrResourceExhausted] instead of queueing.
package table

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/panjf2000/ants/v2"
	"github.com/vinicius-lino-figueiredo/bst"
	"github.com/vinicius-lino-figueiredo/bst/adapter/avl"
	"golang.org/x/time/rate"

	"github.com/nestdb/nestdb/adapter/comparer"
	"github.com/nestdb/nestdb/adapter/data"
	"github.com/nestdb/nestdb/adapter/index"
	"github.com/nestdb/nestdb/adapter/pathnav"
	"github.com/nestdb/nestdb/domain"
	"github.com/nestdb/nestdb/pkg/ctxsync"
)

// IndexFactory builds the index implementation for a definition.
type IndexFactory func(domain.IndexDef) (domain.Index, error)

// Table implements [domain.Table].
type Table struct {
	def domain.TableDef
	// Exported to allow testing. Should not be a problem because Table is
	// used as interface.
	Tree          bst.BST[any, domain.Record]
	comparer      domain.Comparer
	bstComparer   bst.Comparer[any, domain.Record]
	factory       domain.DocumentFactory
	pathNavigator domain.PathNavigator
	indexFactory  IndexFactory
	executor      *ctxsync.Mutex
	indexes       map[string]domain.Index
	order         []string
	recno         uint64
	readLimiter   *rate.Limiter
	writeLimiter  *rate.Limiter
	pool          *ants.Pool
}

// Option configures a [Table].
type Option func(*Table)

// WithComparer sets the comparer ordering primary keys.
func WithComparer(c domain.Comparer) Option {
	return func(t *Table) { t.comparer = c }
}

// WithDocumentFactory sets the factory converting Put sources into
// documents.
func WithDocumentFactory(f domain.DocumentFactory) Option {
	return func(t *Table) { t.factory = f }
}

// WithPathNavigator sets the navigator parsing index key paths.
func WithPathNavigator(p domain.PathNavigator) Option {
	return func(t *Table) { t.pathNavigator = p }
}

// WithIndexFactory sets the factory building secondary indexes.
func WithIndexFactory(f IndexFactory) Option {
	return func(t *Table) { t.indexFactory = f }
}

// WithReadUnits caps reads at n documents per second. Zero means unlimited.
func WithReadUnits(n int) Option {
	return func(t *Table) {
		if n > 0 {
			t.readLimiter = rate.NewLimiter(rate.Limit(n), n)
		}
	}
}

// WithWriteUnits caps writes at n documents per second. Zero means
// unlimited.
func WithWriteUnits(n int) Option {
	return func(t *Table) {
		if n > 0 {
			t.writeLimiter = rate.NewLimiter(rate.Limit(n), n)
		}
	}
}

// WithPool sets the worker pool fanning index maintenance out across the
// table's indexes. Without one, maintenance runs inline.
func WithPool(pool *ants.Pool) Option {
	return func(t *Table) { t.pool = pool }
}

// NewTable returns a new implementation of domain.Table.
func NewTable(def domain.TableDef, options ...Option) (domain.Table, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("table definition has no name")
	}
	if len(def.KeyFields) == 0 {
		return nil, fmt.Errorf("table %q has no key fields", def.Name)
	}
	t := &Table{
		def:           def,
		comparer:      comparer.NewComparer(),
		factory:       data.NewDocument,
		pathNavigator: pathnav.NewPathNavigator(),
		executor:      ctxsync.NewMutex(),
		indexes:       map[string]domain.Index{},
	}
	for _, option := range options {
		option(t)
	}
	if t.indexFactory == nil {
		t.indexFactory = func(def domain.IndexDef) (domain.Index, error) {
			return index.NewIndex(def,
				index.WithComparer(t.comparer),
				index.WithPathNavigator(t.pathNavigator),
			)
		}
	}
	t.bstComparer = NewBSTComparer(t.comparer)
	t.Tree = avl.NewBST(true, 8, t.bstComparer)
	return t, nil
}

// Def implements [domain.Table].
func (t *Table) Def() domain.TableDef {
	return t.def
}

func (t *Table) extractKey(doc domain.Document) (domain.Key, error) {
	key := make(domain.Key, len(t.def.KeyFields))
	for n, field := range t.def.KeyFields {
		v := doc.Get(field)
		if v == nil {
			return nil, fmt.Errorf("table %s: document has no key field %q", t.def.Name, field)
		}
		key[n] = v
	}
	return key, nil
}

// Put implements [domain.Table].
func (t *Table) Put(ctx context.Context, source any) (domain.Key, error) {
	if t.writeLimiter != nil && !t.writeLimiter.Allow() {
		return nil, domain.ErrResourceExhausted
	}

	doc, err := t.factory(source)
	if err != nil {
		return nil, err
	}
	key, err := t.extractKey(doc)
	if err != nil {
		return nil, err
	}

	if err := t.executor.LockWithContext(ctx); err != nil {
		return nil, err
	}
	defer t.executor.Unlock()

	t.recno++
	rec := domain.Record{Key: key, Recno: t.recno, Doc: doc}
	if err := t.Tree.Insert(any(key), rec); err != nil {
		if e := new(bst.ErrUniqueViolated); errors.As(err, e) {
			return nil, fmt.Errorf("%w: %w", domain.ErrDuplicateKey, err)
		}
		return nil, err
	}

	if err := t.fanOut(ctx, rec, domain.Index.Insert, domain.Index.Remove); err != nil {
		_ = t.Tree.Delete(any(key), &rec)
		return nil, err
	}
	return key, nil
}

// fanOut applies op to every index through the worker pool. When any index
// fails, undo reverts the ones that succeeded.
func (t *Table) fanOut(ctx context.Context, rec domain.Record, op, undo func(domain.Index, context.Context, domain.Record) error) error {
	idxs := t.indexList()
	if len(idxs) == 0 {
		return nil
	}

	errs := make([]error, len(idxs))
	wg := ctxsync.NewWaitGroup()
	for n, idx := range idxs {
		task := func() {
			defer wg.Done()
			errs[n] = op(idx, ctx, rec)
		}
		wg.Add(1)
		if t.pool == nil {
			task()
			continue
		}
		if err := t.pool.Submit(task); err != nil {
			errs[n] = err
			wg.Done()
		}
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		sub := context.WithoutCancel(ctx)
		for n, idx := range idxs {
			if errs[n] == nil {
				_ = undo(idx, sub, rec)
			}
		}
		return err
	}
	return nil
}

func (t *Table) indexList() []domain.Index {
	idxs := make([]domain.Index, len(t.order))
	for n, name := range t.order {
		idxs[n] = t.indexes[name]
	}
	return idxs
}

func (t *Table) search(key domain.Key) (domain.Record, bool, error) {
	node, err := t.Tree.Search(any(key))
	if err != nil {
		return domain.Record{}, false, err
	}
	if node == nil {
		return domain.Record{}, false, nil
	}
	values := node.Values()
	if len(values) == 0 {
		return domain.Record{}, false, nil
	}
	return values[0], true, nil
}

// Get implements [domain.Table].
func (t *Table) Get(ctx context.Context, key domain.Key) (domain.Document, error) {
	rec, err := t.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	return rec.Doc, nil
}

// Fetch implements [domain.Table].
func (t *Table) Fetch(ctx context.Context, key domain.Key) (domain.Record, error) {
	if t.readLimiter != nil && !t.readLimiter.Allow() {
		return domain.Record{}, domain.ErrResourceExhausted
	}

	if err := t.executor.LockWithContext(ctx); err != nil {
		return domain.Record{}, err
	}
	defer t.executor.Unlock()

	rec, found, err := t.search(key)
	if err != nil {
		return domain.Record{}, err
	}
	if !found {
		return domain.Record{}, fmt.Errorf("table %s, key %v: %w", t.def.Name, key, domain.ErrNotFound)
	}
	return rec, nil
}

// Delete implements [domain.Table].
func (t *Table) Delete(ctx context.Context, key domain.Key) (bool, error) {
	if t.writeLimiter != nil && !t.writeLimiter.Allow() {
		return false, domain.ErrResourceExhausted
	}

	if err := t.executor.LockWithContext(ctx); err != nil {
		return false, err
	}
	defer t.executor.Unlock()

	rec, found, err := t.search(key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	if err := t.fanOut(ctx, rec, domain.Index.Remove, domain.Index.Insert); err != nil {
		return false, err
	}
	if err := t.Tree.Delete(any(key), &rec); err != nil {
		_ = t.fanOut(context.WithoutCancel(ctx), rec, domain.Index.Insert, domain.Index.Remove)
		return false, err
	}
	return true, nil
}

// Scan implements [domain.Table].
//
// The returned sequence iterates a snapshot taken under the table lock, so
// writes issued after Scan returns do not show up in it.
func (t *Table) Scan(ctx context.Context) (iter.Seq2[domain.Record, error], error) {
	if err := t.executor.LockWithContext(ctx); err != nil {
		return nil, err
	}

	recs := make([]domain.Record, 0, t.Tree.GetNumberOfKeys())
	for rec := range t.Tree.GetAll() {
		if t.readLimiter != nil && !t.readLimiter.Allow() {
			t.executor.Unlock()
			return nil, domain.ErrResourceExhausted
		}
		recs = append(recs, rec)
	}
	t.executor.Unlock()

	return func(yield func(domain.Record, error) bool) {
		for _, rec := range recs {
			select {
			case <-ctx.Done():
				yield(domain.Record{}, ctx.Err())
				return
			default:
			}
			if !yield(rec, nil) {
				return
			}
		}
	}, nil
}

// Len implements [domain.Table].
func (t *Table) Len() int {
	t.executor.Lock()
	defer t.executor.Unlock()
	return t.Tree.GetNumberOfKeys()
}

// CreateIndex implements [domain.Table].
func (t *Table) CreateIndex(ctx context.Context, def domain.IndexDef) error {
	for n, kp := range def.Keys {
		if kp.Path != nil {
			continue
		}
		p, err := t.pathNavigator.ParsePath(kp.Raw)
		if err != nil {
			return err
		}
		def.Keys[n].Path = p
	}

	if err := t.executor.LockWithContext(ctx); err != nil {
		return err
	}
	defer t.executor.Unlock()

	if _, ok := t.indexes[def.Name]; ok {
		return fmt.Errorf("%w: %s", domain.ErrIndexExists, def.Name)
	}

	idx, err := t.indexFactory(def)
	if err != nil {
		return err
	}
	for rec := range t.Tree.GetAll() {
		if err := idx.Insert(ctx, rec); err != nil {
			return err
		}
	}

	t.indexes[def.Name] = idx
	t.order = append(t.order, def.Name)
	return nil
}

// DropIndex implements [domain.Table].
func (t *Table) DropIndex(ctx context.Context, name string) (bool, error) {
	if err := t.executor.LockWithContext(ctx); err != nil {
		return false, err
	}
	defer t.executor.Unlock()

	if _, ok := t.indexes[name]; !ok {
		return false, nil
	}
	delete(t.indexes, name)
	for n, o := range t.order {
		if o == name {
			t.order = append(t.order[:n], t.order[n+1:]...)
			break
		}
	}
	return true, nil
}

// Index implements [domain.Table].
func (t *Table) Index(name string) (domain.Index, bool) {
	t.executor.Lock()
	defer t.executor.Unlock()
	idx, ok := t.indexes[name]
	return idx, ok
}

// Indexes implements [domain.Table].
func (t *Table) Indexes() []domain.Index {
	t.executor.Lock()
	defer t.executor.Unlock()
	return t.indexList()
}
