// Package catalog contains the default [domain.Store] implementation. A
// catalog owns the table registry, wires the parse/plan/execute pipeline,
// and caches prepared queries by text.
package catalog

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/nestdb/nestdb/adapter/comparer"
	"github.com/nestdb/nestdb/adapter/data"
	"github.com/nestdb/nestdb/adapter/decoder"
	"github.com/nestdb/nestdb/adapter/executor"
	"github.com/nestdb/nestdb/adapter/hasher"
	"github.com/nestdb/nestdb/adapter/index"
	"github.com/nestdb/nestdb/adapter/parser"
	"github.com/nestdb/nestdb/adapter/pathnav"
	"github.com/nestdb/nestdb/adapter/planner"
	"github.com/nestdb/nestdb/adapter/table"
	"github.com/nestdb/nestdb/domain"
)

const defaultPreparedCacheSize = 128

// Catalog implements [domain.Store].
type Catalog struct {
	opts     domain.StoreOptions
	parser   domain.Parser
	planner  domain.Planner
	executor domain.Executor

	mu     sync.RWMutex
	tables map[string]domain.Table

	pool     *ants.Pool
	prepared *lru.Cache[string, *domain.PreparedQuery]
}

// NewCatalog returns a new implementation of domain.Store.
func NewCatalog(options ...domain.StoreOption) (domain.Store, error) {
	var opts domain.StoreOptions
	for _, option := range options {
		option(&opts)
	}
	if opts.Comparer == nil {
		opts.Comparer = comparer.NewComparer()
	}
	if opts.Hasher == nil {
		opts.Hasher = hasher.NewHasher()
	}
	if opts.Decoder == nil {
		opts.Decoder = decoder.NewDecoder()
	}
	if opts.DocumentFactory == nil {
		opts.DocumentFactory = data.NewDocument
	}
	if opts.PathNavigator == nil {
		opts.PathNavigator = pathnav.NewPathNavigator()
	}
	if opts.Parser == nil {
		opts.Parser = parser.NewParser()
	}
	if opts.Planner == nil {
		opts.Planner = planner.NewPlanner()
	}
	if opts.Executor == nil {
		opts.Executor = executor.NewExecutor(
			executor.WithComparer(opts.Comparer),
			executor.WithHasher(opts.Hasher),
			executor.WithDocumentFactory(opts.DocumentFactory),
			executor.WithDecoder(opts.Decoder),
		)
	}

	workers := opts.BuildWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("catalog: creating worker pool: %w", err)
	}

	size := opts.PreparedCacheSize
	if size <= 0 {
		size = defaultPreparedCacheSize
	}
	prepared, err := lru.New[string, *domain.PreparedQuery](size)
	if err != nil {
		pool.Release()
		return nil, fmt.Errorf("catalog: creating prepared cache: %w", err)
	}

	return &Catalog{
		opts:     opts,
		parser:   opts.Parser,
		planner:  opts.Planner,
		executor: opts.Executor,
		tables:   map[string]domain.Table{},
		pool:     pool,
		prepared: prepared,
	}, nil
}

// CreateTable implements [domain.Store].
func (c *Catalog) CreateTable(ctx context.Context, def domain.TableDef) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[def.Name]; ok {
		return fmt.Errorf("%w: %s", domain.ErrTableExists, def.Name)
	}
	t, err := table.NewTable(def,
		table.WithComparer(c.opts.Comparer),
		table.WithDocumentFactory(c.opts.DocumentFactory),
		table.WithPathNavigator(c.opts.PathNavigator),
		table.WithIndexFactory(c.indexFactory),
		table.WithReadUnits(c.opts.ReadUnits),
		table.WithWriteUnits(c.opts.WriteUnits),
		table.WithPool(c.pool),
	)
	if err != nil {
		return err
	}
	c.tables[def.Name] = t
	return nil
}

// indexFactory builds indexes sharing the catalog's comparer, hasher and
// navigator.
func (c *Catalog) indexFactory(def domain.IndexDef) (domain.Index, error) {
	return index.NewIndex(def,
		index.WithComparer(c.opts.Comparer),
		index.WithHasher(c.opts.Hasher),
		index.WithPathNavigator(c.opts.PathNavigator),
	)
}

// DropTable implements [domain.Store]. Prepared queries against the dropped
// table are discarded so a later table of the same name replans.
func (c *Catalog) DropTable(ctx context.Context, name string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[name]; !ok {
		return false, nil
	}
	delete(c.tables, name)
	for _, key := range c.prepared.Keys() {
		if pq, ok := c.prepared.Peek(key); ok && pq.Query.Table == name {
			c.prepared.Remove(key)
		}
	}
	return true, nil
}

// CreateIndex implements [domain.Store]. Plans cached before the index
// existed are dropped so they can pick it up on the next Prepare.
func (c *Catalog) CreateIndex(ctx context.Context, tableName string, def domain.IndexDef) error {
	c.mu.RLock()
	t, ok := c.tables[tableName]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTableNotFound, tableName)
	}
	if err := t.CreateIndex(ctx, def); err != nil {
		return err
	}
	for _, key := range c.prepared.Keys() {
		if pq, ok := c.prepared.Peek(key); ok && pq.Query.Table == tableName {
			c.prepared.Remove(key)
		}
	}
	return nil
}

// Table implements [domain.Store].
func (c *Catalog) Table(name string) (domain.Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	return t, ok
}

// Prepare implements [domain.Store].
func (c *Catalog) Prepare(ctx context.Context, text string) (*domain.PreparedQuery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if pq, ok := c.prepared.Get(text); ok {
		return pq, nil
	}
	q, err := c.parser.Parse(text)
	if err != nil {
		return nil, err
	}
	t, ok := c.Table(q.Table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTableNotFound, q.Table)
	}
	plan, err := c.planner.Plan(q, t)
	if err != nil {
		return nil, err
	}
	pq := &domain.PreparedQuery{
		ID:    uuid.NewString(),
		Text:  text,
		Query: q,
		Plan:  plan,
	}
	c.prepared.Add(text, pq)
	return pq, nil
}

// Execute implements [domain.Store].
func (c *Catalog) Execute(ctx context.Context, pq *domain.PreparedQuery) (domain.Cursor, error) {
	if pq == nil || pq.Plan == nil {
		return nil, fmt.Errorf("catalog: executing unprepared query")
	}
	t, ok := c.Table(pq.Query.Table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTableNotFound, pq.Query.Table)
	}
	return c.executor.Execute(ctx, t, pq.Plan)
}

// Explain implements [domain.Store].
func (c *Catalog) Explain(pq *domain.PreparedQuery) string {
	if pq == nil || pq.Plan == nil {
		return ""
	}
	return c.planner.Explain(pq.Plan)
}
