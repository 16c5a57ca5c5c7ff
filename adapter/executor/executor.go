// Package executor contains the default [domain.Executor] implementation.
//
// A plan runs as a pull-based chain of stages streaming binding
// environments: Scan, Filter, Unnest, Group/Aggregate, Project, Sort. Group
// and Sort are the only stages that materialize; everything else pulls one
// row and emits zero or more. Evaluation errors abort the stream wrapped in
// [domain.ErrStage]; rows already delivered stay delivered.
package executor

import (
	"context"
	"fmt"
	"iter"
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/nestdb/nestdb/adapter/comparer"
	"github.com/nestdb/nestdb/adapter/cursor"
	"github.com/nestdb/nestdb/adapter/data"
	"github.com/nestdb/nestdb/adapter/eval"
	"github.com/nestdb/nestdb/adapter/hasher"
	"github.com/nestdb/nestdb/domain"
	"github.com/nestdb/nestdb/pkg/uncomparable"
)

// Executor implements [domain.Executor].
type Executor struct {
	comparer  domain.Comparer
	hasher    domain.Hasher
	evaluator domain.Evaluator
	factory   domain.DocumentFactory
	decoder   domain.Decoder
}

// Option configures an [Executor].
type Option func(*Executor)

// WithComparer sets the comparer used by sort keys and group key ties.
func WithComparer(c domain.Comparer) Option {
	return func(e *Executor) { e.comparer = c }
}

// WithHasher sets the hasher bucketing group keys.
func WithHasher(h domain.Hasher) Option {
	return func(e *Executor) { e.hasher = h }
}

// WithEvaluator sets the expression evaluator.
func WithEvaluator(ev domain.Evaluator) Option {
	return func(e *Executor) { e.evaluator = ev }
}

// WithDocumentFactory sets the factory constructing result documents.
func WithDocumentFactory(f domain.DocumentFactory) Option {
	return func(e *Executor) { e.factory = f }
}

// WithDecoder sets the decoder cursors use for Scan targets.
func WithDecoder(d domain.Decoder) Option {
	return func(e *Executor) { e.decoder = d }
}

// NewExecutor returns a new implementation of domain.Executor.
func NewExecutor(options ...Option) domain.Executor {
	e := &Executor{
		comparer: comparer.NewComparer(),
		hasher:   hasher.NewHasher(),
		factory:  data.NewDocument,
	}
	for _, option := range options {
		option(e)
	}
	if e.evaluator == nil {
		e.evaluator = eval.NewEvaluator(eval.WithComparer(e.comparer), eval.WithDocumentFactory(e.factory))
	}
	return e
}

// row carries a result document together with the environment it was
// projected from, so sort keys can still see the plan's variables.
type row struct {
	env *domain.Env
	doc domain.Document
}

type rowSeq = iter.Seq2[row, error]

// Execute implements [domain.Executor].
func (e *Executor) Execute(ctx context.Context, table domain.Table, plan *domain.Plan) (domain.Cursor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	envs, err := e.scanStage(ctx, table, plan.Scan)
	if err != nil {
		return nil, err
	}
	if plan.Filter != nil {
		envs = e.filterStage(envs, plan.Filter)
	}
	for _, bind := range plan.Unnest {
		envs = e.unnestStage(envs, bind)
	}
	if plan.Group != nil {
		envs = e.groupStage(envs, plan.Group)
	}
	rows := e.projectStage(envs, plan.Project)
	if len(plan.Sort) > 0 {
		rows = e.sortStage(rows, plan.Sort)
	}

	docs := func(yield func(domain.Document, error) bool) {
		for r, err := range rows {
			if !yield(r.doc, err) {
				return
			}
		}
	}
	if e.decoder != nil {
		return cursor.NewCursor(ctx, docs, cursor.WithDecoder(e.decoder))
	}
	return cursor.NewCursor(ctx, docs)
}

func stageErr(stage string, expr domain.Expr, err error) error {
	text := ""
	if expr != nil {
		text = expr.String()
	}
	return &domain.ErrStage{Stage: stage, Expr: text, Err: err}
}

// scanStage yields one environment per qualifying document, binding the row
// variable. An index scan walks the seek's entry range and deduplicates
// documents by recno, since one document owns one entry per array
// combination.
func (e *Executor) scanStage(ctx context.Context, table domain.Table, scan domain.ScanNode) (iter.Seq2[*domain.Env, error], error) {
	if scan.Seek == nil {
		recs, err := table.Scan(ctx)
		if err != nil {
			return nil, err
		}
		return func(yield func(*domain.Env, error) bool) {
			for rec, err := range recs {
				if err != nil {
					yield(nil, stageErr("scan", nil, err))
					return
				}
				var env *domain.Env
				if !yield(env.Bind(scan.Var, rec.Doc), nil) {
					return
				}
			}
		}, nil
	}

	idx, ok := table.Index(scan.Seek.Index)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, scan.Seek.Index)
	}
	entries, err := idx.Lookup(ctx, *scan.Seek)
	if err != nil {
		return nil, err
	}
	return func(yield func(*domain.Env, error) bool) {
		seen := roaring64.New()
		for entry, err := range entries {
			if err != nil {
				yield(nil, stageErr("scan", nil, err))
				return
			}
			if !seen.CheckedAdd(entry.Recno) {
				continue
			}
			rec, err := table.Fetch(ctx, entry.Primary)
			if err != nil {
				yield(nil, stageErr("scan", nil, err))
				return
			}
			var env *domain.Env
			if !yield(env.Bind(scan.Var, rec.Doc), nil) {
				return
			}
		}
	}, nil
}

func (e *Executor) filterStage(in iter.Seq2[*domain.Env, error], pred domain.Expr) iter.Seq2[*domain.Env, error] {
	return func(yield func(*domain.Env, error) bool) {
		for env, err := range in {
			if err != nil {
				yield(nil, err)
				return
			}
			keep, err := e.evaluator.Truth(env, pred)
			if err != nil {
				yield(nil, stageErr("filter", pred, err))
				return
			}
			if !keep {
				continue
			}
			if !yield(env, nil) {
				return
			}
		}
	}
}

// unnestStage emits one row per element of the source sequence, binding the
// variable. Rows whose source is empty produce nothing, an implicit
// flat-map.
func (e *Executor) unnestStage(in iter.Seq2[*domain.Env, error], bind domain.UnnestBind) iter.Seq2[*domain.Env, error] {
	return func(yield func(*domain.Env, error) bool) {
		for env, err := range in {
			if err != nil {
				yield(nil, err)
				return
			}
			seq, err := e.evaluator.EvalSeq(env, bind.Source)
			if err != nil {
				yield(nil, stageErr("unnest", bind.Source, err))
				return
			}
			for _, elem := range seq {
				if !yield(env.Bind(bind.Var, elem), nil) {
					return
				}
			}
		}
	}
}

// group buckets one distinct key tuple: its first row's environment, the
// key values, and the per-aggregate accumulators.
type group struct {
	keyVals []any
	env     *domain.Env
	rows    int64
	counts  []int64
	sums    [][]any
}

// groupStage drains its input, buckets rows by the evaluated key tuple
// (NULL keys group together, buckets keep first-seen order) and emits one
// environment per bucket with the computed aggregates attached. Without
// group keys the whole input is a single group, emitted even when empty so
// a bare aggregate query returns one row.
func (e *Executor) groupStage(in iter.Seq2[*domain.Env, error], node *domain.GroupNode) iter.Seq2[*domain.Env, error] {
	return func(yield func(*domain.Env, error) bool) {
		var order []*group
		groups := uncomparable.New[*group](e.hasher, e.comparer)

		for env, err := range in {
			if err != nil {
				yield(nil, err)
				return
			}

			keyVals := make([]any, len(node.Keys))
			for n, key := range node.Keys {
				v, defined, err := e.evaluator.Eval(env, key)
				if err != nil {
					yield(nil, stageErr("group", key, err))
					return
				}
				if !defined {
					v = nil
				}
				keyVals[n] = v
			}

			g, ok, err := groups.Get(keyVals)
			if err != nil {
				yield(nil, stageErr("group", nil, err))
				return
			}
			if !ok {
				g = &group{
					keyVals: keyVals,
					env:     env,
					counts:  make([]int64, len(node.Aggs)),
					sums:    make([][]any, len(node.Aggs)),
				}
				if err := groups.Set(keyVals, g); err != nil {
					yield(nil, stageErr("group", nil, err))
					return
				}
				order = append(order, g)
			}

			g.rows++
			for n, agg := range node.Aggs {
				if err := e.accumulate(env, g, n, agg); err != nil {
					yield(nil, stageErr("group", agg, err))
					return
				}
			}
		}

		if len(order) == 0 && len(node.Keys) == 0 {
			order = append(order, &group{
				counts: make([]int64, len(node.Aggs)),
				sums:   make([][]any, len(node.Aggs)),
			})
		}

		for _, g := range order {
			aggs := make(map[*domain.Call]any, len(node.Aggs))
			for n, agg := range node.Aggs {
				v, err := e.finish(g, n, agg)
				if err != nil {
					yield(nil, stageErr("group", agg, err))
					return
				}
				aggs[agg] = v
			}
			if !yield(g.env.WithAggregates(aggs), nil) {
				return
			}
		}
	}
}

func (e *Executor) accumulate(env *domain.Env, g *group, n int, agg *domain.Call) error {
	switch {
	case agg.Star:
		g.counts[n]++
	case agg.Name == "count":
		v, defined, err := e.evaluator.Eval(env, agg.Args[0])
		if err != nil {
			return err
		}
		if defined && v != nil {
			g.counts[n]++
		}
	case agg.Name == "sum":
		seq, err := e.evaluator.EvalSeq(env, agg.Args[0])
		if err != nil {
			return err
		}
		g.sums[n] = append(g.sums[n], seq...)
	}
	return nil
}

func (e *Executor) finish(g *group, n int, agg *domain.Call) (any, error) {
	if agg.Name == "sum" && !agg.Star {
		v, _, err := eval.Sum(g.sums[n])
		return v, err
	}
	return g.counts[n], nil
}

// projectStage maps each environment to an output document. Undefined
// values project as NULL.
func (e *Executor) projectStage(in iter.Seq2[*domain.Env, error], items []domain.SelectItem) rowSeq {
	return func(yield func(row, error) bool) {
		for env, err := range in {
			if err != nil {
				yield(row{}, err)
				return
			}
			doc, err := e.factory(nil)
			if err != nil {
				yield(row{}, stageErr("project", nil, err))
				return
			}
			for _, item := range items {
				v, defined, err := e.evaluator.Eval(env, item.Expr)
				if err != nil {
					yield(row{}, stageErr("project", item.Expr, err))
					return
				}
				if !defined {
					v = nil
				}
				doc.Set(item.As, v)
			}
			if !yield(row{env: env, doc: doc}, nil) {
				return
			}
		}
	}
}

// sortStage drains its input and emits rows ordered by the key expressions,
// stable with respect to input order for ties.
func (e *Executor) sortStage(in rowSeq, keys []domain.OrderKey) rowSeq {
	return func(yield func(row, error) bool) {
		type sortRow struct {
			row
			keyVals []any
		}
		var rows []sortRow

		for r, err := range in {
			if err != nil {
				yield(row{}, err)
				return
			}
			keyVals := make([]any, len(keys))
			for n, key := range keys {
				v, defined, err := e.evaluator.Eval(r.env, key.Expr)
				if err != nil {
					yield(row{}, stageErr("sort", key.Expr, err))
					return
				}
				if !defined {
					v = nil
				}
				keyVals[n] = v
			}
			rows = append(rows, sortRow{row: r, keyVals: keyVals})
		}

		var sortErr error
		sort.SliceStable(rows, func(i, j int) bool {
			if sortErr != nil {
				return false
			}
			for n, key := range keys {
				c, err := e.comparer.Compare(rows[i].keyVals[n], rows[j].keyVals[n])
				if err != nil {
					sortErr = err
					return false
				}
				if c == 0 {
					continue
				}
				if key.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
		if sortErr != nil {
			yield(row{}, stageErr("sort", nil, sortErr))
			return
		}

		for _, r := range rows {
			if !yield(r.row, nil) {
				return
			}
		}
	}
}
