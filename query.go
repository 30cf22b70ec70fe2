// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore

import (
	"context"
	"database/sql"
	"reflect"
	"time"

	"github.com/canonical/sqlstore/compose"
	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/internal/typeinfo"
	"github.com/canonical/sqlstore/sqlerr"
	"github.com/canonical/sqlstore/sqlexpr"
)

// Query is a SELECT on a data target. It is configured with its builder
// methods and run with one of its result methods, or with the [FindAll],
// [FindOne], [Stream] and [Beans] functions, which take the projection that
// says what is selected. A Query may be run more than once.
type Query struct {
	ds        *Datastore
	target    *expr.DataTarget
	filter    expr.Filter
	sort      expr.Sort
	groupBy   []expr.TypedExpression
	distinct  bool
	limit     int
	offset    int
	resolvers []compose.Resolver
}

// Query returns a query on the table called target.
func (ds *Datastore) Query(target string) *Query {
	return ds.QueryTarget(expr.Target(target))
}

// QueryTarget returns a query on target, which may join other tables.
func (ds *Datastore) QueryTarget(target *expr.DataTarget) *Query {
	return &Query{ds: ds, target: target}
}

// Filter restricts the results to the rows matching f, in addition to the
// filters already set.
func (q *Query) Filter(f expr.Filter) *Query {
	q.filter = expr.And(q.filter, f)
	return q
}

// Sort orders the results by s, after the sorts already set.
func (q *Query) Sort(s expr.Sort) *Query {
	q.sort = expr.Sorts(q.sort, s)
	return q
}

// GroupBy groups the results by the given expressions.
func (q *Query) GroupBy(es ...expr.TypedExpression) *Query {
	q.groupBy = append(q.groupBy, es...)
	return q
}

// Limit sets the maximum number of results. Zero means no limit.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Offset sets the number of results to skip.
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// Distinct removes duplicate results.
func (q *Query) Distinct() *Query {
	q.distinct = true
	return q
}

// WithResolvers adds resolvers used by this query only. They take precedence
// over every other resolver.
func (q *Query) WithResolvers(rs ...compose.Resolver) *Query {
	q.resolvers = append(q.resolvers, rs...)
	return q
}

func (q *Query) definition(proj expr.Projection) *compose.QueryDefinition {
	return &compose.QueryDefinition{
		Target:     q.target,
		Projection: proj,
		Filter:     q.filter,
		Sort:       q.sort,
		GroupBy:    q.groupBy,
		Distinct:   q.distinct,
		Limit:      q.limit,
		Offset:     q.offset,
	}
}

// SQL returns the statement the query runs for proj, without running it.
func (q *Query) SQL(proj expr.Projection) (sqlexpr.Query, error) {
	return compose.ComposeQuery(q.ds.newContext(q.resolvers), q.definition(proj))
}

// Count returns the number of rows the query matches, ignoring its sorts,
// limit and offset.
func (q *Query) Count(ctx context.Context) (int64, error) {
	if len(q.groupBy) > 0 {
		return 0, sqlerr.StatementConfiguration("cannot count grouped query")
	}
	count := *q
	count.sort = nil
	count.limit = 0
	count.offset = 0
	count.distinct = false
	return FindOne[int64](ctx, &count, expr.CountAllProjection())
}

// List returns the values selected by proj.
func (q *Query) List(ctx context.Context, proj expr.Projection) ([]any, error) {
	return FindAll[any](ctx, q, proj)
}

// Iterate returns an iterator over the values selected by proj.
func (q *Query) Iterate(ctx context.Context, proj expr.Projection) (*Iterator[any], error) {
	return Stream[any](ctx, q, proj)
}

// PropertyBoxes returns a property box per row, holding the values of the
// paths of set.
func (q *Query) PropertyBoxes(ctx context.Context, set *expr.PropertySet) ([]*expr.PropertyBox, error) {
	return FindAll[*expr.PropertyBox](ctx, q, set)
}

// FindOne returns the single value selected by proj.
func (q *Query) FindOne(ctx context.Context, proj expr.Projection) (any, error) {
	return FindOne[any](ctx, q, proj)
}

// checkResultType returns an error unless values of type got can be held by
// a T. Values of interface types are checked row by row instead.
func checkResultType[T any](got reflect.Type) error {
	want := reflect.TypeOf((*T)(nil)).Elem()
	if got == nil || got.Kind() == reflect.Interface || got.AssignableTo(want) {
		return nil
	}
	return sqlerr.StatementConfiguration("query yields %s values, not %s", got, want)
}

// Stream runs q and returns an iterator over the values selected by proj,
// converted to T. It fails before running anything if proj does not yield T
// values. The iterator must be closed.
func Stream[T any](ctx context.Context, q *Query, proj expr.Projection) (*Iterator[T], error) {
	if proj == nil {
		return nil, sqlerr.StatementConfiguration("query without projection")
	}
	if err := checkResultType[T](proj.ResultType()); err != nil {
		return nil, err
	}
	cq, err := q.SQL(proj)
	if err != nil {
		return nil, err
	}
	if err := checkResultType[T](cq.Converter.ConversionType()); err != nil {
		return nil, err
	}

	ds := q.ds
	args, err := cq.Args(ds.dialect.ParameterBinder(), nil)
	if err != nil {
		return nil, err
	}
	r, err := ds.runner(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.QueryContext(ctx, cq.SQL, args...)
	ds.traceStatement(ctx, "query", cq.SQL, args, start, err)
	if err != nil {
		return nil, ds.dialect.TranslateError(err)
	}
	return newIterator[T](rows, cq, ds.dialect.TranslateError), nil
}

// FindAll runs q and returns the values selected by proj, converted to T.
func FindAll[T any](ctx context.Context, q *Query, proj expr.Projection) ([]T, error) {
	iter, err := Stream[T](ctx, q, proj)
	if err != nil {
		return nil, err
	}
	var values []T
	for iter.Next() {
		values = append(values, iter.Value())
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return values, nil
}

// FindOne runs q and returns the single value selected by proj, converted to
// T. It returns a DataAccessError with code NotFound if there is no result,
// and an error if there is more than one.
func FindOne[T any](ctx context.Context, q *Query, proj expr.Projection) (T, error) {
	var zero T
	iter, err := Stream[T](ctx, q, proj)
	if err != nil {
		return zero, err
	}
	if !iter.Next() {
		if err := iter.Close(); err != nil {
			return zero, err
		}
		return zero, sqlerr.DataAccess(sqlerr.NotFound, sql.ErrNoRows, "no result")
	}
	v := iter.Value()
	more := iter.Next()
	if err := iter.Close(); err != nil {
		return zero, err
	}
	if more {
		return zero, sqlerr.DataAccess(sqlerr.Unknown, nil, "more than one result")
	}
	return v, nil
}

// Beans runs q and returns a T per row, T being a struct type with "db"
// tagged fields. Every tagged field is selected.
func Beans[T any](ctx context.Context, q *Query) ([]T, error) {
	info, err := typeinfo.TypeInfo(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, sqlerr.StatementConfiguration("%v", err)
	}
	boxes, err := q.PropertyBoxes(ctx, info.PropertySet())
	if err != nil {
		return nil, err
	}
	beans := make([]T, len(boxes))
	for i, box := range boxes {
		b := typeinfo.New(info)
		for _, p := range box.PropertySet().Paths() {
			v, _ := box.Value(p.Name())
			if err := b.Set(p.Name(), v); err != nil {
				return nil, &sqlerr.QueryResultConversionError{Value: v, Target: info.Type.String(), Err: err}
			}
		}
		beans[i] = *b.Interface().(*T)
	}
	return beans, nil
}

// Iterator iterates over the results of a query. It reads one row at a time
// and cannot be rewound.
type Iterator[T any] struct {
	rows      *sql.Rows
	row       row
	converter sqlexpr.ResultConverter
	translate func(error) error
	value     T
	err       error
}

func newIterator[T any](rows *sql.Rows, q sqlexpr.Query, translate func(error) error) *Iterator[T] {
	index := make(map[string]int, len(q.Labels))
	for i, l := range q.Labels {
		index[l] = i
	}
	return &Iterator[T]{
		rows:      rows,
		row:       row{index: index, values: make([]any, len(q.Labels))},
		converter: q.Converter,
		translate: translate,
	}
}

// Next reads and converts the next result. It returns false when there are
// no more results or on error, which is then returned by Err and Close.
func (iter *Iterator[T]) Next() bool {
	if iter.err != nil || iter.rows == nil {
		return false
	}
	if !iter.rows.Next() {
		if err := iter.rows.Err(); err != nil {
			iter.err = iter.translate(err)
		}
		iter.closeRows()
		return false
	}

	ptrs := make([]any, len(iter.row.values))
	for i := range iter.row.values {
		iter.row.values[i] = nil
		ptrs[i] = &iter.row.values[i]
	}
	if err := iter.rows.Scan(ptrs...); err != nil {
		iter.fail(iter.translate(err))
		return false
	}
	v, err := iter.converter.Convert(iter.row)
	if err != nil {
		iter.fail(err)
		return false
	}
	if v == nil {
		var zero T
		iter.value = zero
		return true
	}
	value, ok := v.(T)
	if !ok {
		iter.fail(&sqlerr.QueryResultConversionError{Value: v, Target: reflect.TypeOf((*T)(nil)).Elem().String()})
		return false
	}
	iter.value = value
	return true
}

// Value returns the result read by the last call to Next.
func (iter *Iterator[T]) Value() T {
	return iter.value
}

// Err returns the error that stopped the iteration, if any.
func (iter *Iterator[T]) Err() error {
	return iter.err
}

// Close finishes the iteration and returns any errors encountered. Close can
// be called multiple times and the same error will be returned.
func (iter *Iterator[T]) Close() error {
	iter.closeRows()
	return iter.err
}

func (iter *Iterator[T]) fail(err error) {
	iter.err = err
	iter.closeRows()
}

func (iter *Iterator[T]) closeRows() {
	if iter.rows == nil {
		return
	}
	if err := iter.rows.Close(); err != nil && iter.err == nil {
		iter.err = iter.translate(err)
	}
	iter.rows = nil
}

// row is a result row with values in select order.
type row struct {
	index  map[string]int
	values []any
}

func (r row) Value(label string) (any, bool) {
	i, ok := r.index[label]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}
