// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore

import (
	"context"
	"time"

	"github.com/canonical/sqlstore/compose"
	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/sqlerr"
)

// BulkInsert inserts many values with a single prepared statement.
type BulkInsert struct {
	ds        *Datastore
	target    string
	paths     []expr.Path
	values    []Value
	resolvers []compose.Resolver
	err       error
}

// BulkInsert returns a bulk insert into the table target, writing the given
// paths of each value. Without paths, the paths of the property set of the
// first value are written.
func (ds *Datastore) BulkInsert(target string, paths ...expr.Path) *BulkInsert {
	return &BulkInsert{ds: ds, target: target, paths: paths}
}

// Add adds values to insert. Each value is a *expr.PropertyBox, another
// Value or a pointer to a struct with "db" tagged fields.
func (b *BulkInsert) Add(values ...any) *BulkInsert {
	for _, value := range values {
		v, err := valueOf(value)
		if err != nil {
			if b.err == nil {
				b.err = err
			}
			continue
		}
		b.values = append(b.values, v)
	}
	return b
}

// WithResolvers adds resolvers used by this operation only.
func (b *BulkInsert) WithResolvers(rs ...compose.Resolver) *BulkInsert {
	b.resolvers = append(b.resolvers, rs...)
	return b
}

// Execute runs the insert once per value. It runs within the transaction of
// ctx, or within a transaction of its own, so that a failure inserts
// nothing.
//
// The affected count is the number of rows reported as inserted, plus the
// number of rows for which the driver reports nothing: such rows are assumed
// to be inserted, with a warning.
func (b *BulkInsert) Execute(ctx context.Context) (OperationResult, error) {
	result := OperationResult{Type: OperationInsert}
	if b.err != nil {
		return result, b.err
	}
	if len(b.values) == 0 {
		return result, nil
	}
	paths := b.paths
	if len(paths) == 0 {
		paths = b.values[0].PropertySet().Paths()
	}
	ds := b.ds
	stmt, err := compose.Compose(ds.newContext(b.resolvers), &compose.BulkInsertDefinition{Target: b.target, Paths: paths})
	if err != nil {
		return result, err
	}

	var unknown int64
	err = ds.WithTransaction(ctx, func(ctx context.Context, _ Transaction) error {
		r, err := ds.runner(ctx)
		if err != nil {
			return err
		}
		sqlstmt, release, err := r.prepare(ctx, stmt.SQL)
		if err != nil {
			return ds.dialect.TranslateError(err)
		}
		defer release()

		for i, v := range b.values {
			args, err := stmt.Args(ds.dialect.ParameterBinder(), v.Value)
			if err != nil {
				return sqlerr.DataAccess(sqlerr.InvalidData, err, "cannot bind row %d", i+1)
			}
			start := time.Now()
			res, err := sqlstmt.ExecContext(ctx, args...)
			ds.traceStatement(ctx, "bulk insert", stmt.SQL, args, start, err)
			if err != nil {
				return ds.dialect.TranslateError(err)
			}
			n, err := res.RowsAffected()
			switch {
			case err != nil:
				unknown++
			case n > 0:
				result.AffectedCount += n
			}
		}
		return nil
	})
	if err != nil {
		return OperationResult{Type: OperationInsert}, err
	}
	if unknown > 0 {
		ds.logger.WarnContext(ctx, "driver did not report inserted rows, counting them as inserted",
			"target", b.target, "rows", unknown)
		result.AffectedCount += unknown
	}
	return result, nil
}

// BulkUpdate updates every row matching a filter.
type BulkUpdate struct {
	ds        *Datastore
	target    string
	values    []compose.Assignment
	filter    expr.Filter
	resolvers []compose.Resolver
}

// BulkUpdate returns an update of the rows of the table target.
func (ds *Datastore) BulkUpdate(target string) *BulkUpdate {
	return &BulkUpdate{ds: ds, target: target}
}

// Set sets the column of p to v, which is an expression or a value of p.
func (b *BulkUpdate) Set(p expr.Path, v any) *BulkUpdate {
	b.values = append(b.values, compose.Assign(p, v))
	return b
}

// SetNull sets the column of p to NULL.
func (b *BulkUpdate) SetNull(p expr.Path) *BulkUpdate {
	b.values = append(b.values, compose.Assign(p, nil))
	return b
}

// Filter restricts the update to the rows matching f. Without filter every
// row is updated.
func (b *BulkUpdate) Filter(f expr.Filter) *BulkUpdate {
	b.filter = expr.And(b.filter, f)
	return b
}

// WithResolvers adds resolvers used by this operation only.
func (b *BulkUpdate) WithResolvers(rs ...compose.Resolver) *BulkUpdate {
	b.resolvers = append(b.resolvers, rs...)
	return b
}

// Execute runs the update.
func (b *BulkUpdate) Execute(ctx context.Context) (OperationResult, error) {
	stmt, err := compose.Compose(b.ds.newContext(b.resolvers), &compose.UpdateDefinition{
		Target: b.target,
		Values: b.values,
		Filter: b.filter,
	})
	if err != nil {
		return OperationResult{}, err
	}
	r, err := b.ds.runner(ctx)
	if err != nil {
		return OperationResult{}, err
	}
	n, _, err := b.ds.exec(ctx, r, "bulk update", stmt)
	if err != nil {
		return OperationResult{}, err
	}
	return OperationResult{Type: OperationUpdate, AffectedCount: n}, nil
}

// BulkDelete deletes every row matching a filter.
type BulkDelete struct {
	ds        *Datastore
	target    string
	filter    expr.Filter
	resolvers []compose.Resolver
}

// BulkDelete returns a delete of the rows of the table target.
func (ds *Datastore) BulkDelete(target string) *BulkDelete {
	return &BulkDelete{ds: ds, target: target}
}

// Filter restricts the delete to the rows matching f. Without filter every
// row is deleted.
func (b *BulkDelete) Filter(f expr.Filter) *BulkDelete {
	b.filter = expr.And(b.filter, f)
	return b
}

// WithResolvers adds resolvers used by this operation only.
func (b *BulkDelete) WithResolvers(rs ...compose.Resolver) *BulkDelete {
	b.resolvers = append(b.resolvers, rs...)
	return b
}

// Execute runs the delete.
func (b *BulkDelete) Execute(ctx context.Context) (OperationResult, error) {
	stmt, err := compose.Compose(b.ds.newContext(b.resolvers), &compose.DeleteDefinition{
		Target: b.target,
		Filter: b.filter,
	})
	if err != nil {
		return OperationResult{}, err
	}
	r, err := b.ds.runner(ctx)
	if err != nil {
		return OperationResult{}, err
	}
	n, _, err := b.ds.exec(ctx, r, "bulk delete", stmt)
	if err != nil {
		return OperationResult{}, err
	}
	return OperationResult{Type: OperationDelete, AffectedCount: n}, nil
}
