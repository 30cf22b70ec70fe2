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
	"github.com/canonical/sqlstore/sqlerr"
	"github.com/canonical/sqlstore/sqlexpr"
)

// OperationType is the kind of write an operation performed.
type OperationType int

const (
	OperationInsert OperationType = iota + 1
	OperationUpdate
	OperationDelete
)

func (t OperationType) String() string {
	switch t {
	case OperationInsert:
		return "insert"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	}
	return "unknown"
}

// OperationResult holds the outcome of a write operation.
type OperationResult struct {
	Type OperationType
	// AffectedCount is the number of rows written.
	AffectedCount int64
	// InsertedKeys holds the keys generated by an insert, by path name.
	InsertedKeys map[string]any
}

// InsertedKey returns the generated key called name.
func (r OperationResult) InsertedKey(name string) (any, bool) {
	v, ok := r.InsertedKeys[name]
	return v, ok
}

// exec binds and runs stmt.
func (ds *Datastore) exec(ctx context.Context, r runner, op string, stmt sqlexpr.Statement) (int64, sql.Result, error) {
	args, err := stmt.Args(ds.dialect.ParameterBinder(), nil)
	if err != nil {
		return 0, nil, err
	}
	start := time.Now()
	res, err := r.ExecContext(ctx, stmt.SQL, args...)
	ds.traceStatement(ctx, op, stmt.SQL, args, start, err)
	if err != nil {
		return 0, nil, ds.dialect.TranslateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil, ds.dialect.TranslateError(err)
	}
	return n, res, nil
}

// Insert inserts value into the table target. value is a *expr.PropertyBox,
// another Value or a pointer to a struct with "db" tagged fields. NULL values
// are not written, leaving the columns to their default.
//
// Generated keys are returned in the result. With BringBackGeneratedIDs they
// are also set into value.
func (ds *Datastore) Insert(ctx context.Context, target string, value any, opts ...WriteOption) (OperationResult, error) {
	v, err := valueOf(value)
	if err != nil {
		return OperationResult{}, err
	}
	r, err := ds.runner(ctx)
	if err != nil {
		return OperationResult{}, err
	}
	return ds.insert(ctx, r, target, v, opts)
}

func (ds *Datastore) insert(ctx context.Context, r runner, target string, v Value, opts []WriteOption) (OperationResult, error) {
	pk, hasPK, err := ds.primaryKey(ctx, r, target, v.PropertySet())
	if err != nil {
		return OperationResult{}, err
	}
	byName := hasPK && ds.dialect.SupportsGetGeneratedKeyByName()

	def := &compose.InsertDefinition{Target: target, Values: assignments(v, false, nil)}
	if byName {
		def.Returning = pk.Names()
	}
	stmt, err := compose.Compose(ds.newContext(nil), def)
	if err != nil {
		return OperationResult{}, err
	}

	result := OperationResult{Type: OperationInsert, InsertedKeys: map[string]any{}}
	if byName {
		if result.AffectedCount, err = ds.returningKeys(ctx, r, stmt, pk, result.InsertedKeys); err != nil {
			return OperationResult{}, err
		}
	} else {
		var res sql.Result
		if result.AffectedCount, res, err = ds.exec(ctx, r, "insert", stmt); err != nil {
			return OperationResult{}, err
		}
		if hasPK && ds.dialect.SupportsGetGeneratedKeys() {
			ds.lastInsertID(res, v, pk, result.InsertedKeys)
		}
	}

	if hasOption(opts, BringBackGeneratedIDs) {
		for name, key := range result.InsertedKeys {
			if err := v.SetValue(name, key); err != nil {
				return result, &sqlerr.QueryResultConversionError{Value: key, Target: name, Err: err}
			}
		}
	}
	return result, nil
}

// returningKeys runs an INSERT ... RETURNING statement and records the
// returned keys. It returns the number of inserted rows.
func (ds *Datastore) returningKeys(ctx context.Context, r runner, stmt sqlexpr.Statement, pk sqlexpr.PrimaryKey, keys map[string]any) (int64, error) {
	args, err := stmt.Args(ds.dialect.ParameterBinder(), nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	rows, err := r.QueryContext(ctx, stmt.SQL, args...)
	ds.traceStatement(ctx, "insert", stmt.SQL, args, start, err)
	if err != nil {
		return 0, ds.dialect.TranslateError(err)
	}
	defer rows.Close()

	var n int64
	raw := make([]any, len(pk.Paths))
	ptrs := make([]any, len(raw))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		n++
		if err := rows.Scan(ptrs...); err != nil {
			return 0, ds.dialect.TranslateError(err)
		}
		for i, p := range pk.Paths {
			key, err := ds.dialect.ValueDeserializer().Deserialize(p, raw[i])
			if err != nil {
				return 0, err
			}
			keys[p.Name()] = key
		}
	}
	if err := rows.Err(); err != nil {
		return 0, ds.dialect.TranslateError(err)
	}
	return n, nil
}

// lastInsertID records the key reported by the driver, for single column
// integer keys.
func (ds *Datastore) lastInsertID(res sql.Result, v Value, pk sqlexpr.PrimaryKey, keys map[string]any) {
	if len(pk.Paths) != 1 {
		return
	}
	p := pk.Paths[0]
	if !integerKey(p.Type()) {
		return
	}
	if given, _ := v.Value(p.Name()); given != nil && !ds.dialect.GeneratedKeyAlwaysReturned() {
		return
	}
	id, err := res.LastInsertId()
	if err != nil {
		return
	}
	key, err := ds.dialect.ValueDeserializer().Deserialize(p, id)
	if err != nil {
		return
	}
	keys[p.Name()] = key
}

func integerKey(t reflect.Type) bool {
	if t == nil {
		return true
	}
	switch t.Kind() {
	case reflect.Interface,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// Update updates the row of the table target identified by the primary key
// values of value. Every non key path is written, NULL values included.
func (ds *Datastore) Update(ctx context.Context, target string, value any) (OperationResult, error) {
	v, err := valueOf(value)
	if err != nil {
		return OperationResult{}, err
	}
	r, err := ds.runner(ctx)
	if err != nil {
		return OperationResult{}, err
	}
	pk, err := ds.requirePrimaryKey(ctx, r, target, v.PropertySet())
	if err != nil {
		return OperationResult{}, err
	}
	filter, err := compose.PrimaryKeyFilter(pk, v.Value)
	if err != nil {
		return OperationResult{}, err
	}
	return ds.update(ctx, r, target, v, pk, filter)
}

func (ds *Datastore) update(ctx context.Context, r runner, target string, v Value, pk sqlexpr.PrimaryKey, filter expr.Filter) (OperationResult, error) {
	keys := make(map[string]bool, len(pk.Paths))
	for _, name := range pk.Names() {
		keys[name] = true
	}
	def := &compose.UpdateDefinition{
		Target: target,
		Values: assignments(v, true, func(name string) bool { return keys[name] }),
		Filter: filter,
	}
	stmt, err := compose.Compose(ds.newContext(nil), def)
	if err != nil {
		return OperationResult{}, err
	}
	n, _, err := ds.exec(ctx, r, "update", stmt)
	if err != nil {
		return OperationResult{}, err
	}
	return OperationResult{Type: OperationUpdate, AffectedCount: n}, nil
}

// Save updates value if a row with its primary key exists in the table
// target and inserts it otherwise. The existence check and the write run on
// the same connection.
//
// If no primary key identifies value, or if the existence check fails, value
// is inserted with a warning unless the datastore was created with
// WithSaveFallback(false), in which case Save fails.
func (ds *Datastore) Save(ctx context.Context, target string, value any, opts ...WriteOption) (OperationResult, error) {
	v, err := valueOf(value)
	if err != nil {
		return OperationResult{}, err
	}
	var result OperationResult
	err = ds.WithSharedConnection(ctx, func(ctx context.Context) error {
		r, err := ds.runner(ctx)
		if err != nil {
			return err
		}
		pk, ok, err := ds.primaryKey(ctx, r, target, v.PropertySet())
		if err != nil {
			return err
		}
		if !ok {
			if !ds.saveFallback {
				return sqlerr.DataAccess(sqlerr.NoPrimaryKey, nil, "cannot save into %q", target)
			}
			ds.logger.WarnContext(ctx, "no primary key to check existence, inserting", "target", target)
			result, err = ds.insert(ctx, r, target, v, opts)
			return err
		}

		filter, err := compose.PrimaryKeyFilter(pk, v.Value)
		if err != nil {
			// Without key values the value cannot exist yet.
			result, err = ds.insert(ctx, r, target, v, opts)
			return err
		}
		count, err := ds.Query(target).Filter(filter).Count(ctx)
		if err != nil {
			if !ds.saveFallback {
				return sqlerr.DataAccess(sqlerr.CodeOf(err), err, "cannot check existence in %q", target)
			}
			ds.logger.WarnContext(ctx, "cannot check existence, inserting", "target", target, "error", err)
			result, err = ds.insert(ctx, r, target, v, opts)
			return err
		}
		if count > 0 {
			result, err = ds.update(ctx, r, target, v, pk, filter)
		} else {
			result, err = ds.insert(ctx, r, target, v, opts)
		}
		return err
	})
	return result, err
}

// Delete deletes the row of the table target identified by the primary key
// values of value.
func (ds *Datastore) Delete(ctx context.Context, target string, value any) (OperationResult, error) {
	v, err := valueOf(value)
	if err != nil {
		return OperationResult{}, err
	}
	r, err := ds.runner(ctx)
	if err != nil {
		return OperationResult{}, err
	}
	pk, err := ds.requirePrimaryKey(ctx, r, target, v.PropertySet())
	if err != nil {
		return OperationResult{}, err
	}
	filter, err := compose.PrimaryKeyFilter(pk, v.Value)
	if err != nil {
		return OperationResult{}, err
	}
	stmt, err := compose.Compose(ds.newContext(nil), &compose.DeleteDefinition{Target: target, Filter: filter})
	if err != nil {
		return OperationResult{}, err
	}
	n, _, err := ds.exec(ctx, r, "delete", stmt)
	if err != nil {
		return OperationResult{}, err
	}
	return OperationResult{Type: OperationDelete, AffectedCount: n}, nil
}

// Refresh reads again the row of the table target identified by the primary
// key values of value and returns it as a new property box over the property
// set of value. It returns a DataAccessError with code NotFound if the row
// does not exist.
func (ds *Datastore) Refresh(ctx context.Context, target string, value any) (*expr.PropertyBox, error) {
	v, err := valueOf(value)
	if err != nil {
		return nil, err
	}
	r, err := ds.runner(ctx)
	if err != nil {
		return nil, err
	}
	pk, err := ds.requirePrimaryKey(ctx, r, target, v.PropertySet())
	if err != nil {
		return nil, err
	}
	filter, err := compose.PrimaryKeyFilter(pk, v.Value)
	if err != nil {
		return nil, err
	}
	return FindOne[*expr.PropertyBox](ctx, ds.Query(target).Filter(filter), v.PropertySet())
}
