// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package compose

import (
	"fmt"
	"strings"

	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/sqlerr"
	"github.com/canonical/sqlstore/sqlexpr"
)

const (
	KindDefinition           expr.Kind = "definition"
	KindQueryDefinition      expr.Kind = "definition.query"
	KindInsertDefinition     expr.Kind = "definition.insert"
	KindUpdateDefinition     expr.Kind = "definition.update"
	KindDeleteDefinition     expr.Kind = "definition.delete"
	KindBulkInsertDefinition expr.Kind = "definition.bulkinsert"
)

// QueryDefinition is the configuration of a SELECT statement.
type QueryDefinition struct {
	Target     *expr.DataTarget
	Projection expr.Projection
	Filter     expr.Filter
	Sort       expr.Sort
	GroupBy    []expr.TypedExpression
	Distinct   bool
	// Limit and Offset are ignored unless positive.
	Limit  int
	Offset int
}

func (q *QueryDefinition) Kind() expr.Kind {
	return KindQueryDefinition
}

func (q *QueryDefinition) Validate() error {
	switch {
	case q.Target == nil:
		return fmt.Errorf("query without data target")
	case q.Projection == nil:
		return fmt.Errorf("query without projection")
	case q.Limit < 0:
		return fmt.Errorf("negative limit %d", q.Limit)
	case q.Offset < 0:
		return fmt.Errorf("negative offset %d", q.Offset)
	}
	return nil
}

func resolveQuery(ctx *Context, q *QueryDefinition) (sqlexpr.Query, bool, error) {
	// The target comes first: it sets up the aliases the other clauses use.
	from, err := ctx.SQL(q.Target)
	if err != nil {
		return sqlexpr.Query{}, false, err
	}
	proj, err := ResolveAs[sqlexpr.Projection](ctx, q.Projection, sqlexpr.KindProjection)
	if err != nil {
		return sqlexpr.Query{}, false, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if q.Distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(proj.SQL())
	sb.WriteString(" FROM ")
	sb.WriteString(from)
	if q.Filter != nil {
		where, err := ctx.SQL(q.Filter)
		if err != nil {
			return sqlexpr.Query{}, false, err
		}
		sb.WriteString(" WHERE " + where)
	}
	if len(q.GroupBy) > 0 {
		groups := make([]string, len(q.GroupBy))
		for i, g := range q.GroupBy {
			if groups[i], err = ctx.SQL(g); err != nil {
				return sqlexpr.Query{}, false, err
			}
		}
		sb.WriteString(" GROUP BY " + strings.Join(groups, ", "))
	}
	if q.Sort != nil {
		order, err := ctx.SQL(q.Sort)
		if err != nil {
			return sqlexpr.Query{}, false, err
		}
		sb.WriteString(" ORDER BY " + order)
	}

	stmt, err := ctx.Prepare(ctx.dialect.LimitClause(sb.String(), q.Limit, q.Offset))
	if err != nil {
		return sqlexpr.Query{}, false, err
	}
	return sqlexpr.Query{Statement: stmt, Labels: proj.Labels(), Converter: proj.Converter}, true, nil
}

// Assignment sets the column of Path to Value. A nil Value sets NULL.
type Assignment struct {
	Path  expr.Path
	Value expr.TypedExpression
}

// Assign returns the assignment of v to p. v may be an expression, otherwise
// it is bound as a value of p.
func Assign(p expr.Path, v any) Assignment {
	switch v := v.(type) {
	case nil:
		return Assignment{Path: p}
	case expr.TypedExpression:
		return Assignment{Path: p, Value: v}
	}
	return Assignment{Path: p, Value: expr.ValueOf(p, v)}
}

func (a Assignment) value(ctx *Context) (string, error) {
	if a.Value == nil {
		return "NULL", nil
	}
	return ctx.SQL(a.Value)
}

func validateAssignments(values []Assignment) error {
	for _, a := range values {
		if a.Path == nil {
			return fmt.Errorf("assignment without path")
		}
		if err := a.Path.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// InsertDefinition is the configuration of an INSERT statement. Returning
// names the generated key columns to return, for dialects supporting it.
type InsertDefinition struct {
	Target    string
	Values    []Assignment
	Returning []string
}

func (d *InsertDefinition) Kind() expr.Kind {
	return KindInsertDefinition
}

func (d *InsertDefinition) Validate() error {
	if d.Target == "" {
		return fmt.Errorf("insert without data target")
	}
	return validateAssignments(d.Values)
}

func resolveInsert(ctx *Context, d *InsertDefinition) (sqlexpr.Statement, bool, error) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO " + ctx.dialect.TableName(d.Target))
	if len(d.Values) == 0 {
		sb.WriteString(" DEFAULT VALUES")
	} else {
		cols := make([]string, len(d.Values))
		vals := make([]string, len(d.Values))
		for i, a := range d.Values {
			cols[i] = ctx.dialect.ColumnName(a.Path.Name())
			var err error
			if vals[i], err = a.value(ctx); err != nil {
				return sqlexpr.Statement{}, false, err
			}
		}
		sb.WriteString(" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ")")
	}
	if len(d.Returning) > 0 {
		sb.WriteString(ctx.dialect.ReturningClause(d.Returning))
	}
	stmt, err := ctx.Prepare(sb.String())
	return stmt, err == nil, err
}

// UpdateDefinition is the configuration of an UPDATE statement. A nil Filter
// updates every row.
type UpdateDefinition struct {
	Target string
	Values []Assignment
	Filter expr.Filter
}

func (d *UpdateDefinition) Kind() expr.Kind {
	return KindUpdateDefinition
}

func (d *UpdateDefinition) Validate() error {
	switch {
	case d.Target == "":
		return fmt.Errorf("update without data target")
	case len(d.Values) == 0:
		return fmt.Errorf("update without values")
	}
	return validateAssignments(d.Values)
}

func resolveUpdate(ctx *Context, d *UpdateDefinition) (sqlexpr.Statement, bool, error) {
	sets := make([]string, len(d.Values))
	for i, a := range d.Values {
		v, err := a.value(ctx)
		if err != nil {
			return sqlexpr.Statement{}, false, err
		}
		sets[i] = ctx.dialect.ColumnName(a.Path.Name()) + " = " + v
	}
	sql := "UPDATE " + ctx.dialect.TableName(d.Target) + " SET " + strings.Join(sets, ", ")
	if d.Filter != nil {
		where, err := ctx.SQL(d.Filter)
		if err != nil {
			return sqlexpr.Statement{}, false, err
		}
		sql += " WHERE " + where
	}
	stmt, err := ctx.Prepare(sql)
	return stmt, err == nil, err
}

// DeleteDefinition is the configuration of a DELETE statement. A nil Filter
// deletes every row.
type DeleteDefinition struct {
	Target string
	Filter expr.Filter
}

func (d *DeleteDefinition) Kind() expr.Kind {
	return KindDeleteDefinition
}

func (d *DeleteDefinition) Validate() error {
	if d.Target == "" {
		return fmt.Errorf("delete without data target")
	}
	return nil
}

func resolveDelete(ctx *Context, d *DeleteDefinition) (sqlexpr.Statement, bool, error) {
	sql := "DELETE FROM " + ctx.dialect.TableName(d.Target)
	if d.Filter != nil {
		where, err := ctx.SQL(d.Filter)
		if err != nil {
			return sqlexpr.Statement{}, false, err
		}
		sql += " WHERE " + where
	}
	stmt, err := ctx.Prepare(sql)
	return stmt, err == nil, err
}

// BulkInsertDefinition is the configuration of an INSERT run once per row.
// Each path is bound, per row, to the row value of the same name.
type BulkInsertDefinition struct {
	Target string
	Paths  []expr.Path
}

func (d *BulkInsertDefinition) Kind() expr.Kind {
	return KindBulkInsertDefinition
}

func (d *BulkInsertDefinition) Validate() error {
	switch {
	case d.Target == "":
		return fmt.Errorf("bulk insert without data target")
	case len(d.Paths) == 0:
		return fmt.Errorf("bulk insert without paths")
	}
	return nil
}

func resolveBulkInsert(ctx *Context, d *BulkInsertDefinition) (sqlexpr.Statement, bool, error) {
	cols := make([]string, len(d.Paths))
	vals := make([]string, len(d.Paths))
	for i, p := range d.Paths {
		cols[i] = ctx.dialect.ColumnName(p.Name())
		param := Parameter(ctx, nil, p.Type(), p.Temporal(), p.Converter())
		param.Placeholder = p.Name()
		vals[i] = ctx.AddParameter(param)
	}
	stmt, err := ctx.Prepare("INSERT INTO " + ctx.dialect.TableName(d.Target) +
		" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ")")
	return stmt, err == nil, err
}

// PrimaryKeyOf returns the primary key made of columns, typed after the paths
// of set with the same name. Columns without a path in set yield untyped
// paths.
func PrimaryKeyOf(set *expr.PropertySet, columns []string) sqlexpr.PrimaryKey {
	pk := sqlexpr.PrimaryKey{Paths: make([]expr.Path, len(columns))}
	for i, col := range columns {
		if set != nil {
			if p, ok := set.Lookup(col); ok {
				pk.Paths[i] = p
				continue
			}
		}
		pk.Paths[i] = expr.NewPath(col, nil)
	}
	return pk
}

// PrimaryKeyFilter returns the filter matching the key values returned by
// value. A missing or nil key value is an error.
func PrimaryKeyFilter(pk sqlexpr.PrimaryKey, value func(name string) (any, bool)) (expr.Filter, error) {
	if err := pk.Validate(); err != nil {
		return nil, sqlerr.InvalidExpression(string(pk.Kind()), "%v", err)
	}
	filters := make([]expr.Filter, len(pk.Paths))
	for i, p := range pk.Paths {
		v, ok := value(p.Name())
		if !ok || v == nil {
			return nil, sqlerr.InvalidExpression(string(pk.Kind()), "missing value for primary key property %q", p.Name())
		}
		filters[i] = expr.NewOperationFilter(p, expr.EQ, expr.ValueOf(p, v))
	}
	return expr.And(filters...), nil
}

// Compose resolves an operation definition into a statement.
func Compose(ctx *Context, def expr.Expression) (sqlexpr.Statement, error) {
	return ResolveAs[sqlexpr.Statement](ctx, def, sqlexpr.KindStatement)
}

// ComposeQuery resolves a query definition into a query.
func ComposeQuery(ctx *Context, def expr.Expression) (sqlexpr.Query, error) {
	return ResolveAs[sqlexpr.Query](ctx, def, sqlexpr.KindQuery)
}
