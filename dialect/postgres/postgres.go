// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package postgres is the PostgreSQL dialect, for the github.com/lib/pq
// driver. Importing it registers the dialect as "postgres".
package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"reflect"
	"strconv"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/canonical/sqlstore/compose"
	"github.com/canonical/sqlstore/dialect"
	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/sqlerr"
	"github.com/canonical/sqlstore/sqlexpr"
)

// Name is the registered dialect name.
const Name = "postgres"

// returningVersion is the first PostgreSQL version supporting RETURNING.
const returningVersion = "8.2"

var timeType = reflect.TypeOf(time.Time{})

func init() {
	dialect.Register(Name, func() dialect.Dialect { return New() }, func(d driver.Driver) bool {
		_, ok := d.(*pq.Driver)
		return ok
	})
}

// Dialect is the PostgreSQL dialect.
type Dialect struct {
	*dialect.Base
	version   *version.Version
	returning bool
}

// New returns a PostgreSQL dialect.
func New(opts ...dialect.Option) *Dialect {
	defaults := []dialect.Option{
		dialect.WithBindType(sqlx.DOLLAR),
		dialect.WithIdentifierCase(dialect.LowerCase),
		dialect.WithErrorClassifier(classify),
	}
	return &Dialect{
		Base: dialect.NewBase(Name, append(defaults, opts...)...),
		// Assume a modern server until Init says otherwise.
		returning: true,
	}
}

// Init reads the server version.
func (d *Dialect) Init(ctx context.Context, q dialect.Querier) error {
	_, v, err := dialect.ServerVersion(ctx, q, "SHOW server_version")
	if err != nil {
		return err
	}
	d.version = v
	d.returning = dialect.AtLeast(v, returningVersion)
	return nil
}

// Version returns the server version found by Init.
func (d *Dialect) Version() *version.Version {
	return d.version
}

func (d *Dialect) SupportsGetGeneratedKeyByName() bool {
	return d.returning
}

func (d *Dialect) LimitClause(sql string, limit, offset int) string {
	if limit > 0 {
		sql += " LIMIT " + strconv.Itoa(limit)
	}
	if offset > 0 {
		sql += " OFFSET " + strconv.Itoa(offset)
	}
	return sql
}

// ParameterCast casts dates and times, whose parameters would otherwise be
// sent as timestamps.
func (d *Dialect) ParameterCast(typ reflect.Type, temporal expr.TemporalType) string {
	if typ != timeType {
		return ""
	}
	switch temporal {
	case expr.Date:
		return "DATE"
	case expr.Time:
		return "TIME"
	}
	return ""
}

const primaryKeyQuery = `
SELECT a.attname
FROM pg_index i
JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
WHERE i.indrelid = $1::regclass AND i.indisprimary
ORDER BY array_position(i.indkey, a.attnum)`

func (d *Dialect) PrimaryKey(ctx context.Context, q dialect.Querier, table string) ([]string, error) {
	return dialect.QueryColumn(ctx, q, primaryKeyQuery, d.TableName(table))
}

// Resolvers renders case insensitive matches with ILIKE.
func (d *Dialect) Resolvers() []compose.Resolver {
	return []compose.Resolver{
		compose.Typed(expr.KindStringMatchFilter, sqlexpr.KindToken, compose.DefaultPriority+1, resolveILike),
	}
}

func resolveILike(ctx *compose.Context, f *expr.StringMatchFilter) (sqlexpr.Token, bool, error) {
	if !f.IgnoreCase {
		return sqlexpr.Token{}, false, nil
	}
	left, err := ctx.SQL(f.Expr)
	if err != nil {
		return sqlexpr.Token{}, false, err
	}
	marker := ctx.AddParameter(sqlexpr.Parameter{
		Value: compose.LikePattern(f.Value, f.Mode),
		Type:  reflect.TypeOf(""),
	})
	return sqlexpr.Token{SQL: left + " ILIKE " + marker + ` ESCAPE '\'`}, true, nil
}

func classify(err error) (sqlerr.Code, bool) {
	var perr *pq.Error
	if !errors.As(err, &perr) {
		return sqlerr.Unknown, false
	}
	switch perr.Code {
	case "23505":
		return sqlerr.DuplicateKey, true
	case "57014", "55P03":
		return sqlerr.Timeout, true
	}
	switch perr.Code.Class() {
	case "23":
		return sqlerr.IntegrityViolation, true
	case "22":
		return sqlerr.InvalidData, true
	case "08":
		return sqlerr.Connection, true
	}
	return sqlerr.Unknown, false
}
