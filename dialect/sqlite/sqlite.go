// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package sqlite is the SQLite dialect, for the github.com/mattn/go-sqlite3
// driver. Importing it registers the dialect as "sqlite".
package sqlite

import (
	"context"
	"database/sql/driver"
	"errors"
	"strconv"

	"github.com/hashicorp/go-version"
	"github.com/mattn/go-sqlite3"

	"github.com/canonical/sqlstore/dialect"
	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/sqlerr"
	"github.com/canonical/sqlstore/sqlexpr"
)

// Name is the registered dialect name.
const Name = "sqlite"

// returningVersion is the first SQLite version supporting RETURNING.
const returningVersion = "3.35.0"

func init() {
	dialect.Register(Name, func() dialect.Dialect { return New() }, func(d driver.Driver) bool {
		_, ok := d.(*sqlite3.SQLiteDriver)
		return ok
	})
}

// Dialect is the SQLite dialect.
type Dialect struct {
	*dialect.Base
	version   *version.Version
	returning bool
}

// New returns a SQLite dialect. Options are applied after the SQLite
// defaults.
func New(opts ...dialect.Option) *Dialect {
	defaults := []dialect.Option{
		dialect.WithGeneratedKeys(true),
		dialect.WithNumericBooleans(),
		dialect.WithFunction(expr.FunctionYear, sqlexpr.Template("YEAR", "CAST(strftime('%Y', ?) AS INTEGER)")),
		dialect.WithFunction(expr.FunctionMonth, sqlexpr.Template("MONTH", "CAST(strftime('%m', ?) AS INTEGER)")),
		dialect.WithFunction(expr.FunctionDay, sqlexpr.Template("DAY", "CAST(strftime('%d', ?) AS INTEGER)")),
		dialect.WithFunction(expr.FunctionHour, sqlexpr.Template("HOUR", "CAST(strftime('%H', ?) AS INTEGER)")),
		dialect.WithErrorClassifier(classify),
	}
	return &Dialect{Base: dialect.NewBase(Name, append(defaults, opts...)...)}
}

// Init reads the SQLite library version.
func (d *Dialect) Init(ctx context.Context, q dialect.Querier) error {
	_, v, err := dialect.ServerVersion(ctx, q, "SELECT sqlite_version()")
	if err != nil {
		return err
	}
	d.version = v
	d.returning = dialect.AtLeast(v, returningVersion)
	return nil
}

// Version returns the SQLite version found by Init.
func (d *Dialect) Version() *version.Version {
	return d.version
}

// SupportsGetGeneratedKeyByName is true from SQLite 3.35, which supports
// INSERT ... RETURNING.
func (d *Dialect) SupportsGetGeneratedKeyByName() bool {
	return d.returning
}

func (d *Dialect) LimitClause(sql string, limit, offset int) string {
	switch {
	case limit > 0:
		sql += " LIMIT " + strconv.Itoa(limit)
	case offset > 0:
		sql += " LIMIT -1"
	}
	if offset > 0 {
		sql += " OFFSET " + strconv.Itoa(offset)
	}
	return sql
}

func (d *Dialect) PrimaryKey(ctx context.Context, q dialect.Querier, table string) ([]string, error) {
	return dialect.QueryColumn(ctx, q,
		"SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk", d.TableName(table))
}

func classify(err error) (sqlerr.Code, bool) {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return sqlerr.Unknown, false
	}
	return Classify(int(serr.Code), int(serr.ExtendedCode))
}

// Classify maps SQLite result codes to error codes. It is shared with the
// dqlite dialect, whose errors carry SQLite result codes.
func Classify(code, extendedCode int) (sqlerr.Code, bool) {
	switch sqlite3.ErrNoExtended(extendedCode) {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return sqlerr.DuplicateKey, true
	}
	switch sqlite3.ErrNo(code) {
	case sqlite3.ErrConstraint:
		return sqlerr.IntegrityViolation, true
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return sqlerr.Timeout, true
	case sqlite3.ErrTooBig, sqlite3.ErrMismatch, sqlite3.ErrRange:
		return sqlerr.InvalidData, true
	case sqlite3.ErrCantOpen, sqlite3.ErrNotADB:
		return sqlerr.Connection, true
	}
	return sqlerr.Unknown, false
}
