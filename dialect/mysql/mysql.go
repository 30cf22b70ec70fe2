// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package mysql is the MySQL and MariaDB dialect, for the
// github.com/go-sql-driver/mysql driver. Importing it registers the dialect
// as "mysql".
package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-version"

	"github.com/canonical/sqlstore/dialect"
	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/sqlerr"
	"github.com/canonical/sqlstore/sqlexpr"
)

// Name is the registered dialect name.
const Name = "mysql"

// maxLimit is the row count used when only an offset is given.
const maxLimit = "18446744073709551615"

// MySQL error numbers.
const (
	errDuplicateEntry      = 1062
	errLockWaitTimeout     = 1205
	errRowIsReferenced     = 1216
	errNoReferencedRow     = 1217
	errBadNull             = 1048
	errWarnDataOutOfRange  = 1264
	errWarnDataTruncated   = 1265
	errTruncatedWrongValue = 1292
	errNoDefaultForField   = 1364
	errTruncatedValue      = 1366
	errDataTooLong         = 1406
	errRowIsReferenced2    = 1451
	errNoReferencedRow2    = 1452
	errQueryTimeout        = 3024
	errCheckConstraint     = 3819
)

func init() {
	dialect.Register(Name, func() dialect.Dialect { return New() }, func(d driver.Driver) bool {
		_, ok := d.(*mysql.MySQLDriver)
		return ok
	})
}

// Dialect is the MySQL dialect.
type Dialect struct {
	*dialect.Base
	version *version.Version
	mariaDB bool
}

// New returns a MySQL dialect.
func New(opts ...dialect.Option) *Dialect {
	defaults := []dialect.Option{
		dialect.WithGeneratedKeys(false),
		// LIKE escapes with a backslash by default, and a backslash cannot
		// be written as a plain string literal in an ESCAPE clause.
		dialect.WithoutLikeEscape(),
		dialect.WithFunction(expr.FunctionYear, sqlexpr.NewFunction("YEAR")),
		dialect.WithFunction(expr.FunctionMonth, sqlexpr.NewFunction("MONTH")),
		dialect.WithFunction(expr.FunctionDay, sqlexpr.NewFunction("DAY")),
		dialect.WithFunction(expr.FunctionHour, sqlexpr.NewFunction("HOUR")),
		dialect.WithErrorClassifier(classify),
	}
	return &Dialect{Base: dialect.NewBase(Name, append(defaults, opts...)...)}
}

// Init reads the server version.
func (d *Dialect) Init(ctx context.Context, q dialect.Querier) error {
	s, v, err := dialect.ServerVersion(ctx, q, "SELECT VERSION()")
	if err != nil {
		return err
	}
	d.version = v
	d.mariaDB = strings.Contains(strings.ToLower(s), "mariadb")
	return nil
}

// Version returns the server version found by Init.
func (d *Dialect) Version() *version.Version {
	return d.version
}

// MariaDB reports whether the server is MariaDB.
func (d *Dialect) MariaDB() bool {
	return d.mariaDB
}

func (d *Dialect) LimitClause(sql string, limit, offset int) string {
	switch {
	case limit > 0:
		sql += " LIMIT " + strconv.Itoa(limit)
	case offset > 0:
		sql += " LIMIT " + maxLimit
	}
	if offset > 0 {
		sql += " OFFSET " + strconv.Itoa(offset)
	}
	return sql
}

const primaryKeyQuery = `
SELECT COLUMN_NAME
FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
ORDER BY ORDINAL_POSITION`

func (d *Dialect) PrimaryKey(ctx context.Context, q dialect.Querier, table string) ([]string, error) {
	return dialect.QueryColumn(ctx, q, primaryKeyQuery, d.TableName(table))
}

func classify(err error) (sqlerr.Code, bool) {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return sqlerr.Connection, true
	}
	var merr *mysql.MySQLError
	if !errors.As(err, &merr) {
		return sqlerr.Unknown, false
	}
	switch merr.Number {
	case errDuplicateEntry:
		return sqlerr.DuplicateKey, true
	case errRowIsReferenced, errNoReferencedRow, errRowIsReferenced2, errNoReferencedRow2,
		errBadNull, errNoDefaultForField, errCheckConstraint:
		return sqlerr.IntegrityViolation, true
	case errWarnDataOutOfRange, errWarnDataTruncated, errTruncatedWrongValue, errTruncatedValue, errDataTooLong:
		return sqlerr.InvalidData, true
	case errLockWaitTimeout, errQueryTimeout:
		return sqlerr.Timeout, true
	}
	return sqlerr.Unknown, false
}
