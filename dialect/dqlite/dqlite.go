// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package dqlite is the dialect for dqlite, the distributed SQLite of
// github.com/canonical/go-dqlite. SQL is generated as for SQLite; errors are
// read from the dqlite driver. Importing it registers the dialect as "dqlite".
package dqlite

import (
	"database/sql/driver"
	"errors"

	dqlitedriver "github.com/canonical/go-dqlite/driver"

	"github.com/canonical/sqlstore/dialect"
	"github.com/canonical/sqlstore/dialect/sqlite"
	"github.com/canonical/sqlstore/sqlerr"
)

// Name is the registered dialect name.
const Name = "dqlite"

func init() {
	dialect.Register(Name, func() dialect.Dialect { return New() }, func(d driver.Driver) bool {
		_, ok := d.(*dqlitedriver.Driver)
		return ok
	})
}

// Dialect is the dqlite dialect.
type Dialect struct {
	*sqlite.Dialect
}

// New returns a dqlite dialect.
func New(opts ...dialect.Option) *Dialect {
	defaults := []dialect.Option{
		dialect.WithName(Name),
		dialect.WithErrorClassifier(classify),
	}
	return &Dialect{Dialect: sqlite.New(append(defaults, opts...)...)}
}

func classify(err error) (sqlerr.Code, bool) {
	var derr dqlitedriver.Error
	if !errors.As(err, &derr) {
		return sqlerr.Unknown, false
	}
	// dqlite reports extended result codes, whose low byte is the primary
	// code.
	return sqlite.Classify(derr.Code&0xff, derr.Code)
}
