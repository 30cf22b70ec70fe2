// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package dialect defines how SQL is generated and interpreted for a given
// database. Concrete dialects live in sub-packages and register themselves by
// name when imported.
package dialect

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/sqlexpr"
	"github.com/canonical/sqlstore/sqlvalue"
)

// Querier runs queries. It is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Dialect is the database specific part of SQL generation.
type Dialect interface {
	// Name returns the registered dialect name.
	Name() string
	// Init is called once when a datastore is created, before any
	// statement is run. It may probe the server. An error aborts the
	// datastore creation.
	Init(ctx context.Context, q Querier) error
	// Placeholder returns the n-th (1 based) parameter placeholder.
	Placeholder(n int) string
	// LimitClause applies limit and offset to a SELECT statement. A
	// non-positive limit or offset is ignored.
	LimitClause(sql string, limit, offset int) string
	// ResolveFunction returns the SQL rendering of f.
	ResolveFunction(f expr.Function) (*sqlexpr.Function, bool)
	TableName(name string) string
	ColumnName(name string) string
	// SupportsLikeEscapeClause reports whether LIKE accepts ESCAPE.
	SupportsLikeEscapeClause() bool
	// SupportsGetGeneratedKeys reports whether generated keys are returned
	// by the driver as the last insert id.
	SupportsGetGeneratedKeys() bool
	// GeneratedKeyAlwaysReturned reports whether the last insert id is
	// reported even if the key was given explicitly.
	GeneratedKeyAlwaysReturned() bool
	// SupportsGetGeneratedKeyByName reports whether generated keys can be
	// requested by column name, with ReturningClause.
	SupportsGetGeneratedKeyByName() bool
	// ReturningClause returns the clause appended to an INSERT to return
	// the given key columns.
	ReturningClause(keys []string) string
	// ParameterCast returns the SQL type parameters of the given type must
	// be cast to, or "".
	ParameterCast(typ reflect.Type, temporal expr.TemporalType) string
	// PrimaryKey returns the ordered primary key columns of table. An empty
	// result means the table has no primary key.
	PrimaryKey(ctx context.Context, q Querier, table string) ([]string, error)
	ValueDeserializer() sqlvalue.Deserializer
	ValueSerializer() sqlvalue.LiteralSerializer
	ParameterBinder() sqlvalue.Binder
	// TranslateError maps a driver error to a *sqlerr.DataAccessError.
	TranslateError(err error) error
}

// Factory returns a new, uninitialized dialect.
type Factory func() Dialect

type registration struct {
	factory Factory
	match   func(driver.Driver) bool
}

var (
	registryMutex sync.RWMutex
	registry      = map[string]registration{}
)

// Register makes a dialect available by name. If match is not nil, Detect
// uses it to recognise the dialect from a database driver.
func Register(name string, factory Factory, match func(driver.Driver) bool) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	registry[name] = registration{factory: factory, match: match}
}

// New returns a new dialect registered as name.
func New(name string) (Dialect, error) {
	registryMutex.RLock()
	r, ok := registry[name]
	registryMutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
	return r.factory(), nil
}

// Detect returns a new dialect matching the database driver d.
func Detect(d driver.Driver) (Dialect, bool) {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	for _, name := range sortedNames() {
		r := registry[name]
		if r.match != nil && r.match(d) {
			return r.factory(), true
		}
	}
	return nil, false
}

// Names returns the registered dialect names, sorted.
func Names() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	return sortedNames()
}

func sortedNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultName is the name of the ANSI dialect.
const DefaultName = "default"

func init() {
	Register(DefaultName, func() Dialect {
		return NewBase(DefaultName, WithIdentifierCase(UpperCase))
	}, nil)
}
