// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/canonical/sqlstore/compose"
	"github.com/canonical/sqlstore/dialect"
	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/internal/pkcache"
	"github.com/canonical/sqlstore/sqlerr"
	"github.com/canonical/sqlstore/sqlexpr"
)

// IdentifierResolution tells how the primary key of a write operation is
// found.
type IdentifierResolution int

const (
	// IdentifierAuto uses the identifiers of the property set of the value
	// when it declares some, and the table primary key otherwise.
	IdentifierAuto IdentifierResolution = iota
	// IdentifierTablePrimaryKey always uses the table primary key.
	IdentifierTablePrimaryKey
	// IdentifierProperties only uses the identifiers of the property set.
	IdentifierProperties
)

var identifierResolutionNames = []string{"auto", "table_primary_key", "identifier_properties"}

func (r IdentifierResolution) String() string {
	if r < 0 || int(r) >= len(identifierResolutionNames) {
		return fmt.Sprintf("IdentifierResolution(%d)", int(r))
	}
	return identifierResolutionNames[r]
}

// ParseIdentifierResolution returns the strategy called name. The empty name
// is IdentifierAuto.
func ParseIdentifierResolution(name string) (IdentifierResolution, error) {
	if name == "" {
		return IdentifierAuto, nil
	}
	for i, n := range identifierResolutionNames {
		if n == name {
			return IdentifierResolution(i), nil
		}
	}
	return 0, fmt.Errorf("unknown identifier resolution %q", name)
}

// Datastore runs operations on a database. It is safe for concurrent use.
//
// Resolvers must be registered before the datastore is used concurrently.
type Datastore struct {
	db        *sql.DB
	dialect   dialect.Dialect
	provider  ConnectionProvider
	resolvers *compose.Registry
	// dialectResolvers holds the resolvers contributed by the dialect.
	dialectResolvers *compose.Registry
	keys             *pkcache.Cache
	stmts            *statementCache

	logger       *slog.Logger
	trace        bool
	traceLevel   slog.Level
	identifiers  IdentifierResolution
	saveFallback bool
	txDefaults   TransactionConfig
}

// New returns a datastore running operations on db. The dialect is detected
// from the database driver unless given with WithDialect, the ANSI dialect
// being used if detection fails. The dialect is initialized on a connection of
// the connection provider before New returns.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Datastore, error) {
	if db == nil {
		return nil, fmt.Errorf("cannot create datastore: nil database")
	}
	o := newOptions(opts)

	d := o.dialect
	if d == nil && o.dialectName != "" {
		var err error
		if d, err = dialect.New(o.dialectName); err != nil {
			return nil, fmt.Errorf("cannot create datastore: %w", err)
		}
	}
	if d == nil {
		var ok bool
		if d, ok = dialect.Detect(db.Driver()); !ok {
			d, _ = dialect.New(dialect.DefaultName)
		}
	}

	ds := &Datastore{
		db:               db,
		dialect:          d,
		provider:         o.provider,
		resolvers:        compose.NewRegistry(o.resolvers...),
		dialectResolvers: compose.DialectResolvers(d),
		keys:             pkcache.New(o.primaryKeyCacheSize),
		stmts:            newStatementCache(o.statementCacheSize),
		logger:           o.logger,
		trace:            o.trace,
		traceLevel:       o.traceLevel,
		identifiers:      o.identifiers,
		saveFallback:     o.saveFallback,
		txDefaults:       o.txDefaults,
	}
	if ds.provider == nil {
		ds.provider = PoolProvider(db)
	}

	if err := ds.initDialect(ctx); err != nil {
		return nil, err
	}
	return ds, nil
}

// Open opens a database with database/sql and returns a datastore over it.
// The database is closed by [Datastore.Close].
func Open(ctx context.Context, driverName, dataSourceName string, opts ...Option) (*Datastore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	ds, err := New(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return ds, nil
}

func (ds *Datastore) initDialect(ctx context.Context) (err error) {
	conn, err := ds.provider.Connection(ctx, PurposeInit)
	if err != nil {
		return fmt.Errorf("cannot initialize dialect %s: %w", ds.dialect.Name(), ds.dialect.TranslateError(err))
	}
	defer func() {
		if rerr := ds.provider.Release(conn, PurposeInit); err == nil && rerr != nil {
			err = fmt.Errorf("cannot initialize dialect %s: %w", ds.dialect.Name(), rerr)
		}
	}()
	if err := ds.dialect.Init(ctx, conn); err != nil {
		return fmt.Errorf("cannot initialize dialect %s: %w", ds.dialect.Name(), ds.dialect.TranslateError(err))
	}
	return nil
}

// PlainDB returns the underlying database object.
func (ds *Datastore) PlainDB() *sql.DB {
	return ds.db
}

// Dialect returns the datastore dialect.
func (ds *Datastore) Dialect() dialect.Dialect {
	return ds.dialect
}

// Logger returns the datastore logger.
func (ds *Datastore) Logger() *slog.Logger {
	return ds.logger
}

// RegisterResolvers adds datastore level resolvers, used by every operation.
// They take precedence over the dialect and built-in resolvers. It must not be
// called while operations run.
func (ds *Datastore) RegisterResolvers(rs ...compose.Resolver) {
	ds.resolvers.Register(rs...)
}

// Close closes the cached statements and the database.
func (ds *Datastore) Close() error {
	ds.stmts.close()
	return ds.db.Close()
}

// newContext returns a composition context for a single operation.
func (ds *Datastore) newContext(rs []compose.Resolver) *compose.Context {
	return compose.NewContext(ds.dialect, ds.resolvers, ds.dialectResolvers).WithResolvers(rs...)
}

// PrimaryKey returns the primary key columns of table, as discovered by the
// dialect. The result is cached. An empty result means table has no primary
// key.
func (ds *Datastore) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	r, err := ds.runner(ctx)
	if err != nil {
		return nil, err
	}
	return ds.tablePrimaryKey(ctx, r, table)
}

func (ds *Datastore) tablePrimaryKey(ctx context.Context, r runner, table string) ([]string, error) {
	cols, err := ds.keys.Lookup(ctx, ds.dialect.TableName(table), func(ctx context.Context) ([]string, error) {
		return ds.dialect.PrimaryKey(ctx, r, table)
	})
	if err != nil {
		return nil, ds.dialect.TranslateError(err)
	}
	return cols, nil
}

// primaryKey returns the primary key identifying values of set in table,
// following the identifier resolution strategy. It returns false if there is
// none.
func (ds *Datastore) primaryKey(ctx context.Context, r runner, table string, set *expr.PropertySet) (sqlexpr.PrimaryKey, bool, error) {
	if ds.identifiers != IdentifierTablePrimaryKey {
		if ids := set.Identifiers(); len(ids) > 0 {
			return sqlexpr.PrimaryKey{Paths: ids}, true, nil
		}
		if ds.identifiers == IdentifierProperties {
			return sqlexpr.PrimaryKey{}, false, nil
		}
	}
	cols, err := ds.tablePrimaryKey(ctx, r, table)
	if err != nil {
		return sqlexpr.PrimaryKey{}, false, err
	}
	if len(cols) == 0 {
		return sqlexpr.PrimaryKey{}, false, nil
	}
	return compose.PrimaryKeyOf(set, cols), true, nil
}

// requirePrimaryKey is primaryKey failing if there is no primary key.
func (ds *Datastore) requirePrimaryKey(ctx context.Context, r runner, table string, set *expr.PropertySet) (sqlexpr.PrimaryKey, error) {
	pk, ok, err := ds.primaryKey(ctx, r, table, set)
	if err != nil {
		return pk, err
	}
	if !ok {
		return pk, sqlerr.DataAccess(sqlerr.NoPrimaryKey, nil, "cannot identify values of %q", table)
	}
	return pk, nil
}
