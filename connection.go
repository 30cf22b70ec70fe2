// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore

import (
	"context"
	"database/sql"

	"github.com/canonical/sqlstore/sqlerr"
)

// Purpose tells a ConnectionProvider what a connection is used for.
type Purpose int

const (
	// PurposeOperation connections run operations, possibly within a
	// transaction.
	PurposeOperation Purpose = iota
	// PurposeInit connections are used once, to initialize the dialect.
	PurposeInit
)

func (p Purpose) String() string {
	if p == PurposeInit {
		return "init"
	}
	return "operation"
}

// ConnectionProvider hands out the dedicated connections used to initialize
// the dialect, to share a connection between operations and to run
// transactions. Every connection obtained with Connection is given back with
// Release.
type ConnectionProvider interface {
	Connection(ctx context.Context, purpose Purpose) (*sql.Conn, error)
	Release(conn *sql.Conn, purpose Purpose) error
}

// poolProvider takes connections from a database pool.
type poolProvider struct {
	db *sql.DB
}

// PoolProvider returns a ConnectionProvider taking connections from db and
// returning them to it on release.
func PoolProvider(db *sql.DB) ConnectionProvider {
	return poolProvider{db: db}
}

func (p poolProvider) Connection(ctx context.Context, _ Purpose) (*sql.Conn, error) {
	return p.db.Conn(ctx)
}

func (p poolProvider) Release(conn *sql.Conn, _ Purpose) error {
	return conn.Close()
}

// runner runs statements. Plain operations run on the datastore pool,
// operations sharing a connection on that connection and operations within a
// transaction on the transaction.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	// prepare returns a statement for query and the function to call once
	// the statement is not needed anymore.
	prepare(ctx context.Context, query string) (*sql.Stmt, func(), error)
}

// poolRunner runs statements on the pool, through the statement cache.
type poolRunner struct {
	db    *sql.DB
	stmts *statementCache
}

func (r poolRunner) prepare(ctx context.Context, query string) (*sql.Stmt, func(), error) {
	if r.stmts == nil {
		sqlstmt, err := r.db.PrepareContext(ctx, query)
		if err != nil {
			return nil, nil, err
		}
		return sqlstmt, func() { sqlstmt.Close() }, nil
	}
	return r.stmts.prepareStmt(ctx, r.db, query)
}

func (r poolRunner) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if r.stmts == nil {
		return r.db.ExecContext(ctx, query, args...)
	}
	sqlstmt, release, err := r.stmts.prepareStmt(ctx, r.db, query)
	if err != nil {
		return nil, err
	}
	defer release()
	return sqlstmt.ExecContext(ctx, args...)
}

func (r poolRunner) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if r.stmts == nil {
		return r.db.QueryContext(ctx, query, args...)
	}
	sqlstmt, release, err := r.stmts.prepareStmt(ctx, r.db, query)
	if err != nil {
		return nil, err
	}
	defer release()
	return sqlstmt.QueryContext(ctx, args...)
}

// connRunner runs statements on a shared connection.
type connRunner struct {
	*sql.Conn
}

func (r connRunner) prepare(ctx context.Context, query string) (*sql.Stmt, func(), error) {
	sqlstmt, err := r.PrepareContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	return sqlstmt, func() { sqlstmt.Close() }, nil
}

// txRunner runs statements within a transaction.
type txRunner struct {
	*sql.Tx
	stmts *statementCache
}

// stmt returns the cached pool statement for query registered on the
// transaction, if there is one, and the function to call once it is not
// needed anymore. This does not re-prepare the statement on the driver. The
// transaction statement is closed by database/sql when the transaction is
// committed or rolled back.
func (r txRunner) stmt(ctx context.Context, query string) (*sql.Stmt, func(), bool) {
	sqlstmt, release, ok := r.stmts.lookupStmt(query)
	if !ok {
		return nil, nil, false
	}
	return r.StmtContext(ctx, sqlstmt), release, true
}

func (r txRunner) prepare(ctx context.Context, query string) (*sql.Stmt, func(), error) {
	if txstmt, release, ok := r.stmt(ctx, query); ok {
		return txstmt, release, nil
	}
	sqlstmt, err := r.PrepareContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	return sqlstmt, func() { sqlstmt.Close() }, nil
}

func (r txRunner) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if txstmt, release, ok := r.stmt(ctx, query); ok {
		defer release()
		return txstmt.ExecContext(ctx, args...)
	}
	return r.Tx.ExecContext(ctx, query, args...)
}

func (r txRunner) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if txstmt, release, ok := r.stmt(ctx, query); ok {
		defer release()
		return txstmt.QueryContext(ctx, args...)
	}
	return r.Tx.QueryContext(ctx, query, args...)
}

// connKey and txKey carry the shared connection and the current transaction
// of a datastore in a context. Keys are per datastore so that operations of
// another datastore ignore them.
type connKey struct{ ds *Datastore }

type txKey struct{ ds *Datastore }

// sharedConn returns the connection shared by the operations run with ctx.
func (ds *Datastore) sharedConn(ctx context.Context) (*sql.Conn, bool) {
	conn, ok := ctx.Value(connKey{ds}).(*sql.Conn)
	return conn, ok
}

// runner returns the runner for the operations run with ctx.
func (ds *Datastore) runner(ctx context.Context) (runner, error) {
	if tx, ok := ds.currentTransaction(ctx); ok {
		sqltx, err := tx.sqlTx()
		if err != nil {
			return nil, err
		}
		return txRunner{Tx: sqltx, stmts: ds.stmts}, nil
	}
	if conn, ok := ds.sharedConn(ctx); ok {
		return connRunner{Conn: conn}, nil
	}
	return poolRunner{db: ds.db, stmts: ds.stmts}, nil
}

// WithSharedConnection runs fn with a context in which every operation of the
// datastore uses the same connection. The connection is obtained from the
// connection provider and released when fn returns. If ctx already carries a
// shared connection or a transaction, fn is run with ctx as is.
func (ds *Datastore) WithSharedConnection(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ds.currentTransaction(ctx); ok {
		return fn(ctx)
	}
	if _, ok := ds.sharedConn(ctx); ok {
		return fn(ctx)
	}
	conn, err := ds.provider.Connection(ctx, PurposeOperation)
	if err != nil {
		return sqlerr.DataAccess(sqlerr.Connection, err, "cannot obtain connection")
	}
	defer func() {
		if rerr := ds.provider.Release(conn, PurposeOperation); err == nil && rerr != nil {
			err = sqlerr.DataAccess(sqlerr.Connection, rerr, "cannot release connection")
		}
	}()
	return fn(context.WithValue(ctx, connKey{ds}, conn))
}
