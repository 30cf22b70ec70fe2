// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/canonical/sqlstore/sqlerr"
)

// TransactionConfig holds the options of a transaction.
type TransactionConfig struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
	// AutoCommit makes End commit a transaction that was neither committed
	// nor rolled back. Otherwise End rolls it back.
	AutoCommit bool
}

func (cfg TransactionConfig) plainTXOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: cfg.Isolation, ReadOnly: cfg.ReadOnly}
}

// TransactionEvent is the event a TransactionLifecycleHandler is notified of.
type TransactionEvent int

const (
	TransactionStarted TransactionEvent = iota
	TransactionEnded
)

func (e TransactionEvent) String() string {
	if e == TransactionEnded {
		return "ended"
	}
	return "started"
}

// TransactionLifecycleHandler is notified when a transaction starts and ends.
type TransactionLifecycleHandler func(tx Transaction, event TransactionEvent)

// TransactionStatus is the state of a transaction.
type TransactionStatus int

const (
	StatusCreated TransactionStatus = iota
	StatusActive
	StatusCommitted
	StatusRolledBack
	StatusEnded
)

var statusNames = map[TransactionStatus]string{
	StatusCreated:    "created",
	StatusActive:     "active",
	StatusCommitted:  "committed",
	StatusRolledBack: "rolled back",
	StatusEnded:      "ended",
}

func (s TransactionStatus) String() string {
	return statusNames[s]
}

// Transaction is a database transaction. A transaction is started with Start,
// completed with Commit or Rollback and must always be finished with End,
// which releases its connection.
//
// Operations run within a transaction when given the context returned by
// [Datastore.ContextWithTransaction], or the context passed by
// [Datastore.WithTransaction].
type Transaction interface {
	Start(ctx context.Context) error
	Commit() error
	Rollback() error
	End() error
	// SetRollbackOnly makes Commit roll the transaction back.
	SetRollbackOnly()
	IsRollbackOnly() bool
	// IsActive reports whether the transaction was started and not ended.
	IsActive() bool
	// IsCompleted reports whether the transaction was committed or rolled
	// back.
	IsCompleted() bool
	Status() TransactionStatus
	AddLifecycleHandler(h TransactionLifecycleHandler)
}

// transaction is a Transaction on a connection of the datastore.
type transaction struct {
	ds  *Datastore
	cfg TransactionConfig

	mutex        sync.Mutex
	status       TransactionStatus
	rollbackOnly bool
	handlers     []TransactionLifecycleHandler
	conn         *sql.Conn
	// release is true if conn was obtained from the provider by Start.
	release bool
	sqltx   *sql.Tx
}

// NewTransaction returns a new transaction, not yet started. The datastore
// transaction defaults are used if no config is given.
func (ds *Datastore) NewTransaction(cfg ...TransactionConfig) Transaction {
	c := ds.txDefaults
	if len(cfg) > 0 {
		c = cfg[0]
	}
	return &transaction{ds: ds, cfg: c}
}

// Start begins the transaction on the connection shared through ctx, if any,
// or on a connection obtained from the connection provider.
func (tx *transaction) Start(ctx context.Context) error {
	tx.mutex.Lock()
	if tx.status != StatusCreated {
		status := tx.status
		tx.mutex.Unlock()
		return &sqlerr.IllegalTransactionStatusError{Op: "start", Status: status.String()}
	}

	conn, shared := tx.ds.sharedConn(ctx)
	if !shared {
		var err error
		conn, err = tx.ds.provider.Connection(ctx, PurposeOperation)
		if err != nil {
			tx.mutex.Unlock()
			return &sqlerr.TransactionError{Op: "start", Err: tx.ds.dialect.TranslateError(err)}
		}
	}
	sqltx, err := conn.BeginTx(ctx, tx.cfg.plainTXOptions())
	if err != nil {
		if !shared {
			tx.ds.provider.Release(conn, PurposeOperation)
		}
		tx.mutex.Unlock()
		return &sqlerr.TransactionError{Op: "start", Err: tx.ds.dialect.TranslateError(err)}
	}
	tx.conn = conn
	tx.release = !shared
	tx.sqltx = sqltx
	tx.status = StatusActive
	tx.mutex.Unlock()

	tx.ds.traceTransaction("start")
	tx.notify(TransactionStarted)
	return nil
}

// checkActive returns an error unless the transaction was started and not
// completed. The mutex must be locked.
func (tx *transaction) checkActive(op string) error {
	if tx.status != StatusActive {
		status := tx.status.String()
		if tx.status == StatusCreated {
			status = "not active"
		}
		return &sqlerr.IllegalTransactionStatusError{Op: op, Status: status}
	}
	return nil
}

// Commit commits the transaction, or rolls it back if it is rollback-only.
func (tx *transaction) Commit() error {
	tx.mutex.Lock()
	defer tx.mutex.Unlock()
	if err := tx.checkActive("commit"); err != nil {
		return err
	}
	if tx.rollbackOnly {
		return tx.rollback()
	}
	tx.ds.traceTransaction("commit")
	tx.status = StatusCommitted
	if err := tx.sqltx.Commit(); err != nil {
		return &sqlerr.TransactionError{Op: "commit", Err: tx.ds.dialect.TranslateError(err)}
	}
	return nil
}

// Rollback aborts the transaction.
func (tx *transaction) Rollback() error {
	tx.mutex.Lock()
	defer tx.mutex.Unlock()
	if err := tx.checkActive("rollback"); err != nil {
		return err
	}
	return tx.rollback()
}

// rollback rolls the transaction back. The mutex must be locked.
func (tx *transaction) rollback() error {
	tx.ds.traceTransaction("rollback")
	tx.status = StatusRolledBack
	if err := tx.sqltx.Rollback(); err != nil {
		return &sqlerr.TransactionError{Op: "rollback", Err: tx.ds.dialect.TranslateError(err)}
	}
	return nil
}

// End completes the transaction if needed, committing it if configured with
// AutoCommit and rolling it back otherwise, and releases its connection.
func (tx *transaction) End() error {
	tx.mutex.Lock()
	var err error
	switch tx.status {
	case StatusCreated, StatusEnded:
		status := "not active"
		if tx.status == StatusEnded {
			status = tx.status.String()
		}
		tx.mutex.Unlock()
		return &sqlerr.IllegalTransactionStatusError{Op: "end", Status: status}
	case StatusActive:
		if tx.cfg.AutoCommit && !tx.rollbackOnly {
			tx.ds.traceTransaction("commit")
			if cerr := tx.sqltx.Commit(); cerr != nil {
				err = &sqlerr.TransactionError{Op: "commit", Err: tx.ds.dialect.TranslateError(cerr)}
			}
		} else {
			err = tx.rollback()
		}
	}
	if tx.release {
		if rerr := tx.ds.provider.Release(tx.conn, PurposeOperation); rerr != nil && err == nil {
			err = sqlerr.DataAccess(sqlerr.Connection, rerr, "cannot release connection")
		}
	}
	tx.conn = nil
	tx.sqltx = nil
	tx.status = StatusEnded
	tx.mutex.Unlock()

	tx.ds.traceTransaction("end")
	tx.notify(TransactionEnded)
	return err
}

func (tx *transaction) SetRollbackOnly() {
	tx.mutex.Lock()
	defer tx.mutex.Unlock()
	tx.rollbackOnly = true
}

func (tx *transaction) IsRollbackOnly() bool {
	tx.mutex.Lock()
	defer tx.mutex.Unlock()
	return tx.rollbackOnly
}

func (tx *transaction) IsActive() bool {
	tx.mutex.Lock()
	defer tx.mutex.Unlock()
	return tx.status != StatusCreated && tx.status != StatusEnded
}

func (tx *transaction) IsCompleted() bool {
	tx.mutex.Lock()
	defer tx.mutex.Unlock()
	return tx.status == StatusCommitted || tx.status == StatusRolledBack
}

func (tx *transaction) Status() TransactionStatus {
	tx.mutex.Lock()
	defer tx.mutex.Unlock()
	return tx.status
}

func (tx *transaction) AddLifecycleHandler(h TransactionLifecycleHandler) {
	if h == nil {
		return
	}
	tx.mutex.Lock()
	defer tx.mutex.Unlock()
	tx.handlers = append(tx.handlers, h)
}

func (tx *transaction) notify(event TransactionEvent) {
	tx.mutex.Lock()
	handlers := append([]TransactionLifecycleHandler(nil), tx.handlers...)
	tx.mutex.Unlock()
	for _, h := range handlers {
		h(tx, event)
	}
}

// sqlTx returns the database transaction operations run on.
func (tx *transaction) sqlTx() (*sql.Tx, error) {
	tx.mutex.Lock()
	defer tx.mutex.Unlock()
	if err := tx.checkActive("use"); err != nil {
		return nil, err
	}
	return tx.sqltx, nil
}

// delegatedTransaction is a transaction nested in another one. Completion is
// forwarded to the outer transaction, which alone may be started and ended.
type delegatedTransaction struct {
	outer *transaction
}

func (d delegatedTransaction) Start(context.Context) error {
	return &sqlerr.IllegalTransactionStatusError{Op: "start", Status: "delegated"}
}

func (d delegatedTransaction) End() error {
	return &sqlerr.IllegalTransactionStatusError{Op: "end", Status: "delegated"}
}

func (d delegatedTransaction) Commit() error    { return d.outer.Commit() }
func (d delegatedTransaction) Rollback() error  { return d.outer.Rollback() }
func (d delegatedTransaction) SetRollbackOnly() { d.outer.SetRollbackOnly() }

func (d delegatedTransaction) IsRollbackOnly() bool { return d.outer.IsRollbackOnly() }

func (d delegatedTransaction) IsActive() bool { return d.outer.IsActive() }

func (d delegatedTransaction) IsCompleted() bool { return d.outer.IsCompleted() }

func (d delegatedTransaction) Status() TransactionStatus { return d.outer.Status() }

func (d delegatedTransaction) AddLifecycleHandler(h TransactionLifecycleHandler) {
	d.outer.AddLifecycleHandler(h)
}

// ContextWithTransaction returns a context in which the operations of the
// datastore run within tx. tx must have been created by this datastore.
func (ds *Datastore) ContextWithTransaction(ctx context.Context, tx Transaction) context.Context {
	switch t := tx.(type) {
	case *transaction:
		return context.WithValue(ctx, txKey{ds}, t)
	case delegatedTransaction:
		return context.WithValue(ctx, txKey{ds}, t.outer)
	}
	return ctx
}

// currentTransaction returns the transaction of ctx, unless it was ended.
func (ds *Datastore) currentTransaction(ctx context.Context) (*transaction, bool) {
	tx, ok := ctx.Value(txKey{ds}).(*transaction)
	if !ok || tx.Status() == StatusEnded {
		return nil, false
	}
	return tx, true
}

// CurrentTransaction returns the transaction the operations run with ctx run
// within, if any.
func (ds *Datastore) CurrentTransaction(ctx context.Context) (Transaction, bool) {
	tx, ok := ds.currentTransaction(ctx)
	if !ok {
		return nil, false
	}
	return tx, true
}

// WithTransaction runs fn within a transaction. If ctx already carries an
// active transaction, fn runs within it through a delegated transaction and
// an error from fn marks it rollback-only. Otherwise a new transaction is
// started with cfg, or the datastore defaults, committed if fn succeeds and
// rolled back if it fails or panics.
func (ds *Datastore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error, cfg ...TransactionConfig) (err error) {
	if outer, ok := ds.currentTransaction(ctx); ok {
		if err := fn(ctx, delegatedTransaction{outer: outer}); err != nil {
			outer.SetRollbackOnly()
			return err
		}
		return nil
	}

	tx := ds.NewTransaction(cfg...)
	if err := tx.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if !tx.IsCompleted() {
				tx.Rollback()
			}
			tx.End()
			panic(r)
		}
	}()

	if err := fn(ds.ContextWithTransaction(ctx, tx), tx); err != nil {
		if !tx.IsCompleted() {
			if rerr := tx.Rollback(); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}
		if eerr := tx.End(); eerr != nil {
			err = errors.Join(err, eerr)
		}
		return err
	}
	if !tx.IsCompleted() {
		if err := tx.Commit(); err != nil {
			tx.End()
			return err
		}
	}
	return tx.End()
}
