// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/sqlstore"
	"github.com/canonical/sqlstore/dialect"
	"github.com/canonical/sqlstore/dialect/postgres"
	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/sqlerr"
)

// keyedPerson identifies values by id without asking the database.
var keyedPerson = expr.NewPropertySet(idProp, nameProp).WithIdentifiers("id")

var pqError = pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}

// newMockDatastore returns a datastore over a mocked database, with the
// statement cache disabled so that statements are not prepared.
func newMockDatastore(t *testing.T, d dialect.Dialect, opts ...sqlstore.Option) (*sqlstore.Datastore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	opts = append([]sqlstore.Option{
		sqlstore.WithDialect(d),
		sqlstore.WithStatementCacheSize(-1),
		sqlstore.WithLogger(discardLogger()),
	}, opts...)
	ds, err := sqlstore.New(context.Background(), db, opts...)
	require.NoError(t, err)
	return ds, mock
}

func newMockPostgres(t *testing.T) (*sqlstore.Datastore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectQuery("SHOW server_version").
		WillReturnRows(sqlmock.NewRows([]string{"server_version"}).AddRow("15.2 (Debian 15.2-1.pgdg110+1)"))
	ds, err := sqlstore.New(context.Background(), db,
		sqlstore.WithDialect(postgres.New()),
		sqlstore.WithStatementCacheSize(-1),
		sqlstore.WithLogger(discardLogger()))
	require.NoError(t, err)
	return ds, mock
}

func TestInsertReturningKeys(t *testing.T) {
	ds, mock := newMockPostgres(t)
	mock.ExpectQuery("INSERT INTO person (name) VALUES ($1) RETURNING id").
		WithArgs("Fred").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	box := expr.NewPropertyBox(keyedPerson)
	require.NoError(t, box.Set(nameProp, "Fred"))
	res, err := ds.Insert(context.Background(), "person", box, sqlstore.BringBackGeneratedIDs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.AffectedCount)
	assert.Equal(t, map[string]any{"id": int64(7)}, res.InsertedKeys)

	id, ok := expr.Value(box, idProp)
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReturningDuplicateKey(t *testing.T) {
	ds, mock := newMockPostgres(t)
	mock.ExpectQuery("INSERT INTO person (name) VALUES ($1) RETURNING id").
		WithArgs("Fred").
		WillReturnError(&pqError)

	box := expr.NewPropertyBox(keyedPerson)
	require.NoError(t, box.Set(nameProp, "Fred"))
	_, err := ds.Insert(context.Background(), "person", box)
	assert.Equal(t, sqlerr.DuplicateKey, sqlerr.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertLastInsertID(t *testing.T) {
	ds, mock := newMockDatastore(t, dialect.NewBase("test", dialect.WithGeneratedKeys(false)))
	mock.ExpectExec("INSERT INTO person (name) VALUES (?)").
		WithArgs("Fred").
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec("INSERT INTO person (id, name) VALUES (?, ?)").
		WithArgs(int64(3), "Mark").
		WillReturnResult(sqlmock.NewResult(3, 1))

	box := expr.NewPropertyBox(keyedPerson)
	require.NoError(t, box.Set(nameProp, "Fred"))
	res, err := ds.Insert(context.Background(), "person", box)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": int64(9)}, res.InsertedKeys)

	// Given keys are not reported unless the driver always returns them.
	box = expr.NewPropertyBox(keyedPerson)
	require.NoError(t, box.Set(idProp, int64(3)))
	require.NoError(t, box.Set(nameProp, "Mark"))
	res, err = ds.Insert(context.Background(), "person", box)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.AffectedCount)
	assert.Empty(t, res.InsertedKeys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertUnknownRowCount(t *testing.T) {
	var buf bytes.Buffer
	ds, mock := newMockDatastore(t, dialect.NewBase("test"),
		sqlstore.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO person (name) VALUES (?)")
	prep.ExpectExec().WithArgs("Fred").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("Mark").WillReturnResult(sqlmock.NewErrorResult(errors.New("unsupported")))
	prep.ExpectExec().WithArgs("Mary").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	b := ds.BulkInsert("person", nameProp)
	for _, name := range []string{"Fred", "Mark", "Mary"} {
		box := expr.NewPropertyBox(keyedPerson)
		require.NoError(t, box.Set(nameProp, name))
		b.Add(box)
	}
	res, err := b.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sqlstore.OperationInsert, res.Type)
	assert.Equal(t, int64(2), res.AffectedCount)
	assert.Contains(t, buf.String(), `level=WARN msg="driver did not report inserted rows, counting them as inserted" target=person rows=1`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertRollsBack(t *testing.T) {
	ds, mock := newMockDatastore(t, dialect.NewBase("test"))
	errInsert := errors.New("disk full")

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO person (name) VALUES (?)")
	prep.ExpectExec().WithArgs("Fred").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("Mark").WillReturnError(errInsert)
	mock.ExpectRollback()

	b := ds.BulkInsert("person", nameProp)
	for _, name := range []string{"Fred", "Mark"} {
		box := expr.NewPropertyBox(keyedPerson)
		require.NoError(t, box.Set(nameProp, name))
		b.Add(box)
	}
	res, err := b.Execute(context.Background())
	assert.ErrorIs(t, err, errInsert)
	assert.Equal(t, int64(0), res.AffectedCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveExistenceCheckFails(t *testing.T) {
	errNoTable := errors.New("no such table")

	var buf bytes.Buffer
	ds, mock := newMockDatastore(t, dialect.NewBase("test"),
		sqlstore.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	mock.ExpectQuery("SELECT COUNT(*) AS c FROM person WHERE id = ?").
		WithArgs(int64(3)).
		WillReturnError(errNoTable)
	mock.ExpectExec("INSERT INTO person (id, name) VALUES (?, ?)").
		WithArgs(int64(3), "Mary").
		WillReturnResult(sqlmock.NewResult(3, 1))

	box := expr.NewPropertyBox(keyedPerson)
	require.NoError(t, box.Set(idProp, int64(3)))
	require.NoError(t, box.Set(nameProp, "Mary"))
	res, err := ds.Save(context.Background(), "person", box)
	require.NoError(t, err)
	assert.Equal(t, sqlstore.OperationInsert, res.Type)
	assert.Contains(t, buf.String(), `level=WARN msg="cannot check existence, inserting" target=person`)
	assert.NoError(t, mock.ExpectationsWereMet())

	strict, mock := newMockDatastore(t, dialect.NewBase("test"), sqlstore.WithSaveFallback(false))
	mock.ExpectQuery("SELECT COUNT(*) AS c FROM person WHERE id = ?").
		WithArgs(int64(3)).
		WillReturnError(errNoTable)
	_, err = strict.Save(context.Background(), "person", box)
	assert.ErrorIs(t, err, errNoTable)
	assert.ErrorContains(t, err, `cannot check existence in "person"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUpdatesExistingRow(t *testing.T) {
	ds, mock := newMockDatastore(t, dialect.NewBase("test"))
	mock.ExpectQuery("SELECT COUNT(*) AS c FROM person WHERE id = ?").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"c"}).AddRow(int64(1)))
	mock.ExpectExec("UPDATE person SET name = ? WHERE id = ?").
		WithArgs("Mary", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	box := expr.NewPropertyBox(keyedPerson)
	require.NoError(t, box.Set(idProp, int64(3)))
	require.NoError(t, box.Set(nameProp, "Mary"))
	res, err := ds.Save(context.Background(), "person", box)
	require.NoError(t, err)
	assert.Equal(t, sqlstore.OperationUpdate, res.Type)
	assert.Equal(t, int64(1), res.AffectedCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionBeginFails(t *testing.T) {
	ds, mock := newMockDatastore(t, dialect.NewBase("test"))
	errBegin := errors.New("too many transactions")
	mock.ExpectBegin().WillReturnError(errBegin)

	called := false
	err := ds.WithTransaction(context.Background(), func(ctx context.Context, tx sqlstore.Transaction) error {
		called = true
		return nil
	})
	var txErr *sqlerr.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "start", txErr.Op)
	assert.ErrorIs(t, err, errBegin)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionCommitFails(t *testing.T) {
	ds, mock := newMockDatastore(t, dialect.NewBase("test"))
	errCommit := errors.New("serialization failure")
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM person").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit().WillReturnError(errCommit)

	err := ds.WithTransaction(context.Background(), func(ctx context.Context, tx sqlstore.Transaction) error {
		_, err := ds.BulkDelete("person").Execute(ctx)
		return err
	})
	var txErr *sqlerr.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "commit", txErr.Op)
	assert.ErrorIs(t, err, errCommit)
	assert.NoError(t, mock.ExpectationsWereMet())
}
