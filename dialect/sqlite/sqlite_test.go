// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/sqlstore/dialect"
	"github.com/canonical/sqlstore/dialect/sqlite"
	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/sqlerr"
)

func openDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`
CREATE TABLE person (id integer PRIMARY KEY, name text UNIQUE);
CREATE TABLE membership (team text, person integer, since text, PRIMARY KEY (person, team));
CREATE TABLE note (body text);
`)
	require.NoError(t, err)
	return db
}

func TestInit(t *testing.T) {
	db := openDB(t)
	d := sqlite.New()
	require.NoError(t, d.Init(context.Background(), db))
	require.NotNil(t, d.Version())
	assert.Equal(t, dialect.AtLeast(d.Version(), "3.35.0"), d.SupportsGetGeneratedKeyByName())
	assert.True(t, d.SupportsGetGeneratedKeys())
	assert.True(t, d.GeneratedKeyAlwaysReturned())
}

func TestPrimaryKey(t *testing.T) {
	db := openDB(t)
	d := sqlite.New()
	ctx := context.Background()

	cols, err := d.PrimaryKey(ctx, db, "person")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, cols)

	cols, err = d.PrimaryKey(ctx, db, "membership")
	require.NoError(t, err)
	assert.Equal(t, []string{"person", "team"}, cols)

	cols, err = d.PrimaryKey(ctx, db, "note")
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestTranslateError(t *testing.T) {
	db := openDB(t)
	d := sqlite.New()

	_, err := db.Exec("INSERT INTO person (id, name) VALUES (1, 'Fred')")
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO person (id, name) VALUES (2, 'Fred')")
	require.Error(t, err)
	assert.Equal(t, sqlerr.DuplicateKey, sqlerr.CodeOf(d.TranslateError(err)))

	_, err = db.Exec("INSERT INTO person (id, name) VALUES (1, 'Jim')")
	require.Error(t, err)
	assert.Equal(t, sqlerr.DuplicateKey, sqlerr.CodeOf(d.TranslateError(err)))

	_, err = db.Exec("SELECT nope FROM person")
	require.Error(t, err)
	assert.Equal(t, sqlerr.Unknown, sqlerr.CodeOf(d.TranslateError(err)))
}

func TestLimitClause(t *testing.T) {
	d := sqlite.New()
	assert.Equal(t, "SELECT 1 LIMIT 3", d.LimitClause("SELECT 1", 3, 0))
	assert.Equal(t, "SELECT 1 LIMIT 3 OFFSET 2", d.LimitClause("SELECT 1", 3, 2))
	assert.Equal(t, "SELECT 1 LIMIT -1 OFFSET 2", d.LimitClause("SELECT 1", 0, 2))
}

func TestFunctions(t *testing.T) {
	db := openDB(t)
	d := sqlite.New()
	born := expr.NewProperty[time.Time]("born")
	year, ok := d.ResolveFunction(expr.Year(born))
	require.True(t, ok)
	hour, ok := d.ResolveFunction(expr.Hour(born))
	require.True(t, ok)

	var y, h int
	query := "SELECT " + year.Serialize([]string{"?"}) + ", " + hour.Serialize([]string{"?"})
	err := db.QueryRow(query, "2024-03-01 13:04:05", "2024-03-01 13:04:05").Scan(&y, &h)
	require.NoError(t, err)
	assert.Equal(t, 2024, y)
	assert.Equal(t, 13, h)
}

func TestDetect(t *testing.T) {
	db := openDB(t)
	d, ok := dialect.Detect(db.Driver())
	require.True(t, ok)
	assert.Equal(t, sqlite.Name, d.Name())
}
