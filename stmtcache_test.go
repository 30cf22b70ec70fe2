// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore_test

import (
	"context"
	"database/sql"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlstore"
	"github.com/canonical/sqlstore/dialect/sqlite"
	"github.com/canonical/sqlstore/expr"
)

type CacheSuite struct{}

var _ = Suite(&CacheSuite{})

func (s *CacheSuite) openDatastore(c *C, opts ...sqlstore.Option) *sqlstore.Datastore {
	db, err := sql.Open("sqlite3_counted", ":memory:?"+testNameTag+"="+c.TestName())
	c.Assert(err, IsNil)
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT);
INSERT INTO person VALUES (1, 'Fred'), (2, 'Mark');`)
	c.Assert(err, IsNil)

	// The counting driver is not recognised as SQLite.
	opts = append([]sqlstore.Option{sqlstore.WithDialect(sqlite.New()), sqlstore.WithLogger(discardLogger())}, opts...)
	ds, err := sqlstore.New(context.Background(), db, opts...)
	c.Assert(err, IsNil)
	return ds
}

func (s *CacheSuite) TestPreparedStatementReuse(c *C) {
	ds := s.openDatastore(c)
	ctx := context.Background()
	before := countsOf(c.TestName())

	q := ds.Query("person").Filter(idProp.EQ(1))
	for i := 0; i < 3; i++ {
		name, err := sqlstore.FindOne[string](ctx, q, expr.Select(nameProp))
		c.Assert(err, IsNil)
		c.Assert(name, Equals, "Fred")
	}

	// Running a second time does not prepare a second statement.
	after := countsOf(c.TestName())
	c.Check(after.prepared-before.prepared, Equals, 1)
	c.Check(after.stmtQueries-before.stmtQueries, Equals, 3)
	c.Check(sqlstore.StatementCacheLen(ds), Equals, 1)

	// A value change does not change the statement.
	_, err := sqlstore.FindOne[string](ctx, ds.Query("person").Filter(idProp.EQ(2)), expr.Select(nameProp))
	c.Assert(err, IsNil)
	c.Check(countsOf(c.TestName()).prepared-before.prepared, Equals, 1)

	c.Assert(ds.Close(), IsNil)
	final := countsOf(c.TestName())
	c.Check(final.closed, Equals, final.prepared)
	c.Check(sqlstore.StatementCacheLen(ds), Equals, 0)
}

func (s *CacheSuite) TestEviction(c *C) {
	ds := s.openDatastore(c, sqlstore.WithStatementCacheSize(1))
	defer ds.Close()
	ctx := context.Background()
	before := countsOf(c.TestName())

	_, err := ds.Query("person").Count(ctx)
	c.Assert(err, IsNil)
	_, err = ds.Query("person").List(ctx, expr.Select(nameProp))
	c.Assert(err, IsNil)

	// The first statement was evicted and closed.
	after := countsOf(c.TestName())
	c.Check(after.prepared-before.prepared, Equals, 2)
	c.Check(after.closed-before.closed, Equals, 1)
	c.Check(sqlstore.StatementCacheLen(ds), Equals, 1)
}

func (s *CacheSuite) TestEvictionBeforeUse(c *C) {
	ds := s.openDatastore(c, sqlstore.WithStatementCacheSize(1))
	defer ds.Close()
	ctx := context.Background()
	before := countsOf(c.TestName())

	sqlstmt, release, err := sqlstore.PrepareCached(ctx, ds, "SELECT name FROM person WHERE id = ?")
	c.Assert(err, IsNil)

	// Another operation evicts the statement before it is run.
	_, err = ds.Query("person").Count(ctx)
	c.Assert(err, IsNil)
	c.Check(sqlstore.StatementCacheLen(ds), Equals, 1)
	c.Check(countsOf(c.TestName()).closed-before.closed, Equals, 0)

	var name string
	err = sqlstmt.QueryRowContext(ctx, 1).Scan(&name)
	c.Assert(err, IsNil)
	c.Check(name, Equals, "Fred")

	// The evicted statement is closed by its last holder.
	release()
	c.Check(countsOf(c.TestName()).closed-before.closed, Equals, 1)
	release()
	c.Check(countsOf(c.TestName()).closed-before.closed, Equals, 1)
}

func (s *CacheSuite) TestCacheDisabled(c *C) {
	ds := s.openDatastore(c, sqlstore.WithStatementCacheSize(-1))
	defer ds.Close()
	before := countsOf(c.TestName())

	_, err := ds.Query("person").Count(context.Background())
	c.Assert(err, IsNil)

	after := countsOf(c.TestName())
	c.Check(after.connQueries-before.connQueries, Equals, 1)
	c.Check(after.stmtQueries-before.stmtQueries, Equals, 0)
	c.Check(sqlstore.StatementCacheLen(ds), Equals, 0)
}

func (s *CacheSuite) TestTransactionUsesCachedStatement(c *C) {
	ds := s.openDatastore(c)
	defer ds.Close()
	ctx := context.Background()

	_, err := ds.Query("person").Count(ctx)
	c.Assert(err, IsNil)
	before := countsOf(c.TestName())

	err = ds.WithTransaction(ctx, func(ctx context.Context, _ sqlstore.Transaction) error {
		n, err := ds.Query("person").Count(ctx)
		c.Check(n, Equals, int64(2))
		return err
	})
	c.Assert(err, IsNil)

	// The statement is already prepared on the single connection.
	after := countsOf(c.TestName())
	c.Check(after.prepared-before.prepared, Equals, 0)
	c.Check(after.stmtQueries-before.stmtQueries, Equals, 1)
}
