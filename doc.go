/*
Sqlstore is a data access layer for SQL databases that builds statements from a type-safe model of queries and writes instead of SQL text.

Paths name the columns of a table and carry the Go type of their values.
Filters, sorts and projections are built from paths, and the datastore turns them into SQL for the dialect of the database, binding every value as a parameter.
Results are converted back into values of the types the paths declare.

# Basics

Given the paths of a "person" table:

	var (
		id   = expr.NewProperty[int64]("id")
		name = expr.NewProperty[string]("name")
		team = expr.NewProperty[string]("team")
	)

the query

	names, err := sqlstore.FindAll[string](ctx,
		ds.Query("person").Filter(team.EQ("engineering")).Sort(name.Asc()),
		expr.Select(name))

runs, on SQLite:

	SELECT name FROM person WHERE team = ? ORDER BY name ASC

A property set selects several paths and yields a property box per row:

	person := expr.NewPropertySet(id, name, team).WithIdentifiers("id")
	boxes, err := ds.Query("person").PropertyBoxes(ctx, person)

Structs with "db" tagged fields may be used instead of property boxes, both to read and to write rows:

	type Person struct {
		ID   int64  `db:"id,key"`
		Name string `db:"name"`
		Team string `db:"team"`
	}

	people, err := sqlstore.Beans[Person](ctx, ds.Query("person"))
	_, err = ds.Insert(ctx, "person", &Person{Name: "Fred"}, sqlstore.BringBackGeneratedIDs)

# Writes

Insert, Update, Save, Delete and Refresh work on a single value, identified by its primary key for all but Insert.
The primary key is taken from the identifiers of the property set of the value, or else discovered from the database and cached.
BulkInsert, BulkUpdate and BulkDelete work on many rows at once.

# Dialects

The dialect is detected from the database driver.
Dialects register themselves when their package is imported:

	import _ "github.com/canonical/sqlstore/dialect/sqlite"

# Transactions

Operations run within a transaction when given a context bound to it:

	err := ds.WithTransaction(ctx, func(ctx context.Context, tx sqlstore.Transaction) error {
		if _, err := ds.Insert(ctx, "person", fred); err != nil {
			return err
		}
		_, err := ds.Update(ctx, "team", team)
		return err
	})

Nested calls to WithTransaction join the enclosing transaction.

# Resolvers

The SQL rendering of every expression is done by resolvers, which may be added to the datastore or to a single operation to support new expressions or to render existing ones differently.
See the compose package.
*/
package sqlstore
