// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore

import (
	"context"
	"database/sql"
)

func StatementCacheLen(ds *Datastore) int {
	return ds.stmts.len()
}

func PrimaryKeyCacheLen(ds *Datastore) int {
	return ds.keys.Len()
}

// PrepareCached returns the statement the pool runs query with, and the
// function releasing it.
func PrepareCached(ctx context.Context, ds *Datastore, query string) (*sql.Stmt, func(), error) {
	return poolRunner{db: ds.db, stmts: ds.stmts}.prepare(ctx, query)
}
