// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package expr is the query and persistence model of sqlstore.

Expressions are immutable trees describing data targets, paths, constants,
filters, sorts, functions and projections. Every expression has a Kind, a dot
separated tag used to pick the resolvers that turn it into SQL, and validates
itself before resolution.

	var (
		id   = expr.NewProperty[int64]("id")
		name = expr.NewProperty[string]("name")
	)

	filter := expr.And(id.GT(10), name.StartsWith("Fr", true))
	set := expr.NewPropertySet(id, name).WithIdentifiers("id")
*/
package expr
