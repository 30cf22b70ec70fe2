// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package demo walks through joins, aggregates and property boxes on an
// in-memory SQLite database.
package demo

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	_ "github.com/mattn/go-sqlite3"

	"github.com/canonical/sqlstore"
	_ "github.com/canonical/sqlstore/dialect/sqlite"
	"github.com/canonical/sqlstore/expr"
)

type Person struct {
	Name     string `db:"name,key"`
	Height   int    `db:"height_cm"`
	HomeTown string `db:"home_town"`
}

type Place struct {
	Name       string `db:"town_name,key"`
	Population int    `db:"population"`
}

var (
	name       = expr.NewProperty[string]("name").Of("people")
	height     = expr.NewProperty[int64]("height_cm").Of("people")
	homeTown   = expr.NewProperty[string]("home_town").Of("people")
	townName   = expr.NewProperty[string]("town_name").Of("location")
	population = expr.NewProperty[int64]("population").Of("location")
)

const schema = `
CREATE TABLE people (
	name text PRIMARY KEY,
	height_cm integer,
	home_town text
);
CREATE TABLE location (
	town_name text PRIMARY KEY,
	population integer
);`

// Run creates and fills the tables, then writes the answers to a few
// questions about them to w.
func Run(ctx context.Context, w io.Writer) error {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)
	ds, err := sqlstore.New(ctx, db)
	if err != nil {
		return err
	}
	defer ds.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return err
	}

	people := []*Person{{"Jim", 150, "Kabul"}, {"Saba", 162, "Berlin"}, {"Dave", 169, "Brasília"}, {"Sophie", 174, "Berlin"}, {"Kiri", 168, "Cape Town"}}
	places := []*Place{{"Kabul", 13000000}, {"Berlin", 3677472}, {"Brasília", 3039444}, {"Cape Town", 4710000}}
	err = ds.WithTransaction(ctx, func(ctx context.Context, tx sqlstore.Transaction) error {
		bulk := ds.BulkInsert("people")
		for _, p := range people {
			bulk.Add(p)
		}
		if _, err := bulk.Execute(ctx); err != nil {
			return err
		}
		for _, p := range places {
			if _, err := ds.Insert(ctx, "location", p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// People taller than Jim.
	jim := people[0]
	iter, err := sqlstore.Stream[string](ctx,
		ds.Query("people").Filter(height.GT(int64(jim.Height))).Sort(height.Asc()),
		expr.Select(name))
	if err != nil {
		return err
	}
	for iter.Next() {
		fmt.Fprintf(w, "%s is taller than %s.\n", iter.Value(), jim.Name)
	}
	if err := iter.Close(); err != nil {
		return err
	}

	// Towns of the people taller than Jim.
	target := expr.Target("people").InnerJoin("location", expr.EqualTo(homeTown, townName))
	towns, err := ds.QueryTarget(target).
		Filter(height.GT(int64(jim.Height))).
		Sort(population.Desc()).
		Distinct().
		PropertyBoxes(ctx, expr.NewPropertySet(townName, population))
	if err != nil {
		return err
	}
	for _, town := range towns {
		n, _ := expr.Value(town, townName)
		p, _ := expr.Value(town, population)
		fmt.Fprintf(w, "%s (%d inhabitants) has people taller than %s.\n", n, p, jim.Name)
	}

	// Average height in Berlin.
	avg, err := sqlstore.FindOne[float64](ctx,
		ds.Query("people").Filter(homeTown.EQ("Berlin")),
		expr.Select(expr.Avg(height)))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "People from Berlin are %.1f cm tall on average.\n", avg)
	return nil
}
