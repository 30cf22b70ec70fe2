// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/canonical/sqlstore"
	"github.com/canonical/sqlstore/expr"
)

func newPrimaryKeyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pk TABLE",
		Short: "Print the primary key columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := opts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer ds.Close()

			cols, err := ds.PrimaryKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(cols) == 0 {
				return fmt.Errorf("table %q has no primary key", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(cols, ", "))
			return nil
		},
	}
}

// queryOptions holds the flags describing a query.
type queryOptions struct {
	columns []string
	where   string
	order   string
	limit   int
	offset  int
}

func (q *queryOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&q.columns, "columns", nil, "columns to select (required)")
	cmd.Flags().StringVar(&q.where, "where", "", "SQL filter")
	cmd.Flags().StringVar(&q.order, "order", "", "SQL ORDER BY clause content")
	cmd.Flags().IntVar(&q.limit, "limit", 0, "maximum number of rows")
	cmd.Flags().IntVar(&q.offset, "offset", 0, "number of rows to skip")
	cmd.MarkFlagRequired("columns")
}

// build returns the query on table and the property set of the selected
// columns, whose values are read as the driver returns them.
func (q *queryOptions) build(ds *sqlstore.Datastore, table string) (*sqlstore.Query, *expr.PropertySet) {
	paths := make([]expr.Path, len(q.columns))
	for i, col := range q.columns {
		paths[i] = expr.NewPath(strings.TrimSpace(col), nil)
	}
	query := ds.Query(table).Limit(q.limit).Offset(q.offset)
	if q.where != "" {
		query.Filter(expr.Where(q.where))
	}
	if q.order != "" {
		query.Sort(expr.OrderBy(q.order))
	}
	return query, expr.NewPropertySet(paths...)
}

func newQueryCommand(opts *RootOptions) *cobra.Command {
	q := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query TABLE",
		Short: "Run a query and print the rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := opts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer ds.Close()

			query, set := q.build(ds, args[0])
			iter, err := sqlstore.Stream[*expr.PropertyBox](cmd.Context(), query, set)
			if err != nil {
				return err
			}
			defer iter.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, strings.Join(q.columns, "\t"))
			for iter.Next() {
				box := iter.Value()
				cells := make([]string, len(q.columns))
				for i, p := range set.Paths() {
					v, _ := box.Value(p.Name())
					cells[i] = formatValue(v)
				}
				fmt.Fprintln(w, strings.Join(cells, "\t"))
			}
			if err := iter.Close(); err != nil {
				return err
			}
			return w.Flush()
		},
	}
	q.addFlags(cmd)
	return cmd
}

func newSQLCommand(opts *RootOptions) *cobra.Command {
	q := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "sql TABLE",
		Short: "Print the SQL of a query without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := opts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer ds.Close()

			query, set := q.build(ds, args[0])
			composed, err := query.SQL(set)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, composed.SQL)
			for i, p := range composed.Params {
				fmt.Fprintf(out, "$%d = %s\n", i+1, formatValue(p.Value))
			}
			return nil
		},
	}
	q.addFlags(cmd)
	return cmd
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	case string:
		return v
	}
	return fmt.Sprint(v)
}
