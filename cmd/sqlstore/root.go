// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/canonical/sqlstore"
	"github.com/canonical/sqlstore/config"
	_ "github.com/canonical/sqlstore/dialect/dqlite"
	_ "github.com/canonical/sqlstore/dialect/mysql"
	_ "github.com/canonical/sqlstore/dialect/postgres"
	_ "github.com/canonical/sqlstore/dialect/sqlite"
)

// RootOptions holds the global flags.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand returns the sqlstore command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:          "sqlstore",
		Short:        "Inspect and query a database through a datastore",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "configuration file (YAML)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log every statement")

	cmd.AddCommand(newPrimaryKeyCommand(opts))
	cmd.AddCommand(newQueryCommand(opts))
	cmd.AddCommand(newSQLCommand(opts))
	return cmd
}

// open returns the datastore of the configuration. Statements are logged to
// the command error output.
func (opts *RootOptions) open(ctx context.Context, cmd *cobra.Command) (*sqlstore.Datastore, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if opts.Verbose {
		cfg.Trace = true
		cfg.TraceLevel = "info"
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return sqlstore.NewFromConfig(ctx, cfg, sqlstore.WithLogger(logger))
}
