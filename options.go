// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore

import (
	"log/slog"

	"github.com/canonical/sqlstore/compose"
	"github.com/canonical/sqlstore/dialect"
)

type options struct {
	dialect             dialect.Dialect
	dialectName         string
	provider            ConnectionProvider
	resolvers           []compose.Resolver
	logger              *slog.Logger
	trace               bool
	traceLevel          slog.Level
	identifiers         IdentifierResolution
	primaryKeyCacheSize int
	statementCacheSize  int
	saveFallback        bool
	txDefaults          TransactionConfig
}

func newOptions(opts []Option) *options {
	o := &options{
		traceLevel:   slog.LevelDebug,
		saveFallback: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Option configures a Datastore.
type Option func(*options)

// WithDialect sets the datastore dialect. It is initialized by New.
func WithDialect(d dialect.Dialect) Option {
	return func(o *options) {
		o.dialect = d
	}
}

// WithDialectName sets the datastore dialect by registered name.
func WithDialectName(name string) Option {
	return func(o *options) {
		o.dialectName = name
	}
}

// WithConnectionProvider sets the provider of the connections used to
// initialize the dialect, share a connection and run transactions. By
// default connections are taken from the database pool.
func WithConnectionProvider(p ConnectionProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithResolvers registers datastore level resolvers.
func WithResolvers(rs ...compose.Resolver) Option {
	return func(o *options) {
		o.resolvers = append(o.resolvers, rs...)
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTrace enables the logging of every executed statement with its
// parameters.
func WithTrace(enabled bool) Option {
	return func(o *options) {
		o.trace = enabled
	}
}

// WithTraceLevel sets the level statements are traced at. The default is
// debug.
func WithTraceLevel(level slog.Level) Option {
	return func(o *options) {
		o.traceLevel = level
	}
}

// WithIdentifierResolution sets how the primary key of write operations is
// found.
func WithIdentifierResolution(r IdentifierResolution) Option {
	return func(o *options) {
		o.identifiers = r
	}
}

// WithPrimaryKeyCacheSize sets the number of tables whose primary key is
// cached.
func WithPrimaryKeyCacheSize(n int) Option {
	return func(o *options) {
		o.primaryKeyCacheSize = n
	}
}

// WithStatementCacheSize sets the number of prepared statements cached. A
// negative size disables the cache.
func WithStatementCacheSize(n int) Option {
	return func(o *options) {
		o.statementCacheSize = n
	}
}

// WithSaveFallback sets whether Save inserts when the existence of the value
// cannot be checked, because there is no primary key or the check fails. It
// is enabled by default.
func WithSaveFallback(enabled bool) Option {
	return func(o *options) {
		o.saveFallback = enabled
	}
}

// WithTransactionDefaults sets the configuration of transactions created
// without one.
func WithTransactionDefaults(cfg TransactionConfig) Option {
	return func(o *options) {
		o.txDefaults = cfg
	}
}

// WriteOption modifies a write operation.
type WriteOption int

const (
	// BringBackGeneratedIDs writes the keys generated by an insert back into
	// the inserted value.
	BringBackGeneratedIDs WriteOption = iota + 1
)

func hasOption(opts []WriteOption, opt WriteOption) bool {
	for _, o := range opts {
		if o == opt {
			return true
		}
	}
	return false
}
