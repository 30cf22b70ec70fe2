// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore

import (
	"context"

	"github.com/canonical/sqlstore/config"
)

// ConfigOptions returns the options matching cfg.
func ConfigOptions(cfg config.Config) ([]Option, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	traceLevel, err := config.ParseTraceLevel(cfg.TraceLevel)
	if err != nil {
		return nil, err
	}
	identifiers, err := ParseIdentifierResolution(cfg.IdentifierResolution)
	if err != nil {
		return nil, err
	}
	isolation, err := config.ParseIsolation(cfg.Transaction.Isolation)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithTrace(cfg.Trace),
		WithTraceLevel(traceLevel),
		WithIdentifierResolution(identifiers),
		WithPrimaryKeyCacheSize(cfg.PrimaryKeyCacheSize),
		WithStatementCacheSize(cfg.StatementCacheSize),
		WithSaveFallback(cfg.SaveFallback),
		WithTransactionDefaults(TransactionConfig{
			Isolation:  isolation,
			ReadOnly:   cfg.Transaction.ReadOnly,
			AutoCommit: cfg.Transaction.AutoCommit,
		}),
	}
	if cfg.Dialect != "" {
		opts = append(opts, WithDialectName(cfg.Dialect))
	}
	return opts, nil
}

// NewFromConfig opens the database described by cfg and returns a datastore
// over it. Options given after cfg override its settings.
func NewFromConfig(ctx context.Context, cfg config.Config, opts ...Option) (*Datastore, error) {
	cfgOpts, err := ConfigOptions(cfg)
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg.Driver, cfg.DSN, append(cfgOpts, opts...)...)
}
