// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore

import (
	"context"
	"log/slog"
	"time"
)

// traceStatement logs an executed statement and its bound parameters when
// tracing is enabled.
func (ds *Datastore) traceStatement(ctx context.Context, op string, query string, args []any, start time.Time, err error) {
	if !ds.trace {
		return
	}
	attrs := []slog.Attr{
		slog.String("operation", op),
		slog.String("sql", query),
		slog.Any("params", args),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	ds.logger.LogAttrs(ctx, ds.traceLevel, "sql", attrs...)
}

func (ds *Datastore) traceTransaction(op string) {
	if !ds.trace {
		return
	}
	ds.logger.LogAttrs(context.Background(), ds.traceLevel, "transaction", slog.String("operation", op))
}
