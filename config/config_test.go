// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package config_test

import (
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/sqlstore/config"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "sqlstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
dialect: sqlite
driver: sqlite3
dsn: file:test.db
trace: true
trace_level: info
identifier_resolution: table_primary_key
statement_cache_size: -1
save_fallback: false
transaction:
  isolation: serializable
  auto_commit: true
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Config{
		Dialect:              "sqlite",
		Driver:               "sqlite3",
		DSN:                  "file:test.db",
		Trace:                true,
		TraceLevel:           "info",
		IdentifierResolution: "table_primary_key",
		StatementCacheSize:   -1,
		SaveFallback:         false,
		Transaction: config.Transaction{
			Isolation:  "serializable",
			AutoCommit: true,
		},
	}, cfg)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "driver: postgres\n"))
	require.NoError(t, err)

	want := config.Default()
	want.Driver = "postgres"
	assert.Equal(t, want, cfg)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("SQLSTORE_DRIVER", "mysql")
	t.Setenv("SQLSTORE_DSN", "user@/db")
	t.Setenv("SQLSTORE_TRANSACTION_ISOLATION", "read_committed")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Driver)
	assert.Equal(t, "user@/db", cfg.DSN)
	assert.Equal(t, "read_committed", cfg.Transaction.Isolation)

	// The environment overrides the file.
	cfg, err = config.Load(writeConfig(t, "driver: sqlite3\ndsn: file:test.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Driver)
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "cannot read configuration")

	_, err = config.Load(writeConfig(t, "dsn: file:test.db\n"))
	assert.EqualError(t, err, "invalid configuration: missing driver")

	_, err = config.Load(writeConfig(t, "driver: sqlite3\ntrace_level: loud\n"))
	assert.EqualError(t, err, `invalid configuration: unknown trace level "loud"`)

	_, err = config.Load(writeConfig(t, "driver: sqlite3\ntransaction:\n  isolation: eventual\n"))
	assert.EqualError(t, err, `invalid configuration: unknown isolation level "eventual"`)

	_, err = config.Load(writeConfig(t, "driver: sqlite3\nprimary_key_cache_size: -2\n"))
	assert.EqualError(t, err, "invalid configuration: negative primary key cache size -2")
}

func TestParseTraceLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"":      slog.LevelDebug,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
	} {
		level, err := config.ParseTraceLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, level, name)
	}
}

func TestParseIsolation(t *testing.T) {
	for name, want := range map[string]sql.IsolationLevel{
		"":                sql.LevelDefault,
		"default":         sql.LevelDefault,
		"READ_COMMITTED":  sql.LevelReadCommitted,
		"repeatable_read": sql.LevelRepeatableRead,
		"serializable":    sql.LevelSerializable,
	} {
		level, err := config.ParseIsolation(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, level, name)
	}
}
