// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config loads datastore configurations from YAML files and
// SQLSTORE_* environment variables.
package config

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables overriding the
// configuration. Nested keys are joined with underscores, as in
// SQLSTORE_TRANSACTION_ISOLATION.
const EnvPrefix = "SQLSTORE"

// Config is the configuration of a datastore.
type Config struct {
	// Dialect names the SQL dialect. It is detected from the driver if
	// empty.
	Dialect string `mapstructure:"dialect"`
	// Driver is the database/sql driver name.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`

	// Trace logs every statement with its parameters at TraceLevel.
	Trace      bool   `mapstructure:"trace"`
	TraceLevel string `mapstructure:"trace_level"`

	// IdentifierResolution is one of "auto", "table_primary_key" and
	// "identifier_properties".
	IdentifierResolution string `mapstructure:"identifier_resolution"`
	PrimaryKeyCacheSize  int    `mapstructure:"primary_key_cache_size"`
	// StatementCacheSize is the number of prepared statements kept. Zero is
	// the default size and a negative size disables the cache.
	StatementCacheSize int  `mapstructure:"statement_cache_size"`
	SaveFallback       bool `mapstructure:"save_fallback"`

	Transaction Transaction `mapstructure:"transaction"`
}

// Transaction is the default configuration of transactions.
type Transaction struct {
	Isolation  string `mapstructure:"isolation"`
	ReadOnly   bool   `mapstructure:"read_only"`
	AutoCommit bool   `mapstructure:"auto_commit"`
}

// Default returns the default configuration, which has no driver.
func Default() Config {
	return Config{
		TraceLevel:           "debug",
		IdentifierResolution: "auto",
		SaveFallback:         true,
		Transaction: Transaction{
			Isolation: "default",
		},
	}
}

// NewViper returns a viper instance holding the defaults and reading the
// environment.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("dialect", d.Dialect)
	v.SetDefault("driver", d.Driver)
	v.SetDefault("dsn", d.DSN)
	v.SetDefault("trace", d.Trace)
	v.SetDefault("trace_level", d.TraceLevel)
	v.SetDefault("identifier_resolution", d.IdentifierResolution)
	v.SetDefault("primary_key_cache_size", d.PrimaryKeyCacheSize)
	v.SetDefault("statement_cache_size", d.StatementCacheSize)
	v.SetDefault("save_fallback", d.SaveFallback)
	v.SetDefault("transaction.isolation", d.Transaction.Isolation)
	v.SetDefault("transaction.read_only", d.Transaction.ReadOnly)
	v.SetDefault("transaction.auto_commit", d.Transaction.AutoCommit)
	return v
}

// Load reads the configuration file at path, if not empty, and the
// environment.
func Load(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("cannot read configuration %q: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper returns the validated configuration held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("cannot decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that cfg names a driver and holds valid levels.
func (cfg Config) Validate() error {
	if cfg.Driver == "" {
		return fmt.Errorf("invalid configuration: missing driver")
	}
	if _, err := ParseTraceLevel(cfg.TraceLevel); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.PrimaryKeyCacheSize < 0 {
		return fmt.Errorf("invalid configuration: negative primary key cache size %d", cfg.PrimaryKeyCacheSize)
	}
	if _, err := ParseIsolation(cfg.Transaction.Isolation); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ParseTraceLevel returns the slog level called name, such as "debug" or
// "info". The empty name is debug.
func ParseTraceLevel(name string) (slog.Level, error) {
	if name == "" {
		return slog.LevelDebug, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown trace level %q", name)
	}
	return level, nil
}

var isolationLevels = map[string]sql.IsolationLevel{
	"":                 sql.LevelDefault,
	"default":          sql.LevelDefault,
	"read_uncommitted": sql.LevelReadUncommitted,
	"read_committed":   sql.LevelReadCommitted,
	"write_committed":  sql.LevelWriteCommitted,
	"repeatable_read":  sql.LevelRepeatableRead,
	"snapshot":         sql.LevelSnapshot,
	"serializable":     sql.LevelSerializable,
	"linearizable":     sql.LevelLinearizable,
}

// ParseIsolation returns the isolation level called name, in snake case
// such as "read_committed". The empty name is the driver default.
func ParseIsolation(name string) (sql.IsolationLevel, error) {
	level, ok := isolationLevels[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown isolation level %q", name)
	}
	return level, nil
}
