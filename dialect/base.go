// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dialect

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/sqlerr"
	"github.com/canonical/sqlstore/sqlexpr"
	"github.com/canonical/sqlstore/sqlvalue"
)

// IdentifierCase is the case table and column names are normalized to.
type IdentifierCase int

const (
	AsIs IdentifierCase = iota
	UpperCase
	LowerCase
)

// ErrorClassifier returns the code of a driver error, if it recognises it.
type ErrorClassifier func(err error) (sqlerr.Code, bool)

// Base is an ANSI SQL dialect. Concrete dialects embed it and override what
// their database does differently.
type Base struct {
	name              string
	bindType          int
	identifiers       IdentifierCase
	likeEscape        bool
	generatedKeys     bool
	keyAlwaysReturned bool
	keysByName        bool
	literals          sqlvalue.DefaultLiteralSerializer
	functions         map[string]*sqlexpr.Function
	classify          ErrorClassifier
}

// Option configures a Base dialect.
type Option func(*Base)

// WithName overrides the dialect name.
func WithName(name string) Option {
	return func(b *Base) { b.name = name }
}

// WithBindType sets the placeholder style, one of the sqlx bind types.
func WithBindType(bindType int) Option {
	return func(b *Base) { b.bindType = bindType }
}

// WithDriverName sets the placeholder style used by the named
// database/sql driver.
func WithDriverName(driverName string) Option {
	return func(b *Base) {
		if t := sqlx.BindType(driverName); t != sqlx.UNKNOWN {
			b.bindType = t
		}
	}
}

// WithIdentifierCase sets the case table and column names are normalized to.
func WithIdentifierCase(c IdentifierCase) Option {
	return func(b *Base) { b.identifiers = c }
}

// WithoutLikeEscape declares that LIKE has no ESCAPE clause.
func WithoutLikeEscape() Option {
	return func(b *Base) { b.likeEscape = false }
}

// WithGeneratedKeys declares that generated keys are reported as the last
// insert id.
func WithGeneratedKeys(alwaysReturned bool) Option {
	return func(b *Base) {
		b.generatedKeys = true
		b.keyAlwaysReturned = alwaysReturned
	}
}

// WithGeneratedKeysByName declares that generated keys are returned by a
// RETURNING clause.
func WithGeneratedKeysByName() Option {
	return func(b *Base) { b.keysByName = true }
}

// WithNumericBooleans renders boolean literals as 1 and 0.
func WithNumericBooleans() Option {
	return func(b *Base) { b.literals.NumericBooleans = true }
}

// WithFunction renders the function named name with f.
func WithFunction(name string, f *sqlexpr.Function) Option {
	return func(b *Base) { b.functions[name] = f }
}

// WithErrorClassifier sets how driver errors are classified.
func WithErrorClassifier(classify ErrorClassifier) Option {
	return func(b *Base) { b.classify = classify }
}

// NewBase returns an ANSI dialect named name.
func NewBase(name string, opts ...Option) *Base {
	b := &Base{
		name:       name,
		bindType:   sqlx.QUESTION,
		likeEscape: true,
		functions: map[string]*sqlexpr.Function{
			expr.FunctionAvg:              sqlexpr.NewFunction("AVG"),
			expr.FunctionMin:              sqlexpr.NewFunction("MIN"),
			expr.FunctionMax:              sqlexpr.NewFunction("MAX"),
			expr.FunctionSum:              sqlexpr.NewFunction("SUM"),
			expr.FunctionLower:            sqlexpr.NewFunction("LOWER"),
			expr.FunctionUpper:            sqlexpr.NewFunction("UPPER"),
			expr.FunctionCurrentDate:      sqlexpr.Keyword("CURRENT_DATE"),
			expr.FunctionCurrentTimestamp: sqlexpr.Keyword("CURRENT_TIMESTAMP"),
			expr.FunctionYear:             sqlexpr.Template("YEAR", "EXTRACT(YEAR FROM ?)"),
			expr.FunctionMonth:            sqlexpr.Template("MONTH", "EXTRACT(MONTH FROM ?)"),
			expr.FunctionDay:              sqlexpr.Template("DAY", "EXTRACT(DAY FROM ?)"),
			expr.FunctionHour:             sqlexpr.Template("HOUR", "EXTRACT(HOUR FROM ?)"),
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Base) Name() string {
	return b.name
}

// Init does nothing.
func (b *Base) Init(ctx context.Context, q Querier) error {
	return nil
}

func (b *Base) Placeholder(n int) string {
	switch b.bindType {
	case sqlx.DOLLAR:
		return "$" + strconv.Itoa(n)
	case sqlx.NAMED:
		return ":arg" + strconv.Itoa(n)
	case sqlx.AT:
		return "@p" + strconv.Itoa(n)
	}
	return "?"
}

// LimitClause uses the SQL:2008 OFFSET and FETCH FIRST clauses.
func (b *Base) LimitClause(sql string, limit, offset int) string {
	if offset > 0 {
		sql += " OFFSET " + strconv.Itoa(offset) + " ROWS"
	}
	if limit > 0 {
		sql += " FETCH FIRST " + strconv.Itoa(limit) + " ROWS ONLY"
	}
	return sql
}

type distinctFunction interface {
	Distinct() bool
}

func (b *Base) ResolveFunction(f expr.Function) (*sqlexpr.Function, bool) {
	if f.Name() == expr.FunctionCount {
		switch {
		case len(f.Args()) == 0:
			return sqlexpr.Keyword("COUNT(*)"), true
		case isDistinct(f):
			return sqlexpr.Template("COUNT", "COUNT(DISTINCT ?)"), true
		}
		return sqlexpr.NewFunction("COUNT"), true
	}
	fn, ok := b.functions[f.Name()]
	return fn, ok
}

func isDistinct(f expr.Function) bool {
	d, ok := f.(distinctFunction)
	return ok && d.Distinct()
}

func (b *Base) TableName(name string) string {
	return b.normalize(name)
}

func (b *Base) ColumnName(name string) string {
	return b.normalize(name)
}

func (b *Base) normalize(name string) string {
	switch b.identifiers {
	case UpperCase:
		return cases.Upper(language.Und).String(name)
	case LowerCase:
		return cases.Lower(language.Und).String(name)
	}
	return name
}

func (b *Base) SupportsLikeEscapeClause() bool {
	return b.likeEscape
}

func (b *Base) SupportsGetGeneratedKeys() bool {
	return b.generatedKeys
}

func (b *Base) GeneratedKeyAlwaysReturned() bool {
	return b.keyAlwaysReturned
}

func (b *Base) SupportsGetGeneratedKeyByName() bool {
	return b.keysByName
}

func (b *Base) ReturningClause(keys []string) string {
	cols := make([]string, len(keys))
	for i, k := range keys {
		cols[i] = b.ColumnName(k)
	}
	return " RETURNING " + strings.Join(cols, ", ")
}

func (b *Base) ParameterCast(typ reflect.Type, temporal expr.TemporalType) string {
	return ""
}

const ansiPrimaryKeyQuery = `
SELECT kcu.COLUMN_NAME
FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
  ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME AND tc.TABLE_NAME = kcu.TABLE_NAME
WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND tc.TABLE_NAME = ?
ORDER BY kcu.ORDINAL_POSITION`

// PrimaryKey reads the primary key from INFORMATION_SCHEMA.
func (b *Base) PrimaryKey(ctx context.Context, q Querier, table string) ([]string, error) {
	query := strings.Replace(ansiPrimaryKeyQuery, "?", b.Placeholder(1), 1)
	return QueryColumn(ctx, q, query, b.TableName(table))
}

func (b *Base) ValueDeserializer() sqlvalue.Deserializer {
	return sqlvalue.DefaultDeserializer{}
}

func (b *Base) ValueSerializer() sqlvalue.LiteralSerializer {
	return b.literals
}

func (b *Base) ParameterBinder() sqlvalue.Binder {
	return sqlvalue.DefaultBinder{}
}

// TranslateError classifies err with the dialect error classifier, falling
// back to the errors database/sql and context report.
func (b *Base) TranslateError(err error) error {
	if err == nil {
		return nil
	}
	var dae *sqlerr.DataAccessError
	if errors.As(err, &dae) {
		return err
	}
	code := sqlerr.Unknown
	if c, ok := b.classifyError(err); ok {
		code = c
	}
	return &sqlerr.DataAccessError{Code: code, Err: err}
}

func (b *Base) classifyError(err error) (sqlerr.Code, bool) {
	if b.classify != nil {
		if c, ok := b.classify(err); ok {
			return c, true
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return sqlerr.Timeout, true
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return sqlerr.Connection, true
	}
	return sqlerr.Unknown, false
}

// QueryColumn runs query and returns the values of its first column as
// strings.
func QueryColumn(ctx context.Context, q Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := []string{}
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}

// QueryString runs a query returning a single string, such as a server
// version.
func QueryString(ctx context.Context, q Querier, query string) (string, error) {
	var s string
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", err
		}
		return "", sql.ErrNoRows
	}
	if err := rows.Scan(&s); err != nil {
		return "", err
	}
	return s, rows.Err()
}
