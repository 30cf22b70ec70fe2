// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlexpr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/canonical/sqlstore/expr"
)

// Row is a result row, with values keyed by selection label.
type Row interface {
	Value(label string) (any, bool)
}

// ResultConverter converts result rows into values of ConversionType.
type ResultConverter interface {
	ConversionType() reflect.Type
	Convert(row Row) (any, error)
}

// Selection is a single selected SQL expression and its label.
type Selection struct {
	Label string
	SQL   string
	// Expr is the selected model expression, used to convert its values.
	Expr expr.TypedExpression
}

// Projection is the ordered list of selections of a query.
type Projection struct {
	Selections []Selection
	Converter  ResultConverter
}

func (p Projection) Kind() expr.Kind {
	return KindProjection
}

func (p Projection) Validate() error {
	if len(p.Selections) == 0 {
		return fmt.Errorf("empty projection")
	}
	return nil
}

// Labels returns the selection labels in order.
func (p Projection) Labels() []string {
	labels := make([]string, len(p.Selections))
	for i, s := range p.Selections {
		labels[i] = s.Label
	}
	return labels
}

// SQL renders the select list.
func (p Projection) SQL() string {
	parts := make([]string, len(p.Selections))
	for i, s := range p.Selections {
		if s.SQL == s.Label || strings.HasSuffix(s.SQL, "."+s.Label) {
			parts[i] = s.SQL
		} else {
			parts[i] = s.SQL + " AS " + s.Label
		}
	}
	return strings.Join(parts, ", ")
}

// ProjectionBuilder accumulates selections during one resolution pass. It
// must not be used after Build.
type ProjectionBuilder struct {
	selections []Selection
	labels     map[string]bool
	built      bool
}

// NewProjectionBuilder returns an empty builder.
func NewProjectionBuilder() *ProjectionBuilder {
	return &ProjectionBuilder{labels: map[string]bool{}}
}

// Add appends a selection of sql for e, labelled label or, if label is
// taken, with a numbered variant of it. It returns the label used.
func (b *ProjectionBuilder) Add(label, sql string, e expr.TypedExpression) string {
	if b.built {
		panic("sqlexpr: projection builder used after Build")
	}
	if label == "" {
		label = "c"
	}
	unique := label
	for i := 1; b.labels[strings.ToLower(unique)]; i++ {
		unique = label + "_" + strconv.Itoa(i)
	}
	b.labels[strings.ToLower(unique)] = true
	b.selections = append(b.selections, Selection{Label: unique, SQL: sql, Expr: e})
	return unique
}

// Build finalizes the projection.
func (b *ProjectionBuilder) Build(converter ResultConverter) Projection {
	b.built = true
	return Projection{Selections: b.selections, Converter: converter}
}
