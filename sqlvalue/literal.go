// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlvalue

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/canonical/sqlstore/expr"
)

// LiteralSerializer renders values inline as SQL literals.
type LiteralSerializer interface {
	Serialize(value any, temporal expr.TemporalType) (string, error)
}

// DefaultLiteralSerializer renders ANSI SQL literals.
type DefaultLiteralSerializer struct {
	// NumericBooleans renders booleans as 1 and 0 instead of TRUE and FALSE.
	NumericBooleans bool
}

// Serialize implements LiteralSerializer.
func (s DefaultLiteralSerializer) Serialize(value any, temporal expr.TemporalType) (string, error) {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "NULL", nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return "NULL", nil
	}
	value = rv.Interface()

	switch v := value.(type) {
	case Enum:
		return strconv.Itoa(v.Ordinal()), nil
	case time.Time:
		switch temporal {
		case expr.Date:
			return "'" + v.Format("2006-01-02") + "'", nil
		case expr.Time:
			return "'" + v.Format(timeLayout) + "'", nil
		}
		return "'" + v.Format("2006-01-02 15:04:05.999999999") + "'", nil
	case []byte:
		return "X'" + strings.ToUpper(hex.EncodeToString(v)) + "'", nil
	case uuid.UUID:
		return quote(v.String()), nil
	case decimal.Decimal:
		return v.String(), nil
	}

	switch rv.Kind() {
	case reflect.String:
		return quote(rv.String()), nil
	case reflect.Bool:
		switch {
		case s.NumericBooleans && rv.Bool():
			return "1", nil
		case s.NumericBooleans:
			return "0", nil
		case rv.Bool():
			return "TRUE", nil
		}
		return "FALSE", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), nil
	}
	return "", fmt.Errorf("cannot serialize %T as a literal", value)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
