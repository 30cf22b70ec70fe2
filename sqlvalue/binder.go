// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package sqlvalue converts Go values to statement parameters and database
// values back to Go values.
package sqlvalue

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/canonical/sqlstore/expr"
)

// Enum is implemented by enumeration types bound by ordinal.
type Enum interface {
	Ordinal() int
}

// Binder turns a value into a driver argument, given the declared type and
// temporal qualifier of the parameter.
type Binder interface {
	Bind(value any, typ reflect.Type, temporal expr.TemporalType) (any, error)
}

// DefaultBinder binds values for database/sql drivers.
type DefaultBinder struct{}

var (
	timeType    = reflect.TypeOf(time.Time{})
	anyType     = reflect.TypeOf((*any)(nil)).Elem()
	bytesType   = reflect.TypeOf([]byte(nil))
	readerType  = reflect.TypeOf((*io.Reader)(nil)).Elem()
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// timeLayout is used to bind TIME values, which drivers have no native type
// for.
const timeLayout = "15:04:05.999999999"

// Bind implements Binder.
func (DefaultBinder) Bind(value any, typ reflect.Type, temporal expr.TemporalType) (any, error) {
	if typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Null(typ), nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return Null(typ), nil
	}
	value = rv.Interface()

	switch v := value.(type) {
	case Enum:
		return int64(v.Ordinal()), nil
	case time.Time:
		return bindTime(v, temporal), nil
	case []byte:
		return v, nil
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return nil, fmt.Errorf("cannot read stream: %w", err)
		}
		if typ != nil && typ.Kind() == reflect.String {
			return string(data), nil
		}
		return data, nil
	case uuid.UUID:
		return v.String(), nil
	case decimal.Decimal:
		if typ != nil && (typ.Kind() == reflect.Float64 || typ.Kind() == reflect.Float32) {
			return v.InexactFloat64(), nil
		}
		return v.String(), nil
	case driver.Valuer:
		return v, nil
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return coerceInt(rv.Int(), typ)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int64", u)
		}
		return coerceInt(int64(u), typ)
	case reflect.Float32, reflect.Float64:
		return coerceFloat(rv.Float(), typ)
	}
	return value, nil
}

func bindTime(t time.Time, temporal expr.TemporalType) any {
	switch temporal {
	case expr.Date:
		return truncateDate(t)
	case expr.Time:
		return t.Format(timeLayout)
	}
	return t
}

// coerceInt converts n to the numeric kind of typ, failing if it does not
// fit. Named types are bound as their underlying kind.
func coerceInt(n int64, typ reflect.Type) (any, error) {
	if typ == nil {
		return n, nil
	}
	switch typ.Kind() {
	case reflect.Int8:
		if n < math.MinInt8 || n > math.MaxInt8 {
			return nil, overflow(n, typ)
		}
		return int8(n), nil
	case reflect.Int16:
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, overflow(n, typ)
		}
		return int16(n), nil
	case reflect.Int32:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, overflow(n, typ)
		}
		return int32(n), nil
	case reflect.Uint8:
		if n < 0 || n > math.MaxUint8 {
			return nil, overflow(n, typ)
		}
		return uint8(n), nil
	case reflect.Uint16:
		if n < 0 || n > math.MaxUint16 {
			return nil, overflow(n, typ)
		}
		return uint16(n), nil
	case reflect.Uint32:
		if n < 0 || n > math.MaxUint32 {
			return nil, overflow(n, typ)
		}
		return uint32(n), nil
	case reflect.Uint, reflect.Uint64:
		if n < 0 {
			return nil, overflow(n, typ)
		}
		return n, nil
	case reflect.Float32:
		return float32(n), nil
	case reflect.Float64:
		return float64(n), nil
	}
	return n, nil
}

func coerceFloat(f float64, typ reflect.Type) (any, error) {
	if typ == nil {
		return f, nil
	}
	switch typ.Kind() {
	case reflect.Float32:
		if math.Abs(f) > math.MaxFloat32 {
			return nil, overflow(f, typ)
		}
		return float32(f), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if f != math.Trunc(f) || f >= 1<<63 || f < -(1<<63) {
			return nil, fmt.Errorf("cannot bind %v as %s without loss", f, typ)
		}
		return coerceInt(int64(f), typ)
	}
	return f, nil
}

func overflow(v any, typ reflect.Type) error {
	return fmt.Errorf("value %v overflows %s", v, typ)
}

// Null returns a typed NULL argument for the declared type typ.
func Null(typ reflect.Type) any {
	if typ == nil {
		return nil
	}
	if typ == timeType {
		return sql.NullTime{}
	}
	switch typ.Kind() {
	case reflect.String:
		return sql.NullString{}
	case reflect.Bool:
		return sql.NullBool{}
	case reflect.Int8, reflect.Int16:
		return sql.NullInt16{}
	case reflect.Int32:
		return sql.NullInt32{}
	case reflect.Uint8:
		return sql.NullByte{}
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return sql.NullInt64{}
	case reflect.Float32, reflect.Float64:
		return sql.NullFloat64{}
	case reflect.Slice:
		if typ.Elem().Kind() == reflect.Uint8 {
			return []byte(nil)
		}
	}
	return nil
}
