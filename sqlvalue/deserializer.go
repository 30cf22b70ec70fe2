// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlvalue

import (
	"bytes"
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/sqlerr"
)

// Deserializer converts a raw database value into a value of the type of the
// expression it was selected for.
type Deserializer interface {
	Deserialize(e expr.TypedExpression, raw any) (any, error)
}

// DefaultDeserializer converts values returned by database/sql drivers.
type DefaultDeserializer struct{}

type converterExpression interface {
	Converter() expr.PropertyValueConverter
}

// Deserialize implements Deserializer. The expression property converter, if
// any, is applied to the value converted to the converter data type.
func (DefaultDeserializer) Deserialize(e expr.TypedExpression, raw any) (any, error) {
	typ := e.Type()
	var conv expr.PropertyValueConverter
	if ce, ok := e.(converterExpression); ok {
		conv = ce.Converter()
	}
	target := typ
	if conv != nil {
		target = conv.DataType()
	}

	v, err := Convert(raw, target, e.Temporal())
	if err != nil {
		return nil, err
	}
	if conv != nil {
		if v, err = conv.ToModel(v); err != nil {
			return nil, &sqlerr.QueryResultConversionError{Value: raw, Target: typ.String(), Err: err}
		}
	}
	if v != nil && typ != nil && typ != anyType {
		if typ.Kind() == reflect.Pointer {
			typ = typ.Elem()
		}
		if !reflect.TypeOf(v).AssignableTo(typ) {
			return nil, &sqlerr.QueryResultConversionError{Value: v, Target: typ.String()}
		}
	}
	return v, nil
}

// Convert converts raw into a value of type target. Time values are truncated
// according to temporal. A nil raw value converts to nil.
func Convert(raw any, target reflect.Type, temporal expr.TemporalType) (v any, err error) {
	if raw == nil {
		return nil, nil
	}
	if target == nil || target == anyType {
		if b, ok := raw.([]byte); ok {
			return bytes.Clone(b), nil
		}
		return raw, nil
	}
	if target.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	defer func() {
		if err != nil {
			err = &sqlerr.QueryResultConversionError{Value: raw, Target: target.String(), Err: err}
		}
	}()

	if reflect.PointerTo(target).Implements(scannerType) {
		p := reflect.New(target)
		if err := p.Interface().(sql.Scanner).Scan(raw); err != nil {
			return nil, err
		}
		return p.Elem().Interface(), nil
	}

	switch target {
	case timeType:
		t, err := toTime(raw)
		if err != nil {
			return nil, err
		}
		return Truncate(t, temporal), nil
	case bytesType:
		switch r := raw.(type) {
		case []byte:
			return bytes.Clone(r), nil
		case string:
			return []byte(r), nil
		}
		return nil, fmt.Errorf("unsupported conversion")
	case readerType:
		switch r := raw.(type) {
		case []byte:
			return bytes.NewReader(bytes.Clone(r)), nil
		case string:
			return strings.NewReader(r), nil
		}
		return nil, fmt.Errorf("unsupported conversion")
	}

	rt := reflect.ValueOf(raw)
	if rt.Type() == target {
		return raw, nil
	}

	switch target.Kind() {
	case reflect.String:
		s, err := toString(raw, temporal)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(s).Convert(target).Interface(), nil
	case reflect.Bool:
		b, err := toBool(raw)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(b).Convert(target).Interface(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt64(raw)
		if err != nil {
			return nil, err
		}
		out := reflect.New(target).Elem()
		if out.OverflowInt(n) {
			return nil, fmt.Errorf("value %d out of range", n)
		}
		out.SetInt(n)
		return out.Interface(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt64(raw)
		if err != nil {
			return nil, err
		}
		out := reflect.New(target).Elem()
		if n < 0 || out.OverflowUint(uint64(n)) {
			return nil, fmt.Errorf("value %d out of range", n)
		}
		out.SetUint(uint64(n))
		return out.Interface(), nil
	case reflect.Float32, reflect.Float64:
		f, err := toFloat64(raw)
		if err != nil {
			return nil, err
		}
		out := reflect.New(target).Elem()
		if out.OverflowFloat(f) {
			return nil, fmt.Errorf("value %v out of range", f)
		}
		out.SetFloat(f)
		return out.Interface(), nil
	}

	if rt.Type().AssignableTo(target) {
		return raw, nil
	}
	return nil, fmt.Errorf("unsupported conversion")
}

// Truncate drops the date or the time part of t according to temporal: a
// DATE keeps midnight of the same day, a TIME keeps the time of day on
// January 1st of year 0.
func Truncate(t time.Time, temporal expr.TemporalType) time.Time {
	switch temporal {
	case expr.Date:
		return truncateDate(t)
	case expr.Time:
		return time.Date(0, time.January, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	}
	return t
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// timeLayouts are the text formats time values are parsed from, most
// specific first.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"15:04:05.999999999",
	"15:04",
}

func toTime(raw any) (time.Time, error) {
	var s string
	switch r := raw.(type) {
	case time.Time:
		return r, nil
	case int64:
		return time.Unix(r, 0).UTC(), nil
	case string:
		s = r
	case []byte:
		s = string(r)
	default:
		return time.Time{}, fmt.Errorf("unsupported conversion")
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}

func toString(raw any, temporal expr.TemporalType) (string, error) {
	switch r := raw.(type) {
	case string:
		return r, nil
	case []byte:
		return string(r), nil
	case int64:
		return strconv.FormatInt(r, 10), nil
	case float64:
		return strconv.FormatFloat(r, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(r), nil
	case time.Time:
		switch temporal {
		case expr.Date:
			return r.Format("2006-01-02"), nil
		case expr.Time:
			return r.Format(timeLayout), nil
		}
		return r.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return r.String(), nil
	}
	return "", fmt.Errorf("unsupported conversion")
}

func toBool(raw any) (bool, error) {
	switch r := raw.(type) {
	case bool:
		return r, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(r))
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(r)))
	}
	n, err := toInt64(raw)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

func toInt64(raw any) (int64, error) {
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > 1<<63-1 {
			return 0, fmt.Errorf("value %d out of range", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != float64(int64(f)) {
			return 0, fmt.Errorf("value %v is not an integer", f)
		}
		return int64(f), nil
	case reflect.Bool:
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil
	}
	switch r := raw.(type) {
	case string:
		return strconv.ParseInt(strings.TrimSpace(r), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(r)), 10, 64)
	}
	return 0, fmt.Errorf("unsupported conversion")
}

func toFloat64(raw any) (float64, error) {
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	switch r := raw.(type) {
	case string:
		return strconv.ParseFloat(strings.TrimSpace(r), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(r)), 64)
	}
	return 0, fmt.Errorf("unsupported conversion")
}
