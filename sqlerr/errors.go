// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package sqlerr defines the errors returned by the data access layer.
//
// Every error type supports errors.As, and wrapped causes are reachable
// through errors.Is and errors.Unwrap.
package sqlerr

import (
	"errors"
	"fmt"
)

// Code classifies a DataAccessError.
type Code int

const (
	Unknown Code = iota
	IntegrityViolation
	DuplicateKey
	InvalidData
	Timeout
	Connection
	NoPrimaryKey
	NotFound
)

var codeNames = map[Code]string{
	Unknown:            "unknown",
	IntegrityViolation: "integrity violation",
	DuplicateKey:       "duplicate key",
	InvalidData:        "invalid data",
	Timeout:            "timeout",
	Connection:         "connection",
	NoPrimaryKey:       "no primary key",
	NotFound:           "not found",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// InvalidExpressionError reports an expression that failed validation or
// could not be resolved into SQL.
type InvalidExpressionError struct {
	// Expression describes the offending expression, usually its kind.
	Expression string
	Message    string
	Err        error
}

func (e *InvalidExpressionError) Error() string {
	msg := "invalid expression"
	if e.Expression != "" {
		msg += " " + e.Expression
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidExpressionError) Unwrap() error {
	return e.Err
}

// InvalidExpression returns an InvalidExpressionError with a formatted
// message.
func InvalidExpression(expression string, format string, args ...any) error {
	return &InvalidExpressionError{Expression: expression, Message: fmt.Sprintf(format, args...)}
}

// DataAccessError is returned when an operation fails against the database.
type DataAccessError struct {
	Code    Code
	Message string
	Err     error
}

func (e *DataAccessError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "data access error"
	}
	if e.Code != Unknown {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// Is matches another DataAccessError carrying the same code, so that
// errors.Is(err, &DataAccessError{Code: NotFound}) works.
func (e *DataAccessError) Is(target error) bool {
	t, ok := target.(*DataAccessError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Code == e.Code
}

// DataAccess returns a DataAccessError wrapping err.
func DataAccess(code Code, err error, format string, args ...any) error {
	return &DataAccessError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code of the first DataAccessError in the chain of err,
// or Unknown.
func CodeOf(err error) Code {
	var dae *DataAccessError
	if errors.As(err, &dae) {
		return dae.Code
	}
	return Unknown
}

// QueryResultConversionError is returned when a database value cannot be
// converted into the requested type.
type QueryResultConversionError struct {
	Value  any
	Target string
	Err    error
}

func (e *QueryResultConversionError) Error() string {
	msg := fmt.Sprintf("cannot convert %T value to %s", e.Value, e.Target)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *QueryResultConversionError) Unwrap() error {
	return e.Err
}

// StatementConfigurationError is returned when an operation configuration is
// incomplete or inconsistent, before any SQL is executed.
type StatementConfigurationError struct {
	Message string
	Err     error
}

func (e *StatementConfigurationError) Error() string {
	if e.Err != nil {
		return "invalid statement configuration: " + e.Message + ": " + e.Err.Error()
	}
	return "invalid statement configuration: " + e.Message
}

func (e *StatementConfigurationError) Unwrap() error {
	return e.Err
}

// StatementConfiguration returns a StatementConfigurationError.
func StatementConfiguration(format string, args ...any) error {
	return &StatementConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// TransactionError is returned when the database refuses a transaction
// operation.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("cannot %s transaction: %s", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// IllegalTransactionStatusError is returned when a transaction method is
// called in a state that does not allow it.
type IllegalTransactionStatusError struct {
	Op     string
	Status string
}

func (e *IllegalTransactionStatusError) Error() string {
	return fmt.Sprintf("cannot %s transaction: transaction is %s", e.Op, e.Status)
}
