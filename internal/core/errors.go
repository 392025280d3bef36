package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the import pipeline. Detail types below wrap one of
// these so callers can match with errors.Is regardless of the detail.
var (
	ErrFormat                = errors.New("invalid csv format")
	ErrEncoding              = errors.New("encoding error")
	ErrFileTooLarge          = errors.New("file too large")
	ErrTooManyRows           = errors.New("too many rows")
	ErrDuplicateColumn       = errors.New("duplicate column")
	ErrMissingRequiredColumn = errors.New("missing required column")
	ErrUnknownCategory       = errors.New("unknown category")
	ErrInvalidDateFormat     = errors.New("invalid date format")
	ErrInvalidNumber         = errors.New("invalid number")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrMissingValue          = errors.New("required field is empty")
	ErrTooManyErrors         = errors.New("too many invalid rows")
	ErrNetwork               = errors.New("network error")
	ErrConflict              = errors.New("record already exists")
	ErrUnknownDocType        = errors.New("unknown document type")
	ErrJobNotFound           = errors.New("import job not found")
	ErrNoPendingConflict     = errors.New("no pending conflict")
	ErrBadRequest            = errors.New("invalid request")
)

// ColumnError is a header-level error naming the offending columns.
type ColumnError struct {
	Kind    error
	Columns []string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Columns, ", "))
}

func (e *ColumnError) Unwrap() error { return e.Kind }

// CellError is a single invalid cell.
type CellError struct {
	Kind   error
	Column string
	Value  string
	Detail string // Optional extra context, e.g. the allowed range
}

func (e *CellError) Error() string {
	msg := fmt.Sprintf("%s for %q: %q", e.Kind, e.Column, e.Value)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *CellError) Unwrap() error { return e.Kind }

// LimitError reports a document that exceeds a size or row ceiling.
type LimitError struct {
	Kind   error
	Limit  int64
	Actual int64
	Unit   string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %d %s exceeds limit of %d", e.Kind, e.Actual, e.Unit, e.Limit)
}

func (e *LimitError) Unwrap() error { return e.Kind }

// TooManyErrorsError is returned when the rejected row count crosses the
// circuit breaker threshold. Sample holds the first rejections.
type TooManyErrorsError struct {
	Rejected  int
	Total     int
	Threshold int
	Sample    []RejectedRow
}

func (e *TooManyErrorsError) Error() string {
	return fmt.Sprintf("%s: %d of %d rows rejected (threshold %d)", ErrTooManyErrors, e.Rejected, e.Total, e.Threshold)
}

func (e *TooManyErrorsError) Unwrap() error { return ErrTooManyErrors }

// NetworkError wraps a transport failure talking to the record backend.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrNetwork, e.Op, e.Err)
}

// Is matches ErrNetwork as well as the wrapped cause.
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

func (e *NetworkError) Unwrap() error { return e.Err }
