package core

// error_messages.go maps pipeline errors to user-facing messages with a code
// that can be quoted to support.
//
// # Error Codes Reference
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid period: expected YYYY-MM between 1970-01 and 9999-12
//	VAL002 - Invalid number: not a decimal number
//	VAL003 - Negative amount: amounts must be zero or greater
//	VAL004 - Required field: a required cell is empty
//	VAL005 - Missing column: a required column is missing from the header
//	VAL006 - Duplicate column: a column name appears more than once
//	VAL007 - Unknown category: a column is not in the allowed category list
//	VAL008 - Too many invalid rows: the circuit breaker tripped
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Invalid CSV
//	FILE003 - Encoding error: not UTF-8
//	FILE004 - Too many rows
//	FILE005 - Empty file
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Backend unreachable (network error)
//	IMP002 - System busy: too many concurrent imports
//	IMP003 - Import job not found or expired
//	IMP004 - Unknown document type
//	IMP005 - No pending conflict
//	IMP006 - Record already exists
//	IMP007 - Request cancelled
//	IMP008 - Request timed out
//	IMP009 - Import history not configured
//	IMP010 - Malformed request body or parameter
//
// # Database Errors (DB001-DB099)
//
// Raised by the PostgreSQL store and matched by message pattern:
//
//	DB001 - Unique constraint
//	DB002 - Connection refused
//	DB003 - Connection reset
//	DB004 - Deadlock
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the logs for the technical error.
//
// Sentinel errors are matched first with errors.Is, so wrapped errors map
// correctly. Everything else falls back to case-insensitive substring
// matching, first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

// sentinelMessages is checked in order; more specific sentinels come first.
var sentinelMessages = []sentinelMessage{
	{ErrInvalidDateFormat, UserMessage{"Invalid period", "Use YYYY-MM with a year between 1970 and 9999", "VAL001"}},
	{ErrInvalidNumber, UserMessage{"Invalid number format detected", "Remove currency symbols and use a plain decimal like 1234.56", "VAL002"}},
	{ErrInvalidAmount, UserMessage{"Amounts cannot be negative", "Enter zero or a positive amount", "VAL003"}},
	{ErrMissingValue, UserMessage{"Required field is empty", "Ensure all required columns have values", "VAL004"}},
	{ErrMissingRequiredColumn, UserMessage{"Required column is missing from CSV", "Check that all required columns are present in your file", "VAL005"}},
	{ErrDuplicateColumn, UserMessage{"A column name appears more than once", "Rename or remove the duplicate columns", "VAL006"}},
	{ErrUnknownCategory, UserMessage{"The file contains an unknown category column", "Remove the column or check its spelling", "VAL007"}},
	{ErrTooManyErrors, UserMessage{"Too many rows are invalid to continue", "Fix the listed rows and upload again", "VAL008"}},
	{ErrFileTooLarge, UserMessage{"File exceeds maximum size limit (5 MiB)", "Split the file into smaller files", "FILE001"}},
	{ErrFormat, UserMessage{"File is not a valid CSV", "Ensure file is comma-separated with consistent columns", "FILE002"}},
	{ErrEncoding, UserMessage{"File is not UTF-8 encoded", "Re-save the file as UTF-8", "FILE003"}},
	{ErrTooManyRows, UserMessage{"File has too many rows (10,000 max)", "Split the file into smaller files", "FILE004"}},
	{ErrNetwork, UserMessage{"Could not reach the server", "Check your connection and retry the failed rows", "IMP001"}},
	{ErrTooManyJobs, UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "IMP002"}},
	{ErrJobNotFound, UserMessage{"Import job not found", "The job may have expired. Please start a new import", "IMP003"}},
	{ErrUnknownDocType, UserMessage{"Unknown document type", "Choose one of the listed document types", "IMP004"}},
	{ErrNoPendingConflict, UserMessage{"No conflict is waiting for a decision", "Refresh the job status", "IMP005"}},
	{ErrConflict, UserMessage{"A record with this key already exists", "Choose whether to skip or override it", "IMP006"}},
	{ErrNoHistory, UserMessage{"Import history is not available", "Run the server with a database to keep import history", "IMP009"}},
	{ErrBadRequest, UserMessage{"The request could not be understood", "Check the request body and parameters", "IMP010"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Please try again", "IMP007"}},
	{context.DeadlineExceeded, UserMessage{"Request timed out", "Try a smaller file or check your connection", "IMP008"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catches errors that arrive as plain text, such as backend
// error strings and driver errors. Patterns are lower case.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{"A record with this key already exists", "Choose whether to skip or override it", "IMP006"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your CSV", "DB001"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB002"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB003"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB004"}},
	{"invalid date", UserMessage{"Invalid period", "Use YYYY-MM with a year between 1970 and 9999", "VAL001"}},
	{"invalid number", UserMessage{"Invalid number format detected", "Remove currency symbols and use a plain decimal like 1234.56", "VAL002"}},
	{"empty file", emptyFileMessage},
	{"timeout", UserMessage{"Request timed out", "Try a smaller file or check your connection", "IMP008"}},
}

var emptyFileMessage = UserMessage{
	Message: "The uploaded file is empty",
	Action:  "Please upload a CSV file with data rows",
	Code:    "FILE005",
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	msg := MapError(fmt.Errorf("validate: %w", ErrEncoding))
//	// msg.Code == "FILE003"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	// An empty file is reported as ErrFormat but deserves its own message.
	if errors.Is(err, ErrFormat) && strings.Contains(err.Error(), "empty file") {
		return emptyFileMessage
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
