package core

// convert.go turns validated cell text into typed values.
//
// Periods are strict "YYYY-MM" strings. Amounts are plain decimals with an
// optional sign; currency symbols and thousands separators are
// not stripped, so "1,200" or "$5" are rejected rather than guessed at.
//
// Parse* functions return a *CellError wrapping the matching sentinel.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// numericRegex validates that a string is a plain decimal literal.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

const (
	MinPeriodYear = 1970
	MaxPeriodYear = 9999
)

// ParsePeriod validates a "YYYY-MM" period cell. Empty cells are errors.
func ParsePeriod(column, raw string) (Value, error) {
	s := strings.TrimSpace(raw)
	fail := func(detail string) (Value, error) {
		return Value{}, &CellError{Kind: ErrInvalidDateFormat, Column: column, Value: s, Detail: detail}
	}

	if s == "" {
		return fail("required, use YYYY-MM")
	}
	if len(s) != 7 || s[4] != '-' {
		return fail("use YYYY-MM")
	}

	year, err := strconv.Atoi(s[:4])
	if err != nil || !isDigits(s[:4]) {
		return fail("use YYYY-MM")
	}
	month, err := strconv.Atoi(s[5:])
	if err != nil || !isDigits(s[5:]) {
		return fail("use YYYY-MM")
	}

	if year < MinPeriodYear || year > MaxPeriodYear {
		return fail(fmt.Sprintf("year must be between %d and %d", MinPeriodYear, MaxPeriodYear))
	}
	if month < 1 || month > 12 {
		return fail("month must be between 01 and 12")
	}

	// Round trip through the calendar to catch anything time.Date would normalise.
	t := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month {
		return fail("not a calendar month")
	}

	return Period(s), nil
}

// ParseAmount validates a non-negative decimal cell. Empty cells yield Null.
func ParseAmount(column, raw string) (Value, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Null(), nil
	}

	if !numericRegex.MatchString(s) {
		return Value{}, &CellError{Kind: ErrInvalidNumber, Column: column, Value: s}
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil || !n.Valid {
		return Value{}, &CellError{Kind: ErrInvalidNumber, Column: column, Value: s}
	}

	if n.Int != nil && n.Int.Sign() < 0 {
		return Value{}, &CellError{Kind: ErrInvalidAmount, Column: column, Value: s, Detail: "must not be negative"}
	}

	return Decimal(n), nil
}

// ParseText trims a text cell. Required text cells must not be empty.
func ParseText(column, raw string, required bool) (Value, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		if required {
			return Value{}, &CellError{Kind: ErrMissingValue, Column: column}
		}
		return Null(), nil
	}
	return Text(s), nil
}

// MustDecimal parses s into a decimal value and panics on failure.
// Intended for tests and static fixtures.
func MustDecimal(s string) Value {
	v, err := ParseAmount("value", s)
	if err != nil {
		panic(err)
	}
	return v
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
