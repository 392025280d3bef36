package core

// parse.go splits normalized text into a header row and data rows.
//
// The parser works line by line: blank lines are dropped and a quoted field
// cannot span lines. Within a line a double quote toggles quoted mode, a
// doubled quote inside quotes is a literal quote, and commas inside quotes
// are kept as data. Every field is trimmed after unquoting.

import (
	"fmt"
	"strings"
)

// DefaultMaxRows is the hard ceiling on data rows per document.
const DefaultMaxRows = 10000

// ParsedTable is the raw result of parsing one document.
type ParsedTable struct {
	Headers     []string
	Rows        [][]string
	LineNumbers []int // 1-based source line of each row in Rows
}

// ParseOptions configures ParseTable.
type ParseOptions struct {
	MaxRows int // Data row ceiling; DefaultMaxRows when zero
}

// ParseTable parses normalized text (see NormalizeText) into a ParsedTable.
func ParseTable(text string, opts ParseOptions) (*ParsedTable, error) {
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty file", ErrFormat)
	}

	lines := strings.Split(text, "\n")

	type numbered struct {
		line int
		text string
	}
	kept := make([]numbered, 0, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		kept = append(kept, numbered{line: i + 1, text: l})
	}

	// Ceiling is enforced on the raw line count before any field splitting.
	if dataRows := len(kept) - 1; dataRows > maxRows {
		return nil, &LimitError{Kind: ErrTooManyRows, Limit: int64(maxRows), Actual: int64(dataRows), Unit: "rows"}
	}

	table := &ParsedTable{
		Headers:     SplitLine(kept[0].text),
		Rows:        make([][]string, 0, len(kept)-1),
		LineNumbers: make([]int, 0, len(kept)-1),
	}
	for _, l := range kept[1:] {
		table.Rows = append(table.Rows, SplitLine(l.text))
		table.LineNumbers = append(table.LineNumbers, l.line)
	}

	return table, nil
}

// SplitLine splits a single line into fields.
func SplitLine(line string) []string {
	var (
		fields   []string
		field    strings.Builder
		inQuotes bool
	)

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' && inQuotes && i+1 < len(runes) && runes[i+1] == '"':
			field.WriteRune('"')
			i++
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(field.String()))
			field.Reset()
		default:
			field.WriteRune(r)
		}
	}
	fields = append(fields, strings.TrimSpace(field.String()))

	return fields
}

// isEmptyRow reports whether every cell is blank.
func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
