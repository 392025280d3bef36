package core

// validation.go checks a parsed document against its document type.
//
// Validation happens at two levels:
//  1. Header validation: empty, duplicate, missing and (optionally) unknown columns.
//     Any header error fails the whole document.
//  2. Row validation: every cell is checked against its column rule. A row is
//     accepted only if all of its cells are valid; rejected rows become warnings
//     unless there are so many that the circuit breaker trips.

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
)

const (
	// DefaultMaxRejectedSample is how many rejected rows a report surfaces.
	DefaultMaxRejectedSample = 10

	// MinErrorThreshold and ErrorRateThreshold define the circuit breaker:
	// validation fails once rejected rows exceed max(MinErrorThreshold, ErrorRateThreshold*total).
	MinErrorThreshold  = 10
	ErrorRateThreshold = 0.10
)

// ValidateOptions configures a Validator.
type ValidateOptions struct {
	// AllowedColumns, when non-nil, rejects any header column that is neither
	// declared by the document type nor listed here.
	AllowedColumns []string

	// MaxRejectedSample caps ValidationReport.Rejected; DefaultMaxRejectedSample when zero.
	MaxRejectedSample int
}

// ColumnRule binds a header position to the spec that validates it.
type ColumnRule struct {
	Index int
	Spec  FieldSpec
}

// Validator validates parsed documents against one document type.
type Validator struct {
	def  DocumentType
	opts ValidateOptions
}

// NewValidator creates a validator for the given document type.
func NewValidator(def DocumentType, opts ValidateOptions) *Validator {
	if opts.MaxRejectedSample <= 0 {
		opts.MaxRejectedSample = DefaultMaxRejectedSample
	}
	return &Validator{def: def, opts: opts}
}

// ErrorThreshold returns the largest number of rejected rows tolerated for total rows.
func ErrorThreshold(total int) int {
	return int(math.Max(MinErrorThreshold, math.Floor(ErrorRateThreshold*float64(total))))
}

// ValidateHeaders checks the header row and returns one rule per used column
// plus warnings for columns that will be ignored.
func (v *Validator) ValidateHeaders(headers []string) ([]ColumnRule, []string, error) {
	if len(headers) == 0 || isEmptyRow(headers) {
		return nil, nil, fmt.Errorf("%w: header row is empty", ErrFormat)
	}

	seen := make(map[string]int, len(headers))
	var dups []string
	for i, h := range headers {
		if h == "" {
			return nil, nil, fmt.Errorf("%w: column %d has no name", ErrFormat, i+1)
		}
		seen[h]++
		if seen[h] == 2 {
			dups = append(dups, h)
		}
	}
	if len(dups) > 0 {
		return nil, nil, &ColumnError{Kind: ErrDuplicateColumn, Columns: dups}
	}

	var missing []string
	for _, col := range v.def.RequiredColumns() {
		if seen[col] == 0 {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &ColumnError{Kind: ErrMissingRequiredColumn, Columns: missing}
	}

	if v.opts.AllowedColumns != nil {
		allowed := make(map[string]bool, len(v.opts.AllowedColumns))
		for _, c := range v.opts.AllowedColumns {
			allowed[c] = true
		}
		var unknown []string
		for _, h := range headers {
			if _, declared := v.def.Spec(h); !declared && !allowed[h] {
				unknown = append(unknown, h)
			}
		}
		if len(unknown) > 0 {
			return nil, nil, &ColumnError{Kind: ErrUnknownCategory, Columns: unknown}
		}
	}

	rules := make([]ColumnRule, 0, len(headers))
	var warnings []string
	for i, h := range headers {
		spec, declared := v.def.Spec(h)
		switch {
		case declared:
			rules = append(rules, ColumnRule{Index: i, Spec: spec})
		case v.def.OpenColumns:
			rules = append(rules, ColumnRule{Index: i, Spec: FieldSpec{Name: h, Type: FieldNumeric}})
		default:
			warnings = append(warnings, fmt.Sprintf("column %q is not used by %s and will be ignored", h, v.def.Info.Label))
		}
	}

	return rules, warnings, nil
}

// ValidateRow validates every used cell of one row. The row is rejected as a
// whole on the first invalid cell. Cells past the header are tolerated only
// when blank, as left by a trailing comma.
func (v *Validator) ValidateRow(row []string, headerLen int, rules []ColumnRule) (Fields, error) {
	if len(row) > headerLen {
		for _, extra := range row[headerLen:] {
			if strings.TrimSpace(extra) != "" {
				return nil, fmt.Errorf("%w: row has %d fields, header has %d", ErrFormat, len(row), headerLen)
			}
		}
	}

	fields := make(Fields, len(rules))
	for _, rule := range rules {
		raw := ""
		if rule.Index < len(row) {
			raw = row[rule.Index]
		}

		val, err := ValidateCell(raw, rule.Spec)
		if err != nil {
			return nil, err
		}
		fields[rule.Spec.Name] = val
	}

	return fields, nil
}

// ValidateCell validates a single cell value against a field specification.
func ValidateCell(raw string, spec FieldSpec) (Value, error) {
	switch spec.Type {
	case FieldPeriod:
		return ParsePeriod(spec.Name, raw)
	case FieldNumeric:
		return ParseAmount(spec.Name, raw)
	default:
		return ParseText(spec.Name, raw, spec.Required)
	}
}

// CheckFields validates a record that arrived already typed, such as over
// the records API, with the same cell rules a CSV row goes through.
func CheckFields(def DocumentType, fields Fields) error {
	for _, spec := range def.FieldSpecs {
		if _, err := ValidateCell(fields[spec.Name].String(), spec); err != nil {
			return err
		}
	}

	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if _, declared := def.Spec(name); declared {
			continue
		}
		if !def.OpenColumns {
			return &ColumnError{Kind: ErrUnknownCategory, Columns: []string{name}}
		}
		if _, err := ValidateCell(fields[name].String(), FieldSpec{Name: name, Type: FieldNumeric}); err != nil {
			return err
		}
	}
	return nil
}

// Validate runs header and row validation over a parsed table.
func (v *Validator) Validate(table *ParsedTable) (*ValidationReport, error) {
	rules, warnings, err := v.ValidateHeaders(table.Headers)
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{
		DocType:  v.def.Info.Key,
		Headers:  table.Headers,
		Warnings: warnings,
		Rejected: []RejectedRow{},
	}

	total := 0
	for _, row := range table.Rows {
		if !isEmptyRow(row) {
			total++
		}
	}
	threshold := ErrorThreshold(total)

	var rejected []RejectedRow
	for i, row := range table.Rows {
		if isEmptyRow(row) {
			continue
		}

		line := i + 2
		if i < len(table.LineNumbers) {
			line = table.LineNumbers[i]
		}

		fields, err := v.ValidateRow(row, len(table.Headers), rules)
		if err != nil {
			rejected = append(rejected, RejectedRow{Row: line, Reason: err.Error()})
			if len(rejected) > threshold {
				return nil, &TooManyErrorsError{
					Rejected:  len(rejected),
					Total:     total,
					Threshold: threshold,
					Sample:    rejected[:min(len(rejected), v.opts.MaxRejectedSample)],
				}
			}
			continue
		}

		report.Records = append(report.Records, Record{Fields: fields, SourceRow: line})
	}

	for _, r := range rejected {
		report.Warnings = append(report.Warnings, fmt.Sprintf("row %d: %s", r.Row, r.Reason))
	}
	report.Rejected = append(report.Rejected, rejected[:min(len(rejected), v.opts.MaxRejectedSample)]...)
	report.Stats = ValidationStats{
		Total:   total,
		Valid:   len(report.Records),
		Invalid: len(rejected),
	}

	return report, nil
}

// DocumentOptions bundles the limits applied by ValidateDocument.
type DocumentOptions struct {
	MaxFileSize int64
	Parse       ParseOptions
	Validate    ValidateOptions
}

// ValidateDocument runs the whole validation pass over raw bytes:
// size check, encoding normalisation, parsing and validation.
func ValidateDocument(def DocumentType, data []byte, opts DocumentOptions) (*ValidationReport, error) {
	if err := CheckFileSize(int64(len(data)), opts.MaxFileSize); err != nil {
		return nil, err
	}

	text, err := NormalizeText(data)
	if err != nil {
		return nil, err
	}

	table, err := ParseTable(text, opts.Parse)
	if err != nil {
		return nil, err
	}

	return NewValidator(def, opts.Validate).Validate(table)
}
