package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// FieldType represents the expected data type for a column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldPeriod
	FieldNumeric
)

// FieldSpec defines validation rules for a single column.
type FieldSpec struct {
	Name     string    // Column header name (matched case-sensitively after trimming)
	Type     FieldType // Expected data type
	Required bool      // Column must exist in the header
}

// DocumentInfo contains display information about a document type.
type DocumentInfo struct {
	Key   string // Unique identifier: "period_totals"
	Label string // Display name: "Periodic category totals"
}

// DocumentType contains everything needed to validate and key one kind of upload.
type DocumentType struct {
	Info       DocumentInfo
	FieldSpecs []FieldSpec

	// NaturalKey lists the column(s) whose values identify a stored record.
	NaturalKey []string

	// OpenColumns accepts header columns that are not declared in FieldSpecs
	// and validates them as non-negative numeric category columns.
	OpenColumns bool
}

// Spec returns the field spec for a column name.
func (d DocumentType) Spec(name string) (FieldSpec, bool) {
	for _, spec := range d.FieldSpecs {
		if spec.Name == name {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// RequiredColumns returns the names of all required columns in declaration order.
func (d DocumentType) RequiredColumns() []string {
	var cols []string
	for _, spec := range d.FieldSpecs {
		if spec.Required {
			cols = append(cols, spec.Name)
		}
	}
	return cols
}

// KeyOf builds the natural key for a set of fields.
// Multi-column keys are joined with "|". Returns "" if any key column is null.
func (d DocumentType) KeyOf(fields map[string]Value) string {
	parts := make([]string, 0, len(d.NaturalKey))
	for _, col := range d.NaturalKey {
		v, ok := fields[col]
		if !ok || v.IsNull() {
			return ""
		}
		parts = append(parts, v.String())
	}
	return strings.Join(parts, "|")
}

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValuePeriod
	ValueDecimal
	ValueText
)

// Value is a typed cell value: a period string, a decimal, free text or null.
type Value struct {
	Kind   ValueKind
	Text   string         // Period ("2024-02") or text value
	Number pgtype.Numeric // Valid when Kind == ValueDecimal
}

// Null returns the null value.
func Null() Value { return Value{Kind: ValueNull} }

// Period returns a period value. The caller is responsible for validation.
func Period(s string) Value { return Value{Kind: ValuePeriod, Text: s} }

// Text returns a text value.
func Text(s string) Value { return Value{Kind: ValueText, Text: s} }

// Decimal returns a decimal value.
func Decimal(n pgtype.Numeric) Value { return Value{Kind: ValueDecimal, Number: n} }

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool {
	return v.Kind == ValueNull || (v.Kind == ValueDecimal && !v.Number.Valid)
}

// String renders the value the way it appears in a CSV cell.
func (v Value) String() string {
	switch v.Kind {
	case ValuePeriod, ValueText:
		return v.Text
	case ValueDecimal:
		if !v.Number.Valid {
			return ""
		}
		b, err := v.Number.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

// MarshalJSON encodes null as null, decimals as JSON numbers and everything else as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.IsNull():
		return []byte("null"), nil
	case v.Kind == ValueDecimal:
		return v.Number.MarshalJSON()
	default:
		return json.Marshal(v.Text)
	}
}

// UnmarshalJSON decodes the wire form. Strings decode as text values since
// the wire does not distinguish periods from other strings.
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = Null()
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Text(s)
	default:
		var n pgtype.Numeric
		if err := n.UnmarshalJSON(b); err != nil {
			return fmt.Errorf("decode decimal %s: %w", b, err)
		}
		*v = Decimal(n)
	}
	return nil
}

// Fields maps column names to typed values.
type Fields map[string]Value

// Record is one validated row ready for submission.
type Record struct {
	Fields    Fields
	SourceRow int // 1-based line in the source document (header is line 1)
}

// RejectedRow describes a row excluded by validation.
type RejectedRow struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ValidationStats summarises a validation pass.
type ValidationStats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// ValidationReport is the output of validating one document.
type ValidationReport struct {
	DocType  string          `json:"docType"`
	Headers  []string        `json:"headers"`
	Records  []Record        `json:"-"`
	Rejected []RejectedRow   `json:"rejected"` // First MaxRejectedSample rejections
	Warnings []string        `json:"warnings"`
	Stats    ValidationStats `json:"stats"`
}

// JobState indicates the current stage of an import job.
type JobState string

const (
	StateIdle               JobState = "idle"
	StateValidating         JobState = "validating"
	StateSending            JobState = "sending"
	StateAwaitingResolution JobState = "awaiting_resolution"
	StateCancelled          JobState = "cancelled"
	StateCompleted          JobState = "completed"
	StateFailed             JobState = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s JobState) Terminal() bool {
	return s == StateCancelled || s == StateCompleted || s == StateFailed
}

// Decision is the outcome chosen for a single conflict.
type Decision string

const (
	DecisionOverrideOne Decision = "override-one"
	DecisionOverrideAll Decision = "override-all"
	DecisionSkipOne     Decision = "skip-one"
	DecisionSkipAll     Decision = "skip-all"
	DecisionCancelJob   Decision = "cancel-job"
)

// ParseDecision converts user input into a Decision.
func ParseDecision(s string) (Decision, bool) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case DecisionOverrideOne, DecisionOverrideAll, DecisionSkipOne, DecisionSkipAll, DecisionCancelJob:
		return d, true
	default:
		return "", false
	}
}

// ConflictRecord is a submitted record whose natural key already has a stored counterpart.
type ConflictRecord struct {
	Data        Record
	NaturalKey  string
	BatchOffset int  // Index of the chunk's first record within the job
	IntraBatch  bool // Key repeated within the same upload rather than reported by the backend
}

// Comparison is what a decision provider is shown for one conflict.
type Comparison struct {
	Conflict  ConflictRecord
	Existing  Fields // nil when not found or not loadable
	LoadError string // Non-empty when the stored record could not be fetched
}

// ConflictView is the wire form of a Comparison waiting for a decision.
type ConflictView struct {
	Row        int    `json:"row"`
	NaturalKey string `json:"naturalKey"`
	IntraBatch bool   `json:"intraBatch"`
	Incoming   Fields `json:"incoming"`
	Existing   Fields `json:"existing,omitempty"`
	LoadError  string `json:"loadError,omitempty"`
}

// View converts the comparison for JSON clients.
func (c Comparison) View() ConflictView {
	return ConflictView{
		Row:        c.Conflict.Data.SourceRow,
		NaturalKey: c.Conflict.NaturalKey,
		IntraBatch: c.Conflict.IntraBatch,
		Incoming:   c.Conflict.Data.Fields,
		Existing:   c.Existing,
		LoadError:  c.LoadError,
	}
}

// FailedRecord contains information about a record that failed to import.
type FailedRecord struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportResult contains the final accounting of an import job.
type ImportResult struct {
	JobID    string         `json:"jobId"`
	DocType  string         `json:"docType"`
	State    JobState       `json:"state"`
	Total    int            `json:"total"`
	Success  int            `json:"success"`
	Failed   []FailedRecord `json:"failed"`
	Duration time.Duration  `json:"duration"`
	Error    string         `json:"error,omitempty"` // Non-empty if the job failed before submission
}

// Skipped is always derived from the other counts.
func (r ImportResult) Skipped() int {
	return r.Total - r.Success - len(r.Failed)
}

// MarshalJSON adds the derived skipped count to the wire form.
func (r ImportResult) MarshalJSON() ([]byte, error) {
	type plain ImportResult
	return json.Marshal(struct {
		plain
		Skipped int `json:"skipped"`
	}{plain(r), r.Skipped()})
}

// ImportProgress represents the current state of an import job.
type ImportProgress struct {
	JobID     string   `json:"jobId"`
	DocType   string   `json:"docType"`
	FileName  string   `json:"fileName,omitempty"`
	State     JobState `json:"state"`
	Processed int      `json:"processed"`
	Total     int      `json:"total"`
	Error     string   `json:"error,omitempty"`

	// Conflict is set while the job waits for a decision on it.
	Conflict *ConflictView `json:"conflict,omitempty"`
}

// Percent returns the progress as a percentage (0-100).
func (p ImportProgress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return (p.Processed * 100) / p.Total
}

// ProgressFunc is called after each chunk with the processed and total record counts.
type ProgressFunc func(processed, total int)
