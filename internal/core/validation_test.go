package core

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestValidateHeaders(t *testing.T) {
	tests := []struct {
		name        string
		headers     []string
		allowed     []string
		wantErr     error
		wantColumns []string
	}{
		{
			name:    "valid headers",
			headers: []string{"period", "Revenue", "Cost"},
		},
		{
			name:    "empty header set",
			headers: []string{},
			wantErr: ErrFormat,
		},
		{
			name:    "blank header row",
			headers: []string{"", " "},
			wantErr: ErrFormat,
		},
		{
			name:        "duplicate column named",
			headers:     []string{"period", "A", "A"},
			wantErr:     ErrDuplicateColumn,
			wantColumns: []string{"A"},
		},
		{
			name:        "missing required column",
			headers:     []string{"period", "Cost"},
			wantErr:     ErrMissingRequiredColumn,
			wantColumns: []string{"Revenue"},
		},
		{
			name:        "column outside allow-list",
			headers:     []string{"period", "Revenue", "Bogus"},
			allowed:     []string{"Cost"},
			wantErr:     ErrUnknownCategory,
			wantColumns: []string{"Bogus"},
		},
		{
			name:    "column inside allow-list",
			headers: []string{"period", "Revenue", "Cost"},
			allowed: []string{"Cost"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(testTotals, ValidateOptions{AllowedColumns: tt.allowed})
			rules, _, err := v.ValidateHeaders(tt.headers)

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(rules) != len(tt.headers) {
					t.Errorf("got %d rules, want %d", len(rules), len(tt.headers))
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantColumns != nil {
				var ce *ColumnError
				if !errors.As(err, &ce) {
					t.Fatalf("expected *ColumnError, got %T", err)
				}
				if strings.Join(ce.Columns, ",") != strings.Join(tt.wantColumns, ",") {
					t.Errorf("Columns = %v, want %v", ce.Columns, tt.wantColumns)
				}
			}
		})
	}
}

func TestValidateHeaders_ClosedTypeIgnoresExtraColumns(t *testing.T) {
	closed := testTotals
	closed.OpenColumns = false

	v := NewValidator(closed, ValidateOptions{})
	rules, warnings, err := v.ValidateHeaders([]string{"period", "Revenue", "Notes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 2 {
		t.Errorf("got %d rules, want 2", len(rules))
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "Notes") {
		t.Errorf("warnings = %v, want one mentioning Notes", warnings)
	}
}

func TestValidateRow_Atomic(t *testing.T) {
	v := NewValidator(testTotals, ValidateOptions{})
	headers := []string{"period", "Revenue", "Cost"}
	rules, _, err := v.ValidateHeaders(headers)
	if err != nil {
		t.Fatal(err)
	}

	fields, err := v.ValidateRow([]string{"2024-02", "10", ""}, len(headers), rules)
	if err != nil {
		t.Fatalf("valid row rejected: %v", err)
	}
	if !fields["Cost"].IsNull() {
		t.Errorf("empty numeric cell = %v, want null", fields["Cost"])
	}

	// One bad cell rejects the whole row.
	fields, err = v.ValidateRow([]string{"2024-02", "10", "-3"}, len(headers), rules)
	if !errors.Is(err, ErrInvalidAmount) || fields != nil {
		t.Errorf("got fields=%v err=%v, want nil fields and ErrInvalidAmount", fields, err)
	}

	// Short rows treat missing cells as empty.
	if _, err := v.ValidateRow([]string{"2024-02"}, len(headers), rules); err != nil {
		t.Errorf("short row rejected: %v", err)
	}

	if _, err := v.ValidateRow([]string{"2024-02", "1", "2", "3"}, len(headers), rules); !errors.Is(err, ErrFormat) {
		t.Errorf("long row: error = %v, want ErrFormat", err)
	}

	// A trailing comma leaves a blank cell past the header.
	if _, err := v.ValidateRow([]string{"2024-02", "1", "2", ""}, len(headers), rules); err != nil {
		t.Errorf("trailing blank cell rejected: %v", err)
	}
	if _, err := v.ValidateRow([]string{"2024-02", "1", "2", " ", "x"}, len(headers), rules); !errors.Is(err, ErrFormat) {
		t.Errorf("trailing value: error = %v, want ErrFormat", err)
	}
}

func TestValidateDocument_TrailingComma(t *testing.T) {
	report, err := ValidateDocument(testTotals, []byte("period,Revenue\n2024-01,1,\n2024-02,2,x\n"), DocumentOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Stats.Valid != 1 || report.Stats.Invalid != 1 {
		t.Errorf("stats = %+v, want 1 valid and 1 rejected", report.Stats)
	}
	if len(report.Rejected) != 1 || report.Rejected[0].Row != 3 {
		t.Errorf("rejected = %+v, want row 3", report.Rejected)
	}
}

func TestCheckFields(t *testing.T) {
	closed := testTotals
	closed.OpenColumns = false

	tests := []struct {
		name    string
		def     DocumentType
		fields  Fields
		wantErr error
	}{
		{
			name:   "valid record",
			def:    testTotals,
			fields: Fields{"period": Text("2024-01"), "Revenue": MustDecimal("10.50"), "Bonus": MustDecimal("2")},
		},
		{
			name:   "null amount",
			def:    testTotals,
			fields: Fields{"period": Text("2024-01"), "Revenue": Null()},
		},
		{
			name:    "malformed period",
			def:     testTotals,
			fields:  Fields{"period": Text("garbage"), "Revenue": MustDecimal("1")},
			wantErr: ErrInvalidDateFormat,
		},
		{
			name:    "missing period",
			def:     testTotals,
			fields:  Fields{"Revenue": MustDecimal("1")},
			wantErr: ErrInvalidDateFormat,
		},
		{
			name:    "negative amount",
			def:     testTotals,
			fields:  Fields{"period": Text("2024-01"), "Revenue": Decimal(pgtype.Numeric{Int: big.NewInt(-5), Valid: true})},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "amount sent as text",
			def:     testTotals,
			fields:  Fields{"period": Text("2024-01"), "Revenue": Text("lots")},
			wantErr: ErrInvalidNumber,
		},
		{
			name:    "bad value in open column",
			def:     testTotals,
			fields:  Fields{"period": Text("2024-01"), "Bonus": Text("n/a")},
			wantErr: ErrInvalidNumber,
		},
		{
			name:    "column of closed type",
			def:     closed,
			fields:  Fields{"period": Text("2024-01"), "Bonus": MustDecimal("1")},
			wantErr: ErrUnknownCategory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFields(tt.def, tt.fields)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestErrorThreshold(t *testing.T) {
	tests := []struct {
		total int
		want  int
	}{
		{0, 10},
		{50, 10},
		{100, 10},
		{150, 15},
		{10000, 1000},
	}
	for _, tt := range tests {
		if got := ErrorThreshold(tt.total); got != tt.want {
			t.Errorf("ErrorThreshold(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestValidateDocument_CircuitBreaker(t *testing.T) {
	t.Run("15 of 100 malformed fails wholesale", func(t *testing.T) {
		report, err := ValidateDocument(testTotals, csvWithBadRows(100, 15), DocumentOptions{})
		if report != nil {
			t.Error("expected no report")
		}
		var tm *TooManyErrorsError
		if !errors.As(err, &tm) {
			t.Fatalf("error = %v, want *TooManyErrorsError", err)
		}
		if !errors.Is(err, ErrTooManyErrors) {
			t.Error("TooManyErrorsError should match ErrTooManyErrors")
		}
		if tm.Total != 100 || tm.Threshold != 10 {
			t.Errorf("Total=%d Threshold=%d, want 100 and 10", tm.Total, tm.Threshold)
		}
	})

	t.Run("5 of 100 malformed proceeds", func(t *testing.T) {
		report, err := ValidateDocument(testTotals, csvWithBadRows(100, 5), DocumentOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(report.Records) != 95 {
			t.Errorf("got %d records, want 95", len(report.Records))
		}
		if len(report.Warnings) != 5 {
			t.Errorf("got %d warnings, want 5: %v", len(report.Warnings), report.Warnings)
		}
		if report.Stats != (ValidationStats{Total: 100, Valid: 95, Invalid: 5}) {
			t.Errorf("Stats = %+v", report.Stats)
		}
		if len(report.Rejected) != 5 || report.Rejected[0].Row != 2 {
			t.Errorf("Rejected = %+v, want 5 entries starting at row 2", report.Rejected)
		}
	})
}

func TestValidateDocument_RejectedSampleCapped(t *testing.T) {
	report, err := ValidateDocument(testTotals, csvWithBadRows(200, 20), DocumentOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Rejected) != DefaultMaxRejectedSample {
		t.Errorf("got %d rejected, want %d", len(report.Rejected), DefaultMaxRejectedSample)
	}
	if report.Stats.Invalid != 20 {
		t.Errorf("Invalid = %d, want 20", report.Stats.Invalid)
	}
}

func TestValidateDocument_DocumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		opts    DocumentOptions
		wantErr error
	}{
		{"too large", []byte("period,Revenue\n2024-01,1\n"), DocumentOptions{MaxFileSize: 5}, ErrFileTooLarge},
		{"utf-16", []byte{0xFF, 0xFE, 'p', 0}, DocumentOptions{}, ErrEncoding},
		{"empty", []byte("\n\n"), DocumentOptions{}, ErrFormat},
		{"too many rows", csvWithBadRows(5, 0), DocumentOptions{Parse: ParseOptions{MaxRows: 4}}, ErrTooManyRows},
		{"missing column", []byte("period\n2024-01\n"), DocumentOptions{}, ErrMissingRequiredColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateDocument(testTotals, tt.data, tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDocument_SourceRows(t *testing.T) {
	data := []byte("\ufeffperiod,Revenue\r\n\r\n2024-01,1\r\n2024-02,\r\n")
	report, err := ValidateDocument(testTotals, data, DocumentOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(report.Records))
	}
	if report.Records[0].SourceRow != 3 || report.Records[1].SourceRow != 4 {
		t.Errorf("source rows = %d, %d; want 3, 4", report.Records[0].SourceRow, report.Records[1].SourceRow)
	}
	if !report.Records[1].Fields["Revenue"].IsNull() {
		t.Error("empty Revenue should be null")
	}
}
