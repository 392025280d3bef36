package core

import (
	"errors"
	"strings"
	"testing"
)

func TestSplitLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{
			name: "simple fields",
			line: "a,b,c",
			want: []string{"a", "b", "c"},
		},
		{
			name: "comma inside quotes and escaped quote",
			line: `"a,b","c""d"`,
			want: []string{"a,b", `c"d`},
		},
		{
			name: "fields trimmed after unquoting",
			line: `  x , " y " ,z  `,
			want: []string{"x", "y", "z"},
		},
		{
			name: "empty cells",
			line: "a,,c,",
			want: []string{"a", "", "c", ""},
		},
		{
			name: "single cell",
			line: "value",
			want: []string{"value"},
		},
		{
			name: "quoted empty field",
			line: `"",b`,
			want: []string{"", "b"},
		},
		{
			name: "unicode content",
			line: `"Zürich, CH",Ålesund`,
			want: []string{"Zürich, CH", "Ålesund"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitLine(tt.line)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitLine(%q) = %q, want %q", tt.line, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("field %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseTable(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantHdr   []string
		wantRows  [][]string
		wantLines []int
	}{
		{
			name:      "header and rows",
			input:     "period,Revenue\n2024-01,10\n2024-02,20",
			wantHdr:   []string{"period", "Revenue"},
			wantRows:  [][]string{{"2024-01", "10"}, {"2024-02", "20"}},
			wantLines: []int{2, 3},
		},
		{
			name:      "blank lines discarded",
			input:     "\n\nperiod,Revenue\n\n2024-01,10\n   \n2024-02,20\n",
			wantHdr:   []string{"period", "Revenue"},
			wantRows:  [][]string{{"2024-01", "10"}, {"2024-02", "20"}},
			wantLines: []int{5, 7},
		},
		{
			name:      "header only",
			input:     "period,Revenue",
			wantHdr:   []string{"period", "Revenue"},
			wantRows:  [][]string{},
			wantLines: []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTable(tt.input, ParseOptions{})
			if err != nil {
				t.Fatalf("ParseTable() error = %v", err)
			}
			if strings.Join(got.Headers, "|") != strings.Join(tt.wantHdr, "|") {
				t.Errorf("Headers = %q, want %q", got.Headers, tt.wantHdr)
			}
			if len(got.Rows) != len(tt.wantRows) {
				t.Fatalf("got %d rows, want %d", len(got.Rows), len(tt.wantRows))
			}
			for i := range tt.wantRows {
				if strings.Join(got.Rows[i], "|") != strings.Join(tt.wantRows[i], "|") {
					t.Errorf("row %d = %q, want %q", i, got.Rows[i], tt.wantRows[i])
				}
				if got.LineNumbers[i] != tt.wantLines[i] {
					t.Errorf("row %d line = %d, want %d", i, got.LineNumbers[i], tt.wantLines[i])
				}
			}
		})
	}
}

func TestParseTable_Empty(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\n \n"} {
		_, err := ParseTable(input, ParseOptions{})
		if !errors.Is(err, ErrFormat) {
			t.Errorf("ParseTable(%q) error = %v, want ErrFormat", input, err)
		}
	}
}

func TestParseTable_RowCeiling(t *testing.T) {
	var b strings.Builder
	b.WriteString("period,Revenue\n")
	for i := 0; i < 6; i++ {
		b.WriteString("2024-01,1\n")
	}

	if _, err := ParseTable(b.String(), ParseOptions{MaxRows: 6}); err != nil {
		t.Fatalf("at the limit: unexpected error %v", err)
	}

	_, err := ParseTable(b.String(), ParseOptions{MaxRows: 5})
	if !errors.Is(err, ErrTooManyRows) {
		t.Fatalf("error = %v, want ErrTooManyRows", err)
	}

	var le *LimitError
	if !errors.As(err, &le) || le.Actual != 6 || le.Limit != 5 {
		t.Errorf("LimitError = %+v, want Actual=6 Limit=5", le)
	}
}

func TestIsEmptyRow(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		want bool
	}{
		{"empty slice", []string{}, true},
		{"single empty string", []string{""}, true},
		{"whitespace only cells", []string{"   ", "\t"}, true},
		{"non-empty with empties", []string{"", "data", ""}, false},
		{"number zero is data", []string{"0"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isEmptyRow(tt.row); got != tt.want {
				t.Errorf("isEmptyRow(%v) = %v, want %v", tt.row, got, tt.want)
			}
		})
	}
}
