package core

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestRegistry(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	b := testTotals
	b.Info = DocumentInfo{Key: "b_type", Label: "B"}
	a := testTotals
	a.Info = DocumentInfo{Key: "a_type", Label: "A"}

	Register(b)
	Register(a)

	if Count() != 2 {
		t.Fatalf("Count() = %d, want 2", Count())
	}

	all := All()
	if all[0].Info.Key != "a_type" || all[1].Info.Key != "b_type" {
		t.Errorf("All() not sorted by key: %v, %v", all[0].Info.Key, all[1].Info.Key)
	}

	if _, ok := Get("a_type"); !ok {
		t.Error("Get(a_type) not found")
	}
	if _, err := Lookup("missing"); !errors.Is(err, ErrUnknownDocType) {
		t.Errorf("Lookup(missing) error = %v, want ErrUnknownDocType", err)
	}
}

func TestRegister_Panics(t *testing.T) {
	tests := []struct {
		name string
		def  DocumentType
	}{
		{
			name: "no natural key",
			def:  DocumentType{Info: DocumentInfo{Key: "x"}, FieldSpecs: testTotals.FieldSpecs},
		},
		{
			name: "natural key not required",
			def: DocumentType{
				Info:       DocumentInfo{Key: "y"},
				FieldSpecs: []FieldSpec{{Name: "id", Type: FieldText}},
				NaturalKey: []string{"id"},
			},
		},
		{
			name: "duplicate key",
			def:  testTotals,
		},
	}

	Clear()
	t.Cleanup(Clear)
	Register(testTotals)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("Register() did not panic")
				}
			}()
			Register(tt.def)
		})
	}
}

func TestDocumentType_KeyOf(t *testing.T) {
	multi := DocumentType{NaturalKey: []string{"identifier", "period"}}

	got := multi.KeyOf(Fields{"identifier": Text("TR-1"), "period": Period("2024-03")})
	if got != "TR-1|2024-03" {
		t.Errorf("KeyOf() = %q, want %q", got, "TR-1|2024-03")
	}

	if got := multi.KeyOf(Fields{"identifier": Text("TR-1"), "period": Null()}); got != "" {
		t.Errorf("KeyOf() with null part = %q, want empty", got)
	}
}

func TestValue_WireForm(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"null", Null(), "null"},
		{"null decimal", Decimal(pgtype.Numeric{}), "null"},
		{"period", Period("2024-02"), `"2024-02"`},
		{"decimal", MustDecimal("12.5"), "12.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.v.MarshalJSON()
			if err != nil {
				t.Fatalf("MarshalJSON() error = %v", err)
			}
			if string(b) != tt.want {
				t.Errorf("MarshalJSON() = %s, want %s", b, tt.want)
			}
		})
	}

	var n Value
	if err := n.UnmarshalJSON([]byte("1500.25")); err != nil || n.Kind != ValueDecimal {
		t.Errorf("number decoded as %+v, %v; want decimal", n, err)
	}
	var s Value
	if err := s.UnmarshalJSON([]byte(`"2024-02"`)); err != nil || s.Kind != ValueText {
		t.Errorf("string decoded as %+v, %v; want text", s, err)
	}
}
