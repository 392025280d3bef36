package core

import (
	"strings"
	"testing"
)

func TestResultAggregator_Invariant(t *testing.T) {
	tests := []struct {
		name        string
		total       int
		success     []int
		failures    int
		wantSuccess int
		wantFailed  int
		wantSkipped int
	}{
		{"all imported", 10, []int{10}, 0, 10, 0, 0},
		{"nothing done", 7, nil, 0, 0, 0, 7},
		{"mixed", 25, []int{8, 9}, 3, 17, 3, 5},
		{"success over-reported is clamped", 5, []int{4, 4}, 0, 5, 0, 0},
		{"failures beyond total ignored", 3, []int{2}, 5, 2, 1, 0},
		{"negative success ignored", 4, []int{-3, 2}, 0, 2, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewResultAggregator(tt.total)
			for _, n := range tt.success {
				agg.RecordSuccess(n)
			}
			for i := 0; i < tt.failures; i++ {
				agg.RecordFailure(i+2, "boom")
			}

			r := agg.Result()
			if r.Success != tt.wantSuccess || len(r.Failed) != tt.wantFailed || r.Skipped() != tt.wantSkipped {
				t.Errorf("success=%d failed=%d skipped=%d, want %d/%d/%d",
					r.Success, len(r.Failed), r.Skipped(), tt.wantSuccess, tt.wantFailed, tt.wantSkipped)
			}
			if r.Success+r.Skipped()+len(r.Failed) != r.Total {
				t.Errorf("invariant broken: %d + %d + %d != %d", r.Success, r.Skipped(), len(r.Failed), r.Total)
			}
		})
	}
}

func TestResultAggregator_ResultIsCopy(t *testing.T) {
	agg := NewResultAggregator(3)
	agg.RecordFailure(2, "first")
	r := agg.Result()
	agg.RecordFailure(3, "second")

	if len(r.Failed) != 1 {
		t.Errorf("earlier Result changed after later failure: %v", r.Failed)
	}
}

func TestImportResult_Summary(t *testing.T) {
	r := ImportResult{
		State:   StateCompleted,
		Total:   10,
		Success: 6,
		Failed: []FailedRecord{
			{Row: 3, Reason: "bad a"},
			{Row: 5, Reason: "bad b"},
			{Row: 9, Reason: "bad c"},
		},
	}

	got := r.Summary(2)
	want := "completed: 10 total, 6 imported, 1 skipped, 3 failed: row 3: bad a; row 5: bad b; and 1 more"
	if got != want {
		t.Errorf("Summary() = %q\nwant %q", got, want)
	}

	failed := ImportResult{State: StateFailed, Error: "encoding error", Failed: []FailedRecord{}}
	if s := failed.Summary(3); !strings.Contains(s, "(encoding error)") {
		t.Errorf("Summary() = %q, want error in parentheses", s)
	}
}
