package core

import (
	"fmt"
	"strings"
)

// ResultAggregator accumulates the outcome of an import job.
// Skipped is never stored: it is always total - success - failed, so the
// three counts add up to total by construction.
type ResultAggregator struct {
	total   int
	success int
	failed  []FailedRecord
}

// NewResultAggregator creates an aggregator for total records.
func NewResultAggregator(total int) *ResultAggregator {
	return &ResultAggregator{total: total, failed: []FailedRecord{}}
}

// RecordSuccess counts n records as imported.
func (a *ResultAggregator) RecordSuccess(n int) {
	if n <= 0 {
		return
	}
	// Never let success+failed exceed total, otherwise skipped would go negative.
	if room := a.total - a.success - len(a.failed); n > room {
		n = room
	}
	a.success += n
}

// RecordFailure records one failed record.
func (a *ResultAggregator) RecordFailure(row int, reason string) {
	if a.success+len(a.failed) >= a.total {
		return
	}
	a.failed = append(a.failed, FailedRecord{Row: row, Reason: reason})
}

// Success returns the number of imported records so far.
func (a *ResultAggregator) Success() int { return a.success }

// FailedCount returns the number of failed records so far.
func (a *ResultAggregator) FailedCount() int { return len(a.failed) }

// Skipped returns the derived skipped count.
func (a *ResultAggregator) Skipped() int { return a.total - a.success - len(a.failed) }

// Result returns the terminal ImportResult counts. Job metadata is filled in by the caller.
func (a *ResultAggregator) Result() ImportResult {
	failed := make([]FailedRecord, len(a.failed))
	copy(failed, a.failed)
	return ImportResult{
		Total:   a.total,
		Success: a.success,
		Failed:  failed,
	}
}

// Summary renders a one-line human summary with up to maxReasons failure reasons.
func (r ImportResult) Summary(maxReasons int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d total, %d imported, %d skipped, %d failed",
		r.State, r.Total, r.Success, r.Skipped(), len(r.Failed))
	if r.Error != "" {
		fmt.Fprintf(&b, " (%s)", r.Error)
	}
	if len(r.Failed) > 0 && maxReasons > 0 {
		b.WriteString(": ")
		for i, f := range r.Failed {
			if i == maxReasons {
				fmt.Fprintf(&b, "; and %d more", len(r.Failed)-maxReasons)
				break
			}
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "row %d: %s", f.Row, f.Reason)
		}
	}
	return b.String()
}
