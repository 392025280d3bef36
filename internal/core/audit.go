package core

import (
	"context"
	"time"
)

// DefaultHistoryLimit caps history queries that don't set a limit.
const DefaultHistoryLimit = 50

// RunSeverity ranks finished runs for the history view.
type RunSeverity string

const (
	SeverityLow    RunSeverity = "low"
	SeverityMedium RunSeverity = "medium"
	SeverityHigh   RunSeverity = "high"
)

// ImportRun is the persisted summary of one finished import job.
type ImportRun struct {
	ID         string      `json:"id"`
	DocType    string      `json:"docType"`
	FileName   string      `json:"fileName,omitempty"`
	State      JobState    `json:"state"`
	Severity   RunSeverity `json:"severity"`
	Total      int         `json:"total"`
	Success    int         `json:"success"`
	Failed     int         `json:"failed"`
	Skipped    int         `json:"skipped"`
	Error      string      `json:"error,omitempty"`
	ClientIP   string      `json:"clientIp,omitempty"`
	UserAgent  string      `json:"userAgent,omitempty"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt"`
}

// RunFilter contains filtering options for querying the import log.
type RunFilter struct {
	DocType string
	Limit   int
	Offset  int
}

// ImportLog persists finished runs. The PostgreSQL store implements it.
type ImportLog interface {
	RecordRun(ctx context.Context, run ImportRun) error
	ListRuns(ctx context.Context, filter RunFilter) ([]ImportRun, error)
	PurgeRuns(ctx context.Context, olderThan time.Time) (int64, error)
}

// determineSeverity rates a run: failures and cancellations with losses
// rank above a clean completion.
func determineSeverity(result ImportResult) RunSeverity {
	switch {
	case result.State == StateFailed:
		return SeverityHigh
	case len(result.Failed) > 0, result.State == StateCancelled:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// NewImportRun builds the log entry for a finished result.
func NewImportRun(result ImportResult, fileName, clientIP, userAgent string, startedAt time.Time) ImportRun {
	return ImportRun{
		ID:         result.JobID,
		DocType:    result.DocType,
		FileName:   fileName,
		State:      result.State,
		Severity:   determineSeverity(result),
		Total:      result.Total,
		Success:    result.Success,
		Failed:     len(result.Failed),
		Skipped:    result.Skipped(),
		Error:      result.Error,
		ClientIP:   clientIP,
		UserAgent:  userAgent,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(result.Duration),
	}
}
