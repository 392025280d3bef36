package core

import (
	"context"
	"errors"
	"time"
)

// ErrNoHistory is returned by History when the service has no import log.
var ErrNoHistory = errors.New("import history is not configured")

// recordTimeout bounds the write of one run to the import log.
const recordTimeout = 5 * time.Second

// recordRun writes a finished job to the import log. Failures are logged,
// never surfaced: the import itself already happened.
func (s *Service) recordRun(active *activeJob, result ImportResult) {
	if s.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	run := NewImportRun(result, active.fileName, active.clientIP, active.userAgent, active.startedAt)
	if err := s.history.RecordRun(ctx, run); err != nil {
		s.logger.Error("record import run failed",
			"job_id", result.JobID,
			"doc_type", result.DocType,
			"error", err,
		)
	}
}

// History lists finished runs, newest first.
func (s *Service) History(ctx context.Context, filter RunFilter) ([]ImportRun, error) {
	if s.history == nil {
		return nil, ErrNoHistory
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultHistoryLimit
	}
	if filter.DocType != "" {
		if _, err := Lookup(filter.DocType); err != nil {
			return nil, err
		}
	}
	return s.history.ListRuns(ctx, filter)
}
