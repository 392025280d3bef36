package core

// coordinator.go drives one import job from validated records to a terminal
// ImportResult.
//
// Flow per chunk:
//  1. Check cancellation (chunk boundary).
//  2. Withhold records whose natural key already appeared earlier in the job.
//  3. Submit the remaining records in one request.
//  4. Record failures, clamp and record successes.
//  5. Resolve backend conflicts, then withheld duplicates, one at a time.
//  6. Report progress, then sleep whatever is left of the pacing interval.
//
// Everything runs on the caller's goroutine. The only state shared with other
// goroutines is the job's cancel flag and its state/progress snapshot.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultChunkSize      = 10
	DefaultPacingInterval = 200 * time.Millisecond
)

// ImportJob is the per-job context passed through every coordinator step.
type ImportJob struct {
	ID      string
	DocType DocumentType
	Records []Record

	// Set by an override-all or skip-all decision; apply to every later conflict.
	SkipAllConflicts     bool
	OverrideAllConflicts bool

	// OnProgress, if set, is called after each chunk.
	OnProgress ProgressFunc

	// OnState, if set, is called on every state transition.
	OnState func(JobState)

	cancelled atomic.Bool

	mu        sync.RWMutex
	state     JobState
	processed int
	cancelCh  chan struct{}
}

// NewImportJob creates an idle job for a document type.
func NewImportJob(id string, def DocumentType) *ImportJob {
	return &ImportJob{ID: id, DocType: def, state: StateIdle}
}

// Cancel requests cooperative cancellation. Safe to call from any goroutine.
// A pending conflict prompt is abandoned; in-flight backend calls are not.
func (j *ImportJob) Cancel() {
	if j.cancelled.Swap(true) {
		return
	}
	close(j.cancelSignal())
}

func (j *ImportJob) cancelSignal() chan struct{} {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelCh == nil {
		j.cancelCh = make(chan struct{})
	}
	return j.cancelCh
}

// promptContext derives a context that also ends when the job is cancelled.
func (j *ImportJob) promptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	sig := j.cancelSignal()
	go func() {
		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Cancelled reports whether cancellation was requested.
func (j *ImportJob) Cancelled() bool { return j.cancelled.Load() }

// State returns the current state.
func (j *ImportJob) State() JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Processed returns how many records have been handled so far.
func (j *ImportJob) Processed() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.processed
}

func (j *ImportJob) setState(s JobState) {
	j.mu.Lock()
	changed := j.state != s
	j.state = s
	j.mu.Unlock()

	if changed && j.OnState != nil {
		j.OnState(s)
	}
}

func (j *ImportJob) setProcessed(n int) {
	j.mu.Lock()
	if n > j.processed {
		j.processed = n
	}
	n = j.processed
	j.mu.Unlock()

	if j.OnProgress != nil {
		j.OnProgress(n, len(j.Records))
	}
}

// stopRequested folds context cancellation into the job's cancel flag.
func (j *ImportJob) stopRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		j.Cancel()
	}
	return j.Cancelled()
}

// Observer receives coordinator events. Implemented by the metrics package.
type Observer interface {
	ChunkSubmitted(docType string, elapsed time.Duration, err error)
	ConflictResolved(docType string, decision Decision, intraBatch bool)
	JobFinished(result ImportResult)
}

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	ChunkSize      int           // DefaultChunkSize when zero
	PacingInterval time.Duration // Minimum time between chunk submissions; negative disables
	Observer       Observer
	Logger         *slog.Logger
}

// Coordinator submits a job's records to a Backend and resolves conflicts.
type Coordinator struct {
	backend  Backend
	chunk    int
	pacing   time.Duration
	observer Observer
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator.
func NewCoordinator(backend Backend, opts CoordinatorOptions) *Coordinator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.PacingInterval == 0 {
		opts.PacingInterval = DefaultPacingInterval
	}
	if opts.PacingInterval < 0 {
		opts.PacingInterval = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		backend:  backend,
		chunk:    opts.ChunkSize,
		pacing:   opts.PacingInterval,
		observer: opts.Observer,
		logger:   opts.Logger,
	}
}

// Validate runs the validation pass for job and loads the accepted records.
// Document-level errors move the job to StateFailed before anything is sent.
func (c *Coordinator) Validate(job *ImportJob, data []byte, opts DocumentOptions) (*ValidationReport, error) {
	job.setState(StateValidating)

	report, err := ValidateDocument(job.DocType, data, opts)
	if err != nil {
		job.setState(StateFailed)
		return nil, err
	}

	job.Records = report.Records
	return report, nil
}

// Run submits every record of job and returns the terminal result.
// It never returns an error: per-record and per-chunk problems end up in
// ImportResult.Failed, and cancellation folds the remainder into skipped.
func (c *Coordinator) Run(ctx context.Context, job *ImportJob, provider ConflictDecisionProvider) ImportResult {
	start := time.Now()
	docType := job.DocType.Info.Key
	total := len(job.Records)

	logger := c.logger.With("job_id", job.ID, "doc_type", docType)
	agg := NewResultAggregator(total)
	resolver := NewConflictResolver(docType, c.backend, provider, logger)
	seen := make(map[string]bool, total)

	job.setState(StateSending)
	logger.Info("import started", "records", total, "chunk_size", c.chunk)

	for offset := 0; offset < total; offset += c.chunk {
		if job.stopRequested(ctx) {
			break
		}

		end := min(offset+c.chunk, total)
		sentAt := time.Now()

		c.processChunk(ctx, job, resolver, agg, seen, offset, job.Records[offset:end], logger)

		job.setProcessed(end)

		if job.stopRequested(ctx) || end == total {
			break
		}

		if !c.pace(ctx, sentAt) {
			job.Cancel()
			break
		}
	}

	state := StateCompleted
	if job.Cancelled() {
		state = StateCancelled
	}

	result := agg.Result()
	result.JobID = job.ID
	result.DocType = docType
	result.State = state
	result.Duration = time.Since(start)

	job.setState(state)

	logger.Info("import finished",
		"state", state,
		"total", result.Total,
		"success", result.Success,
		"skipped", result.Skipped(),
		"failed", len(result.Failed),
		"duration", result.Duration,
	)

	if c.observer != nil {
		c.observer.JobFinished(result)
	}

	return result
}

// processChunk submits one chunk and resolves its conflicts.
func (c *Coordinator) processChunk(
	ctx context.Context,
	job *ImportJob,
	resolver *ConflictResolver,
	agg *ResultAggregator,
	seen map[string]bool,
	offset int,
	chunk []Record,
	logger *slog.Logger,
) {
	docType := job.DocType.Info.Key
	chunkNo := offset/c.chunk + 1

	submitted := make([]Record, 0, len(chunk))
	var withheld []ConflictRecord
	for _, rec := range chunk {
		key := job.DocType.KeyOf(rec.Fields)
		if key != "" && seen[key] {
			withheld = append(withheld, ConflictRecord{
				Data:        rec,
				NaturalKey:  key,
				BatchOffset: offset,
				IntraBatch:  true,
			})
			continue
		}
		if key != "" {
			seen[key] = true
		}
		submitted = append(submitted, rec)
	}

	var conflicts []ConflictRecord

	if len(submitted) > 0 {
		req := ChunkRequest{
			Records:           make([]Fields, len(submitted)),
			OverrideConflicts: job.OverrideAllConflicts,
		}
		for i, rec := range submitted {
			req.Records[i] = rec.Fields
		}

		sentAt := time.Now()
		resp, err := c.backend.SubmitChunk(ctx, docType, req)
		if c.observer != nil {
			c.observer.ChunkSubmitted(docType, time.Since(sentAt), err)
		}

		// The request was allowed to finish, but nothing it did counts once
		// cancellation has been observed.
		if job.stopRequested(ctx) {
			logger.Info("chunk outcome discarded after cancellation", "chunk", chunkNo)
			return
		}

		if err == nil && !resp.Success && isEmptyResults(resp.Results) {
			err = fmt.Errorf("chunk rejected: %s", nonEmpty(resp.Error, "no reason given"))
		}

		if err != nil {
			logger.Warn("chunk submission failed", "chunk", chunkNo, "records", len(chunk), "error", err)
			for _, rec := range chunk {
				agg.RecordFailure(rec.SourceRow, err.Error())
			}
			return
		}

		failedIdx := make(map[int]bool, len(resp.Results.Failed))
		for _, f := range resp.Results.Failed {
			if f.Index < 0 || f.Index >= len(submitted) || failedIdx[f.Index] {
				logger.Warn("ignoring invalid failure index", "chunk", chunkNo, "index", f.Index)
				continue
			}
			failedIdx[f.Index] = true
			agg.RecordFailure(submitted[f.Index].SourceRow, nonEmpty(f.Reason, "rejected by backend"))
		}

		conflictIdx := make(map[int]bool, len(resp.Results.Conflicts))
		for _, cf := range resp.Results.Conflicts {
			if cf.Index < 0 || cf.Index >= len(submitted) || failedIdx[cf.Index] || conflictIdx[cf.Index] {
				logger.Warn("ignoring invalid conflict index", "chunk", chunkNo, "index", cf.Index)
				continue
			}
			conflictIdx[cf.Index] = true
			rec := submitted[cf.Index]
			key := cf.NaturalKey
			if key == "" {
				key = job.DocType.KeyOf(rec.Fields)
			}
			conflicts = append(conflicts, ConflictRecord{
				Data:        rec,
				NaturalKey:  key,
				BatchOffset: offset,
			})
		}

		success := resp.Results.Success
		if room := len(submitted) - len(failedIdx) - len(conflictIdx); success > room {
			logger.Warn("backend over-reported chunk success",
				"chunk", chunkNo,
				"reported", success,
				"max", room,
			)
			success = room
		}
		agg.RecordSuccess(success)

		logger.Debug("chunk submitted",
			"chunk", chunkNo,
			"success", success,
			"failed", len(failedIdx),
			"conflicts", len(conflictIdx),
			"withheld", len(withheld),
		)
	}

	conflicts = append(conflicts, withheld...)
	c.resolveConflicts(ctx, job, resolver, agg, conflicts, logger)
}

// resolveConflicts handles conflicts strictly one at a time in the order given.
// Anything left unhandled on cancellation is counted as skipped.
func (c *Coordinator) resolveConflicts(
	ctx context.Context,
	job *ImportJob,
	resolver *ConflictResolver,
	agg *ResultAggregator,
	conflicts []ConflictRecord,
	logger *slog.Logger,
) {
	docType := job.DocType.Info.Key

	for _, cf := range conflicts {
		if job.stopRequested(ctx) {
			return
		}

		var decision Decision
		switch {
		case job.SkipAllConflicts:
			decision = DecisionSkipOne
		case job.OverrideAllConflicts:
			decision = DecisionOverrideOne
		default:
			cmp := resolver.Compare(ctx, cf)
			job.setState(StateAwaitingResolution)
			pctx, stop := job.promptContext(ctx)
			decision = resolver.Decide(pctx, cmp)
			stop()
			job.setState(StateSending)
		}

		if c.observer != nil {
			c.observer.ConflictResolved(docType, decision, cf.IntraBatch)
		}

		switch decision {
		case DecisionCancelJob:
			logger.Info("import cancelled from conflict prompt", "natural_key", cf.NaturalKey)
			job.Cancel()
			return
		case DecisionSkipAll:
			job.SkipAllConflicts = true
			continue
		case DecisionSkipOne:
			continue
		case DecisionOverrideAll:
			job.OverrideAllConflicts = true
		}

		c.override(ctx, job, agg, cf, logger)
	}
}

func (c *Coordinator) override(ctx context.Context, job *ImportJob, agg *ResultAggregator, cf ConflictRecord, logger *slog.Logger) {
	resp, err := c.backend.OverrideRecord(ctx, job.DocType.Info.Key, cf.NaturalKey, cf.Data.Fields)

	if job.stopRequested(ctx) {
		return
	}

	switch {
	case err != nil:
		logger.Warn("override failed", "natural_key", cf.NaturalKey, "error", err)
		agg.RecordFailure(cf.Data.SourceRow, err.Error())
	case !resp.Success:
		agg.RecordFailure(cf.Data.SourceRow, nonEmpty(resp.Error, "override rejected by backend"))
	default:
		agg.RecordSuccess(1)
	}
}

// pace sleeps for whatever remains of the pacing interval since sentAt.
// Returns false if ctx ended first.
func (c *Coordinator) pace(ctx context.Context, sentAt time.Time) bool {
	remaining := c.pacing - time.Since(sentAt)
	if remaining <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(remaining)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func isEmptyResults(r ChunkResults) bool {
	return r.Total == 0 && r.Success == 0 && len(r.Failed) == 0 && len(r.Conflicts) == 0
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
