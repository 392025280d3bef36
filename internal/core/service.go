package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultJobTimeout bounds a whole import job, conflict prompts included.
	DefaultJobTimeout = 30 * time.Minute

	// DefaultRetention is how long a finished job stays queryable.
	DefaultRetention = 5 * time.Minute
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Document          DocumentOptions
	Coordinator       CoordinatorOptions
	MaxConcurrentJobs int
	MaxWait           time.Duration
	JobTimeout        time.Duration
	Retention         time.Duration
	History           ImportLog // Optional; finished runs are recorded here
	Logger            *slog.Logger
}

// Service runs import jobs in the background and tracks them by ID.
type Service struct {
	coord     *Coordinator
	limiter   *JobLimiter
	docOpts   DocumentOptions
	timeout   time.Duration
	retention time.Duration
	history   ImportLog
	logger    *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*activeJob
}

type activeJob struct {
	job       *ImportJob
	fileName  string
	clientIP  string
	userAgent string
	startedAt time.Time
	cancel    context.CancelFunc
	decisions *PendingDecisions
	done      chan struct{}
	result    ImportResult

	listenerMu sync.Mutex
	progress   ImportProgress
	listeners  []chan ImportProgress
}

// NewService creates a Service that submits through backend.
func NewService(backend Backend, opts ServiceOptions) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Coordinator.Logger == nil {
		opts.Coordinator.Logger = opts.Logger
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}

	return &Service{
		coord:     NewCoordinator(backend, opts.Coordinator),
		limiter:   NewJobLimiter(opts.MaxConcurrentJobs, opts.MaxWait),
		docOpts:   opts.Document,
		timeout:   opts.JobTimeout,
		retention: opts.Retention,
		history:   opts.History,
		logger:    opts.Logger,
		jobs:      make(map[string]*activeJob),
	}
}

// DocumentTypes returns display info for every registered document type.
func (s *Service) DocumentTypes() []DocumentInfo {
	defs := All()
	infos := make([]DocumentInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// Validate runs the validation pass only. Nothing is submitted.
// allowed, when non-nil, is the caller's category allow-list.
func (s *Service) Validate(docType string, data []byte, allowed []string) (*ValidationReport, error) {
	def, err := Lookup(docType)
	if err != nil {
		return nil, err
	}
	return ValidateDocument(def, data, s.documentOptions(allowed))
}

// documentOptions applies a per-request allow-list to the configured options.
func (s *Service) documentOptions(allowed []string) DocumentOptions {
	opts := s.docOpts
	if allowed != nil {
		opts.Validate.AllowedColumns = allowed
	}
	return opts
}

// StartImport validates and imports data in the background and returns the job ID.
// Conflicts wait for an answer through Decide. Client metadata attached to
// ctx with ContextWithClientIP and ContextWithUserAgent ends up in the import log.
// allowed is passed on to validation as in Validate.
func (s *Service) StartImport(ctx context.Context, docType, fileName string, data []byte, allowed []string) (string, error) {
	def, err := Lookup(docType)
	if err != nil {
		return "", err
	}

	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	jobCtx, cancel := context.WithTimeout(context.Background(), s.timeout)

	active := &activeJob{
		job:       NewImportJob(id, def),
		fileName:  fileName,
		clientIP:  ClientIPFromContext(ctx),
		userAgent: UserAgentFromContext(ctx),
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		progress: ImportProgress{
			JobID:    id,
			DocType:  docType,
			FileName: fileName,
			State:    StateIdle,
		},
	}
	active.decisions = NewPendingDecisions(func(cmp Comparison) {
		view := cmp.View()
		active.update(func(p *ImportProgress) { p.Conflict = &view })
	})
	active.job.OnState = func(state JobState) {
		active.update(func(p *ImportProgress) {
			p.State = state
			if state != StateAwaitingResolution {
				p.Conflict = nil
			}
		})
	}
	active.job.OnProgress = func(processed, total int) {
		active.update(func(p *ImportProgress) {
			p.Processed = processed
			p.Total = total
		})
	}

	s.mu.Lock()
	s.jobs[id] = active
	s.mu.Unlock()

	s.logger.Info("import started",
		"job_id", id,
		"doc_type", docType,
		"file", fileName,
		"client_ip", active.clientIP,
	)

	go func() {
		defer release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in import job", "job_id", id, "doc_type", docType, "panic", r)
				s.finish(active, ImportResult{
					JobID:   id,
					DocType: docType,
					State:   StateFailed,
					Failed:  []FailedRecord{},
					Error:   fmt.Sprintf("internal error: %v", r),
				})
			}
		}()
		s.process(jobCtx, active, data, s.documentOptions(allowed))
	}()

	return id, nil
}

func (s *Service) process(ctx context.Context, active *activeJob, data []byte, docOpts DocumentOptions) {
	job := active.job
	start := time.Now()

	report, err := s.coord.Validate(job, data, docOpts)
	if err != nil {
		s.logger.Info("import rejected during validation",
			"job_id", job.ID,
			"doc_type", job.DocType.Info.Key,
			"error", err,
		)
		s.finish(active, ImportResult{
			JobID:    job.ID,
			DocType:  job.DocType.Info.Key,
			State:    StateFailed,
			Failed:   []FailedRecord{},
			Duration: time.Since(start),
			Error:    err.Error(),
		})
		return
	}

	active.update(func(p *ImportProgress) { p.Total = report.Stats.Valid })

	result := s.coord.Run(ctx, job, active.decisions)
	s.finish(active, result)
}

func (s *Service) finish(active *activeJob, result ImportResult) {
	active.result = result
	active.update(func(p *ImportProgress) {
		p.State = result.State
		p.Error = result.Error
		p.Conflict = nil
	})
	active.closeListeners()
	s.recordRun(active, result)
	s.cleanup(result.JobID, s.retention)
}

// SubscribeProgress returns a channel of progress updates for a job.
// The channel is closed when the job finishes.
func (s *Service) SubscribeProgress(id string) (<-chan ImportProgress, error) {
	active, err := s.get(id)
	if err != nil {
		return nil, err
	}

	ch := make(chan ImportProgress, 10)

	active.listenerMu.Lock()
	defer active.listenerMu.Unlock()

	ch <- active.progress
	select {
	case <-active.done:
		close(ch)
	default:
		active.listeners = append(active.listeners, ch)
	}

	return ch, nil
}

// Progress returns the current progress without blocking.
func (s *Service) Progress(id string) (ImportProgress, error) {
	active, err := s.get(id)
	if err != nil {
		return ImportProgress{}, err
	}

	active.listenerMu.Lock()
	defer active.listenerMu.Unlock()
	return active.progress, nil
}

// Result blocks until the job finishes or ctx ends.
func (s *Service) Result(ctx context.Context, id string) (ImportResult, error) {
	active, err := s.get(id)
	if err != nil {
		return ImportResult{}, err
	}

	select {
	case <-active.done:
		return active.result, nil
	case <-ctx.Done():
		return ImportResult{}, ctx.Err()
	}
}

// PendingConflict returns the conflict the job is waiting on, if any.
func (s *Service) PendingConflict(id string) (Comparison, bool, error) {
	active, err := s.get(id)
	if err != nil {
		return Comparison{}, false, err
	}
	cmp, ok := active.decisions.Pending()
	return cmp, ok, nil
}

// Decide answers the job's pending conflict.
func (s *Service) Decide(id string, d Decision) error {
	active, err := s.get(id)
	if err != nil {
		return err
	}
	return active.decisions.Answer(d)
}

// Cancel requests cooperative cancellation. In-flight requests finish; the
// rest of the job is counted as skipped.
func (s *Service) Cancel(id string) error {
	active, err := s.get(id)
	if err != nil {
		return err
	}

	active.job.Cancel()
	return nil
}

// LimiterStatus reports job slot usage.
func (s *Service) LimiterStatus() JobLimiterStatus {
	return s.limiter.Status()
}

// Shutdown cancels every running job and waits for them to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	for _, active := range s.jobs {
		active.job.Cancel()
	}
	s.mu.RUnlock()

	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) get(id string) (*activeJob, error) {
	s.mu.RLock()
	active, ok := s.jobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return active, nil
}

// update applies fn to the progress snapshot and fans it out to listeners.
// A slow listener loses its oldest buffered update, so the latest snapshot
// always gets through.
func (a *activeJob) update(fn func(*ImportProgress)) {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()

	fn(&a.progress)
	for _, ch := range a.listeners {
		select {
		case ch <- a.progress:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- a.progress:
			default:
			}
		}
	}
}

// closeListeners marks the job done and closes every listener channel.
func (a *activeJob) closeListeners() {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()

	close(a.done)
	for _, ch := range a.listeners {
		close(ch)
	}
	a.listeners = nil
}

// cleanup removes the job from tracking after a delay.
func (s *Service) cleanup(id string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.jobs, id)
		s.mu.Unlock()
	})
}
