package core

// job_limiter.go caps how many import jobs run at once.
//
// Slots are a buffered channel used as a semaphore. A caller that cannot get
// a slot waits up to maxWait and then gets ErrTooManyJobs. WaitForDrain is
// used during shutdown to let running jobs finish.

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTooManyJobs is returned when every job slot stays occupied for the whole wait.
var ErrTooManyJobs = errors.New("too many concurrent imports, please try again later")

const (
	DefaultMaxConcurrentJobs = 5
	DefaultMaxWaitTime       = 30 * time.Second
)

// JobLimiter bounds the number of concurrently running import jobs.
type JobLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewJobLimiter creates a limiter with maxConcurrent slots.
func NewJobLimiter(maxConcurrent int, maxWait time.Duration) *JobLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentJobs
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &JobLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. The returned release func must be called exactly
// once; extra calls are no-ops.
func (l *JobLimiter) Acquire(ctx context.Context) (release func(), err error) {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return l.hold(), nil
	case <-timer.C:
		return nil, ErrTooManyJobs
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *JobLimiter) TryAcquire() (release func(), ok bool) {
	select {
	case l.slots <- struct{}{}:
		return l.hold(), true
	default:
		return nil, false
	}
}

func (l *JobLimiter) hold() func() {
	l.active.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			l.active.Add(-1)
			<-l.slots
		})
	}
}

// ActiveCount returns the number of running jobs.
func (l *JobLimiter) ActiveCount() int { return int(l.active.Load()) }

// Available returns the number of free slots.
func (l *JobLimiter) Available() int { return cap(l.slots) - len(l.slots) }

// WaitForDrain blocks until no job holds a slot or ctx ends.
func (l *JobLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// JobLimiterStatus is a snapshot for the health endpoint.
type JobLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the current limiter state.
func (l *JobLimiter) Status() JobLimiterStatus {
	return JobLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: cap(l.slots),
	}
}
