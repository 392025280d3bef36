package core

// decisions.go parks conflict comparisons until an out-of-band caller (an
// HTTP client polling the job) answers them. The coordinator blocks inside
// Decide; Answer unblocks it. Only one comparison can be pending per job
// because conflicts are resolved strictly one at a time.

import (
	"context"
	"sync"
)

// PendingDecisions is a ConflictDecisionProvider answered asynchronously.
type PendingDecisions struct {
	mu      sync.Mutex
	pending *Comparison
	answer  chan Decision
	notify  func(Comparison)
}

// NewPendingDecisions creates a provider. notify, if non-nil, is called each
// time a comparison starts waiting.
func NewPendingDecisions(notify func(Comparison)) *PendingDecisions {
	return &PendingDecisions{notify: notify}
}

// Decide blocks until Answer is called or ctx is done. An answer accepted
// before the cancellation is observed still wins.
func (p *PendingDecisions) Decide(ctx context.Context, cmp Comparison) (Decision, error) {
	ch := make(chan Decision, 1)

	p.mu.Lock()
	p.pending = &cmp
	p.answer = ch
	p.mu.Unlock()

	if p.notify != nil {
		p.notify(cmp)
	}

	select {
	case d := <-ch:
		return d, nil
	case <-ctx.Done():
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.answer == ch {
		p.pending = nil
		p.answer = nil
	}
	// Answer sends under the lock, so an accepted decision is already buffered.
	select {
	case d := <-ch:
		return d, nil
	default:
		return "", ctx.Err()
	}
}

// Pending returns the comparison currently waiting for an answer.
func (p *PendingDecisions) Pending() (Comparison, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending == nil {
		return Comparison{}, false
	}
	return *p.pending, true
}

// Answer delivers a decision for the pending comparison.
// Returns ErrNoPendingConflict if nothing is waiting.
func (p *PendingDecisions) Answer(d Decision) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.answer == nil {
		return ErrNoPendingConflict
	}

	p.answer <- d
	p.pending = nil
	p.answer = nil
	return nil
}
