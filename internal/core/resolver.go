package core

import (
	"context"
	"log/slog"
)

// ExistingLoadFailed is shown in place of the stored record when it cannot be fetched.
const ExistingLoadFailed = "could not load existing data"

// ConflictDecisionProvider asks someone what to do about one conflict.
// Implementations may block (a terminal prompt, an HTTP caller answering later).
type ConflictDecisionProvider interface {
	Decide(ctx context.Context, cmp Comparison) (Decision, error)
}

// DecisionFunc adapts a function to ConflictDecisionProvider.
type DecisionFunc func(ctx context.Context, cmp Comparison) (Decision, error)

// Decide calls f.
func (f DecisionFunc) Decide(ctx context.Context, cmp Comparison) (Decision, error) {
	return f(ctx, cmp)
}

// FixedDecision answers every conflict the same way. Used for non-interactive runs.
type FixedDecision Decision

// Decide returns the fixed decision.
func (d FixedDecision) Decide(ctx context.Context, cmp Comparison) (Decision, error) {
	return Decision(d), nil
}

// ExistingFetcher loads the stored counterpart of a conflicting record.
// Backend satisfies it.
type ExistingFetcher interface {
	FetchExisting(ctx context.Context, docType, naturalKey string) (Fields, bool, error)
}

// ConflictResolver fetches the stored record for a conflict and asks the
// provider for a decision. It always returns one of the five decisions.
type ConflictResolver struct {
	docType  string
	fetcher  ExistingFetcher
	provider ConflictDecisionProvider
	logger   *slog.Logger
}

// NewConflictResolver creates a resolver for one document type.
func NewConflictResolver(docType string, fetcher ExistingFetcher, provider ConflictDecisionProvider, logger *slog.Logger) *ConflictResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConflictResolver{
		docType:  docType,
		fetcher:  fetcher,
		provider: provider,
		logger:   logger,
	}
}

// Compare builds the side-by-side comparison for a conflict. A failed fetch
// degrades to a placeholder instead of failing the job.
func (r *ConflictResolver) Compare(ctx context.Context, c ConflictRecord) Comparison {
	cmp := Comparison{Conflict: c}

	existing, found, err := r.fetcher.FetchExisting(ctx, r.docType, c.NaturalKey)
	switch {
	case err != nil:
		r.logger.Warn("fetch existing record failed",
			"doc_type", r.docType,
			"natural_key", c.NaturalKey,
			"error", err,
		)
		cmp.LoadError = ExistingLoadFailed
	case found:
		cmp.Existing = existing
	}

	return cmp
}

// Resolve returns the decision for a conflict. Provider errors, context
// cancellation and unrecognised answers all map to DecisionCancelJob.
func (r *ConflictResolver) Resolve(ctx context.Context, c ConflictRecord) Decision {
	return r.Decide(ctx, r.Compare(ctx, c))
}

// Decide asks the provider about an already built comparison.
func (r *ConflictResolver) Decide(ctx context.Context, cmp Comparison) Decision {
	c := cmp.Conflict
	if ctx.Err() != nil {
		return DecisionCancelJob
	}

	d, err := r.provider.Decide(ctx, cmp)
	if err != nil {
		r.logger.Info("conflict decision cancelled",
			"doc_type", r.docType,
			"natural_key", c.NaturalKey,
			"error", err,
		)
		return DecisionCancelJob
	}

	if _, ok := ParseDecision(string(d)); !ok {
		r.logger.Warn("unrecognised conflict decision",
			"doc_type", r.docType,
			"natural_key", c.NaturalKey,
			"decision", string(d),
		)
		return DecisionCancelJob
	}

	return d
}
