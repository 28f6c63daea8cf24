// Package organizer drives one classification run from confirmation through
// processing and review to a final summary.
package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kevinmichaelchen/star-lists/internal/batch"
	"github.com/kevinmichaelchen/star-lists/internal/models"
	"github.com/kevinmichaelchen/star-lists/internal/reconcile"
)

// Phase is where a Session is in its run.
type Phase int

const (
	PhaseConfirm Phase = iota
	PhaseProcessing
	PhaseReview
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseConfirm:
		return "confirm"
	case PhaseProcessing:
		return "processing"
	case PhaseReview:
		return "review"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ErrInvalidPhase is returned when an operation is not allowed in the
// session's current phase.
var ErrInvalidPhase = errors.New("invalid phase for operation")

// Session is a single run. It is not reusable.
type Session struct {
	store      reconcile.Store
	scheduler  *batch.Scheduler
	reconciler *reconcile.Reconciler
	logger     *slog.Logger

	mu       sync.Mutex
	phase    Phase
	cancel   context.CancelFunc
	existing []models.Category
	plan     *reconcile.Plan
	applied  []reconcile.Assignment
	errs     []reconcile.CommitError
	summary  reconcile.Summary
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession returns a Session in PhaseConfirm.
func NewSession(store reconcile.Store, scheduler *batch.Scheduler, reconciler *reconcile.Reconciler, opts ...Option) *Session {
	s := &Session{
		store:      store,
		scheduler:  scheduler,
		reconciler: reconciler,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Start classifies repos and blocks until the batch has drained or been
// cancelled. Confident matches are written before Start returns. The
// session then waits in Review if anything needs a decision, otherwise it
// is Done.
func (s *Session) Start(ctx context.Context, repos []models.Repository, onProgress func(batch.Progress)) error {
	s.mu.Lock()
	if s.phase != PhaseConfirm {
		s.mu.Unlock()
		return fmt.Errorf("start in %s: %w", s.phase, ErrInvalidPhase)
	}
	existing, err := s.store.ListCategories(ctx)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("loading lists: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.phase = PhaseProcessing
	s.cancel = cancel
	s.existing = existing
	s.mu.Unlock()

	names := make([]string, 0, len(existing))
	for _, c := range existing {
		names = append(names, c.Name)
	}
	outcome := s.scheduler.Run(runCtx, repos, names, onProgress)

	plan := s.reconciler.Reconcile(outcome.Results, existing)
	plan.Total = outcome.Total
	plan.Cancelled = outcome.Cancelled
	// Writes go through ctx, not runCtx: a cancelled run still keeps the
	// results it finished.
	applied, errs := s.reconciler.Apply(context.WithoutCancel(ctx), s.store, plan)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = nil
	s.plan = plan
	s.applied = applied
	s.errs = errs
	if plan.NeedsReview() {
		s.phase = PhaseReview
		s.logger.Info("run awaiting review", "proposals", len(plan.Reviewable()), "auto_applied", len(applied))
		return nil
	}
	s.finish(reconcile.CommitResult{})
	return nil
}

// Cancel asks a running batch to stop. Jobs already in flight finish and
// their results are kept.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseProcessing || s.cancel == nil {
		return fmt.Errorf("cancel in %s: %w", s.phase, ErrInvalidPhase)
	}
	s.logger.Info("cancellation requested")
	s.cancel()
	return nil
}

// Proposals returns the reviewable proposals in commit order. The returned
// pointers are owned by the session; use SetAccepted to change them.
func (s *Session) Proposals() ([]*reconcile.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseReview {
		return nil, fmt.Errorf("proposals in %s: %w", s.phase, ErrInvalidPhase)
	}
	return s.plan.Reviewable(), nil
}

// SetAccepted toggles the proposal at index (as ordered by Proposals).
func (s *Session) SetAccepted(index int, accepted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseReview {
		return fmt.Errorf("set accepted in %s: %w", s.phase, ErrInvalidPhase)
	}
	props := s.plan.Reviewable()
	if index < 0 || index >= len(props) {
		return fmt.Errorf("proposal %d out of range (have %d)", index, len(props))
	}
	props[index].Accepted = accepted
	return nil
}

// Commit writes every accepted proposal and ends the session.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseReview {
		return fmt.Errorf("commit in %s: %w", s.phase, ErrInvalidPhase)
	}
	res := s.reconciler.Commit(ctx, s.store, s.plan, s.existing)
	s.finish(res)
	return nil
}

// Summary returns the final report once the session is Done.
func (s *Session) Summary() (reconcile.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseDone {
		return reconcile.Summary{}, fmt.Errorf("summary in %s: %w", s.phase, ErrInvalidPhase)
	}
	return s.summary, nil
}

// finish builds the summary and moves to Done. Callers hold mu.
func (s *Session) finish(res reconcile.CommitResult) {
	s.summary = reconcile.Summary{
		Total:       s.plan.Total,
		Processed:   s.plan.Processed,
		Cancelled:   s.plan.Cancelled,
		AutoApplied: s.applied,
		Failures:    s.plan.Failures,
		Created:     res.Created,
		Filed:       res.Filed,
		Declined:    res.Declined,
		Errors:      append(append([]reconcile.CommitError(nil), s.errs...), res.Errors...),
	}
	s.phase = PhaseDone
	s.logger.Info("run finished",
		"processed", s.summary.Processed, "total", s.summary.Total,
		"auto_applied", len(s.summary.AutoApplied), "created", len(s.summary.Created),
		"filed", s.summary.Filed, "failed", len(s.summary.Failures),
		"errors", len(s.summary.Errors), "cancelled", s.summary.Cancelled)
}
