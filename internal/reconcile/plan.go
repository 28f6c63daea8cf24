// Package reconcile turns classification results into list memberships:
// confident matches against existing lists are applied straight away, and
// everything else is grouped into proposals for the user to review.
package reconcile

import (
	"context"
	"fmt"

	"github.com/kevinmichaelchen/star-lists/internal/models"
)

// Store is the part of the persistence layer the reconciler writes through.
type Store interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, c models.Category) (models.Category, error)
	AddMembership(ctx context.Context, m models.Membership) error
}

// ProposalKind distinguishes genuine new-list proposals from the fallback
// buckets.
type ProposalKind int

const (
	KindNewList ProposalKind = iota
	KindUnclassified
	KindFailed
)

func (k ProposalKind) String() string {
	switch k {
	case KindUnclassified:
		return "unclassified"
	case KindFailed:
		return "failed"
	default:
		return "new"
	}
}

// Proposal is a not-yet-created list and the repositories that would go in
// it. Fallback buckets file into the canonical "Other" list when accepted.
type Proposal struct {
	Name     string
	Kind     ProposalKind
	Repos    []models.Repository
	Accepted bool
}

// Examples returns up to n member names for display.
func (p *Proposal) Examples(n int) []string {
	if n > len(p.Repos) {
		n = len(p.Repos)
	}
	out := make([]string, 0, n)
	for _, r := range p.Repos[:n] {
		out = append(out, r.FullName)
	}
	return out
}

// Assignment files one repository into an existing list.
type Assignment struct {
	Repo       models.Repository
	Category   models.Category
	Confidence float64
}

// Failure is a job that ended without a suggestion.
type Failure struct {
	Repo models.Repository
	Err  error
}

// Plan is the reconciled view of one run.
type Plan struct {
	Total     int
	Processed int
	Cancelled bool

	Applied []Assignment
	// Proposals are new lists keyed by normalized name, in first-seen order.
	Proposals    []*Proposal
	Unclassified *Proposal
	Failed       *Proposal
	Failures     []Failure
}

// Reviewable returns every non-empty proposal and bucket in commit order.
func (p *Plan) Reviewable() []*Proposal {
	out := make([]*Proposal, 0, len(p.Proposals)+2)
	out = append(out, p.Proposals...)
	for _, b := range []*Proposal{p.Unclassified, p.Failed} {
		if b != nil && len(b.Repos) > 0 {
			out = append(out, b)
		}
	}
	return out
}

// NeedsReview reports whether anything is waiting on the user.
func (p *Plan) NeedsReview() bool {
	return len(p.Reviewable()) > 0
}

// Proposal returns the reviewable proposal called name.
func (p *Plan) Proposal(name string, kind ProposalKind) (*Proposal, bool) {
	for _, prop := range p.Reviewable() {
		if prop.Name == name && prop.Kind == kind {
			return prop, true
		}
	}
	return nil, false
}

// CommitError records one store write that failed and was skipped.
type CommitError struct {
	Op       string
	Repo     string
	Category string
	Err      error
}

func (e CommitError) Error() string {
	if e.Repo != "" {
		return fmt.Sprintf("%s %s -> %s: %v", e.Op, e.Repo, e.Category, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Category, e.Err)
}

func (e CommitError) Unwrap() error {
	return e.Err
}

// Summary is the final report of a run.
type Summary struct {
	Total     int
	Processed int
	Cancelled bool

	AutoApplied []Assignment
	Failures    []Failure
	Created     []models.Category
	// Filed counts memberships created when proposals were committed.
	Filed int
	// Declined counts repositories left unfiled because their proposal was
	// deselected.
	Declined int
	Errors   []CommitError
}

// OK is false when any store write failed.
func (s Summary) OK() bool {
	return len(s.Errors) == 0
}
