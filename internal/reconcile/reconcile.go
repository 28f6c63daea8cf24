package reconcile

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kevinmichaelchen/star-lists/internal/models"
	"github.com/kevinmichaelchen/star-lists/internal/taxonomy"
)

// Palette is the fixed color cycle given to new lists.
var Palette = []string{
	"#ef4444", "#f97316", "#eab308", "#22c55e", "#14b8a6",
	"#3b82f6", "#6366f1", "#a855f7", "#ec4899", "#64748b",
}

// Reconciler turns classification results into a plan and writes it.
type Reconciler struct {
	normalizer    *taxonomy.Normalizer
	minConfidence float64
	logger        *slog.Logger
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithLocale sets the language new canonical list names are created in.
func WithLocale(l taxonomy.Locale) Option {
	return func(r *Reconciler) { r.normalizer = taxonomy.NewNormalizer(l) }
}

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *taxonomy.Normalizer) Option {
	return func(r *Reconciler) {
		if n != nil {
			r.normalizer = n
		}
	}
}

// WithMinConfidence sets the confidence a match against an existing list
// needs to be applied without review.
func WithMinConfidence(c float64) Option {
	return func(r *Reconciler) { r.minConfidence = c }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a Reconciler for English names with no confidence floor.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		normalizer: taxonomy.NewNormalizer(taxonomy.LocaleEN),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile sorts results into auto-applied assignments, new-list proposals
// and the two fallback buckets. Every result lands in exactly one of them.
// It does no I/O.
func (r *Reconciler) Reconcile(results []models.ClassificationResult, existing []models.Category) *Plan {
	other := taxonomy.Name(r.normalizer.Locale(), taxonomy.Other)
	plan := &Plan{
		Total:        len(results),
		Processed:    len(results),
		Unclassified: &Proposal{Name: other, Kind: KindUnclassified, Accepted: true},
		Failed:       &Proposal{Name: other, Kind: KindFailed},
	}
	byName := make(map[string]*Proposal)

	for _, res := range results {
		if res.Failed() {
			plan.Failures = append(plan.Failures, Failure{Repo: res.Repo, Err: res.Err})
			plan.Failed.Repos = append(plan.Failed.Repos, res.Repo)
			continue
		}
		s := res.Suggestion
		matched := strings.TrimSpace(s.MatchedCategory)
		proposed := strings.TrimSpace(s.NewCategoryName)

		var candidate string
		switch {
		case matched != "" && (!s.ProposeNew || proposed == ""):
			if cat, ok := taxonomy.FindExistingMatch(matched, existing); ok {
				if s.Confidence < r.minConfidence {
					plan.Unclassified.Repos = append(plan.Unclassified.Repos, res.Repo)
					continue
				}
				plan.Applied = append(plan.Applied, Assignment{Repo: res.Repo, Category: cat, Confidence: s.Confidence})
				continue
			}
			// The model named a list the user does not have.
			candidate = matched
		case proposed != "":
			candidate = proposed
		}
		if candidate == "" {
			plan.Unclassified.Repos = append(plan.Unclassified.Repos, res.Repo)
			continue
		}

		name := r.normalizer.Normalize(candidate)
		if name == other {
			plan.Unclassified.Repos = append(plan.Unclassified.Repos, res.Repo)
			continue
		}
		if cat, ok := taxonomy.FindExistingMatch(name, existing); ok {
			plan.Applied = append(plan.Applied, Assignment{Repo: res.Repo, Category: cat, Confidence: s.Confidence})
			continue
		}
		p, ok := byName[name]
		if !ok {
			p = &Proposal{Name: name, Kind: KindNewList, Accepted: true}
			byName[name] = p
			plan.Proposals = append(plan.Proposals, p)
		}
		p.Repos = append(p.Repos, res.Repo)
	}
	return plan
}

// Apply writes the plan's auto-applied memberships. Failed writes are logged
// and skipped; the returned assignments are the ones that were stored.
func (r *Reconciler) Apply(ctx context.Context, store Store, plan *Plan) ([]Assignment, []CommitError) {
	var (
		applied []Assignment
		errs    []CommitError
	)
	for _, a := range plan.Applied {
		err := store.AddMembership(ctx, models.Membership{RepoFullName: a.Repo.FullName, CategoryKey: a.Category.Key})
		if err != nil {
			r.logger.Warn("auto-apply failed", "repo", a.Repo.FullName, "list", a.Category.Name, "error", err)
			errs = append(errs, CommitError{Op: "add membership", Repo: a.Repo.FullName, Category: a.Category.Name, Err: err})
			continue
		}
		applied = append(applied, a)
	}
	return applied, errs
}

// CommitResult is what Commit wrote.
type CommitResult struct {
	Created  []models.Category
	Filed    int
	Declined int
	Errors   []CommitError
}

// Commit creates a list for every accepted proposal, in plan order, and
// files its members. A proposal whose name already exists exactly reuses
// that list. Store failures are logged and skipped.
func (r *Reconciler) Commit(ctx context.Context, store Store, plan *Plan, existing []models.Category) CommitResult {
	var out CommitResult
	known := append([]models.Category(nil), existing...)

	for _, p := range plan.Reviewable() {
		if !p.Accepted {
			out.Declined += len(p.Repos)
			continue
		}
		target, ok := exactMatch(p.Name, known)
		if !ok {
			c := models.Category{
				Key:      uuid.NewString(),
				Name:     p.Name,
				Color:    nextColor(known),
				Position: nextPosition(known),
			}
			created, err := store.CreateCategory(ctx, c)
			if err != nil {
				r.logger.Warn("creating list failed", "list", p.Name, "error", err)
				out.Errors = append(out.Errors, CommitError{Op: "create list", Category: p.Name, Err: err})
				continue
			}
			r.logger.Info("created list", "list", created.Name, "color", created.Color, "repos", len(p.Repos))
			known = append(known, created)
			out.Created = append(out.Created, created)
			target = created
		}

		for _, repo := range p.Repos {
			err := store.AddMembership(ctx, models.Membership{RepoFullName: repo.FullName, CategoryKey: target.Key})
			if err != nil {
				r.logger.Warn("filing repo failed", "repo", repo.FullName, "list", target.Name, "error", err)
				out.Errors = append(out.Errors, CommitError{Op: "add membership", Repo: repo.FullName, Category: target.Name, Err: err})
				continue
			}
			out.Filed++
		}
	}
	return out
}

func exactMatch(name string, cats []models.Category) (models.Category, bool) {
	for _, c := range cats {
		if strings.EqualFold(strings.TrimSpace(c.Name), strings.TrimSpace(name)) {
			return c, true
		}
	}
	return models.Category{}, false
}

// nextColor picks the first palette color no list uses, cycling through the
// palette once every color is taken.
func nextColor(cats []models.Category) string {
	used := make(map[string]bool, len(cats))
	for _, c := range cats {
		used[strings.ToLower(c.Color)] = true
	}
	for _, color := range Palette {
		if !used[color] {
			return color
		}
	}
	return Palette[len(cats)%len(Palette)]
}

func nextPosition(cats []models.Category) int {
	pos := 0
	for _, c := range cats {
		if c.Position >= pos {
			pos = c.Position + 1
		}
	}
	return pos
}
