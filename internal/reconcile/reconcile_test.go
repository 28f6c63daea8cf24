package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinmichaelchen/star-lists/internal/models"
	"github.com/kevinmichaelchen/star-lists/internal/taxonomy"
	"github.com/kevinmichaelchen/star-lists/internal/testsupport"
)

func repo(name string) models.Repository {
	return models.Repository{ID: "R_" + name, FullName: "acme/" + name}
}

func matched(name, list string, confidence float64) models.ClassificationResult {
	return models.ClassificationResult{
		Repo:       repo(name),
		Suggestion: &models.Suggestion{MatchedCategory: list, Confidence: confidence},
		Attempts:   1,
	}
}

func proposed(name, list string) models.ClassificationResult {
	return models.ClassificationResult{
		Repo:       repo(name),
		Suggestion: &models.Suggestion{ProposeNew: true, NewCategoryName: list, Confidence: 0.7},
		Attempts:   1,
	}
}

func failed(name string) models.ClassificationResult {
	return models.ClassificationResult{Repo: repo(name), Err: errors.New("boom"), Attempts: 1}
}

func category(key, name string, pos int) models.Category {
	return models.Category{Key: key, Name: name, Color: Palette[0], Position: pos}
}

func newReconciler(opts ...Option) *Reconciler {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(opts...)
}

func TestReconcileMergesSameNormalizedName(t *testing.T) {
	existing := []models.Category{category("k1", "Backend", 0)}
	results := []models.ClassificationResult{
		proposed("ci-runner", "DevOps"),
		proposed("k8s-thing", "docker & kubernetes"),
	}

	plan := newReconciler().Reconcile(results, existing)

	require.Len(t, plan.Proposals, 1)
	p := plan.Proposals[0]
	assert.Equal(t, "DevOps", p.Name)
	assert.Equal(t, KindNewList, p.Kind)
	assert.True(t, p.Accepted)
	assert.Equal(t, []string{"acme/ci-runner", "acme/k8s-thing"}, p.Examples(5))
	assert.Empty(t, plan.Applied)
}

func TestReconcileCrossLocaleProposalsConverge(t *testing.T) {
	existing := []models.Category{category("k1", "Backend", 0)}
	results := []models.ClassificationResult{
		proposed("b", "proxy tools"),
		proposed("c", "代理工具"),
	}

	plan := newReconciler().Reconcile(results, existing)

	require.Len(t, plan.Proposals, 1)
	assert.Equal(t, "Proxy Tools", plan.Proposals[0].Name)
	assert.Len(t, plan.Proposals[0].Repos, 2)

	zhPlan := newReconciler(WithLocale(taxonomy.LocaleZH)).Reconcile(results, existing)
	require.Len(t, zhPlan.Proposals, 1)
	assert.Equal(t, "代理工具", zhPlan.Proposals[0].Name)
}

func TestReconcileAutoAppliesExistingMatches(t *testing.T) {
	existing := []models.Category{category("k1", "Backend", 0), category("k2", "人工智能", 1)}
	results := []models.ClassificationResult{
		matched("api", "backend", 0.9),
		// A proposal that turns out to duplicate an existing list.
		proposed("llama", "LLM apps"),
	}

	plan := newReconciler().Reconcile(results, existing)

	require.Len(t, plan.Applied, 2)
	assert.Equal(t, "k1", plan.Applied[0].Category.Key)
	assert.Equal(t, "k2", plan.Applied[1].Category.Key)
	assert.False(t, plan.NeedsReview())
}

func TestReconcileUnknownMatchBecomesProposal(t *testing.T) {
	plan := newReconciler().Reconcile([]models.ClassificationResult{
		matched("vim-plug", "Neovim plugins", 0.8),
	}, nil)

	require.Len(t, plan.Proposals, 1)
	assert.Equal(t, "Editor", plan.Proposals[0].Name)
}

func TestReconcileLowConfidenceMatchNeedsReview(t *testing.T) {
	existing := []models.Category{category("k1", "Backend", 0)}
	plan := newReconciler(WithMinConfidence(0.5)).Reconcile([]models.ClassificationResult{
		matched("maybe", "Backend", 0.3),
		matched("sure", "Backend", 0.6),
	}, existing)

	require.Len(t, plan.Applied, 1)
	assert.Equal(t, "acme/sure", plan.Applied[0].Repo.FullName)
	assert.Equal(t, []string{"acme/maybe"}, plan.Unclassified.Examples(5))
}

func TestReconcileFallbackBuckets(t *testing.T) {
	results := []models.ClassificationResult{
		failed("broken"),
		{Repo: repo("blank"), Suggestion: &models.Suggestion{}},
		proposed("garden", "Gardening"),
		{Repo: repo("flagonly"), Suggestion: &models.Suggestion{ProposeNew: true}},
	}

	plan := newReconciler().Reconcile(results, nil)

	assert.Empty(t, plan.Proposals)
	assert.Equal(t, "Other", plan.Unclassified.Name)
	assert.True(t, plan.Unclassified.Accepted)
	assert.Equal(t, []string{"acme/blank", "acme/garden", "acme/flagonly"}, plan.Unclassified.Examples(5))
	assert.False(t, plan.Failed.Accepted)
	assert.Equal(t, []string{"acme/broken"}, plan.Failed.Examples(5))
	require.Len(t, plan.Failures, 1)
	assert.EqualError(t, plan.Failures[0].Err, "boom")
	assert.True(t, plan.NeedsReview())
}

func TestReconcileEveryRepoLandsInExactlyOneBucket(t *testing.T) {
	existing := []models.Category{category("k1", "Backend", 0), category("k2", "Database", 1)}
	var results []models.ClassificationResult
	for i := 0; i < 40; i++ {
		name := fmt.Sprintf("r%d", i)
		switch i % 5 {
		case 0:
			results = append(results, matched(name, "Backend", 0.9))
		case 1:
			results = append(results, proposed(name, "DevOps"))
		case 2:
			results = append(results, proposed(name, "Media"))
		case 3:
			results = append(results, failed(name))
		default:
			results = append(results, models.ClassificationResult{Repo: repo(name), Suggestion: &models.Suggestion{}})
		}
	}

	plan := newReconciler().Reconcile(results, existing)

	seen := make(map[string]int)
	for _, a := range plan.Applied {
		seen[a.Repo.FullName]++
	}
	for _, p := range plan.Reviewable() {
		for _, r := range p.Repos {
			seen[r.FullName]++
		}
	}
	assert.Len(t, seen, len(results))
	for name, n := range seen {
		assert.Equal(t, 1, n, "repo %s", name)
	}
	assert.Equal(t, 40, plan.Processed)
}

func TestReconcileProposalOrderIsFirstSeen(t *testing.T) {
	plan := newReconciler().Reconcile([]models.ClassificationResult{
		proposed("a", "Media"),
		proposed("b", "DevOps"),
		proposed("c", "video"),
		proposed("d", "CLI"),
	}, nil)

	var names []string
	for _, p := range plan.Proposals {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Media Tools", "DevOps", "CLI Tools"}, names)
}

func TestApplyWritesMembershipsAndSkipsFailures(t *testing.T) {
	store := testsupport.NewMemoryStore(category("k1", "Backend", 0))
	store.FailMembership = map[string]bool{"acme/bad": true}
	existing, _ := store.ListCategories(context.Background())
	r := newReconciler()
	plan := r.Reconcile([]models.ClassificationResult{
		matched("good", "Backend", 0.9),
		matched("bad", "Backend", 0.9),
	}, existing)

	applied, errs := r.Apply(context.Background(), store, plan)

	require.Len(t, applied, 1)
	assert.Equal(t, "acme/good", applied[0].Repo.FullName)
	require.Len(t, errs, 1)
	assert.Equal(t, "acme/bad", errs[0].Repo)
	assert.Equal(t, []string{"Backend"}, store.ListsOf("acme/good"))
	assert.Empty(t, store.ListsOf("acme/bad"))
}

func TestCommitCreatesAcceptedListsInOrder(t *testing.T) {
	store := testsupport.NewMemoryStore(category("k1", "Backend", 4))
	existing, _ := store.ListCategories(context.Background())
	r := newReconciler()
	plan := r.Reconcile([]models.ClassificationResult{
		proposed("a", "Media"),
		proposed("b", "DevOps"),
		proposed("c", "CLI"),
		proposed("d", "video"),
		failed("e"),
	}, existing)
	cli, ok := plan.Proposal("CLI Tools", KindNewList)
	require.True(t, ok)
	cli.Accepted = false

	res := r.Commit(context.Background(), store, plan, existing)

	require.Len(t, res.Created, 2)
	assert.Equal(t, "Media Tools", res.Created[0].Name)
	assert.Equal(t, Palette[1], res.Created[0].Color, "first palette color is taken by Backend")
	assert.Equal(t, 5, res.Created[0].Position)
	assert.Equal(t, "DevOps", res.Created[1].Name)
	assert.Equal(t, Palette[2], res.Created[1].Color)
	assert.Equal(t, 6, res.Created[1].Position)
	assert.NotEmpty(t, res.Created[0].Key)
	assert.NotEqual(t, res.Created[0].Key, res.Created[1].Key)

	assert.Equal(t, 3, res.Filed)
	assert.Equal(t, 2, res.Declined, "deselected CLI proposal and the failed bucket")
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"Media Tools"}, store.ListsOf("acme/d"))
	assert.Empty(t, store.ListsOf("acme/c"))
	assert.Empty(t, store.ListsOf("acme/e"))
}

func TestCommitReusesExistingOtherList(t *testing.T) {
	store := testsupport.NewMemoryStore(category("k9", "Other", 0))
	existing, _ := store.ListCategories(context.Background())
	r := newReconciler()
	plan := r.Reconcile([]models.ClassificationResult{
		{Repo: repo("blank"), Suggestion: &models.Suggestion{}},
		failed("broken"),
	}, existing)
	plan.Failed.Accepted = true

	res := r.Commit(context.Background(), store, plan, existing)

	assert.Empty(t, res.Created)
	assert.Equal(t, 2, res.Filed)
	assert.Equal(t, []string{"Other"}, store.ListsOf("acme/blank"))
	assert.Equal(t, []string{"Other"}, store.ListsOf("acme/broken"))
}

func TestCommitContinuesPastStoreErrors(t *testing.T) {
	store := testsupport.NewMemoryStore()
	store.FailCreate = map[string]bool{"Media Tools": true}
	store.FailMembership = map[string]bool{"acme/b2": true}
	r := newReconciler()
	plan := r.Reconcile([]models.ClassificationResult{
		proposed("a", "Media"),
		proposed("b1", "DevOps"),
		proposed("b2", "DevOps"),
	}, nil)

	res := r.Commit(context.Background(), store, plan, nil)

	require.Len(t, res.Created, 1)
	assert.Equal(t, "DevOps", res.Created[0].Name)
	assert.Equal(t, 1, res.Filed)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "create list", res.Errors[0].Op)
	assert.Equal(t, "acme/b2", res.Errors[1].Repo)
	assert.False(t, Summary{Errors: res.Errors}.OK())
}

func TestNextColorCycles(t *testing.T) {
	var cats []models.Category
	for i := range Palette {
		cats = append(cats, models.Category{Name: fmt.Sprint(i), Color: Palette[i]})
	}
	assert.Equal(t, Palette[0], nextColor(nil))
	assert.Equal(t, Palette[0], nextColor(cats))
	cats = append(cats, models.Category{Color: Palette[0]})
	assert.Equal(t, Palette[1], nextColor(cats))
	assert.Equal(t, Palette[1], nextColor([]models.Category{{Color: "#EF4444"}}))
}

func TestProposalExamplesCapped(t *testing.T) {
	p := &Proposal{}
	for i := 0; i < 8; i++ {
		p.Repos = append(p.Repos, repo(fmt.Sprint(i)))
	}
	assert.Len(t, p.Examples(5), 5)
	assert.Equal(t, "acme/0", p.Examples(5)[0])
}
