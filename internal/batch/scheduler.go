// Package batch runs classification jobs through a bounded worker pool with
// request spacing, rate-limit backoff and cooperative cancellation.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kevinmichaelchen/star-lists/internal/llm"
	"github.com/kevinmichaelchen/star-lists/internal/models"
)

// Classifier classifies one repository against the user's existing list
// names. *llm.Client satisfies it.
type Classifier interface {
	Classify(ctx context.Context, repo models.Repository, existing []string) (models.Suggestion, error)
}

// Progress is reported after every completed job.
type Progress struct {
	Completed int
	Total     int
	// Active holds the full names of repositories still in flight, in the
	// order they were started.
	Active []string
}

// ActiveDescription renders Active for a status line.
func (p Progress) ActiveDescription() string {
	return strings.Join(p.Active, ", ")
}

// Outcome is the immutable result of a run, handed over once every worker
// has stopped.
type Outcome struct {
	Results   []models.ClassificationResult
	Total     int
	Cancelled bool
}

// Processed is the number of jobs that produced a result.
func (o Outcome) Processed() int {
	return len(o.Results)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Scheduler classifies a batch of repositories with bounded concurrency.
type Scheduler struct {
	cfg        Config
	classifier Classifier
	logger     *slog.Logger
	sleep      Sleeper
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSleeper overrides how the scheduler waits (useful for tests).
func WithSleeper(fn Sleeper) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// New returns a Scheduler for cfg, normalized to valid bounds.
func New(cfg Config, classifier Classifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:        cfg.Normalize(),
		classifier: classifier,
		logger:     slog.Default(),
		sleep:      SleepWithContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the normalized configuration in use.
func (s *Scheduler) Config() Config {
	return s.cfg
}

type job struct {
	seq  int
	repo models.Repository
}

type eventKind int

const (
	jobStarted eventKind = iota
	jobFinished
)

type event struct {
	kind   eventKind
	job    job
	result models.ClassificationResult
}

// Run classifies repos and blocks until the queue is drained or ctx is
// cancelled and every worker has stopped. Cancelling ctx stops workers at
// their next dequeue or inter-request wait; calls already in flight are
// allowed to finish. onProgress may be nil and is called from Run's
// goroutine only.
func (s *Scheduler) Run(ctx context.Context, repos []models.Repository, existing []string, onProgress func(Progress)) Outcome {
	total := len(repos)
	queue := make(chan job, total)
	for i, r := range repos {
		queue <- job{seq: i, repo: r}
	}
	close(queue)

	names := append([]string(nil), existing...)
	events := make(chan event)

	var g errgroup.Group
	workers := min(s.cfg.Concurrency, total)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			s.work(ctx, queue, names, events)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(events)
	}()

	s.logger.Info("batch classification started",
		"repos", total, "concurrency", s.cfg.Concurrency, "interval", s.cfg.RequestInterval)

	active := make(map[int]string)
	results := make([]models.ClassificationResult, 0, total)
	for ev := range events {
		switch ev.kind {
		case jobStarted:
			active[ev.job.seq] = ev.job.repo.FullName
		case jobFinished:
			delete(active, ev.job.seq)
			results = append(results, ev.result)
			if onProgress != nil {
				onProgress(Progress{Completed: len(results), Total: total, Active: activeNames(active)})
			}
		}
	}

	// A cancel that lands after the last job finished does not mark the run.
	out := Outcome{Results: results, Total: total, Cancelled: ctx.Err() != nil && len(results) < total}
	s.logger.Info("batch classification finished",
		"processed", out.Processed(), "total", total, "cancelled", out.Cancelled)
	return out
}

func (s *Scheduler) work(ctx context.Context, queue <-chan job, existing []string, events chan<- event) {
	for {
		if ctx.Err() != nil {
			return
		}
		j, ok := <-queue
		if !ok {
			return
		}
		events <- event{kind: jobStarted, job: j}
		res := s.runJob(ctx, j.repo, existing)
		events <- event{kind: jobFinished, job: j, result: res}

		if ctx.Err() != nil {
			return
		}
		if s.cfg.RequestInterval > 0 && len(queue) > 0 {
			if err := s.sleep(ctx, s.cfg.RequestInterval); err != nil {
				return
			}
		}
	}
}

// runJob classifies one repository, retrying in place on rate limits.
func (s *Scheduler) runJob(ctx context.Context, repo models.Repository, existing []string) models.ClassificationResult {
	// In-flight calls are not aborted by cancellation; only the transport
	// timeout bounds them.
	callCtx := context.WithoutCancel(ctx)

	for attempt := 1; ; attempt++ {
		suggestion, err := s.classifier.Classify(callCtx, repo, existing)
		if err == nil {
			s.logger.Debug("classified", "repo", repo.FullName, "attempt", attempt,
				"matched", suggestion.MatchedCategory, "new", suggestion.NewCategoryName,
				"confidence", suggestion.Confidence)
			return models.ClassificationResult{Repo: repo, Suggestion: &suggestion, Attempts: attempt}
		}

		var rl *llm.RateLimitedError
		if !errors.As(err, &rl) {
			s.logger.Warn("classification failed", "repo", repo.FullName, "attempt", attempt, "error", err)
			return models.ClassificationResult{Repo: repo, Err: err, Attempts: attempt}
		}
		if attempt >= MaxAttempts {
			s.logger.Warn("rate limit retries exhausted", "repo", repo.FullName, "attempts", attempt)
			return models.ClassificationResult{
				Repo:     repo,
				Err:      fmt.Errorf("giving up after %d attempts: %w", attempt, err),
				Attempts: attempt,
			}
		}

		wait := backoff(rl.RetryAfter, attempt)
		s.logger.Info("rate limited, backing off", "repo", repo.FullName, "attempt", attempt, "wait", wait)
		if serr := s.sleep(ctx, wait); serr != nil {
			return models.ClassificationResult{
				Repo:     repo,
				Err:      fmt.Errorf("cancelled during rate-limit backoff: %w: %w", serr, err),
				Attempts: attempt,
			}
		}
	}
}

func activeNames(active map[int]string) []string {
	seqs := make([]int, 0, len(active))
	for seq := range active {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	out := make([]string, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, active[seq])
	}
	return out
}

// SleepWithContext blocks for d, returning early if ctx is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
