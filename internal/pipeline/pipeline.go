// Package pipeline syncs starred repositories from GitHub into the store,
// keeping a local JSON cache so repeat syncs only fetch new stars.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kevinmichaelchen/star-lists/internal/github"
	"github.com/kevinmichaelchen/star-lists/internal/models"
)

const (
	DefaultCacheFile = "stars.json"
	upsertLimit      = 5
)

// RepoStore is where synced repositories are written.
type RepoStore interface {
	UpsertRepo(ctx context.Context, r models.Repository) error
}

// Fetcher runs a fetch strategy against GitHub.
type Fetcher interface {
	Fetch(ctx context.Context, strategy github.Strategy, cached []models.Repository) ([]models.Repository, error)
}

// GitHubFetcher fetches through a GitHub client, from the star list ListID
// or, when ListID is empty, from all of the user's stars.
type GitHubFetcher struct {
	Client *github.Client
	ListID string
}

func (f GitHubFetcher) Fetch(ctx context.Context, strategy github.Strategy, cached []models.Repository) ([]models.Repository, error) {
	return strategy.Fetch(ctx, f.Client, f.ListID, cached)
}

type Options struct {
	// ListID selects a star list; empty syncs every starred repository.
	ListID string
	// Refresh discards the cache and does a full fetch.
	Refresh   bool
	CacheFile string
}

type Result struct {
	Fetched  int
	Upserted int
}

// Sync loads repositories (from cache plus new stars, or a full fetch) and
// upserts them all into store.
func Sync(ctx context.Context, fetcher Fetcher, store RepoStore, opts Options) (Result, error) {
	if opts.CacheFile == "" {
		opts.CacheFile = DefaultCacheFile
	}

	repos, err := loadRepos(ctx, fetcher, opts)
	if err != nil {
		return Result{}, err
	}

	fmt.Println("Upserting repos into SurrealDB...")
	var done atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(upsertLimit)
	for _, repo := range repos {
		g.Go(func() error {
			if err := store.UpsertRepo(gCtx, repo); err != nil {
				return err
			}
			n := done.Add(1)
			if n%50 == 0 || int(n) == len(repos) {
				fmt.Printf("  Upserted %d/%d\n", n, len(repos))
			}
			return nil
		})
	}
	res := Result{Fetched: len(repos)}
	err = g.Wait()
	res.Upserted = int(done.Load())
	if err != nil {
		return res, err
	}
	fmt.Println("Sync complete!")
	return res, nil
}

func loadRepos(ctx context.Context, fetcher Fetcher, opts Options) ([]models.Repository, error) {
	full := github.StrategyFor(opts.ListID, true)

	if opts.Refresh {
		fmt.Println("Fetching stars from GitHub (full refresh)...")
		return fetchAndCache(ctx, fetcher, full, opts.CacheFile)
	}

	cached, err := readCache(opts.CacheFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("  WARN: ignoring unreadable %s: %v\n", opts.CacheFile, err)
	}
	if len(cached) == 0 {
		fmt.Println("Fetching stars from GitHub...")
		return fetchAndCache(ctx, fetcher, full, opts.CacheFile)
	}

	fmt.Printf("Cache has %d repos. Checking for new stars...\n", len(cached))
	repos, err := fetcher.Fetch(ctx, github.StrategyFor(opts.ListID, false), cached)
	if err != nil {
		fmt.Printf("  WARN: incremental fetch failed (%v), using cache as-is\n", err)
		return cached, nil
	}
	if len(repos) > len(cached) {
		fmt.Printf("Found %d new repos (%d total)\n", len(repos)-len(cached), len(repos))
	} else {
		fmt.Printf("Cache is up to date (%d repos)\n", len(cached))
	}
	if err := writeCache(opts.CacheFile, repos); err != nil {
		fmt.Printf("  WARN: could not update %s: %v\n", opts.CacheFile, err)
	}
	return repos, nil
}

func fetchAndCache(ctx context.Context, fetcher Fetcher, strategy github.Strategy, path string) ([]models.Repository, error) {
	repos, err := fetcher.Fetch(ctx, strategy, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching stars: %w", err)
	}
	fmt.Printf("Fetched %d repos\n", len(repos))

	if err := writeCache(path, repos); err != nil {
		fmt.Printf("  WARN: could not cache to %s: %v\n", path, err)
	} else {
		fmt.Printf("Cached to %s\n", path)
	}
	return repos, nil
}

func readCache(path string) ([]models.Repository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var repos []models.Repository
	if err := json.Unmarshal(data, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

func writeCache(path string, repos []models.Repository) error {
	data, err := json.MarshalIndent(repos, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
