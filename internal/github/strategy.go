package github

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v82/github"

	"github.com/kevinmichaelchen/star-lists/internal/models"
)

// Strategy determines how starred repositories are fetched.
//
// The UserList.items GraphQL connection is undocumented and its sort order
// is not guaranteed. Strategies encapsulate the pagination approach so we
// can swap implementations if GitHub changes behavior.
type Strategy interface {
	// Fetch returns repos for listID. cached contains previously fetched
	// repos (may be nil on first run). The returned slice is the complete
	// set of repos to cache.
	Fetch(ctx context.Context, c *Client, listID string, cached []models.Repository) ([]models.Repository, error)
}

// ForwardStrategy fetches a star list via forward pagination (first/after).
// It makes no assumptions about sort order and always returns the complete
// list.
type ForwardStrategy struct{}

func (ForwardStrategy) Fetch(ctx context.Context, c *Client, listID string, _ []models.Repository) ([]models.Repository, error) {
	var all []models.Repository
	var cursor *string

	for {
		page, err := c.FetchPageForward(ctx, listID, cursor)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Repos...)
		fmt.Printf("  Fetched %d/%d repos\n", len(all), page.TotalCount)

		if !page.PageInfo.HasNextPage {
			break
		}
		cursor = &page.PageInfo.EndCursor
	}

	return all, nil
}

// IncrementalStrategy fetches only new repos by paginating backward from the
// end of the list. It assumes the list is ordered oldest-starred first (the
// observed default for UserList.items), so new additions appear at the end.
// It stops at the first page containing a cached repo and falls back to
// ForwardStrategy when the cache is empty.
type IncrementalStrategy struct{}

func (IncrementalStrategy) Fetch(ctx context.Context, c *Client, listID string, cached []models.Repository) ([]models.Repository, error) {
	if len(cached) == 0 {
		fmt.Println("  No cache, falling back to full fetch")
		return ForwardStrategy{}.Fetch(ctx, c, listID, cached)
	}

	known := make(map[string]bool, len(cached))
	for _, r := range cached {
		known[r.FullName] = true
	}

	// Pages arrive newest first; each page is still oldest to newest inside.
	var pages [][]models.Repository
	var cursor *string

	for {
		page, err := c.FetchPageBackward(ctx, listID, cursor)
		if err != nil {
			return nil, err
		}

		var fresh []models.Repository
		hitKnown := false
		for _, repo := range page.Repos {
			if known[repo.FullName] {
				hitKnown = true
			} else {
				fresh = append(fresh, repo)
			}
		}
		if len(fresh) > 0 {
			pages = append(pages, fresh)
		}

		if hitKnown || !page.PageInfo.HasPreviousPage {
			break
		}
		cursor = &page.PageInfo.StartCursor
	}

	if len(pages) == 0 {
		return cached, nil
	}

	var added []models.Repository
	for i := len(pages) - 1; i >= 0; i-- {
		added = append(added, pages[i]...)
	}

	fmt.Printf("  Found %d new repos\n", len(added))
	return append(cached, added...), nil
}

// StarredStrategy fetches every repository the authenticated user has
// starred through the REST API, oldest star first. listID is ignored.
type StarredStrategy struct {
	// User is whose stars to fetch; empty means the token's owner.
	User string
}

func (s StarredStrategy) Fetch(ctx context.Context, c *Client, _ string, _ []models.Repository) ([]models.Repository, error) {
	opts := &gh.ActivityListStarredOptions{
		Sort:        "created",
		Direction:   "asc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	var all []models.Repository
	for {
		starred, resp, err := c.rest.Activity.ListStarred(ctx, s.User, opts)
		if err != nil {
			return nil, fmt.Errorf("listing starred repos: %w", err)
		}
		for _, st := range starred {
			if st.Repository == nil {
				continue
			}
			all = append(all, fromREST(st.Repository))
		}
		fmt.Printf("  Fetched %d starred repos\n", len(all))

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func fromREST(r *gh.Repository) models.Repository {
	out := models.Repository{
		ID:       r.GetNodeID(),
		Owner:    r.GetOwner().GetLogin(),
		Name:     r.GetName(),
		FullName: r.GetFullName(),
		URL:      r.GetHTMLURL(),
		Stars:    r.GetStargazersCount(),
		Topics:   append([]string{}, r.Topics...),
	}
	if out.FullName == "" {
		out.FullName = out.Owner + "/" + out.Name
	}
	if r.Description != nil {
		out.Description = r.Description
	}
	if r.GetHomepage() != "" {
		out.HomepageURL = r.Homepage
	}
	if r.Language != nil {
		out.Language = r.Language
	}
	return out
}

// StrategyFor picks the fetch strategy for a sync: the named star list when
// listID is set, otherwise every starred repository.
func StrategyFor(listID string, full bool) Strategy {
	switch {
	case listID == "":
		return StarredStrategy{}
	case full:
		return ForwardStrategy{}
	default:
		return IncrementalStrategy{}
	}
}
