package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/surrealdb/surrealdb.go"

	"github.com/kevinmichaelchen/star-lists/internal/config"
	"github.com/kevinmichaelchen/star-lists/internal/models"
)

// PersistenceError is a failed store operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func fail(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

type Client struct {
	db *sdk.DB
}

func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	db, err := sdk.FromEndpointURLString(ctx, cfg.SurrealURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, sdk.Auth{
		Namespace: cfg.SurrealNS,
		Database:  cfg.SurrealDB,
		Username:  cfg.SurrealUser,
		Password:  cfg.SurrealPass,
	}); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("signing in: %w", err)
	}

	if err := db.Use(ctx, cfg.SurrealNS, cfg.SurrealDB); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("selecting ns/db: %w", err)
	}

	return &Client{db: db}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.db.Close(ctx)
}

const schema = `
DEFINE TABLE IF NOT EXISTS repo SCHEMAFULL;

DEFINE FIELD IF NOT EXISTS repo_id        ON TABLE repo TYPE string;
DEFINE FIELD IF NOT EXISTS owner          ON TABLE repo TYPE string;
DEFINE FIELD IF NOT EXISTS name           ON TABLE repo TYPE string;
DEFINE FIELD IF NOT EXISTS full_name      ON TABLE repo TYPE string;
DEFINE FIELD IF NOT EXISTS description    ON TABLE repo TYPE option<string>;
DEFINE FIELD IF NOT EXISTS url            ON TABLE repo TYPE string;
DEFINE FIELD IF NOT EXISTS homepage_url   ON TABLE repo TYPE option<string>;
DEFINE FIELD IF NOT EXISTS stars          ON TABLE repo TYPE int;
DEFINE FIELD IF NOT EXISTS language       ON TABLE repo TYPE option<string>;
DEFINE FIELD IF NOT EXISTS topics         ON TABLE repo TYPE array<string>;
DEFINE FIELD IF NOT EXISTS readme_excerpt ON TABLE repo TYPE option<string>;
DEFINE FIELD IF NOT EXISTS fetched_at     ON TABLE repo TYPE datetime;

DEFINE INDEX IF NOT EXISTS idx_full_name ON TABLE repo FIELDS full_name UNIQUE;

DEFINE TABLE IF NOT EXISTS list SCHEMAFULL;

DEFINE FIELD IF NOT EXISTS key         ON TABLE list TYPE string;
DEFINE FIELD IF NOT EXISTS name        ON TABLE list TYPE string;
DEFINE FIELD IF NOT EXISTS color       ON TABLE list TYPE string;
DEFINE FIELD IF NOT EXISTS description ON TABLE list TYPE string DEFAULT "";
DEFINE FIELD IF NOT EXISTS position    ON TABLE list TYPE int;
DEFINE FIELD IF NOT EXISTS created_at  ON TABLE list TYPE datetime DEFAULT time::now();

DEFINE INDEX IF NOT EXISTS idx_list_key  ON TABLE list FIELDS key UNIQUE;
DEFINE INDEX IF NOT EXISTS idx_list_name ON TABLE list FIELDS name UNIQUE;

DEFINE TABLE IF NOT EXISTS membership SCHEMAFULL;

DEFINE FIELD IF NOT EXISTS repo       ON TABLE membership TYPE string;
DEFINE FIELD IF NOT EXISTS list       ON TABLE membership TYPE string;
DEFINE FIELD IF NOT EXISTS created_at ON TABLE membership TYPE datetime DEFAULT time::now();

DEFINE INDEX IF NOT EXISTS idx_membership ON TABLE membership FIELDS repo, list UNIQUE;
`

func (c *Client) InitSchema(ctx context.Context) error {
	if _, err := sdk.Query[any](ctx, c.db, schema, nil); err != nil {
		return fail("initializing schema", err)
	}
	return nil
}

// recordID turns a repository full name into a record id.
func recordID(fullName string) string {
	return strings.ReplaceAll(fullName, "/", "__")
}

// membershipID is deterministic so re-adding a membership is a no-op.
func membershipID(m models.Membership) string {
	return recordID(m.RepoFullName) + "__" + m.CategoryKey
}

// repoData builds the upsert payload with only non-nil optional fields to
// avoid the CBOR NULL vs SurrealDB NONE mismatch.
func repoData(r models.Repository, now time.Time) map[string]any {
	data := map[string]any{
		"repo_id":    r.ID,
		"owner":      r.Owner,
		"name":       r.Name,
		"full_name":  r.FullName,
		"url":        r.URL,
		"stars":      r.Stars,
		"fetched_at": now,
	}
	if r.Description != nil {
		data["description"] = *r.Description
	}
	if r.HomepageURL != nil {
		data["homepage_url"] = *r.HomepageURL
	}
	if r.Language != nil {
		data["language"] = *r.Language
	}
	topics := r.Topics
	if topics == nil {
		topics = []string{}
	}
	data["topics"] = topics
	if r.ReadmeExcerpt != nil {
		data["readme_excerpt"] = *r.ReadmeExcerpt
	}
	return data
}

func (c *Client) UpsertRepo(ctx context.Context, r models.Repository) error {
	_, err := sdk.Query[any](ctx, c.db,
		`UPSERT type::thing("repo", $id) MERGE $data`,
		map[string]any{
			"id":   recordID(r.FullName),
			"data": repoData(r, time.Now().UTC()),
		})
	if err != nil {
		return fail("upserting "+r.FullName, err)
	}
	return nil
}

// GetUncategorizedRepos returns repos that belong to no list.
func (c *Client) GetUncategorizedRepos(ctx context.Context) ([]models.Repository, error) {
	return queryRepos(ctx, c.db, "querying uncategorized repos",
		`SELECT * FROM repo
		WHERE full_name NOTINSIDE (SELECT VALUE repo FROM membership)
		ORDER BY full_name`)
}

func (c *Client) GetAllRepos(ctx context.Context) ([]models.Repository, error) {
	return queryRepos(ctx, c.db, "querying all repos", `SELECT * FROM repo ORDER BY full_name`)
}

func queryRepos(ctx context.Context, db *sdk.DB, op, q string) ([]models.Repository, error) {
	results, err := sdk.Query[[]models.Repository](ctx, db, q, nil)
	if err != nil {
		return nil, fail(op, err)
	}
	if len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// ListCategories returns every list in display order.
func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	results, err := sdk.Query[[]models.Category](ctx, c.db,
		`SELECT key, name, color, description, position FROM list ORDER BY position, name`, nil)
	if err != nil {
		return nil, fail("listing lists", err)
	}
	if len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

func (c *Client) CreateCategory(ctx context.Context, cat models.Category) (models.Category, error) {
	_, err := sdk.Query[any](ctx, c.db,
		`CREATE type::thing("list", $key) CONTENT $data`,
		map[string]any{
			"key": cat.Key,
			"data": map[string]any{
				"key":         cat.Key,
				"name":        cat.Name,
				"color":       cat.Color,
				"description": cat.Description,
				"position":    cat.Position,
			},
		})
	if err != nil {
		return models.Category{}, fail("creating list "+cat.Name, err)
	}
	return cat, nil
}

// AddMembership files a repo into a list. Adding an existing pair is a
// no-op.
func (c *Client) AddMembership(ctx context.Context, m models.Membership) error {
	_, err := sdk.Query[any](ctx, c.db,
		`UPSERT type::thing("membership", $id) CONTENT { repo: $repo, list: $list }`,
		map[string]any{
			"id":   membershipID(m),
			"repo": m.RepoFullName,
			"list": m.CategoryKey,
		})
	if err != nil {
		return fail(fmt.Sprintf("adding %s to list %s", m.RepoFullName, m.CategoryKey), err)
	}
	return nil
}

// Memberships returns every stored membership.
func (c *Client) Memberships(ctx context.Context) ([]models.Membership, error) {
	results, err := sdk.Query[[]models.Membership](ctx, c.db,
		`SELECT repo, list FROM membership ORDER BY list, repo`, nil)
	if err != nil {
		return nil, fail("listing memberships", err)
	}
	if len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

type Stats struct {
	Total         int
	Categorized   int
	Uncategorized int
	Lists         int
	Memberships   int
}

func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	counts := []struct {
		dst *int
		q   string
	}{
		{&s.Total, `SELECT count() AS n FROM repo GROUP ALL`},
		{&s.Lists, `SELECT count() AS n FROM list GROUP ALL`},
		{&s.Memberships, `SELECT count() AS n FROM membership GROUP ALL`},
		{&s.Categorized, `SELECT count() AS n FROM (SELECT repo FROM membership GROUP BY repo) GROUP ALL`},
	}
	for _, cq := range counts {
		n, err := c.count(ctx, cq.q)
		if err != nil {
			return nil, fail("getting stats", err)
		}
		*cq.dst = n
	}
	s.Uncategorized = max(s.Total-s.Categorized, 0)
	return &s, nil
}

func (c *Client) count(ctx context.Context, q string) (int, error) {
	results, err := sdk.Query[[]map[string]any](ctx, c.db, q, nil)
	if err != nil {
		return 0, err
	}
	if len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return toInt((*results)[0].Result[0]["n"]), nil
}

type CategoryCount struct {
	Category string
	Color    string
	Count    int
}

// GetCategoryBreakdown returns the member count of every list, in list
// order. Empty lists are included.
func (c *Client) GetCategoryBreakdown(ctx context.Context) ([]CategoryCount, error) {
	lists, err := c.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	members, err := c.Memberships(ctx)
	if err != nil {
		return nil, err
	}
	return breakdown(lists, members), nil
}

func breakdown(lists []models.Category, members []models.Membership) []CategoryCount {
	counts := make(map[string]int, len(lists))
	for _, m := range members {
		counts[m.CategoryKey]++
	}
	out := make([]CategoryCount, 0, len(lists))
	for _, l := range lists {
		out = append(out, CategoryCount{Category: l.Name, Color: l.Color, Count: counts[l.Key]})
	}
	return out
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	default:
		return 0
	}
}
