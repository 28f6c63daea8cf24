package surrealdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kevinmichaelchen/star-lists/internal/models"
)

const backupVersion = 1

// Backup is the portable JSON form of the user's lists and memberships.
// Repositories are not included; they are re-synced from GitHub.
type Backup struct {
	Version     int                 `json:"version"`
	ExportedAt  time.Time           `json:"exported_at"`
	Lists       []models.Category   `json:"lists"`
	Memberships []models.Membership `json:"memberships"`
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	ListsCreated int
	ListsMerged  int
	Memberships  int
}

// Export writes every list and membership to w as indented JSON.
func (c *Client) Export(ctx context.Context, w io.Writer) (*Backup, error) {
	lists, err := c.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	members, err := c.Memberships(ctx)
	if err != nil {
		return nil, err
	}
	b := &Backup{
		Version:     backupVersion,
		ExportedAt:  time.Now().UTC(),
		Lists:       lists,
		Memberships: members,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return nil, fmt.Errorf("writing backup: %w", err)
	}
	return b, nil
}

// Import reads a backup from r and merges it into the store. Lists whose
// name already exists are reused; their memberships are remapped onto the
// existing list.
func (c *Client) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	var b Backup
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return ImportResult{}, fmt.Errorf("reading backup: %w", err)
	}
	existing, err := c.ListCategories(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	plan, err := planImport(existing, b)
	if err != nil {
		return ImportResult{}, err
	}

	for _, cat := range plan.create {
		if _, err := c.CreateCategory(ctx, cat); err != nil {
			return plan.result, err
		}
		plan.result.ListsCreated++
	}
	for _, m := range plan.memberships {
		if err := c.AddMembership(ctx, m); err != nil {
			return plan.result, err
		}
		plan.result.Memberships++
	}
	return plan.result, nil
}

type importPlan struct {
	create      []models.Category
	memberships []models.Membership
	result      ImportResult
}

// planImport decides which lists to create and rewrites membership keys
// onto the lists that will exist afterwards. It does no I/O.
func planImport(existing []models.Category, b Backup) (importPlan, error) {
	var plan importPlan
	if b.Version != backupVersion {
		return plan, fmt.Errorf("unsupported backup version %d", b.Version)
	}

	byName := make(map[string]models.Category, len(existing))
	nextPos := 0
	for _, c := range existing {
		byName[strings.ToLower(c.Name)] = c
		nextPos = max(nextPos, c.Position+1)
	}

	keys := make(map[string]string, len(b.Lists))
	for _, l := range b.Lists {
		if l.Key == "" || strings.TrimSpace(l.Name) == "" {
			return plan, fmt.Errorf("backup list %q is missing a key or name", l.Name)
		}
		if _, dup := keys[l.Key]; dup {
			return plan, fmt.Errorf("backup has duplicate list key %s", l.Key)
		}
		if c, ok := byName[strings.ToLower(l.Name)]; ok {
			keys[l.Key] = c.Key
			plan.result.ListsMerged++
			continue
		}
		l.Position = nextPos
		nextPos++
		byName[strings.ToLower(l.Name)] = l
		keys[l.Key] = l.Key
		plan.create = append(plan.create, l)
	}

	for _, m := range b.Memberships {
		key, ok := keys[m.CategoryKey]
		if !ok {
			return plan, fmt.Errorf("membership %s references unknown list %s", m.RepoFullName, m.CategoryKey)
		}
		plan.memberships = append(plan.memberships, models.Membership{RepoFullName: m.RepoFullName, CategoryKey: key})
	}
	return plan, nil
}
