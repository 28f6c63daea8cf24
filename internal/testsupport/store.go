// Package testsupport holds in-memory collaborators shared by package tests.
package testsupport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kevinmichaelchen/star-lists/internal/models"
)

// MemoryStore is an in-memory list/membership store. Setting FailCreate or
// FailMembership makes the matching writes fail.
type MemoryStore struct {
	mu          sync.Mutex
	categories  []models.Category
	memberships []models.Membership

	FailCreate     map[string]bool // list names
	FailMembership map[string]bool // repo full names
}

// NewMemoryStore returns a store seeded with categories.
func NewMemoryStore(categories ...models.Category) *MemoryStore {
	return &MemoryStore{categories: append([]models.Category(nil), categories...)}
}

func (s *MemoryStore) ListCategories(_ context.Context) ([]models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Category(nil), s.categories...), nil
}

func (s *MemoryStore) CreateCategory(_ context.Context, c models.Category) (models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate[c.Name] {
		return models.Category{}, fmt.Errorf("creating list %s: injected failure", c.Name)
	}
	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, c.Name) {
			return models.Category{}, fmt.Errorf("creating list %s: name already exists", c.Name)
		}
	}
	s.categories = append(s.categories, c)
	return c, nil
}

func (s *MemoryStore) AddMembership(_ context.Context, m models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailMembership[m.RepoFullName] {
		return fmt.Errorf("adding %s: injected failure", m.RepoFullName)
	}
	for _, existing := range s.memberships {
		if existing == m {
			return nil
		}
	}
	s.memberships = append(s.memberships, m)
	return nil
}

// Memberships returns a copy of every stored membership.
func (s *MemoryStore) Memberships() []models.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Membership(nil), s.memberships...)
}

// ListsOf returns the names of the lists repo is filed in.
func (s *MemoryStore) ListsOf(repo string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.memberships {
		if m.RepoFullName != repo {
			continue
		}
		for _, c := range s.categories {
			if c.Key == m.CategoryKey {
				out = append(out, c.Name)
			}
		}
	}
	return out
}

// Category returns the stored list called name.
func (s *MemoryStore) Category(name string) (models.Category, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.Name == name {
			return c, true
		}
	}
	return models.Category{}, false
}
