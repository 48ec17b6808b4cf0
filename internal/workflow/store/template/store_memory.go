package template

import (
	"context"
	"slices"
	"strings"
	"sync"

	"pims/internal/workflow/models"
	"pims/pkg/domain"
	"pims/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	templates map[domain.TemplateID]*models.Template
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{templates: make(map[domain.TemplateID]*models.Template)}
}

// Create rejects a duplicate name, compared case-insensitively.
func (s *InMemoryStore) Create(_ context.Context, t *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.templates {
		if existing.ID == t.ID || strings.EqualFold(existing.Name, t.Name) {
			return sentinel.ErrConflict
		}
	}
	s.templates[t.ID] = t.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.TemplateID) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return t.Clone(), nil
}

// List returns templates ordered by name.
func (s *InMemoryStore) List(_ context.Context) ([]*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t.Clone())
	}
	slices.SortFunc(out, func(a, b *models.Template) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}
