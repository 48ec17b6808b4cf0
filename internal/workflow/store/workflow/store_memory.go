package workflow

import (
	"context"
	"slices"
	"sync"

	"pims/internal/workflow/models"
	"pims/pkg/domain"
	"pims/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	workflows map[domain.WorkflowID]*models.DocumentWorkflow
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{workflows: make(map[domain.WorkflowID]*models.DocumentWorkflow)}
}

func (s *InMemoryStore) Create(_ context.Context, w *models.DocumentWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[w.ID]; ok {
		return sentinel.ErrConflict
	}
	s.workflows[w.ID] = w.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.WorkflowID) (*models.DocumentWorkflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return w.Clone(), nil
}

func (s *InMemoryStore) FindByIDForUpdate(ctx context.Context, id domain.WorkflowID) (*models.DocumentWorkflow, error) {
	return s.FindByID(ctx, id)
}

func (s *InMemoryStore) Update(_ context.Context, w *models.DocumentWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[w.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.workflows[w.ID] = w.Clone()
	return nil
}

// ListInbox returns open workflows addressed to actor, directly or by role, newest first.
func (s *InMemoryStore) ListInbox(_ context.Context, actor domain.Actor) ([]*models.DocumentWorkflow, error) {
	return s.filter(func(w *models.DocumentWorkflow) bool {
		return w.IsOpen() && w.IsAddressedTo(actor)
	}), nil
}

// ListBySender returns every workflow sender submitted, newest first.
func (s *InMemoryStore) ListBySender(_ context.Context, sender domain.UserID) ([]*models.DocumentWorkflow, error) {
	return s.filter(func(w *models.DocumentWorkflow) bool {
		return w.SenderID == sender
	}), nil
}

func (s *InMemoryStore) filter(keep func(*models.DocumentWorkflow) bool) []*models.DocumentWorkflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DocumentWorkflow
	for _, w := range s.workflows {
		if keep(w) {
			out = append(out, w.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.DocumentWorkflow) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}
