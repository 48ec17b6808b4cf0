package activation

import (
	"context"
	"slices"
	"sync"

	"pims/internal/file/models"
	"pims/pkg/domain"
	"pims/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[domain.ActivationRequestID]*models.ActivationRequest
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{requests: make(map[domain.ActivationRequestID]*models.ActivationRequest)}
}

// Create rejects a second pending request for the same file.
func (s *InMemoryStore) Create(_ context.Context, r *models.ActivationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Status == models.RequestPending {
		for _, existing := range s.requests {
			if existing.FileID == r.FileID && existing.Status == models.RequestPending {
				return sentinel.ErrConflict
			}
		}
	}
	s.requests[r.ID] = r.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.ActivationRequestID) (*models.ActivationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemoryStore) FindByIDForUpdate(ctx context.Context, id domain.ActivationRequestID) (*models.ActivationRequest, error) {
	return s.FindByID(ctx, id)
}

func (s *InMemoryStore) FindPendingByFile(_ context.Context, fileID domain.FileID) (*models.ActivationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.requests {
		if r.FileID == fileID && r.Status == models.RequestPending {
			return r.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(_ context.Context, r *models.ActivationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.requests[r.ID] = r.Clone()
	return nil
}

// ListByStatus returns requests oldest first.
func (s *InMemoryStore) ListByStatus(_ context.Context, status models.RequestStatus) ([]*models.ActivationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ActivationRequest
	for _, r := range s.requests {
		if r.Status == status {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.ActivationRequest) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}
