package access

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
	requests map[domain.AccessRequestID]*models.AccessRequest
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{requests: make(map[domain.AccessRequestID]*models.AccessRequest)}
}

func (s *InMemoryStore) Create(_ context.Context, r *models.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; ok {
		return sentinel.ErrConflict
	}
	s.requests[r.ID] = r.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.AccessRequestID) (*models.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemoryStore) FindByIDForUpdate(ctx context.Context, id domain.AccessRequestID) (*models.AccessRequest, error) {
	return s.FindByID(ctx, id)
}

func (s *InMemoryStore) Update(_ context.Context, r *models.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.requests[r.ID] = r.Clone()
	return nil
}

// ListByFileAndRequester returns the requester's requests for a file, newest first.
func (s *InMemoryStore) ListByFileAndRequester(_ context.Context, fileID domain.FileID, requester domain.UserID) ([]*models.AccessRequest, error) {
	return s.filter(func(r *models.AccessRequest) bool {
		return r.FileID == fileID && r.RequesterID == requester
	}), nil
}

func (s *InMemoryStore) ListByStatus(_ context.Context, status models.RequestStatus) ([]*models.AccessRequest, error) {
	return s.filter(func(r *models.AccessRequest) bool { return r.Status == status }), nil
}

func (s *InMemoryStore) filter(keep func(*models.AccessRequest) bool) []*models.AccessRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AccessRequest
	for _, r := range s.requests {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.AccessRequest) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}
