package file

import (
	"context"
	"slices"
	"strings"
	"sync"

	"pims/internal/file/models"
	"pims/pkg/domain"
	"pims/pkg/platform/sentinel"
)

// InMemoryStore keeps files in maps. Returned files are copies; changes
// persist only through Update.
type InMemoryStore struct {
	mu       sync.RWMutex
	files    map[domain.FileID]*models.File
	numbers  map[string]domain.FileID
	personal map[domain.UserID]domain.FileID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		files:    make(map[domain.FileID]*models.File),
		numbers:  make(map[string]domain.FileID),
		personal: make(map[domain.UserID]domain.FileID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, f *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[f.ID]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.numbers[f.FileNumber]; ok {
		return sentinel.ErrConflict
	}
	if f.Category == domain.CategoryPersonal && f.OwnerID != nil {
		if _, ok := s.personal[*f.OwnerID]; ok {
			return sentinel.ErrConflict
		}
		s.personal[*f.OwnerID] = f.ID
	}
	s.files[f.ID] = f.Clone()
	s.numbers[f.FileNumber] = f.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.FileID) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return f.Clone(), nil
}

// FindByIDForUpdate is FindByID; the service's lock runner serializes writers.
func (s *InMemoryStore) FindByIDForUpdate(ctx context.Context, id domain.FileID) (*models.File, error) {
	return s.FindByID(ctx, id)
}

func (s *InMemoryStore) FindByNumber(_ context.Context, number string) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.numbers[number]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.files[id].Clone(), nil
}

func (s *InMemoryStore) FindPersonalByOwner(_ context.Context, owner domain.UserID) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.personal[owner]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.files[id].Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, f *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.files[f.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.FileNumber != f.FileNumber {
		return sentinel.ErrInvalidState
	}
	s.files[f.ID] = f.Clone()
	return nil
}

func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter) ([]*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.File
	for _, f := range s.files {
		if filter.Matches(f) {
			out = append(out, f.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.File) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.FileNumber, b.FileNumber)
	})
	return out, nil
}
