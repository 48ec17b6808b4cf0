package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	audit "pims/pkg/platform/audit"
	"pims/pkg/platform/sentinel"
)

type entityKey struct {
	entityType audit.EntityType
	entityID   string
}

// InMemoryStore keeps entries per entity in append order.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[entityKey][]audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[entityKey][]audit.Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Details = maps.Clone(entry.Details)
	k := entityKey{entry.EntityType, entry.EntityID}
	s.entries[k] = append(s.entries[k], entry)
	return nil
}

func (s *InMemoryStore) ListByEntity(_ context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.entries[entityKey{entityType, entityID}]
	out := make([]audit.Entry, len(list))
	copy(out, list)
	// stable sort keeps append order for equal timestamps
	slices.SortStableFunc(out, func(a, b audit.Entry) int { return a.Timestamp.Compare(b.Timestamp) })
	return out, nil
}

func (s *InMemoryStore) LatestByActions(ctx context.Context, entityType audit.EntityType, entityID string, actions ...audit.Action) (*audit.Entry, error) {
	list, _ := s.ListByEntity(ctx, entityType, entityID)
	for i := len(list) - 1; i >= 0; i-- {
		if slices.Contains(actions, list[i].Action) {
			e := list[i]
			return &e, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Query(_ context.Context, filter audit.Filter) ([]audit.Entry, error) {
	var out []audit.Entry
	for _, e := range s.All() {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	slices.Reverse(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// All returns every entry, used by tests.
func (s *InMemoryStore) All() []audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, list := range s.entries {
		out = append(out, list...)
	}
	slices.SortStableFunc(out, func(a, b audit.Entry) int { return a.Timestamp.Compare(b.Timestamp) })
	return out
}
