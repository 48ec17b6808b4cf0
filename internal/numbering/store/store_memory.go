package store

import (
	"context"
	"sync"

	"pims/internal/numbering"
)

// InMemoryCounterStore keeps counters in a map guarded by a mutex.
type InMemoryCounterStore struct {
	mu       sync.Mutex
	counters map[numbering.CounterKey]int
}

func NewInMemory() *InMemoryCounterStore {
	return &InMemoryCounterStore{counters: make(map[numbering.CounterKey]int)}
}

func (s *InMemoryCounterStore) Next(_ context.Context, key numbering.CounterKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}
