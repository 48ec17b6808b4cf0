package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type fakeStore struct {
	mu        sync.Mutex
	pending   []Message
	published map[uuid.UUID]time.Time
}

func (f *fakeStore) ClaimUnpublished(ctx context.Context, limit int, fn func(ctx context.Context, msgs []Message) error) error {
	f.mu.Lock()
	var batch []Message
	for _, m := range f.pending {
		if _, done := f.published[m.ID]; done {
			continue
		}
		batch = append(batch, m)
		if len(batch) == limit {
			break
		}
	}
	f.mu.Unlock()
	return fn(ctx, batch)
}

func (f *fakeStore) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.published[id] = at
	}
	return nil
}

type fakePublisher struct {
	err  error
	sent []Message
}

func (p *fakePublisher) Publish(_ context.Context, msgs []Message) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msgs...)
	return nil
}

type RelaySuite struct {
	suite.Suite
	store     *fakeStore
	publisher *fakePublisher
	relay     *Relay
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupTest() {
	s.store = &fakeStore{published: map[uuid.UUID]time.Time{}}
	for i := 0; i < 3; i++ {
		s.store.pending = append(s.store.pending, Message{ID: uuid.New(), EventType: "FILE_SENT"})
	}
	s.publisher = &fakePublisher{}
	s.relay = NewRelay(s.store, s.publisher, WithBatchSize(2))
}

func (s *RelaySuite) TestProcessBatch() {
	ctx := context.Background()

	s.Run("publishes in batches and marks rows", func() {
		n, err := s.relay.ProcessBatch(ctx)
		s.Require().NoError(err)
		s.Equal(2, n)

		n, err = s.relay.ProcessBatch(ctx)
		s.Require().NoError(err)
		s.Equal(1, n)

		n, err = s.relay.ProcessBatch(ctx)
		s.Require().NoError(err)
		s.Zero(n)
		s.Len(s.publisher.sent, 3)
		s.Len(s.store.published, 3)
	})
}

func (s *RelaySuite) TestPublishFailureLeavesRowsPending() {
	s.publisher.err = errors.New("broker down")

	n, err := s.relay.ProcessBatch(context.Background())
	s.Error(err)
	s.Zero(n)
	s.Empty(s.store.published)
}
