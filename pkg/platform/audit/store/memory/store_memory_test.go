package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"pims/pkg/domain"
	audit "pims/pkg/platform/audit"
	"pims/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
}

func (s *InMemoryStoreSuite) append(entityID string, action audit.Action, at time.Time) {
	s.Require().NoError(s.store.Append(context.Background(), audit.Entry{
		EntityType: audit.EntityFile,
		EntityID:   entityID,
		Action:     action,
		Timestamp:  at,
	}))
}

func (s *InMemoryStoreSuite) TestLatestByActions() {
	ctx := context.Background()
	fileID := uuid.NewString()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	s.Run("no matching entry returns not found", func() {
		s.append(fileID, audit.ActionFileCreated, base)
		_, err := s.store.LatestByActions(ctx, audit.EntityFile, fileID, audit.CustodyActions...)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("newest custody entry wins", func() {
		s.append(fileID, audit.ActionFileSent, base.Add(time.Hour))
		s.append(fileID, audit.ActionFileRecalled, base.Add(2*time.Hour))
		s.append(fileID, audit.ActionFileClosed, base.Add(3*time.Hour))

		entry, err := s.store.LatestByActions(ctx, audit.EntityFile, fileID, audit.CustodyActions...)
		s.Require().NoError(err)
		s.Equal(audit.ActionFileRecalled, entry.Action)
		s.Equal(base.Add(2*time.Hour), entry.Timestamp)
	})

	s.Run("entries of other files are ignored", func() {
		_, err := s.store.LatestByActions(ctx, audit.EntityFile, uuid.NewString(), audit.CustodyActions...)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestListByEntityIsChronological() {
	fileID := uuid.NewString()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	s.append(fileID, audit.ActionFileSent, base.Add(time.Hour))
	s.append(fileID, audit.ActionFileCreated, base)

	list, err := s.store.ListByEntity(context.Background(), audit.EntityFile, fileID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(audit.ActionFileCreated, list[0].Action)
	s.Equal(audit.ActionFileSent, list[1].Action)
}

func (s *InMemoryStoreSuite) TestAppendCopiesDetails() {
	fileID := uuid.NewString()
	details := map[string]string{"to": "a"}
	s.Require().NoError(s.store.Append(context.Background(), audit.Entry{
		EntityType: audit.EntityFile, EntityID: fileID, Action: audit.ActionFileSent, Details: details,
	}))
	details["to"] = "b"

	list, err := s.store.ListByEntity(context.Background(), audit.EntityFile, fileID)
	s.Require().NoError(err)
	s.Equal("a", list[0].Details["to"])
}

func (s *InMemoryStoreSuite) TestQuery() {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	clerk := domain.UserID(uuid.New())
	officer := domain.UserID(uuid.New())
	fileA, fileB := uuid.NewString(), uuid.NewString()
	for _, e := range []audit.Entry{
		{EntityID: fileA, Action: audit.ActionFileCreated, ActorID: clerk, Timestamp: base},
		{EntityID: fileA, Action: audit.ActionFileSent, ActorID: clerk, Timestamp: base.Add(time.Hour)},
		{EntityID: fileB, Action: audit.ActionFileSent, ActorID: officer, Timestamp: base.Add(26 * time.Hour)},
		{EntityID: fileB, Action: audit.ActionFileRecalled, ActorID: clerk, Timestamp: base.Add(27 * time.Hour)},
	} {
		e.EntityType = audit.EntityFile
		s.Require().NoError(s.store.Append(ctx, e))
	}

	s.Run("no filter returns everything newest first", func() {
		got, err := s.store.Query(ctx, audit.Filter{})
		s.Require().NoError(err)
		s.Require().Len(got, 4)
		s.Equal(audit.ActionFileRecalled, got[0].Action)
		s.Equal(audit.ActionFileCreated, got[3].Action)
	})

	s.Run("by actor and action", func() {
		got, err := s.store.Query(ctx, audit.Filter{ActorID: &clerk, Actions: []audit.Action{audit.ActionFileSent}})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(fileA, got[0].EntityID)
	})

	s.Run("time range is half open", func() {
		got, err := s.store.Query(ctx, audit.Filter{From: base.Add(time.Hour), To: base.Add(27 * time.Hour)})
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal(fileB, got[0].EntityID)
		s.Equal(audit.ActionFileSent, got[1].Action)
	})

	s.Run("limit", func() {
		got, err := s.store.Query(ctx, audit.Filter{EntityID: fileB, Limit: 1})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(audit.ActionFileRecalled, got[0].Action)
	})
}
