package custody_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"pims/internal/custody"
	filemodels "pims/internal/file/models"
	filestore "pims/internal/file/store/file"
	"pims/internal/notification"
	"pims/pkg/domain"
	audit "pims/pkg/platform/audit"
	auditmemory "pims/pkg/platform/audit/store/memory"
	"pims/pkg/requestcontext"
)

type TrackerSuite struct {
	suite.Suite
	created  time.Time
	log      *auditmemory.InMemoryStore
	recorder *audit.Recorder
	files    *filestore.InMemoryStore
	sink     *notification.MemorySink
	tracker  *custody.Tracker
	serial   int
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func (s *TrackerSuite) SetupTest() {
	s.created = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	s.log = auditmemory.NewInMemoryStore()
	s.recorder = audit.NewRecorder(s.log)
	s.files = filestore.NewInMemory()
	s.sink = notification.NewMemorySink()
	s.serial = 0

	tracker, err := custody.New(s.log, s.files,
		custody.WithRecorder(s.recorder),
		custody.WithNotifier(notification.NewNotifier(s.sink)),
	)
	s.Require().NoError(err)
	s.tracker = tracker
}

func (s *TrackerSuite) at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *TrackerSuite) newFile(status filemodels.Status, custodian *domain.UserID) *filemodels.File {
	s.serial++
	f := &filemodels.File{
		ID:          domain.FileID(uuid.New()),
		FileNumber:  "FMCAB/FIN/2024/00" + string(rune('0'+s.serial)),
		Title:       "LEDGER",
		Category:    domain.CategoryPolicy,
		SubType:     "FIN",
		Status:      status,
		CustodianID: custodian,
		CreatedBy:   domain.UserID(uuid.New()),
		CreatedAt:   s.created,
		UpdatedAt:   s.created,
	}
	s.Require().NoError(s.files.Create(context.Background(), f))
	return f
}

func (s *TrackerSuite) move(f *filemodels.File, action audit.Action, at time.Time, to domain.UserID) {
	err := s.recorder.Record(s.at(at), audit.EntityFile, f.ID.String(), action, domain.UserID(uuid.New()), map[string]string{
		"to": to.String(),
	})
	s.Require().NoError(err)
}

func holder() *domain.UserID {
	id := domain.UserID(uuid.New())
	return &id
}

func (s *TrackerSuite) TestNew() {
	_, err := custody.New(nil, s.files)
	s.Error(err)
	_, err = custody.New(s.log, nil)
	s.Error(err)
	s.Equal(custody.DefaultThresholdDays, s.tracker.Threshold())
}

func (s *TrackerSuite) TestDuration() {
	s.Run("counts from creation when the file never moved", func() {
		f := s.newFile(filemodels.StatusActive, holder())
		days, err := s.tracker.Duration(s.at(s.created.Add(3*24*time.Hour+time.Hour)), f)
		s.Require().NoError(err)
		s.Equal(3, days)
	})

	s.Run("counts from the latest dispatch or recall", func() {
		f := s.newFile(filemodels.StatusActive, holder())
		s.move(f, audit.ActionFileSent, s.created.Add(24*time.Hour), *f.CustodianID)
		s.move(f, audit.ActionFileRecalled, s.created.Add(4*24*time.Hour), *f.CustodianID)

		days, err := s.tracker.Duration(s.at(s.created.Add(5*24*time.Hour)), f)
		s.Require().NoError(err)
		s.Equal(1, days)
	})

	s.Run("other actions do not reset the clock", func() {
		f := s.newFile(filemodels.StatusActive, holder())
		s.move(f, audit.ActionAccessApproved, s.created.Add(2*24*time.Hour), *f.CustodianID)

		days, err := s.tracker.Duration(s.at(s.created.Add(3*24*time.Hour)), f)
		s.Require().NoError(err)
		s.Equal(3, days)
	})

	s.Run("no custodian reports zero", func() {
		f := s.newFile(filemodels.StatusArchived, nil)
		days, err := s.tracker.Duration(s.at(s.created.Add(30*24*time.Hour)), f)
		s.Require().NoError(err)
		s.Equal(0, days)
	})

	s.Run("clock before the event reports zero", func() {
		f := s.newFile(filemodels.StatusActive, holder())
		days, err := s.tracker.Duration(s.at(s.created.Add(-time.Hour)), f)
		s.Require().NoError(err)
		s.Equal(0, days)
	})
}

func (s *TrackerSuite) TestIsOverdue() {
	f := s.newFile(filemodels.StatusActive, holder())

	s.Run("exactly at the threshold is not overdue", func() {
		overdue, err := s.tracker.IsOverdue(s.at(s.created.Add(2*24*time.Hour)), f, 0)
		s.Require().NoError(err)
		s.False(overdue)
	})

	s.Run("past the threshold is overdue", func() {
		overdue, err := s.tracker.IsOverdue(s.at(s.created.Add(3*24*time.Hour)), f, 0)
		s.Require().NoError(err)
		s.True(overdue)
	})

	s.Run("explicit threshold wins", func() {
		overdue, err := s.tracker.IsOverdue(s.at(s.created.Add(3*24*time.Hour)), f, 5)
		s.Require().NoError(err)
		s.False(overdue)
	})

	s.Run("stays overdue as time passes and repeated calls agree", func() {
		var last bool
		for h := 0; h < 24*10; h += 7 {
			ctx := s.at(s.created.Add(time.Duration(h) * time.Hour))
			first, err := s.tracker.IsOverdue(ctx, f, 0)
			s.Require().NoError(err)
			again, err := s.tracker.IsOverdue(ctx, f, 0)
			s.Require().NoError(err)
			s.Equal(first, again)
			if last {
				s.True(first, "overdue flag cleared at hour %d", h)
			}
			last = first
		}
		s.True(last)
	})

	s.Run("a dispatch resets the flag", func() {
		s.move(f, audit.ActionFileSent, s.created.Add(10*24*time.Hour), *f.CustodianID)
		overdue, err := s.tracker.IsOverdue(s.at(s.created.Add(11*24*time.Hour)), f, 0)
		s.Require().NoError(err)
		s.False(overdue)
	})
}

func (s *TrackerSuite) TestMovements() {
	f := s.newFile(filemodels.StatusActive, holder())
	from, to := domain.UserID(uuid.New()), domain.UserID(uuid.New())
	ctx := s.at(s.created.Add(time.Hour))
	s.Require().NoError(s.recorder.Record(ctx, audit.EntityFile, f.ID.String(), audit.ActionFileSent, from, map[string]string{
		"from": from.String(),
		"to":   to.String(),
		"note": "for minutes",
	}))
	s.Require().NoError(s.recorder.Record(ctx, audit.EntityFile, f.ID.String(), audit.ActionAccessRequested, to, nil))
	s.Require().NoError(s.recorder.Record(s.at(s.created.Add(2*time.Hour)), audit.EntityFile, f.ID.String(), audit.ActionFileRecalled, from, map[string]string{
		"previous_custodian": to.String(),
		"to":                 from.String(),
	}))

	moves, err := s.tracker.Movements(context.Background(), f.ID)
	s.Require().NoError(err)
	s.Require().Len(moves, 2)

	s.Equal(audit.ActionFileSent, moves[0].Action)
	s.Equal(from, *moves[0].From)
	s.Equal(to, *moves[0].To)
	s.Equal("for minutes", moves[0].Note)

	s.Equal(audit.ActionFileRecalled, moves[1].Action)
	s.Equal(to, *moves[1].From)
	s.Equal(from, *moves[1].To)
}

func (s *TrackerSuite) TestOverdueReportAndEscalation() {
	stale := s.newFile(filemodels.StatusActive, holder())
	staler := s.newFile(filemodels.StatusActive, holder())
	fresh := s.newFile(filemodels.StatusActive, holder())
	s.newFile(filemodels.StatusClosed, holder())

	s.move(stale, audit.ActionFileSent, s.created.Add(2*24*time.Hour), *stale.CustodianID)
	s.move(fresh, audit.ActionFileSent, s.created.Add(8*24*time.Hour), *fresh.CustodianID)
	now := s.at(s.created.Add(9 * 24 * time.Hour))

	report, err := s.tracker.OverdueReport(now, 0)
	s.Require().NoError(err)
	s.Require().Len(report, 2)
	s.Equal(staler.ID, report[0].FileID)
	s.Equal(9, report[0].Days)
	s.Equal(stale.ID, report[1].FileID)
	s.Equal(7, report[1].Days)

	count, err := s.tracker.EscalateOverdue(now, domain.UserID{}, 0)
	s.Require().NoError(err)
	s.Equal(2, count)
	s.Len(s.sink.ByKind("custody_overdue"), 2)
	s.Len(s.sink.ByKind("custody_overdue_summary"), 1)

	warning, err := s.log.LatestByActions(context.Background(), audit.EntityFile, staler.ID.String(), audit.ActionCustodyOverdueWarning)
	s.Require().NoError(err)
	s.Equal("9", warning.Details["days"])

	days, err := s.tracker.Duration(now, staler)
	s.Require().NoError(err)
	s.Equal(9, days)
}

func (s *TrackerSuite) record(entityID string, action audit.Action, actor domain.UserID, at time.Time) {
	s.Require().NoError(s.recorder.Record(s.at(at), audit.EntityFile, entityID, action, actor, nil))
}

func (s *TrackerSuite) TestDailyMovements() {
	day := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	clerk := domain.UserID(uuid.New())
	fileA, fileB := uuid.NewString(), uuid.NewString()

	s.record(fileA, audit.ActionFileCreated, clerk, day.Add(-time.Minute))
	s.record(fileB, audit.ActionFileCreated, clerk, day.Add(9*time.Hour))
	s.record(fileA, audit.ActionFileActivated, clerk, day.Add(10*time.Hour))
	s.record(fileA, audit.ActionFileActivated, clerk, day.Add(11*time.Hour))
	s.record(fileA, audit.ActionFileSent, clerk, day.Add(12*time.Hour))
	s.record(fileA, audit.ActionFileSent, clerk, day.Add(13*time.Hour))
	s.record(fileB, audit.ActionFileRecalled, clerk, day.Add(23*time.Hour))
	s.record(fileB, audit.ActionFileSent, clerk, day.Add(24*time.Hour))
	s.record(fileB, audit.ActionFileClosed, clerk, day.Add(14*time.Hour))

	report, err := s.tracker.DailyMovements(context.Background(), day.Add(15*time.Hour))
	s.Require().NoError(err)
	s.Equal("2024-05-06", report.Date)
	s.Equal(1, report.Created)
	s.Equal([]string{fileB}, report.CreatedFiles)
	s.Equal(1, report.Activated)
	s.Equal([]string{fileA}, report.ActivatedFiles)
	s.Equal(2, report.Sent)
	s.Equal(1, report.Recalled)

	s.Run("quiet day", func() {
		report, err := s.tracker.DailyMovements(context.Background(), day.AddDate(0, 0, 10))
		s.Require().NoError(err)
		s.Zero(report.Created + report.Activated + report.Sent + report.Recalled)
		s.NotNil(report.CreatedFiles)
	})
}

func (s *TrackerSuite) TestAuditLog() {
	clerk := domain.UserID(uuid.New())
	officer := domain.UserID(uuid.New())
	fileID := uuid.NewString()
	s.record(fileID, audit.ActionFileCreated, clerk, s.created)
	s.record(fileID, audit.ActionFileSent, clerk, s.created.Add(time.Hour))
	s.record(fileID, audit.ActionFileSent, officer, s.created.Add(2*time.Hour))

	entries, err := s.tracker.AuditLog(context.Background(), audit.Filter{ActorID: &clerk})
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(audit.ActionFileSent, entries[0].Action)

	entries, err = s.tracker.AuditLog(context.Background(), audit.Filter{
		Actions: []audit.Action{audit.ActionFileSent},
		From:    s.created.Add(90 * time.Minute),
	})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(officer, entries[0].ActorID)
}
