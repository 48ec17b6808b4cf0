package notification_test

//go:generate mockgen -source=notification.go -destination=mocks/mocks.go -package=mocks Sink

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"pims/internal/notification"
	"pims/internal/notification/mocks"
	"pims/pkg/domain"
	"pims/pkg/requestcontext"
)

type NotifierSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	sink     *mocks.MockSink
	logs     *bytes.Buffer
	notifier *notification.Notifier
}

func TestNotifierSuite(t *testing.T) {
	suite.Run(t, new(NotifierSuite))
}

func (s *NotifierSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.sink = mocks.NewMockSink(s.ctrl)
	s.logs = &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(s.logs, nil))
	s.notifier = notification.NewNotifier(s.sink, notification.WithLogger(logger))
}

func (s *NotifierSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *NotifierSuite) TestSend() {
	now := time.Date(2024, 2, 2, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	user := domain.UserID(uuid.New())

	s.Run("stamps creation time and delivers", func() {
		s.sink.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, n notification.Notification) error {
				s.Equal(now, n.CreatedAt)
				s.Equal(user, n.UserID)
				return nil
			})
		s.notifier.Send(ctx, notification.Notification{UserID: user, Kind: "file_sent"})
	})

	s.Run("failures are logged and delivery continues", func() {
		gomock.InOrder(
			s.sink.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("inbox unavailable")),
			s.sink.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil),
		)
		s.notifier.Send(ctx,
			notification.Notification{UserID: user, Kind: "first"},
			notification.Notification{UserID: user, Kind: "second"},
		)
		s.Contains(s.logs.String(), "notification delivery failed")
		s.Contains(s.logs.String(), "inbox unavailable")
	})

	s.Run("cancelled request still delivers", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		s.sink.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
			func(c context.Context, _ notification.Notification) error {
				return c.Err()
			})
		s.notifier.Send(cancelled, notification.Notification{UserID: user, Kind: "late"})
	})
}

func (s *NotifierSuite) TestNilNotifierIsNoop() {
	var n *notification.Notifier
	s.NotPanics(func() { n.Send(context.Background(), notification.Notification{}) })
}

type RedisSinkSuite struct {
	suite.Suite
	server *miniredis.Miniredis
	client *redis.Client
	sink   *notification.RedisSink
}

func TestRedisSinkSuite(t *testing.T) {
	suite.Run(t, new(RedisSinkSuite))
}

func (s *RedisSinkSuite) SetupTest() {
	s.server = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.server.Addr()})
	s.sink = notification.NewRedisSink(s.client, "pims:notifications", 3)
}

func (s *RedisSinkSuite) TearDownTest() {
	_ = s.client.Close()
}

func (s *RedisSinkSuite) TestInboxIsCappedAndNewestFirst() {
	ctx := context.Background()
	user := domain.UserID(uuid.New())
	for _, kind := range []string{"a", "b", "c", "d"} {
		s.Require().NoError(s.sink.Notify(ctx, notification.Notification{UserID: user, Kind: kind}))
	}

	inbox, err := s.sink.Inbox(ctx, user, "", 10)
	s.Require().NoError(err)
	s.Require().Len(inbox, 3)
	s.Equal("d", inbox[0].Kind)
	s.Equal("b", inbox[2].Kind)
}

func (s *RedisSinkSuite) TestRoleAddressedNotifications() {
	ctx := context.Background()
	user := domain.UserID(uuid.New())
	s.Require().NoError(s.sink.Notify(ctx, notification.Notification{Role: domain.RoleHOD, Kind: "workflow_step"}))

	inbox, err := s.sink.Inbox(ctx, user, domain.RoleHOD, 0)
	s.Require().NoError(err)
	s.Require().Len(inbox, 1)
	s.Equal("workflow_step", inbox[0].Kind)

	inbox, err = s.sink.Inbox(ctx, user, domain.RoleStaff, 0)
	s.Require().NoError(err)
	s.Empty(inbox)
}

func (s *RedisSinkSuite) TestPublishesOnChannel() {
	ctx := context.Background()
	sub := s.client.Subscribe(ctx, "pims:notifications")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	s.Require().NoError(err)

	s.Require().NoError(s.sink.Notify(ctx, notification.Notification{UserID: domain.UserID(uuid.New()), Kind: "file_recalled"}))

	select {
	case msg := <-sub.Channel():
		s.Contains(msg.Payload, "file_recalled")
	case <-time.After(2 * time.Second):
		s.Fail("no message published")
	}
}

func (s *RedisSinkSuite) TestReadState() {
	ctx := context.Background()
	user := domain.UserID(uuid.New())
	s.Require().NoError(s.sink.Notify(ctx, notification.Notification{UserID: user, Kind: "first"}))
	s.Require().NoError(s.sink.Notify(ctx, notification.Notification{Role: domain.RoleHOD, Kind: "step"}))

	inbox, err := s.sink.Inbox(ctx, user, domain.RoleHOD, 0)
	s.Require().NoError(err)
	s.Require().Len(inbox, 2)
	s.Equal(2, notification.CountUnread(inbox))

	s.Run("unknown id is not marked", func() {
		ok, err := s.sink.MarkRead(ctx, user, domain.RoleHOD, uuid.NewString())
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("role notification is read per user", func() {
		var step notification.Notification
		for _, n := range inbox {
			if n.Kind == "step" {
				step = n
			}
		}
		ok, err := s.sink.MarkRead(ctx, user, domain.RoleHOD, step.ID)
		s.Require().NoError(err)
		s.True(ok)

		mine, err := s.sink.Inbox(ctx, user, domain.RoleHOD, 0)
		s.Require().NoError(err)
		s.Equal(1, notification.CountUnread(mine))

		colleague, err := s.sink.Inbox(ctx, domain.UserID(uuid.New()), domain.RoleHOD, 0)
		s.Require().NoError(err)
		s.Equal(1, notification.CountUnread(colleague))
	})

	s.Run("mark all read", func() {
		n, err := s.sink.MarkAllRead(ctx, user, domain.RoleHOD)
		s.Require().NoError(err)
		s.Equal(1, n)

		mine, err := s.sink.Inbox(ctx, user, domain.RoleHOD, 0)
		s.Require().NoError(err)
		s.Zero(notification.CountUnread(mine))
	})
}

func (s *RedisSinkSuite) TestUnavailableRedisReturnsError() {
	s.server.Close()
	err := s.sink.Notify(context.Background(), notification.Notification{UserID: domain.UserID(uuid.New())})
	s.Error(err)
}
