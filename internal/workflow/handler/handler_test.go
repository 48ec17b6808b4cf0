package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"pims/internal/workflow/handler/mocks"
	"pims/internal/workflow/models"
	"pims/internal/workflow/service"
	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
	"pims/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  http.Handler
	actor   domain.Actor
	now     time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.actor = domain.Actor{ID: domain.UserID(uuid.New()), Role: domain.RoleHOD}
	s.now = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	r := chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) do(actor *domain.Actor, method, path string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if actor != nil {
		req = testutil.WithActor(req, *actor)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) workflow(status models.Status) *models.DocumentWorkflow {
	receiver := domain.UserID(uuid.New())
	return &models.DocumentWorkflow{
		ID:            domain.WorkflowID(uuid.New()),
		DocumentTitle: "Budget memo",
		Status:        status,
		SenderID:      s.actor.ID,
		ReceiverID:    &receiver,
		CreatedAt:     s.now,
		UpdatedAt:     s.now,
	}
}

func (s *HandlerSuite) TestSubmit() {
	s.Run("passes parsed request to the service", func() {
		receiver := domain.UserID(uuid.New())
		wf := s.workflow(models.StatusSubmitted)
		s.service.EXPECT().
			Submit(gomock.Any(), s.actor, service.SubmitRequest{DocumentTitle: "Budget memo", ReceiverID: &receiver}).
			Return(wf, nil)

		rec := s.do(&s.actor, http.MethodPost, "/workflows", map[string]string{
			"document_title": "Budget memo",
			"receiver_id":    receiver.String(),
		})

		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
		var resp WorkflowResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal(wf.ID.String(), resp.ID)
		s.Equal("submitted", resp.Status)
	})

	s.Run("malformed receiver never reaches the service", func() {
		rec := s.do(&s.actor, http.MethodPost, "/workflows", map[string]string{
			"document_title": "Budget memo",
			"receiver_id":    "nope",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unauthenticated", func() {
		rec := s.do(nil, http.MethodPost, "/workflows", map[string]string{"document_title": "x"})
		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}

func (s *HandlerSuite) TestTransitionErrorMapping() {
	id := domain.WorkflowID(uuid.New())
	path := "/workflows/" + id.String() + "/transition"

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid transition", dErrors.New(dErrors.CodeInvalidTransition, "cannot move from archived to approved"), http.StatusUnprocessableEntity},
		{"comment required", dErrors.New(dErrors.CodeCommentRequired, "a comment is required to reject"), http.StatusBadRequest},
		{"not receiver", dErrors.New(dErrors.CodeForbidden, "only the receiver may act"), http.StatusForbidden},
		{"missing", dErrors.New(dErrors.CodeNotFound, "workflow not found"), http.StatusNotFound},
		{"store failure", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.service.EXPECT().
				Transition(gomock.Any(), s.actor, id, models.StatusRejected, "").
				Return(nil, tc.err)

			rec := s.do(&s.actor, http.MethodPost, path, map[string]string{"status": "rejected"})
			s.Equal(tc.status, rec.Code)
		})
	}

	s.Run("unknown status", func() {
		rec := s.do(&s.actor, http.MethodPost, path, map[string]string{"status": "shredded"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("success", func() {
		wf := s.workflow(models.StatusApproved)
		s.service.EXPECT().
			Transition(gomock.Any(), s.actor, id, models.StatusApproved, "looks good").
			Return(wf, nil)

		rec := s.do(&s.actor, http.MethodPost, path, map[string]string{"status": "approved", "comment": "looks good"})
		s.Equal(http.StatusOK, rec.Code)
	})
}

func (s *HandlerSuite) TestBulkTransition() {
	okID := domain.WorkflowID(uuid.New())
	badID := domain.WorkflowID(uuid.New())
	wf := s.workflow(models.StatusApproved)
	wf.ID = okID

	s.service.EXPECT().
		BulkTransition(gomock.Any(), s.actor, []domain.WorkflowID{okID, badID}, models.StatusApproved, "").
		Return([]service.BulkResult{
			{ID: okID, Workflow: wf},
			{ID: badID, Err: dErrors.New(dErrors.CodeForbidden, "only the receiver may act")},
		}, nil)

	rec := s.do(&s.actor, http.MethodPost, "/workflows/bulk-transition", map[string]any{
		"ids":    []string{okID.String(), badID.String(), " " + strings.ToUpper(okID.String())},
		"status": "approved",
	})

	s.Require().Equal(http.StatusOK, rec.Code)
	var resp BulkTransitionResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal(1, resp.Succeeded)
	s.Equal(1, resp.Failed)
	s.True(resp.Results[0].OK)
	s.Equal("forbidden", resp.Results[1].Error)
	s.Equal("only the receiver may act", resp.Results[1].ErrorDescription)

	s.Run("empty ids", func() {
		rec := s.do(&s.actor, http.MethodPost, "/workflows/bulk-transition", map[string]any{"ids": []string{}, "status": "approved"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestListings() {
	s.Run("inbox", func() {
		s.service.EXPECT().ListInbox(gomock.Any(), s.actor).
			Return([]*models.DocumentWorkflow{s.workflow(models.StatusSubmitted)}, nil)

		rec := s.do(&s.actor, http.MethodGet, "/workflows/inbox", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var resp WorkflowListResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal(1, resp.Count)
	})

	s.Run("sent", func() {
		s.service.EXPECT().ListSent(gomock.Any(), s.actor).Return(nil, nil)

		rec := s.do(&s.actor, http.MethodGet, "/workflows/sent", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var resp WorkflowListResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal(0, resp.Count)
		s.NotNil(resp.Workflows)
	})

	s.Run("allowed transitions", func() {
		id := domain.WorkflowID(uuid.New())
		s.service.EXPECT().AllowedTransitions(gomock.Any(), id).
			Return([]models.Status{models.StatusAcknowledged, models.StatusPending}, nil)

		rec := s.do(&s.actor, http.MethodGet, "/workflows/"+id.String()+"/transitions", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var resp TransitionsResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal([]string{"acknowledged", "pending"}, resp.Allowed)
	})
}

func (s *HandlerSuite) TestTemplates() {
	admin := domain.Actor{ID: domain.UserID(uuid.New()), Role: domain.RoleAdmin}

	s.Run("create parses steps", func() {
		steps := []models.TemplateStep{
			{Order: 1, Role: domain.RoleHOD, Action: models.StepActionReview},
			{Order: 2, Role: domain.RoleRegistry, Action: ""},
		}
		tmpl := &models.Template{
			ID:        domain.TemplateID(uuid.New()),
			Name:      "Leave approval",
			Steps:     []models.TemplateStep{{Order: 1, Role: domain.RoleHOD, Action: models.StepActionReview}, {Order: 2, Role: domain.RoleRegistry, Action: models.StepActionApprove}},
			CreatedBy: admin.ID,
			CreatedAt: s.now,
		}
		s.service.EXPECT().CreateTemplate(gomock.Any(), admin, "Leave approval", steps).Return(tmpl, nil)

		rec := s.do(&admin, http.MethodPost, "/workflow-templates", map[string]any{
			"name": "Leave approval",
			"steps": []map[string]any{
				{"order": 1, "role": "HOD", "action": "review"},
				{"order": 2, "role": "registry"},
			},
		})
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
		var resp TemplateResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Len(resp.Steps, 2)
		s.Equal("approve", resp.Steps[1].Action)
	})

	s.Run("unknown role", func() {
		rec := s.do(&admin, http.MethodPost, "/workflow-templates", map[string]any{
			"name":  "Leave approval",
			"steps": []map[string]any{{"order": 1, "role": "janitor"}},
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("forbidden for non admins", func() {
		s.service.EXPECT().CreateTemplate(gomock.Any(), s.actor, "Leave approval", gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "only administrators can define workflow templates"))

		rec := s.do(&s.actor, http.MethodPost, "/workflow-templates", map[string]any{
			"name":  "Leave approval",
			"steps": []map[string]any{{"order": 1, "role": "hod"}},
		})
		s.Equal(http.StatusForbidden, rec.Code)
	})
}
