package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"pims/internal/notification"
	"pims/internal/workflow/metrics"
	"pims/internal/workflow/models"
	"pims/internal/workflow/service"
	templatestore "pims/internal/workflow/store/template"
	workflowstore "pims/internal/workflow/store/workflow"
	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
	audit "pims/pkg/platform/audit"
	auditmemory "pims/pkg/platform/audit/store/memory"
	"pims/pkg/platform/tx"
	"pims/pkg/requestcontext"
)

type WorkflowServiceSuite struct {
	suite.Suite
	ctx      context.Context
	service  *service.Service
	audit    *auditmemory.InMemoryStore
	sink     *notification.MemorySink
	admin    domain.Actor
	hod      domain.Actor
	registry domain.Actor
	staff    domain.Actor
	other    domain.Actor
}

func TestWorkflowServiceSuite(t *testing.T) {
	suite.Run(t, new(WorkflowServiceSuite))
}

func (s *WorkflowServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC))
	s.audit = auditmemory.NewInMemoryStore()
	s.sink = notification.NewMemorySink()
	svc, err := service.New(
		workflowstore.NewInMemory(),
		templatestore.NewInMemory(),
		audit.NewRecorder(s.audit),
		tx.NewLockRunner(),
		service.WithNotifier(notification.NewNotifier(s.sink)),
		service.WithMetrics(metrics.NewWithRegisterer(prometheus.NewRegistry())),
	)
	s.Require().NoError(err)
	s.service = svc

	s.admin = actor(domain.RoleAdmin)
	s.hod = actor(domain.RoleHOD)
	s.registry = actor(domain.RoleRegistry)
	s.staff = actor(domain.RoleStaff)
	s.other = actor(domain.RoleStaff)
}

func actor(role domain.Role) domain.Actor {
	return domain.Actor{ID: domain.UserID(uuid.New()), Role: role}
}

func (s *WorkflowServiceSuite) submitTo(receiver domain.UserID) *models.DocumentWorkflow {
	w, err := s.service.Submit(s.ctx, s.staff, service.SubmitRequest{
		DocumentTitle: "Leave application",
		ReceiverID:    &receiver,
	})
	s.Require().NoError(err)
	return w
}

func (s *WorkflowServiceSuite) twoStepTemplate() *models.Template {
	tpl, err := s.service.CreateTemplate(s.ctx, s.admin, "Procurement", []models.TemplateStep{
		{Order: 20, Role: domain.RoleRegistry, Action: models.StepActionSignOff},
		{Order: 10, Role: domain.RoleHOD},
	})
	s.Require().NoError(err)
	return tpl
}

func (s *WorkflowServiceSuite) actions(id domain.WorkflowID) []audit.Action {
	entries, err := s.audit.ListByEntity(s.ctx, audit.EntityWorkflow, id.String())
	s.Require().NoError(err)
	var out []audit.Action
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func (s *WorkflowServiceSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), err.Error())
}

func (s *WorkflowServiceSuite) TestSubmit() {
	s.Run("ad-hoc workflow starts submitted and notifies the receiver", func() {
		w := s.submitTo(s.hod.ID)
		s.Equal(models.StatusSubmitted, w.Status)
		s.Equal(s.staff.ID, w.SenderID)
		s.Equal([]audit.Action{audit.ActionWorkflowSubmitted}, s.actions(w.ID))

		received := s.sink.ByKind("workflow_received")
		s.Require().NotEmpty(received)
		s.Equal(s.hod.ID, received[len(received)-1].UserID)
	})

	s.Run("rejects bad input", func() {
		receiver := s.hod.ID
		tplID := domain.TemplateID(uuid.New())

		_, err := s.service.Submit(s.ctx, s.staff, service.SubmitRequest{ReceiverID: &receiver})
		s.requireCode(err, dErrors.CodeValidation)

		_, err = s.service.Submit(s.ctx, s.staff, service.SubmitRequest{DocumentTitle: "x"})
		s.requireCode(err, dErrors.CodeValidation)

		_, err = s.service.Submit(s.ctx, s.staff, service.SubmitRequest{DocumentTitle: "x", ReceiverID: &receiver, TemplateID: &tplID})
		s.requireCode(err, dErrors.CodeValidation)

		self := s.staff.ID
		_, err = s.service.Submit(s.ctx, s.staff, service.SubmitRequest{DocumentTitle: "x", ReceiverID: &self})
		s.requireCode(err, dErrors.CodeValidation)

		_, err = s.service.Submit(s.ctx, s.staff, service.SubmitRequest{DocumentTitle: "x", TemplateID: &tplID})
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("template workflow starts pending at the first step", func() {
		tpl := s.twoStepTemplate()
		w, err := s.service.Submit(s.ctx, s.staff, service.SubmitRequest{DocumentTitle: "Tender", TemplateID: &tpl.ID})
		s.Require().NoError(err)
		s.Equal(models.StatusPending, w.Status)
		s.Require().NotNil(w.CurrentStep)
		s.Equal(1, *w.CurrentStep)
		s.Equal(domain.RoleHOD, w.ReceiverRole)
		s.Nil(w.ReceiverID)

		received := s.sink.ByKind("workflow_received")
		s.Equal(domain.RoleHOD, received[len(received)-1].Role)
	})
}

func (s *WorkflowServiceSuite) TestTransition() {
	s.Run("receiver walks the ad-hoc workflow to approval", func() {
		w := s.submitTo(s.other.ID)
		var err error
		w, err = s.service.Transition(s.ctx, s.other, w.ID, models.StatusAcknowledged, "")
		s.Require().NoError(err)
		s.Equal(models.StatusAcknowledged, w.Status)

		w, err = s.service.Transition(s.ctx, s.other, w.ID, models.StatusPending, "")
		s.Require().NoError(err)

		w, err = s.service.Transition(s.ctx, s.other, w.ID, models.StatusApproved, "looks fine")
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, w.Status)
		s.Equal("looks fine", w.Comment)

		s.Equal([]audit.Action{
			audit.ActionWorkflowSubmitted,
			audit.ActionWorkflowTransitioned,
			audit.ActionWorkflowTransitioned,
			audit.ActionWorkflowTransitioned,
		}, s.actions(w.ID))
		s.NotEmpty(s.sink.ByKind("workflow_approved"))
	})

	s.Run("outsider cannot acknowledge", func() {
		w := s.submitTo(s.other.ID)
		_, err := s.service.Transition(s.ctx, s.hod, w.ID, models.StatusAcknowledged, "")
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("rejection needs a comment", func() {
		w := s.submitTo(s.other.ID)
		_, err := s.service.Transition(s.ctx, s.other, w.ID, models.StatusPending, "")
		s.Require().NoError(err)
		_, err = s.service.Transition(s.ctx, s.other, w.ID, models.StatusRejected, "  ")
		s.requireCode(err, dErrors.CodeCommentRequired)

		got, err := s.service.Get(s.ctx, w.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, got.Status)
	})

	s.Run("edges outside the table are invalid", func() {
		w := s.submitTo(s.other.ID)
		_, err := s.service.Transition(s.ctx, s.other, w.ID, models.StatusApproved, "")
		s.requireCode(err, dErrors.CodeInvalidTransition)
	})

	s.Run("admin overrides the table but still needs a comment to escalate", func() {
		w := s.submitTo(s.other.ID)
		_, err := s.service.Transition(s.ctx, s.admin, w.ID, models.StatusEscalated, "")
		s.requireCode(err, dErrors.CodeCommentRequired)

		got, err := s.service.Transition(s.ctx, s.admin, w.ID, models.StatusArchived, "")
		s.Require().NoError(err)
		s.Equal(models.StatusArchived, got.Status)
	})

	s.Run("same status is a no-op", func() {
		w := s.submitTo(s.other.ID)
		got, err := s.service.Transition(s.ctx, s.staff, w.ID, models.StatusSubmitted, "")
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, got.Status)
		s.Len(s.actions(w.ID), 1)
	})

	s.Run("unknown workflow", func() {
		_, err := s.service.Transition(s.ctx, s.admin, domain.WorkflowID(uuid.New()), models.StatusArchived, "")
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *WorkflowServiceSuite) TestTemplateSteps() {
	tpl := s.twoStepTemplate()
	s.Equal(domain.RoleHOD, tpl.Steps[0].Role)
	s.Equal(models.StepActionApprove, tpl.Steps[0].Action)
	s.Equal(2, tpl.Steps[1].Order)

	submit := func() *models.DocumentWorkflow {
		w, err := s.service.Submit(s.ctx, s.staff, service.SubmitRequest{DocumentTitle: "Tender", TemplateID: &tpl.ID})
		s.Require().NoError(err)
		return w
	}

	s.Run("approval advances through the steps and finishes at the last one", func() {
		w := submit()

		_, err := s.service.Transition(s.ctx, s.other, w.ID, models.StatusApproved, "")
		s.requireCode(err, dErrors.CodeForbidden)

		w, err = s.service.Transition(s.ctx, s.hod, w.ID, models.StatusApproved, "ok by me")
		s.Require().NoError(err)
		s.Equal(models.StatusPending, w.Status)
		s.Equal(2, *w.CurrentStep)
		s.Equal(domain.RoleRegistry, w.ReceiverRole)

		inbox, err := s.service.ListInbox(s.ctx, s.registry)
		s.Require().NoError(err)
		s.Require().Len(inbox, 1)
		s.Equal(w.ID, inbox[0].ID)

		w, err = s.service.Transition(s.ctx, s.registry, w.ID, models.StatusApproved, "")
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, w.Status)
		s.Nil(w.CurrentStep)

		s.Equal([]audit.Action{
			audit.ActionWorkflowSubmitted,
			audit.ActionWorkflowStepAdvanced,
			audit.ActionWorkflowTransitioned,
		}, s.actions(w.ID))

		inbox, err = s.service.ListInbox(s.ctx, s.registry)
		s.Require().NoError(err)
		s.Empty(inbox)
	})

	s.Run("rejection ends the workflow and resubmission restarts at step one", func() {
		w := submit()
		w, err := s.service.Transition(s.ctx, s.hod, w.ID, models.StatusRejected, "missing quotes")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, w.Status)
		s.Nil(w.CurrentStep)

		w, err = s.service.Transition(s.ctx, s.hod, w.ID, models.StatusSubmitted, "")
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, w.Status)
		s.Require().NotNil(w.CurrentStep)
		s.Equal(1, *w.CurrentStep)
		s.Equal(domain.RoleHOD, w.ReceiverRole)
	})
}

func (s *WorkflowServiceSuite) TestTemplates() {
	_, err := s.service.CreateTemplate(s.ctx, s.hod, "Nope", []models.TemplateStep{{Role: domain.RoleHOD}})
	s.requireCode(err, dErrors.CodeForbidden)

	_, err = s.service.CreateTemplate(s.ctx, s.admin, "Empty", nil)
	s.requireCode(err, dErrors.CodeValidation)

	_, err = s.service.CreateTemplate(s.ctx, s.admin, "Bad role", []models.TemplateStep{{Role: "janitor"}})
	s.requireCode(err, dErrors.CodeValidation)

	tpl := s.twoStepTemplate()
	_, err = s.service.CreateTemplate(s.ctx, s.admin, "procurement", []models.TemplateStep{{Role: domain.RoleHOD}})
	s.requireCode(err, dErrors.CodeConflict)

	got, err := s.service.GetTemplate(s.ctx, tpl.ID)
	s.Require().NoError(err)
	s.Len(got.Steps, 2)

	all, err := s.service.ListTemplates(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)

	_, err = s.service.GetTemplate(s.ctx, domain.TemplateID(uuid.New()))
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *WorkflowServiceSuite) TestBulkTransition() {
	mine := s.submitTo(s.other.ID)
	theirs := s.submitTo(s.hod.ID)
	missing := domain.WorkflowID(uuid.New())

	results, err := s.service.BulkTransition(s.ctx, s.other, []domain.WorkflowID{mine.ID, theirs.ID, missing}, models.StatusAcknowledged, "")
	s.Require().NoError(err)
	s.Require().Len(results, 3)

	s.NoError(results[0].Err)
	s.Equal(models.StatusAcknowledged, results[0].Workflow.Status)
	s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(results[1].Err))
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(results[2].Err))

	got, err := s.service.Get(s.ctx, theirs.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, got.Status)

	_, err = s.service.BulkTransition(s.ctx, s.other, nil, models.StatusAcknowledged, "")
	s.requireCode(err, dErrors.CodeValidation)
}

func (s *WorkflowServiceSuite) TestListing() {
	w := s.submitTo(s.other.ID)

	inbox, err := s.service.ListInbox(s.ctx, s.other)
	s.Require().NoError(err)
	s.Require().Len(inbox, 1)
	s.Equal(w.ID, inbox[0].ID)

	inbox, err = s.service.ListInbox(s.ctx, s.hod)
	s.Require().NoError(err)
	s.Empty(inbox)

	sent, err := s.service.ListSent(s.ctx, s.staff)
	s.Require().NoError(err)
	s.Len(sent, 1)

	targets, err := s.service.AllowedTransitions(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal([]models.Status{models.StatusAcknowledged, models.StatusPending, models.StatusEscalated}, targets)
}
