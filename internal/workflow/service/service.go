// Package service runs document workflows: submission, validated status
// transitions, template step advancement and bulk updates.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	filemodels "pims/internal/file/models"
	"pims/internal/notification"
	"pims/internal/workflow"
	"pims/internal/workflow/metrics"
	"pims/internal/workflow/models"
	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
	audit "pims/pkg/platform/audit"
	"pims/pkg/platform/sentinel"
	"pims/pkg/requestcontext"
)

type WorkflowStore interface {
	Create(ctx context.Context, w *models.DocumentWorkflow) error
	FindByID(ctx context.Context, id domain.WorkflowID) (*models.DocumentWorkflow, error)
	FindByIDForUpdate(ctx context.Context, id domain.WorkflowID) (*models.DocumentWorkflow, error)
	Update(ctx context.Context, w *models.DocumentWorkflow) error
	ListInbox(ctx context.Context, actor domain.Actor) ([]*models.DocumentWorkflow, error)
	ListBySender(ctx context.Context, sender domain.UserID) ([]*models.DocumentWorkflow, error)
}

type TemplateStore interface {
	Create(ctx context.Context, t *models.Template) error
	FindByID(ctx context.Context, id domain.TemplateID) (*models.Template, error)
	List(ctx context.Context) ([]*models.Template, error)
}

// FileLookup confirms that a referenced file exists.
type FileLookup interface {
	FindByID(ctx context.Context, id domain.FileID) (*filemodels.File, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entityType audit.EntityType, entityID string, action audit.Action, actor domain.UserID, details map[string]string) error
}

type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	workflows WorkflowStore
	templates TemplateStore
	files     FileLookup
	audit     AuditRecorder
	tx        StoreTx
	notifier  *notification.Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithNotifier(n *notification.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithFileLookup makes Submit reject references to unknown files.
func WithFileLookup(files FileLookup) Option {
	return func(s *Service) {
		s.files = files
	}
}

func New(workflows WorkflowStore, templates TemplateStore, recorder AuditRecorder, tx StoreTx, opts ...Option) (*Service, error) {
	switch {
	case workflows == nil:
		return nil, errors.New("workflow store is required")
	case templates == nil:
		return nil, errors.New("template store is required")
	case recorder == nil:
		return nil, errors.New("audit recorder is required")
	case tx == nil:
		return nil, errors.New("store tx is required")
	}
	s := &Service{
		workflows: workflows,
		templates: templates,
		audit:     recorder,
		tx:        tx,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SubmitRequest starts a workflow. Exactly one of ReceiverID or TemplateID is set.
type SubmitRequest struct {
	FileID        *domain.FileID
	DocumentTitle string
	ReceiverID    *domain.UserID
	TemplateID    *domain.TemplateID
	Comment       string
}

// Submit starts an ad-hoc workflow in submitted, or a template workflow
// pending at its first step.
func (s *Service) Submit(ctx context.Context, actor domain.Actor, req SubmitRequest) (*models.DocumentWorkflow, error) {
	start := time.Now()
	defer s.observe("submit", start)

	title := strings.TrimSpace(req.DocumentTitle)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "document title is required")
	}
	if (req.ReceiverID == nil) == (req.TemplateID == nil) {
		return nil, dErrors.New(dErrors.CodeValidation, "exactly one of receiver or template is required")
	}
	if req.ReceiverID != nil {
		if req.ReceiverID.IsNil() {
			return nil, dErrors.New(dErrors.CodeValidation, "receiver is required")
		}
		if *req.ReceiverID == actor.ID {
			return nil, dErrors.New(dErrors.CodeValidation, "cannot submit a workflow to yourself")
		}
	}

	now := requestcontext.Now(ctx)
	w := &models.DocumentWorkflow{
		ID:            domain.WorkflowID(uuid.New()),
		FileID:        req.FileID,
		DocumentTitle: title,
		Status:        models.StatusSubmitted,
		SenderID:      actor.ID,
		ReceiverID:    req.ReceiverID,
		Comment:       strings.TrimSpace(req.Comment),
		TemplateID:    req.TemplateID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	kind := "adhoc"

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if req.FileID != nil && s.files != nil {
			if _, err := s.files.FindByID(ctx, *req.FileID); err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.New(dErrors.CodeValidation, "referenced file does not exist")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load file")
			}
		}
		if req.TemplateID != nil {
			kind = "template"
			tpl, err := s.loadTemplate(ctx, *req.TemplateID)
			if err != nil {
				return err
			}
			first, ok := tpl.Step(1)
			if !ok {
				return dErrors.New(dErrors.CodeValidation, "selected workflow template has no steps")
			}
			w.AdvanceStep(first, "", now)
		}
		if err := s.workflows.Create(ctx, w); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save workflow")
		}
		details := map[string]string{"document_title": w.DocumentTitle, "kind": kind}
		if w.FileID != nil {
			details["file_id"] = w.FileID.String()
		}
		return s.record(ctx, w, audit.ActionWorkflowSubmitted, actor.ID, details)
	})
	if err != nil {
		return nil, translate(err, "failed to submit workflow")
	}

	if s.metrics != nil {
		s.metrics.IncrementSubmitted(kind)
	}
	s.logger.InfoContext(ctx, "workflow submitted",
		"workflow_id", w.ID.String(),
		"kind", kind,
		"actor_id", actor.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.notifier.Send(ctx, s.receiverNote(w, "workflow_received", "New document for your attention: "+w.DocumentTitle)...)
	return w, nil
}

// Transition validates and applies a status change. Approving a template
// workflow completes the current step and only finishes the workflow when
// no step remains.
func (s *Service) Transition(ctx context.Context, actor domain.Actor, id domain.WorkflowID, requested models.Status, comment string) (*models.DocumentWorkflow, error) {
	start := time.Now()
	defer s.observe("transition", start)

	now := requestcontext.Now(ctx)
	var (
		w        *models.DocumentWorkflow
		from     models.Status
		advanced bool
		changed  bool
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		w, err = s.workflows.FindByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "workflow not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load workflow")
		}
		from = w.Status

		result := workflow.Validate(workflow.TransitionRequest{
			Actor:      actor,
			ReceiverID: w.EffectiveReceiver(actor),
			Current:    w.Status,
			Requested:  requested,
			Comment:    comment,
		})
		if !result.OK() {
			if s.metrics != nil {
				s.metrics.IncrementRefusal(string(result.Kind))
			}
			return result.Err()
		}
		if requested == w.Status {
			return nil
		}

		advanced, err = s.apply(ctx, w, requested, comment, now)
		if err != nil {
			return err
		}
		if err := s.workflows.Update(ctx, w); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save workflow")
		}
		changed = true

		action := audit.ActionWorkflowTransitioned
		details := map[string]string{"from": string(from), "to": string(w.Status), "requested": string(requested)}
		if c := strings.TrimSpace(comment); c != "" {
			details["comment"] = c
		}
		if advanced {
			action = audit.ActionWorkflowStepAdvanced
			details["step"] = stepDetail(w.CurrentStep)
			details["role"] = string(w.ReceiverRole)
		}
		return s.record(ctx, w, action, actor.ID, details)
	})
	if err != nil {
		return nil, translate(err, "failed to transition workflow")
	}
	if !changed {
		return w, nil
	}

	if s.metrics != nil {
		s.metrics.IncrementTransition(string(from), string(w.Status))
		if advanced {
			s.metrics.IncrementStepAdvance()
		}
	}
	s.logger.InfoContext(ctx, "workflow transitioned",
		"workflow_id", w.ID.String(),
		"from", string(from),
		"to", string(w.Status),
		"step_advanced", advanced,
		"actor_id", actor.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)

	notes := []notification.Notification{}
	if w.SenderID != actor.ID {
		notes = append(notes, notification.Notification{
			UserID:     w.SenderID,
			Kind:       "workflow_" + string(requested),
			Message:    "Your document " + w.DocumentTitle + " is now " + string(w.Status),
			EntityType: string(audit.EntityWorkflow),
			EntityID:   w.ID.String(),
			Link:       workflowLink(w.ID),
		})
	}
	if advanced || w.Status == models.StatusSubmitted {
		notes = append(notes, s.receiverNote(w, "workflow_received", "Document awaiting your step: "+w.DocumentTitle)...)
	}
	s.notifier.Send(ctx, notes...)
	return w, nil
}

// apply mutates w for requested and reports whether a template step advanced.
func (s *Service) apply(ctx context.Context, w *models.DocumentWorkflow, requested models.Status, comment string, now time.Time) (bool, error) {
	if w.TemplateID == nil {
		w.ApplyTransition(requested, comment, now)
		return false, nil
	}
	switch {
	case requested == models.StatusApproved && w.CurrentStep != nil:
		tpl, err := s.loadTemplate(ctx, *w.TemplateID)
		if err != nil {
			return false, err
		}
		if next, ok := tpl.Next(*w.CurrentStep); ok {
			w.AdvanceStep(next, comment, now)
			return true, nil
		}
	case requested == models.StatusSubmitted:
		tpl, err := s.loadTemplate(ctx, *w.TemplateID)
		if err != nil {
			return false, err
		}
		if first, ok := tpl.Step(1); ok {
			w.RestartAt(first, comment, now)
			return false, nil
		}
	}
	w.ApplyTransition(requested, comment, now)
	return false, nil
}

// BulkResult is the outcome for one workflow of a bulk transition.
type BulkResult struct {
	ID       domain.WorkflowID
	Workflow *models.DocumentWorkflow
	Err      error
}

// BulkTransition applies the same transition to each workflow in its own
// unit of work. One failure does not affect the others.
func (s *Service) BulkTransition(ctx context.Context, actor domain.Actor, ids []domain.WorkflowID, requested models.Status, comment string) ([]BulkResult, error) {
	if len(ids) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "workflow ids are required")
	}
	if requested == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "status is required")
	}
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		w, err := s.Transition(ctx, actor, id, requested, comment)
		results = append(results, BulkResult{ID: id, Workflow: w, Err: err})
	}
	return results, nil
}

func (s *Service) Get(ctx context.Context, id domain.WorkflowID) (*models.DocumentWorkflow, error) {
	w, err := s.workflows.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "workflow not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load workflow")
	}
	return w, nil
}

// ListInbox returns open workflows addressed to actor directly or through their role.
func (s *Service) ListInbox(ctx context.Context, actor domain.Actor) ([]*models.DocumentWorkflow, error) {
	out, err := s.workflows.ListInbox(ctx, actor)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list inbox")
	}
	return out, nil
}

func (s *Service) ListSent(ctx context.Context, actor domain.Actor) ([]*models.DocumentWorkflow, error) {
	out, err := s.workflows.ListBySender(ctx, actor.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sent workflows")
	}
	return out, nil
}

// AllowedTransitions lists the statuses the workflow may move to in principle.
// The validator still decides per actor.
func (s *Service) AllowedTransitions(ctx context.Context, id domain.WorkflowID) ([]models.Status, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return workflow.AllowedTargets(w.Status), nil
}

func (s *Service) record(ctx context.Context, w *models.DocumentWorkflow, action audit.Action, actor domain.UserID, details map[string]string) error {
	if err := s.audit.Record(ctx, audit.EntityWorkflow, w.ID.String(), action, actor, details); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
	}
	return nil
}

func (s *Service) receiverNote(w *models.DocumentWorkflow, kind, message string) []notification.Notification {
	n := notification.Notification{
		Kind:       kind,
		Message:    message,
		EntityType: string(audit.EntityWorkflow),
		EntityID:   w.ID.String(),
		Link:       workflowLink(w.ID),
	}
	switch {
	case w.ReceiverID != nil:
		n.UserID = *w.ReceiverID
	case w.ReceiverRole != "":
		n.Role = w.ReceiverRole
	default:
		return nil
	}
	return []notification.Notification{n}
}

func (s *Service) observe(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, start)
	}
}

func translate(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func workflowLink(id domain.WorkflowID) string {
	return "/workflows/" + id.String()
}

func stepDetail(step *int) string {
	if step == nil {
		return ""
	}
	return strconv.Itoa(*step)
}
