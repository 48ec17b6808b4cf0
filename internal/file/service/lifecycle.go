package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"pims/internal/file/models"
	"pims/internal/notification"
	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
	audit "pims/pkg/platform/audit"
	"pims/pkg/platform/sentinel"
	"pims/pkg/requestcontext"
)

// Create opens a new inactive file held by its creator. The file number is
// allocated in the same unit of work as the insert.
func (s *Service) Create(ctx context.Context, actor domain.Actor, req models.CreateRequest) (created *models.File, err error) {
	start := time.Now()
	defer s.observe("create", start)
	ctx, span := s.startSpan(ctx, "file.Create", attribute.String("file.category", string(req.Category)))
	defer func() { finishSpan(span, err) }()

	req.Normalize()
	subType, code, err := req.Validate()
	if err != nil {
		return nil, err
	}
	ownsIt := req.Category == domain.CategoryPersonal && req.OwnerID != nil && *req.OwnerID == actor.ID
	if !actor.Can(domain.CapCreateFile) && !ownsIt {
		return nil, dErrors.New(dErrors.CodeForbidden, "not permitted to open this file")
	}

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if req.Category == domain.CategoryPersonal {
			_, err := s.files.FindPersonalByOwner(ctx, *req.OwnerID)
			if err == nil {
				return dErrors.New(dErrors.CodeValidation, "owner already has a personal file")
			}
			if !errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check owner files")
			}
		}

		number, err := s.numbers.Generate(ctx, req.Category, code)
		if err != nil {
			return err
		}
		custodian := actor.ID
		f := &models.File{
			ID:              domain.FileID(uuid.New()),
			FileNumber:      number,
			Title:           req.Title,
			Category:        req.Category,
			SubType:         subType,
			Status:          models.StatusInactive,
			OwnerID:         req.OwnerID,
			DepartmentCode:  req.DepartmentCode,
			ExternalParty:   req.ExternalParty,
			CustodianID:     &custodian,
			CreatedBy:       actor.ID,
			SecondLevelAuth: req.SecondLevelAuth,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.files.Create(ctx, f); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeValidation, "owner already has a personal file")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create file")
		}
		if err := s.record(ctx, f, audit.ActionFileCreated, actor.ID, map[string]string{
			"category": string(f.Category),
			"sub_type": f.SubType,
		}); err != nil {
			return err
		}
		created = f
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to create file")
	}

	s.logAudit(ctx, "file created", "file_id", created.ID.String(), "file_number", created.FileNumber, "actor_id", actor.ID.String())
	if s.metrics != nil {
		s.metrics.IncrementFileCreated(string(created.Category))
	}
	if created.OwnerID != nil && *created.OwnerID != actor.ID {
		s.notify(ctx, []notification.Notification{{
			UserID:     *created.OwnerID,
			Kind:       "file_created",
			Message:    "File " + created.FileNumber + " has been opened in your name",
			EntityType: string(audit.EntityFile),
			EntityID:   created.ID.String(),
			Link:       fileLink(created.ID),
		}})
	}
	return created, nil
}

// RequestActivation files an activation request for an inactive file.
// Registry actors take the short path: the file becomes active at once and
// the request is stored as approved by the requester.
func (s *Service) RequestActivation(ctx context.Context, actor domain.Actor, fileID domain.FileID, reason string) (result *models.ActivationRequest, err error) {
	start := time.Now()
	defer s.observe("request_activation", start)
	ctx, span := s.startSpan(ctx, "file.RequestActivation", attribute.String("file.id", fileID.String()))
	defer func() { finishSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	registry := actor.Can(domain.CapManageFiles)
	transition := models.TransitionRequestActivation
	if registry {
		transition = models.TransitionRegistryActivation
	}

	now := requestcontext.Now(ctx)
	var (
		file  *models.File
		notes []notification.Notification
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		f, err := s.loadFile(ctx, fileID, true)
		if err != nil {
			return err
		}
		if !registry && !f.IsOwnedBy(actor.ID) && f.CreatedBy != actor.ID {
			return dErrors.New(dErrors.CodeForbidden, "only the file owner or creator can request activation")
		}
		if _, err := s.activations.FindPendingByFile(ctx, f.ID); err == nil {
			return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("an activation request is already pending: file is %s", f.Status))
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check pending requests")
		}
		if err := models.CheckTransition(transition, f.Status); err != nil {
			return err
		}

		req := &models.ActivationRequest{
			ID:          domain.ActivationRequestID(uuid.New()),
			FileID:      f.ID,
			RequestorID: actor.ID,
			Reason:      reason,
			Status:      models.RequestPending,
			CreatedAt:   now,
		}
		// TODO: hold the registry short path for HOD sign-off when f.SecondLevelAuth is set.
		if registry {
			req.ApplyApproval(actor.ID, now)
			f.ApplyActivation(transition, actor.ID, now)
		} else {
			f.Apply(transition, now)
		}

		if err := s.activations.Create(ctx, req); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("an activation request is already pending: file is %s", f.Status))
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save activation request")
		}
		if err := s.saveFile(ctx, f); err != nil {
			return err
		}
		if err := s.record(ctx, f, audit.ActionActivationRequested, actor.ID, map[string]string{
			"request_id": req.ID.String(),
			"reason":     reason,
		}); err != nil {
			return err
		}

		if registry {
			if err := s.record(ctx, f, audit.ActionFileActivated, actor.ID, map[string]string{
				"request_id": req.ID.String(),
				"custodian":  actor.ID.String(),
				"path":       string(transition),
			}); err != nil {
				return err
			}
			if f.OwnerID != nil && *f.OwnerID != actor.ID {
				notes = append(notes, notification.Notification{
					UserID:     *f.OwnerID,
					Kind:       "file_activated",
					Message:    "File " + f.FileNumber + " has been activated by registry",
					EntityType: string(audit.EntityFile),
					EntityID:   f.ID.String(),
					Link:       fileLink(f.ID),
				})
			}
		} else {
			notes = append(notes, notification.Notification{
				Role:       domain.RoleRegistry,
				Kind:       "activation_requested",
				Message:    "Activation requested for file " + f.FileNumber + ": " + reason,
				EntityType: string(audit.EntityActivationRequest),
				EntityID:   req.ID.String(),
				Link:       "/activation-requests/" + req.ID.String(),
			})
		}
		result, file = req, f
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to request activation")
	}

	s.incrementTransition(transition)
	s.logAudit(ctx, "activation requested",
		"file_id", file.ID.String(), "activation_request_id", result.ID.String(), "path", string(transition), "actor_id", actor.ID.String())
	s.notify(ctx, notes)
	return result, nil
}

// ApproveActivation activates the file into the requestor's custody. Of two
// concurrent approvals of one request exactly one succeeds; the other gets Conflict.
func (s *Service) ApproveActivation(ctx context.Context, actor domain.Actor, requestID domain.ActivationRequestID) (file *models.File, err error) {
	start := time.Now()
	defer s.observe("approve_activation", start)
	ctx, span := s.startSpan(ctx, "file.ApproveActivation", attribute.String("activation_request.id", requestID.String()))
	defer func() { finishSpan(span, err) }()

	if err := requireManager(actor, "approve activation requests"); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var req *models.ActivationRequest
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.loadActivation(ctx, requestID)
		if err != nil {
			return err
		}
		if err := req.CanDecide(); err != nil {
			return err
		}
		f, err := s.loadFile(ctx, req.FileID, true)
		if err != nil {
			return err
		}
		if err := models.CheckTransition(models.TransitionApproveActivation, f.Status); err != nil {
			return err
		}

		req.ApplyApproval(actor.ID, now)
		f.ApplyActivation(models.TransitionApproveActivation, req.RequestorID, now)

		if err := s.activations.Update(ctx, req); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save activation request")
		}
		if err := s.saveFile(ctx, f); err != nil {
			return err
		}
		if err := s.record(ctx, f, audit.ActionFileActivated, actor.ID, map[string]string{
			"request_id": req.ID.String(),
			"custodian":  req.RequestorID.String(),
			"path":       string(models.TransitionApproveActivation),
		}); err != nil {
			return err
		}
		file = f
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to approve activation")
	}

	s.incrementTransition(models.TransitionApproveActivation)
	if s.metrics != nil {
		s.metrics.IncrementActivationDecision("approved")
	}
	s.logAudit(ctx, "activation approved", "file_id", file.ID.String(), "activation_request_id", req.ID.String(), "actor_id", actor.ID.String())
	notes := []notification.Notification{{
		UserID:     req.RequestorID,
		Kind:       "activation_approved",
		Message:    "Your activation request for file " + file.FileNumber + " was approved",
		EntityType: string(audit.EntityFile),
		EntityID:   file.ID.String(),
		Link:       fileLink(file.ID),
	}}
	if file.OwnerID != nil && *file.OwnerID != req.RequestorID {
		notes = append(notes, notification.Notification{
			UserID:     *file.OwnerID,
			Kind:       "file_activated",
			Message:    "File " + file.FileNumber + " is now active",
			EntityType: string(audit.EntityFile),
			EntityID:   file.ID.String(),
			Link:       fileLink(file.ID),
		})
	}
	s.notify(ctx, notes)
	return file, nil
}

// RejectActivation declines a pending request. The file returns to inactive
// so a new request can be filed; it never becomes active.
func (s *Service) RejectActivation(ctx context.Context, actor domain.Actor, requestID domain.ActivationRequestID, reason string) (req *models.ActivationRequest, err error) {
	start := time.Now()
	defer s.observe("reject_activation", start)
	ctx, span := s.startSpan(ctx, "file.RejectActivation", attribute.String("activation_request.id", requestID.String()))
	defer func() { finishSpan(span, err) }()

	if err := requireManager(actor, "reject activation requests"); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	now := requestcontext.Now(ctx)
	var fileNumber string
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.loadActivation(ctx, requestID)
		if err != nil {
			return err
		}
		if err := req.CanDecide(); err != nil {
			return err
		}
		f, err := s.loadFile(ctx, req.FileID, true)
		if err != nil {
			return err
		}
		if err := models.CheckTransition(models.TransitionRejectActivation, f.Status); err != nil {
			return err
		}

		req.ApplyRejection(actor.ID, reason, now)
		f.Apply(models.TransitionRejectActivation, now)

		if err := s.activations.Update(ctx, req); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save activation request")
		}
		if err := s.saveFile(ctx, f); err != nil {
			return err
		}
		fileNumber = f.FileNumber
		return s.record(ctx, f, audit.ActionActivationRejected, actor.ID, map[string]string{
			"request_id": req.ID.String(),
			"reason":     reason,
		})
	})
	if err != nil {
		return nil, translate(err, "failed to reject activation")
	}

	s.incrementTransition(models.TransitionRejectActivation)
	if s.metrics != nil {
		s.metrics.IncrementActivationDecision("rejected")
	}
	s.logAudit(ctx, "activation rejected", "activation_request_id", req.ID.String(), "actor_id", actor.ID.String())
	s.notify(ctx, []notification.Notification{{
		UserID:     req.RequestorID,
		Kind:       "activation_rejected",
		Message:    "Your activation request for file " + fileNumber + " was rejected: " + reason,
		EntityType: string(audit.EntityActivationRequest),
		EntityID:   req.ID.String(),
		Link:       fileLink(req.FileID),
	}})
	return req, nil
}

// Close closes an active file. The custodian or registry may close it.
func (s *Service) Close(ctx context.Context, actor domain.Actor, fileID domain.FileID) (file *models.File, err error) {
	return s.simpleTransition(ctx, actor, fileID, models.TransitionClose, audit.ActionFileClosed,
		func(f *models.File) error {
			if !f.IsHeldBy(actor.ID) && !actor.Can(domain.CapManageFiles) {
				return dErrors.New(dErrors.CodeForbidden, "only the custodian or registry can close this file")
			}
			return nil
		},
		func(f *models.File, now time.Time) map[string]string {
			f.Apply(models.TransitionClose, now)
			return nil
		})
}

// Archive archives a closed file under a directive reference and clears custody.
func (s *Service) Archive(ctx context.Context, actor domain.Actor, fileID domain.FileID, directive string) (file *models.File, err error) {
	if err := requireManager(actor, "archive files"); err != nil {
		return nil, err
	}
	directive = strings.TrimSpace(directive)
	if directive == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "directive reference is required")
	}
	return s.simpleTransition(ctx, actor, fileID, models.TransitionArchive, audit.ActionFileArchived, nil,
		func(f *models.File, now time.Time) map[string]string {
			prev := userDetail(f.CustodianID)
			f.ApplyArchive(directive, now)
			return map[string]string{"directive_reference": directive, "previous_custodian": prev}
		})
}

// Deactivate returns an active file to inactive and clears custody.
func (s *Service) Deactivate(ctx context.Context, actor domain.Actor, fileID domain.FileID) (file *models.File, err error) {
	if err := requireManager(actor, "deactivate files"); err != nil {
		return nil, err
	}
	return s.simpleTransition(ctx, actor, fileID, models.TransitionDeactivate, audit.ActionFileDeactivated, nil,
		func(f *models.File, now time.Time) map[string]string {
			prev := userDetail(f.CustodianID)
			f.ApplyDeactivation(now)
			return map[string]string{"previous_custodian": prev}
		})
}

// simpleTransition runs a status-only transition: check status, authorize, apply, record.
func (s *Service) simpleTransition(
	ctx context.Context,
	actor domain.Actor,
	fileID domain.FileID,
	transition models.Transition,
	action audit.Action,
	authorize func(*models.File) error,
	apply func(*models.File, time.Time) map[string]string,
) (file *models.File, err error) {
	start := time.Now()
	defer s.observe(string(transition), start)
	ctx, span := s.startSpan(ctx, "file."+string(transition), attribute.String("file.id", fileID.String()))
	defer func() { finishSpan(span, err) }()

	now := requestcontext.Now(ctx)
	var prevCustodian *domain.UserID
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		f, err := s.loadFile(ctx, fileID, true)
		if err != nil {
			return err
		}
		if err := models.CheckTransition(transition, f.Status); err != nil {
			return err
		}
		if authorize != nil {
			if err := authorize(f); err != nil {
				return err
			}
		}
		prevCustodian = f.CustodianID
		details := apply(f, now)
		if err := s.saveFile(ctx, f); err != nil {
			return err
		}
		if err := s.record(ctx, f, action, actor.ID, details); err != nil {
			return err
		}
		file = f
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to "+string(transition)+" file")
	}

	s.incrementTransition(transition)
	s.logAudit(ctx, "file "+string(transition), "file_id", file.ID.String(), "status", string(file.Status), "actor_id", actor.ID.String())
	if prevCustodian != nil && *prevCustodian != actor.ID {
		s.notify(ctx, []notification.Notification{{
			UserID:     *prevCustodian,
			Kind:       "file_" + string(transition),
			Message:    "File " + file.FileNumber + " is now " + string(file.Status),
			EntityType: string(audit.EntityFile),
			EntityID:   file.ID.String(),
			Link:       fileLink(file.ID),
		}})
	}
	return file, nil
}

func (s *Service) loadActivation(ctx context.Context, id domain.ActivationRequestID) (*models.ActivationRequest, error) {
	req, err := s.activations.FindByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "activation request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load activation request")
	}
	return req, nil
}
