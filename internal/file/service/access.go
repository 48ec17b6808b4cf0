package service

import (
	"context"
	"errors"
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

// RequestAccess asks the registry for a temporary grant on a file the actor
// does not hold.
func (s *Service) RequestAccess(ctx context.Context, actor domain.Actor, fileID domain.FileID, accessType models.AccessType, reason string) (result *models.AccessRequest, err error) {
	start := time.Now()
	defer s.observe("request_access", start)
	ctx, span := s.startSpan(ctx, "file.RequestAccess", attribute.String("file.id", fileID.String()))
	defer func() { finishSpan(span, err) }()

	if accessType == "" {
		accessType = models.AccessReadOnly
	}
	if accessType != models.AccessReadOnly && accessType != models.AccessReadWrite {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid access type")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	now := requestcontext.Now(ctx)
	var fileNumber string
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		f, err := s.loadFile(ctx, fileID, false)
		if err != nil {
			return err
		}
		if f.Status == models.StatusArchived {
			return dErrors.New(dErrors.CodeConflict, "cannot request access to an archived file")
		}
		if f.IsHeldBy(actor.ID) || f.IsOwnedBy(actor.ID) || actor.Can(domain.CapManageFiles) {
			return dErrors.New(dErrors.CodeConflict, "you already have access to this file")
		}
		existing, err := s.access.ListByFileAndRequester(ctx, f.ID, actor.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load access requests")
		}
		for _, r := range existing {
			switch r.EffectiveStatus(now) {
			case models.RequestPending:
				return dErrors.New(dErrors.CodeConflict, "an access request is already pending for this file")
			case models.RequestApproved:
				return dErrors.New(dErrors.CodeConflict, "you already have an active grant for this file")
			}
		}

		req := &models.AccessRequest{
			ID:          domain.AccessRequestID(uuid.New()),
			FileID:      f.ID,
			RequesterID: actor.ID,
			AccessType:  accessType,
			Reason:      reason,
			Status:      models.RequestPending,
			CreatedAt:   now,
		}
		if err := s.access.Create(ctx, req); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save access request")
		}
		if err := s.record(ctx, f, audit.ActionAccessRequested, actor.ID, map[string]string{
			"request_id":  req.ID.String(),
			"access_type": string(accessType),
			"reason":      reason,
		}); err != nil {
			return err
		}
		result, fileNumber = req, f.FileNumber
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to request access")
	}

	s.logAudit(ctx, "access requested", "file_id", fileID.String(), "access_request_id", result.ID.String(), "actor_id", actor.ID.String())
	s.notify(ctx, []notification.Notification{{
		Role:       domain.RoleRegistry,
		Kind:       "access_requested",
		Message:    "Access requested for file " + fileNumber + ": " + reason,
		EntityType: string(audit.EntityAccessRequest),
		EntityID:   result.ID.String(),
		Link:       "/access-requests/" + result.ID.String(),
	}})
	return result, nil
}

// ApproveAccess grants the request for the configured access duration.
func (s *Service) ApproveAccess(ctx context.Context, actor domain.Actor, requestID domain.AccessRequestID) (*models.AccessRequest, error) {
	return s.decideAccess(ctx, actor, requestID, true)
}

// RejectAccess declines a pending access request.
func (s *Service) RejectAccess(ctx context.Context, actor domain.Actor, requestID domain.AccessRequestID) (*models.AccessRequest, error) {
	return s.decideAccess(ctx, actor, requestID, false)
}

func (s *Service) decideAccess(ctx context.Context, actor domain.Actor, requestID domain.AccessRequestID, approve bool) (req *models.AccessRequest, err error) {
	outcome := "rejected"
	action := audit.ActionAccessRejected
	if approve {
		outcome = "approved"
		action = audit.ActionAccessApproved
	}
	start := time.Now()
	defer s.observe("access_"+outcome, start)
	ctx, span := s.startSpan(ctx, "file.DecideAccess",
		attribute.String("access_request.id", requestID.String()),
		attribute.String("access_request.outcome", outcome),
	)
	defer func() { finishSpan(span, err) }()

	if err := requireManager(actor, "decide access requests"); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var fileNumber string
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.access.FindByIDForUpdate(ctx, requestID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "access request not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load access request")
		}
		if err := r.CanDecide(); err != nil {
			return err
		}
		f, err := s.loadFile(ctx, r.FileID, false)
		if err != nil {
			return err
		}
		details := map[string]string{
			"request_id":   r.ID.String(),
			"requester_id": r.RequesterID.String(),
			"access_type":  string(r.AccessType),
		}
		if approve {
			r.ApplyApproval(actor.ID, s.accessDuration, now)
			if r.ExpiresAt != nil {
				details["expires_at"] = r.ExpiresAt.UTC().Format(time.RFC3339)
			}
		} else {
			r.ApplyRejection(actor.ID)
		}
		if err := s.access.Update(ctx, r); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save access request")
		}
		if err := s.record(ctx, f, action, actor.ID, details); err != nil {
			return err
		}
		req, fileNumber = r, f.FileNumber
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to decide access request")
	}

	if s.metrics != nil {
		s.metrics.IncrementAccessDecision(outcome)
	}
	s.logAudit(ctx, "access "+outcome, "access_request_id", req.ID.String(), "file_id", req.FileID.String(), "actor_id", actor.ID.String())
	s.notify(ctx, []notification.Notification{{
		UserID:     req.RequesterID,
		Kind:       "access_" + outcome,
		Message:    "Your access request for file " + fileNumber + " was " + outcome,
		EntityType: string(audit.EntityAccessRequest),
		EntityID:   req.ID.String(),
		Link:       fileLink(req.FileID),
	}})
	return req, nil
}

// HasAccess reports whether the actor may open the file right now: owners,
// custodians, registry and holders of an unexpired grant.
func (s *Service) HasAccess(ctx context.Context, actor domain.Actor, fileID domain.FileID) (bool, error) {
	f, err := s.loadFile(ctx, fileID, false)
	if err != nil {
		return false, err
	}
	if actor.Can(domain.CapManageFiles) || f.IsHeldBy(actor.ID) || f.IsOwnedBy(actor.ID) {
		return true, nil
	}
	grants, err := s.access.ListByFileAndRequester(ctx, f.ID, actor.ID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load access requests")
	}
	now := requestcontext.Now(ctx)
	for _, g := range grants {
		if g.IsActive(now) {
			return true, nil
		}
	}
	return false, nil
}

// ListAccessRequests returns requests in status. Registry sees all of them;
// other actors only their own.
func (s *Service) ListAccessRequests(ctx context.Context, actor domain.Actor, status models.RequestStatus) ([]*models.AccessRequest, error) {
	lookup := status
	if status == models.RequestExpired {
		lookup = models.RequestApproved
	}
	all, err := s.access.ListByStatus(ctx, lookup)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list access requests")
	}
	now := requestcontext.Now(ctx)
	out := make([]*models.AccessRequest, 0, len(all))
	for _, r := range all {
		if r.EffectiveStatus(now) != status {
			continue
		}
		if !actor.Can(domain.CapManageFiles) && r.RequesterID != actor.ID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
