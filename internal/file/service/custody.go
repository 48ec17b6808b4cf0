package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"pims/internal/file/models"
	"pims/internal/notification"
	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
	audit "pims/pkg/platform/audit"
	"pims/pkg/requestcontext"
)

// Dispatch hands an active file from its custodian to recipient. The holder
// is re-read inside the unit of work so a stale view cannot authorize it.
func (s *Service) Dispatch(ctx context.Context, actor domain.Actor, fileID domain.FileID, recipient domain.UserID, note string) (file *models.File, err error) {
	start := time.Now()
	defer s.observe("dispatch", start)
	ctx, span := s.startSpan(ctx, "file.Dispatch",
		attribute.String("file.id", fileID.String()),
		attribute.String("file.recipient", recipient.String()),
	)
	defer func() { finishSpan(span, err) }()

	if recipient.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "recipient is required")
	}
	if recipient == actor.ID {
		return nil, dErrors.New(dErrors.CodeValidation, "cannot dispatch a file to yourself")
	}

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		f, err := s.loadFile(ctx, fileID, true)
		if err != nil {
			return err
		}
		if err := f.CanDispatch(actor.ID); err != nil {
			return err
		}
		f.ApplyCustody(recipient, now)
		if err := s.saveFile(ctx, f); err != nil {
			return err
		}
		details := map[string]string{
			"from": actor.ID.String(),
			"to":   recipient.String(),
		}
		if note != "" {
			details["note"] = note
		}
		if err := s.record(ctx, f, audit.ActionFileSent, actor.ID, details); err != nil {
			return err
		}
		file = f
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to dispatch file")
	}

	if s.metrics != nil {
		s.metrics.IncrementCustodyMove("dispatch")
	}
	s.logAudit(ctx, "file dispatched",
		"file_id", file.ID.String(), "from", actor.ID.String(), "to", recipient.String())
	s.notify(ctx, []notification.Notification{{
		UserID:     recipient,
		Kind:       "file_received",
		Message:    "File " + file.FileNumber + " has been sent to you",
		EntityType: string(audit.EntityFile),
		EntityID:   file.ID.String(),
		Link:       fileLink(file.ID),
	}})
	return file, nil
}

// Recall forces custody back to the registry actor regardless of the holder.
func (s *Service) Recall(ctx context.Context, actor domain.Actor, fileID domain.FileID) (file *models.File, err error) {
	start := time.Now()
	defer s.observe("recall", start)
	ctx, span := s.startSpan(ctx, "file.Recall", attribute.String("file.id", fileID.String()))
	defer func() { finishSpan(span, err) }()

	if err := requireManager(actor, "recall files"); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var previous *domain.UserID
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		f, err := s.loadFile(ctx, fileID, true)
		if err != nil {
			return err
		}
		if err := f.CanRecall(); err != nil {
			return err
		}
		previous = f.CustodianID
		f.ApplyCustody(actor.ID, now)
		if err := s.saveFile(ctx, f); err != nil {
			return err
		}
		if err := s.record(ctx, f, audit.ActionFileRecalled, actor.ID, map[string]string{
			"previous_custodian": userDetail(previous),
			"to":                 actor.ID.String(),
		}); err != nil {
			return err
		}
		file = f
		return nil
	})
	if err != nil {
		return nil, translate(err, "failed to recall file")
	}

	if s.metrics != nil {
		s.metrics.IncrementCustodyMove("recall")
	}
	s.logAudit(ctx, "file recalled",
		"file_id", file.ID.String(), "previous_custodian", userDetail(previous), "actor_id", actor.ID.String())
	if previous != nil && *previous != actor.ID {
		s.notify(ctx, []notification.Notification{{
			UserID:     *previous,
			Kind:       "file_recalled",
			Message:    "File " + file.FileNumber + " has been recalled by registry",
			EntityType: string(audit.EntityFile),
			EntityID:   file.ID.String(),
			Link:       fileLink(file.ID),
		}})
	}
	return file, nil
}
