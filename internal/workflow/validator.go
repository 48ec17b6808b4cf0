// Package workflow decides whether a document workflow may move between statuses.
//
// Validate is pure: callers pass the actor, the workflow's receiver, both
// statuses and the comment, and act on the Result.
package workflow

import (
	"fmt"
	"strings"

	"pims/internal/workflow/models"
	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
)

// ResultKind classifies a validation outcome.
type ResultKind string

const (
	KindOK              ResultKind = "ok"
	KindForbidden       ResultKind = "forbidden"
	KindInvalid         ResultKind = "invalid"
	KindCommentRequired ResultKind = "comment_required"
)

// TransitionRequest is the input to Validate.
type TransitionRequest struct {
	Actor      domain.Actor
	ReceiverID domain.UserID
	Current    models.Status
	Requested  models.Status
	Comment    string
}

// Result is the outcome of Validate.
type Result struct {
	Kind    ResultKind
	Message string
}

func (r Result) OK() bool { return r.Kind == KindOK }

// Err maps a failed result onto a domain error; nil when OK.
func (r Result) Err() error {
	switch r.Kind {
	case KindOK:
		return nil
	case KindForbidden:
		return dErrors.New(dErrors.CodeForbidden, r.Message)
	case KindCommentRequired:
		return dErrors.New(dErrors.CodeCommentRequired, r.Message)
	default:
		return dErrors.New(dErrors.CodeInvalidTransition, r.Message)
	}
}

func ok() Result { return Result{Kind: KindOK} }

func fail(kind ResultKind, msg string) Result { return Result{Kind: kind, Message: msg} }

// Validate decides whether req.Actor may move a workflow from req.Current to req.Requested.
func Validate(req TransitionRequest) Result {
	if req.Requested == req.Current {
		return ok()
	}
	if !req.Requested.IsValid() {
		return fail(KindInvalid, fmt.Sprintf("unknown status %q", req.Requested))
	}
	hasComment := strings.TrimSpace(req.Comment) != ""

	if req.Actor.Can(domain.CapOverrideWorkflow) {
		if req.Requested.RequiresComment() && !hasComment {
			return fail(KindCommentRequired, "comment required for this transition")
		}
		return ok()
	}

	if !CanTransition(req.Current, req.Requested) {
		return fail(KindInvalid, fmt.Sprintf("invalid transition: %s -> %s", req.Current, req.Requested))
	}

	isReceiver := !req.ReceiverID.IsNil() && req.Actor.ID == req.ReceiverID

	switch req.Requested {
	case models.StatusAcknowledged:
		if !isReceiver {
			return fail(KindForbidden, "only the assigned receiver can acknowledge")
		}
		return ok()

	case models.StatusApproved, models.StatusRejected:
		if !isReceiver && !req.Actor.Can(domain.CapApproveWorkflow) {
			return fail(KindForbidden, "only HOD or the assigned receiver can approve or reject")
		}
		if req.Requested == models.StatusRejected && !hasComment {
			return fail(KindCommentRequired, "comment required for rejection")
		}
		return ok()

	case models.StatusEscalated:
		if !isReceiver && !req.Actor.Can(domain.CapEscalateWorkflow) {
			return fail(KindForbidden, "only HOD, Admin, or the assigned receiver can escalate")
		}
		if !hasComment {
			return fail(KindCommentRequired, "comment required for escalation")
		}
		return ok()
	}

	if isReceiver || req.Actor.Can(domain.CapProceedWorkflow) {
		return ok()
	}
	return fail(KindForbidden, "actor is not permitted to perform this transition")
}
