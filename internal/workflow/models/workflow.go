package models

import (
	"strings"
	"time"

	"pims/pkg/domain"
)

// DocumentWorkflow is an approval pipeline for a document, optionally bound
// to a file and to a multi-step template.
type DocumentWorkflow struct {
	ID            domain.WorkflowID
	FileID        *domain.FileID
	DocumentTitle string
	Status        Status
	SenderID      domain.UserID
	// ReceiverID is set for ad-hoc workflows. Template steps address a role instead.
	ReceiverID   *domain.UserID
	ReceiverRole domain.Role
	Comment      string
	TemplateID   *domain.TemplateID
	// CurrentStep is the 1-based step order while a template workflow is in progress.
	CurrentStep *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EffectiveReceiver resolves who counts as the receiver for actor. A role
// addressed step treats any actor holding that role as the receiver.
func (w *DocumentWorkflow) EffectiveReceiver(actor domain.Actor) domain.UserID {
	if w.ReceiverID != nil {
		return *w.ReceiverID
	}
	if w.ReceiverRole != "" && actor.Role == w.ReceiverRole {
		return actor.ID
	}
	return domain.UserID{}
}

// IsTemplateBound reports whether step advancement applies.
func (w *DocumentWorkflow) IsTemplateBound() bool {
	return w.TemplateID != nil && w.CurrentStep != nil
}

// ApplyTransition moves the workflow to status and stores the comment.
func (w *DocumentWorkflow) ApplyTransition(status Status, comment string, now time.Time) {
	w.Status = status
	if c := strings.TrimSpace(comment); c != "" {
		w.Comment = c
	}
	if status == StatusApproved || status == StatusRejected || status == StatusArchived {
		w.CurrentStep = nil
	}
	w.UpdatedAt = now
}

// AdvanceStep moves a template workflow to step, addressed to role, back in pending.
func (w *DocumentWorkflow) AdvanceStep(step TemplateStep, comment string, now time.Time) {
	order := step.Order
	w.CurrentStep = &order
	w.ReceiverRole = step.Role
	w.ReceiverID = nil
	w.Status = StatusPending
	if c := strings.TrimSpace(comment); c != "" {
		w.Comment = c
	}
	w.UpdatedAt = now
}

// IsOpen reports whether the workflow still awaits action.
func (w *DocumentWorkflow) IsOpen() bool {
	switch w.Status {
	case StatusApproved, StatusRejected, StatusArchived:
		return false
	}
	return true
}

// IsAddressedTo reports whether the workflow sits in actor's inbox.
func (w *DocumentWorkflow) IsAddressedTo(actor domain.Actor) bool {
	if w.ReceiverID != nil {
		return *w.ReceiverID == actor.ID
	}
	return w.ReceiverRole != "" && w.ReceiverRole == actor.Role
}

// Clone returns a deep copy.
func (w *DocumentWorkflow) Clone() *DocumentWorkflow {
	c := *w
	if w.FileID != nil {
		v := *w.FileID
		c.FileID = &v
	}
	if w.ReceiverID != nil {
		v := *w.ReceiverID
		c.ReceiverID = &v
	}
	if w.TemplateID != nil {
		v := *w.TemplateID
		c.TemplateID = &v
	}
	if w.CurrentStep != nil {
		v := *w.CurrentStep
		c.CurrentStep = &v
	}
	return &c
}

// RestartAt resubmits a template workflow from step, addressed to its role.
func (w *DocumentWorkflow) RestartAt(step TemplateStep, comment string, now time.Time) {
	w.ApplyTransition(StatusSubmitted, comment, now)
	order := step.Order
	w.CurrentStep = &order
	w.ReceiverRole = step.Role
	w.ReceiverID = nil
}
