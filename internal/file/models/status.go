package models

import (
	"fmt"

	dErrors "pims/pkg/domain-errors"
)

// Status is the lifecycle state of a file.
type Status string

const (
	StatusInactive          Status = "inactive"
	StatusPendingActivation Status = "pending_activation"
	StatusActive            Status = "active"
	StatusClosed            Status = "closed"
	StatusArchived          Status = "archived"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusInactive, StatusPendingActivation, StatusActive, StatusClosed, StatusArchived:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// Transition names a lifecycle edge.
type Transition string

const (
	TransitionRequestActivation Transition = "request_activation"
	// TransitionRegistryActivation is the short path taken when Registry
	// requests activation itself: no pending step.
	TransitionRegistryActivation Transition = "registry_activation"
	TransitionApproveActivation  Transition = "approve_activation"
	TransitionRejectActivation   Transition = "reject_activation"
	TransitionClose              Transition = "close"
	TransitionArchive            Transition = "archive"
	TransitionDeactivate         Transition = "deactivate"
)

type edge struct {
	From Status
	To   Status
}

// lifecycle is the full file state machine. Custody moves (dispatch, recall)
// change the custodian only and are not listed.
var lifecycle = map[Transition]edge{
	TransitionRequestActivation:  {StatusInactive, StatusPendingActivation},
	TransitionRegistryActivation: {StatusInactive, StatusActive},
	TransitionApproveActivation:  {StatusPendingActivation, StatusActive},
	TransitionRejectActivation:   {StatusPendingActivation, StatusInactive},
	TransitionClose:              {StatusActive, StatusClosed},
	TransitionArchive:            {StatusClosed, StatusArchived},
	TransitionDeactivate:         {StatusActive, StatusInactive},
}

// Edge returns the source and target status of t.
func (t Transition) Edge() (from, to Status, ok bool) {
	e, ok := lifecycle[t]
	return e.From, e.To, ok
}

// CheckTransition returns a Conflict naming the current status when t does not start at from.
func CheckTransition(t Transition, from Status) error {
	e, ok := lifecycle[t]
	if !ok {
		return dErrors.Newf(dErrors.CodeInternal, "unknown file transition %q", t)
	}
	if e.From != from {
		return dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("cannot %s: file is %s, must be %s", humanize(t), from, e.From))
	}
	return nil
}

func humanize(t Transition) string {
	switch t {
	case TransitionRequestActivation, TransitionRegistryActivation:
		return "request activation"
	case TransitionApproveActivation:
		return "approve activation"
	case TransitionRejectActivation:
		return "reject activation"
	}
	return string(t)
}
