package models

import (
	"strings"

	dErrors "pims/pkg/domain-errors"
)

// Status is the state of a document workflow.
type Status string

const (
	StatusSubmitted    Status = "submitted"
	StatusAcknowledged Status = "acknowledged"
	StatusPending      Status = "pending"
	StatusApproved     Status = "approved"
	StatusRejected     Status = "rejected"
	StatusEscalated    Status = "escalated"
	StatusArchived     Status = "archived"
)

var knownStatuses = map[Status]bool{
	StatusSubmitted:    true,
	StatusAcknowledged: true,
	StatusPending:      true,
	StatusApproved:     true,
	StatusRejected:     true,
	StatusEscalated:    true,
	StatusArchived:     true,
}

func (s Status) IsValid() bool { return knownStatuses[s] }

func (s Status) String() string { return string(s) }

// RequiresComment reports whether moving into s needs a justification.
func (s Status) RequiresComment() bool {
	return s == StatusRejected || s == StatusEscalated
}

// ParseStatus normalizes a status name.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown workflow status %q", raw)
	}
	return s, nil
}
