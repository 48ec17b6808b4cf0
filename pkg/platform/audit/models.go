// Package audit defines the append-only movement and audit log.
//
// Entries are never mutated or deleted. Custody duration and overdue flags are
// derived from this log at read time.
package audit

import (
	"context"
	"slices"
	"time"

	"pims/pkg/domain"
)

// EntityType names the kind of record an entry is about.
type EntityType string

const (
	EntityFile              EntityType = "file"
	EntityActivationRequest EntityType = "activation_request"
	EntityAccessRequest     EntityType = "access_request"
	EntityWorkflow          EntityType = "workflow"
)

// Action is the verb recorded for an entry.
type Action string

const (
	ActionFileCreated           Action = "FILE_CREATED"
	ActionActivationRequested   Action = "ACTIVATION_REQUESTED"
	ActionFileActivated         Action = "FILE_ACTIVATED"
	ActionActivationRejected    Action = "ACTIVATION_REJECTED"
	ActionFileSent              Action = "FILE_SENT"
	ActionFileRecalled          Action = "FILE_RECALLED"
	ActionFileClosed            Action = "FILE_CLOSED"
	ActionFileArchived          Action = "FILE_ARCHIVED"
	ActionFileDeactivated       Action = "FILE_DEACTIVATED"
	ActionAccessRequested       Action = "ACCESS_REQUESTED"
	ActionAccessApproved        Action = "ACCESS_APPROVED"
	ActionAccessRejected        Action = "ACCESS_REJECTED"
	ActionWorkflowSubmitted     Action = "WORKFLOW_SUBMITTED"
	ActionWorkflowTransitioned  Action = "WORKFLOW_TRANSITIONED"
	ActionWorkflowStepAdvanced  Action = "WORKFLOW_STEP_ADVANCED"
	ActionCustodyOverdueWarning Action = "CUSTODY_OVERDUE_WARNING"
)

// CustodyActions reset the custody clock of a file.
var CustodyActions = []Action{ActionFileSent, ActionFileRecalled}

// Entry is one append-only audit record.
type Entry struct {
	ID         domain.AuditEntryID
	EntityType EntityType
	EntityID   string
	Action     Action
	ActorID    domain.UserID
	Details    map[string]string
	RequestID  string
	Timestamp  time.Time
}

// MaxQueryLimit caps how many entries one Query returns.
const MaxQueryLimit = 500

// Filter narrows a log query. Zero fields match everything; From is
// inclusive and To exclusive.
type Filter struct {
	ActorID    *domain.UserID
	EntityType EntityType
	EntityID   string
	Actions    []Action
	From       time.Time
	To         time.Time
	Limit      int
}

// Matches reports whether e passes every set field of the filter.
func (f Filter) Matches(e Entry) bool {
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if len(f.Actions) > 0 && !slices.Contains(f.Actions, e.Action) {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.Timestamp.Before(f.To) {
		return false
	}
	return true
}

// Store persists entries. Append must join the caller's transaction when one is open.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// ListByEntity returns entries for one entity, oldest first.
	ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Entry, error)
	// LatestByActions returns the newest entry with one of actions, or sentinel.ErrNotFound.
	LatestByActions(ctx context.Context, entityType EntityType, entityID string, actions ...Action) (*Entry, error)
	// Query returns entries matching filter, newest first. A non-positive
	// Limit returns every match.
	Query(ctx context.Context, filter Filter) ([]Entry, error)
}
