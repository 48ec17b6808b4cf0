package models

import (
	"fmt"
	"strings"
	"time"

	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
)

// RequestStatus is the state of an activation or access request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
	// RequestExpired is never stored. It is reported for approved access
	// grants whose expiry has passed.
	RequestExpired RequestStatus = "expired"
)

// ActivationRequest asks Registry to activate an inactive file.
//
// Invariant: at most one pending request per file.
type ActivationRequest struct {
	ID              domain.ActivationRequestID
	FileID          domain.FileID
	RequestorID     domain.UserID
	Reason          string
	Status          RequestStatus
	ProcessedBy     *domain.UserID
	ProcessedAt     *time.Time
	RejectionReason string
	CreatedAt       time.Time
}

// CanDecide checks that the request is still pending.
func (r *ActivationRequest) CanDecide() error {
	if r.Status != RequestPending {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("activation request is already %s", r.Status))
	}
	return nil
}

// ApplyApproval marks the request approved by approver.
func (r *ActivationRequest) ApplyApproval(approver domain.UserID, now time.Time) {
	r.Status = RequestApproved
	r.ProcessedBy = &approver
	r.ProcessedAt = &now
}

// ApplyRejection marks the request rejected with reason.
func (r *ActivationRequest) ApplyRejection(approver domain.UserID, reason string, now time.Time) {
	r.Status = RequestRejected
	r.ProcessedBy = &approver
	r.ProcessedAt = &now
	r.RejectionReason = reason
}

// AccessType is the scope of a temporary access grant.
type AccessType string

const (
	AccessReadOnly  AccessType = "read_only"
	AccessReadWrite AccessType = "read_write"
)

func ParseAccessType(raw string) (AccessType, error) {
	a := AccessType(strings.ToLower(strings.TrimSpace(raw)))
	if a == "" {
		return AccessReadOnly, nil
	}
	if a != AccessReadOnly && a != AccessReadWrite {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown access type %q", raw)
	}
	return a, nil
}

// AccessRequest is a temporary grant to a file outside the requester's custody.
// Expiry is a pure time comparison; there is no expire transition.
type AccessRequest struct {
	ID          domain.AccessRequestID
	FileID      domain.FileID
	RequesterID domain.UserID
	AccessType  AccessType
	Reason      string
	Status      RequestStatus
	ProcessedBy *domain.UserID
	ApprovedAt  *time.Time
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// IsActive reports whether the grant is in force at now.
func (r *AccessRequest) IsActive(now time.Time) bool {
	return r.Status == RequestApproved && (r.ExpiresAt == nil || r.ExpiresAt.After(now))
}

// EffectiveStatus reports expired for lapsed grants.
func (r *AccessRequest) EffectiveStatus(now time.Time) RequestStatus {
	if r.Status == RequestApproved && !r.IsActive(now) {
		return RequestExpired
	}
	return r.Status
}

func (r *AccessRequest) CanDecide() error {
	if r.Status != RequestPending {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("access request is already %s", r.Status))
	}
	return nil
}

// ApplyApproval grants access for duration from now. A zero duration never expires.
func (r *AccessRequest) ApplyApproval(approver domain.UserID, duration time.Duration, now time.Time) {
	r.Status = RequestApproved
	r.ProcessedBy = &approver
	r.ApprovedAt = &now
	if duration > 0 {
		exp := now.Add(duration)
		r.ExpiresAt = &exp
	}
}

func (r *AccessRequest) ApplyRejection(approver domain.UserID) {
	r.Status = RequestRejected
	r.ProcessedBy = &approver
}

func (r *ActivationRequest) Clone() *ActivationRequest {
	c := *r
	if r.ProcessedBy != nil {
		p := *r.ProcessedBy
		c.ProcessedBy = &p
	}
	if r.ProcessedAt != nil {
		t := *r.ProcessedAt
		c.ProcessedAt = &t
	}
	return &c
}

func (r *AccessRequest) Clone() *AccessRequest {
	c := *r
	if r.ProcessedBy != nil {
		p := *r.ProcessedBy
		c.ProcessedBy = &p
	}
	if r.ApprovedAt != nil {
		t := *r.ApprovedAt
		c.ApprovedAt = &t
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}
