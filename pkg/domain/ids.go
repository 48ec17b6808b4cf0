// Package domain holds typed identifiers shared by every module.
//
// Each entity gets a distinct UUID-backed type so a FileID can never be passed
// where a UserID is expected. Parse functions are the trust boundary: they
// reject empty, malformed and nil UUIDs with CodeInvalidInput.
package domain

import (
	"github.com/google/uuid"

	dErrors "pims/pkg/domain-errors"
)

type (
	UserID              uuid.UUID
	FileID              uuid.UUID
	ActivationRequestID uuid.UUID
	AccessRequestID     uuid.UUID
	WorkflowID          uuid.UUID
	TemplateID          uuid.UUID
	AuditEntryID        uuid.UUID
)

func (id UserID) String() string              { return uuid.UUID(id).String() }
func (id FileID) String() string              { return uuid.UUID(id).String() }
func (id ActivationRequestID) String() string { return uuid.UUID(id).String() }
func (id AccessRequestID) String() string     { return uuid.UUID(id).String() }
func (id WorkflowID) String() string          { return uuid.UUID(id).String() }
func (id TemplateID) String() string          { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string        { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id FileID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id TemplateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", label)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s", label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be nil", label)
	}
	return u, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

func ParseFileID(s string) (FileID, error) {
	u, err := parseUUID(s, "file ID")
	return FileID(u), err
}

func ParseActivationRequestID(s string) (ActivationRequestID, error) {
	u, err := parseUUID(s, "activation request ID")
	return ActivationRequestID(u), err
}

func ParseAccessRequestID(s string) (AccessRequestID, error) {
	u, err := parseUUID(s, "access request ID")
	return AccessRequestID(u), err
}

func ParseWorkflowID(s string) (WorkflowID, error) {
	u, err := parseUUID(s, "workflow ID")
	return WorkflowID(u), err
}

func ParseTemplateID(s string) (TemplateID, error) {
	u, err := parseUUID(s, "template ID")
	return TemplateID(u), err
}

// Text marshaling keeps IDs as canonical UUID strings in JSON and Redis payloads.

func (id UserID) MarshalText() ([]byte, error)              { return uuid.UUID(id).MarshalText() }
func (id FileID) MarshalText() ([]byte, error)              { return uuid.UUID(id).MarshalText() }
func (id WorkflowID) MarshalText() ([]byte, error)          { return uuid.UUID(id).MarshalText() }
func (id TemplateID) MarshalText() ([]byte, error)          { return uuid.UUID(id).MarshalText() }
func (id AuditEntryID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id ActivationRequestID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id AccessRequestID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *FileID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *WorkflowID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *TemplateID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AuditEntryID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ActivationRequestID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
func (id *AccessRequestID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
