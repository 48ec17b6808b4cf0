package handler

import (
	"strings"

	"pims/internal/file/models"
	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
)

// CreateFileRequest is the body of POST /files.
type CreateFileRequest struct {
	Category        string `json:"category"`
	SubType         string `json:"sub_type"`
	Title           string `json:"title"`
	OwnerID         string `json:"owner_id,omitempty"`
	DepartmentCode  string `json:"department_code,omitempty"`
	ExternalParty   string `json:"external_party,omitempty"`
	SecondLevelAuth bool   `json:"second_level_auth,omitempty"`

	parsed models.CreateRequest
}

func (r *CreateFileRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Title) > 255 {
		return dErrors.New(dErrors.CodeValidation, "title must be at most 255 characters")
	}
	category, err := domain.ParseFileCategory(r.Category)
	if err != nil {
		return err
	}
	r.parsed = models.CreateRequest{
		Category:        category,
		SubType:         r.SubType,
		Title:           r.Title,
		DepartmentCode:  r.DepartmentCode,
		ExternalParty:   r.ExternalParty,
		SecondLevelAuth: r.SecondLevelAuth,
	}
	if owner := strings.TrimSpace(r.OwnerID); owner != "" {
		id, err := domain.ParseUserID(owner)
		if err != nil {
			return err
		}
		r.parsed.OwnerID = &id
	}
	return nil
}

// Parsed returns the domain request built by Validate.
func (r *CreateFileRequest) Parsed() models.CreateRequest {
	return r.parsed
}

// ReasonRequest carries the free text of activation requests and rejections.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

func (r *ReasonRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

// ArchiveRequest is the body of POST /files/{id}/archive.
type ArchiveRequest struct {
	Directive string `json:"directive"`
}

func (r *ArchiveRequest) Validate() error {
	r.Directive = strings.TrimSpace(r.Directive)
	if r.Directive == "" {
		return dErrors.New(dErrors.CodeValidation, "archive directive is required")
	}
	return nil
}

// DispatchRequest is the body of POST /files/{id}/dispatch.
type DispatchRequest struct {
	RecipientID string `json:"recipient_id"`
	Note        string `json:"note,omitempty"`

	recipient domain.UserID
}

func (r *DispatchRequest) Validate() error {
	id, err := domain.ParseUserID(strings.TrimSpace(r.RecipientID))
	if err != nil {
		return err
	}
	r.recipient = id
	r.Note = strings.TrimSpace(r.Note)
	return nil
}

// AccessRequestBody is the body of POST /files/{id}/access-requests.
type AccessRequestBody struct {
	AccessType string `json:"access_type,omitempty"`
	Reason     string `json:"reason"`

	accessType models.AccessType
}

func (r *AccessRequestBody) Validate() error {
	t, err := models.ParseAccessType(r.AccessType)
	if err != nil {
		return err
	}
	r.accessType = t
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

func parseListFilter(q map[string][]string) (models.ListFilter, error) {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}
	var filter models.ListFilter
	if raw := get("status"); raw != "" {
		st := models.Status(strings.ToLower(raw))
		if !st.IsValid() {
			return filter, dErrors.Newf(dErrors.CodeValidation, "unknown status %q", raw)
		}
		filter.Status = &st
	}
	if raw := get("category"); raw != "" {
		c, err := domain.ParseFileCategory(raw)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	if raw := get("custodian_id"); raw != "" {
		id, err := domain.ParseUserID(raw)
		if err != nil {
			return filter, err
		}
		filter.CustodianID = &id
	}
	filter.IncludeArchived = get("include_archived") == "true"
	return filter, nil
}

func parseRequestStatus(raw string) (models.RequestStatus, error) {
	st := models.RequestStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch st {
	case "":
		return models.RequestPending, nil
	case models.RequestPending, models.RequestApproved, models.RequestRejected, models.RequestExpired:
		return st, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown request status %q", raw)
}
