package handler

import (
	"time"

	"pims/internal/file/models"
	"pims/pkg/domain"
)

type FileResponse struct {
	ID               string    `json:"id"`
	FileNumber       string    `json:"file_number"`
	Title            string    `json:"title"`
	Category         string    `json:"category"`
	SubType          string    `json:"sub_type"`
	Status           string    `json:"status"`
	OwnerID          string    `json:"owner_id,omitempty"`
	DepartmentCode   string    `json:"department_code,omitempty"`
	ExternalParty    string    `json:"external_party,omitempty"`
	CustodianID      string    `json:"custodian_id,omitempty"`
	CreatedBy        string    `json:"created_by"`
	SecondLevelAuth  bool      `json:"second_level_auth"`
	ArchiveDirective string    `json:"archive_directive,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func FromFile(f *models.File) *FileResponse {
	return &FileResponse{
		ID:               f.ID.String(),
		FileNumber:       f.FileNumber,
		Title:            f.Title,
		Category:         string(f.Category),
		SubType:          f.SubType,
		Status:           string(f.Status),
		OwnerID:          userString(f.OwnerID),
		DepartmentCode:   f.DepartmentCode,
		ExternalParty:    f.ExternalParty,
		CustodianID:      userString(f.CustodianID),
		CreatedBy:        f.CreatedBy.String(),
		SecondLevelAuth:  f.SecondLevelAuth,
		ArchiveDirective: f.ArchiveDirective,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

type FileListResponse struct {
	Files []*FileResponse `json:"files"`
	Count int             `json:"count"`
}

func FromFiles(files []*models.File) *FileListResponse {
	out := make([]*FileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, FromFile(f))
	}
	return &FileListResponse{Files: out, Count: len(out)}
}

type ActivationRequestResponse struct {
	ID              string     `json:"id"`
	FileID          string     `json:"file_id"`
	RequestorID     string     `json:"requestor_id"`
	Reason          string     `json:"reason"`
	Status          string     `json:"status"`
	ProcessedBy     string     `json:"processed_by,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func FromActivation(r *models.ActivationRequest) *ActivationRequestResponse {
	return &ActivationRequestResponse{
		ID:              r.ID.String(),
		FileID:          r.FileID.String(),
		RequestorID:     r.RequestorID.String(),
		Reason:          r.Reason,
		Status:          string(r.Status),
		ProcessedBy:     userString(r.ProcessedBy),
		ProcessedAt:     r.ProcessedAt,
		RejectionReason: r.RejectionReason,
		CreatedAt:       r.CreatedAt,
	}
}

type AccessRequestResponse struct {
	ID          string     `json:"id"`
	FileID      string     `json:"file_id"`
	RequesterID string     `json:"requester_id"`
	AccessType  string     `json:"access_type"`
	Reason      string     `json:"reason"`
	Status      string     `json:"status"`
	ProcessedBy string     `json:"processed_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// FromAccess renders the request with its status as of now, so lapsed
// grants read as expired.
func FromAccess(r *models.AccessRequest, now time.Time) *AccessRequestResponse {
	return &AccessRequestResponse{
		ID:          r.ID.String(),
		FileID:      r.FileID.String(),
		RequesterID: r.RequesterID.String(),
		AccessType:  string(r.AccessType),
		Reason:      r.Reason,
		Status:      string(r.EffectiveStatus(now)),
		ProcessedBy: userString(r.ProcessedBy),
		ApprovedAt:  r.ApprovedAt,
		ExpiresAt:   r.ExpiresAt,
		CreatedAt:   r.CreatedAt,
	}
}

type AccessCheckResponse struct {
	FileID    string `json:"file_id"`
	HasAccess bool   `json:"has_access"`
}

func userString(id *domain.UserID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
