package handler

import (
	"strings"

	"pims/internal/workflow/models"
	"pims/internal/workflow/service"
	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
	pstrings "pims/pkg/platform/strings"
)

const maxBulkIDs = 100

// SubmitRequest is the body of POST /workflows.
type SubmitRequest struct {
	FileID        string `json:"file_id,omitempty"`
	DocumentTitle string `json:"document_title"`
	ReceiverID    string `json:"receiver_id,omitempty"`
	TemplateID    string `json:"template_id,omitempty"`
	Comment       string `json:"comment,omitempty"`

	parsed service.SubmitRequest
}

func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.DocumentTitle) > 255 {
		return dErrors.New(dErrors.CodeValidation, "document_title must be at most 255 characters")
	}
	r.parsed = service.SubmitRequest{DocumentTitle: r.DocumentTitle, Comment: r.Comment}
	if raw := strings.TrimSpace(r.FileID); raw != "" {
		id, err := domain.ParseFileID(raw)
		if err != nil {
			return err
		}
		r.parsed.FileID = &id
	}
	if raw := strings.TrimSpace(r.ReceiverID); raw != "" {
		id, err := domain.ParseUserID(raw)
		if err != nil {
			return err
		}
		r.parsed.ReceiverID = &id
	}
	if raw := strings.TrimSpace(r.TemplateID); raw != "" {
		id, err := domain.ParseTemplateID(raw)
		if err != nil {
			return err
		}
		r.parsed.TemplateID = &id
	}
	return nil
}

func (r *SubmitRequest) Parsed() service.SubmitRequest {
	return r.parsed
}

// TransitionRequest is the body of POST /workflows/{id}/transition.
type TransitionRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`

	status models.Status
}

func (r *TransitionRequest) Validate() error {
	st, err := models.ParseStatus(r.Status)
	if err != nil {
		return err
	}
	r.status = st
	return nil
}

// BulkTransitionRequest is the body of POST /workflows/bulk-transition.
type BulkTransitionRequest struct {
	IDs     []string `json:"ids"`
	Status  string   `json:"status"`
	Comment string   `json:"comment,omitempty"`

	ids    []domain.WorkflowID
	status models.Status
}

func (r *BulkTransitionRequest) Validate() error {
	unique := pstrings.DedupeTrimmed(r.IDs, true)
	if len(unique) == 0 {
		return dErrors.New(dErrors.CodeValidation, "ids are required")
	}
	if len(unique) > maxBulkIDs {
		return dErrors.Newf(dErrors.CodeValidation, "at most %d ids per request", maxBulkIDs)
	}
	r.ids = make([]domain.WorkflowID, 0, len(unique))
	for _, raw := range unique {
		id, err := domain.ParseWorkflowID(raw)
		if err != nil {
			return err
		}
		r.ids = append(r.ids, id)
	}
	st, err := models.ParseStatus(r.Status)
	if err != nil {
		return err
	}
	r.status = st
	return nil
}

// TemplateStepRequest is one step of a template definition.
type TemplateStepRequest struct {
	Order  int    `json:"order"`
	Role   string `json:"role"`
	Action string `json:"action,omitempty"`
}

// CreateTemplateRequest is the body of POST /workflow-templates.
type CreateTemplateRequest struct {
	Name  string                `json:"name"`
	Steps []TemplateStepRequest `json:"steps"`

	steps []models.TemplateStep
}

func (r *CreateTemplateRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	r.steps = make([]models.TemplateStep, 0, len(r.Steps))
	for _, s := range r.Steps {
		role, err := domain.ParseRole(s.Role)
		if err != nil {
			return err
		}
		r.steps = append(r.steps, models.TemplateStep{
			Order:  s.Order,
			Role:   role,
			Action: models.StepAction(strings.ToLower(strings.TrimSpace(s.Action))),
		})
	}
	return nil
}
