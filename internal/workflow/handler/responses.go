package handler

import (
	"errors"
	"time"

	"pims/internal/workflow/models"
	"pims/internal/workflow/service"
	dErrors "pims/pkg/domain-errors"
)

type WorkflowResponse struct {
	ID            string    `json:"id"`
	FileID        string    `json:"file_id,omitempty"`
	DocumentTitle string    `json:"document_title"`
	Status        string    `json:"status"`
	SenderID      string    `json:"sender_id"`
	ReceiverID    string    `json:"receiver_id,omitempty"`
	ReceiverRole  string    `json:"receiver_role,omitempty"`
	Comment       string    `json:"comment,omitempty"`
	TemplateID    string    `json:"template_id,omitempty"`
	CurrentStep   *int      `json:"current_step,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func FromWorkflow(w *models.DocumentWorkflow) *WorkflowResponse {
	resp := &WorkflowResponse{
		ID:            w.ID.String(),
		DocumentTitle: w.DocumentTitle,
		Status:        string(w.Status),
		SenderID:      w.SenderID.String(),
		ReceiverRole:  string(w.ReceiverRole),
		Comment:       w.Comment,
		CurrentStep:   w.CurrentStep,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
	if w.FileID != nil {
		resp.FileID = w.FileID.String()
	}
	if w.ReceiverID != nil {
		resp.ReceiverID = w.ReceiverID.String()
	}
	if w.TemplateID != nil {
		resp.TemplateID = w.TemplateID.String()
	}
	return resp
}

type WorkflowListResponse struct {
	Workflows []*WorkflowResponse `json:"workflows"`
	Count     int                 `json:"count"`
}

func FromWorkflows(ws []*models.DocumentWorkflow) *WorkflowListResponse {
	out := make([]*WorkflowResponse, 0, len(ws))
	for _, w := range ws {
		out = append(out, FromWorkflow(w))
	}
	return &WorkflowListResponse{Workflows: out, Count: len(out)}
}

type BulkItemResponse struct {
	ID               string            `json:"id"`
	OK               bool              `json:"ok"`
	Workflow         *WorkflowResponse `json:"workflow,omitempty"`
	Error            string            `json:"error,omitempty"`
	ErrorDescription string            `json:"error_description,omitempty"`
}

type BulkTransitionResponse struct {
	Results   []BulkItemResponse `json:"results"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

func FromBulk(results []service.BulkResult) *BulkTransitionResponse {
	resp := &BulkTransitionResponse{Results: make([]BulkItemResponse, 0, len(results))}
	for _, r := range results {
		item := BulkItemResponse{ID: r.ID.String()}
		if r.Err != nil {
			code := dErrors.CodeOf(r.Err)
			item.Error = string(code)
			var de *dErrors.Error
			if code != dErrors.CodeInternal && errors.As(r.Err, &de) {
				item.ErrorDescription = de.Message
			}
			resp.Failed++
		} else {
			item.OK = true
			item.Workflow = FromWorkflow(r.Workflow)
			resp.Succeeded++
		}
		resp.Results = append(resp.Results, item)
	}
	return resp
}

type TransitionsResponse struct {
	WorkflowID string   `json:"workflow_id"`
	Allowed    []string `json:"allowed"`
}

type TemplateStepResponse struct {
	Order  int    `json:"order"`
	Role   string `json:"role"`
	Action string `json:"action"`
}

type TemplateResponse struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Steps     []TemplateStepResponse `json:"steps"`
	CreatedBy string                 `json:"created_by"`
	CreatedAt time.Time              `json:"created_at"`
}

func FromTemplate(t *models.Template) *TemplateResponse {
	steps := make([]TemplateStepResponse, 0, len(t.Steps))
	for _, s := range t.Steps {
		steps = append(steps, TemplateStepResponse{Order: s.Order, Role: string(s.Role), Action: string(s.Action)})
	}
	return &TemplateResponse{
		ID:        t.ID.String(),
		Name:      t.Name,
		Steps:     steps,
		CreatedBy: t.CreatedBy.String(),
		CreatedAt: t.CreatedAt,
	}
}
