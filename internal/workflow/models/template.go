package models

import (
	"slices"
	"strings"
	"time"

	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
)

// StepAction describes what a template step expects of its role.
type StepAction string

const (
	StepActionReview  StepAction = "review"
	StepActionApprove StepAction = "approve"
	StepActionSignOff StepAction = "sign_off"
)

// TemplateStep is one ordered stage of a multi-step workflow.
type TemplateStep struct {
	Order  int
	Role   domain.Role
	Action StepAction
}

// Template is an ordered list of role-addressed approval steps.
type Template struct {
	ID        domain.TemplateID
	Name      string
	Steps     []TemplateStep
	CreatedBy domain.UserID
	CreatedAt time.Time
}

// NewTemplate validates and normalizes steps into 1-based contiguous order.
func NewTemplate(id domain.TemplateID, name string, steps []TemplateStep, createdBy domain.UserID, now time.Time) (*Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "template name is required")
	}
	if len(steps) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "template must have at least one step")
	}
	sorted := slices.Clone(steps)
	slices.SortStableFunc(sorted, func(a, b TemplateStep) int { return a.Order - b.Order })
	for i := range sorted {
		if !sorted[i].Role.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "step %d has unknown role %q", i+1, sorted[i].Role)
		}
		if sorted[i].Action == "" {
			sorted[i].Action = StepActionApprove
		}
		sorted[i].Order = i + 1
	}
	return &Template{ID: id, Name: name, Steps: sorted, CreatedBy: createdBy, CreatedAt: now}, nil
}

// Step returns the step with the given order.
func (t *Template) Step(order int) (TemplateStep, bool) {
	if order < 1 || order > len(t.Steps) {
		return TemplateStep{}, false
	}
	return t.Steps[order-1], true
}

// Next returns the step after order, if any.
func (t *Template) Next(order int) (TemplateStep, bool) {
	return t.Step(order + 1)
}

func (t *Template) Clone() *Template {
	c := *t
	c.Steps = slices.Clone(t.Steps)
	return &c
}
