package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"pims/internal/workflow/models"
	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
	"pims/pkg/platform/sentinel"
	"pims/pkg/requestcontext"
)

// CreateTemplate defines a multi-step workflow template.
func (s *Service) CreateTemplate(ctx context.Context, actor domain.Actor, name string, steps []models.TemplateStep) (*models.Template, error) {
	if !actor.Can(domain.CapManageTemplates) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only administrators can define workflow templates")
	}
	tpl, err := models.NewTemplate(domain.TemplateID(uuid.New()), name, steps, actor.ID, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.templates.Create(ctx, tpl); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "template %q already exists", tpl.Name)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save template")
	}
	s.logger.InfoContext(ctx, "workflow template created",
		"template_id", tpl.ID.String(),
		"steps", len(tpl.Steps),
		"actor_id", actor.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return tpl, nil
}

func (s *Service) GetTemplate(ctx context.Context, id domain.TemplateID) (*models.Template, error) {
	return s.loadTemplate(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	out, err := s.templates.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list templates")
	}
	return out, nil
}

func (s *Service) loadTemplate(ctx context.Context, id domain.TemplateID) (*models.Template, error) {
	tpl, err := s.templates.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "workflow template not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load template")
	}
	return tpl, nil
}
