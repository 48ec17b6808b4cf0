package service

import (
	"context"
	"errors"

	"pims/internal/file/models"
	"pims/pkg/domain"
	dErrors "pims/pkg/domain-errors"
	"pims/pkg/platform/sentinel"
)

func (s *Service) Get(ctx context.Context, id domain.FileID) (*models.File, error) {
	return s.loadFile(ctx, id, false)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*models.File, error) {
	f, err := s.files.FindByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "file not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load file")
	}
	return f, nil
}

// List returns files matching filter. Archived files are left out unless
// the filter asks for them or targets the archived status.
func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.File, error) {
	files, err := s.files.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list files")
	}
	return files, nil
}

// ListActivationRequests returns activation requests in status.
func (s *Service) ListActivationRequests(ctx context.Context, actor domain.Actor, status models.RequestStatus) ([]*models.ActivationRequest, error) {
	all, err := s.activations.ListByStatus(ctx, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list activation requests")
	}
	if actor.Can(domain.CapManageFiles) {
		return all, nil
	}
	out := make([]*models.ActivationRequest, 0, len(all))
	for _, r := range all {
		if r.RequestorID == actor.ID {
			out = append(out, r)
		}
	}
	return out, nil
}
