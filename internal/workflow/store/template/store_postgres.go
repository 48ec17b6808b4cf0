package template

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"pims/internal/platform/postgres"
	"pims/internal/workflow/models"
	"pims/pkg/domain"
	"pims/pkg/platform/sentinel"
	txcontext "pims/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts the template and its steps in one transaction.
func (s *PostgresStore) Create(ctx context.Context, t *models.Template) error {
	return txcontext.RunInTx(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.Resolve(ctx, s.db)
		_, err := exec.ExecContext(ctx,
			`INSERT INTO workflow_templates (id, name, created_by, created_at) VALUES ($1, $2, $3, $4)`,
			uuid.UUID(t.ID), t.Name, uuid.UUID(t.CreatedBy), t.CreatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert template: %w", err)
		}
		for _, step := range t.Steps {
			_, err := exec.ExecContext(ctx,
				`INSERT INTO workflow_template_steps (template_id, step_order, role, action) VALUES ($1, $2, $3, $4)`,
				uuid.UUID(t.ID), step.Order, string(step.Role), string(step.Action))
			if err != nil {
				return fmt.Errorf("insert template step %d: %w", step.Order, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.TemplateID) (*models.Template, error) {
	exec := txcontext.Resolve(ctx, s.db)
	var (
		t         models.Template
		createdBy uuid.UUID
	)
	err := exec.QueryRowContext(ctx,
		`SELECT name, created_by, created_at FROM workflow_templates WHERE id = $1`, uuid.UUID(id),
	).Scan(&t.Name, &createdBy, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find template: %w", err)
	}
	t.ID = id
	t.CreatedBy = domain.UserID(createdBy)
	steps, err := s.steps(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Steps = steps
	return &t, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Template, error) {
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx,
		`SELECT id FROM workflow_templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	var ids []domain.TemplateID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan template id: %w", err)
		}
		ids = append(ids, domain.TemplateID(id))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}

	out := make([]*models.Template, 0, len(ids))
	for _, id := range ids {
		t, err := s.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *PostgresStore) steps(ctx context.Context, id domain.TemplateID) ([]models.TemplateStep, error) {
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx,
		`SELECT step_order, role, action FROM workflow_template_steps WHERE template_id = $1 ORDER BY step_order`,
		uuid.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("list template steps: %w", err)
	}
	defer rows.Close()

	var steps []models.TemplateStep
	for rows.Next() {
		var (
			step         models.TemplateStep
			role, action string
		)
		if err := rows.Scan(&step.Order, &role, &action); err != nil {
			return nil, fmt.Errorf("scan template step: %w", err)
		}
		step.Role = domain.Role(role)
		step.Action = models.StepAction(action)
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate template steps: %w", err)
	}
	return steps, nil
}
