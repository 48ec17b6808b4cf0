package workflow

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

const workflowColumns = `id, file_id, document_title, status, sender_id, receiver_id, receiver_role,
	comment, template_id, current_step, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, w *models.DocumentWorkflow) error {
	query := `INSERT INTO document_workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(w.ID), nullFile(w.FileID), w.DocumentTitle, string(w.Status), uuid.UUID(w.SenderID),
		postgres.NullUser(w.ReceiverID), postgres.NullString(string(w.ReceiverRole)), w.Comment,
		nullTemplate(w.TemplateID), nullStep(w.CurrentStep), w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.WorkflowID) (*models.DocumentWorkflow, error) {
	return s.findOne(ctx, `SELECT `+workflowColumns+` FROM document_workflows WHERE id = $1`, uuid.UUID(id))
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, id domain.WorkflowID) (*models.DocumentWorkflow, error) {
	return s.findOne(ctx, `SELECT `+workflowColumns+` FROM document_workflows WHERE id = $1 FOR UPDATE`, uuid.UUID(id))
}

func (s *PostgresStore) findOne(ctx context.Context, query string, args ...any) (*models.DocumentWorkflow, error) {
	w, err := scanWorkflow(txcontext.Resolve(ctx, s.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find workflow: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) Update(ctx context.Context, w *models.DocumentWorkflow) error {
	query := `
		UPDATE document_workflows SET
			status = $2, receiver_id = $3, receiver_role = $4, comment = $5,
			current_step = $6, updated_at = $7
		WHERE id = $1
	`
	res, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(w.ID), string(w.Status), postgres.NullUser(w.ReceiverID),
		postgres.NullString(string(w.ReceiverRole)), w.Comment, nullStep(w.CurrentStep), w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update workflow rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListInbox(ctx context.Context, actor domain.Actor) ([]*models.DocumentWorkflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM document_workflows
		WHERE status NOT IN ('approved', 'rejected', 'archived')
		  AND (receiver_id = $1 OR (receiver_id IS NULL AND receiver_role = $2))
		ORDER BY created_at DESC`
	return s.list(ctx, query, uuid.UUID(actor.ID), string(actor.Role))
}

func (s *PostgresStore) ListBySender(ctx context.Context, sender domain.UserID) ([]*models.DocumentWorkflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM document_workflows WHERE sender_id = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, uuid.UUID(sender))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.DocumentWorkflow, error) {
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []*models.DocumentWorkflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return out, nil
}

func scanWorkflow(row interface{ Scan(...any) error }) (*models.DocumentWorkflow, error) {
	var (
		w                     models.DocumentWorkflow
		id, sender            uuid.UUID
		status                string
		fileID, receiver, tpl uuid.NullUUID
		receiverRole          sql.NullString
		step                  sql.NullInt32
	)
	err := row.Scan(&id, &fileID, &w.DocumentTitle, &status, &sender, &receiver, &receiverRole,
		&w.Comment, &tpl, &step, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.ID = domain.WorkflowID(id)
	w.SenderID = domain.UserID(sender)
	w.Status = models.Status(status)
	w.ReceiverID = postgres.UserPtr(receiver)
	w.ReceiverRole = domain.Role(receiverRole.String)
	if fileID.Valid {
		f := domain.FileID(fileID.UUID)
		w.FileID = &f
	}
	if tpl.Valid {
		t := domain.TemplateID(tpl.UUID)
		w.TemplateID = &t
	}
	if step.Valid {
		n := int(step.Int32)
		w.CurrentStep = &n
	}
	return &w, nil
}

func nullFile(id *domain.FileID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*id), Valid: true}
}

func nullTemplate(id *domain.TemplateID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*id), Valid: true}
}

func nullStep(step *int) sql.NullInt32 {
	if step == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*step), Valid: true}
}
