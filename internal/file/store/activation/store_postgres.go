package activation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"pims/internal/file/models"
	"pims/internal/platform/postgres"
	"pims/pkg/domain"
	"pims/pkg/platform/sentinel"
	txcontext "pims/pkg/platform/tx"
)

// PostgresStore persists activation requests. A partial unique index keeps
// one pending request per file.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `id, file_id, requestor_id, reason, status, processed_by, processed_at, rejection_reason, created_at`

func (s *PostgresStore) Create(ctx context.Context, r *models.ActivationRequest) error {
	_, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx,
		`INSERT INTO activation_requests (`+requestColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(r.ID), uuid.UUID(r.FileID), uuid.UUID(r.RequestorID), r.Reason, string(r.Status),
		postgres.NullUser(r.ProcessedBy), r.ProcessedAt, r.RejectionReason, r.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert activation request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.ActivationRequestID) (*models.ActivationRequest, error) {
	return s.findOne(ctx, `SELECT `+requestColumns+` FROM activation_requests WHERE id = $1`, uuid.UUID(id))
}

// FindByIDForUpdate locks the request row; the second of two concurrent
// approvals blocks here and then observes the first one's decision.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, id domain.ActivationRequestID) (*models.ActivationRequest, error) {
	return s.findOne(ctx, `SELECT `+requestColumns+` FROM activation_requests WHERE id = $1 FOR UPDATE`, uuid.UUID(id))
}

func (s *PostgresStore) FindPendingByFile(ctx context.Context, fileID domain.FileID) (*models.ActivationRequest, error) {
	return s.findOne(ctx,
		`SELECT `+requestColumns+` FROM activation_requests WHERE file_id = $1 AND status = 'pending'`,
		uuid.UUID(fileID))
}

func (s *PostgresStore) findOne(ctx context.Context, query string, args ...any) (*models.ActivationRequest, error) {
	r, err := scanRequest(txcontext.Resolve(ctx, s.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find activation request: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Update(ctx context.Context, r *models.ActivationRequest) error {
	res, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, `
		UPDATE activation_requests
		SET status = $2, processed_by = $3, processed_at = $4, rejection_reason = $5
		WHERE id = $1
	`, uuid.UUID(r.ID), string(r.Status), postgres.NullUser(r.ProcessedBy), r.ProcessedAt, r.RejectionReason)
	if err != nil {
		return fmt.Errorf("update activation request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.RequestStatus) ([]*models.ActivationRequest, error) {
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx,
		`SELECT `+requestColumns+` FROM activation_requests WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list activation requests: %w", err)
	}
	defer rows.Close()
	var out []*models.ActivationRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activation request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequest(row interface{ Scan(...any) error }) (*models.ActivationRequest, error) {
	var (
		r                     models.ActivationRequest
		id, fileID, requestor uuid.UUID
		status                string
		processedBy           uuid.NullUUID
		processedAt           sql.NullTime
	)
	if err := row.Scan(&id, &fileID, &requestor, &r.Reason, &status, &processedBy, &processedAt, &r.RejectionReason, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ID = domain.ActivationRequestID(id)
	r.FileID = domain.FileID(fileID)
	r.RequestorID = domain.UserID(requestor)
	r.Status = models.RequestStatus(status)
	r.ProcessedBy = postgres.UserPtr(processedBy)
	r.ProcessedAt = postgres.TimePtr(processedAt)
	return &r, nil
}
