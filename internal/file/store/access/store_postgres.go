package access

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

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const accessColumns = `id, file_id, requester_id, access_type, reason, status, processed_by, approved_at, expires_at, created_at`

func (s *PostgresStore) Create(ctx context.Context, r *models.AccessRequest) error {
	_, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx,
		`INSERT INTO access_requests (`+accessColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.UUID(r.ID), uuid.UUID(r.FileID), uuid.UUID(r.RequesterID), string(r.AccessType), r.Reason,
		string(r.Status), postgres.NullUser(r.ProcessedBy), r.ApprovedAt, r.ExpiresAt, r.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert access request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.AccessRequestID) (*models.AccessRequest, error) {
	return s.findOne(ctx, `SELECT `+accessColumns+` FROM access_requests WHERE id = $1`, uuid.UUID(id))
}

func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, id domain.AccessRequestID) (*models.AccessRequest, error) {
	return s.findOne(ctx, `SELECT `+accessColumns+` FROM access_requests WHERE id = $1 FOR UPDATE`, uuid.UUID(id))
}

func (s *PostgresStore) findOne(ctx context.Context, query string, args ...any) (*models.AccessRequest, error) {
	r, err := scanAccess(txcontext.Resolve(ctx, s.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find access request: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Update(ctx context.Context, r *models.AccessRequest) error {
	res, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, `
		UPDATE access_requests
		SET status = $2, processed_by = $3, approved_at = $4, expires_at = $5
		WHERE id = $1
	`, uuid.UUID(r.ID), string(r.Status), postgres.NullUser(r.ProcessedBy), r.ApprovedAt, r.ExpiresAt)
	if err != nil {
		return fmt.Errorf("update access request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByFileAndRequester(ctx context.Context, fileID domain.FileID, requester domain.UserID) ([]*models.AccessRequest, error) {
	return s.list(ctx, `SELECT `+accessColumns+` FROM access_requests
		WHERE file_id = $1 AND requester_id = $2 ORDER BY created_at DESC`,
		uuid.UUID(fileID), uuid.UUID(requester))
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.RequestStatus) ([]*models.AccessRequest, error) {
	return s.list(ctx, `SELECT `+accessColumns+` FROM access_requests WHERE status = $1 ORDER BY created_at DESC`, string(status))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.AccessRequest, error) {
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	defer rows.Close()
	var out []*models.AccessRequest
	for rows.Next() {
		r, err := scanAccess(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanAccess(row interface{ Scan(...any) error }) (*models.AccessRequest, error) {
	var (
		r                     models.AccessRequest
		id, fileID, requester uuid.UUID
		accessType, status    string
		processedBy           uuid.NullUUID
		approvedAt, expiresAt sql.NullTime
	)
	if err := row.Scan(&id, &fileID, &requester, &accessType, &r.Reason, &status, &processedBy, &approvedAt, &expiresAt, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ID = domain.AccessRequestID(id)
	r.FileID = domain.FileID(fileID)
	r.RequesterID = domain.UserID(requester)
	r.AccessType = models.AccessType(accessType)
	r.Status = models.RequestStatus(status)
	r.ProcessedBy = postgres.UserPtr(processedBy)
	r.ApprovedAt = postgres.TimePtr(approvedAt)
	r.ExpiresAt = postgres.TimePtr(expiresAt)
	return &r, nil
}
