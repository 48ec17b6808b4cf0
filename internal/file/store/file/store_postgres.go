package file

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"pims/internal/file/models"
	"pims/internal/platform/postgres"
	"pims/pkg/domain"
	"pims/pkg/platform/sentinel"
	txcontext "pims/pkg/platform/tx"
)

// PostgresStore persists files. Uniqueness of file numbers and personal
// owners is enforced by the schema and surfaced as sentinel.ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const fileColumns = `id, file_number, title, category, sub_type, status, owner_id, department_code,
	external_party, custodian_id, created_by, second_level_auth, archive_directive, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, f *models.File) error {
	query := `INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(f.ID), f.FileNumber, f.Title, string(f.Category), f.SubType, string(f.Status),
		postgres.NullUser(f.OwnerID), postgres.NullString(f.DepartmentCode), postgres.NullString(f.ExternalParty),
		postgres.NullUser(f.CustodianID), uuid.UUID(f.CreatedBy), f.SecondLevelAuth, f.ArchiveDirective,
		f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.FileID) (*models.File, error) {
	return s.findOne(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, uuid.UUID(id))
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, id domain.FileID) (*models.File, error) {
	return s.findOne(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1 FOR UPDATE`, uuid.UUID(id))
}

func (s *PostgresStore) FindByNumber(ctx context.Context, number string) (*models.File, error) {
	return s.findOne(ctx, `SELECT `+fileColumns+` FROM files WHERE file_number = $1`, number)
}

func (s *PostgresStore) FindPersonalByOwner(ctx context.Context, owner domain.UserID) (*models.File, error) {
	return s.findOne(ctx, `SELECT `+fileColumns+` FROM files WHERE category = 'personal' AND owner_id = $1`, uuid.UUID(owner))
}

func (s *PostgresStore) findOne(ctx context.Context, query string, args ...any) (*models.File, error) {
	f, err := scanFile(txcontext.Resolve(ctx, s.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find file: %w", err)
	}
	return f, nil
}

// Update writes mutable columns. file_number is never rewritten.
func (s *PostgresStore) Update(ctx context.Context, f *models.File) error {
	query := `
		UPDATE files SET
			title = $2, status = $3, custodian_id = $4, second_level_auth = $5,
			archive_directive = $6, updated_at = $7
		WHERE id = $1
	`
	res, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(f.ID), f.Title, string(f.Status), postgres.NullUser(f.CustodianID), f.SecondLevelAuth,
		f.ArchiveDirective, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update file rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]*models.File, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Status != nil {
		where = append(where, "status = "+arg(string(*filter.Status)))
	} else if !filter.IncludeArchived {
		where = append(where, "status <> "+arg(string(models.StatusArchived)))
	}
	if filter.Category != nil {
		where = append(where, "category = "+arg(string(*filter.Category)))
	}
	if filter.CustodianID != nil {
		where = append(where, "custodian_id = "+arg(uuid.UUID(*filter.CustodianID)))
	}
	query := `SELECT ` + fileColumns + ` FROM files`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, file_number`

	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return out, nil
}

func scanFile(row interface{ Scan(...any) error }) (*models.File, error) {
	var (
		f                         models.File
		id, createdBy             uuid.UUID
		category, status          string
		owner, custodian          uuid.NullUUID
		department, externalParty sql.NullString
	)
	err := row.Scan(&id, &f.FileNumber, &f.Title, &category, &f.SubType, &status, &owner, &department,
		&externalParty, &custodian, &createdBy, &f.SecondLevelAuth, &f.ArchiveDirective, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.ID = domain.FileID(id)
	f.CreatedBy = domain.UserID(createdBy)
	f.Category = domain.FileCategory(category)
	f.Status = models.Status(status)
	f.OwnerID = postgres.UserPtr(owner)
	f.CustodianID = postgres.UserPtr(custodian)
	f.DepartmentCode = department.String
	f.ExternalParty = externalParty.String
	return &f, nil
}
