package store

import (
	"context"
	"database/sql"
	"fmt"

	"pims/internal/numbering"
	txcontext "pims/pkg/platform/tx"
)

// PostgresCounterStore increments counter rows with a single upsert. The row
// lock taken by the upsert is held until the caller's transaction ends, so
// concurrent creators in the same bucket queue behind each other.
type PostgresCounterStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresCounterStore {
	return &PostgresCounterStore{db: db}
}

func (s *PostgresCounterStore) Next(ctx context.Context, key numbering.CounterKey) (int, error) {
	query := `
		INSERT INTO file_number_counters (year, category, code, last_serial)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (year, category, code) DO UPDATE SET
			last_serial = file_number_counters.last_serial + 1
		RETURNING last_serial
	`
	var serial int
	err := txcontext.Resolve(ctx, s.db).QueryRowContext(ctx, query, key.Year, string(key.Category), key.Code).Scan(&serial)
	if err != nil {
		return 0, fmt.Errorf("next file number serial: %w", err)
	}
	return serial, nil
}
