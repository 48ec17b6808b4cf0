package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"pims/pkg/domain"
	audit "pims/pkg/platform/audit"
	"pims/pkg/platform/sentinel"
	txcontext "pims/pkg/platform/tx"
)

// Store implements audit.Store on the audit_entries table and writes an
// outbox row for every entry in the same transaction. The outbox relay
// publishes those rows to Kafka.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON document published to Kafka.
type outboxPayload struct {
	ID         string            `json:"id"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Action     string            `json:"action"`
	ActorID    string            `json:"actor_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Timestamp  string            `json:"timestamp"`
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	if uuid.UUID(entry.ID) == uuid.Nil {
		entry.ID = domain.AuditEntryID(uuid.New())
	}
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	var actor uuid.NullUUID
	if !entry.ActorID.IsNil() {
		actor = uuid.NullUUID{UUID: uuid.UUID(entry.ActorID), Valid: true}
	}

	exec := txcontext.Resolve(ctx, s.db)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_entries (id, entity_type, entity_id, action, actor_id, details, request_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.UUID(entry.ID), string(entry.EntityType), entry.EntityID, string(entry.Action),
		actor, details, entry.RequestID, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload := outboxPayload{
		ID:         entry.ID.String(),
		EntityType: string(entry.EntityType),
		EntityID:   entry.EntityID,
		Action:     string(entry.Action),
		Details:    entry.Details,
		RequestID:  entry.RequestID,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
	}
	if actor.Valid {
		payload.ActorID = actor.UUID.String()
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), string(entry.EntityType), entry.EntityID, string(entry.Action), payloadBytes, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

const selectEntry = `
	SELECT id, entity_type, entity_id, action, actor_id, details, request_id, occurred_at
	FROM audit_entries`

func (s *Store) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error) {
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx,
		selectEntry+` WHERE entity_type = $1 AND entity_id = $2 ORDER BY occurred_at, seq`,
		string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

func (s *Store) LatestByActions(ctx context.Context, entityType audit.EntityType, entityID string, actions ...audit.Action) (*audit.Entry, error) {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	row := txcontext.Resolve(ctx, s.db).QueryRowContext(ctx,
		selectEntry+` WHERE entity_type = $1 AND entity_id = $2 AND action = ANY($3)
		ORDER BY occurred_at DESC, seq DESC LIMIT 1`,
		string(entityType), entityID, pq.Array(names))
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("latest audit entry: %w", err)
	}
	return entry, nil
}

func (s *Store) Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.ActorID != nil {
		add("actor_id = $%d", uuid.UUID(*filter.ActorID))
	}
	if filter.EntityType != "" {
		add("entity_type = $%d", string(filter.EntityType))
	}
	if filter.EntityID != "" {
		add("entity_id = $%d", filter.EntityID)
	}
	if len(filter.Actions) > 0 {
		names := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			names[i] = string(a)
		}
		add("action = ANY($%d)", pq.Array(names))
	}
	if !filter.From.IsZero() {
		add("occurred_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("occurred_at < $%d", filter.To)
	}

	query := selectEntry
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, seq DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

func scanEntry(row interface{ Scan(...any) error }) (*audit.Entry, error) {
	var (
		entry      audit.Entry
		id         uuid.UUID
		entityType string
		action     string
		actor      uuid.NullUUID
		details    []byte
	)
	if err := row.Scan(&id, &entityType, &entry.EntityID, &action, &actor, &details, &entry.RequestID, &entry.Timestamp); err != nil {
		return nil, err
	}
	entry.ID = domain.AuditEntryID(id)
	entry.EntityType = audit.EntityType(entityType)
	entry.Action = audit.Action(action)
	if actor.Valid {
		entry.ActorID = domain.UserID(actor.UUID)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &entry.Details); err != nil {
			return nil, fmt.Errorf("unmarshal audit details: %w", err)
		}
	}
	return &entry, nil
}
