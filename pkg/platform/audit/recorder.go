package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"pims/pkg/domain"
	"pims/pkg/requestcontext"
)

// Recorder stamps entries with ID, request ID and time before appending them.
// Record failures are returned so the surrounding unit of work aborts.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record appends an entry for entityID. details may be nil.
func (r *Recorder) Record(ctx context.Context, entityType EntityType, entityID string, action Action, actor domain.UserID, details map[string]string) error {
	entry := Entry{
		ID:         domain.AuditEntryID(uuid.New()),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actor,
		Details:    details,
		RequestID:  requestcontext.RequestID(ctx),
		Timestamp:  requestcontext.Now(ctx),
	}
	if err := r.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("record %s: %w", action, err)
	}
	return nil
}

// Store exposes the underlying store for read-side queries.
func (r *Recorder) Store() Store {
	return r.store
}
