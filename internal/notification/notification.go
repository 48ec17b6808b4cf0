// Package notification delivers best-effort user notifications after a state
// change has committed. Delivery failures are logged and never returned.
package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pims/pkg/domain"
	"pims/pkg/requestcontext"
)

// Notification is a message for one user, or for every holder of Role when UserID is nil.
type Notification struct {
	ID         string        `json:"id"`
	UserID     domain.UserID `json:"user_id"`
	Role       domain.Role   `json:"role,omitempty"`
	Kind       string        `json:"kind"`
	Message    string        `json:"message"`
	EntityType string        `json:"entity_type,omitempty"`
	EntityID   string        `json:"entity_id,omitempty"`
	Link       string        `json:"link,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	// Read is set when an inbox is read back, per reader.
	Read bool `json:"read"`
}

func (n Notification) withID() Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return n
}

// CountUnread returns how many of notes the reader has not marked read.
func CountUnread(notes []Notification) int {
	unread := 0
	for _, n := range notes {
		if !n.Read {
			unread++
		}
	}
	return unread
}

// Sink delivers one notification.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Notifier fans notifications out to a sink.
type Notifier struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration
}

type Option func(*Notifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// WithTimeout bounds each delivery.
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

func NewNotifier(sink Sink, opts ...Option) *Notifier {
	n := &Notifier{sink: sink, logger: slog.Default(), timeout: 2 * time.Second}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Send delivers each notification. Call it only after the unit of work committed.
// Delivery runs detached from the request's cancellation.
func (n *Notifier) Send(ctx context.Context, notes ...Notification) {
	if n == nil || n.sink == nil {
		return
	}
	now := requestcontext.Now(ctx)
	base := context.WithoutCancel(ctx)
	for _, note := range notes {
		if note.CreatedAt.IsZero() {
			note.CreatedAt = now
		}
		dctx, cancel := context.WithTimeout(base, n.timeout)
		err := n.sink.Notify(dctx, note)
		cancel()
		if err != nil {
			n.logger.WarnContext(ctx, "notification delivery failed",
				"kind", note.Kind,
				"user_id", note.UserID.String(),
				"entity_id", note.EntityID,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
}
