// Package outbox relays committed audit entries from the outbox table to the
// message broker. Delivery is at-least-once: a row is marked published only
// after the broker acknowledged it.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pims/pkg/requestcontext"
)

// Message is one unpublished outbox row.
type Message struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Store reads and acknowledges outbox rows.
type Store interface {
	// ClaimUnpublished locks up to limit unpublished rows for the duration of fn.
	ClaimUnpublished(ctx context.Context, limit int, fn func(ctx context.Context, msgs []Message) error) error
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Publisher delivers messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, msgs []Message) error
}

type Relay struct {
	store     Store
	publisher Publisher
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func NewRelay(store Store, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		batchSize: 100,
		interval:  time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. Batch failures are logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := r.ProcessBatch(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "outbox relay batch failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.DebugContext(ctx, "outbox relay published", "count", n)
			}
		}
	}
}

// ProcessBatch publishes one batch and returns how many rows were acknowledged.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	published := 0
	err := r.store.ClaimUnpublished(ctx, r.batchSize, func(ctx context.Context, msgs []Message) error {
		if len(msgs) == 0 {
			return nil
		}
		if err := r.publisher.Publish(ctx, msgs); err != nil {
			return fmt.Errorf("publish outbox batch: %w", err)
		}
		ids := make([]uuid.UUID, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		if err := r.store.MarkPublished(ctx, ids, requestcontext.Now(ctx)); err != nil {
			return fmt.Errorf("mark outbox published: %w", err)
		}
		published = len(msgs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}
