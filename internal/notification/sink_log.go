package notification

import (
	"context"
	"log/slog"
)

// LogSink writes notifications to the structured log. Used when no inbox backend is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, n Notification) error {
	s.logger.InfoContext(ctx, "notification",
		"kind", n.Kind,
		"user_id", n.UserID.String(),
		"role", string(n.Role),
		"message", n.Message,
		"entity_type", n.EntityType,
		"entity_id", n.EntityID,
		"link", n.Link,
	)
	return nil
}
