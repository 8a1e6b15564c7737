package events

import (
	"context"
	"log/slog"
)

// NoopSink discards every event after logging it, the role the teacher's
// EventProducerFallback plays when RabbitMQ is unavailable at startup.
type NoopSink struct {
	logger *slog.Logger
}

// NewNoopSink constructs a NoopSink; logger may be nil to use slog.Default.
func NewNoopSink(logger *slog.Logger) *NoopSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopSink{logger: logger}
}

func (s *NoopSink) Publish(_ context.Context, event Event) error {
	s.logger.Warn("event publish skipped, sink unavailable", "kind", event.Kind, "entity_id", event.EntityID, "status", event.Status)
	return nil
}

func (s *NoopSink) Close() {}
