package events

import (
	"context"
	"log/slog"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

// LoggingPublisher wraps another publisher and records every publish
// attempt with its outcome.
type LoggingPublisher struct {
	next   ports.BusPublisher
	logger *slog.Logger
}

func NewLoggingPublisher(next ports.BusPublisher, logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{next: next, logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, topic string, payload []byte, partitionKey string) error {
	err := p.next.Publish(ctx, topic, payload, partitionKey)
	if err != nil {
		p.logger.WarnContext(ctx, "bus publish failed",
			"module", "events.publisher",
			"layer", "adapter",
			"operation", "publish",
			"outcome", "failure",
			"topic", topic,
			"partition_key", partitionKey,
			"payload_bytes", len(payload),
			"error", err,
		)
		return err
	}
	p.logger.DebugContext(ctx, "bus message published",
		"module", "events.publisher",
		"layer", "adapter",
		"operation", "publish",
		"outcome", "success",
		"topic", topic,
		"partition_key", partitionKey,
		"payload_bytes", len(payload),
	)
	return nil
}
