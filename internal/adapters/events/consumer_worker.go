package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

type MessageRouter interface {
	RouteMessage(ctx context.Context, msg ports.BusMessage) error
}

// ConsumerWorker feeds polled bus messages to the router. A failed message
// is logged and skipped; redelivery is left to the broker.
type ConsumerWorker struct {
	logger    *slog.Logger
	consumer  ports.BusConsumer
	router    MessageRouter
	interval  time.Duration
	batchSize int
}

func NewConsumerWorker(logger *slog.Logger, consumer ports.BusConsumer, router MessageRouter, interval time.Duration, batchSize int) *ConsumerWorker {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &ConsumerWorker{
		logger: logger, consumer: consumer, router: router, interval: interval, batchSize: batchSize,
	}
}

func (w *ConsumerWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		n, err := w.processOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "consumer iteration failed",
				"module", "events.consumer_worker",
				"layer", "adapter",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if n >= w.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *ConsumerWorker) processOnce(ctx context.Context) (int, error) {
	msgs, err := w.consumer.Poll(ctx, w.batchSize)
	for _, msg := range msgs {
		if routeErr := w.router.RouteMessage(ctx, msg); routeErr != nil {
			w.logger.WarnContext(ctx, "bus message not routed",
				"module", "events.consumer_worker",
				"layer", "adapter",
				"operation", "route",
				"outcome", "failure",
				"topic", msg.Topic,
				"partition_key", msg.Key,
				"error", routeErr,
			)
		}
	}
	return len(msgs), err
}
