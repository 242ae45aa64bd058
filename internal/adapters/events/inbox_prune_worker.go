package events

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type InboxPruner interface {
	PruneExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

// InboxPruneWorker removes inbox dedup markers whose retention has passed.
type InboxPruneWorker struct {
	logger    *slog.Logger
	inbox     InboxPruner
	interval  time.Duration
	batchSize int
	nowFn     func() time.Time
}

func NewInboxPruneWorker(logger *slog.Logger, inbox InboxPruner, interval time.Duration, batchSize int) *InboxPruneWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &InboxPruneWorker{
		logger: logger, inbox: inbox, interval: interval, batchSize: batchSize,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (w *InboxPruneWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if err := w.processOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "inbox prune iteration failed",
				"module", "events.inbox_prune_worker",
				"layer", "adapter",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *InboxPruneWorker) processOnce(ctx context.Context) error {
	removed, err := w.inbox.PruneExpired(ctx, w.nowFn(), w.batchSize)
	if err != nil {
		return err
	}
	if removed > 0 {
		w.logger.DebugContext(ctx, "inbox pruned",
			"module", "events.inbox_prune_worker",
			"layer", "adapter",
			"operation", "prune",
			"outcome", "success",
			"removed", removed,
		)
	}
	return nil
}
