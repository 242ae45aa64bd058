package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

// ReplyWaiter holds a subscription on one reply channel and yields exactly
// one CaseResolved: the published one, or the timeout result.
type ReplyWaiter struct {
	channelID string
	sub       ports.ReplySubscription
	timer     *time.Timer
	logger    *slog.Logger

	waitOnce  sync.Once
	closeOnce sync.Once
	result    domain.CaseResolved
}

// StartReplyWaiter subscribes before returning so a publish that happens right
// after is not lost. The timeout starts counting immediately.
func StartReplyWaiter(ctx context.Context, channels ports.ReplyChannels, channelID string, timeout time.Duration, logger *slog.Logger) (*ReplyWaiter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sub, err := channels.Subscribe(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %v", domain.ErrDependencyUnavailable, channelID, err)
	}
	return &ReplyWaiter{
		channelID: channelID,
		sub:       sub,
		timer:     time.NewTimer(timeout),
		logger:    logger,
	}, nil
}

func (w *ReplyWaiter) ChannelID() string { return w.channelID }

// Wait blocks until a reply, the timeout, or ctx cancellation. Repeated calls
// return the first outcome. The subscription is released before Wait returns.
func (w *ReplyWaiter) Wait(ctx context.Context) domain.CaseResolved {
	w.waitOnce.Do(func() {
		defer w.Close()
		replies := w.sub.Replies()
		for {
			select {
			case res, ok := <-replies:
				if !ok {
					replies = nil
					continue
				}
				w.result = res
				return
			case <-w.timer.C:
				w.result = domain.TimeoutResult()
				return
			case <-ctx.Done():
				w.result = domain.TimeoutResult()
				return
			}
		}
	})
	return w.result
}

func (w *ReplyWaiter) Close() {
	w.closeOnce.Do(func() {
		w.timer.Stop()
		if err := w.sub.Unsubscribe(); err != nil {
			w.logger.Warn("reply channel unsubscribe failed",
				"module", "application.reply_waiter",
				"layer", "application",
				"operation", "unsubscribe",
				"outcome", "failure",
				"reply_channel", w.channelID,
				"error", err,
			)
		}
	})
}
