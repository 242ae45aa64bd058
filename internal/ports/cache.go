package ports

import (
	"context"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
)

// ReplyChannels is the ephemeral pub/sub used to hand a resolution back to
// the waiting caller. Nothing published to a channel without subscribers is
// retained.
type ReplyChannels interface {
	Subscribe(ctx context.Context, channelID string) (ReplySubscription, error)
	Publish(ctx context.Context, channelID string, result domain.CaseResolved) error
}

type ReplySubscription interface {
	Replies() <-chan domain.CaseResolved
	Unsubscribe() error
}
