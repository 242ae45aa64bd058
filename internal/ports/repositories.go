package ports

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
)

// CaseEventLog is the durable, append-only per-case event stream.
type CaseEventLog interface {
	Append(ctx context.Context, event domain.CaseEvent) error
	Replay(ctx context.Context, caseID string) ([]domain.CaseEvent, error)
}

type InboxRepository interface {
	IsDuplicate(ctx context.Context, messageID string, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, messageID, topic string, now time.Time, ttl time.Duration) error
}
