package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
)

// CaseEventStore is the event log plus the listing used by offline replay.
type CaseEventStore interface {
	Append(ctx context.Context, event domain.CaseEvent) error
	Replay(ctx context.Context, caseID string) ([]domain.CaseEvent, error)
	CaseIDs(ctx context.Context) ([]string, error)
}

// InboxStore is the dedup inbox plus retention pruning.
type InboxStore interface {
	IsDuplicate(ctx context.Context, messageID string, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, messageID, topic string, now time.Time, ttl time.Duration) error
	PruneExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

type Repositories struct {
	Events CaseEventStore
	Inbox  InboxStore
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Events: &caseEventRepository{db: db},
		Inbox:  &inboxRepository{db: db},
	}
}
