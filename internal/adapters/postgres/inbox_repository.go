package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

type inboxRepository struct {
	db *gorm.DB
}

func (r *inboxRepository) IsDuplicate(ctx context.Context, messageID string, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&caseInboxModel{}).
		Where("message_id = ? AND expires_at > ?", messageID, now).
		Count(&count).Error
	return count > 0, err
}

func (r *inboxRepository) MarkProcessed(ctx context.Context, messageID, topic string, now time.Time, ttl time.Duration) error {
	rec := caseInboxModel{
		MessageID:   messageID,
		Topic:       topic,
		ProcessedAt: now,
		ExpiresAt:   now.Add(ttl),
	}
	return r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Assign(map[string]any{
			"topic":        topic,
			"processed_at": rec.ProcessedAt,
			"expires_at":   rec.ExpiresAt,
		}).
		FirstOrCreate(&rec).Error
}

func (r *inboxRepository) PruneExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	expired := r.db.Model(&caseInboxModel{}).
		Select("message_id").
		Where("expires_at <= ?", now).
		Limit(limit)
	res := r.db.WithContext(ctx).
		Where("message_id IN (?)", expired).
		Delete(&caseInboxModel{})
	return res.RowsAffected, res.Error
}

var _ ports.InboxRepository = (*inboxRepository)(nil)
