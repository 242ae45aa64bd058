package postgres

import "time"

type caseEventModel struct {
	EventID    string    `gorm:"column:event_id;primaryKey"`
	CaseID     string    `gorm:"column:case_id"`
	Seq        int64     `gorm:"column:seq"`
	EventType  string    `gorm:"column:event_type"`
	OccurredAt time.Time `gorm:"column:occurred_at"`
}

func (caseEventModel) TableName() string { return "case_events" }

type caseInboxModel struct {
	MessageID   string    `gorm:"column:message_id;primaryKey"`
	Topic       string    `gorm:"column:topic"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (caseInboxModel) TableName() string { return "case_inbox" }
