package enrich

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// WebhookLog is the audit record of one enrichment attempt. Exactly one
// row is written per call, success or failure; rows are never mutated.
type WebhookLog struct {
	ID             string    `gorm:"primaryKey;size:26" json:"id"`
	SessionID      string    `gorm:"type:varchar(26);index" json:"session_id"`
	ConversationID string    `gorm:"type:varchar(26);index" json:"conversation_id"`
	RequestData    string    `gorm:"type:text;not null" json:"request_data"`
	ResponseData   string    `gorm:"type:text" json:"response_data"`
	Status         string    `gorm:"type:varchar(16);not null" json:"status"` // "success" | "error"
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

func (WebhookLog) TableName() string { return "webhook_logs" }

type LogRepo struct {
	db *gorm.DB
}

func NewLogRepo(db *gorm.DB) *LogRepo {
	return &LogRepo{db: db}
}

func (r *LogRepo) Create(ctx context.Context, l *WebhookLog) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LogRepo) List(ctx context.Context, limit int) ([]WebhookLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var logs []WebhookLog
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
