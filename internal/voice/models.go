package voice

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// AudioCache is a secure-access record for one synthesized utterance.
// Possession of the secure token is the only authorization check for
// playback. Rows are never mutated or deleted.
type AudioCache struct {
	ID             string    `gorm:"primaryKey;size:26" json:"id"`
	SessionID      string    `gorm:"type:varchar(26);index;not null" json:"session_id"`
	ConversationID string    `gorm:"type:varchar(26);index;not null" json:"conversation_id"`
	MessageID      *string   `gorm:"type:varchar(26)" json:"message_id,omitempty"`
	AudioURL       string    `gorm:"type:varchar(512);not null" json:"audio_url"`
	SecureToken    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	Text           string    `gorm:"type:text;not null" json:"text"`
	Duration       int       `json:"duration"` // seconds
	VoiceSettings  string    `gorm:"type:text" json:"voice_settings"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

func (AudioCache) TableName() string { return "audio_cache" }

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, a *AudioCache) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *Repo) GetByToken(ctx context.Context, secureToken string) (*AudioCache, error) {
	var a AudioCache
	if err := r.db.WithContext(ctx).
		Where("secure_token = ?", secureToken).
		First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) ListBySession(ctx context.Context, sessionID string) ([]AudioCache, error) {
	var out []AudioCache
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) ListByConversation(ctx context.Context, conversationID string) ([]AudioCache, error) {
	var out []AudioCache
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) ListAll(ctx context.Context, limit int) ([]AudioCache, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []AudioCache
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
