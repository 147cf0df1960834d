package chat

import "time"

// Conversation is a thread of messages owned by exactly one session.
type Conversation struct {
	ID            string     `gorm:"primaryKey;size:26" json:"id"`
	SessionID     string     `gorm:"type:varchar(26);index;not null" json:"session_id"`
	Title         string     `gorm:"type:varchar(128)" json:"title"`
	Summary       *string    `gorm:"type:text" json:"summary,omitempty"`
	LastSummaryAt *time.Time `json:"last_summary_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

// Message is one immutable turn. An error-path "message" is simply an
// assistant message with apologetic content.
type Message struct {
	ID             string    `gorm:"primaryKey;size:26" json:"id"`
	ConversationID string    `gorm:"type:varchar(26);index;not null" json:"conversation_id"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"` // "user" | "assistant"
	Content        string    `gorm:"type:text;not null" json:"content"`
	IsImage        bool      `gorm:"not null;default:false" json:"is_image"`
	ImageURL       *string   `gorm:"type:varchar(512)" json:"image_url,omitempty"`
	AudioURL       *string   `gorm:"type:varchar(512)" json:"audio_url,omitempty"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

func (Message) TableName() string { return "messages" }
