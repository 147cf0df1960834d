package session

import "time"

// Session is one distinguishable caller. Callers are anonymous by
// default; identity is a fingerprint hash plus a sliding-expiry cookie.
type Session struct {
	ID            string     `gorm:"primaryKey;size:26" json:"id"`
	Fingerprint   string     `gorm:"type:varchar(64);index;not null" json:"-"`
	WalletAddress *string    `gorm:"type:varchar(64);index" json:"wallet_address"`
	TokenBalance  float64    `gorm:"not null;default:0" json:"token_balance"`
	Tier          string     `gorm:"type:varchar(16);not null;default:'Free Trial'" json:"tier"`
	UserID        *string    `gorm:"type:varchar(26);index" json:"-"`
	MemoryBank    *string    `gorm:"type:text" json:"-"`
	CookieToken   *string    `gorm:"type:varchar(128);uniqueIndex" json:"-"`
	CookieExpiry  *time.Time `json:"-"`
	LastSeen      time.Time  `json:"last_seen"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (Session) TableName() string { return "sessions" }

// RateLimitWindow is the active quota accounting period for one session.
// Both resource axes share one row; an expired row is superseded by a
// fresh one, never partially reset.
type RateLimitWindow struct {
	ID               string    `gorm:"primaryKey;size:26" json:"id"`
	SessionID        string    `gorm:"type:varchar(26);index;not null" json:"session_id"`
	PeriodStart      time.Time `gorm:"not null" json:"period_start"`
	PeriodEnd        time.Time `gorm:"index;not null" json:"period_end"`
	MessagesUsed     int       `gorm:"not null;default:0" json:"messages_used"`
	VoiceMinutesUsed int       `gorm:"not null;default:0" json:"voice_minutes_used"`
}

func (RateLimitWindow) TableName() string { return "rate_limit_windows" }
