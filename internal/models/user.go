package models

import "time"

// User is an administrative account. Regular chat callers never get a
// user row; they are tracked as sessions.
type User struct {
	ID           string    `gorm:"primaryKey;size:26" json:"id"`
	Username     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"type:varchar(128);not null" json:"-"`
	IsAdmin      bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

func (User) TableName() string { return "users" }
