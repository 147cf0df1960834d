package session

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/aurumlabs/tokenchat/internal/models"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) GetByFingerprint(ctx context.Context, fingerprint string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) GetByCookieToken(ctx context.Context, cookieToken string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("cookie_token = ?", cookieToken).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// Update applies fields and bumps last_seen, then returns the fresh row.
func (r *Repo) Update(ctx context.Context, id string, fields map[string]any) (*Session, error) {
	fields["last_seen"] = time.Now()
	if err := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Updates(fields).Error; err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *Repo) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// LatestWindow returns the most recent rate-limit window for a session,
// expired or not, or gorm.ErrRecordNotFound.
func (r *Repo) LatestWindow(ctx context.Context, sessionID string) (*RateLimitWindow, error) {
	var w RateLimitWindow
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("period_end DESC").
		First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repo) CreateWindow(ctx context.Context, w *RateLimitWindow) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *Repo) AddMessagesUsed(ctx context.Context, windowID string, amount int) error {
	return r.db.WithContext(ctx).Model(&RateLimitWindow{}).
		Where("id = ?", windowID).
		Update("messages_used", gorm.Expr("messages_used + ?", amount)).Error
}

func (r *Repo) AddVoiceMinutesUsed(ctx context.Context, windowID string, amount int) error {
	return r.db.WithContext(ctx).Model(&RateLimitWindow{}).
		Where("id = ?", windowID).
		Update("voice_minutes_used", gorm.Expr("voice_minutes_used + ?", amount)).Error
}
