package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/aurumlabs/tokenchat/internal/common"
	"github.com/aurumlabs/tokenchat/internal/tier"
)

// Resource is one independently tracked quota axis.
type Resource string

const (
	ResourceMessages     Resource = "messages"
	ResourceVoiceMinutes Resource = "voice_minutes"
)

const adminUnlimited = 999999

// Result is the outcome of a quota check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetTime time.Time `json:"reset_time"`
}

// Limiter tracks per-session usage within a rolling window. The window
// row is created on the first check, so the period boundary is anchored
// to first-check time rather than first-increment time.
type Limiter struct {
	repo *Repo
}

func NewLimiter(repo *Repo) *Limiter {
	return &Limiter{repo: repo}
}

// Check reports whether amount more units of resource fit in the current
// window. Admin-linked sessions are never limited.
func (l *Limiter) Check(ctx context.Context, s *Session, resource Resource, amount int) (Result, error) {
	if admin, err := l.isAdmin(ctx, s); err != nil {
		return Result{}, err
	} else if admin {
		return Result{
			Allowed:   true,
			Remaining: adminUnlimited,
			Limit:     adminUnlimited,
			ResetTime: time.Now().Add(365 * 24 * time.Hour),
		}, nil
	}

	limits := tier.LimitsFor(tier.Tier(s.Tier))
	limit, periodHours := axis(limits, resource)

	w, err := l.activeWindow(ctx, s.ID, periodHours)
	if err != nil {
		return Result{}, err
	}

	used := usedOf(w, resource)
	return Result{
		Allowed:   used+amount <= limit,
		Remaining: max(0, limit-used),
		Limit:     limit,
		ResetTime: w.PeriodEnd,
	}, nil
}

// Commit charges usage against the active window. Callers invoke it only
// after the corresponding action succeeded or is being charged
// intentionally, e.g. a failed generation still consumes quota.
func (l *Limiter) Commit(ctx context.Context, s *Session, resource Resource, amount int) error {
	if admin, err := l.isAdmin(ctx, s); err != nil {
		return err
	} else if admin {
		return nil
	}

	limits := tier.LimitsFor(tier.Tier(s.Tier))
	_, periodHours := axis(limits, resource)

	w, err := l.activeWindow(ctx, s.ID, periodHours)
	if err != nil {
		return err
	}

	if resource == ResourceVoiceMinutes {
		return l.repo.AddVoiceMinutesUsed(ctx, w.ID, amount)
	}
	return l.repo.AddMessagesUsed(ctx, w.ID, amount)
}

// activeWindow returns the session's current window, superseding an
// expired one with a fresh row (both counters reset together).
func (l *Limiter) activeWindow(ctx context.Context, sessionID string, periodHours int) (*RateLimitWindow, error) {
	w, err := l.repo.LatestWindow(ctx, sessionID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	now := time.Now()
	if w != nil && w.PeriodEnd.After(now) {
		return w, nil
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	fresh := &RateLimitWindow{
		ID:          id,
		SessionID:   sessionID,
		PeriodStart: now,
		PeriodEnd:   now.Add(time.Duration(periodHours) * time.Hour),
	}
	if err := l.repo.CreateWindow(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (l *Limiter) isAdmin(ctx context.Context, s *Session) (bool, error) {
	if s.UserID == nil || *s.UserID == "" {
		return false, nil
	}
	u, err := l.repo.GetUser(ctx, *s.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}

func axis(limits tier.Limits, resource Resource) (limit, periodHours int) {
	if resource == ResourceVoiceMinutes {
		return limits.VoiceLimit, limits.VoicePeriodHours
	}
	return limits.MessageLimit, limits.MessagePeriodHours
}

func usedOf(w *RateLimitWindow, resource Resource) int {
	if resource == ResourceVoiceMinutes {
		return w.VoiceMinutesUsed
	}
	return w.MessagesUsed
}
