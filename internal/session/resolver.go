package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/aurumlabs/tokenchat/internal/common"
	"github.com/aurumlabs/tokenchat/internal/identity"
	"github.com/aurumlabs/tokenchat/internal/tier"
)

// Resolver finds or creates the durable session for a caller.
//
// Precedence: valid cookie token, then expired cookie token (rotated to a
// fresh token on the same session), then fingerprint match, then a brand
// new session. Two concurrent first contacts from one fingerprint can
// race to create two sessions; that duplicate is accepted rather than
// paying for a lock on every request.
type Resolver struct {
	repo         *Repo
	cookieMaxAge time.Duration
}

func NewResolver(repo *Repo, cookieMaxAge time.Duration) *Resolver {
	return &Resolver{repo: repo, cookieMaxAge: cookieMaxAge}
}

// Resolved carries the session plus the cookie the HTTP layer must set.
// SetCookie is false when the caller was recognized purely by
// fingerprint and holds no token to renew.
type Resolved struct {
	Session     *Session
	CookieToken string
	SetCookie   bool
}

// Resolve maps request identity material to exactly one session.
// adminUserID is the id carried by a verified admin-link token, or "".
func (r *Resolver) Resolve(ctx context.Context, cookieToken, fingerprint, adminUserID string) (*Resolved, error) {
	out := &Resolved{}

	if cookieToken != "" {
		s, err := r.repo.GetByCookieToken(ctx, cookieToken)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if s != nil {
			if s.CookieExpiry != nil && s.CookieExpiry.Before(time.Now()) {
				// Expired token: rotate to a new one bound to the same session.
				newToken, err := identity.NewCookieToken()
				if err != nil {
					return nil, err
				}
				s, err = r.repo.Update(ctx, s.ID, map[string]any{
					"cookie_token":  newToken,
					"cookie_expiry": time.Now().Add(r.cookieMaxAge),
				})
				if err != nil {
					return nil, err
				}
				out.CookieToken = newToken
			} else {
				// Sliding window: every request pushes expiry out again.
				s, err = r.repo.Update(ctx, s.ID, map[string]any{
					"cookie_expiry": time.Now().Add(r.cookieMaxAge),
				})
				if err != nil {
					return nil, err
				}
				out.CookieToken = cookieToken
			}
			out.Session = s
			out.SetCookie = true
		}
	}

	if out.Session == nil {
		s, err := r.repo.GetByFingerprint(ctx, fingerprint)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if s != nil {
			s, err = r.repo.Update(ctx, s.ID, map[string]any{})
			if err != nil {
				return nil, err
			}
			out.Session = s
		}
	}

	if out.Session == nil {
		newToken, err := identity.NewCookieToken()
		if err != nil {
			return nil, err
		}
		id, err := common.NewULID()
		if err != nil {
			return nil, err
		}
		expiry := time.Now().Add(r.cookieMaxAge)
		s := &Session{
			ID:           id,
			Fingerprint:  fingerprint,
			Tier:         string(tier.FreeTrial),
			TokenBalance: 0,
			CookieToken:  &newToken,
			CookieExpiry: &expiry,
			LastSeen:     time.Now(),
		}
		if err := r.repo.Create(ctx, s); err != nil {
			return nil, err
		}
		out.Session = s
		out.CookieToken = newToken
		out.SetCookie = true
	}

	if adminUserID != "" && (out.Session.UserID == nil || *out.Session.UserID != adminUserID) {
		s, err := r.repo.Update(ctx, out.Session.ID, map[string]any{
			"user_id": adminUserID,
		})
		if err != nil {
			return nil, err
		}
		out.Session = s
	}

	return out, nil
}
