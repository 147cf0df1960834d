package session

import (
	"context"
	"testing"
	"time"

	"github.com/aurumlabs/tokenchat/internal/common"
	"github.com/aurumlabs/tokenchat/internal/models"
	"github.com/aurumlabs/tokenchat/internal/tier"
)

func TestResolver_CreatesSessionOnFirstContact(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	resolver := NewResolver(repo, 180*24*time.Hour)

	res, err := resolver.Resolve(context.Background(), "", "fp-first-contact", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Session == nil || res.Session.ID == "" {
		t.Fatalf("expected new session, got %+v", res)
	}
	if res.Session.Tier != string(tier.FreeTrial) {
		t.Fatalf("new session tier = %q, want Free Trial", res.Session.Tier)
	}
	if !res.SetCookie || res.CookieToken == "" {
		t.Fatalf("new session must issue a cookie, got %+v", res)
	}
}

func TestResolver_CookieTokenWinsOverFingerprint(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	resolver := NewResolver(repo, 180*24*time.Hour)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "", "fp-cookie-wins", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Same token from a different fingerprint: the cookie identifies the
	// session, not the device hash.
	second, err := resolver.Resolve(ctx, first.CookieToken, "fp-entirely-different", "")
	if err != nil {
		t.Fatalf("resolve with cookie: %v", err)
	}
	if second.Session.ID != first.Session.ID {
		t.Fatalf("cookie should return the same session: %s vs %s", second.Session.ID, first.Session.ID)
	}
	if !second.SetCookie || second.CookieToken != first.CookieToken {
		t.Fatalf("valid cookie should be renewed unchanged, got %+v", second)
	}
}

func TestResolver_ExpiredCookieRotatesToken(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	resolver := NewResolver(repo, 180*24*time.Hour)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "", "fp-rotation", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := repo.Update(ctx, first.Session.ID, map[string]any{
		"cookie_expiry": time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("expire cookie: %v", err)
	}

	second, err := resolver.Resolve(ctx, first.CookieToken, "fp-rotation", "")
	if err != nil {
		t.Fatalf("resolve with expired cookie: %v", err)
	}
	if second.Session.ID != first.Session.ID {
		t.Fatalf("rotation must keep the session: %s vs %s", second.Session.ID, first.Session.ID)
	}
	if !second.SetCookie || second.CookieToken == "" || second.CookieToken == first.CookieToken {
		t.Fatalf("expired cookie should rotate to a fresh token, got %+v", second)
	}
}

func TestResolver_FingerprintFallbackDoesNotSetCookie(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	resolver := NewResolver(repo, 180*24*time.Hour)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "", "fp-fallback", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	second, err := resolver.Resolve(ctx, "", "fp-fallback", "")
	if err != nil {
		t.Fatalf("resolve by fingerprint: %v", err)
	}
	if second.Session.ID != first.Session.ID {
		t.Fatalf("fingerprint should find the session: %s vs %s", second.Session.ID, first.Session.ID)
	}
	if second.SetCookie {
		t.Fatalf("fingerprint match holds no token to renew, got %+v", second)
	}
}

func TestResolver_AdminTokenLinksSession(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	resolver := NewResolver(repo, 180*24*time.Hour)
	ctx := context.Background()

	uid, err := common.NewULID()
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	admin := &models.User{ID: uid, Username: "admin-link-" + uid, PasswordHash: "x", IsAdmin: true}
	if err := db.Create(admin).Error; err != nil {
		t.Fatalf("create admin: %v", err)
	}

	res, err := resolver.Resolve(ctx, "", "fp-admin-link", admin.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Session.UserID == nil || *res.Session.UserID != admin.ID {
		t.Fatalf("session should be linked to admin, got %+v", res.Session.UserID)
	}
}
