package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aurumlabs/tokenchat/internal/auth"
	"github.com/aurumlabs/tokenchat/internal/common"
	"github.com/aurumlabs/tokenchat/internal/config"
	"github.com/aurumlabs/tokenchat/internal/identity"
	"github.com/aurumlabs/tokenchat/internal/session"
)

const SessionKey = "session"

// SessionFromContext returns the resolved session placed by Resolve.
func SessionFromContext(c *gin.Context) (*session.Session, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*session.Session)
	return s, ok
}

// Resolve attaches the caller's durable session to the request, creating
// one on first contact. A valid admin cookie links the session to that
// admin user, which exempts it from rate limits.
func Resolve(resolver *session.Resolver, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookieToken, _ := c.Cookie(cfg.SessionCookieName)
		fingerprint := identity.Fingerprint(c.ClientIP(), c.Request)

		adminUserID := ""
		if adminCookie, err := c.Cookie(cfg.AdminCookieName); err == nil && adminCookie != "" {
			if uid, err := auth.ParseAdminToken(adminCookie, cfg.JWTSecret); err == nil {
				adminUserID = uid
			}
		}

		resolved, err := resolver.Resolve(c.Request.Context(), cookieToken, fingerprint, adminUserID)
		if err != nil {
			log.Printf("[Session] resolve failed fingerprint=%.12s err=%v", fingerprint, err)
			common.Fail(c, http.StatusInternalServerError, 50001, "session resolution failed")
			c.Abort()
			return
		}

		if resolved.SetCookie {
			c.SetCookie(cfg.SessionCookieName, resolved.CookieToken,
				int(cfg.CookieMaxAge.Seconds()), "/", "", false, true)
		}

		c.Set(SessionKey, resolved.Session)
		c.Next()
	}
}
