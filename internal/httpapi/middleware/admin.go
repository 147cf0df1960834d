package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aurumlabs/tokenchat/internal/auth"
	"github.com/aurumlabs/tokenchat/internal/common"
	"github.com/aurumlabs/tokenchat/internal/config"
	"github.com/aurumlabs/tokenchat/internal/session"
)

const AdminUserKey = "admin_user_id"

// AdminRequired guards the admin surface. The token rides an httpOnly
// cookie, never a header, matching how the frontend authenticates.
func AdminRequired(repo *session.Repo, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(cfg.AdminCookieName)
		if err != nil || cookie == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "admin authentication required")
			c.Abort()
			return
		}

		userID, err := auth.ParseAdminToken(cookie, cfg.JWTSecret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid admin token")
			c.Abort()
			return
		}

		u, err := repo.GetUser(c.Request.Context(), userID)
		if err != nil || !u.IsAdmin {
			common.Fail(c, http.StatusForbidden, 40301, "admin access required")
			c.Abort()
			return
		}

		c.Set(AdminUserKey, u.ID)
		c.Next()
	}
}
