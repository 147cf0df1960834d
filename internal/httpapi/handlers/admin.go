package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aurumlabs/tokenchat/internal/auth"
	"github.com/aurumlabs/tokenchat/internal/common"
	"github.com/aurumlabs/tokenchat/internal/models"
	"github.com/aurumlabs/tokenchat/internal/session"
)

const adminTokenTTL = 7 * 24 * time.Hour

type adminLoginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminLogin verifies credentials and issues the admin cookie. The
// session middleware picks the cookie up on later requests and links the
// caller's session to the admin user.
func (h *Handler) AdminLogin(c *gin.Context) {
	var req adminLoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "username and password required")
		return
	}

	var u models.User
	err := h.DB.WithContext(c.Request.Context()).
		First(&u, "username = ?", req.Username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !u.IsAdmin) {
		common.Fail(c, http.StatusUnauthorized, 40104, "invalid credentials")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "login failed")
		return
	}

	if !auth.VerifyPassword(req.Password, u.PasswordHash) {
		common.Fail(c, http.StatusUnauthorized, 40104, "invalid credentials")
		return
	}

	token, err := auth.SignAdminToken(u.ID, h.Cfg.JWTSecret, adminTokenTTL)
	if err != nil {
		log.Printf("[Admin] token sign failed user=%s err=%v", u.ID, err)
		common.Fail(c, http.StatusInternalServerError, 50002, "login failed")
		return
	}

	c.SetCookie(h.Cfg.AdminCookieName, token,
		int(adminTokenTTL.Seconds()), "/", "", false, true)
	common.OK(c, gin.H{"username": u.Username})
}

func limitQuery(c *gin.Context) int {
	n, _ := strconv.Atoi(c.Query("limit"))
	return n
}

func (h *Handler) AdminListSessions(c *gin.Context) {
	limit := limitQuery(c)
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var sessions []session.Session
	if err := h.DB.WithContext(c.Request.Context()).
		Order("last_seen DESC").
		Limit(limit).
		Find(&sessions).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list sessions")
		return
	}
	common.OK(c, gin.H{"sessions": sessions})
}

func (h *Handler) AdminListAudio(c *gin.Context) {
	entries, err := h.Audio.ListAll(c.Request.Context(), limitQuery(c))
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list audio cache")
		return
	}
	common.OK(c, gin.H{"audio": entries})
}

func (h *Handler) AdminListWebhookLogs(c *gin.Context) {
	logs, err := h.Logs.List(c.Request.Context(), limitQuery(c))
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list webhook logs")
		return
	}
	common.OK(c, gin.H{"webhook_logs": logs})
}
