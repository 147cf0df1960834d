package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aurumlabs/tokenchat/internal/chat"
	"github.com/aurumlabs/tokenchat/internal/common"
	"github.com/aurumlabs/tokenchat/internal/config"
	"github.com/aurumlabs/tokenchat/internal/httpapi/handlers"
	"github.com/aurumlabs/tokenchat/internal/httpapi/middleware"
	"github.com/aurumlabs/tokenchat/internal/session"
	"github.com/aurumlabs/tokenchat/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, summaries chat.SummaryPublisher) (*gin.Engine, error) {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h, err := handlers.NewHandler(db, cfg, rds, summaries)
	if err != nil {
		return nil, err
	}

	sessions := session.NewRepo(db)
	resolver := session.NewResolver(sessions, cfg.CookieMaxAge)

	r.GET("/api/health", h.Ping)

	// Capability-token lookup; no session, the token is the authorization.
	r.GET("/api/audio/:token", h.GetAudio)

	// The websocket handshake cannot carry Set-Cookie, so the stream
	// endpoint authenticates from the raw cookie instead of the session
	// middleware.
	r.GET("/api/voice-stream", h.VoiceStream)

	r.POST("/api/admin/login", h.AdminLogin)
	adminGroup := r.Group("/api/admin")
	adminGroup.Use(middleware.AdminRequired(sessions, cfg))
	adminGroup.GET("/sessions", h.AdminListSessions)
	adminGroup.GET("/audio", h.AdminListAudio)
	adminGroup.GET("/webhooks", h.AdminListWebhookLogs)

	sessionGroup := r.Group("/api")
	sessionGroup.Use(middleware.Resolve(resolver, cfg))
	sessionGroup.GET("/session", h.GetSession)
	sessionGroup.POST("/wallet/connect", h.ConnectWallet)
	sessionGroup.POST("/wallet/disconnect", h.DisconnectWallet)
	sessionGroup.POST("/wallet/refresh", h.RefreshBalance)
	sessionGroup.GET("/memory-bank", h.GetMemoryBank)
	sessionGroup.POST("/memory-bank", h.UpdateMemoryBank)
	sessionGroup.GET("/conversations", h.ListConversations)
	sessionGroup.GET("/conversations/:id/messages", h.ListMessages)
	sessionGroup.POST("/messages", h.SendMessage)
	sessionGroup.POST("/voice/generate", h.GenerateVoice)

	return r, nil
}
