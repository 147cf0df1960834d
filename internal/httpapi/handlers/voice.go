package handlers

import (
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/aurumlabs/tokenchat/internal/common"
	"github.com/aurumlabs/tokenchat/internal/enrich"
	"github.com/aurumlabs/tokenchat/internal/identity"
	"github.com/aurumlabs/tokenchat/internal/session"
	"github.com/aurumlabs/tokenchat/internal/voice"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type generateVoiceReq struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Text           string `json:"text" binding:"required"`
}

// estimateDuration approximates spoken length in seconds, never below 1.
func estimateDuration(text string) int {
	words := len(strings.Fields(text))
	secs := words * 60 / 150
	if secs < 1 {
		secs = 1
	}
	return secs
}

// GenerateVoice synthesizes one utterance in a single shot and caches it
// behind a secure token. Synthesis failure still returns the cache entry
// so the client can retry playback through the audio endpoint.
func (h *Handler) GenerateVoice(c *gin.Context) {
	sess, ok := sessionFromContext(c)
	if !ok {
		return
	}

	var req generateVoiceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "conversation_id and text required")
		return
	}

	rl, err := h.Limiter.Check(c.Request.Context(), sess, session.ResourceVoiceMinutes, 1)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "quota lookup failed")
		return
	}
	if !rl.Allowed {
		common.FailWithReset(c, http.StatusTooManyRequests, 42902,
			"voice limit exceeded", rl.ResetTime)
		return
	}

	if _, err := h.ChatSvc.GetOwnedConversation(c.Request.Context(), sess.ID, req.ConversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "conversation not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "conversation lookup failed")
		return
	}

	audioB64 := ""
	if data, synthErr := h.Synth.Synthesize(c.Request.Context(), req.Text); synthErr != nil {
		log.Printf("[Voice] batch synthesis failed session=%s err=%v", sess.ID, synthErr)
	} else {
		audioB64 = base64.StdEncoding.EncodeToString(data)
	}

	token, err := identity.NewSecureToken()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to issue audio token")
		return
	}
	id, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to cache audio")
		return
	}

	entry := &voice.AudioCache{
		ID:             id,
		SessionID:      sess.ID,
		ConversationID: req.ConversationID,
		AudioURL:       "/api/audio/" + token,
		SecureToken:    token,
		Text:           req.Text,
		Duration:       estimateDuration(req.Text),
		VoiceSettings:  `{"provider":"elevenlabs","streaming":false}`,
	}
	if err := h.Audio.Create(c.Request.Context(), entry); err != nil {
		log.Printf("[Voice] audio cache write failed session=%s err=%v", sess.ID, err)
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to cache audio")
		return
	}

	if err := h.Limiter.Commit(c.Request.Context(), sess, session.ResourceVoiceMinutes, 1); err != nil {
		log.Printf("[Voice] quota commit failed session=%s err=%v", sess.ID, err)
	}

	common.OK(c, gin.H{
		"audio_url": entry.AudioURL,
		"duration":  entry.Duration,
		"audio":     audioB64,
	})
}

// GetAudio serves a cached utterance by its capability token. The token
// is the only authorization; no session required. Audio is rendered on
// demand from the cached text.
func (h *Handler) GetAudio(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		common.Fail(c, http.StatusNotFound, 40402, "audio not found")
		return
	}

	entry, err := h.Audio.GetByToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "audio not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "audio lookup failed")
		return
	}

	data, err := h.Synth.Synthesize(c.Request.Context(), entry.Text)
	if err != nil {
		log.Printf("[Voice] audio render failed token=%.8s err=%v", token, err)
		common.Fail(c, http.StatusBadGateway, 50201, "audio rendering failed")
		return
	}

	c.Data(http.StatusOK, "audio/mpeg", data)
}

// VoiceStream upgrades the connection for live synthesis. Every denial
// happens before the upgrade and before any upstream socket is dialed,
// so a rejected caller costs nothing.
func (h *Handler) VoiceStream(c *gin.Context) {
	cookieToken, err := c.Cookie(h.Cfg.SessionCookieName)
	if err != nil || cookieToken == "" {
		common.Fail(c, http.StatusUnauthorized, 40103, "session cookie required")
		return
	}

	sess, err := h.Sessions.GetByCookieToken(c.Request.Context(), cookieToken)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40103, "unknown session")
		return
	}

	conversationID := c.Query("conversationId")
	if conversationID == "" {
		common.Fail(c, http.StatusBadRequest, 10004, "conversationId required")
		return
	}

	if _, err := h.ChatSvc.GetOwnedConversation(c.Request.Context(), sess.ID, conversationID); err != nil {
		common.Fail(c, http.StatusForbidden, 40302, "conversation access denied")
		return
	}

	rl, err := h.Limiter.Check(c.Request.Context(), sess, session.ResourceVoiceMinutes, 1)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "quota lookup failed")
		return
	}
	if !rl.Allowed {
		common.FailWithReset(c, http.StatusTooManyRequests, 42902,
			"voice limit exceeded", rl.ResetTime)
		return
	}

	personality := enrich.Personality(c.Query("personality"))
	if personality == "" {
		personality = enrich.PersonalityAutistic
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Voice] upgrade failed session=%s err=%v", sess.ID, err)
		return
	}
	defer conn.Close()

	if err := h.Coordinator.Run(c.Request.Context(), conn, sess, conversationID, personality); err != nil {
		log.Printf("[Voice] stream ended with error session=%s err=%v", sess.ID, err)
	}
}
