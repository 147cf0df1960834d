package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aurumlabs/tokenchat/internal/chat"
	"github.com/aurumlabs/tokenchat/internal/common"
	"github.com/aurumlabs/tokenchat/internal/enrich"
)

func (h *Handler) ListConversations(c *gin.Context) {
	sess, ok := sessionFromContext(c)
	if !ok {
		return
	}

	convs, err := h.ChatSvc.ListConversations(c.Request.Context(), sess.ID)
	if err != nil {
		log.Printf("[Chat] list conversations failed session=%s err=%v", sess.ID, err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list conversations")
		return
	}
	common.OK(c, gin.H{"conversations": convs})
}

func (h *Handler) ListMessages(c *gin.Context) {
	sess, ok := sessionFromContext(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")

	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), sess.ID, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "conversation not found")
			return
		}
		log.Printf("[Chat] list messages failed session=%s conversation=%s err=%v", sess.ID, conversationID, err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}

type sendMessageReq struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content" binding:"required"`
	Personality    string `json:"personality"`
	RequestImage   bool   `json:"request_image"`
}

// SendMessage runs the full send pipeline. A denial returns 429 with the
// window reset time; everything past the quota check returns 200 even
// when generation degraded to the apology message.
func (h *Handler) SendMessage(c *gin.Context) {
	sess, ok := sessionFromContext(c)
	if !ok {
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "content required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		common.Fail(c, http.StatusBadRequest, 10001, "content required")
		return
	}

	personality := enrich.Personality(req.Personality)
	if req.Personality == "" {
		personality = enrich.PersonalityAutistic
	}

	out, err := h.ChatSvc.Send(c.Request.Context(), sess, chat.SendInput{
		ConversationID: req.ConversationID,
		Content:        req.Content,
		RequestImage:   req.RequestImage,
		Personality:    personality,
	})
	if err != nil {
		var rle *chat.RateLimitError
		if errors.As(err, &rle) {
			common.FailWithReset(c, http.StatusTooManyRequests, 42901,
				"rate limit exceeded", rle.Result.ResetTime)
			return
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "conversation not found")
			return
		}
		log.Printf("[Chat] send failed session=%s err=%v", sess.ID, err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to send message")
		return
	}

	common.OK(c, gin.H{
		"conversation_id": out.Conversation.ID,
		"user_message":    out.UserMessage,
		"ai_message":      out.AIMessage,
		"rate_limit":      out.RateLimit,
	})
}
