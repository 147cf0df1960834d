package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aurumlabs/tokenchat/internal/common"
	"github.com/aurumlabs/tokenchat/internal/httpapi/middleware"
	"github.com/aurumlabs/tokenchat/internal/session"
	"github.com/aurumlabs/tokenchat/internal/tier"
)

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{
		"status":         "ok",
		"active_streams": h.Coordinator.ActiveStreams(),
	})
}

func sessionFromContext(c *gin.Context) (*session.Session, bool) {
	s, ok := middleware.SessionFromContext(c)
	if !ok {
		common.Fail(c, http.StatusInternalServerError, 50001, "session not resolved")
	}
	return s, ok
}

// GetSession reports the caller's tier, wallet and both quota axes.
func (h *Handler) GetSession(c *gin.Context) {
	sess, ok := sessionFromContext(c)
	if !ok {
		return
	}

	msgStatus, err := h.Limiter.Check(c.Request.Context(), sess, session.ResourceMessages, 1)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "quota lookup failed")
		return
	}
	voiceStatus, err := h.Limiter.Check(c.Request.Context(), sess, session.ResourceVoiceMinutes, 1)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "quota lookup failed")
		return
	}

	common.OK(c, gin.H{
		"session_id":     sess.ID,
		"tier":           sess.Tier,
		"token_balance":  sess.TokenBalance,
		"wallet_address": sess.WalletAddress,
		"rate_limits": gin.H{
			"messages":      msgStatus,
			"voice_minutes": voiceStatus,
		},
	})
}

type connectWalletReq struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
}

// ConnectWallet binds a wallet to the session and snapshots its balance
// and tier. The snapshot is what rate limiting uses until the next
// refresh.
func (h *Handler) ConnectWallet(c *gin.Context) {
	sess, ok := sessionFromContext(c)
	if !ok {
		return
	}

	var req connectWalletReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "wallet_address required")
		return
	}
	wallet := strings.TrimSpace(req.WalletAddress)
	if wallet == "" {
		common.Fail(c, http.StatusBadRequest, 10001, "wallet_address required")
		return
	}

	balance := h.Oracle.GetTokenBalance(c.Request.Context(), wallet)

	updated, err := h.Sessions.Update(c.Request.Context(), sess.ID, map[string]any{
		"wallet_address": wallet,
		"token_balance":  balance.Balance,
		"tier":           string(balance.Tier),
	})
	if err != nil {
		log.Printf("[Session] wallet connect failed session=%s err=%v", sess.ID, err)
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to connect wallet")
		return
	}

	common.OK(c, gin.H{
		"wallet_address": updated.WalletAddress,
		"token_balance":  updated.TokenBalance,
		"tier":           updated.Tier,
	})
}

// DisconnectWallet reverts the session to the Free Trial tier.
func (h *Handler) DisconnectWallet(c *gin.Context) {
	sess, ok := sessionFromContext(c)
	if !ok {
		return
	}

	updated, err := h.Sessions.Update(c.Request.Context(), sess.ID, map[string]any{
		"wallet_address": nil,
		"token_balance":  0.0,
		"tier":           string(tier.FreeTrial),
	})
	if err != nil {
		log.Printf("[Session] wallet disconnect failed session=%s err=%v", sess.ID, err)
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to disconnect wallet")
		return
	}

	common.OK(c, gin.H{
		"wallet_address": nil,
		"token_balance":  updated.TokenBalance,
		"tier":           updated.Tier,
	})
}

// RefreshBalance re-queries the connected wallet and updates the tier
// snapshot.
func (h *Handler) RefreshBalance(c *gin.Context) {
	sess, ok := sessionFromContext(c)
	if !ok {
		return
	}
	if sess.WalletAddress == nil || *sess.WalletAddress == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "no wallet connected")
		return
	}

	balance := h.Oracle.GetTokenBalance(c.Request.Context(), *sess.WalletAddress)

	updated, err := h.Sessions.Update(c.Request.Context(), sess.ID, map[string]any{
		"token_balance": balance.Balance,
		"tier":          string(balance.Tier),
	})
	if err != nil {
		log.Printf("[Session] balance refresh failed session=%s err=%v", sess.ID, err)
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to refresh balance")
		return
	}

	common.OK(c, gin.H{
		"wallet_address": updated.WalletAddress,
		"token_balance":  updated.TokenBalance,
		"tier":           updated.Tier,
	})
}

func (h *Handler) GetMemoryBank(c *gin.Context) {
	sess, ok := sessionFromContext(c)
	if !ok {
		return
	}
	memory := ""
	if sess.MemoryBank != nil {
		memory = *sess.MemoryBank
	}
	common.OK(c, gin.H{"memory_bank": memory})
}

type memoryBankReq struct {
	MemoryBank string `json:"memory_bank"`
}

func (h *Handler) UpdateMemoryBank(c *gin.Context) {
	sess, ok := sessionFromContext(c)
	if !ok {
		return
	}

	var req memoryBankReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if len(req.MemoryBank) > 10000 {
		common.Fail(c, http.StatusBadRequest, 10003, "memory bank too large")
		return
	}

	if _, err := h.Sessions.Update(c.Request.Context(), sess.ID, map[string]any{
		"memory_bank": req.MemoryBank,
	}); err != nil {
		log.Printf("[Session] memory bank update failed session=%s err=%v", sess.ID, err)
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to update memory bank")
		return
	}

	common.OK(c, gin.H{"memory_bank": req.MemoryBank})
}
