package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/aurumlabs/tokenchat/internal/common"
)

// Request is the structured payload sent to a personality webhook.
type Request struct {
	Personality Personality `json:"personality"`
	Modality    Modality    `json:"modality"`
	SessionID   string      `json:"sessionId"`
	Conversation string     `json:"conversationId,omitempty"`
	MessageID   string      `json:"messageId,omitempty"`
	Content     string      `json:"content"`
	Metadata    Metadata    `json:"metadata"`
}

// Metadata is a snapshot of the calling session.
type Metadata struct {
	Tier          string  `json:"tier"`
	TokenBalance  float64 `json:"tokenBalance"`
	WalletAddress string  `json:"walletAddress,omitempty"`
	MemoryBank    string  `json:"memoryBank,omitempty"`
	Timestamp     int64   `json:"timestamp"`
}

// Result is the enrichment outcome. Degraded marks a transport or
// protocol failure where Prompt is simply the original content; callers
// must observe the flag before treating the prompt as enriched.
type Result struct {
	Prompt   string
	Degraded bool
}

// webhookResponse covers the response shapes the workflow endpoints emit:
// the structured {status, delivery, prompt:{full}} shape and the legacy
// flat fullPrompt / systemPrompt shapes.
type webhookResponse struct {
	Status   string `json:"status"`
	Delivery string `json:"delivery"`
	Prompt   *struct {
		Full string `json:"full"`
	} `json:"prompt"`
	FullPrompt   string `json:"fullPrompt"`
	SystemPrompt string `json:"systemPrompt"`
}

// resolvePrompt applies the precedence order: structured prompt, then
// fullPrompt, then systemPrompt concatenated with the content, then the
// original content untouched.
func resolvePrompt(resp *webhookResponse, content string) string {
	if resp.Status == "ok" {
		if resp.Delivery == "prompt" && resp.Prompt != nil && resp.Prompt.Full != "" {
			return resp.Prompt.Full
		}
		if resp.FullPrompt != "" {
			return resp.FullPrompt
		}
		if resp.SystemPrompt != "" {
			return fmt.Sprintf("%s\n\nUser: %s", resp.SystemPrompt, content)
		}
	}
	return content
}

// Gateway calls the external workflow webhooks that transform raw user
// messages into model prompts. It never propagates failure: a broken
// webhook degrades to the original content, and every attempt, success
// or failure, writes exactly one audit log row.
type Gateway struct {
	routes  *Routes
	logs    *LogRepo
	client  *http.Client
	timeout time.Duration
}

func NewGateway(routes *Routes, logs *LogRepo, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		routes:  routes,
		logs:    logs,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (g *Gateway) Enrich(ctx context.Context, req Request) Result {
	webhookURL := g.routes.URL(req.Personality, req.Modality)

	body, err := json.Marshal(req)
	if err != nil {
		g.audit(ctx, req, fmt.Sprintf(`{"error":%q}`, err.Error()), "error")
		return Result{Prompt: req.Content, Degraded: true}
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(cctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		g.audit(ctx, req, fmt.Sprintf(`{"error":%q}`, err.Error()), "error")
		return Result{Prompt: req.Content, Degraded: true}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		log.Printf("[Enrich] webhook failed session=%s url=%s err=%v", req.SessionID, webhookURL, err)
		g.audit(ctx, req, fmt.Sprintf(`{"error":%q}`, err.Error()), "error")
		return Result{Prompt: req.Content, Degraded: true}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 256*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Enrich] webhook status=%d session=%s url=%s", resp.StatusCode, req.SessionID, webhookURL)
		g.audit(ctx, req, string(raw), "error")
		return Result{Prompt: req.Content, Degraded: true}
	}

	var decoded webhookResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		log.Printf("[Enrich] malformed webhook body session=%s err=%v", req.SessionID, err)
		g.audit(ctx, req, string(raw), "error")
		return Result{Prompt: req.Content, Degraded: true}
	}

	g.audit(ctx, req, string(raw), "success")
	return Result{Prompt: resolvePrompt(&decoded, req.Content)}
}

func (g *Gateway) audit(ctx context.Context, req Request, response, status string) {
	id, err := common.NewULID()
	if err != nil {
		log.Printf("[Enrich] audit id failed session=%s err=%v", req.SessionID, err)
		return
	}
	reqData, _ := json.Marshal(map[string]any{
		"personality": req.Personality,
		"modality":    req.Modality,
		"content":     req.Content,
		"metadata":    req.Metadata,
	})
	if err := g.logs.Create(ctx, &WebhookLog{
		ID:             id,
		SessionID:      req.SessionID,
		ConversationID: req.Conversation,
		RequestData:    string(reqData),
		ResponseData:   response,
		Status:         status,
	}); err != nil {
		log.Printf("[Enrich] audit write failed session=%s err=%v", req.SessionID, err)
	}
}
