package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/aurumlabs/tokenchat/internal/ai"
	"github.com/aurumlabs/tokenchat/internal/common"
	"github.com/aurumlabs/tokenchat/internal/enrich"
	"github.com/aurumlabs/tokenchat/internal/session"
)

const apologyContent = "I apologize, but I encountered an error processing your request. Please try again."

// Enricher is the prompt enrichment gateway contract.
type Enricher interface {
	Enrich(ctx context.Context, req enrich.Request) enrich.Result
}

// SummaryPublisher enqueues rolling-summary jobs. Optional; a nil
// publisher disables summaries.
type SummaryPublisher interface {
	PublishSummary(ctx context.Context, conversationID string) error
}

// RateLimitError is returned when the quota check denies a send. It is a
// normal expected outcome, carrying the reset time for the caller.
type RateLimitError struct {
	Result session.Result
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, resets at %s", e.Result.ResetTime.Format(time.RFC3339))
}

// SendInput is one message-send request after session resolution.
type SendInput struct {
	ConversationID string
	Content        string
	RequestImage   bool
	Personality    enrich.Personality
}

// SendOutput is everything the HTTP layer needs to answer a send.
type SendOutput struct {
	Conversation *Conversation
	UserMessage  *Message
	AIMessage    *Message
	RateLimit    session.Result
}

type Service struct {
	repo      *Repo
	limiter   *session.Limiter
	enricher  Enricher
	provider  ai.Provider
	summaries SummaryPublisher
}

func NewService(repo *Repo, limiter *session.Limiter, enricher Enricher, provider ai.Provider, summaries SummaryPublisher) *Service {
	return &Service{
		repo:      repo,
		limiter:   limiter,
		enricher:  enricher,
		provider:  provider,
		summaries: summaries,
	}
}

// Send runs the full pipeline: quota check, conversation find-or-create,
// user turn, enrichment, generation, assistant turn, quota commit. A
// generation failure still records an apologetic assistant turn and
// still commits quota, so failed generations cannot be retried for free.
func (s *Service) Send(ctx context.Context, sess *session.Session, in SendInput) (*SendOutput, error) {
	rl, err := s.limiter.Check(ctx, sess, session.ResourceMessages, 1)
	if err != nil {
		return nil, err
	}
	if !rl.Allowed {
		return nil, &RateLimitError{Result: rl}
	}

	conv, err := s.findOrCreateConversation(ctx, sess.ID, in)
	if err != nil {
		return nil, err
	}

	userMsg, err := s.insertMessage(ctx, conv.ID, "user", in.Content, in.RequestImage, nil)
	if err != nil {
		return nil, err
	}

	modality := enrich.ModalityText
	if in.RequestImage {
		modality = enrich.ModalityImage
	}
	enriched := s.enricher.Enrich(ctx, enrich.Request{
		Personality:  in.Personality,
		Modality:     modality,
		SessionID:    sess.ID,
		Conversation: conv.ID,
		MessageID:    userMsg.ID,
		Content:      in.Content,
		Metadata:     sessionMetadata(sess),
	})
	if enriched.Degraded {
		log.Printf("[Chat] enrichment degraded session=%s conversation=%s", sess.ID, conv.ID)
	}

	prompt := enriched.Prompt
	if in.RequestImage {
		prompt = fmt.Sprintf(
			"Based on this request: %q, provide a detailed description that could be used to generate an image. Focus on visual elements, composition, style, and mood.",
			enriched.Prompt,
		)
	}

	content, genErr := s.provider.Generate(ctx, prompt)
	if genErr != nil {
		log.Printf("[Chat] generation failed session=%s conversation=%s err=%v", sess.ID, conv.ID, genErr)
		content = apologyContent
	}

	aiMsg, err := s.insertMessage(ctx, conv.ID, "assistant", content, in.RequestImage && genErr == nil, nil)
	if err != nil {
		return nil, err
	}

	// Charged even when generation failed, on purpose.
	if err := s.limiter.Commit(ctx, sess, session.ResourceMessages, 1); err != nil {
		log.Printf("[Chat] quota commit failed session=%s err=%v", sess.ID, err)
	}

	if err := s.repo.TouchConversation(ctx, conv.ID); err != nil {
		log.Printf("[Chat] conversation touch failed conversation=%s err=%v", conv.ID, err)
	}

	if s.summaries != nil && genErr == nil {
		if err := s.summaries.PublishSummary(ctx, conv.ID); err != nil {
			log.Printf("[Chat] summary enqueue failed conversation=%s err=%v", conv.ID, err)
		}
	}

	rl.Remaining = max(0, rl.Remaining-1)
	return &SendOutput{
		Conversation: conv,
		UserMessage:  userMsg,
		AIMessage:    aiMsg,
		RateLimit:    rl,
	}, nil
}

// GetOwnedConversation enforces that a conversation belongs to the
// session; a foreign conversation is indistinguishable from a missing
// one.
func (s *Service) GetOwnedConversation(ctx context.Context, sessionID, conversationID string) (*Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.SessionID != sessionID {
		return nil, gorm.ErrRecordNotFound
	}
	return conv, nil
}

func (s *Service) ListConversations(ctx context.Context, sessionID string) ([]Conversation, error) {
	return s.repo.ListConversationsBySession(ctx, sessionID)
}

func (s *Service) ListMessages(ctx context.Context, sessionID, conversationID string) ([]Message, error) {
	if _, err := s.GetOwnedConversation(ctx, sessionID, conversationID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID)
}

// Summarize regenerates the rolling summary for a conversation from its
// recent turns. Called by the worker, not the request path.
func (s *Service) Summarize(ctx context.Context, conversationID string) error {
	recent, err := s.repo.ListRecentMessagesDesc(ctx, conversationID, 20)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		return nil
	}

	var transcript string
	for i := len(recent) - 1; i >= 0; i-- {
		transcript += fmt.Sprintf("%s: %s\n", recent[i].Role, recent[i].Content)
	}

	summary, err := s.provider.Generate(ctx,
		"Summarize the following conversation in at most three sentences, keeping facts the assistant should remember:\n\n"+transcript)
	if err != nil {
		return err
	}
	return s.repo.UpdateSummary(ctx, conversationID, summary)
}

func (s *Service) findOrCreateConversation(ctx context.Context, sessionID string, in SendInput) (*Conversation, error) {
	if in.ConversationID != "" {
		return s.GetOwnedConversation(ctx, sessionID, in.ConversationID)
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	title := in.Content
	if len(title) > 50 {
		title = title[:50]
	}
	conv := &Conversation{ID: id, SessionID: sessionID, Title: title}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Service) insertMessage(ctx context.Context, conversationID, role, content string, isImage bool, audioURL *string) (*Message, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	m := &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		IsImage:        isImage,
		AudioURL:       audioURL,
	}
	if err := s.repo.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func sessionMetadata(sess *session.Session) enrich.Metadata {
	md := enrich.Metadata{
		Tier:         sess.Tier,
		TokenBalance: sess.TokenBalance,
		Timestamp:    time.Now().UnixMilli(),
	}
	if sess.WalletAddress != nil {
		md.WalletAddress = *sess.WalletAddress
	}
	if sess.MemoryBank != nil {
		md.MemoryBank = *sess.MemoryBank
	}
	return md
}
