package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/aurumlabs/tokenchat/internal/common"
	"github.com/aurumlabs/tokenchat/internal/enrich"
	"github.com/aurumlabs/tokenchat/internal/models"
	"github.com/aurumlabs/tokenchat/internal/session"
	"github.com/aurumlabs/tokenchat/internal/tier"
)

type fakeEnricher struct {
	prompt   string
	degraded bool
	lastReq  enrich.Request
}

func (f *fakeEnricher) Enrich(ctx context.Context, req enrich.Request) enrich.Result {
	f.lastReq = req
	prompt := f.prompt
	if prompt == "" {
		prompt = req.Content
	}
	return enrich.Result{Prompt: prompt, Degraded: f.degraded}
}

type fakeProvider struct {
	reply string
	err   error
	last  string
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	f.last = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) PublishSummary(ctx context.Context, conversationID string) error {
	f.published = append(f.published, conversationID)
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &session.Session{}, &session.RateLimitWindow{},
		&Conversation{}, &Message{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestSession(t *testing.T, db *gorm.DB) *session.Session {
	t.Helper()
	id, err := common.NewULID()
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	s := &session.Session{
		ID:          id,
		Fingerprint: "fp-" + id,
		Tier:        string(tier.FreeTrial),
		LastSeen:    time.Now(),
	}
	if err := session.NewRepo(db).Create(context.Background(), s); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func newTestService(db *gorm.DB, provider *fakeProvider, enricher *fakeEnricher, pub *fakePublisher) *Service {
	limiter := session.NewLimiter(session.NewRepo(db))
	var summaries SummaryPublisher
	if pub != nil {
		summaries = pub
	}
	return NewService(NewRepo(db), limiter, enricher, provider, summaries)
}

func TestSend_WritesUserAndAssistantInOrder(t *testing.T) {
	db := openTestDB(t)
	provider := &fakeProvider{reply: "hello there"}
	enricher := &fakeEnricher{prompt: "enriched prompt"}
	pub := &fakePublisher{}
	svc := newTestService(db, provider, enricher, pub)
	sess := newTestSession(t, db)

	out, err := svc.Send(context.Background(), sess, SendInput{
		Content:     "Hi",
		Personality: enrich.PersonalityAutistic,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if out.Conversation.Title != "Hi" {
		t.Fatalf("conversation title = %q", out.Conversation.Title)
	}
	if out.UserMessage.Role != "user" || out.UserMessage.Content != "Hi" {
		t.Fatalf("unexpected user message: %+v", out.UserMessage)
	}
	if out.AIMessage.Role != "assistant" || out.AIMessage.Content != "hello there" {
		t.Fatalf("unexpected assistant message: %+v", out.AIMessage)
	}
	if provider.last != "enriched prompt" {
		t.Fatalf("provider should receive the enriched prompt, got %q", provider.last)
	}
	if out.RateLimit.Remaining != 4 {
		t.Fatalf("remaining = %d, want 4", out.RateLimit.Remaining)
	}
	if len(pub.published) != 1 || pub.published[0] != out.Conversation.ID {
		t.Fatalf("expected one summary job for the conversation, got %v", pub.published)
	}

	msgs, err := svc.ListMessages(context.Background(), sess.ID, out.Conversation.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("unexpected message order: %+v", msgs)
	}
}

func TestSend_TitleTruncatedToFifty(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(db, &fakeProvider{reply: "ok"}, &fakeEnricher{}, nil)
	sess := newTestSession(t, db)

	long := strings.Repeat("a", 80)
	out, err := svc.Send(context.Background(), sess, SendInput{Content: long})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(out.Conversation.Title) != 50 {
		t.Fatalf("title length = %d, want 50", len(out.Conversation.Title))
	}
}

func TestSend_GenerationFailureChargesAndApologizes(t *testing.T) {
	db := openTestDB(t)
	provider := &fakeProvider{err: errors.New("upstream down")}
	pub := &fakePublisher{}
	svc := newTestService(db, provider, &fakeEnricher{}, pub)
	sess := newTestSession(t, db)

	out, err := svc.Send(context.Background(), sess, SendInput{Content: "Hi"})
	if err != nil {
		t.Fatalf("send should not fail on generation error: %v", err)
	}
	if !strings.Contains(out.AIMessage.Content, "I apologize") {
		t.Fatalf("expected apologetic assistant message, got %q", out.AIMessage.Content)
	}

	// The failed attempt still consumed quota.
	w, err := session.NewRepo(db).LatestWindow(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("latest window: %v", err)
	}
	if w.MessagesUsed != 1 {
		t.Fatalf("messages used = %d, want 1", w.MessagesUsed)
	}

	if len(pub.published) != 0 {
		t.Fatalf("failed generation must not enqueue a summary, got %v", pub.published)
	}
}

func TestSend_DeniedWhenWindowExhausted(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(db, &fakeProvider{reply: "ok"}, &fakeEnricher{}, nil)
	sess := newTestSession(t, db)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := svc.Send(ctx, sess, SendInput{Content: "Hi"}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	_, err := svc.Send(ctx, sess, SendInput{Content: "one more"})
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rle.Result.ResetTime.IsZero() {
		t.Fatalf("denial must carry the reset time")
	}

	// Denied send writes nothing.
	var count int64
	if err := db.Model(&Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("conversations.session_id = ?", sess.ID).
		Count(&count).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 10 {
		t.Fatalf("message count = %d, want 10", count)
	}
}

func TestSend_ImageRequestWrapsPrompt(t *testing.T) {
	db := openTestDB(t)
	provider := &fakeProvider{reply: "a scenic description"}
	enricher := &fakeEnricher{}
	svc := newTestService(db, provider, enricher, nil)
	sess := newTestSession(t, db)

	out, err := svc.Send(context.Background(), sess, SendInput{
		Content:      "draw a cat",
		RequestImage: true,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if enricher.lastReq.Modality != enrich.ModalityImage {
		t.Fatalf("modality = %q, want IMAGE", enricher.lastReq.Modality)
	}
	if !strings.Contains(provider.last, "draw a cat") || !strings.Contains(provider.last, "image") {
		t.Fatalf("image prompt not wrapped: %q", provider.last)
	}
	if !out.AIMessage.IsImage {
		t.Fatalf("assistant message should carry the image flag")
	}
}

func TestGetOwnedConversation_ForeignLooksMissing(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(db, &fakeProvider{reply: "ok"}, &fakeEnricher{}, nil)
	owner := newTestSession(t, db)
	other := newTestSession(t, db)

	out, err := svc.Send(context.Background(), owner, SendInput{Content: "Hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	_, err = svc.GetOwnedConversation(context.Background(), other.ID, out.Conversation.ID)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("foreign conversation should look missing, got %v", err)
	}
}

func TestSummarize_UpdatesRollingSummary(t *testing.T) {
	db := openTestDB(t)
	provider := &fakeProvider{reply: "they talked about cats"}
	svc := newTestService(db, provider, &fakeEnricher{}, nil)
	sess := newTestSession(t, db)

	out, err := svc.Send(context.Background(), sess, SendInput{Content: "tell me about cats"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.Summarize(context.Background(), out.Conversation.ID); err != nil {
		t.Fatalf("summarize: %v", err)
	}

	conv, err := svc.repo.GetConversation(context.Background(), out.Conversation.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conv.Summary == nil || *conv.Summary != "they talked about cats" {
		t.Fatalf("summary not updated: %+v", conv.Summary)
	}
	if conv.LastSummaryAt == nil {
		t.Fatalf("last summary timestamp not set")
	}
	if !strings.Contains(provider.last, "tell me about cats") {
		t.Fatalf("summary prompt should include the transcript, got %q", provider.last)
	}
}
