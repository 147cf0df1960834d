package voice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/aurumlabs/tokenchat/internal/enrich"
	"github.com/aurumlabs/tokenchat/internal/session"
)

// fakeConn scripts one side of a websocket: reads come from a channel,
// writes are recorded.
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	closed int

	reads chan []byte
	done  chan struct{}
	once  sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads: make(chan []byte, 16),
		done:  make(chan struct{}),
	}
}

func (f *fakeConn) WriteJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.writes = append(f.writes, b)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-f.reads:
		if !ok {
			return 0, nil, io.EOF
		}
		return 1, data, nil
	case <-f.done:
		return 0, nil, io.EOF
	}
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeConn) hasFrameType(want string) bool {
	for _, b := range f.written() {
		var frame struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(b, &frame) == nil && frame.Type == want {
			return true
		}
	}
	return false
}

type fakeSynthProvider struct {
	conn *fakeConn
	err  error
}

func (f *fakeSynthProvider) Dial(ctx context.Context) (Conn, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}

type echoEnricher struct {
	mu       sync.Mutex
	lastReq  enrich.Request
	received int
}

func (e *echoEnricher) Enrich(ctx context.Context, req enrich.Request) enrich.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastReq = req
	e.received++
	return enrich.Result{Prompt: "enriched: " + req.Content}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&AudioCache{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testSession(id string) *session.Session {
	return &session.Session{ID: id, Tier: "Free Trial"}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func TestRun_DialFailureTellsClientAndCleansUp(t *testing.T) {
	db := openTestDB(t)
	client := newFakeConn()
	c := NewCoordinator(&fakeSynthProvider{err: errors.New("refused")}, &echoEnricher{}, NewRepo(db))

	err := c.Run(context.Background(), client, testSession("01SESSDIALFAIL0000000000000"), "conv1", enrich.PersonalityAutistic)
	if err == nil {
		t.Fatalf("expected dial error")
	}
	if !client.hasFrameType("error") {
		t.Fatalf("client should receive an error frame, got %v", client.written())
	}
	if c.ActiveStreams() != 0 {
		t.Fatalf("registry leaked, active = %d", c.ActiveStreams())
	}
}

func TestRun_TextInputIsEnrichedThenSpoken(t *testing.T) {
	db := openTestDB(t)
	client := newFakeConn()
	synth := newFakeConn()
	enricher := &echoEnricher{}
	c := NewCoordinator(&fakeSynthProvider{conn: synth}, enricher, NewRepo(db))

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		_ = c.Run(context.Background(), client, testSession("01SESSTEXTINPUT000000000000"), "conv2", enrich.PersonalitySavantist)
	}()

	waitFor(t, func() bool { return client.hasFrameType("voice_ready") }, "voice_ready frame")

	client.reads <- []byte(`{"type":"text_input","text":"hello world"}`)

	waitFor(t, func() bool { return len(synth.written()) > 0 }, "speak instruction")

	var in speakInstruction
	if err := json.Unmarshal(synth.written()[0], &in); err != nil {
		t.Fatalf("unmarshal speak: %v", err)
	}
	if in.Text != "enriched: hello world" || !in.TryTriggerGeneration {
		t.Fatalf("unexpected speak instruction: %+v", in)
	}

	enricher.mu.Lock()
	if enricher.lastReq.Modality != enrich.ModalityVoice {
		t.Fatalf("modality = %q, want VOICE", enricher.lastReq.Modality)
	}
	if enricher.lastReq.SessionID != "01SESSTEXTINPUT000000000000" {
		t.Fatalf("enrichment must carry the real session id, got %q", enricher.lastReq.SessionID)
	}
	enricher.mu.Unlock()

	client.Close()
	<-doneCh
	if c.ActiveStreams() != 0 {
		t.Fatalf("stream not torn down")
	}
}

func TestRun_FinalChunkCachesUtteranceOnce(t *testing.T) {
	db := openTestDB(t)
	client := newFakeConn()
	synth := newFakeConn()
	c := NewCoordinator(&fakeSynthProvider{conn: synth}, &echoEnricher{}, NewRepo(db))

	sessID := "01SESSFINALCHUNK00000000000"
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		_ = c.Run(context.Background(), client, testSession(sessID), "conv3", enrich.PersonalityAutistic)
	}()
	waitFor(t, func() bool { return client.hasFrameType("voice_ready") }, "voice_ready frame")

	client.reads <- []byte(`{"type":"text_input","text":"say this"}`)
	waitFor(t, func() bool { return len(synth.written()) > 0 }, "speak instruction")

	synth.reads <- []byte(`{"audio":"QUJD","isFinal":false}`)
	synth.reads <- []byte(`{"audio":"REVG","isFinal":true}`)

	waitFor(t, func() bool { return client.hasFrameType("audio_output") }, "audio relayed")

	var entries []AudioCache
	waitFor(t, func() bool {
		entries = nil
		db.Where("session_id = ?", sessID).Find(&entries)
		return len(entries) == 1
	}, "exactly one cached utterance")

	e := entries[0]
	if e.SessionID != sessID {
		t.Fatalf("cache must use the real session id, got %q", e.SessionID)
	}
	if e.SecureToken == "" || e.AudioURL != "/api/audio/"+e.SecureToken {
		t.Fatalf("unexpected cache entry: %+v", e)
	}
	if e.Text != "enriched: say this" {
		t.Fatalf("cached text = %q", e.Text)
	}

	client.Close()
	<-doneCh
}

func TestRun_UnknownFrameIsIgnored(t *testing.T) {
	db := openTestDB(t)
	client := newFakeConn()
	synth := newFakeConn()
	c := NewCoordinator(&fakeSynthProvider{conn: synth}, &echoEnricher{}, NewRepo(db))

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		_ = c.Run(context.Background(), client, testSession("01SESSUNKNOWNFRAME000000000"), "conv4", enrich.PersonalityAutistic)
	}()
	waitFor(t, func() bool { return client.hasFrameType("voice_ready") }, "voice_ready frame")

	client.reads <- []byte(`{"type":"selfdestruct"}`)
	client.reads <- []byte(`{"type":"stop"}`)

	// The stop flush proves the unknown frame was skipped without
	// breaking the loop.
	waitFor(t, func() bool {
		for _, b := range synth.written() {
			var in speakInstruction
			if json.Unmarshal(b, &in) == nil && in.Flush {
				return true
			}
		}
		return false
	}, "flush after unknown frame")

	if len(synth.written()) != 1 {
		t.Fatalf("unknown frame must not reach synthesis, writes = %d", len(synth.written()))
	}

	client.Close()
	<-doneCh
}

func TestClose_Idempotent(t *testing.T) {
	db := openTestDB(t)
	client := newFakeConn()
	synth := newFakeConn()
	c := NewCoordinator(&fakeSynthProvider{conn: synth}, &echoEnricher{}, NewRepo(db))

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		_ = c.Run(context.Background(), client, testSession("01SESSIDEMPOTENT00000000000"), "conv5", enrich.PersonalityAutistic)
	}()
	waitFor(t, func() bool { return c.ActiveStreams() == 1 }, "stream registered")

	var streamID string
	c.mu.Lock()
	for id := range c.streams {
		streamID = id
	}
	c.mu.Unlock()

	c.Close(streamID)
	c.Close(streamID)
	c.Close(streamID)

	if c.ActiveStreams() != 0 {
		t.Fatalf("active = %d, want 0", c.ActiveStreams())
	}
	if synth.closeCount() != 1 {
		t.Fatalf("synth closed %d times, want 1", synth.closeCount())
	}

	client.Close()
	<-doneCh
}
