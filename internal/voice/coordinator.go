package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aurumlabs/tokenchat/internal/common"
	"github.com/aurumlabs/tokenchat/internal/enrich"
	"github.com/aurumlabs/tokenchat/internal/identity"
	"github.com/aurumlabs/tokenchat/internal/session"
)

// Enricher routes stream text input through the personality webhook. A
// degraded result carries the original text, so the stream keeps moving
// even when the webhook is down.
type Enricher interface {
	Enrich(ctx context.Context, req enrich.Request) enrich.Result
}

// stream is the in-memory record for one live bidirectional connection.
// It is keyed by a per-stream id so concurrent streams from one session
// do not collide, but all persisted writes use the real session id.
type stream struct {
	id             string
	sessionID      string
	conversationID string
	personality    enrich.Personality
	metadata       enrich.Metadata

	client Conn
	synth  Conn

	writeMu  sync.Mutex
	lastText string

	start time.Time
}

func (st *stream) send(v any) error {
	st.writeMu.Lock()
	defer st.writeMu.Unlock()
	return st.client.WriteJSON(v)
}

// Coordinator owns every live voice stream: the registry, the upstream
// synthesis sockets, and their teardown.
type Coordinator struct {
	mu      sync.Mutex
	streams map[string]*stream

	synth    SynthesisProvider
	enricher Enricher
	audio    *Repo
}

func NewCoordinator(synth SynthesisProvider, enricher Enricher, audio *Repo) *Coordinator {
	return &Coordinator{
		streams:  make(map[string]*stream),
		synth:    synth,
		enricher: enricher,
		audio:    audio,
	}
}

// Run drives one client connection until it disconnects or the upstream
// synthesis channel fails fatally. The caller has already validated the
// session, conversation ownership and voice quota.
func (c *Coordinator) Run(ctx context.Context, client Conn, sess *session.Session, conversationID string, personality enrich.Personality) error {
	st := &stream{
		id:             fmt.Sprintf("%s-voice-%s", sess.ID, uuid.NewString()),
		sessionID:      sess.ID,
		conversationID: conversationID,
		personality:    personality,
		metadata:       streamMetadata(sess),
		client:         client,
		start:          time.Now(),
	}

	c.mu.Lock()
	c.streams[st.id] = st
	c.mu.Unlock()

	log.Printf("[Voice] stream started stream=%s session=%s conversation=%s personality=%s",
		st.id, st.sessionID, st.conversationID, personality)

	synthConn, err := c.synth.Dial(ctx)
	if err != nil {
		log.Printf("[Voice] synthesis dial failed stream=%s err=%v", st.id, err)
		_ = st.send(errorFrame("Failed to initialize voice streaming"))
		c.Close(st.id)
		return err
	}
	st.synth = synthConn

	go c.pumpSynthesis(ctx, st)

	if err := st.send(serverFrame{Type: "voice_ready", Message: "Voice streaming ready"}); err != nil {
		c.Close(st.id)
		return err
	}

	for {
		_, data, err := client.ReadMessage()
		if err != nil {
			break
		}
		c.handleClientFrame(ctx, st, data)
	}

	c.Close(st.id)
	return nil
}

// Close tears down one stream: the upstream socket is closed and the
// registry entry removed. Safe to call any number of times from either
// side of the connection.
func (c *Coordinator) Close(streamID string) {
	c.mu.Lock()
	st, ok := c.streams[streamID]
	if ok {
		delete(c.streams, streamID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if st.synth != nil {
		_ = st.synth.Close()
	}
	log.Printf("[Voice] stream closed stream=%s session=%s uptime=%s",
		st.id, st.sessionID, time.Since(st.start).Round(time.Second))
}

// ActiveStreams reports the number of live streams.
func (c *Coordinator) ActiveStreams() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

func (c *Coordinator) isActive(streamID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.streams[streamID]
	return ok
}

func (c *Coordinator) handleClientFrame(ctx context.Context, st *stream, data []byte) {
	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Printf("[Voice] bad client frame stream=%s err=%v", st.id, err)
		return
	}

	switch f.Type {
	case frameTextInput:
		md := st.metadata
		md.Timestamp = time.Now().UnixMilli()
		result := c.enricher.Enrich(ctx, enrich.Request{
			Personality:  st.personality,
			Modality:     enrich.ModalityVoice,
			SessionID:    st.sessionID,
			Conversation: st.conversationID,
			Content:      f.Text,
			Metadata:     md,
		})
		st.writeMu.Lock()
		st.lastText = result.Prompt
		st.writeMu.Unlock()
		if err := c.speak(st, speakInstruction{Text: result.Prompt, TryTriggerGeneration: true}); err != nil {
			log.Printf("[Voice] speak failed stream=%s err=%v", st.id, err)
		}

	case frameAudioInput:
		// Speech-to-text is an extension point; acknowledge receipt so
		// the client is not left hanging.
		_ = st.send(serverFrame{Type: "audio_processing", Message: "Processing your speech..."})

	case frameStop:
		if err := c.speak(st, speakInstruction{Flush: true}); err != nil {
			log.Printf("[Voice] flush failed stream=%s err=%v", st.id, err)
		}

	default:
		log.Printf("[Voice] unknown frame type=%q stream=%s", f.Type, st.id)
	}
}

func (c *Coordinator) speak(st *stream, in speakInstruction) error {
	if st.synth == nil {
		return fmt.Errorf("synthesis channel not connected")
	}
	return st.synth.WriteJSON(in)
}

// pumpSynthesis relays upstream audio chunks to the client and caches
// each finalized utterance exactly once.
func (c *Coordinator) pumpSynthesis(ctx context.Context, st *stream) {
	for {
		_, data, err := st.synth.ReadMessage()
		if err != nil {
			if c.isActive(st.id) {
				_ = st.send(errorFrame("TTS connection error"))
				c.Close(st.id)
			}
			return
		}

		var ev synthEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[Voice] bad synthesis event stream=%s err=%v", st.id, err)
			continue
		}
		if ev.Error != "" {
			log.Printf("[Voice] synthesis error stream=%s err=%s", st.id, ev.Error)
			_ = st.send(errorFrame("TTS connection error"))
			c.Close(st.id)
			return
		}

		if ev.Audio != "" {
			_ = st.send(serverFrame{
				Type:      "audio_output",
				Audio:     ev.Audio,
				Alignment: ev.Alignment,
			})
		}

		if ev.IsFinal {
			c.cacheUtterance(ctx, st)
		}
	}
}

func (c *Coordinator) cacheUtterance(ctx context.Context, st *stream) {
	token, err := identity.NewSecureToken()
	if err != nil {
		log.Printf("[Voice] secure token failed stream=%s err=%v", st.id, err)
		return
	}
	id, err := common.NewULID()
	if err != nil {
		log.Printf("[Voice] audio cache id failed stream=%s err=%v", st.id, err)
		return
	}

	st.writeMu.Lock()
	text := st.lastText
	st.writeMu.Unlock()
	if text == "" {
		text = "Voice conversation audio"
	}

	entry := &AudioCache{
		ID:             id,
		SessionID:      st.sessionID, // real session id, never the stream id
		ConversationID: st.conversationID,
		AudioURL:       "/api/audio/" + token,
		SecureToken:    token,
		Text:           text,
		VoiceSettings:  `{"provider":"elevenlabs","streaming":true}`,
	}
	if err := c.audio.Create(ctx, entry); err != nil {
		log.Printf("[Voice] audio cache write failed stream=%s session=%s err=%v", st.id, st.sessionID, err)
		return
	}
	log.Printf("[Voice] audio cached stream=%s session=%s", st.id, st.sessionID)
}

func streamMetadata(sess *session.Session) enrich.Metadata {
	md := enrich.Metadata{
		Tier:         sess.Tier,
		TokenBalance: sess.TokenBalance,
	}
	if sess.WalletAddress != nil {
		md.WalletAddress = *sess.WalletAddress
	}
	if sess.MemoryBank != nil {
		md.MemoryBank = *sess.MemoryBank
	}
	return md
}
