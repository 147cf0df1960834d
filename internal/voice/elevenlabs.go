package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the bidirectional synthesis channel the coordinator relays
// speak instructions into and reads audio chunks from.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() (int, []byte, error)
	Close() error
}

// SynthesisProvider dials an authenticated, voice-configured streaming
// channel. Dial returning without error means the open handshake
// (authentication, then voice configuration) completed.
type SynthesisProvider interface {
	Dial(ctx context.Context) (Conn, error)
}

// ElevenLabs implements both the streaming channel (stream-input socket)
// and single-shot synthesis for the batch voice endpoint.
type ElevenLabs struct {
	APIKey  string
	VoiceID string
	ModelID string
	Dialer  *websocket.Dialer
	Client  *http.Client
}

func NewElevenLabs(apiKey, voiceID, modelID string) *ElevenLabs {
	if voiceID == "" {
		voiceID = "21m00Tcm4TlvDq8ikWAM"
	}
	if modelID == "" {
		modelID = "eleven_turbo_v2_5"
	}
	return &ElevenLabs{
		APIKey:  apiKey,
		VoiceID: voiceID,
		ModelID: modelID,
		Dialer:  &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

func (e *ElevenLabs) Dial(ctx context.Context) (Conn, error) {
	if strings.TrimSpace(e.APIKey) == "" {
		return nil, errors.New("elevenlabs: api key is required")
	}

	url := fmt.Sprintf("wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s",
		e.VoiceID, e.ModelID)
	conn, resp, err := e.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs dial: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	// Authentication first, then voice configuration with a leading
	// space to prime the stream.
	if err := conn.WriteJSON(map[string]string{"xi_api_key": e.APIKey}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("elevenlabs auth: %w", err)
	}
	if err := conn.WriteJSON(map[string]any{
		"text": " ",
		"voice_settings": voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.8,
			Speed:           1.0,
		},
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("elevenlabs voice config: %w", err)
	}

	return conn, nil
}

// Synthesize renders text to audio in one shot for the batch endpoint.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(e.APIKey) == "" {
		return nil, errors.New("elevenlabs: api key is required")
	}

	reqBody := map[string]any{
		"text":     text,
		"model_id": e.ModelID,
		"voice_settings": voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.5,
		},
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("https://api.elevenlabs.io/v1/text-to-speech/%s", e.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", e.APIKey)

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("elevenlabs: %s", msg)
	}

	return io.ReadAll(resp.Body)
}
