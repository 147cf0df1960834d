package voice

import "encoding/json"

// clientFrame is one discrete message from the browser over the stream.
type clientFrame struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Audio string `json:"audio,omitempty"`
}

const (
	frameTextInput  = "text_input"
	frameAudioInput = "audio_input"
	frameStop       = "stop"
)

// serverFrame is one typed message to the browser.
type serverFrame struct {
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`
	Audio     string          `json:"audio,omitempty"`
	Alignment json.RawMessage `json:"alignment,omitempty"`
}

func errorFrame(msg string) serverFrame {
	return serverFrame{Type: "error", Message: msg}
}

// synthEvent is one message from the synthesis socket: an incremental
// audio chunk, possibly carrying the final marker for the utterance.
type synthEvent struct {
	Audio     string          `json:"audio"`
	IsFinal   bool            `json:"isFinal"`
	Alignment json.RawMessage `json:"alignment"`
	Error     string          `json:"error,omitempty"`
}

// speakInstruction feeds text to the synthesis socket. Flush forces
// buffered text out immediately instead of waiting for end-of-utterance.
type speakInstruction struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation,omitempty"`
	Flush                bool   `json:"flush,omitempty"`
}
