package voice

import "encoding/json"

// Inbound message kinds accepted from the client connection.
const (
	KindAudioInput = "audio_input"
	KindTextInput  = "text_input"
	KindStop       = "stop"
)

// Outbound message kinds sent to the client connection.
const (
	KindVoiceReady      = "voice_ready"
	KindAudioProcessing = "audio_processing"
	KindTranscript      = "transcript"
	KindAIResponse      = "ai_response"
	KindAudioOutput     = "audio_output"
	KindError           = "error"
)

// InboundMessage is one client frame, discriminated by Type.
type InboundMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"` // base64, audio_input only
	Text  string `json:"text,omitempty"`  // text_input only
}

// OutboundMessage is one frame sent back to the client.
type OutboundMessage struct {
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`
	Text      string          `json:"text,omitempty"`
	Audio     string          `json:"audio,omitempty"` // base64
	Alignment json.RawMessage `json:"alignment,omitempty"`
}

// Modality tags routed content with its origin channel.
const ModalityVoice = "VOICE"
