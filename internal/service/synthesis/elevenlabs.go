package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxlay/voxlay/internal/config"
	"github.com/voxlay/voxlay/internal/model/voice"
	"github.com/voxlay/voxlay/internal/service/audiocache"
)

// Chunk is one audio fragment received from the provider. Fragments arrive
// out-of-band from text submissions; there is no one-to-one pairing.
type Chunk struct {
	Audio     []byte
	Alignment json.RawMessage
	Final     bool
}

// Opener establishes one synthesis stream per session.
type Opener interface {
	// Open dials the provider for the given voice and starts the receive
	// loop. onChunk fires for every audio fragment; onErr fires once if the
	// stream fails outside of an explicit Close.
	Open(ctx context.Context, voiceID string, onChunk func(Chunk), onErr func(error)) (voice.SynthesisLink, error)
}

// Client dials the ElevenLabs stream-input WebSocket API.
type Client struct {
	cfg    config.SynthesisConfig
	cache  audiocache.Cache
	dialer *websocket.Dialer
}

// NewClient creates a synthesis client. Finished utterances are written to
// cache for token-addressed replay; pass nil to disable caching.
func NewClient(cfg config.SynthesisConfig, cache audiocache.Cache) *Client {
	return &Client{
		cfg:   cfg,
		cache: cache,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

// Wire frames for the stream-input protocol.
type initFrame struct {
	Text             string           `json:"text"`
	VoiceSettings    voiceSettings    `json:"voice_settings"`
	GenerationConfig generationConfig `json:"generation_config"`
	XIAPIKey         string           `json:"xi_api_key"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

type generationConfig struct {
	ChunkLengthSchedule []int `json:"chunk_length_schedule"`
}

type textFrame struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation,omitempty"`
	Flush                bool   `json:"flush,omitempty"`
}

type serverFrame struct {
	Audio     string          `json:"audio"`
	Alignment json.RawMessage `json:"alignment,omitempty"`
	IsFinal   bool            `json:"isFinal,omitempty"`
	Error     string          `json:"error,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Open implements Opener. The returned link is owned by exactly one session
// and must be closed exactly once.
func (c *Client) Open(ctx context.Context, voiceID string, onChunk func(Chunk), onErr func(error)) (voice.SynthesisLink, error) {
	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?model_id=%s", c.cfg.BaseURL, voiceID, c.cfg.ModelID)

	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("synthesis dial failed: %w", err)
	}

	link := &Stream{conn: conn, closed: make(chan struct{})}

	// The protocol requires a non-empty priming utterance in the init frame.
	init := initFrame{
		Text: " ",
		VoiceSettings: voiceSettings{
			Stability:       c.cfg.Stability,
			SimilarityBoost: c.cfg.Similarity,
			Speed:           c.cfg.Speed,
		},
		GenerationConfig: generationConfig{ChunkLengthSchedule: c.cfg.ChunkSchedule},
		XIAPIKey:         c.cfg.APIKey,
	}
	if err := link.writeJSON(init); err != nil {
		_ = link.Close()
		return nil, fmt.Errorf("synthesis init failed: %w", err)
	}

	go c.receiveLoop(link, onChunk, onErr)

	return link, nil
}

// receiveLoop forwards provider audio until the stream ends. On a fragment
// marked final the accumulated utterance is cached under a fresh token.
func (c *Client) receiveLoop(link *Stream, onChunk func(Chunk), onErr func(error)) {
	var utterance bytes.Buffer

	for {
		var frame serverFrame
		if err := link.conn.ReadJSON(&frame); err != nil {
			select {
			case <-link.closed:
				// Expected: the session closed the link.
			default:
				onErr(fmt.Errorf("synthesis stream failed: %w", err))
			}
			return
		}

		if frame.Error != "" {
			onErr(fmt.Errorf("synthesis provider error: %s %s", frame.Error, frame.Message))
			return
		}

		chunk := Chunk{Alignment: frame.Alignment, Final: frame.IsFinal}
		if frame.Audio != "" {
			audio, err := base64.StdEncoding.DecodeString(frame.Audio)
			if err != nil {
				onErr(fmt.Errorf("synthesis audio decode failed: %w", err))
				return
			}
			chunk.Audio = audio
			utterance.Write(audio)
		}

		onChunk(chunk)

		if frame.IsFinal && utterance.Len() > 0 {
			c.cacheUtterance(utterance.Bytes())
			utterance.Reset()
		}
	}
}

func (c *Client) cacheUtterance(audio []byte) {
	if c.cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, err := c.cache.Put(ctx, audio)
	if err != nil {
		log.Printf("[synthesis] replay cache write failed: %v", err)
		return
	}
	log.Printf("[synthesis] cached utterance bytes=%d token=%s", len(audio), token)
}

// Stream is one open synthesis connection. Implements voice.SynthesisLink.
type Stream struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// SendText forwards a text fragment, asking the provider to start generating.
func (s *Stream) SendText(text string) error {
	return s.writeJSON(textFrame{Text: text, TryTriggerGeneration: true})
}

// Flush forces emission of buffered audio at an utterance boundary.
func (s *Stream) Flush() error {
	return s.writeJSON(textFrame{Text: "", Flush: true})
}

// Close terminates the stream. Idempotent.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}
