package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/voxlay/voxlay/internal/model/personality"
	"github.com/voxlay/voxlay/internal/model/voice"
	"github.com/voxlay/voxlay/internal/service/generation"
	"github.com/voxlay/voxlay/internal/service/quota"
	"github.com/voxlay/voxlay/internal/service/synthesis"
	"github.com/voxlay/voxlay/internal/service/understanding"
)

// ErrNotConfigured is returned when a required adapter is missing at session
// start; setup failures are fatal to the session, never partial.
var ErrNotConfigured = errors.New("voice relay not fully configured")

// ErrSessionDisplaced is returned when a reconnect for the same sessionID
// evicted this stream while its adapters were still being opened.
var ErrSessionDisplaced = errors.New("session displaced by a newer connection")

// ClientChannel delivers outbound frames to one client connection. Send must
// be safe for concurrent use and preserve enqueue order per connection.
type ClientChannel interface {
	Send(msg voice.OutboundMessage) error
}

// Orchestrator owns the registry, wires the adapters together, and drives
// the per-session lifecycle. All session state mutation happens on the
// per-connection handling goroutine; adapters never touch the registry.
type Orchestrator struct {
	registry    *Registry
	synth       synthesis.Opener
	transcriber understanding.Transcriber
	responder   generation.Responder
	voices      personality.Resolver
	accountant  *quota.Accountant
	events      Events
}

// NewOrchestrator wires the coordinating component. accountant may be nil
// when no quota collaborator is configured.
func NewOrchestrator(
	registry *Registry,
	synth synthesis.Opener,
	transcriber understanding.Transcriber,
	responder generation.Responder,
	voices personality.Resolver,
	accountant *quota.Accountant,
	events Events,
) *Orchestrator {
	if events == nil {
		events = LogEvents{}
	}
	return &Orchestrator{
		registry:    registry,
		synth:       synth,
		transcriber: transcriber,
		responder:   responder,
		voices:      voices,
		accountant:  accountant,
		events:      events,
	}
}

// Start allocates session state, opens the synthesis stream, and
// acknowledges readiness. On any setup failure the client gets one error
// notification and the registry is left without a partial entry. The
// supplied sessionID is stored verbatim; external collaborators key usage
// and history on it.
func (o *Orchestrator) Start(ctx context.Context, client ClientChannel, sessionID, conversationID, personalityID string) (string, error) {
	streamID := uuid.NewString()

	sess := &voice.Session{
		StreamID:       streamID,
		SessionID:      sessionID,
		ConversationID: conversationID,
		Personality:    personalityID,
		Active:         true,
		StartedAt:      time.Now(),
	}

	evicted, err := o.registry.Add(sess)
	if err != nil {
		o.sendError(client, "voice session setup failed")
		return "", err
	}
	if evicted != nil {
		// A reconnect displaced the previous stream for this sessionID.
		o.finalize(ctx, evicted)
	}

	if o.synth == nil || o.responder == nil {
		o.sendError(client, "voice service unavailable")
		o.Teardown(ctx, streamID)
		return "", ErrNotConfigured
	}

	voiceID := o.voices.VoiceID(personalityID)
	link, err := o.synth.Open(ctx, voiceID,
		func(chunk synthesis.Chunk) { o.forwardAudio(client, chunk) },
		func(err error) { o.sendError(client, "synthesis stream error: "+err.Error()) },
	)
	if err != nil {
		o.sendError(client, "failed to open synthesis stream")
		o.Teardown(ctx, streamID)
		return "", err
	}

	// The dial ran outside the registry lock; a reconnect for the same
	// sessionID may have evicted and finalized this stream in the meantime.
	// In that case the fresh link belongs to nobody and closes here.
	if !o.registry.Attach(streamID, link) {
		if closeErr := link.Close(); closeErr != nil {
			log.Printf("[relay] displaced link close failed stream=%s: %v", streamID, closeErr)
		}
		o.sendError(client, "session displaced by a newer connection")
		return "", ErrSessionDisplaced
	}
	o.events.AdapterOpened(streamID, "synthesis")

	if o.transcriber == nil {
		o.sendError(client, "understanding service unavailable")
		o.Teardown(ctx, streamID)
		return "", ErrNotConfigured
	}
	o.events.AdapterOpened(streamID, "understanding")

	if err := client.Send(voice.OutboundMessage{Type: voice.KindVoiceReady}); err != nil {
		o.Teardown(ctx, streamID)
		return "", err
	}

	o.events.SessionStarted(streamID, sessionID, personalityID)
	return streamID, nil
}

// HandleMessage dispatches one inbound client frame. Frames for a single
// session are handled one at a time in arrival order by the connection's
// read loop; per-message failures are reported to the client and leave the
// session open.
func (o *Orchestrator) HandleMessage(ctx context.Context, streamID string, client ClientChannel, msg voice.InboundMessage) {
	sess, ok := o.registry.Get(streamID)
	if !ok {
		return
	}

	o.events.MessageDispatched(streamID, msg.Type)

	switch msg.Type {
	case voice.KindAudioInput:
		o.handleAudioInput(ctx, sess, client, msg.Audio)
	case voice.KindTextInput:
		o.handleTextInput(ctx, sess, client, msg.Text)
	case voice.KindStop:
		if err := sess.Synthesis.Flush(); err != nil {
			o.sendError(client, "flush failed")
		}
	default:
		log.Printf("[relay] ignoring unrecognized message kind %q stream=%s", msg.Type, streamID)
	}
}

func (o *Orchestrator) handleAudioInput(ctx context.Context, sess *voice.Session, client ClientChannel, audioB64 string) {
	_ = client.Send(voice.OutboundMessage{Type: voice.KindAudioProcessing, Message: "processing audio"})

	audio, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		o.sendError(client, "invalid audio payload")
		return
	}

	result, err := o.transcriber.Transcribe(ctx, audio)
	if err != nil {
		o.sendError(client, "transcription failed")
		return
	}
	if result.NoSpeech {
		// Expected outcome, not an error: no transcript, no routing.
		return
	}

	_ = client.Send(voice.OutboundMessage{Type: voice.KindTranscript, Text: result.Text})

	o.routeAndSpeak(ctx, sess, client, result.Text)
}

func (o *Orchestrator) handleTextInput(ctx context.Context, sess *voice.Session, client ClientChannel, text string) {
	if text == "" {
		return
	}
	o.routeAndSpeak(ctx, sess, client, text)
}

// routeAndSpeak forwards text to content generation and feeds the reply to
// the synthesis stream.
func (o *Orchestrator) routeAndSpeak(ctx context.Context, sess *voice.Session, client ClientChannel, text string) {
	reply, err := o.responder.Respond(ctx, generation.Request{
		Personality:    sess.Personality,
		Modality:       voice.ModalityVoice,
		SessionID:      sess.SessionID,
		ConversationID: sess.ConversationID,
		Content:        text,
	})
	if err != nil {
		o.sendError(client, "response generation failed")
		return
	}

	_ = client.Send(voice.OutboundMessage{Type: voice.KindAIResponse, Text: reply})

	if err := sess.Synthesis.SendText(reply); err != nil {
		o.sendError(client, "synthesis send failed")
	}
}

// Teardown releases everything the stream owns. Safe to call more than
// once; the registry removal is the single gate, so the link closes and
// usage reports at most once per session.
func (o *Orchestrator) Teardown(ctx context.Context, streamID string) {
	sess, ok := o.registry.Remove(streamID)
	if !ok {
		return
	}
	o.finalize(ctx, sess)
}

func (o *Orchestrator) finalize(ctx context.Context, sess *voice.Session) {
	sess.Active = false

	if sess.Synthesis != nil {
		if err := sess.Synthesis.Close(); err != nil {
			log.Printf("[relay] synthesis close failed stream=%s: %v", sess.StreamID, err)
		}
	}

	if o.accountant != nil {
		o.accountant.Report(ctx, sess.SessionID, sess.StartedAt)
	}

	o.events.SessionClosed(sess.StreamID, sess.SessionID)
}

// forwardAudio relays a provider fragment. Alignment can arrive without
// audio bytes and still has to reach the client; only fragments carrying
// neither are dropped.
func (o *Orchestrator) forwardAudio(client ClientChannel, chunk synthesis.Chunk) {
	if len(chunk.Audio) == 0 && len(chunk.Alignment) == 0 {
		return
	}
	msg := voice.OutboundMessage{
		Type:      voice.KindAudioOutput,
		Alignment: chunk.Alignment,
	}
	if len(chunk.Audio) > 0 {
		msg.Audio = base64.StdEncoding.EncodeToString(chunk.Audio)
	}
	_ = client.Send(msg)
}

func (o *Orchestrator) sendError(client ClientChannel, message string) {
	if err := client.Send(voice.OutboundMessage{Type: voice.KindError, Message: message}); err != nil {
		log.Printf("[relay] error notification failed: %v", err)
	}
}
