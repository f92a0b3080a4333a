package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/voxlay/voxlay/internal/model/personality"
	"github.com/voxlay/voxlay/internal/model/voice"
	"github.com/voxlay/voxlay/internal/service/generation"
	"github.com/voxlay/voxlay/internal/service/quota"
	"github.com/voxlay/voxlay/internal/service/synthesis"
	"github.com/voxlay/voxlay/internal/service/understanding"
)

type fakeChannel struct {
	mu   sync.Mutex
	msgs []voice.OutboundMessage
}

func (c *fakeChannel) Send(msg voice.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeChannel) byType(kind string) []voice.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []voice.OutboundMessage
	for _, msg := range c.msgs {
		if msg.Type == kind {
			out = append(out, msg)
		}
	}
	return out
}

type fakeLink struct {
	mu      sync.Mutex
	texts   []string
	flushes int
	closes  int
	sendErr error
}

func (l *fakeLink) SendText(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendErr != nil {
		return l.sendErr
	}
	l.texts = append(l.texts, text)
	return nil
}

func (l *fakeLink) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushes++
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes++
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	err     error
	voices  []string
	links   []*fakeLink
	onChunk func(synthesis.Chunk)
}

func (o *fakeOpener) Open(_ context.Context, voiceID string, onChunk func(synthesis.Chunk), _ func(error)) (voice.SynthesisLink, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	o.voices = append(o.voices, voiceID)
	o.onChunk = onChunk
	link := &fakeLink{}
	o.links = append(o.links, link)
	return link, nil
}

type fakeTranscriber struct {
	result understanding.Result
	err    error
	calls  int
}

func (t *fakeTranscriber) Transcribe(context.Context, []byte) (understanding.Result, error) {
	t.calls++
	if t.err != nil {
		return understanding.Result{}, t.err
	}
	return t.result, nil
}

type fakeResponder struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []generation.Request
}

func (r *fakeResponder) Respond(_ context.Context, req generation.Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	if r.err != nil {
		return "", r.err
	}
	return r.reply, nil
}

type fakeReporter struct {
	mu       sync.Mutex
	calls    int
	sessions []string
	minutes  []int
}

func (r *fakeReporter) IncrementUsage(_ context.Context, sessionID string, minutes int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.sessions = append(r.sessions, sessionID)
	r.minutes = append(r.minutes, minutes)
	return nil
}

type testHarness struct {
	orch        *Orchestrator
	registry    *Registry
	opener      *fakeOpener
	transcriber *fakeTranscriber
	responder   *fakeResponder
	reporter    *fakeReporter
}

func newHarness() *testHarness {
	h := &testHarness{
		registry:    NewRegistry(),
		opener:      &fakeOpener{},
		transcriber: &fakeTranscriber{result: understanding.Result{Text: "hello"}},
		responder:   &fakeResponder{reply: "hi"},
		reporter:    &fakeReporter{},
	}
	resolver := personality.NewTableResolver(personality.Seed())
	h.orch = NewOrchestrator(h.registry, h.opener, h.transcriber, h.responder, resolver, quota.NewAccountant(h.reporter), LogEvents{})
	return h
}

func TestStartPreservesSessionID(t *testing.T) {
	h := newHarness()
	client := &fakeChannel{}

	streamID, err := h.orch.Start(context.Background(), client, "session-abc", "conv-1", "Savantist")
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}

	sess, ok := h.registry.Get(streamID)
	if !ok {
		t.Fatal("session not registered")
	}
	if sess.SessionID != "session-abc" {
		t.Fatalf("sessionID must be preserved verbatim, got %s", sess.SessionID)
	}
	if len(client.byType(voice.KindVoiceReady)) != 1 {
		t.Fatal("expected one voice_ready")
	}
}

func TestStartOpenerFailureLeavesNoPartialState(t *testing.T) {
	h := newHarness()
	h.opener.err = errors.New("dial refused")
	client := &fakeChannel{}

	if _, err := h.orch.Start(context.Background(), client, "session-1", "conv-1", "Savantist"); err == nil {
		t.Fatal("expected Start to fail")
	}

	if h.registry.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", h.registry.Len())
	}
	if len(client.byType(voice.KindError)) == 0 {
		t.Fatal("expected an error notification")
	}
	if len(client.byType(voice.KindVoiceReady)) != 0 {
		t.Fatal("voice_ready must not be sent on setup failure")
	}
}

func TestTeardownTwiceReportsOnce(t *testing.T) {
	h := newHarness()
	client := &fakeChannel{}

	streamID, err := h.orch.Start(context.Background(), client, "session-1", "conv-1", "Savantist")
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}

	h.orch.Teardown(context.Background(), streamID)
	h.orch.Teardown(context.Background(), streamID)

	if h.reporter.calls != 1 {
		t.Fatalf("usage must be reported exactly once, got %d", h.reporter.calls)
	}
	if h.opener.links[0].closes != 1 {
		t.Fatalf("link must be closed exactly once, got %d", h.opener.links[0].closes)
	}
}

func TestConcurrentSessionsDoNotSharePersonality(t *testing.T) {
	h := newHarness()
	clientA := &fakeChannel{}
	clientB := &fakeChannel{}

	streamA, err := h.orch.Start(context.Background(), clientA, "session-a", "conv-a", "Savantist")
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}
	streamB, err := h.orch.Start(context.Background(), clientB, "session-b", "conv-b", "Stoic")
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}

	h.orch.HandleMessage(context.Background(), streamA, clientA, voice.InboundMessage{Type: voice.KindTextInput, Text: "one"})
	h.orch.HandleMessage(context.Background(), streamB, clientB, voice.InboundMessage{Type: voice.KindTextInput, Text: "two"})

	if len(h.responder.reqs) != 2 {
		t.Fatalf("expected 2 routed requests, got %d", len(h.responder.reqs))
	}
	if h.responder.reqs[0].Personality != "Savantist" {
		t.Fatalf("session A personality leaked: %s", h.responder.reqs[0].Personality)
	}
	if h.responder.reqs[1].Personality != "Stoic" {
		t.Fatalf("session B personality leaked: %s", h.responder.reqs[1].Personality)
	}
}

func TestTextInputRoutesAndSynthesizes(t *testing.T) {
	h := newHarness()
	h.responder.reply = "Hi there"
	client := &fakeChannel{}

	streamID, err := h.orch.Start(context.Background(), client, "session-1", "conv-1", "Savantist")
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}

	h.orch.HandleMessage(context.Background(), streamID, client, voice.InboundMessage{Type: voice.KindTextInput, Text: "Hello"})

	req := h.responder.reqs[0]
	if req.Personality != "Savantist" || req.Modality != voice.ModalityVoice || req.Content != "Hello" {
		t.Fatalf("unexpected routed request: %+v", req)
	}
	if h.transcriber.calls != 0 {
		t.Fatal("text input must skip transcription")
	}

	replies := client.byType(voice.KindAIResponse)
	if len(replies) != 1 || replies[0].Text != "Hi there" {
		t.Fatalf("unexpected ai_response frames: %+v", replies)
	}

	link := h.opener.links[0]
	if len(link.texts) != 1 || link.texts[0] != "Hi there" {
		t.Fatalf("synthesis must receive the reply, got %v", link.texts)
	}
}

func TestAudioInputEmitsTranscriptAndReply(t *testing.T) {
	h := newHarness()
	h.transcriber.result = understanding.Result{Text: "spoken words"}
	client := &fakeChannel{}

	streamID, err := h.orch.Start(context.Background(), client, "session-1", "conv-1", "Savantist")
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}

	audio := base64.StdEncoding.EncodeToString([]byte("pcm"))
	h.orch.HandleMessage(context.Background(), streamID, client, voice.InboundMessage{Type: voice.KindAudioInput, Audio: audio})

	if len(client.byType(voice.KindAudioProcessing)) != 1 {
		t.Fatal("expected audio_processing acknowledgement")
	}
	transcripts := client.byType(voice.KindTranscript)
	if len(transcripts) != 1 || transcripts[0].Text != "spoken words" {
		t.Fatalf("unexpected transcript frames: %+v", transcripts)
	}
	if len(h.responder.reqs) != 1 || h.responder.reqs[0].Content != "spoken words" {
		t.Fatal("transcript must be routed")
	}
}

func TestNoSpeechIsSilentlyIgnored(t *testing.T) {
	h := newHarness()
	h.transcriber.result = understanding.Result{NoSpeech: true}
	client := &fakeChannel{}

	streamID, err := h.orch.Start(context.Background(), client, "session-1", "conv-1", "Savantist")
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}

	audio := base64.StdEncoding.EncodeToString([]byte("silence"))
	h.orch.HandleMessage(context.Background(), streamID, client, voice.InboundMessage{Type: voice.KindAudioInput, Audio: audio})

	if len(client.byType(voice.KindTranscript)) != 0 {
		t.Fatal("no transcript expected for silence")
	}
	if len(client.byType(voice.KindAIResponse)) != 0 {
		t.Fatal("no ai_response expected for silence")
	}
	if len(client.byType(voice.KindError)) != 0 {
		t.Fatal("no speech is not an error")
	}
	if len(h.responder.reqs) != 0 {
		t.Fatal("no routing expected for silence")
	}
}

func TestTranscriptionErrorKeepsSessionOpen(t *testing.T) {
	h := newHarness()
	h.transcriber.err = understanding.ErrTranscriptionFailed
	client := &fakeChannel{}

	streamID, err := h.orch.Start(context.Background(), client, "session-1", "conv-1", "Savantist")
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}

	audio := base64.StdEncoding.EncodeToString([]byte("pcm"))
	h.orch.HandleMessage(context.Background(), streamID, client, voice.InboundMessage{Type: voice.KindAudioInput, Audio: audio})

	if len(client.byType(voice.KindError)) != 1 {
		t.Fatal("expected one error notification")
	}
	if _, ok := h.registry.Get(streamID); !ok {
		t.Fatal("per-message failure must not tear down the session")
	}

	// A later message on the same session is still accepted.
	h.transcriber.err = nil
	h.transcriber.result = understanding.Result{Text: "recovered"}
	h.orch.HandleMessage(context.Background(), streamID, client, voice.InboundMessage{Type: voice.KindAudioInput, Audio: audio})
	if len(client.byType(voice.KindTranscript)) != 1 {
		t.Fatal("subsequent messages must still work")
	}
}

func TestStopFlushesExactlyOnce(t *testing.T) {
	h := newHarness()
	client := &fakeChannel{}

	streamID, err := h.orch.Start(context.Background(), client, "session-1", "conv-1", "Savantist")
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}

	h.orch.HandleMessage(context.Background(), streamID, client, voice.InboundMessage{Type: voice.KindStop})

	link := h.opener.links[0]
	if link.flushes != 1 {
		t.Fatalf("expected exactly one flush, got %d", link.flushes)
	}
	if len(link.texts) != 0 {
		t.Fatalf("stop must not send text, got %v", link.texts)
	}
}

func TestUnrecognizedKindIsIgnored(t *testing.T) {
	h := newHarness()
	client := &fakeChannel{}

	streamID, err := h.orch.Start(context.Background(), client, "session-1", "conv-1", "Savantist")
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}
	before := len(client.msgs)

	h.orch.HandleMessage(context.Background(), streamID, client, voice.InboundMessage{Type: "ping"})

	if len(client.msgs) != before {
		t.Fatal("unrecognized kinds must not emit frames")
	}
	if _, ok := h.registry.Get(streamID); !ok {
		t.Fatal("unrecognized kinds must not change state")
	}
}

func TestReconnectEvictsAndFinalizesPreviousStream(t *testing.T) {
	h := newHarness()
	clientA := &fakeChannel{}
	clientB := &fakeChannel{}

	streamA, err := h.orch.Start(context.Background(), clientA, "session-1", "conv-1", "Savantist")
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if _, err := h.orch.Start(context.Background(), clientB, "session-1", "conv-1", "Savantist"); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	if _, ok := h.registry.Get(streamA); ok {
		t.Fatal("previous stream must be evicted on reconnect")
	}
	if h.opener.links[0].closes != 1 {
		t.Fatal("evicted stream's link must be closed")
	}
	if h.reporter.calls != 1 {
		t.Fatalf("evicted stream must report usage once, got %d", h.reporter.calls)
	}
}

// blockingOpener parks the first Open call until released so a competing
// Start can run while the dial is still in flight.
type blockingOpener struct {
	mu      sync.Mutex
	links   []*fakeLink
	opened  chan struct{}
	release chan struct{}
}

func newBlockingOpener() *blockingOpener {
	return &blockingOpener{
		opened:  make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (o *blockingOpener) Open(_ context.Context, _ string, _ func(synthesis.Chunk), _ func(error)) (voice.SynthesisLink, error) {
	o.mu.Lock()
	first := len(o.links) == 0
	link := &fakeLink{}
	o.links = append(o.links, link)
	o.mu.Unlock()

	if first {
		close(o.opened)
		<-o.release
	}
	return link, nil
}

func TestReconnectDuringAdapterOpenClosesDisplacedLink(t *testing.T) {
	registry := NewRegistry()
	opener := newBlockingOpener()
	reporter := &fakeReporter{}
	resolver := personality.NewTableResolver(personality.Seed())
	orch := NewOrchestrator(registry, opener,
		&fakeTranscriber{result: understanding.Result{Text: "hello"}},
		&fakeResponder{reply: "hi"},
		resolver, quota.NewAccountant(reporter), LogEvents{})

	clientA := &fakeChannel{}
	clientB := &fakeChannel{}

	startA := make(chan error, 1)
	go func() {
		_, err := orch.Start(context.Background(), clientA, "session-1", "conv-1", "Savantist")
		startA <- err
	}()

	// Wait until A's dial is in flight, then let a reconnect evict it.
	<-opener.opened
	streamB, err := orch.Start(context.Background(), clientB, "session-1", "conv-1", "Savantist")
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}

	close(opener.release)
	if err := <-startA; !errors.Is(err, ErrSessionDisplaced) {
		t.Fatalf("displaced Start must fail with ErrSessionDisplaced, got %v", err)
	}

	opener.mu.Lock()
	linkA, linkB := opener.links[0], opener.links[1]
	opener.mu.Unlock()

	if linkA.closes != 1 {
		t.Fatalf("displaced link must be closed exactly once, got %d", linkA.closes)
	}
	if linkB.closes != 0 {
		t.Fatalf("replacement link must stay open, got %d closes", linkB.closes)
	}
	if reporter.calls != 1 {
		t.Fatalf("evicted session must report usage exactly once, got %d", reporter.calls)
	}
	if len(clientA.byType(voice.KindVoiceReady)) != 0 {
		t.Fatal("displaced session must not report readiness")
	}
	if sess, ok := registry.Get(streamB); !ok || sess.Synthesis != linkB {
		t.Fatal("replacement stream must stay registered with its own link")
	}
	if registry.Len() != 1 {
		t.Fatalf("expected 1 registered session, got %d", registry.Len())
	}
}

func TestSynthesisChunkForwardedAsAudioOutput(t *testing.T) {
	h := newHarness()
	client := &fakeChannel{}

	if _, err := h.orch.Start(context.Background(), client, "session-1", "conv-1", "Savantist"); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	h.opener.onChunk(synthesis.Chunk{Audio: []byte("mp3")})

	frames := client.byType(voice.KindAudioOutput)
	if len(frames) != 1 {
		t.Fatalf("expected one audio_output frame, got %d", len(frames))
	}
	if frames[0].Audio != base64.StdEncoding.EncodeToString([]byte("mp3")) {
		t.Fatal("audio must be forwarded base64-encoded")
	}
}

func TestAlignmentOnlyChunkIsForwarded(t *testing.T) {
	h := newHarness()
	client := &fakeChannel{}

	if _, err := h.orch.Start(context.Background(), client, "session-1", "conv-1", "Savantist"); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	h.opener.onChunk(synthesis.Chunk{Alignment: json.RawMessage(`{"chars":["h","i"]}`)})

	frames := client.byType(voice.KindAudioOutput)
	if len(frames) != 1 {
		t.Fatalf("alignment-only fragments must reach the client, got %d frames", len(frames))
	}
	if frames[0].Audio != "" {
		t.Fatalf("no audio expected, got %q", frames[0].Audio)
	}
	if len(frames[0].Alignment) == 0 {
		t.Fatal("alignment must pass through")
	}
}

func TestEmptyChunkIsDropped(t *testing.T) {
	h := newHarness()
	client := &fakeChannel{}

	if _, err := h.orch.Start(context.Background(), client, "session-1", "conv-1", "Savantist"); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	h.opener.onChunk(synthesis.Chunk{Final: true})

	if len(client.byType(voice.KindAudioOutput)) != 0 {
		t.Fatal("fragments with neither audio nor alignment must be dropped")
	}
}
