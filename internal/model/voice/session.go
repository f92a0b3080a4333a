package voice

import "time"

// SynthesisLink is the exclusively owned handle to one synthesis stream.
// It is attached to exactly one session and closed exactly once at teardown.
type SynthesisLink interface {
	// SendText forwards a text fragment to the provider.
	SendText(text string) error
	// Flush forces emission of buffered audio at an utterance boundary.
	Flush() error
	// Close terminates the stream. Safe to call once; callers must not share
	// the link across sessions.
	Close() error
}

// Session binds one physical client connection to its relay state.
// StreamID keys the registry; SessionID is the stable identifier the rest of
// the system (persistence, quota) keys on and is preserved verbatim across
// reconnects.
type Session struct {
	StreamID       string
	SessionID      string
	ConversationID string
	Personality    string
	Synthesis      SynthesisLink
	Active         bool
	StartedAt      time.Time
}
