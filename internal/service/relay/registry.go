package relay

import (
	"errors"
	"sync"

	"github.com/voxlay/voxlay/internal/model/voice"
)

// ErrDuplicateStream is returned when a stream identifier is registered twice.
var ErrDuplicateStream = errors.New("stream already registered")

// Registry is the concurrency-safe mapping from stream identifier to session
// state. It owns two indices, streamID to Session and sessionID to streamID,
// always created and removed together under one critical section.
type Registry struct {
	mu        sync.Mutex
	byStream  map[string]*voice.Session
	bySession map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byStream:  make(map[string]*voice.Session),
		bySession: make(map[string]string),
	}
}

// Add registers a session under its stream identifier. When the same
// sessionID already has an active stream, that entry is evicted and returned
// so the caller can finalize it; a sessionID maps to at most one active
// stream at a time.
func (r *Registry) Add(sess *voice.Session) (evicted *voice.Session, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byStream[sess.StreamID]; exists {
		return nil, ErrDuplicateStream
	}

	if oldStream, exists := r.bySession[sess.SessionID]; exists {
		evicted = r.byStream[oldStream]
		delete(r.byStream, oldStream)
		delete(r.bySession, sess.SessionID)
	}

	r.byStream[sess.StreamID] = sess
	r.bySession[sess.SessionID] = sess.StreamID
	return evicted, nil
}

// Attach binds the synthesis link to a still-registered stream. Returns
// false when the stream was evicted or removed while the link was being
// established; ownership of the link then stays with the caller, which
// must close it. Attach and eviction share the registry lock, so a link
// is either visible to finalize or never attached at all.
func (r *Registry) Attach(streamID string, link voice.SynthesisLink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.byStream[streamID]
	if !ok {
		return false
	}
	sess.Synthesis = link
	return true
}

// Get looks up a session by stream identifier.
func (r *Registry) Get(streamID string) (*voice.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.byStream[streamID]
	return sess, ok
}

// Remove deletes both index entries for the stream and returns the session.
// The second call for the same stream returns false; this is the gate that
// makes teardown idempotent.
func (r *Registry) Remove(streamID string) (*voice.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.byStream[streamID]
	if !ok {
		return nil, false
	}

	delete(r.byStream, streamID)
	// Only drop the secondary index if it still points at this stream; a
	// reconnect may have remapped the sessionID already.
	if current, exists := r.bySession[sess.SessionID]; exists && current == streamID {
		delete(r.bySession, sess.SessionID)
	}
	return sess, true
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byStream)
}
