package generation

import "context"

// Request carries routed text plus the session metadata the content
// generator needs to stay personality- and conversation-scoped.
type Request struct {
	Personality    string
	Modality       string
	SessionID      string
	ConversationID string
	Content        string
}

// Responder turns routed text into a reply.
type Responder interface {
	Respond(ctx context.Context, req Request) (string, error)
}
