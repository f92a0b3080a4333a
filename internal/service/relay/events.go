package relay

import "log"

// Events observes significant session transitions. Passed in as a
// collaborator so transports and tests can hook lifecycle without the
// orchestrator knowing about them.
type Events interface {
	SessionStarted(streamID, sessionID, personality string)
	AdapterOpened(streamID, adapter string)
	MessageDispatched(streamID, kind string)
	SessionClosed(streamID, sessionID string)
}

// LogEvents writes one log line per transition.
type LogEvents struct{}

func (LogEvents) SessionStarted(streamID, sessionID, personality string) {
	log.Printf("[relay] session started stream=%s session=%s personality=%s", streamID, sessionID, personality)
}

func (LogEvents) AdapterOpened(streamID, adapter string) {
	log.Printf("[relay] adapter opened stream=%s adapter=%s", streamID, adapter)
}

func (LogEvents) MessageDispatched(streamID, kind string) {
	log.Printf("[relay] message dispatched stream=%s kind=%s", streamID, kind)
}

func (LogEvents) SessionClosed(streamID, sessionID string) {
	log.Printf("[relay] session closed stream=%s session=%s", streamID, sessionID)
}
