package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Outcome statuses for audit entries.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Entry is one append-only audit record for a routed request.
type Entry struct {
	SessionID       string `json:"sessionId"`
	ConversationID  string `json:"conversationId"`
	RequestSummary  string `json:"requestSummary"`
	ResponseSummary string `json:"responseSummary"`
	Status          string `json:"status"`
}

// Sink appends audit records.
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

// LogSink writes one log line per entry. The default when no sink endpoint
// is configured.
type LogSink struct{}

// Record implements Sink.
func (LogSink) Record(_ context.Context, entry Entry) error {
	log.Printf("[audit] session=%s conversation=%s status=%s request=%q response=%q",
		entry.SessionID, entry.ConversationID, entry.Status, entry.RequestSummary, entry.ResponseSummary)
	return nil
}

// HTTPSink POSTs entries to an external collector.
type HTTPSink struct {
	url    string
	client *http.Client
}

// NewHTTPSink creates a sink for the given collector URL.
func NewHTTPSink(url string) *HTTPSink {
	return &HTTPSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Record implements Sink.
func (s *HTTPSink) Record(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build audit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("audit record failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("audit record status %d", resp.StatusCode)
	}
	return nil
}

// Summarize truncates text for inclusion in audit records.
func Summarize(text string) string {
	const limit = 120
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
