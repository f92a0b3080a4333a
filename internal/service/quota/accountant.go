package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Reporter is the external quota collaborator.
type Reporter interface {
	IncrementUsage(ctx context.Context, sessionID string, minutes int) error
}

// BilledMinutes converts a session span into whole billed minutes, rounding
// up. Any session, however brief, bills at least one minute.
func BilledMinutes(startedAt, endedAt time.Time) int {
	elapsed := endedAt.Sub(startedAt)
	minutes := int((elapsed + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// Accountant reports session usage on teardown. Reporting failures are
// logged and dropped: losing a usage record is preferred over blocking
// resource release.
type Accountant struct {
	reporter Reporter
	now      func() time.Time
}

// NewAccountant wires an accountant to the quota collaborator.
func NewAccountant(reporter Reporter) *Accountant {
	return &Accountant{reporter: reporter, now: time.Now}
}

// Report computes billed minutes for the session and sends them. Callers
// must invoke this at most once per session.
func (a *Accountant) Report(ctx context.Context, sessionID string, startedAt time.Time) {
	if a.reporter == nil {
		return
	}

	minutes := BilledMinutes(startedAt, a.now())
	if err := a.reporter.IncrementUsage(ctx, sessionID, minutes); err != nil {
		log.Printf("[quota] usage report failed session=%s minutes=%d: %v", sessionID, minutes, err)
		return
	}
	log.Printf("[quota] usage reported session=%s minutes=%d", sessionID, minutes)
}

// HTTPReporter implements Reporter against a REST collaborator.
type HTTPReporter struct {
	url    string
	client *http.Client
}

// NewHTTPReporter creates a reporter for the given endpoint.
func NewHTTPReporter(url string) *HTTPReporter {
	return &HTTPReporter{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type incrementPayload struct {
	SessionID string `json:"sessionId"`
	Minutes   int    `json:"minutes"`
}

// IncrementUsage implements Reporter.
func (r *HTTPReporter) IncrementUsage(ctx context.Context, sessionID string, minutes int) error {
	body, err := json.Marshal(incrementPayload{SessionID: sessionID, Minutes: minutes})
	if err != nil {
		return fmt.Errorf("marshal usage payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build usage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("usage report failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("usage report status %d", resp.StatusCode)
	}
	return nil
}
