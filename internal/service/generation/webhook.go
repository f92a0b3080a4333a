package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/voxlay/voxlay/internal/service/audit"
	"github.com/voxlay/voxlay/internal/service/tier"
)

// WebhookRouter forwards routed text to the external content-generation
// endpoint. Every call, success or failure, produces exactly one audit
// record before returning.
type WebhookRouter struct {
	url    string
	client *http.Client
	tiers  tier.Lookup
	sink   audit.Sink
}

// NewWebhookRouter creates the bridge to the generation endpoint.
func NewWebhookRouter(url string, timeout time.Duration, tiers tier.Lookup, sink audit.Sink) *WebhookRouter {
	if tiers == nil {
		tiers = tier.NoopLookup{}
	}
	if sink == nil {
		sink = audit.LogSink{}
	}
	return &WebhookRouter{
		url:    url,
		client: &http.Client{Timeout: timeout},
		tiers:  tiers,
		sink:   sink,
	}
}

type webhookPayload struct {
	Personality    string          `json:"personality"`
	Modality       string          `json:"modality"`
	SessionID      string          `json:"sessionId"`
	ConversationID string          `json:"conversationId"`
	Content        string          `json:"content"`
	Metadata       webhookMetadata `json:"metadata"`
}

type webhookMetadata struct {
	Tier          string  `json:"tier"`
	TokenBalance  float64 `json:"tokenBalance"`
	WalletAddress string  `json:"walletAddress,omitempty"`
	Timestamp     string  `json:"timestamp"`
}

type webhookReply struct {
	Response string `json:"response"`
	Text     string `json:"text"`
}

// Respond implements Responder. A reply with no usable response/text field
// falls back to echoing the submitted content rather than failing.
func (r *WebhookRouter) Respond(ctx context.Context, req Request) (string, error) {
	reply, err := r.call(ctx, req)

	entry := audit.Entry{
		SessionID:      req.SessionID,
		ConversationID: req.ConversationID,
		RequestSummary: audit.Summarize(req.Content),
	}
	if err != nil {
		entry.Status = audit.StatusFailed
		entry.ResponseSummary = err.Error()
	} else {
		entry.Status = audit.StatusSuccess
		entry.ResponseSummary = audit.Summarize(reply)
	}
	if recordErr := r.sink.Record(ctx, entry); recordErr != nil {
		log.Printf("[router] audit record failed: %v", recordErr)
	}

	if err != nil {
		return "", err
	}
	return reply, nil
}

func (r *WebhookRouter) call(ctx context.Context, req Request) (string, error) {
	meta, err := r.tiers.Fetch(ctx, req.SessionID)
	if err != nil {
		// Enrichment is read-only; a lookup failure must not fail the route.
		log.Printf("[router] tier lookup failed session=%s: %v", req.SessionID, err)
		meta = tier.Metadata{}
	}

	payload := webhookPayload{
		Personality:    req.Personality,
		Modality:       req.Modality,
		SessionID:      req.SessionID,
		ConversationID: req.ConversationID,
		Content:        req.Content,
		Metadata: webhookMetadata{
			Tier:          meta.Tier,
			TokenBalance:  meta.TokenBalance,
			WalletAddress: meta.WalletAddress,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal generation payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("generation call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("generation endpoint status %d", resp.StatusCode)
	}

	var reply webhookReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode generation reply: %w", err)
	}

	if text := strings.TrimSpace(reply.Response); text != "" {
		return text, nil
	}
	if text := strings.TrimSpace(reply.Text); text != "" {
		return text, nil
	}

	// Malformed provider reply: echo the input rather than go silent.
	log.Printf("[router] no usable reply field session=%s, echoing input", req.SessionID)
	return req.Content, nil
}
