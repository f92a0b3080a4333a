package tier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Metadata enriches routed content with the caller's quota standing.
type Metadata struct {
	Tier          string  `json:"tier"`
	TokenBalance  float64 `json:"tokenBalance"`
	WalletAddress string  `json:"walletAddress,omitempty"`
}

// Lookup fetches tier metadata by session. Read-only external call.
type Lookup interface {
	Fetch(ctx context.Context, sessionID string) (Metadata, error)
}

// HTTPLookup implements Lookup against a REST collaborator.
type HTTPLookup struct {
	baseURL string
	client  *http.Client
}

// NewHTTPLookup creates a lookup client for the given base URL.
func NewHTTPLookup(baseURL string) *HTTPLookup {
	return &HTTPLookup{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch implements Lookup.
func (l *HTTPLookup) Fetch(ctx context.Context, sessionID string) (Metadata, error) {
	url := fmt.Sprintf("%s/sessions/%s/tier", l.baseURL, sessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("build tier request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("tier lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("tier lookup status %d", resp.StatusCode)
	}

	var meta Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return Metadata{}, fmt.Errorf("decode tier response: %w", err)
	}
	return meta, nil
}

// NoopLookup returns zero-value metadata; used when no lookup endpoint is
// configured.
type NoopLookup struct{}

// Fetch implements Lookup.
func (NoopLookup) Fetch(context.Context, string) (Metadata, error) {
	return Metadata{}, nil
}
