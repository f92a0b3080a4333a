package audiocache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a token has expired or never existed.
var ErrNotFound = errors.New("audio not found")

// Cache stores finished utterance audio for short-lived replay. Entries are
// addressed only by an unguessable token so replay never re-exposes the raw
// synthesis stream.
type Cache interface {
	// Put stores audio and returns the freshly generated token addressing it.
	Put(ctx context.Context, audio []byte) (string, error)

	// Get retrieves audio by token. Returns ErrNotFound on miss.
	Get(ctx context.Context, token string) ([]byte, error)

	// Close releases any driver resources.
	Close() error
}

// NewToken produces an unguessable 128-bit hex token for cache addressing.
func NewToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
