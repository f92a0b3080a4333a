package audiocache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache implements Cache with an in-memory map and per-entry expiry.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	audio     []byte
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put implements Cache.
func (c *MemoryCache) Put(_ context.Context, audio []byte) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}

	stored := make([]byte, len(audio))
	copy(stored, audio)

	c.mu.Lock()
	c.pruneLocked()
	c.entries[token] = memoryEntry{audio: stored, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return token, nil
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, token string) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.entries[token]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}
	return entry.audio, nil
}

// Close implements Cache.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}

// pruneLocked drops expired entries. Caller holds the write lock.
func (c *MemoryCache) pruneLocked() {
	now := c.now()
	for token, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, token)
		}
	}
}
