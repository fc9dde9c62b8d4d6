package editor

import (
	"sync"
	"time"
)

// SignedURLCache holds resolved preview URLs keyed by storage key. It
// is an explicit object owned by the Synchronizer, not process-wide
// state. Entries past their expiry are never returned; expired entries
// are swept lazily on writes.
type SignedURLCache struct {
	mu      sync.Mutex
	entries map[string]signedEntry

	// Testing hook
	now func() time.Time
}

type signedEntry struct {
	url    string
	expiry time.Time
}

// NewSignedURLCache creates an empty cache.
func NewSignedURLCache() *SignedURLCache {
	return &SignedURLCache{
		entries: make(map[string]signedEntry),
		now:     time.Now,
	}
}

// Get returns the cached URL for key if it has not expired.
func (c *SignedURLCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !c.now().Before(entry.expiry) {
		delete(c.entries, key)
		return "", false
	}
	return entry.url, true
}

// Put stores a URL with its expiry and sweeps expired entries.
func (c *SignedURLCache) Put(key, url string, expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, entry := range c.entries {
		if !now.Before(entry.expiry) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = signedEntry{url: url, expiry: expiry}
}

// Len returns the number of stored entries, expired or not.
func (c *SignedURLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
