package remote

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// cacheEntry is one cached GET response body.
type cacheEntry struct {
	body  []byte
	built time.Time
}

// responseCache is a TTL cache for GET response bodies, keyed by full URL.
// Singleflight collapses concurrent misses for the same key so a burst of
// identical requests hits the upstream once.
type responseCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	sf      singleflight.Group

	// now is injectable for tests.
	now func() time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// get returns the cached body for key, or nil when absent or expired.
func (c *responseCache) get(key string) []byte {
	if c.ttl <= 0 {
		return nil
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().Sub(entry.built) > c.ttl {
		return nil
	}
	return entry.body
}

// getOrFill returns the cached body for key, filling it via fetch on a miss.
func (c *responseCache) getOrFill(key string, fetch func() ([]byte, error)) ([]byte, error) {
	if c.ttl <= 0 {
		return fetch()
	}

	if body := c.get(key); body != nil {
		return body, nil
	}

	result, err, _ := c.sf.Do(key, func() (any, error) {
		// Double-check after winning the singleflight slot.
		if body := c.get(key); body != nil {
			return body, nil
		}
		body, err := fetch()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{body: body, built: c.now()}
		c.mu.Unlock()
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// clear drops all cached responses.
func (c *responseCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
