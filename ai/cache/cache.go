package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/flipsync/flipsync/ai"
	"github.com/flipsync/flipsync/core"
)

// staleRetention is how long past logical expiry an entry remains
// physically available for stale-on-error fallback
const staleRetention = 24 * time.Hour

// Entry is one cached response with its logical expiry
type Entry struct {
	Fingerprint string        `json:"fingerprint"`
	Response    ai.Response   `json:"response"`
	StoredAt    time.Time     `json:"stored_at"`
	TTL         time.Duration `json:"ttl"`
}

// Expired reports whether the entry is past its logical TTL
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.StoredAt.Add(e.TTL))
}

// Stats counts cache effectiveness
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	StaleHits int64 `json:"stale_hits"`
	Stores    int64 `json:"stores"`
	Errors    int64 `json:"errors"`
}

// Fingerprint computes the stable content hash identifying a cacheable
// call: sha256 over prompt, system prompt, model and an explicit suffix,
// NUL-separated. No timestamps participate.
func Fingerprint(prompt, systemPrompt, model, suffix string) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(systemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(suffix))
	return hex.EncodeToString(h.Sum(nil))
}

// ResponseCache maps fingerprints to prior LLM responses.
// All store failures are logged and swallowed; a cache problem must never
// fail the user request.
type ResponseCache struct {
	store  Store
	prefix string
	logger core.Logger
	now    func() time.Time

	mu    sync.Mutex
	stats Stats
}

// NewResponseCache creates a response cache over a Store using the LLM
// key prefix
func NewResponseCache(store Store, logger core.Logger) *ResponseCache {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &ResponseCache{
		store:  store,
		prefix: LLMKeyPrefix,
		logger: logger,
		now:    time.Now,
	}
}

// Lookup returns a non-expired entry for the fingerprint, if present
func (c *ResponseCache) Lookup(ctx context.Context, fingerprint string) (*Entry, bool) {
	entry, found := c.fetch(ctx, fingerprint)
	if !found {
		c.count(func(s *Stats) { s.Misses++ })
		return nil, false
	}
	if entry.Expired(c.now()) {
		c.count(func(s *Stats) { s.Misses++ })
		return nil, false
	}
	c.count(func(s *Stats) { s.Hits++ })
	return entry, true
}

// LookupStale returns an entry even when logically expired. Used as a
// fallback after a provider failure.
func (c *ResponseCache) LookupStale(ctx context.Context, fingerprint string) (*Entry, bool) {
	entry, found := c.fetch(ctx, fingerprint)
	if !found {
		return nil, false
	}
	c.count(func(s *Stats) { s.StaleHits++ })
	return entry, true
}

// Store saves a response under the fingerprint with the given TTL.
// Best-effort: failures are logged and swallowed.
func (c *ResponseCache) Store(ctx context.Context, fingerprint string, resp *ai.Response, ttl time.Duration) {
	entry := Entry{
		Fingerprint: fingerprint,
		Response:    *resp,
		StoredAt:    c.now(),
		TTL:         ttl,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.storeFailed(fingerprint, err)
		return
	}
	if err := c.store.SetEx(ctx, c.prefix+fingerprint, ttl+staleRetention, data); err != nil {
		c.storeFailed(fingerprint, err)
		return
	}
	c.count(func(s *Stats) { s.Stores++ })
}

// Stats returns a snapshot of cache counters
func (c *ResponseCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *ResponseCache) fetch(ctx context.Context, fingerprint string) (*Entry, bool) {
	data, found, err := c.store.Get(ctx, c.prefix+fingerprint)
	if err != nil {
		c.count(func(s *Stats) { s.Errors++ })
		c.logger.Warn("Cache read failed", map[string]interface{}{
			"operation":   "cache_lookup",
			"fingerprint": fingerprint[:12],
			"error":       err.Error(),
		})
		return nil, false
	}
	if !found {
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.count(func(s *Stats) { s.Errors++ })
		return nil, false
	}
	return &entry, true
}

func (c *ResponseCache) storeFailed(fingerprint string, err error) {
	c.count(func(s *Stats) { s.Errors++ })
	c.logger.Warn("Cache store failed", map[string]interface{}{
		"operation":   "cache_store",
		"fingerprint": fingerprint[:12],
		"error":       err.Error(),
	})
}

func (c *ResponseCache) count(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}
