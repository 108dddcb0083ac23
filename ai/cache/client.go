package cache

import (
	"context"
	"time"

	"github.com/flipsync/flipsync/ai"
	"github.com/flipsync/flipsync/core"
)

// Client wraps an ai.Client with response caching: lookup before the call,
// store after a success, and stale fallback after a provider failure.
// Responses served from cache carry metadata flags "cached" or
// "cached_stale".
type Client struct {
	inner  ai.Client
	cache  *ResponseCache
	ttl    time.Duration
	stale  bool
	logger core.Logger
}

// ClientOption configures a caching client
type ClientOption func(*Client)

// WithTTL sets the cache TTL for stored responses
func WithTTL(ttl time.Duration) ClientOption {
	return func(c *Client) { c.ttl = ttl }
}

// WithStaleFallback enables serving expired entries after provider errors
func WithStaleFallback(enabled bool) ClientOption {
	return func(c *Client) { c.stale = enabled }
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient wraps inner with the response cache
func NewClient(inner ai.Client, cache *ResponseCache, opts ...ClientOption) *Client {
	c := &Client{
		inner:  inner,
		cache:  cache,
		ttl:    time.Hour,
		stale:  true,
		logger: &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateResponse serves from cache when possible, otherwise delegates to
// the wrapped client and stores the result best-effort
func (c *Client) GenerateResponse(ctx context.Context, req *ai.Request) (*ai.Response, error) {
	fingerprint := Fingerprint(req.Prompt, req.SystemPrompt, req.Model, "")

	if entry, ok := c.cache.Lookup(ctx, fingerprint); ok {
		c.logger.Debug("Cache hit", map[string]interface{}{
			"operation":   "cache_hit",
			"fingerprint": fingerprint[:12],
			"model":       req.Model,
		})
		return cachedCopy(entry, false), nil
	}

	resp, err := c.inner.GenerateResponse(ctx, req)
	if err != nil {
		if c.stale {
			if entry, ok := c.cache.LookupStale(ctx, fingerprint); ok {
				c.logger.Warn("Serving stale cached response after provider error", map[string]interface{}{
					"operation":   "cache_stale_fallback",
					"fingerprint": fingerprint[:12],
					"error_kind":  core.ErrorKind(err),
				})
				return cachedCopy(entry, true), nil
			}
		}
		return nil, err
	}

	c.cache.Store(ctx, fingerprint, resp, c.ttl)
	return resp, nil
}

// cachedCopy returns a copy of the cached response with cache metadata
// flags set; the stored entry itself is never mutated
func cachedCopy(entry *Entry, stale bool) *ai.Response {
	resp := entry.Response
	metadata := make(map[string]interface{}, len(resp.Metadata)+2)
	for k, v := range resp.Metadata {
		metadata[k] = v
	}
	if stale {
		metadata["cached_stale"] = true
	} else {
		metadata["cached"] = true
	}
	metadata["cache_stored_at"] = entry.StoredAt
	resp.Metadata = metadata
	return &resp
}
