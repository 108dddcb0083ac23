package listing

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter enforces a minimum spacing between requests to the same
// host. The default allows one request per second per host.
type HostLimiter struct {
	perSecond rate.Limit
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a limiter allowing perSecond requests per host.
// Values ≤ 0 fall back to one request per second.
func NewHostLimiter(perSecond float64) *HostLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &HostLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     1,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to host is allowed or ctx is done
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	h.mu.Lock()
	limiter, ok := h.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(h.perSecond, h.burst)
		h.limiters[host] = limiter
	}
	h.mu.Unlock()
	return limiter.Wait(ctx)
}
