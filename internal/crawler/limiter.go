package crawler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter keeps one token bucket per host so concurrent tasks never
// exceed the configured request rate against a single site.
type HostLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a limiter allowing rps requests per second per
// host. rps <= 0 disables limiting.
func NewHostLimiter(rps float64, burst int) *HostLimiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &HostLimiter{
		limit:    limit,
		burst:    max(burst, 1),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (h *HostLimiter) get(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = l
	}
	return l
}

// Wait blocks until host may be requested again or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	return h.get(host).Wait(ctx)
}

// Respect slows host down to at most one request per delay. It never
// speeds a host up.
func (h *HostLimiter) Respect(host string, delay time.Duration) {
	if delay <= 0 {
		return
	}
	l := h.get(host)
	if slower := rate.Every(delay); slower < l.Limit() {
		l.SetLimit(slower)
	}
}
