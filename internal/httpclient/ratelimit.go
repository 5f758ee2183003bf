package httpclient

import (
	"net/http"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/teranos/sentinel/errors"
)

// HostLimiter keeps one token bucket per provider host, shared by every
// channel that talks to that host through the same client.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewHostLimiter allows rps requests per second per host. rps <= 0 disables limiting.
func NewHostLimiter(rps float64, burst int) *HostLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// For returns the limiter for host, creating it on first use.
func (h *HostLimiter) For(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	lim, ok := h.limiters[host]
	if !ok {
		lim = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = lim
	}
	return lim
}

// Hosts returns the hosts seen so far, sorted.
func (h *HostLimiter) Hosts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	hosts := make([]string, 0, len(h.limiters))
	for host := range h.limiters {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}

// transport applies the host limiter and default headers before delegating
type transport struct {
	base      http.RoundTripper
	limiter   *HostLimiter
	userAgent string
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.For(req.URL.Host).Wait(req.Context()); err != nil {
		return nil, errors.Wrapf(err, "rate limit wait for %s", req.URL.Host)
	}
	if req.Header.Get("User-Agent") == "" {
		// RoundTrippers must not mutate the caller's request
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}
