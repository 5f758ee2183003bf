package github

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Provider response headers carrying quota state
const (
	headerRemaining  = "X-RateLimit-Remaining"
	headerLimit      = "X-RateLimit-Limit"
	headerReset      = "X-RateLimit-Reset"
	headerRetryAfter = "Retry-After"
)

// RateLimitState is the quota reported with one response. It is derived per
// request and never persisted.
type RateLimitState struct {
	Remaining  int
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration // secondary limits report this instead of a reset
	Known      bool          // false when the provider sent no quota headers
}

// parseRateLimit reads quota headers. Missing or malformed values leave the
// corresponding field zero.
func parseRateLimit(h http.Header) RateLimitState {
	var s RateLimitState

	if v := h.Get(headerRemaining); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			s.Remaining = n
			s.Known = true
		}
	}
	if v := h.Get(headerLimit); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			s.Limit = n
		}
	}
	if v := h.Get(headerReset); v != "" {
		if secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			s.ResetAt = time.Unix(secs, 0)
		}
	}
	if v := h.Get(headerRetryAfter); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
			s.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return s
}

// isThrottled reports whether a response means "quota exhausted": a 403 (or
// 429) with remaining = 0, or one carrying Retry-After.
func isThrottled(status int, s RateLimitState) bool {
	if status != http.StatusForbidden && status != http.StatusTooManyRequests {
		return false
	}
	return (s.Known && s.Remaining == 0) || s.RetryAfter > 0
}

// throttleWait is how long to block before retrying the same page:
// resetAt - now + 1s, or Retry-After when the provider sent one.
func throttleWait(s RateLimitState, now time.Time) time.Duration {
	if s.RetryAfter > 0 {
		return s.RetryAfter
	}
	return s.ResetAt.Sub(now) + time.Second
}

// nextLink extracts the rel="next" target from an RFC 8288 Link header:
//
//	<https://api.github.com/repositories/1/commits?page=2>; rel="next", <...>; rel="last"
func nextLink(h http.Header) string {
	for _, header := range h.Values("Link") {
		for _, part := range strings.Split(header, ",") {
			segments := strings.Split(part, ";")
			if len(segments) < 2 {
				continue
			}
			target := strings.TrimSpace(segments[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			for _, param := range segments[1:] {
				key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
				if !ok || strings.TrimSpace(key) != "rel" {
					continue
				}
				for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(value), `"`)) {
					if rel == "next" {
						return target[1 : len(target)-1]
					}
				}
			}
		}
	}
	return ""
}

// authScheme picks the Authorization scheme from the token's prefix.
// Tokens in the current ghp_/github_pat_ family and JWTs (app
// installations) use Bearer; legacy 40-hex tokens use "token".
func authScheme(token string) string {
	for _, prefix := range []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_", "eyJ"} {
		if strings.HasPrefix(token, prefix) {
			return "Bearer"
		}
	}
	return "token"
}
