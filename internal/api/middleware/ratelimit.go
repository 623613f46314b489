package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/storepulse/internal/api/response"
	"github.com/kiranshivaraju/storepulse/internal/cache"
)

const defaultRequestsPerMinute = 60

// RateLimit caps requests per API key in fixed one-minute windows counted
// in Redis. A cache outage lets requests through.
type RateLimit struct {
	cache  cache.Cache
	perMin int
	now    func() time.Time
}

func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, perMin: requestsPerMin, now: time.Now}
}

type quota struct {
	remaining int
	reset     time.Time
	exceeded  bool
}

// allow counts one request for prefix in the current window. ok is false
// when the counter could not be read.
func (rl *RateLimit) allow(ctx context.Context, prefix string) (q quota, ok bool) {
	now := rl.now()
	start := cache.RateLimitWindowStart(now)
	count, err := rl.cache.IncrWithExpiry(ctx, cache.RateLimitKey(prefix, start), cache.RateLimitWindow)
	if err != nil {
		slog.Warn("rate limit counter unavailable, allowing request", "key_prefix", prefix, "error", err)
		return quota{}, false
	}
	q.reset = start.Add(cache.RateLimitWindow)
	q.remaining = max(rl.perMin-int(count), 0)
	q.exceeded = count > int64(rl.perMin)
	return q, true
}

// Limit applies the per-key quota. Requests without an authenticated key
// pass through untouched.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix, ok := getKeyPrefix(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		q, ok := rl.allow(r.Context(), prefix)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.perMin))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(q.remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(q.reset.Unix(), 10))

		if q.exceeded {
			wait := int(q.reset.Sub(rl.now()).Seconds() + 0.999)
			h.Set("Retry-After", strconv.Itoa(max(wait, 1)))
			slog.Warn("rate limit exceeded", "key_prefix", prefix, "path", r.URL.Path)
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
