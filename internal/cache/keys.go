package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TTLs for the entries written by the services.
const (
	IdempotencyTTL  = 24 * time.Hour
	TerminalJobTTL  = 10 * time.Minute
	RateLimitWindow = time.Minute
)

// TerminalJobKey holds the JSON of a job that reached a final status.
// Terminal jobs never change, so the entry cannot go stale.
func TerminalJobKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:terminal:%s", jobID)
}

// RateLimitKey counts requests for one API key within the fixed window
// starting at windowStart.
func RateLimitKey(keyPrefix string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", keyPrefix, windowStart.Unix())
}

// RateLimitWindowStart truncates t to the start of its rate limit window.
func RateLimitWindowStart(t time.Time) time.Time {
	return t.Truncate(RateLimitWindow)
}

// IdempotencyKey marks a feedback submission key as already stored.
func IdempotencyKey(key string) string {
	return fmt.Sprintf("idem:%s", key)
}
