package limiter

import (
	"math"
	"strconv"
	"time"
)

// Decision is the outcome of one check. A denial is a normal Decision,
// not an error.
type Decision struct {
	Allowed bool

	// Limit is the effective limit for this check.
	Limit int64

	// Remaining is the headroom left at the decision instant, in [0, Limit].
	Remaining int64

	// ResetAt is the epoch second at which headroom is expected to be full.
	ResetAt int64

	// RetryAfter is how long to wait before the same cost could be
	// admitted. Zero when allowed.
	RetryAfter time.Duration
}

// Headers renders d as the conventional rate limit response headers.
// Retry-After is present only on denials and is rounded up to whole
// seconds.
func (d Decision) Headers() map[string]string {
	h := map[string]string{
		"X-RateLimit-Limit":     strconv.FormatInt(d.Limit, 10),
		"X-RateLimit-Remaining": strconv.FormatInt(d.Remaining, 10),
		"X-RateLimit-Reset":     strconv.FormatInt(d.ResetAt, 10),
	}
	if !d.Allowed {
		secs := int64(math.Ceil(d.RetryAfter.Seconds()))
		h["Retry-After"] = strconv.FormatInt(max(secs, 1), 10)
	}
	return h
}
