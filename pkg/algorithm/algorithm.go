// Package algorithm implements the admission algorithms used by the limiter.
//
// Every algorithm is a pure state transition: given the previous state, a
// cost and the current time it returns a Result and the next state. Nothing
// in this package performs I/O or keeps shared mutable state, so the
// functions are safe for concurrent use and can be tested with synthetic
// clocks.
package algorithm

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Kind names one of the supported algorithms.
type Kind string

const (
	TokenBucket   Kind = "token_bucket"
	FixedWindow   Kind = "fixed_window"
	SlidingWindow Kind = "sliding_window"
	LeakyBucket   Kind = "leaky_bucket"
)

var (
	// ErrUnknownKind is returned when an algorithm name is not recognized.
	ErrUnknownKind = errors.New("halt: unknown algorithm")

	// ErrCorruptState is returned when a stored state blob cannot be decoded.
	ErrCorruptState = errors.New("halt: corrupt algorithm state")

	// ErrInvalidParams is returned when Limit or Window is not positive.
	ErrInvalidParams = errors.New("halt: limit and window must be positive")
)

// ParseKind normalizes an algorithm name. It accepts the canonical snake
// case names as well as common spellings such as "TokenBucket" or
// "token bucket".
func ParseKind(s string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	switch normalized {
	case "token_bucket", "tokenbucket":
		return TokenBucket, nil
	case "fixed_window", "fixedwindow":
		return FixedWindow, nil
	case "sliding_window", "slidingwindow":
		return SlidingWindow, nil
	case "leaky_bucket", "leakybucket":
		return LeakyBucket, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case TokenBucket, FixedWindow, SlidingWindow, LeakyBucket:
		return true
	}
	return false
}

// Params are the numeric limits an algorithm evaluates against.
type Params struct {
	// Limit is the nominal quota per Window.
	Limit int64

	// Window is the period Limit is measured over.
	Window time.Duration

	// Burst overrides the bucket capacity for token and leaky buckets.
	// Zero means Limit.
	Burst int64
}

// Validate checks that the parameters describe a usable limit.
func (p Params) Validate() error {
	if p.Limit <= 0 || p.Window <= 0 || p.Burst < 0 {
		return ErrInvalidParams
	}
	return nil
}

// Capacity returns the bucket size used by token and leaky buckets.
// A Burst smaller than Limit is honored: the bucket holds fewer units but
// still refills (or drains) at Limit per Window.
func (p Params) Capacity() int64 {
	if p.Burst > 0 {
		return p.Burst
	}
	return p.Limit
}

// units converts an elapsed duration into refilled (or drained) units.
// Multiplying before dividing keeps whole-number cases exact, e.g. 6s at
// 10 per 60s is exactly 1.
func (p Params) units(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return elapsed.Seconds() * float64(p.Limit) / p.Window.Seconds()
}

// seconds converts a number of units into the seconds needed to refill
// (or drain) them.
func (p Params) seconds(units float64) float64 {
	if units <= 0 {
		return 0
	}
	return units * p.Window.Seconds() / float64(p.Limit)
}

func (p Params) duration(units float64) time.Duration {
	return time.Duration(p.seconds(units) * float64(time.Second))
}

// Result is the outcome of a single check.
type Result struct {
	// Allowed reports whether the cost was admitted.
	Allowed bool

	// Limit is the effective limit: the bucket capacity for token and
	// leaky buckets, Params.Limit for the window algorithms.
	Limit int64

	// Remaining is the headroom left at the decision instant.
	// It is always within [0, Limit].
	Remaining int64

	// ResetAt is when headroom is expected to be full again.
	ResetAt time.Time

	// RetryAfter is how long to wait before the same cost could be
	// admitted. It is zero for allowed checks.
	RetryAfter time.Duration
}

func (r Result) clamp() Result {
	if r.Remaining < 0 {
		r.Remaining = 0
	}
	if r.Remaining > r.Limit {
		r.Remaining = r.Limit
	}
	if r.RetryAfter < 0 {
		r.RetryAfter = 0
	}
	return r
}

// ceilSeconds rounds a number of seconds up to a whole-second duration.
func ceilSeconds(secs float64) time.Duration {
	if secs <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(secs)) * time.Second
}

// normalizeCost treats negative costs as zero so a check can never mint
// quota.
func normalizeCost(cost int64) int64 {
	if cost < 0 {
		return 0
	}
	return cost
}
