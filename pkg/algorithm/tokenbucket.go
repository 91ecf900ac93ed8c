package algorithm

import (
	"math"
	"time"
)

// TokenBucketState is the persisted state of a token bucket.
type TokenBucketState struct {
	Tokens     float64   `json:"tokens"`
	LastRefill time.Time `json:"last_refill"`
}

// NewTokenBucketState returns a full bucket.
func NewTokenBucketState(p Params, now time.Time) TokenBucketState {
	return TokenBucketState{
		Tokens:     float64(p.Capacity()),
		LastRefill: now,
	}
}

// CheckTokenBucket refills the bucket for the time elapsed since the last
// check and consumes cost tokens if enough are available.
//
// Tokens refill at Limit per Window up to Capacity. A denied check still
// persists the refilled balance and moves LastRefill to now, so refill
// progress is never lost. LastRefill never moves backwards: a now earlier
// than the stored timestamp is treated as the stored timestamp.
func CheckTokenBucket(s TokenBucketState, cost int64, p Params, now time.Time) (Result, TokenBucketState) {
	cost = normalizeCost(cost)
	if now.Before(s.LastRefill) {
		now = s.LastRefill
	}
	capacity := float64(p.Capacity())

	refilled := math.Min(capacity, s.Tokens+p.units(now.Sub(s.LastRefill)))
	next := TokenBucketState{Tokens: refilled, LastRefill: now}

	res := Result{Limit: p.Capacity()}
	if refilled >= float64(cost) {
		res.Allowed = true
		next.Tokens = refilled - float64(cost)
	} else {
		res.RetryAfter = p.duration(float64(cost) - refilled)
	}

	res.Remaining = int64(math.Floor(next.Tokens))
	res.ResetAt = now.Add(ceilSeconds(p.seconds(capacity - next.Tokens)))
	return res.clamp(), next
}
