package algorithm

import (
	"math"
	"time"
)

// LeakyBucketState is the persisted state of a leaky bucket.
type LeakyBucketState struct {
	Level    float64   `json:"level"`
	LastLeak time.Time `json:"last_leak"`
}

// NewLeakyBucketState returns an empty bucket.
func NewLeakyBucketState(_ Params, now time.Time) LeakyBucketState {
	return LeakyBucketState{LastLeak: now}
}

// CheckLeakyBucket drains the bucket at Limit per Window and pours cost into
// it if the result stays within Capacity. Like the token bucket, a denied
// check persists the drained level and moves LastLeak to now. LastLeak
// never moves backwards.
func CheckLeakyBucket(s LeakyBucketState, cost int64, p Params, now time.Time) (Result, LeakyBucketState) {
	cost = normalizeCost(cost)
	if now.Before(s.LastLeak) {
		now = s.LastLeak
	}
	capacity := float64(p.Capacity())

	drained := math.Max(0, s.Level-p.units(now.Sub(s.LastLeak)))
	next := LeakyBucketState{Level: drained, LastLeak: now}

	res := Result{Limit: p.Capacity()}
	if drained+float64(cost) <= capacity {
		res.Allowed = true
		next.Level = drained + float64(cost)
	} else {
		res.RetryAfter = p.duration(drained + float64(cost) - capacity)
	}

	res.Remaining = int64(math.Floor(capacity - next.Level))
	res.ResetAt = now.Add(ceilSeconds(p.seconds(next.Level)))
	return res.clamp(), next
}
