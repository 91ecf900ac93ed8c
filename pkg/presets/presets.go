// Package presets holds ready-made policies for common plans and
// endpoints. Every function returns a fresh value, so callers may edit the
// result without affecting other users.
package presets

import (
	"time"

	"github.com/manenim/halt/pkg/algorithm"
	"github.com/manenim/halt/pkg/keys"
	"github.com/manenim/halt/pkg/limiter"
)

// Plan names understood by ForPlan.
const (
	Free       = "free"
	Pro        = "pro"
	Enterprise = "enterprise"
)

// PlanFree allows 100 requests per hour per caller with bursts of 20.
func PlanFree() limiter.Policy {
	return plan(Free, 100, 20)
}

// PlanPro allows 1,000 requests per hour per caller with bursts of 100.
func PlanPro() limiter.Policy {
	return plan(Pro, 1_000, 100)
}

// PlanEnterprise allows 10,000 requests per hour per caller with bursts
// of 1,000.
func PlanEnterprise() limiter.Policy {
	return plan(Enterprise, 10_000, 1_000)
}

func plan(name string, limit, burst int64) limiter.Policy {
	return limiter.Policy{
		Name:        "plan_" + name,
		Algorithm:   algorithm.TokenBucket,
		Limit:       limit,
		Window:      time.Hour,
		Burst:       burst,
		KeyStrategy: keys.StrategyComposite,
	}
}

// PublicAPI is an exact sliding window of 60 requests per minute per IP.
func PublicAPI() limiter.Policy {
	return limiter.Policy{
		Name:        "public_api",
		Algorithm:   algorithm.SlidingWindow,
		Limit:       60,
		Window:      time.Minute,
		KeyStrategy: keys.StrategyIP,
	}
}

// Auth limits credential endpoints to 5 attempts per 15 minutes per IP.
func Auth() limiter.Policy {
	return limiter.Policy{
		Name:        "auth",
		Algorithm:   algorithm.FixedWindow,
		Limit:       5,
		Window:      15 * time.Minute,
		KeyStrategy: keys.StrategyIP,
	}
}

// Expensive smooths costly endpoints through a leaky bucket: 10 units per
// minute, each call costing 5.
func Expensive() limiter.Policy {
	return limiter.Policy{
		Name:        "expensive",
		Algorithm:   algorithm.LeakyBucket,
		Limit:       10,
		Window:      time.Minute,
		Cost:        5,
		KeyStrategy: keys.StrategyComposite,
	}
}

// ForPlan returns the plan policy for name.
func ForPlan(name string) (limiter.Policy, bool) {
	switch name {
	case Free:
		return PlanFree(), true
	case Pro:
		return PlanPro(), true
	case Enterprise:
		return PlanEnterprise(), true
	}
	return limiter.Policy{}, false
}

// PlanResolver returns a source that picks a plan per request. planOf maps
// a request to a plan name; unknown or empty plans get PlanFree.
func PlanResolver(planOf func(keys.RequestView) string) limiter.PolicySource {
	return limiter.Resolved(algorithm.TokenBucket, func(r keys.RequestView) limiter.Policy {
		if p, ok := ForPlan(planOf(r)); ok {
			return p
		}
		return PlanFree()
	})
}
