package algorithm

import (
	"sort"
	"time"
)

// SlidingEntry records one admitted check.
type SlidingEntry struct {
	At   time.Time `json:"t"`
	Cost int64     `json:"c"`
}

// SlidingWindowState is the persisted log of admitted checks inside the
// window, oldest first.
type SlidingWindowState struct {
	Entries []SlidingEntry `json:"entries"`
}

// NewSlidingWindowState returns an empty log.
func NewSlidingWindowState(_ Params, _ time.Time) SlidingWindowState {
	return SlidingWindowState{}
}

// CheckSlidingWindow admits cost if the costs logged during the last Window
// plus cost stay within Limit.
//
// The log is exact, not a weighted approximation of two windows, so its size
// grows with the admission rate. Very high throughput keys should use a
// fixed window instead.
func CheckSlidingWindow(s SlidingWindowState, cost int64, p Params, now time.Time) (Result, SlidingWindowState) {
	cost = normalizeCost(cost)
	cutoff := now.Add(-p.Window)

	kept := make([]SlidingEntry, 0, len(s.Entries)+1)
	var used int64
	for _, e := range s.Entries {
		if !e.At.After(cutoff) {
			continue
		}
		kept = append(kept, e)
		used += e.Cost
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].At.Before(kept[j].At) })

	res := Result{Limit: p.Limit}
	if used+cost <= p.Limit {
		res.Allowed = true
		if cost > 0 {
			kept = append(kept, SlidingEntry{At: now, Cost: cost})
			used += cost
		}
	} else {
		res.RetryAfter = slidingRetryAfter(kept, used, cost, p, now)
	}

	res.Remaining = p.Limit - used
	if len(kept) > 0 {
		res.ResetAt = kept[0].At.Add(p.Window)
	} else {
		res.ResetAt = now.Add(p.Window)
	}
	return res.clamp(), SlidingWindowState{Entries: kept}
}

// slidingRetryAfter walks the log oldest first until enough cost has aged
// out for the request to fit.
func slidingRetryAfter(entries []SlidingEntry, used, cost int64, p Params, now time.Time) time.Duration {
	if cost > p.Limit {
		return p.Window
	}
	var freed int64
	for _, e := range entries {
		freed += e.Cost
		if used-freed+cost <= p.Limit {
			return e.At.Add(p.Window).Sub(now)
		}
	}
	return p.Window
}
