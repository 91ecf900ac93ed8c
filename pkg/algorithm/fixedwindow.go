package algorithm

import "time"

// FixedWindowState is the persisted state of a fixed window counter.
type FixedWindowState struct {
	Count       int64     `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// NewFixedWindowState returns an empty window starting at now.
func NewFixedWindowState(_ Params, now time.Time) FixedWindowState {
	return FixedWindowState{WindowStart: now}
}

// CheckFixedWindow counts cost against the current window.
//
// Windows are per key: a window opens on the first check after the previous
// one ended rather than on wall-clock multiples of Window, so two keys never
// reset at the same instant by construction. A denied check leaves the
// count untouched.
func CheckFixedWindow(s FixedWindowState, cost int64, p Params, now time.Time) (Result, FixedWindowState) {
	cost = normalizeCost(cost)

	if now.Sub(s.WindowStart) >= p.Window {
		s = FixedWindowState{WindowStart: now}
	}
	windowEnd := s.WindowStart.Add(p.Window)

	res := Result{Limit: p.Limit}
	if s.Count+cost <= p.Limit {
		res.Allowed = true
		s.Count += cost
	} else {
		res.RetryAfter = windowEnd.Sub(now)
	}

	res.Remaining = p.Limit - s.Count
	res.ResetAt = windowEnd
	return res.clamp(), s
}
