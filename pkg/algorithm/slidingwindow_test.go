package algorithm

import (
	"testing"
	"time"
)

func TestSlidingWindow_Scenario(t *testing.T) {
	p := Params{Limit: 5, Window: time.Minute}
	st := NewSlidingWindowState(p, t0)

	var res Result
	for i := 0; i < 5; i++ {
		res, st = CheckSlidingWindow(st, 1, p, t0.Add(time.Duration(i)*time.Second))
		if !res.Allowed {
			t.Fatalf("Request %d was unexpectedly denied", i+1)
		}
	}

	res, st = CheckSlidingWindow(st, 1, p, t0.Add(5*time.Second))
	if res.Allowed {
		t.Fatal("6th request should have been denied")
	}
	if len(st.Entries) != 5 {
		t.Errorf("Denial must not log an entry, got %d entries", len(st.Entries))
	}
	// The oldest entry (t=0) ages out at t=60.
	if res.RetryAfter != 55*time.Second {
		t.Errorf("Expected RetryAfter 55s, got %v", res.RetryAfter)
	}
	if res.ResetAt.Unix() != t0.Unix()+60 {
		t.Errorf("Expected reset at oldest+window, got %d", res.ResetAt.Unix())
	}

	res, st = CheckSlidingWindow(st, 1, p, t0.Add(61*time.Second))
	if !res.Allowed {
		t.Fatal("Expected allow at t=61")
	}
	// Entries at t=0 and t=1 are pruned, t=2..4 plus the new one remain.
	if len(st.Entries) != 4 || res.Remaining != 1 {
		t.Errorf("Expected 4 entries and 1 remaining, got %d entries and %d remaining", len(st.Entries), res.Remaining)
	}

	res, st = CheckSlidingWindow(st, 1, p, t0.Add(200*time.Second))
	if !res.Allowed || res.Remaining != 4 || len(st.Entries) != 1 {
		t.Errorf("Expected a fully expired log, got allowed=%v remaining=%d entries=%d", res.Allowed, res.Remaining, len(st.Entries))
	}
}

func TestSlidingWindow_PruneBoundary(t *testing.T) {
	p := Params{Limit: 1, Window: time.Minute}
	_, st := CheckSlidingWindow(NewSlidingWindowState(p, t0), 1, p, t0)

	res, _ := CheckSlidingWindow(st, 1, p, t0.Add(time.Minute-time.Nanosecond))
	if res.Allowed {
		t.Error("Entry must still count just before the window ends")
	}
	res, _ = CheckSlidingWindow(st, 1, p, t0.Add(time.Minute))
	if !res.Allowed {
		t.Error("Entry at exactly now-window must be pruned")
	}
}

func TestSlidingWindow_WeightedCosts(t *testing.T) {
	p := Params{Limit: 10, Window: time.Minute}
	st := SlidingWindowState{Entries: []SlidingEntry{
		{At: t0, Cost: 4},
		{At: t0.Add(10 * time.Second), Cost: 3},
		{At: t0.Add(20 * time.Second), Cost: 3},
	}}

	res, next := CheckSlidingWindow(st, 5, p, t0.Add(30*time.Second))
	if res.Allowed {
		t.Fatal("Expected deny with 10 of 10 used")
	}
	// Freeing the first entry (4) leaves 6+5 > 10; the second (3) makes 3+5 <= 10.
	if res.RetryAfter != 40*time.Second {
		t.Errorf("Expected RetryAfter 40s, got %v", res.RetryAfter)
	}
	if len(next.Entries) != 3 {
		t.Errorf("Expected entries to be kept, got %d", len(next.Entries))
	}
	if &next.Entries[0] == &st.Entries[0] {
		t.Error("CheckSlidingWindow must not alias the input log")
	}
}

func TestSlidingWindow_ZeroCost(t *testing.T) {
	p := Params{Limit: 1, Window: time.Minute}
	_, st := CheckSlidingWindow(NewSlidingWindowState(p, t0), 1, p, t0)
	res, next := CheckSlidingWindow(st, 0, p, t0)
	if !res.Allowed {
		t.Error("Zero cost must always be allowed")
	}
	if len(next.Entries) != 1 {
		t.Errorf("Zero cost must not be logged, got %d entries", len(next.Entries))
	}
}
