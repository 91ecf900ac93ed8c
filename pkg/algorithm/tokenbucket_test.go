package algorithm

import (
	"testing"
	"time"
)

var t0 = time.Unix(1_700_000_000, 0)

func TestTokenBucket_Scenario(t *testing.T) {
	p := Params{Limit: 10, Window: time.Minute}
	st := NewTokenBucketState(p, t0)

	var res Result
	for i := 0; i < 10; i++ {
		res, st = CheckTokenBucket(st, 1, p, t0)
		if !res.Allowed {
			t.Fatalf("Request %d was unexpectedly denied", i+1)
		}
		if res.Remaining != int64(9-i) {
			t.Errorf("Request %d: expected %d remaining, got %d", i+1, 9-i, res.Remaining)
		}
	}

	res, st = CheckTokenBucket(st, 1, p, t0)
	if res.Allowed {
		t.Fatal("11th request at t=0 should have been denied")
	}
	if res.RetryAfter != 6*time.Second {
		t.Errorf("Expected RetryAfter 6s, got %v", res.RetryAfter)
	}
	if res.ResetAt.Unix() != t0.Add(time.Minute).Unix() {
		t.Errorf("Expected reset at %d, got %d", t0.Add(time.Minute).Unix(), res.ResetAt.Unix())
	}

	later := t0.Add(6 * time.Second)
	res, st = CheckTokenBucket(st, 1, p, later)
	if !res.Allowed {
		t.Fatal("Expected one request to be allowed after one token refilled")
	}
	res, _ = CheckTokenBucket(st, 1, p, later)
	if res.Allowed {
		t.Fatal("Only one token should have been refilled at t=6")
	}
}

func TestTokenBucket_DenialKeepsRefillProgress(t *testing.T) {
	p := Params{Limit: 10, Window: time.Minute}
	st := TokenBucketState{Tokens: 0, LastRefill: t0}

	// 3s refills half a token: not enough, but the half must be kept.
	res, st := CheckTokenBucket(st, 1, p, t0.Add(3*time.Second))
	if res.Allowed {
		t.Fatal("Expected denial with half a token")
	}
	if st.Tokens != 0.5 || !st.LastRefill.Equal(t0.Add(3*time.Second)) {
		t.Fatalf("Expected 0.5 tokens at t=3, got %v at %v", st.Tokens, st.LastRefill)
	}

	res, _ = CheckTokenBucket(st, 1, p, t0.Add(6*time.Second))
	if !res.Allowed {
		t.Fatal("Expected allow at t=6 once both halves accumulated")
	}
}

func TestTokenBucket_ResetAt(t *testing.T) {
	p := Params{Limit: 10, Window: time.Minute}
	res, _ := CheckTokenBucket(NewTokenBucketState(p, t0), 1, p, t0)
	if got, want := res.ResetAt.Unix(), t0.Unix()+6; got != want {
		t.Errorf("Expected reset at %d, got %d", want, got)
	}
}

func TestTokenBucket_Burst(t *testing.T) {
	tests := []struct {
		name      string
		params    Params
		allowed   int
		wantLimit int64
	}{
		{"burst above limit", Params{Limit: 5, Window: time.Minute, Burst: 8}, 8, 8},
		{"burst below limit clamps capacity", Params{Limit: 5, Window: time.Minute, Burst: 2}, 2, 2},
		{"no burst", Params{Limit: 5, Window: time.Minute}, 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewTokenBucketState(tt.params, t0)
			allowed := 0
			for i := 0; i < 20; i++ {
				var res Result
				res, st = CheckTokenBucket(st, 1, tt.params, t0)
				if res.Limit != tt.wantLimit {
					t.Fatalf("Expected limit %d, got %d", tt.wantLimit, res.Limit)
				}
				if res.Allowed {
					allowed++
				}
			}
			if allowed != tt.allowed {
				t.Errorf("Expected %d allowed, got %d", tt.allowed, allowed)
			}
		})
	}
}

func TestTokenBucket_ZeroAndNegativeCost(t *testing.T) {
	p := Params{Limit: 2, Window: time.Minute}
	st := TokenBucketState{Tokens: 0, LastRefill: t0}

	for _, cost := range []int64{0, -5} {
		res, next := CheckTokenBucket(st, cost, p, t0)
		if !res.Allowed {
			t.Errorf("cost %d: expected allow", cost)
		}
		if next.Tokens != 0 {
			t.Errorf("cost %d: expected no tokens granted, got %v", cost, next.Tokens)
		}
	}
}

func TestTokenBucket_ClockSkew(t *testing.T) {
	p := Params{Limit: 10, Window: time.Minute}
	st := TokenBucketState{Tokens: 1, LastRefill: t0}
	res, next := CheckTokenBucket(st, 1, p, t0.Add(-time.Hour))
	if !res.Allowed || next.Tokens != 0 {
		t.Fatalf("A clock moving backwards must not refill: allowed=%v tokens=%v", res.Allowed, next.Tokens)
	}
}

func TestTokenBucket_LaggingClockDoesNotMintTokens(t *testing.T) {
	p := Params{Limit: 60, Window: time.Minute}
	st := TokenBucketState{Tokens: 0, LastRefill: t0}
	lagging := t0.Add(-time.Second)

	allowed := 0
	var res Result
	for i := 0; i < 200; i++ {
		now := t0
		if i%2 == 0 {
			now = lagging
		}
		res, st = CheckTokenBucket(st, 1, p, now)
		if res.Allowed {
			allowed++
		}
		if st.LastRefill.Before(t0) {
			t.Fatalf("step %d: LastRefill moved backwards to %v", i, st.LastRefill)
		}
	}
	if allowed != 0 {
		t.Fatalf("Expected 0 allowed with no real time elapsed, got %d", allowed)
	}
}
