package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/manenim/halt/pkg/algorithm"
	"github.com/manenim/halt/pkg/keys"
	"github.com/manenim/halt/pkg/limiter"
	"github.com/manenim/halt/pkg/store"
)

const samplePlans = `
default_plan: free
plans:
  free:
    algorithm: token_bucket
    limit: 100
    window: 1h
    burst: 20
    key_strategy: composite
    exemptions:
      - /healthz
  pro:
    algorithm: TokenBucket
    limit: 1000
    window: 1h
    burst: 100
    cost: 2
users:
  alice: pro
`

func TestParsePlans(t *testing.T) {
	plans, err := ParsePlans([]byte(samplePlans))
	if err != nil {
		t.Fatalf("ParsePlans: %v", err)
	}
	if plans.Kind != algorithm.TokenBucket {
		t.Errorf("Kind = %q, want token_bucket", plans.Kind)
	}

	free := plans.Policies["free"]
	if free.Name != "plan_free" || free.Limit != 100 || free.Window != time.Hour || free.Burst != 20 {
		t.Errorf("free = %+v", free)
	}
	if free.KeyStrategy != keys.StrategyComposite {
		t.Errorf("free.KeyStrategy = %q, want composite", free.KeyStrategy)
	}
	if len(free.Exemptions) != 1 || free.Exemptions[0] != "/healthz" {
		t.Errorf("free.Exemptions = %v", free.Exemptions)
	}

	pro := plans.Policies["pro"]
	if pro.Algorithm != algorithm.TokenBucket || pro.Cost != 2 {
		t.Errorf("pro = %+v", pro)
	}

	if got := plans.PlanFor("alice").Name; got != "plan_pro" {
		t.Errorf("PlanFor(alice) = %q, want plan_pro", got)
	}
	if got := plans.PlanFor("bob").Name; got != "plan_free" {
		t.Errorf("PlanFor(bob) = %q, want plan_free", got)
	}
}

func TestParsePlansRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed yaml", "plans: [unterminated"},
		{"no plans", "default_plan: free\n"},
		{"no default", "plans:\n  free: {algorithm: token_bucket, limit: 1, window: 1m}\n"},
		{"undefined default", "default_plan: gold\nplans:\n  free: {algorithm: token_bucket, limit: 1, window: 1m}\n"},
		{"zero limit", "default_plan: free\nplans:\n  free: {algorithm: token_bucket, limit: 0, window: 1m}\n"},
		{"bad window", "default_plan: free\nplans:\n  free: {algorithm: token_bucket, limit: 1, window: soon}\n"},
		{"negative window", "default_plan: free\nplans:\n  free: {algorithm: token_bucket, limit: 1, window: -1m}\n"},
		{"unknown algorithm", "default_plan: free\nplans:\n  free: {algorithm: gcra, limit: 1, window: 1m}\n"},
		{"unknown strategy", "default_plan: free\nplans:\n  free: {algorithm: token_bucket, limit: 1, window: 1m, key_strategy: cookie}\n"},
		{"mixed algorithms", "default_plan: a\nplans:\n  a: {algorithm: token_bucket, limit: 1, window: 1m}\n  b: {algorithm: fixed_window, limit: 1, window: 1m}\n"},
		{"unknown user plan", "default_plan: a\nplans:\n  a: {algorithm: token_bucket, limit: 1, window: 1m}\nusers:\n  alice: gold\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlans([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("ParsePlans error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestParsePlansZeroCostChargesOne(t *testing.T) {
	plans, err := ParsePlans([]byte("default_plan: a\nplans:\n  a: {algorithm: fixed_window, limit: 2, window: 1m, cost: 0}\n"))
	if err != nil {
		t.Fatalf("ParsePlans: %v", err)
	}

	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	l, err := limiter.New(s, limiter.Static(plans.Policies["a"]))
	if err != nil {
		t.Fatalf("limiter.New: %v", err)
	}

	req := keys.Request{Peer: "203.0.113.10:5000", URLPath: "/api"}
	for i, want := range []bool{true, true, false} {
		dec, err := l.Check(context.Background(), req)
		if err != nil {
			t.Fatalf("Check %d: %v", i+1, err)
		}
		if dec.Allowed != want {
			t.Fatalf("Check %d: allowed = %v, want %v", i+1, dec.Allowed, want)
		}
	}
}
