package limiter

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/manenim/halt/pkg/algorithm"
	"github.com/manenim/halt/pkg/keys"
)

// DefaultPolicyName is used when a policy has no name.
const DefaultPolicyName = "default"

// Policy describes one rate limit. Policies are values; the limiter never
// mutates one it was given.
type Policy struct {
	// Name namespaces storage keys, so two policies never share state.
	Name string

	// Algorithm selects the admission algorithm.
	Algorithm algorithm.Kind

	// Limit is the nominal quota per Window.
	Limit int64

	// Window is the period Limit is measured over.
	Window time.Duration

	// Burst overrides the capacity of token and leaky buckets. Zero means
	// Limit. A Burst below Limit shrinks the bucket but keeps the refill
	// rate at Limit per Window.
	Burst int64

	// Cost is charged by Check. Zero means 1.
	Cost int64

	// KeyStrategy selects how the quota key is derived. Empty means
	// keys.StrategyIP.
	KeyStrategy keys.Strategy

	// KeyExtractor, when set, overrides KeyStrategy.
	KeyExtractor keys.Extractor

	// Exemptions lists paths, IPs and CIDR ranges that are always allowed.
	// Paths may end in "*" to match a prefix.
	Exemptions []string
}

// Validate reports whether p is usable. Algorithm may be empty only for
// policies produced by a resolver.
func (p Policy) Validate() error {
	if p.Algorithm != "" && !p.Algorithm.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidPolicy, algorithm.ErrUnknownKind, p.Algorithm)
	}
	if p.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidPolicy, p.Limit)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidPolicy, p.Window)
	}
	if p.Burst < 0 {
		return fmt.Errorf("%w: burst must not be negative, got %d", ErrInvalidPolicy, p.Burst)
	}
	if p.Cost < 0 {
		return fmt.Errorf("%w: cost must not be negative, got %d", ErrInvalidPolicy, p.Cost)
	}
	if p.KeyExtractor == nil {
		if _, err := keys.ParseStrategy(string(p.KeyStrategy)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
		}
		if p.KeyStrategy == keys.StrategyCustom {
			return fmt.Errorf("%w: custom key strategy requires a key extractor", ErrInvalidPolicy)
		}
	}
	return nil
}

// Params returns the numeric limits of p.
func (p Policy) Params() algorithm.Params {
	return algorithm.Params{Limit: p.Limit, Window: p.Window, Burst: p.Burst}
}

// EffectiveLimit is the limit reported in decisions: the bucket capacity
// for token and leaky buckets, Limit otherwise.
func (p Policy) EffectiveLimit() int64 {
	switch p.Algorithm {
	case algorithm.TokenBucket, algorithm.LeakyBucket:
		return p.Params().Capacity()
	}
	return p.Limit
}

// PolicySource supplies the policy for each check: either one static
// policy or a resolver called once per check.
type PolicySource struct {
	kind    algorithm.Kind
	static  Policy
	resolve func(keys.RequestView) Policy
}

// Static returns a source that always yields p.
func Static(p Policy) PolicySource {
	return PolicySource{kind: p.Algorithm, static: p}
}

// Resolved returns a source that calls fn for every check. All resolved
// policies run on kind; a resolved policy naming a different algorithm
// fails its check with ErrInvalidPolicy.
func Resolved(kind algorithm.Kind, fn func(keys.RequestView) Policy) PolicySource {
	return PolicySource{kind: kind, resolve: fn}
}

// Kind returns the algorithm the source is bound to.
func (s PolicySource) Kind() algorithm.Kind {
	return s.kind
}

// compiledPolicy is a validated policy with its key extractor and
// exemptions prepared for lookups.
type compiledPolicy struct {
	Policy
	extract  keys.Extractor
	paths    []string
	ips      map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

func compile(p Policy, kind algorithm.Kind, trusted keys.TrustedProxies) (*compiledPolicy, error) {
	if p.Algorithm == "" {
		p.Algorithm = kind
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Algorithm != kind {
		return nil, fmt.Errorf("%w: algorithm %q does not match limiter algorithm %q", ErrInvalidPolicy, p.Algorithm, kind)
	}
	if p.Name == "" {
		p.Name = DefaultPolicyName
	}
	if p.Cost == 0 {
		p.Cost = 1
	}

	strategy, _ := keys.ParseStrategy(string(p.KeyStrategy))
	p.KeyStrategy = strategy
	extract, err := keys.Resolver(strategy, p.KeyExtractor, trusted)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}

	cp := &compiledPolicy{Policy: p, extract: extract}
	for _, entry := range p.Exemptions {
		if addr, ok := keys.ParseAddr(entry); ok {
			if cp.ips == nil {
				cp.ips = make(map[netip.Addr]struct{})
			}
			cp.ips[addr] = struct{}{}
			continue
		}
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			cp.prefixes = append(cp.prefixes, prefix.Masked())
			continue
		}
		cp.paths = append(cp.paths, entry)
	}
	return cp, nil
}

func (p *compiledPolicy) exemptPath(path string) bool {
	for _, pattern := range p.paths {
		if keys.MatchPath(path, pattern) {
			return true
		}
	}
	return false
}

func (p *compiledPolicy) exemptIP(ip string) bool {
	addr, ok := keys.ParseAddr(ip)
	if !ok {
		return false
	}
	if _, ok := p.ips[addr]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
