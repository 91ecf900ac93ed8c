package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/manenim/halt/pkg/algorithm"
	"github.com/manenim/halt/pkg/keys"
	"github.com/manenim/halt/pkg/store"
)

// Checker is the part of Limiter that transport adapters depend on.
type Checker interface {
	Check(ctx context.Context, r keys.RequestView) (Decision, error)
	CheckN(ctx context.Context, r keys.RequestView, cost int64) (Decision, error)
}

var _ Checker = (*Limiter)(nil)

// Limiter decides whether requests are admitted. It holds configuration
// only; all quota state lives in the Store, so a Limiter is safe for
// concurrent use and several Limiters may share one Store.
type Limiter struct {
	store  store.Store
	source PolicySource
	engine algorithm.Engine
	static *compiledPolicy

	proxies       []string
	trusted       keys.TrustedProxies
	exemptPrivate bool
	namespace     string
	now           func() time.Time
	maxAttempts   int

	recorder MetricsRecorder
	tracer   Tracer
	logger   Logger
}

// New builds a Limiter. All configuration errors surface here: an unknown
// algorithm, a malformed static policy or a malformed trusted proxy.
func New(s store.Store, src PolicySource, opts ...Option) (*Limiter, error) {
	if s == nil {
		return nil, ErrNilStore
	}
	if src.resolve == nil && src.static.Algorithm == "" {
		return nil, fmt.Errorf("%w: %w: empty algorithm", ErrInvalidPolicy, algorithm.ErrUnknownKind)
	}

	engine, err := algorithm.New(src.kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}

	l := &Limiter{
		store:         s,
		source:        src,
		engine:        engine,
		exemptPrivate: true,
		namespace:     DefaultNamespace,
		now:           time.Now,
		maxAttempts:   store.DefaultMaxAttempts,
		recorder:      &NoOpMetricsRecorder{},
		tracer:        NoopTracer{},
		logger:        NopLogger{},
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.trusted, err = keys.ParseTrustedProxies(l.proxies); err != nil {
		return nil, err
	}

	if src.resolve == nil {
		if l.static, err = compile(src.static, src.kind, l.trusted); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Algorithm returns the algorithm every check runs on.
func (l *Limiter) Algorithm() algorithm.Kind {
	return l.engine.Kind()
}

// Check admits r at the policy's cost.
func (l *Limiter) Check(ctx context.Context, r keys.RequestView) (Decision, error) {
	return l.check(ctx, r, 0, false)
}

// CheckN admits r at an explicit cost. A cost of zero or less probes the
// current headroom without consuming any.
func (l *Limiter) CheckN(ctx context.Context, r keys.RequestView, cost int64) (Decision, error) {
	return l.check(ctx, r, cost, true)
}

// Reset forgets the quota state of r's key under its policy.
func (l *Limiter) Reset(ctx context.Context, r keys.RequestView) error {
	p, err := l.policy(r)
	if err != nil {
		return err
	}
	key, ok := p.extract(r)
	if !ok || key == "" {
		return nil
	}
	storageKey := l.storageKey(p, key)
	if err := l.store.Delete(ctx, storageKey); err != nil {
		return &StoreError{Op: "delete", Key: storageKey, Err: err}
	}
	return nil
}

func (l *Limiter) check(ctx context.Context, r keys.RequestView, cost int64, override bool) (Decision, error) {
	start := time.Now()
	ctx, span := l.tracer.StartSpan(ctx, "halt.check")
	defer span.End()

	p, err := l.policy(r)
	if err != nil {
		span.RecordError(err)
		l.record(nil, OutcomeError, start)
		return Decision{}, err
	}
	span.SetAttribute("halt.policy", p.Name)
	span.SetAttribute("halt.algorithm", string(p.Algorithm))

	if !override {
		cost = p.Cost
	}
	now := l.now()

	if l.exempt(p, r) {
		l.record(p, OutcomeExempt, start)
		return l.unlimited(p, now), nil
	}

	key, ok := p.extract(r)
	if !ok || key == "" {
		l.record(p, OutcomeNoKey, start)
		return l.unlimited(p, now), nil
	}

	storageKey := l.storageKey(p, key)
	params := p.Params()

	var res algorithm.Result
	err = store.Update(ctx, l.store, storageKey, 2*p.Window, l.maxAttempts, func(current []byte) ([]byte, error) {
		result, next, err := l.engine.Apply(current, cost, params, now)
		if err != nil {
			return nil, err
		}
		res = result
		return next, nil
	})
	if err != nil {
		serr := &StoreError{Op: "update", Key: storageKey, Err: err}
		span.RecordError(serr)
		l.logger.Error("rate limit state update failed", map[string]any{
			"policy":   p.Name,
			"key":      storageKey,
			"conflict": errors.Is(err, ErrConflict),
			"error":    err,
		})
		l.record(p, OutcomeError, start)
		return Decision{}, serr
	}

	outcome := OutcomeAllowed
	if !res.Allowed {
		outcome = OutcomeDenied
	}
	span.SetAttribute("halt.outcome", outcome)
	l.record(p, outcome, start)

	return Decision{
		Allowed:    res.Allowed,
		Limit:      res.Limit,
		Remaining:  res.Remaining,
		ResetAt:    res.ResetAt.Unix(),
		RetryAfter: res.RetryAfter,
	}, nil
}

func (l *Limiter) policy(r keys.RequestView) (*compiledPolicy, error) {
	if l.static != nil {
		return l.static, nil
	}
	return compile(l.source.resolve(r), l.source.kind, l.trusted)
}

// exempt checks, in order: health checks, path exemptions, private
// clients and IP exemptions.
func (l *Limiter) exempt(p *compiledPolicy, r keys.RequestView) bool {
	path := r.Path()
	if path != "" && (keys.IsHealthCheck(path) || p.exemptPath(path)) {
		return true
	}
	ip, ok := keys.ExtractIP(r, l.trusted)
	if !ok {
		return false
	}
	if l.exemptPrivate && keys.IsPrivateIP(ip) {
		return true
	}
	return p.exemptIP(ip)
}

// unlimited is the decision for requests that are not counted.
func (l *Limiter) unlimited(p *compiledPolicy, now time.Time) Decision {
	limit := p.EffectiveLimit()
	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		ResetAt:   now.Add(p.Window).Unix(),
	}
}

func (l *Limiter) storageKey(p *compiledPolicy, key string) string {
	return l.namespace + ":" + p.Name + ":" + key
}

func (l *Limiter) record(p *compiledPolicy, outcome string, start time.Time) {
	tags := map[string]string{
		"algorithm": string(l.engine.Kind()),
		"outcome":   outcome,
	}
	if p != nil {
		tags["policy"] = p.Name
	}
	l.recorder.Add(MetricCall, 1, tags)
	l.recorder.Observe(MetricLatency, time.Since(start).Seconds(), tags)
}
