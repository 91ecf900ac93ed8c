// Package limiter decides whether requests are admitted under a rate
// limiting policy and reports the quota state behind each decision.
//
// The primary entry point is Limiter:
//
//	l, err := limiter.New(store.NewMemoryStore(), limiter.Static(policy))
//	dec, err := l.Check(ctx, request)
//
// The returned Decision contains whether the request is allowed, the
// effective limit, how much headroom remains and when it is expected to be
// full again, which is enough to set rate limit headers (see
// Decision.Headers).
//
// # Overview
//
// A check runs these steps:
//
//   - Resolve the policy: the static one, or the resolver's answer for
//     this request (per tenant or per plan limits).
//   - Check exemptions: health check paths, exempt paths, private clients
//     (unless disabled with WithExemptPrivateIPs), exempt IPs and ranges.
//     An exempt request is allowed with full headroom.
//   - Derive the quota key with the policy's key strategy or extractor.
//     When no key can be derived the request is allowed; the limiter
//     cannot tell callers apart and chooses availability.
//   - Load state stored under "halt:{policy}:{key}", run the algorithm and
//     write the new state back atomically with a TTL of twice the window.
//
// # Algorithms
//
// One algorithm is selected when the Limiter is built, from the static
// policy or the kind passed to Resolved. The algorithms live in package
// algorithm: token bucket, fixed window, sliding window and leaky bucket.
//
// # Concurrency
//
// Limiter is safe for concurrent use. Quota state is read, updated and
// written back per check; stores that implement store.Updater run that
// under a per-key lock, and any other store goes through a bounded
// compare-and-swap loop (WithMaxAttempts). N concurrent checks against a
// limit of L admit exactly min(N, L).
//
// # Context and Error Policy
//
// Check passes its context through to the store so callers can enforce
// deadlines. A store failure is returned as a *StoreError, which matches
// ErrStoreFailure and, for deadlines, ErrStoreTimeout:
//
//	dec, err := l.Check(ctx, r)
//	if errors.Is(err, limiter.ErrStoreFailure) {
//		// fail open or closed; the limiter never picks for you
//	}
//
// A denied request is a normal Decision, never an error.
//
// # Configuration
//
// Limiter is configured using the Functional Options pattern:
//
//	l, _ := limiter.New(s, limiter.Static(policy),
//		limiter.WithTrustedProxies("10.0.0.0/8"),
//		limiter.WithRecorder(myMetrics),
//		limiter.WithLogger(limiter.NewStdLogger(os.Stderr)),
//	)
//
// Supported options:
//
//   - WithTrustedProxies(...string): proxies whose X-Forwarded-For is believed.
//   - WithExemptPrivateIPs(bool): exempt private clients (default true).
//   - WithPrefix(string): storage key namespace (default "halt").
//   - WithClock(func() time.Time): time source for algorithm math.
//   - WithMaxAttempts(int): compare-and-swap retry budget (default 32).
//   - WithRecorder(MetricsRecorder): emits ratelimit.call and ratelimit.latency.
//   - WithTracer(Tracer): one span per check.
//   - WithLogger(Logger): store failures are logged at error level.
package limiter
