package limiter

import (
	"time"
)

// DefaultNamespace prefixes every storage key.
const DefaultNamespace = "halt"

// Option configures a Limiter.
type Option func(*Limiter)

// WithTrustedProxies sets the proxies whose X-Forwarded-For entries are
// believed. Entries are IPs or CIDR ranges; New fails on a malformed one.
func WithTrustedProxies(proxies ...string) Option {
	return func(l *Limiter) {
		l.proxies = append(l.proxies, proxies...)
	}
}

// WithExemptPrivateIPs controls whether private, loopback and link-local
// clients bypass limiting. Default is true.
func WithExemptPrivateIPs(exempt bool) Option {
	return func(l *Limiter) {
		l.exemptPrivate = exempt
	}
}

// WithPrefix sets the storage key namespace (default "halt").
func WithPrefix(namespace string) Option {
	return func(l *Limiter) {
		if namespace != "" {
			l.namespace = namespace
		}
	}
}

// WithClock injects the time source used for algorithm math.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithMaxAttempts bounds the compare-and-swap retries for stores without
// per-key serialization (default 32). N concurrent checks on one key
// always complete when attempts >= N.
func WithMaxAttempts(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithRecorder injects a custom metrics backend.
func WithRecorder(r MetricsRecorder) Option {
	return func(l *Limiter) {
		if r != nil {
			l.recorder = r
		}
	}
}

// WithTracer injects a tracer; one span is started per check.
func WithTracer(t Tracer) Option {
	return func(l *Limiter) {
		if t != nil {
			l.tracer = t
		}
	}
}

// WithLogger injects a logger for store failures.
func WithLogger(lg Logger) Option {
	return func(l *Limiter) {
		if lg != nil {
			l.logger = lg
		}
	}
}
