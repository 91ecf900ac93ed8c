package limiter

import "context"

// Span captures tracing span operations.
type Span interface {
	SetAttribute(key, value string)
	RecordError(err error)
	End()
}

// Tracer is an optional tracing dependency. The limiter starts one span
// per check.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// NoopTracer is a tracer that records nothing.
type NoopTracer struct{}

// NoopSpan is a span that records nothing.
type NoopSpan struct{}

// StartSpan starts a span that does nothing.
func (t NoopTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, NoopSpan{}
}

func (s NoopSpan) SetAttribute(key, value string) {}

func (s NoopSpan) RecordError(err error) {}

func (s NoopSpan) End() {}
