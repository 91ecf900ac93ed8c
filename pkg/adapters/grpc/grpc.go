// Package grpcmiddleware provides gRPC server interceptors for the limiter.
//
// The full method name ("/pkg.Service/Method") stands in for the request
// path, so policy exemptions such as "/grpc.health.v1.Health/*" work as
// they do for HTTP.
package grpcmiddleware

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/manenim/halt/pkg/keys"
	"github.com/manenim/halt/pkg/limiter"
)

// UserFunc returns the authenticated user of a call, if any.
type UserFunc func(ctx context.Context) (string, bool)

// Options configure the interceptors.
type Options struct {
	// UserFunc extracts the authenticated user. Nil means calls carry no
	// user.
	UserFunc UserFunc

	// KeyMetadata names the metadata key carrying API keys when no bearer
	// token is sent. Empty means "x-api-key".
	KeyMetadata string

	// Cost returns the cost of a call. Nil charges the policy cost.
	Cost func(ctx context.Context, fullMethod string) int64

	// FailOpen lets calls through when the store fails. The default is to
	// fail with codes.Unavailable.
	FailOpen bool

	// Logger receives store failures.
	Logger limiter.Logger
}

func (o *Options) defaults() {
	if o.KeyMetadata == "" {
		o.KeyMetadata = "x-api-key"
	}
	if o.Logger == nil {
		o.Logger = limiter.NopLogger{}
	}
}

// UnaryServerInterceptor limits unary calls.
func UnaryServerInterceptor(l limiter.Checker, opts Options) grpc.UnaryServerInterceptor {
	opts.defaults()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := admit(ctx, l, &opts, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor limits stream creation. Messages within an
// admitted stream are not counted.
func StreamServerInterceptor(l limiter.Checker, opts Options) grpc.StreamServerInterceptor {
	opts.defaults()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := admit(ss.Context(), l, &opts, info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func admit(ctx context.Context, l limiter.Checker, opts *Options, fullMethod string) error {
	req := NewRequest(ctx, fullMethod, opts.UserFunc, opts.KeyMetadata)

	var (
		dec limiter.Decision
		err error
	)
	if opts.Cost != nil {
		dec, err = l.CheckN(ctx, req, opts.Cost(ctx, fullMethod))
	} else {
		dec, err = l.Check(ctx, req)
	}
	if err != nil {
		opts.Logger.Error("rate limit check failed", map[string]any{
			"method":    fullMethod,
			"fail_open": opts.FailOpen,
			"error":     err,
		})
		if opts.FailOpen {
			return nil
		}
		return status.Error(codes.Unavailable, "rate limiter unavailable")
	}

	headers := dec.Headers()
	md := metadata.MD{}
	for k, v := range headers {
		md.Set(k, v)
	}
	// Fails only outside a server transport (direct calls in tests).
	_ = grpc.SetHeader(ctx, md)

	if !dec.Allowed {
		return status.Errorf(codes.ResourceExhausted, "rate limit exceeded, retry after %ss", headers["Retry-After"])
	}
	return nil
}

// NewRequest builds a limiter request view from a call context.
func NewRequest(ctx context.Context, fullMethod string, user UserFunc, keyMetadata string) keys.Request {
	req := keys.Request{URLPath: fullMethod}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		req.Peer = p.Addr.String()
	}
	if user != nil {
		req.User, _ = user(ctx)
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return req
	}
	req.Forwarded = keys.SplitForwardedFor(md.Get("x-forwarded-for")...)
	for _, auth := range md.Get("authorization") {
		if token, ok := keys.BearerToken(auth); ok {
			req.Key = token
			return req
		}
	}
	if values := md.Get(keyMetadata); len(values) > 0 {
		req.Key = strings.TrimSpace(values[0])
	}
	return req
}
