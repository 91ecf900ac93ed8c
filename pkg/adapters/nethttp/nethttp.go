// Package nethttp provides net/http middleware for the limiter.
package nethttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/manenim/halt/pkg/keys"
	"github.com/manenim/halt/pkg/limiter"
)

// DefaultAPIKeyHeader carries API keys when no Authorization bearer token
// is present.
const DefaultAPIKeyHeader = "X-API-Key"

// UserFunc returns the authenticated user of a request, if any.
type UserFunc func(r *http.Request) (string, bool)

type userKey struct{}

// WithUser returns a context carrying the authenticated user id. Upstream
// authentication middleware calls it so the limiter can key by user.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext is the default UserFunc; it reads the id set by WithUser.
func UserFromContext(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(userKey{}).(string)
	return id, ok && id != ""
}

// NewRequest translates r into a limiter request view.
func NewRequest(r *http.Request, user UserFunc, apiKeyHeader string) keys.Request {
	req := keys.Request{
		Peer:      r.RemoteAddr,
		Forwarded: keys.SplitForwardedFor(r.Header.Values("X-Forwarded-For")...),
		URLPath:   r.URL.Path,
	}
	if user != nil {
		req.User, _ = user(r)
	}
	if token, ok := keys.BearerToken(r.Header.Get("Authorization")); ok {
		req.Key = token
	} else if apiKeyHeader != "" {
		req.Key = strings.TrimSpace(r.Header.Get(apiKeyHeader))
	}
	return req
}

// Options configures the rate limiting middleware behavior.
type Options struct {
	// UserFunc extracts the authenticated user.
	// Default: UserFromContext.
	UserFunc UserFunc

	// APIKeyHeader names the header carrying API keys.
	// Default: X-API-Key.
	APIKeyHeader string

	// Cost returns the cost of a request. Nil charges the policy cost.
	Cost func(r *http.Request) int64

	// FailOpen lets requests through when the store fails. The default is
	// to fail closed with 503.
	FailOpen bool

	// OnLimited writes the response for denied requests.
	// Default: 429 with a JSON body.
	OnLimited func(w http.ResponseWriter, r *http.Request, d limiter.Decision)

	// OnError writes the response when the store fails and FailOpen is
	// false. Default: 503 with a JSON body.
	OnError func(w http.ResponseWriter, r *http.Request, err error)

	// Logger receives store failures.
	Logger limiter.Logger
}

// Option is a function that configures Options.
type Option func(*Options)

// WithUserFunc sets a custom user extraction function.
func WithUserFunc(fn UserFunc) Option {
	return func(o *Options) {
		o.UserFunc = fn
	}
}

// WithAPIKeyHeader sets the API key header.
func WithAPIKeyHeader(header string) Option {
	return func(o *Options) {
		o.APIKeyHeader = header
	}
}

// WithCost charges each request fn(r) instead of the policy cost.
func WithCost(fn func(r *http.Request) int64) Option {
	return func(o *Options) {
		o.Cost = fn
	}
}

// WithFailOpen lets requests through when the store fails.
func WithFailOpen(failOpen bool) Option {
	return func(o *Options) {
		o.FailOpen = failOpen
	}
}

// WithOnLimited sets a custom rate limit exceeded handler.
func WithOnLimited(fn func(w http.ResponseWriter, r *http.Request, d limiter.Decision)) Option {
	return func(o *Options) {
		o.OnLimited = fn
	}
}

// WithOnError sets a custom store failure handler.
func WithOnError(fn func(w http.ResponseWriter, r *http.Request, err error)) Option {
	return func(o *Options) {
		o.OnError = fn
	}
}

// WithLogger sets the logger for store failures.
func WithLogger(l limiter.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// DefaultOnLimited returns a 429 response with a JSON body.
func DefaultOnLimited(w http.ResponseWriter, r *http.Request, d limiter.Decision) {
	retry := d.Headers()["Retry-After"]
	seconds, _ := strconv.Atoi(retry)
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate limit exceeded",
		"retry_after": seconds,
	})
}

// DefaultOnError returns a 503 response with a JSON body.
func DefaultOnError(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{
		"error": "rate limiter unavailable",
	})
}

// Middleware creates a rate limiting middleware.
func Middleware(l limiter.Checker, opts ...Option) func(http.Handler) http.Handler {
	options := &Options{
		UserFunc:     UserFromContext,
		APIKeyHeader: DefaultAPIKeyHeader,
		OnLimited:    DefaultOnLimited,
		OnError:      DefaultOnError,
		Logger:       limiter.NopLogger{},
	}
	for _, opt := range opts {
		opt(options)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := NewRequest(r, options.UserFunc, options.APIKeyHeader)

			var (
				dec limiter.Decision
				err error
			)
			if options.Cost != nil {
				dec, err = l.CheckN(r.Context(), req, options.Cost(r))
			} else {
				dec, err = l.Check(r.Context(), req)
			}
			if err != nil {
				options.Logger.Error("rate limit check failed", map[string]any{
					"path":      r.URL.Path,
					"fail_open": options.FailOpen,
					"error":     err,
				})
				if options.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				options.OnError(w, r, err)
				return
			}

			for k, v := range dec.Headers() {
				w.Header().Set(k, v)
			}
			if !dec.Allowed {
				options.OnLimited(w, r, dec)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
