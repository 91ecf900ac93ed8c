// Package ginmiddleware provides gin middleware for the limiter.
package ginmiddleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/manenim/halt/pkg/keys"
	"github.com/manenim/halt/pkg/limiter"
)

// UserContextKey is the gin context key read by the default UserFunc.
const UserContextKey = "halt.user_id"

// UserFunc returns the authenticated user of a request, if any.
type UserFunc func(c *gin.Context) (string, bool)

// UserFromContext is the default UserFunc. It reads a string stored with
// c.Set(UserContextKey, id).
func UserFromContext(c *gin.Context) (string, bool) {
	id := c.GetString(UserContextKey)
	return id, id != ""
}

// Options configure the gin middleware behavior.
type Options struct {
	// UserFunc extracts the authenticated user. Nil uses UserFromContext.
	UserFunc UserFunc

	// KeyHeader names the header carrying API keys when no bearer token is
	// sent. Empty means X-API-Key.
	KeyHeader string

	// Cost returns the cost of a request. Nil charges the policy cost.
	Cost func(c *gin.Context) int64

	// FailOpen lets requests through when the store fails. The default is
	// to abort with 503.
	FailOpen bool

	// Logger receives store failures.
	Logger limiter.Logger
}

// Middleware enforces rate limits for incoming gin requests.
//
// The client address is taken from the connection and X-Forwarded-For as
// the limiter's trusted proxies dictate; gin's own ClientIP settings are
// not consulted.
func Middleware(l limiter.Checker, opts Options) gin.HandlerFunc {
	if opts.UserFunc == nil {
		opts.UserFunc = UserFromContext
	}
	if opts.KeyHeader == "" {
		opts.KeyHeader = "X-API-Key"
	}
	if opts.Logger == nil {
		opts.Logger = limiter.NopLogger{}
	}

	return func(c *gin.Context) {
		req := NewRequest(c, opts.UserFunc, opts.KeyHeader)

		var (
			dec limiter.Decision
			err error
		)
		if opts.Cost != nil {
			dec, err = l.CheckN(c.Request.Context(), req, opts.Cost(c))
		} else {
			dec, err = l.Check(c.Request.Context(), req)
		}
		if err != nil {
			opts.Logger.Error("rate limit check failed", map[string]any{
				"path":      c.Request.URL.Path,
				"fail_open": opts.FailOpen,
				"error":     err,
			})
			if opts.FailOpen {
				c.Next()
				return
			}
			respondError(c, http.StatusServiceUnavailable, "rate limiter unavailable")
			return
		}

		for k, v := range dec.Headers() {
			c.Header(k, v)
		}

		if !dec.Allowed {
			retryAfter, _ := strconv.Atoi(dec.Headers()["Retry-After"])
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}

// NewRequest translates a gin request into a limiter request view.
func NewRequest(c *gin.Context, user UserFunc, keyHeader string) keys.Request {
	req := keys.Request{
		Peer:      c.Request.RemoteAddr,
		Forwarded: keys.SplitForwardedFor(c.Request.Header.Values("X-Forwarded-For")...),
		URLPath:   c.Request.URL.Path,
	}
	if user != nil {
		req.User, _ = user(c)
	}
	if token, ok := keys.BearerToken(c.GetHeader("Authorization")); ok {
		req.Key = token
	} else if keyHeader != "" {
		req.Key = strings.TrimSpace(c.GetHeader(keyHeader))
	}
	return req
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
