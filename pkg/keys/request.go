// Package keys derives quota keys from requests.
//
// The package never sees framework request types. Adapters translate their
// requests into a RequestView, and everything here works on that view.
package keys

import "strings"

// RequestView is the minimal set of request attributes the limiter needs.
// Implementations must be cheap to call; the limiter may call a method more
// than once per check.
type RequestView interface {
	// RemoteAddr returns the immediate peer address, with or without a port.
	RemoteAddr() string

	// ForwardedFor returns the forwarded-for chain, client first, in the
	// order the entries appear in the header(s). It may be nil.
	ForwardedFor() []string

	// Path returns the request path, or "" if the transport has none.
	Path() string

	// UserID returns the authenticated user identifier, if any.
	UserID() (string, bool)

	// APIKey returns the presented API key or credential, if any.
	APIKey() (string, bool)
}

// Request is a plain RequestView. Adapters and tests can fill it directly.
type Request struct {
	Peer      string
	Forwarded []string
	URLPath   string
	User      string
	Key       string
}

var _ RequestView = Request{}

func (r Request) RemoteAddr() string     { return r.Peer }
func (r Request) ForwardedFor() []string { return r.Forwarded }
func (r Request) Path() string           { return r.URLPath }

func (r Request) UserID() (string, bool) {
	if r.User == "" {
		return "", false
	}
	return r.User, true
}

func (r Request) APIKey() (string, bool) {
	if r.Key == "" {
		return "", false
	}
	return r.Key, true
}

// SplitForwardedFor splits X-Forwarded-For header values into entries,
// preserving order and dropping empty items.
func SplitForwardedFor(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// BearerToken returns the token from an "Authorization: Bearer <token>"
// value.
func BearerToken(authorization string) (string, bool) {
	parts := strings.Fields(authorization)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "" {
		return parts[1], true
	}
	return "", false
}
