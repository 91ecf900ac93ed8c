package keys

import "strings"

var healthCheckPaths = map[string]struct{}{
	"/health":      {},
	"/healthz":     {},
	"/healthcheck": {},
	"/ready":       {},
	"/readyz":      {},
	"/live":        {},
	"/livez":       {},
	"/ping":        {},
	"/_health":     {},
}

// IsHealthCheck reports whether path is a well-known liveness or readiness
// endpoint such as /health, /healthz, /readyz or /ping. Sub-paths of
// /health (e.g. /health/live) also match. A trailing slash is ignored.
func IsHealthCheck(path string) bool {
	if path == "" {
		return false
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	path = strings.ToLower(path)
	if _, ok := healthCheckPaths[path]; ok {
		return true
	}
	return strings.HasPrefix(path, "/health/")
}

// MatchPath checks if a request path matches a pattern.
// Supports exact match and prefix match (pattern ending with *). A pattern
// ending in "/*" also matches the bare prefix, so "/static/*" matches
// "/static".
func MatchPath(path, pattern string) bool {
	n := len(pattern)
	if n == 0 || pattern[n-1] != '*' {
		return path == pattern
	}
	prefix := pattern[:n-1]
	if strings.HasPrefix(path, prefix) {
		return true
	}
	return strings.HasSuffix(prefix, "/") && path == prefix[:len(prefix)-1]
}
