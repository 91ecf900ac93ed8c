package keys

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStrategy is returned for an unrecognized key strategy, or for
// StrategyCustom without an extractor.
var ErrUnknownStrategy = errors.New("halt: unknown key strategy")

// Strategy selects how a quota key is derived from a request.
type Strategy string

const (
	StrategyIP        Strategy = "ip"
	StrategyUser      Strategy = "user"
	StrategyAPIKey    Strategy = "api_key"
	StrategyComposite Strategy = "composite"
	StrategyCustom    Strategy = "custom"
)

// Extractor derives a key from a request. It returns false when no key can
// be derived.
type Extractor func(r RequestView) (string, bool)

// ParseStrategy normalizes a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyIP, "":
		return StrategyIP, nil
	case StrategyUser, "user_id":
		return StrategyUser, nil
	case StrategyAPIKey, "apikey", "api-key":
		return StrategyAPIKey, nil
	case StrategyComposite:
		return StrategyComposite, nil
	case StrategyCustom:
		return StrategyCustom, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// ExtractUserID returns the authenticated user identifier, if any.
func ExtractUserID(r RequestView) (string, bool) {
	return nonEmpty(r.UserID())
}

// ExtractAPIKey returns the presented API key, if any.
func ExtractAPIKey(r RequestView) (string, bool) {
	return nonEmpty(r.APIKey())
}

// Composite resolves a key from the identities present on r, first match
// wins:
//
//	user:ip, api_key:ip, user, api_key, ip
//
// It returns false when none are present.
func Composite(r RequestView, trusted TrustedProxies) (string, bool) {
	user, hasUser := ExtractUserID(r)
	apiKey, hasKey := ExtractAPIKey(r)
	ip, hasIP := ExtractIP(r, trusted)

	switch {
	case hasUser && hasIP:
		return user + ":" + ip, true
	case hasKey && hasIP:
		return apiKey + ":" + ip, true
	case hasUser:
		return user, true
	case hasKey:
		return apiKey, true
	case hasIP:
		return ip, true
	default:
		return "", false
	}
}

// Resolver returns the Extractor for strategy. A non-nil custom extractor
// overrides the strategy.
func Resolver(strategy Strategy, custom Extractor, trusted TrustedProxies) (Extractor, error) {
	if custom != nil {
		return custom, nil
	}
	switch strategy {
	case StrategyIP, "":
		return func(r RequestView) (string, bool) { return ExtractIP(r, trusted) }, nil
	case StrategyUser:
		return ExtractUserID, nil
	case StrategyAPIKey:
		return ExtractAPIKey, nil
	case StrategyComposite:
		return func(r RequestView) (string, bool) { return Composite(r, trusted) }, nil
	case StrategyCustom:
		return nil, fmt.Errorf("%w: custom strategy requires an extractor", ErrUnknownStrategy)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

func nonEmpty(s string, ok bool) (string, bool) {
	s = strings.TrimSpace(s)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
