package keys

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// ErrInvalidProxy is returned when a trusted proxy entry is neither an IP
// nor a CIDR block.
var ErrInvalidProxy = errors.New("halt: invalid trusted proxy")

// TrustedProxies is a parsed set of proxy addresses and networks.
// The zero value trusts nothing.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// ParseTrustedProxies parses individual IPs ("10.0.0.1") and CIDR blocks
// ("10.0.0.0/8").
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return TrustedProxies{}, fmt.Errorf("%w: %q", ErrInvalidProxy, entry)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return TrustedProxies{prefixes: prefixes}, nil
}

// Contains reports whether addr belongs to a trusted proxy.
func (t TrustedProxies) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Len returns the number of trusted entries.
func (t TrustedProxies) Len() int {
	return len(t.prefixes)
}

// ExtractIP returns the client address for r.
//
// When the peer is a trusted proxy the forwarded-for chain is walked right to
// left and the first untrusted entry wins; entries that do not parse are
// skipped. If every entry is trusted the leftmost valid one is returned.
// Otherwise the peer address itself is returned, so a direct client cannot
// spoof its identity with a forged header.
func ExtractIP(r RequestView, trusted TrustedProxies) (string, bool) {
	peer, ok := ParseAddr(r.RemoteAddr())
	if !ok {
		return "", false
	}
	if !trusted.Contains(peer) {
		return peer.String(), true
	}

	chain := r.ForwardedFor()
	var leftmost netip.Addr
	for i := len(chain) - 1; i >= 0; i-- {
		addr, ok := ParseAddr(chain[i])
		if !ok {
			continue
		}
		if !trusted.Contains(addr) {
			return addr.String(), true
		}
		leftmost = addr
	}
	if leftmost.IsValid() {
		return leftmost.String(), true
	}
	return peer.String(), true
}

// ParseAddr parses an address that may carry a port ("1.2.3.4:80",
// "[::1]:80") or IPv6 brackets, and returns it in canonical form with
// IPv4-mapped IPv6 addresses unmapped.
func ParseAddr(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().WithZone(""), true
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		if addr, err := netip.ParseAddr(host); err == nil {
			return addr.Unmap().WithZone(""), true
		}
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		if addr, err := netip.ParseAddr(s[1 : len(s)-1]); err == nil {
			return addr.Unmap().WithZone(""), true
		}
	}
	return netip.Addr{}, false
}

// IsPrivateIP reports whether ip is in an RFC 1918 / RFC 4193 private range,
// loopback, or link-local. Unparseable input is not private.
func IsPrivateIP(ip string) bool {
	addr, ok := ParseAddr(ip)
	if !ok {
		return false
	}
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}
