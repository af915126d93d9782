package http

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig lists the proxies allowed to report a client address on a peer's behalf
type IPConfig struct {
	TrustedProxies []string // CIDR ranges or single addresses

	prefixes []netip.Prefix
}

// NewIPConfig parses the trusted proxy list. Every entry must be a CIDR range
// or a single address.
func NewIPConfig(trustedProxies []string) (*IPConfig, error) {
	prefixes := make([]netip.Prefix, 0, len(trustedProxies))
	for _, entry := range trustedProxies {
		p, ok := parseProxy(entry)
		if !ok {
			return nil, fmt.Errorf("invalid trusted proxy %q", entry)
		}
		prefixes = append(prefixes, p)
	}
	return &IPConfig{TrustedProxies: trustedProxies, prefixes: prefixes}, nil
}

// trusted returns the parsed ranges. Configs built as literals are parsed on
// each call and invalid entries are skipped.
func (c *IPConfig) trusted() []netip.Prefix {
	if c == nil {
		return nil
	}
	if c.prefixes != nil {
		return c.prefixes
	}
	var prefixes []netip.Prefix
	for _, entry := range c.TrustedProxies {
		if p, ok := parseProxy(entry); ok {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

func parseProxy(entry string) (netip.Prefix, bool) {
	entry = strings.TrimSpace(entry)
	if p, err := netip.ParsePrefix(entry); err == nil {
		return p.Masked(), true
	}
	if a, err := netip.ParseAddr(entry); err == nil {
		a = a.Unmap()
		return netip.PrefixFrom(a, a.BitLen()), true
	}
	return netip.Prefix{}, false
}

func contains(prefixes []netip.Prefix, a netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the address scans and throttles are keyed by.
//
// Forwarding headers are read only when the peer is a trusted proxy. Each
// proxy appends the address it received from, so X-Forwarded-For is walked
// from the right and the first address outside the trusted ranges is the
// client. Entries to its left are whatever the client chose to send. When
// every hop is trusted, X-Real-IP and then the leftmost hop are used.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remote, ok := remoteAddr(r)
	if !ok {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}

	trusted := config.trusted()
	if !contains(trusted, remote) {
		return remote.String()
	}

	hops := forwardedFor(r)
	nearest := remote
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(hops[i])
		if err != nil {
			// Nothing left of a malformed hop can be attributed
			return nearest.String()
		}
		hop = hop.Unmap()
		if !contains(trusted, hop) {
			return hop.String()
		}
		nearest = hop
	}

	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}
	return nearest.String()
}

// forwardedFor flattens every X-Forwarded-For header in arrival order
func forwardedFor(r *http.Request) []string {
	var hops []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		for _, hop := range strings.Split(v, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}

func remoteAddr(r *http.Request) (netip.Addr, bool) {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}
