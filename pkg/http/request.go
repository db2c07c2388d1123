package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig lists the proxy ranges whose forwarding headers are believed.
// Entries may be CIDR prefixes or bare addresses; malformed entries are ignored.
type IPConfig struct {
	TrustedProxies []string
}

func (c *IPConfig) trusts(addr netip.Addr) bool {
	if c == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, entry := range c.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			if prefix.Contains(addr) {
				return true
			}
			continue
		}
		if single, err := netip.ParseAddr(entry); err == nil && single.Unmap() == addr {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the address that login attempts, OTP sends and
// captcha challenges are attributed to.
//
// Forwarding headers are consulted only when the direct peer is a trusted
// proxy. X-Forwarded-For is walked right to left and the first hop that is
// not itself a trusted proxy wins, so a client cannot prepend a spoofed
// address. X-Real-IP is the fallback, then the peer address.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer := peerAddr(r.RemoteAddr)
	if peer == "" {
		return "unknown"
	}

	peerIP, err := netip.ParseAddr(peer)
	if err != nil || !config.trusts(peerIP) {
		return peer
	}

	if hops := r.Header.Values("X-Forwarded-For"); len(hops) > 0 {
		chain := strings.Split(strings.Join(hops, ","), ",")
		for i := len(chain) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(chain[i]))
			if err != nil {
				break
			}
			if !config.trusts(hop) {
				return hop.Unmap().String()
			}
		}
	}

	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}

	return peer
}

// peerAddr strips the port from RemoteAddr when present.
func peerAddr(remote string) string {
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}
