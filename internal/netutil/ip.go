package netutil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP extracts the client IP address from the request, preferring
// proxy headers over the socket address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// First hop is the originating client
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			forwarded = forwarded[:i]
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IsRoutable reports whether the address is publicly routable. Private,
// loopback, link-local, multicast and unspecified addresses are not.
func IsRoutable(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.IsGlobalUnicast() &&
		!addr.IsPrivate() &&
		!addr.IsLoopback() &&
		!addr.IsLinkLocalUnicast()
}

// ClassifiedIP returns the caller address annotated with its routability,
// the form audit descriptions embed: "203.0.113.9 (Routable)".
func ClassifiedIP(r *http.Request) string {
	ip := ClientIP(r)
	if ip == "" {
		return "unknown"
	}
	if IsRoutable(ip) {
		return ip + " (Routable)"
	}
	return ip + " (Unroutable)"
}
