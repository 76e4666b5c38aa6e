// Package net provides the networking helpers of the gateway: client
// address detection, forwarded headers, CIDR sets, the upstream transport
// and a listener tracking the active connections for graceful shutdown.
package net

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// strip port from addresses with hostname, ipv4 or ipv6
func stripPort(address string) string {
	if h, _, err := net.SplitHostPort(address); err == nil {
		return h
	}

	return address
}

// RemoteAddr returns the remote address of the client. When the
// 'X-Forwarded-For' header is set, then its first valid address is used
// instead. This is how most often proxies behave. Wikipedia shows the
// format https://en.wikipedia.org/wiki/X-Forwarded-For#Format
//
// Example:
//
//	X-Forwarded-For: client, proxy1, proxy2
func RemoteAddr(r *http.Request) netip.Addr {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		s, _, _ := strings.Cut(xff, ",")
		if addr, err := netip.ParseAddr(stripPort(strings.TrimSpace(s))); err == nil {
			return addr
		}
	}
	addr, _ := netip.ParseAddr(stripPort(r.RemoteAddr))
	return addr
}

// ClientIP returns the address of the connection peer, ignoring the
// X-Forwarded-For header, or an empty string.
func ClientIP(r *http.Request) string {
	addr, err := netip.ParseAddr(stripPort(r.RemoteAddr))
	if err != nil {
		return ""
	}

	return addr.Unmap().String()
}

// ParseIPCIDRs returns a valid IPSet even in case there are parsing
// errors of some partial provided input cidrs. So recently added
// bogus values can be logged and ignored at runtime.
func ParseIPCIDRs(cidrs []string) (*netipx.IPSet, error) {
	var (
		b   netipx.IPSetBuilder
		err error
	)

	for _, w := range cidrs {
		if strings.Contains(w, "/") {
			if pref, e := netip.ParsePrefix(w); e != nil {
				err = e
			} else {
				b.AddPrefix(pref)
			}
		} else if addr, e := netip.ParseAddr(w); e != nil {
			err = e
		} else {
			b.Add(addr)
		}
	}

	ips, e := b.IPSet()
	if e != nil {
		return ips, e
	}

	return ips, err
}
