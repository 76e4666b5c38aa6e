// Package proxylistener accepts connections with PROXY protocol headers,
// sent by the load balancers in front of the gateway, so that the
// address of the client is seen by the proxy instead of the address of
// the load balancer.
package proxylistener

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/pires/go-proxyproto"
	log "github.com/sirupsen/logrus"
	"go4.org/netipx"

	snet "github.com/fundflow/gateway/net"
)

const (
	defaultReadHeaderTimeout = time.Second // 10s seems too long https://github.com/pires/go-proxyproto/blob/5c8010d2392f09ce18169631c024aceae758335a/protocol.go#L28
	defaultReadBufferSize    = 256         // https://github.com/pires/go-proxyproto/blob/5c8010d2392f09ce18169631c024aceae758335a/protocol.go#L21
)

type Options struct {
	Listener          net.Listener
	ReadHeaderTimeout time.Duration
	ReadBufferSize    int

	// TrustedCIDRs are the networks of the load balancers. The PROXY
	// headers of other peers are ignored. When empty, every peer is
	// trusted.
	TrustedCIDRs []string

	// RequireHeader rejects the connections of trusted peers without a
	// PROXY header.
	RequireHeader bool

	// SkipCIDRs are accepted without reading a PROXY header, e.g. the
	// peers sending health checks directly.
	SkipCIDRs []string

	// DenyCIDRs are rejected.
	DenyCIDRs []string
}

type connPolicy struct {
	trusted, skip, deny *netipx.IPSet
	trustAll            bool
	require             bool
}

func upstreamAddr(a net.Addr) (netip.Addr, error) {
	ap, err := netip.ParseAddrPort(a.String())
	if err != nil {
		return netip.Addr{}, err
	}

	return ap.Addr().Unmap(), nil
}

func (p *connPolicy) policy(o proxyproto.ConnPolicyOptions) (proxyproto.Policy, error) {
	addr, err := upstreamAddr(o.Upstream)
	if err != nil {
		return proxyproto.REJECT, err
	}

	switch {
	case p.deny.Contains(addr):
		log.Debugf("proxylistener: rejecting connection from %v", addr)
		return proxyproto.REJECT, nil
	case p.skip.Contains(addr):
		return proxyproto.SKIP, nil
	case p.trustAll || p.trusted.Contains(addr):
		if p.require {
			return proxyproto.REQUIRE, nil
		}

		return proxyproto.USE, nil
	default:
		return proxyproto.IGNORE, nil
	}
}

func validateHeader(h *proxyproto.Header) error {
	if h == nil {
		return fmt.Errorf("proxylistener: header is nil")
	}

	if h.SourceAddr == nil || h.DestinationAddr == nil {
		return fmt.Errorf("proxylistener: header missing addresses src: %q, dst: %q", h.SourceAddr, h.DestinationAddr)
	}

	if h.TransportProtocol != proxyproto.TCPv4 && h.TransportProtocol != proxyproto.TCPv6 {
		return fmt.Errorf("proxylistener: unsupported protocol %v", h.TransportProtocol)
	}

	return nil
}

// NewListener wraps the listener of the options. The connections of the
// returned listener report the client address from the PROXY header as
// their remote address.
func NewListener(o Options) (net.Listener, error) {
	if o.Listener == nil {
		return nil, fmt.Errorf("proxylistener: missing listener")
	}

	if o.ReadHeaderTimeout == 0 {
		o.ReadHeaderTimeout = defaultReadHeaderTimeout
	}

	if o.ReadBufferSize == 0 {
		o.ReadBufferSize = defaultReadBufferSize
	}

	trusted, err := snet.ParseIPCIDRs(o.TrustedCIDRs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trusted networks: %w", err)
	}

	skip, err := snet.ParseIPCIDRs(o.SkipCIDRs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse skip list: %w", err)
	}

	deny, err := snet.ParseIPCIDRs(o.DenyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse deny list: %w", err)
	}

	p := &connPolicy{
		trusted:  trusted,
		skip:     skip,
		deny:     deny,
		trustAll: len(o.TrustedCIDRs) == 0,
		require:  o.RequireHeader,
	}

	return &proxyproto.Listener{
		Listener:          o.Listener,
		ReadHeaderTimeout: o.ReadHeaderTimeout,
		ReadBufferSize:    o.ReadBufferSize,
		ConnPolicy:        p.policy,
		ValidateHeader:    validateHeader,
	}, nil
}
