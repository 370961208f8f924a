package probe

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/projectdiscovery/gologger"
)

// DefaultTimeout bounds every ICMP and TCP check.
const DefaultTimeout = time.Second

// NetTransport talks to the real network.
type NetTransport struct {
	timeout  time.Duration
	resolver *net.Resolver
	echoers  []echoer
}

// TransportOption configures a NetTransport.
type TransportOption func(*NetTransport)

// WithTimeout sets the per-check timeout.
func WithTimeout(d time.Duration) TransportOption {
	return func(t *NetTransport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithResolver sets the resolver used for reverse lookups.
func WithResolver(r *net.Resolver) TransportOption {
	return func(t *NetTransport) {
		if r != nil {
			t.resolver = r
		}
	}
}

// NewNetTransport creates a transport with a 1s timeout, the default resolver,
// and the default ICMP echo chain.
func NewNetTransport(opts ...TransportOption) *NetTransport {
	t := &NetTransport{
		timeout:  DefaultTimeout,
		resolver: net.DefaultResolver,
		echoers:  defaultEchoers(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Timeout returns the per-check timeout.
func (t *NetTransport) Timeout() time.Duration {
	return t.timeout
}

// ICMP sends one echo request and waits for the matching reply. Each method of
// the echo chain is tried in order until one is able to send.
func (t *NetTransport) ICMP(ctx context.Context, addr netip.Addr) (bool, time.Duration) {
	for _, e := range t.echoers {
		alive, rtt, err := e.echo(ctx, addr, t.timeout)
		if err == nil {
			return alive, rtt
		}
		gologger.Debug().Msgf("icmp %s via %s unavailable: %v", addr, e.name, err)
	}
	return false, 0
}

// TCP reports whether a TCP handshake with addr:port completes within the
// timeout. Nothing is sent or read.
func (t *NetTransport) TCP(ctx context.Context, addr netip.Addr, port int) (bool, time.Duration) {
	d := net.Dialer{Timeout: t.timeout}
	target := net.JoinHostPort(addr.String(), strconv.Itoa(port))

	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp4", target)
	if err != nil {
		if isSocketExhaustion(err) {
			gologger.Debug().Msgf("tcp %s: %v", target, err)
		}
		return false, 0
	}
	rtt := time.Since(start)
	conn.Close()
	return true, rtt
}

// LookupHost returns the first reverse DNS name for addr.
func (t *NetTransport) LookupHost(ctx context.Context, addr netip.Addr) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*t.timeout)
	defer cancel()

	names, err := t.resolver.LookupAddr(ctx, addr.String())
	if err != nil || len(names) == 0 {
		return "", false
	}
	name := strings.TrimSuffix(names[0], ".")
	if name == "" {
		return "", false
	}
	return name, true
}

// isSocketExhaustion reports errors caused by running out of local sockets
// rather than by the remote host.
func isSocketExhaustion(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "too many open files") ||
		strings.Contains(msg, "socket: ") ||
		strings.Contains(msg, "cannot assign requested address")
}
