// Package probetest provides an in-memory probe.Transport for tests.
package probetest

import (
	"context"
	"math/rand/v2"
	"net/netip"
	"sync"
	"time"
)

// Host describes how a fake address answers.
type Host struct {
	ICMP     bool
	Ports    []int
	Hostname string
}

// Call records one transport call.
type Call struct {
	Kind string // "icmp", "tcp" or "lookup"
	Addr netip.Addr
	Port int
}

// Transport is a scripted probe.Transport. Addresses without a Host entry
// answer nothing.
type Transport struct {
	mu     sync.Mutex
	hosts  map[netip.Addr]Host
	calls  []Call
	rtt    time.Duration
	jitter time.Duration
}

// Option configures a Transport.
type Option func(*Transport)

// WithRTT sets the latency reported for successful checks.
func WithRTT(d time.Duration) Option {
	return func(t *Transport) { t.rtt = d }
}

// WithJitter makes every call sleep for a random duration up to d, so that
// concurrent callers finish in an unpredictable order.
func WithJitter(d time.Duration) Option {
	return func(t *Transport) { t.jitter = d }
}

// New returns an empty Transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		hosts: make(map[netip.Addr]Host),
		rtt:   time.Millisecond,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Set scripts the behavior of addr. It panics on a malformed address.
func (t *Transport) Set(addr string, h Host) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hosts[netip.MustParseAddr(addr)] = h
	return t
}

func (t *Transport) ICMP(ctx context.Context, addr netip.Addr) (bool, time.Duration) {
	h := t.record(Call{Kind: "icmp", Addr: addr})
	if !h.ICMP {
		return false, 0
	}
	return true, t.rtt
}

func (t *Transport) TCP(ctx context.Context, addr netip.Addr, port int) (bool, time.Duration) {
	h := t.record(Call{Kind: "tcp", Addr: addr, Port: port})
	for _, p := range h.Ports {
		if p == port {
			return true, t.rtt
		}
	}
	return false, 0
}

func (t *Transport) LookupHost(ctx context.Context, addr netip.Addr) (string, bool) {
	h := t.record(Call{Kind: "lookup", Addr: addr})
	if h.Hostname == "" {
		return "", false
	}
	return h.Hostname, true
}

// Calls returns a copy of every call made so far.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}

// Count returns how many calls of the given kind were made.
func (t *Transport) Count(kind string) int {
	n := 0
	for _, c := range t.Calls() {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

func (t *Transport) record(c Call) Host {
	if t.jitter > 0 {
		time.Sleep(rand.N(t.jitter))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, c)
	return t.hosts[c.Addr]
}
