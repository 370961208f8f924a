// Package probe decides whether a single IPv4 address is alive.
//
// A Prober combines the checks offered by a Transport according to its Mode:
//
//   - ModeICMP: one ICMP echo.
//   - ModeTCP: one TCP connect to the configured port.
//   - ModeFallback: ICMP, then TCP only if ICMP got no reply.
//   - ModeConsensus: ICMP plus TCP 80, 443 and 22; alive when at least two agree.
package probe

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Transport is the network boundary used by probers and the classifier.
// Implementations report failures of any kind as "not alive".
type Transport interface {
	ICMP(ctx context.Context, addr netip.Addr) (bool, time.Duration)
	TCP(ctx context.Context, addr netip.Addr, port int) (bool, time.Duration)
	LookupHost(ctx context.Context, addr netip.Addr) (string, bool)
}

// Result is the outcome of probing one address.
type Result struct {
	Addr    netip.Addr
	Alive   bool
	Latency time.Duration // zero when not alive
}

// Mode selects how a Prober combines checks.
type Mode int

const (
	ModeICMP Mode = iota
	ModeTCP
	ModeFallback
	ModeConsensus
)

// ConsensusPorts are the TCP ports checked next to ICMP in ModeConsensus.
var ConsensusPorts = []int{80, 443, 22}

// ConsensusQuorum is the number of agreeing checks ModeConsensus requires.
const ConsensusQuorum = 2

func (m Mode) String() string {
	switch m {
	case ModeICMP:
		return "icmp"
	case ModeTCP:
		return "tcp"
	case ModeFallback:
		return "fallback"
	case ModeConsensus:
		return "consensus"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a user-facing scan mode. Consensus is not selectable by name;
// it is enabled with the thorough flag (see SelectMode).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "icmp":
		return ModeICMP, nil
	case "tcp":
		return ModeTCP, nil
	case "fallback", "":
		return ModeFallback, nil
	default:
		return 0, fmt.Errorf("invalid scan mode %q, must be one of: icmp, tcp, fallback", s)
	}
}

// SelectMode returns ModeConsensus for thorough scans and mode otherwise.
func SelectMode(mode Mode, thorough bool) Mode {
	if thorough {
		return ModeConsensus
	}
	return mode
}

// Prober probes addresses with a fixed Mode.
type Prober struct {
	transport Transport
	mode      Mode
	port      int
}

// New creates a Prober. port is used by ModeTCP and ModeFallback.
func New(t Transport, mode Mode, port int) *Prober {
	return &Prober{transport: t, mode: mode, port: port}
}

// Mode returns the prober's mode.
func (p *Prober) Mode() Mode {
	return p.mode
}

// Probe checks a single address.
func (p *Prober) Probe(ctx context.Context, addr netip.Addr) Result {
	var (
		alive bool
		rtt   time.Duration
	)

	switch p.mode {
	case ModeICMP:
		alive, rtt = p.transport.ICMP(ctx, addr)
	case ModeTCP:
		alive, rtt = p.transport.TCP(ctx, addr, p.port)
	case ModeFallback:
		alive, rtt = p.transport.ICMP(ctx, addr)
		if !alive {
			alive, rtt = p.transport.TCP(ctx, addr, p.port)
		}
	case ModeConsensus:
		alive, rtt = p.consensus(ctx, addr)
	}

	if !alive {
		rtt = 0
	}
	return Result{Addr: addr, Alive: alive, Latency: rtt}
}

// consensus runs ICMP and the consensus TCP checks in order, stopping as soon
// as the quorum is reached or can no longer be reached.
func (p *Prober) consensus(ctx context.Context, addr netip.Addr) (bool, time.Duration) {
	checks := make([]func() (bool, time.Duration), 0, 1+len(ConsensusPorts))
	checks = append(checks, func() (bool, time.Duration) { return p.transport.ICMP(ctx, addr) })
	for _, port := range ConsensusPorts {
		port := port
		checks = append(checks, func() (bool, time.Duration) { return p.transport.TCP(ctx, addr, port) })
	}

	var (
		agreed int
		best   time.Duration
	)
	for i, check := range checks {
		ok, rtt := check()
		if ok {
			agreed++
			if best == 0 || rtt < best {
				best = rtt
			}
		}
		if agreed >= ConsensusQuorum {
			return true, best
		}
		remaining := len(checks) - i - 1
		if agreed+remaining < ConsensusQuorum {
			return false, 0
		}
	}
	return false, 0
}
