// Package classify assigns a best-effort device label to a live address.
//
// Classification runs a fixed pipeline and the first stage with an answer
// wins: reverse DNS, signature ports, the service table, liveness
// re-verification, and finally a guess from the last octet.
package classify

import (
	"context"
	"net/netip"

	"github.com/agent462/netsurvey/internal/probe"
	"github.com/projectdiscovery/gologger"
)

// Label is a device classification. A reverse DNS name is also a Label.
type Label string

const (
	LabelUnknown       Label = "Unknown Device"
	LabelGhost         Label = "Possible Ghost - Unconfirmed"
	LabelRouter        Label = "Possible Router/Gateway"
	LabelNetworkDevice Label = "Possible Network Device"

	LabelAppleMobile Label = "Apple iPhone/iPad"
	LabelAndroid     Label = "Android Device"
	LabelAppleTV     Label = "Apple TV"
	LabelChromecast  Label = "Google Chromecast"
	LabelRoku        Label = "Roku Device"
)

// Host pairs a live address with its label.
type Host struct {
	Addr  netip.Addr `json:"ip"`
	Label Label      `json:"label"`
}

// Confirmed reports whether the host passed re-verification.
func (h Host) Confirmed() bool {
	return h.Label != LabelGhost
}

// signature is a high-confidence fingerprint. It matches when any port in
// anyOf is open, or when every port in allOf is open.
type signature struct {
	label Label
	anyOf []int
	allOf []int
}

// Checked in order; the first match wins.
var signatures = []signature{
	{label: LabelAppleMobile, anyOf: []int{62078}},
	{label: LabelAndroid, anyOf: []int{5228, 9000}},
	{label: LabelAppleTV, allOf: []int{7000, 5353}},
	{label: LabelChromecast, anyOf: []int{8009}},
	{label: LabelRoku, anyOf: []int{8060}},
}

var (
	// One of these must answer when ICMP already did.
	icmpConfirmPorts = []int{80, 443, 22, 8080, 62078, 7000}

	// Two of these must answer when ICMP did not.
	tcpConfirmPorts = []int{80, 443, 22, 21, 23, 25, 53, 3389, 8080, 445, 7000, 62078, 5353, 5228, 9000, 8009, 8060, 1900}
)

const tcpConfirmQuorum = 2

// Classifier labels addresses using a probe.Transport.
type Classifier struct {
	transport probe.Transport
	services  ServiceTable
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithServiceTable replaces the default service table.
func WithServiceTable(t ServiceTable) Option {
	return func(c *Classifier) {
		c.services = t
	}
}

// New creates a Classifier backed by t.
func New(t probe.Transport, opts ...Option) *Classifier {
	c := &Classifier{
		transport: t,
		services:  DefaultServiceTable(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Services returns the table used by the service stage.
func (c *Classifier) Services() ServiceTable {
	return c.services
}

// Classify returns the label for addr. It always returns a non-empty label.
func (c *Classifier) Classify(ctx context.Context, addr netip.Addr) Label {
	if name, ok := c.transport.LookupHost(ctx, addr); ok && name != "" {
		return Label(name)
	}

	if label, ok := c.matchSignature(ctx, addr); ok {
		return label
	}

	for _, s := range c.services.services {
		if c.open(ctx, addr, s.Port) {
			return Label(s.Name)
		}
	}

	if !c.verify(ctx, addr) {
		gologger.Debug().Msgf("%s failed re-verification", addr)
		return LabelGhost
	}

	if label, ok := guessFromOctet(addr); ok {
		return label
	}
	return LabelUnknown
}

func (c *Classifier) matchSignature(ctx context.Context, addr netip.Addr) (Label, bool) {
	for _, sig := range signatures {
		if len(sig.anyOf) > 0 && c.anyOpen(ctx, addr, sig.anyOf) {
			return sig.label, true
		}
		if len(sig.allOf) > 0 && c.allOpen(ctx, addr, sig.allOf) {
			return sig.label, true
		}
	}
	return "", false
}

// verify re-checks that addr is really there. An ICMP reply alone is not
// trusted; it needs one common TCP port to back it up. Without ICMP, two
// ports from the longer list must answer.
func (c *Classifier) verify(ctx context.Context, addr netip.Addr) bool {
	if alive, _ := c.transport.ICMP(ctx, addr); alive {
		return c.anyOpen(ctx, addr, icmpConfirmPorts)
	}

	open := 0
	for i, port := range tcpConfirmPorts {
		if c.open(ctx, addr, port) {
			open++
			if open >= tcpConfirmQuorum {
				return true
			}
		}
		if open+len(tcpConfirmPorts)-i-1 < tcpConfirmQuorum {
			return false
		}
	}
	return false
}

func guessFromOctet(addr netip.Addr) (Label, bool) {
	if !addr.Is4() && !addr.Is4In6() {
		return "", false
	}
	switch addr.Unmap().As4()[3] {
	case 1, 254:
		return LabelRouter, true
	case 10, 20, 50, 100:
		return LabelNetworkDevice, true
	}
	return "", false
}

func (c *Classifier) open(ctx context.Context, addr netip.Addr, port int) bool {
	ok, _ := c.transport.TCP(ctx, addr, port)
	return ok
}

func (c *Classifier) anyOpen(ctx context.Context, addr netip.Addr, ports []int) bool {
	for _, p := range ports {
		if c.open(ctx, addr, p) {
			return true
		}
	}
	return false
}

func (c *Classifier) allOpen(ctx context.Context, addr netip.Addr, ports []int) bool {
	for _, p := range ports {
		if !c.open(ctx, addr, p) {
			return false
		}
	}
	return true
}
