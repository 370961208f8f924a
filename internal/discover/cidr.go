package discover

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// ErrInvalidCIDR is wrapped by every error returned from ParseCIDR.
var ErrInvalidCIDR = errors.New("invalid CIDR")

// CIDRError describes why a CIDR string was rejected.
type CIDRError struct {
	Input  string
	Reason string
}

func (e *CIDRError) Error() string {
	return fmt.Sprintf("invalid CIDR %q: %s", e.Input, e.Reason)
}

func (e *CIDRError) Is(target error) bool {
	return target == ErrInvalidCIDR
}

// Range is an inclusive block of IPv4 addresses.
type Range struct {
	Start uint32
	End   uint32
}

// ParseCIDR parses "a.b.c.d/n" into the block it denotes. Host bits in the
// address are ignored, so "192.168.1.77/24" yields 192.168.1.0-192.168.1.255.
func ParseCIDR(cidr string) (Range, error) {
	addrPart, prefixPart, ok := strings.Cut(cidr, "/")
	if !ok {
		return Range{}, &CIDRError{Input: cidr, Reason: "missing prefix length"}
	}

	prefix, err := strconv.Atoi(prefixPart)
	if err != nil {
		return Range{}, &CIDRError{Input: cidr, Reason: fmt.Sprintf("prefix %q is not a number", prefixPart)}
	}
	if prefix < 0 || prefix > 32 {
		return Range{}, &CIDRError{Input: cidr, Reason: fmt.Sprintf("prefix %d outside [0,32]", prefix)}
	}

	addr, err := netip.ParseAddr(addrPart)
	if err != nil || !addr.Is4() {
		return Range{}, &CIDRError{Input: cidr, Reason: fmt.Sprintf("%q is not a dotted-quad IPv4 address", addrPart)}
	}

	mask := prefixMask(prefix)
	start := Uint32FromAddr(addr) & mask
	return Range{Start: start, End: start | ^mask}, nil
}

func prefixMask(prefix int) uint32 {
	if prefix == 0 {
		return 0
	}
	return ^uint32(0) << (32 - prefix)
}

// Size returns the number of addresses in the range.
func (r Range) Size() uint64 {
	return uint64(r.End) - uint64(r.Start) + 1
}

// Contains reports whether addr lies within the range.
func (r Range) Contains(addr netip.Addr) bool {
	if !addr.Is4() {
		return false
	}
	v := Uint32FromAddr(addr)
	return v >= r.Start && v <= r.End
}

// StartAddr returns the first address of the range.
func (r Range) StartAddr() netip.Addr {
	return AddrFromUint32(r.Start)
}

// EndAddr returns the last address of the range.
func (r Range) EndAddr() netip.Addr {
	return AddrFromUint32(r.End)
}

// String formats the range as "start-end".
func (r Range) String() string {
	return r.StartAddr().String() + "-" + r.EndAddr().String()
}

// AddrFromUint32 converts a numeric IPv4 address to netip form.
func AddrFromUint32(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// Uint32FromAddr converts an IPv4 (or IPv4-mapped) address to its numeric value.
func Uint32FromAddr(addr netip.Addr) uint32 {
	b := addr.Unmap().As4()
	return binary.BigEndian.Uint32(b[:])
}
