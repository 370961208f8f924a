// Package netinfo reports the local network the host is attached to.
package netinfo

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/jackpal/gateway"
	"github.com/mdlayher/arp"
	"github.com/projectdiscovery/gologger"
)

// ErrNoInterface is returned when no usable IPv4 interface is up.
var ErrNoInterface = errors.New("no active IPv4 interface found")

// Info describes the primary local interface.
type Info struct {
	Interface  string
	LocalIP    netip.Addr
	Prefix     netip.Prefix     // LocalIP with the interface mask
	Gateway    netip.Addr       // invalid when undetected
	GatewayMAC net.HardwareAddr // nil when undetected
}

// CIDR returns the interface network, e.g. "192.168.1.0/24".
func (i *Info) CIDR() string {
	return i.Prefix.Masked().String()
}

// Mask returns the interface mask in dotted-quad form.
func (i *Info) Mask() string {
	return net.IP(net.CIDRMask(i.Prefix.Bits(), 32)).String()
}

// HasGateway reports whether a default gateway was found.
func (i *Info) HasGateway() bool {
	return i.Gateway.IsValid()
}

// Subnet24 returns the /24 network containing addr, e.g. "10.1.2.0/24".
func Subnet24(addr netip.Addr) string {
	b := addr.Unmap().As4()
	return fmt.Sprintf("%d.%d.%d.0/24", b[0], b[1], b[2])
}

// Detect finds the first up, non-loopback interface with a routable IPv4
// address and the default gateway. A missing gateway is not an error.
func Detect() (*Info, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			gologger.Debug().Msgf("skipping %s: %v", iface.Name, err)
			continue
		}
		prefix, ok := firstIPv4(addrs)
		if !ok {
			continue
		}

		info := &Info{Interface: iface.Name, LocalIP: prefix.Addr(), Prefix: prefix}
		info.Gateway = discoverGateway()
		if info.Gateway.IsValid() {
			info.GatewayMAC = resolveMAC(iface, info.Gateway)
		}
		return info, nil
	}
	return nil, ErrNoInterface
}

// firstIPv4 returns the first IPv4 address that is neither loopback nor
// link-local.
func firstIPv4(addrs []net.Addr) (netip.Prefix, bool) {
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip, ok := netip.AddrFromSlice(ipnet.IP.To4())
		if !ok || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		ones, bits := ipnet.Mask.Size()
		if bits != 32 {
			continue
		}
		return netip.PrefixFrom(ip, ones), true
	}
	return netip.Prefix{}, false
}

func discoverGateway() netip.Addr {
	gw, err := gateway.DiscoverGateway()
	if err != nil {
		gologger.Debug().Msgf("gateway discovery failed: %v", err)
		return netip.Addr{}
	}
	addr, ok := netip.AddrFromSlice(gw.To4())
	if !ok {
		return netip.Addr{}
	}
	return addr
}

// resolveMAC asks the gateway for its hardware address over ARP. It needs a
// raw socket, so it quietly gives up without privileges.
func resolveMAC(iface net.Interface, ip netip.Addr) net.HardwareAddr {
	client, err := arp.Dial(&iface)
	if err != nil {
		gologger.Debug().Msgf("arp unavailable on %s: %v", iface.Name, err)
		return nil
	}
	defer client.Close()

	if err := client.SetDeadline(time.Now().Add(time.Second)); err != nil {
		return nil
	}
	mac, err := client.Resolve(ip)
	if err != nil {
		gologger.Debug().Msgf("arp resolve %s: %v", ip, err)
		return nil
	}
	return mac
}
