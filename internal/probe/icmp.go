package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// errUnavailable means an echo method could not be used on this system, so the
// next method in the chain should be tried.
var errUnavailable = errors.New("echo method unavailable")

var echoPayload = []byte("netsurvey-echo")

// echoSeq numbers echo requests across the whole process.
var echoSeq atomic.Uint32

// echoer is one way of sending an ICMP echo request.
type echoer struct {
	name string
	echo func(ctx context.Context, addr netip.Addr, timeout time.Duration) (bool, time.Duration, error)
}

// defaultEchoers returns the echo chain: unprivileged datagram socket, raw
// socket, then the system ping utility.
func defaultEchoers() []echoer {
	return []echoer{
		{name: "udp4", echo: socketEcho("udp4")},
		{name: "ip4:icmp", echo: socketEcho("ip4:icmp")},
		{name: "ping", echo: commandEcho},
	}
}

func socketEcho(network string) func(context.Context, netip.Addr, time.Duration) (bool, time.Duration, error) {
	raw := network == "ip4:icmp"

	return func(ctx context.Context, addr netip.Addr, timeout time.Duration) (bool, time.Duration, error) {
		conn, err := icmp.ListenPacket(network, "0.0.0.0")
		if err != nil {
			return false, 0, fmt.Errorf("%w: %v", errUnavailable, err)
		}
		defer conn.Close()

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		id := os.Getpid() & 0xffff
		seq := int(echoSeq.Add(1) & 0xffff)
		msg := icmp.Message{
			Type: ipv4.ICMPTypeEcho,
			Code: 0,
			Body: &icmp.Echo{ID: id, Seq: seq, Data: echoPayload},
		}
		wire, err := msg.Marshal(nil)
		if err != nil {
			return false, 0, fmt.Errorf("marshal echo: %w", err)
		}

		var dst net.Addr = &net.IPAddr{IP: addr.AsSlice()}
		if !raw {
			dst = &net.UDPAddr{IP: addr.AsSlice()}
		}

		deadline := time.Now().Add(timeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			return false, 0, nil
		}

		start := time.Now()
		if _, err := conn.WriteTo(wire, dst); err != nil {
			return false, 0, nil
		}

		buf := make([]byte, 1500)
		for {
			n, peer, err := conn.ReadFrom(buf)
			if err != nil {
				// Deadline, cancellation, or a closed socket.
				return false, 0, nil
			}
			reply, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), buf[:n])
			if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
				continue
			}
			body, ok := reply.Body.(*icmp.Echo)
			if !ok || body.Seq != seq {
				continue
			}
			// Datagram sockets get their ID rewritten by the kernel.
			if raw && body.ID != id {
				continue
			}
			if !peerIs(peer, addr) {
				continue
			}
			return true, time.Since(start), nil
		}
	}
}

func peerIs(peer net.Addr, addr netip.Addr) bool {
	var ip net.IP
	switch p := peer.(type) {
	case *net.IPAddr:
		ip = p.IP
	case *net.UDPAddr:
		ip = p.IP
	default:
		return false
	}
	got, ok := netip.AddrFromSlice(ip)
	return ok && got.Unmap() == addr
}

func commandEcho(ctx context.Context, addr netip.Addr, timeout time.Duration) (bool, time.Duration, error) {
	path, err := exec.LookPath("ping")
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", errUnavailable, err)
	}

	cmd := exec.CommandContext(ctx, path, pingArgs(runtime.GOOS, addr, timeout)...)
	start := time.Now()
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("%w: %v", errUnavailable, err)
	}
	return true, time.Since(start), nil
}

// pingArgs builds single-echo arguments for the platform's ping utility.
func pingArgs(goos string, addr netip.Addr, timeout time.Duration) []string {
	ms := timeout.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	switch goos {
	case "windows":
		return []string{"-n", "1", "-w", strconv.FormatInt(ms, 10), addr.String()}
	case "darwin", "freebsd", "netbsd", "openbsd":
		return []string{"-c", "1", "-W", strconv.FormatInt(ms, 10), addr.String()}
	default:
		secs := (ms + 999) / 1000
		return []string{"-c", "1", "-W", strconv.FormatInt(secs, 10), addr.String()}
	}
}
