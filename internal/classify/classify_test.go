package classify_test

import (
	"context"
	"fmt"
	"net/netip"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agent462/netsurvey/internal/classify"
	"github.com/agent462/netsurvey/internal/probetest"
	"github.com/agent462/netsurvey/internal/progress"
)

func classifyOne(t *testing.T, c *classify.Classifier, addr string) classify.Label {
	t.Helper()
	return c.Classify(context.Background(), netip.MustParseAddr(addr))
}

func TestClassify_HostnameShortCircuits(t *testing.T) {
	tr := probetest.New().Set("192.168.1.1", probetest.Host{
		ICMP:     true,
		Ports:    []int{22, 80, 62078},
		Hostname: "gateway.lan",
	})
	c := classify.New(tr)

	if got := classifyOne(t, c, "192.168.1.1"); got != "gateway.lan" {
		t.Errorf("label = %q, want %q", got, "gateway.lan")
	}
	if n := tr.Count("tcp"); n != 0 {
		t.Errorf("expected no TCP probes after a hostname match, got %d", n)
	}
	if n := tr.Count("icmp"); n != 0 {
		t.Errorf("expected no ICMP probes after a hostname match, got %d", n)
	}
}

func TestClassify_Signatures(t *testing.T) {
	tests := []struct {
		name  string
		ports []int
		want  classify.Label
	}{
		{"apple mobile beats everything", []int{62078, 5228, 8009, 22}, classify.LabelAppleMobile},
		{"android via play services", []int{5228, 8009}, classify.LabelAndroid},
		{"android via adb", []int{9000}, classify.LabelAndroid},
		{"airplay and mdns", []int{7000, 5353}, classify.LabelAppleTV},
		{"airplay alone falls to table", []int{7000}, "Apple Device"},
		{"mdns alone falls to table", []int{5353}, "Apple Device"},
		{"chromecast before roku", []int{8009, 8060}, classify.LabelChromecast},
		{"roku", []int{8060}, classify.LabelRoku},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := probetest.New().Set("10.0.0.42", probetest.Host{Ports: tt.ports})
			if got := classifyOne(t, classify.New(tr), "10.0.0.42"); got != tt.want {
				t.Errorf("label = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_ServiceTableLowestPortWins(t *testing.T) {
	tests := []struct {
		name  string
		ports []int
		want  classify.Label
	}{
		{"ssh only", []int{22}, "SSH"},
		{"ssh before http", []int{80, 22}, "SSH"},
		{"http and https", []int{443, 80}, "HTTP"},
		{"printer", []int{9100}, "Printer"},
		{"proxy", []int{8080}, "HTTP-Proxy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := probetest.New().Set("10.0.0.7", probetest.Host{Ports: tt.ports})
			if got := classifyOne(t, classify.New(tr), "10.0.0.7"); got != tt.want {
				t.Errorf("label = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_ICMPWithoutPortsIsGhost(t *testing.T) {
	// .1 would be guessed as a router if it got that far.
	tr := probetest.New().Set("192.168.1.1", probetest.Host{ICMP: true})
	if got := classifyOne(t, classify.New(tr), "192.168.1.1"); got != classify.LabelGhost {
		t.Errorf("label = %q, want %q", got, classify.LabelGhost)
	}
}

func TestClassify_SilentHostIsGhost(t *testing.T) {
	tr := probetest.New()
	if got := classifyOne(t, classify.New(tr), "192.168.1.254"); got != classify.LabelGhost {
		t.Errorf("label = %q, want %q", got, classify.LabelGhost)
	}
}

func TestClassify_PatternStage(t *testing.T) {
	// A table that misses the common ports lets confirmed hosts reach the
	// last-octet guess.
	table := classify.NewServiceTable(map[int]string{9100: "Printer"})

	tests := []struct {
		name string
		addr string
		host probetest.Host
		want classify.Label
	}{
		{"gateway .1 via two tcp ports", "10.0.0.1", probetest.Host{Ports: []int{80, 443}}, classify.LabelRouter},
		{"gateway .254 via icmp and ssh", "10.0.0.254", probetest.Host{ICMP: true, Ports: []int{22}}, classify.LabelRouter},
		{"network device .10", "10.0.0.10", probetest.Host{ICMP: true, Ports: []int{8080}}, classify.LabelNetworkDevice},
		{"network device .20", "10.0.0.20", probetest.Host{Ports: []int{21, 23}}, classify.LabelNetworkDevice},
		{"network device .50", "10.0.0.50", probetest.Host{ICMP: true, Ports: []int{443}}, classify.LabelNetworkDevice},
		{"network device .100", "10.0.0.100", probetest.Host{Ports: []int{53, 1900}}, classify.LabelNetworkDevice},
		{"no pattern", "10.0.0.77", probetest.Host{ICMP: true, Ports: []int{80}}, classify.LabelUnknown},
		{"one tcp port is not enough", "10.0.0.1", probetest.Host{Ports: []int{80}}, classify.LabelGhost},
		{"icmp needs a short-list port", "10.0.0.1", probetest.Host{ICMP: true, Ports: []int{21, 25}}, classify.LabelGhost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := probetest.New().Set(tt.addr, tt.host)
			c := classify.New(tr, classify.WithServiceTable(table))
			if got := classifyOne(t, c, tt.addr); got != tt.want {
				t.Errorf("label = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_VerificationStopsAtQuorum(t *testing.T) {
	tr := probetest.New().Set("10.0.0.33", probetest.Host{Ports: []int{80, 443}})
	c := classify.New(tr, classify.WithServiceTable(classify.ServiceTable{}))

	if got := classifyOne(t, c, "10.0.0.33"); got != classify.LabelUnknown {
		t.Fatalf("label = %q, want %q", got, classify.LabelUnknown)
	}

	var verifyPorts []int
	for _, call := range tr.Calls() {
		if call.Kind == "tcp" {
			verifyPorts = append(verifyPorts, call.Port)
		}
	}
	// Signature probes come first; verification must stop right after 443.
	if n := len(verifyPorts); n == 0 || verifyPorts[n-1] != 443 {
		t.Errorf("expected verification to end at port 443, got %v", verifyPorts)
	}
}

func TestHost_Confirmed(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.2")
	if (classify.Host{Addr: addr, Label: classify.LabelGhost}).Confirmed() {
		t.Error("ghost host should not be confirmed")
	}
	for _, l := range []classify.Label{classify.LabelUnknown, classify.LabelRouter, "SSH", "nas.local"} {
		if !(classify.Host{Addr: addr, Label: l}).Confirmed() {
			t.Errorf("host labelled %q should be confirmed", l)
		}
	}
}

func TestClassifyAll_PreservesInputOrder(t *testing.T) {
	tr := probetest.New(probetest.WithJitter(300 * time.Microsecond))
	var addrs []netip.Addr
	want := make([]classify.Label, 0, 40)
	for i := 1; i <= 40; i++ {
		a := fmt.Sprintf("10.1.0.%d", i)
		addrs = append(addrs, netip.MustParseAddr(a))
		if i%2 == 0 {
			name := fmt.Sprintf("host-%d.lan", i)
			tr.Set(a, probetest.Host{Hostname: name})
			want = append(want, classify.Label(name))
		} else {
			tr.Set(a, probetest.Host{Ports: []int{22}})
			want = append(want, "SSH")
		}
	}

	counter := progress.NewCounter(uint64(len(addrs)))
	hosts := classify.New(tr).ClassifyAll(context.Background(), addrs, 8, counter)

	if len(hosts) != len(addrs) {
		t.Fatalf("got %d hosts, want %d", len(hosts), len(addrs))
	}
	var got []classify.Label
	for i, h := range hosts {
		if h.Addr != addrs[i] {
			t.Errorf("hosts[%d].Addr = %s, want %s", i, h.Addr, addrs[i])
		}
		got = append(got, h.Label)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("labels = %v, want %v", got, want)
	}
	if !counter.Complete() {
		t.Errorf("counter = %d/%d, want complete", counter.Done(), counter.Total())
	}
}

func TestClassifyAll_Empty(t *testing.T) {
	hosts := classify.New(probetest.New()).ClassifyAll(context.Background(), nil, 4, nil)
	if len(hosts) != 0 {
		t.Errorf("expected no hosts, got %v", hosts)
	}
}

// peakTransport answers every reverse lookup after a short delay and records
// how many lookups overlapped.
type peakTransport struct {
	running atomic.Int32
	peak    atomic.Int32
}

func (p *peakTransport) ICMP(context.Context, netip.Addr) (bool, time.Duration) { return false, 0 }

func (p *peakTransport) TCP(context.Context, netip.Addr, int) (bool, time.Duration) {
	return false, 0
}

func (p *peakTransport) LookupHost(ctx context.Context, addr netip.Addr) (string, bool) {
	cur := p.running.Add(1)
	for {
		prev := p.peak.Load()
		if cur <= prev || p.peak.CompareAndSwap(prev, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	p.running.Add(-1)
	return "h", true
}

func TestClassifyAll_ConcurrencyLimiting(t *testing.T) {
	tr := &peakTransport{}
	addrs := make([]netip.Addr, 24)
	for i := range addrs {
		addrs[i] = netip.AddrFrom4([4]byte{10, 2, 0, byte(i + 1)})
	}

	classify.New(tr).ClassifyAll(context.Background(), addrs, 3, nil)

	if peak := tr.peak.Load(); peak != 3 {
		t.Errorf("expected peak concurrency of 3, got %d", peak)
	}
}
