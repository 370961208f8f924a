// Package runner scans one network and classifies what it finds.
package runner

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/agent462/netsurvey/internal/classify"
	"github.com/agent462/netsurvey/internal/discover"
	"github.com/agent462/netsurvey/internal/probe"
	"github.com/agent462/netsurvey/internal/progress"
	"github.com/projectdiscovery/gologger"
)

// Options controls a single survey.
type Options struct {
	Mode     probe.Mode
	Thorough bool
	Port     int
	Workers  int // 0 means one per CPU

	Classify            bool
	ClassifyConcurrency int
	Services            *classify.ServiceTable // nil means the default table

	// Progress callbacks are polled every ProgressInterval while the
	// corresponding phase runs, and once more when it ends.
	OnScanProgress     progress.Func
	OnClassifyProgress progress.Func
	ProgressInterval   time.Duration
}

// Section is the outcome of surveying one network.
type Section struct {
	Network          string
	Range            string
	Mode             string
	Classified       bool
	Hosts            []classify.Host
	ScanDuration     time.Duration
	ClassifyDuration time.Duration
}

// Confirmed returns the hosts that passed re-verification.
func (s *Section) Confirmed() []classify.Host {
	out := make([]classify.Host, 0, len(s.Hosts))
	for _, h := range s.Hosts {
		if h.Confirmed() {
			out = append(out, h)
		}
	}
	return out
}

// Runner surveys networks over a fixed transport.
type Runner struct {
	opts       Options
	prober     *probe.Prober
	classifier *classify.Classifier
}

// New creates a Runner. The transport is shared by probing and classification.
func New(opts Options, t probe.Transport) *Runner {
	if opts.Port == 0 {
		opts.Port = 80
	}
	if opts.ClassifyConcurrency < 1 {
		opts.ClassifyConcurrency = 16
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 100 * time.Millisecond
	}

	table := classify.DefaultServiceTable()
	if opts.Services != nil {
		table = *opts.Services
	}

	return &Runner{
		opts:       opts,
		prober:     probe.New(t, probe.SelectMode(opts.Mode, opts.Thorough), opts.Port),
		classifier: classify.New(t, classify.WithServiceTable(table)),
	}
}

// Run scans cidr and, unless disabled, classifies every live host. A
// malformed cidr fails before any probe is sent.
func (r *Runner) Run(ctx context.Context, cidr string) (*Section, error) {
	rng, err := discover.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}

	sec := &Section{
		Network: cidr,
		Range:   rng.String(),
		Mode:    r.prober.Mode().String(),
	}

	gologger.Info().Msgf("Scanning %s (%d addresses, %s mode)", cidr, rng.Size(), sec.Mode)
	coord := discover.NewCoordinator(r.prober,
		discover.WithWorkers(r.opts.Workers),
		discover.WithObserver(r.opts.OnScanProgress, r.opts.ProgressInterval),
	)

	start := time.Now()
	alive, err := coord.Scan(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", cidr, err)
	}
	sec.ScanDuration = time.Since(start)
	gologger.Debug().Msgf("%s: %d live addresses in %s", cidr, len(alive), sec.ScanDuration)

	if !r.opts.Classify {
		sec.Hosts = make([]classify.Host, len(alive))
		for i, addr := range alive {
			sec.Hosts[i] = classify.Host{Addr: addr}
		}
		return sec, nil
	}

	start = time.Now()
	sec.Hosts = r.classifyAll(ctx, alive)
	sec.ClassifyDuration = time.Since(start)
	sec.Classified = true
	return sec, nil
}

func (r *Runner) classifyAll(ctx context.Context, alive []netip.Addr) []classify.Host {
	counter := progress.NewCounter(uint64(len(alive)))

	watchCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		progress.Watch(watchCtx, counter, r.opts.ProgressInterval, r.opts.OnClassifyProgress)
	}()

	hosts := r.classifier.ClassifyAll(ctx, alive, r.opts.ClassifyConcurrency, counter)

	stop()
	<-done
	return hosts
}
