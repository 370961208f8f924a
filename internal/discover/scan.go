package discover

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/agent462/netsurvey/internal/executor"
	"github.com/agent462/netsurvey/internal/probe"
	"github.com/agent462/netsurvey/internal/progress"
	"github.com/projectdiscovery/gologger"
)

// Prober checks whether a single address is alive.
type Prober interface {
	Probe(ctx context.Context, addr netip.Addr) probe.Result
}

// Coordinator scans address ranges with a fixed Prober and worker count.
type Coordinator struct {
	prober   Prober
	workers  int
	observer progress.Func
	interval time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWorkers sets the number of concurrent probes. Zero or less keeps the
// pool default (one per CPU).
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithObserver registers fn to be polled with scan progress every interval.
func WithObserver(fn progress.Func, interval time.Duration) Option {
	return func(c *Coordinator) {
		c.observer = fn
		if interval > 0 {
			c.interval = interval
		}
	}
}

// NewCoordinator creates a Coordinator that probes with p.
func NewCoordinator(p Prober, opts ...Option) *Coordinator {
	c := &Coordinator{
		prober:   p,
		interval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scan probes every address of r and returns the live ones in ascending
// order. The first and last address of the range are never returned.
//
// Every address is probed even if ctx is cancelled; cancellation only makes
// the remaining probes fail fast.
func (c *Coordinator) Scan(ctx context.Context, r Range) ([]netip.Addr, error) {
	counter := progress.NewCounter(r.Size())

	var (
		mu    sync.Mutex
		alive []netip.Addr
	)

	watchCtx, stopWatch := context.WithCancel(context.Background())
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		progress.Watch(watchCtx, counter, c.interval, c.observer)
	}()

	pool := executor.NewPool(executor.WithWorkers(c.workers))
	gologger.Debug().Msgf("scanning %s (%d addresses) with %d workers", r, r.Size(), pool.Workers())

	var submitErr error
	for v := r.Start; ; v++ {
		addr := AddrFromUint32(v)
		err := pool.Submit(func() {
			res := c.prober.Probe(ctx, addr)
			counter.Inc()
			if res.Alive {
				gologger.Debug().Msgf("%s is alive (%s)", addr, res.Latency)
				mu.Lock()
				alive = append(alive, addr)
				mu.Unlock()
			}
		})
		if err != nil {
			submitErr = fmt.Errorf("submit probe for %s: %w", addr, err)
			break
		}
		if v == r.End {
			break
		}
	}

	pool.Close()
	stopWatch()
	<-watchDone

	if submitErr != nil {
		return nil, submitErr
	}
	return finalize(alive, r), nil
}

// finalize sorts addresses numerically and drops the range boundaries.
func finalize(alive []netip.Addr, r Range) []netip.Addr {
	sort.Slice(alive, func(i, j int) bool {
		return Uint32FromAddr(alive[i]) < Uint32FromAddr(alive[j])
	})

	out := make([]netip.Addr, 0, len(alive))
	for _, addr := range alive {
		v := Uint32FromAddr(addr)
		if v == r.Start || v == r.End {
			continue
		}
		out = append(out, addr)
	}
	return out
}
