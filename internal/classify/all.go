package classify

import (
	"context"
	"net/netip"

	"github.com/agent462/netsurvey/internal/progress"
	"golang.org/x/sync/errgroup"
)

// ClassifyAll labels every address with at most concurrency classifications
// in flight. Results are in the order of addrs. counter, if non-nil, is
// incremented once per finished address.
func (c *Classifier) ClassifyAll(ctx context.Context, addrs []netip.Addr, concurrency int, counter *progress.Counter) []Host {
	hosts := make([]Host, len(addrs))
	if concurrency < 1 {
		concurrency = 1
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, addr := range addrs {
		g.Go(func() error {
			hosts[i] = Host{Addr: addr, Label: c.Classify(ctx, addr)}
			if counter != nil {
				counter.Inc()
			}
			return nil
		})
	}
	// Classify never fails, so the group error is always nil.
	_ = g.Wait()
	return hosts
}
