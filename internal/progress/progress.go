// Package progress tracks completion of a fixed amount of work and lets a
// single observer poll it without getting in the way of the workers.
package progress

import (
	"context"
	"sync/atomic"
	"time"
)

// Func is called by Watch with the number of completed units and the total.
type Func func(done, total uint64)

// Counter is a lock-free completion counter. The zero value is not usable;
// create one with NewCounter.
type Counter struct {
	done  atomic.Uint64
	total uint64
}

// NewCounter returns a Counter for total units of work.
func NewCounter(total uint64) *Counter {
	return &Counter{total: total}
}

// Inc records one completed unit and returns the new count. It never advances
// past the total.
func (c *Counter) Inc() uint64 {
	for {
		cur := c.done.Load()
		if cur >= c.total {
			return cur
		}
		if c.done.CompareAndSwap(cur, cur+1) {
			return cur + 1
		}
	}
}

// Done returns the number of completed units.
func (c *Counter) Done() uint64 {
	return c.done.Load()
}

// Total returns the number of units the counter was created for.
func (c *Counter) Total() uint64 {
	return c.total
}

// Complete reports whether every unit has been recorded.
func (c *Counter) Complete() bool {
	return c.done.Load() >= c.total
}

// Fraction returns completion in [0, 1]. An empty counter is complete.
func (c *Counter) Fraction() float64 {
	if c.total == 0 {
		return 1
	}
	return float64(c.done.Load()) / float64(c.total)
}

// Watch calls fn every interval until ctx is cancelled, then once more with the
// final values. It blocks; run it in its own goroutine.
func Watch(ctx context.Context, c *Counter, interval time.Duration, fn Func) {
	if fn == nil {
		<-ctx.Done()
		return
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fn(c.Done(), c.Total())
			return
		case <-ticker.C:
			fn(c.Done(), c.Total())
		}
	}
}
