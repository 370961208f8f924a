package executor

import (
	"errors"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned by Submit once Close has been called.
var ErrPoolClosed = errors.New("executor: submit on closed pool")

// Task is a unit of work run by a pool worker.
type Task func()

// Pool runs submitted tasks on a fixed set of worker goroutines.
// Tasks are taken from an unbounded FIFO queue, so Submit never blocks.
type Pool struct {
	workers int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	closed bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// NewPool creates a Pool and starts its workers. The worker count defaults to
// the number of CPUs.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers < 1 {
		p.workers = 1
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.work()
	}
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit enqueues a task. It returns ErrPoolClosed after Close.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	p.queue = append(p.queue, task)
	p.cond.Signal()
	return nil
}

// Close stops accepting tasks, runs everything still queued, and waits for the
// workers to exit.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	p.wg.Wait()
}

func (p *Pool) work() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			// Closed and drained.
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		task()
	}
}
