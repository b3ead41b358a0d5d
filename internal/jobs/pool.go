package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPoolClosed is returned by Submit after Shutdown has begun.
var ErrPoolClosed = errors.New("worker pool closed")

// Handle tracks one submitted task.
type Handle struct {
	done chan struct{}
}

// Done is closed once the task has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

type task struct {
	fn     func()
	handle *Handle
}

// Pool runs tasks on a fixed number of workers. The queue is unbounded so
// Submit never blocks the caller.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []task
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts workers goroutines. workers below 1 is treated as 1.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// Submit queues fn and returns immediately.
func (p *Pool) Submit(fn func()) (*Handle, error) {
	h := &Handle{done: make(chan struct{})}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	p.queue = append(p.queue, task{fn: fn, handle: h})
	p.cond.Signal()
	return h, nil
}

// Shutdown stops accepting tasks and waits for queued and running tasks to
// finish, or for ctx to end.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue[0] = task{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(t)
	}
}

func (p *Pool) run(t task) {
	defer close(t.handle.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in pool task", "error", r)
		}
	}()
	t.fn()
}
