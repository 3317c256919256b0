package transport

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// taskRunner serialises the pool's periodic closer/opener work per
// address on a dedicated queue (spec §5 "Pool periodic tasks (closer,
// openers) are serialised per address by a dedicated task queue"),
// while letting different addresses run concurrently. Each task holds
// its queue's mutex while it runs, so tasks submitted to one queue never
// run concurrently with each other; the order in which they start is
// not defined.
type taskRunner struct {
	mu     sync.Mutex
	queues map[string]*taskQueue
}

type taskQueue struct {
	mu sync.Mutex // held for the duration of one task, serialising the queue
	g  errgroup.Group
}

func newTaskRunner() *taskRunner {
	return &taskRunner{queues: make(map[string]*taskQueue)}
}

func (r *taskRunner) queueFor(addr Address) *taskQueue {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := addr.key()
	q, ok := r.queues[key]
	if !ok {
		q = &taskQueue{}
		r.queues[key] = q
	}
	return q
}

// enqueue schedules fn on addr's dedicated queue. fn runs on a worker
// goroutine; enqueue itself returns immediately.
func (r *taskRunner) enqueue(addr Address, fn func(ctx context.Context) error) {
	q := r.queueFor(addr)
	q.g.Go(func() error {
		q.mu.Lock()
		defer q.mu.Unlock()
		return fn(context.Background())
	})
}

func (r *taskRunner) wait(addr Address) error {
	return r.queueFor(addr).g.Wait()
}
