// Package queue implements the Work Queue (spec.md C4): a bounded FIFO of
// Jobs with insertion-time dedup by URL and a Shuffle operation the Feeder
// calls after each batch insert so consecutive items rarely share a host.
//
// Dedup uses an auxiliary set rather than a linear scan, adapting the
// teacher's memoryCache (cache.go) down from its two-level
// namespace-then-key map to the single url-keyed set this queue needs —
// exactly the optimization spec.md's design note §9 suggests "if capacity
// grows".
package queue

import (
	"context"
	"math/rand"
	"sync"

	"github.com/codepr/heroshi-worker/internal/job"
)

// WorkQueue is a bounded, deduplicating FIFO of job.Job values.
type WorkQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []job.Job
	seen     map[string]bool
	capacity int
	closed   bool
}

// New creates a WorkQueue bounded to capacity items.
func New(capacity int) *WorkQueue {
	q := &WorkQueue{
		items:    make([]job.Job, 0, capacity),
		seen:     make(map[string]bool, capacity),
		capacity: capacity,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Len returns the current number of queued jobs.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the queue's capacity.
func (q *WorkQueue) Cap() int { return q.capacity }

// Put inserts j, deduplicating on URL (a no-op, not an error, if j.URL is
// already queued). Blocks while the queue is full, until ctx is done or
// Close is called, per spec.md §4.5 stream mode's intended backpressure.
func (q *WorkQueue) Put(ctx context.Context, j job.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) >= q.capacity && !q.closed && ctx.Err() == nil {
		// Wait blocks on this goroutine and reacquires q.mu itself before
		// returning; the lock must never be released by anyone else while
		// it does. context.AfterFunc arranges for ctx's cancellation to
		// wake this Wait the same way Close does, by acquiring q.mu and
		// broadcasting, instead of spawning a second goroutine to race the
		// unlock Wait already performs internally.
		stop := context.AfterFunc(ctx, func() {
			q.mu.Lock()
			q.notFull.Broadcast()
			q.mu.Unlock()
		})
		q.notFull.Wait()
		stop()
	}
	if q.closed {
		return ErrClosed
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if q.seen[j.URL] {
		return nil
	}
	q.seen[j.URL] = true
	q.items = append(q.items, j)
	q.notEmpty.Broadcast()
	return nil
}

// TryGet removes and returns the oldest job without blocking. ok is false
// if the queue is empty.
func (q *WorkQueue) TryGet() (j job.Job, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return job.Job{}, false
	}
	j = q.items[0]
	q.items = q.items[1:]
	delete(q.seen, j.URL)
	q.notFull.Broadcast()
	return j, true
}

// Shuffle reorders pending items uniformly at random. Not cosmetic: per
// spec.md design note §9, combined with the HostPool's per-host concurrency
// cap it bounds synchronized bursts to a single domain.
func (q *WorkQueue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
}

// Close wakes every blocked Put/waiter; subsequent Put calls return
// ErrClosed. TryGet remains usable so a drain can continue consuming
// whatever was already queued.
func (q *WorkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}
