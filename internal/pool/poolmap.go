// Package pool implements a generic keyed resource pool: a mapping from a
// comparable key to a bounded pool of resources, lazily created through a
// factory function and evicted after a period of inactivity.
//
// This is a direct port of the `heroshi.data.PoolMap` class used by the
// original worker for two unrelated purposes (connection pooling and
// single-flight robots.txt acquisition) with the same two call sites kept
// separate here as `internal/hostpool` and `internal/robots`.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Factory builds a new resource for a given key. Called at most once per
// pool miss; errors propagate to the caller of Get.
type Factory[K comparable, R any] func(key K) (R, error)

// entry is the per-key bookkeeping: an idle resource stack, a count of
// resources currently borrowed, and the last time the pool for this key
// went fully idle (used by the sweeper to evict stale keys).
type entry[R any] struct {
	idle       []R
	borrowed   int
	lastIdleAt time.Time
	waiters    int
	cond       *sync.Cond
}

// PoolMap is a mapping from key to a bounded pool of resources R, with a
// factory K -> R, a per-key maximum size and an idle timeout after which a
// key with no borrowers and no waiters is evicted entirely, its idle
// resources passed to the closer, if any.
type PoolMap[K comparable, R any] struct {
	mu          sync.Mutex
	entries     map[K]*entry[R]
	factory     Factory[K, R]
	maxSize     int
	idleTimeout time.Duration
	clock       clock.Clock
	closeFn     func(R)
	stopSweep   chan struct{}
}

// Option configures a PoolMap at construction time.
type Option[K comparable, R any] func(*PoolMap[K, R])

// WithClock overrides the clock used for idle-timeout bookkeeping, mainly
// for deterministic tests via clock.NewMock().
func WithClock[K comparable, R any](c clock.Clock) Option[K, R] {
	return func(p *PoolMap[K, R]) { p.clock = c }
}

// WithCloser registers a cleanup function invoked on a resource when it is
// evicted by the idle sweeper instead of being reused.
func WithCloser[K comparable, R any](fn func(R)) Option[K, R] {
	return func(p *PoolMap[K, R]) { p.closeFn = fn }
}

// New creates a PoolMap bounding each key's pool to maxSize concurrent
// borrowers and evicting fully-idle keys after idleTimeout. It starts a
// background sweeper goroutine; call Close to stop it.
func New[K comparable, R any](factory Factory[K, R], maxSize int, idleTimeout time.Duration, opts ...Option[K, R]) *PoolMap[K, R] {
	p := &PoolMap[K, R]{
		entries:     make(map[K]*entry[R]),
		factory:     factory,
		maxSize:     maxSize,
		idleTimeout: idleTimeout,
		clock:       clock.New(),
		stopSweep:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.sweepLoop()
	return p
}

// Close stops the idle sweeper. It does not evict or close resources still
// checked out; callers must have drained borrows first.
func (p *PoolMap[K, R]) Close() {
	close(p.stopSweep)
}

func (p *PoolMap[K, R]) sweepLoop() {
	ticker := p.clock.Ticker(p.idleTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-p.stopSweep:
			return
		}
	}
}

func (p *PoolMap[K, R]) sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock.Now()
	for key, e := range p.entries {
		if e.borrowed == 0 && e.waiters == 0 &&
			now.Sub(e.lastIdleAt) >= p.idleTimeout {
			if p.closeFn != nil {
				for _, r := range e.idle {
					p.closeFn(r)
				}
			}
			delete(p.entries, key)
		}
	}
}

// Get returns an idle resource for key, or invokes the factory if none is
// idle and the key's pool is not yet at maxSize. If the pool is saturated
// it blocks until a resource is returned, the context is cancelled, or
// timeout elapses (timeout <= 0 means no deadline beyond ctx).
func (p *PoolMap[K, R]) Get(ctx context.Context, key K, timeout time.Duration) (R, error) {
	var zero R

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p.mu.Lock()
	e, ok := p.entries[key]
	if !ok {
		e = &entry[R]{cond: sync.NewCond(&p.mu), lastIdleAt: p.clock.Now()}
		p.entries[key] = e
	}

	for {
		if n := len(e.idle); n > 0 {
			r := e.idle[n-1]
			e.idle = e.idle[:n-1]
			e.borrowed++
			p.mu.Unlock()
			return r, nil
		}
		if e.borrowed < p.maxSize {
			e.borrowed++
			p.mu.Unlock()
			r, err := p.factory(key)
			if err != nil {
				p.mu.Lock()
				e.borrowed--
				e.cond.Broadcast()
				p.mu.Unlock()
				return zero, err
			}
			return r, nil
		}

		// Pool saturated: wait for a release, a context cancellation or the
		// deadline, whichever happens first. e.cond.Wait must be called on
		// this goroutine: it unlocks p.mu itself and reacquires it before
		// returning, so no other goroutine may unlock on its behalf.
		// context.AfterFunc arranges for ctx's cancellation to wake this
		// Wait the same way Put does, by acquiring p.mu and broadcasting.
		e.waiters++
		stop := context.AfterFunc(ctx, func() {
			p.mu.Lock()
			e.cond.Broadcast()
			p.mu.Unlock()
		})
		e.cond.Wait()
		stop()
		e.waiters--
		if ctx.Err() != nil {
			p.mu.Unlock()
			return zero, ErrPoolTimeout
		}
	}
}

// Put returns a resource to its key's pool. If the idle slice would exceed
// maxSize (e.g. the pool shrank concurrently) the resource is dropped and
// the closer, if any, is invoked.
func (p *PoolMap[K, R]) Put(key K, r R) {
	p.mu.Lock()
	e, ok := p.entries[key]
	if !ok {
		p.mu.Unlock()
		if p.closeFn != nil {
			p.closeFn(r)
		}
		return
	}
	e.borrowed--
	if len(e.idle) < p.maxSize {
		e.idle = append(e.idle, r)
	} else if p.closeFn != nil {
		defer p.closeFn(r)
	}
	if e.borrowed == 0 {
		e.lastIdleAt = p.clock.Now()
	}
	// Broadcast, not Signal: several Get callers can be parked in
	// e.cond.Wait for the same key at once; Signal would wake exactly one,
	// arbitrarily, which could be a waiter whose own deadline is about to
	// fire anyway while a genuinely free slot goes unclaimed until the next
	// release.
	e.cond.Broadcast()
	p.mu.Unlock()
}

// Discard releases a borrowed resource for key without returning it to the
// idle pool, so the next Get invokes the factory again instead of reusing
// it. Used when a caller determines, by a criterion the pool itself does
// not track (e.g. an absolute TTL layered on top of the pool's purely
// idle-based eviction), that the resource it holds must not be reused.
func (p *PoolMap[K, R]) Discard(key K, r R) {
	p.mu.Lock()
	e, ok := p.entries[key]
	if !ok {
		p.mu.Unlock()
		if p.closeFn != nil {
			p.closeFn(r)
		}
		return
	}
	e.borrowed--
	if e.borrowed == 0 {
		e.lastIdleAt = p.clock.Now()
	}
	e.cond.Broadcast()
	p.mu.Unlock()
	if p.closeFn != nil {
		p.closeFn(r)
	}
}

// WithResource borrows a resource for key, invokes fn, and guarantees the
// resource is released on every exit path, including a panic or error
// returned by fn.
func (p *PoolMap[K, R]) WithResource(ctx context.Context, key K, timeout time.Duration, fn func(R) error) error {
	r, err := p.Get(ctx, key, timeout)
	if err != nil {
		return err
	}
	defer p.Put(key, r)
	return fn(r)
}
