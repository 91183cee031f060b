// Package hostpool implements the per-host HTTP connection bound (spec.md
// C2/HostPool): at most MaxSize concurrent requests to a given
// (scheme, authority), with idle eviction.
//
// It specializes internal/pool.PoolMap[string, struct{}] as a pure
// admission-control semaphore (the "resource" borrowed is just a permit;
// the actual *http.Client living in internal/fetcher is already safe for
// concurrent use and needs no per-borrow handle) and layers a
// golang.org/x/time/rate limiter plus an adaptive crawl-delay on release,
// adapted from the teacher's CrawlingRules.CrawlDelay/UpdateLastDelay
// (crawler/crawlingrules.go) which chose the max of a robots.txt delay, a
// randomized fixed delay and the last response time squared.
package hostpool

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/codepr/heroshi-worker/internal/pool"
)

// DefaultMaxSize is the per-host concurrent-request bound from spec.md §3.
const DefaultMaxSize = 5

// DefaultIdleTimeout evicts a host's admission state after this much
// inactivity, per spec.md §3.
const DefaultIdleTimeout = 120 * time.Second

type permit struct{}

// delayState tracks the adaptive politeness delay for one host, ported from
// CrawlingRules: the max of a randomized fixed delay and the squared last
// response time.
type delayState struct {
	mu         sync.RWMutex
	lastDelay  time.Duration
	fixedDelay time.Duration
}

func (d *delayState) delay() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	randomized := randDelay(d.fixedDelay)
	if d.lastDelay > randomized {
		return d.lastDelay
	}
	return randomized
}

func (d *delayState) observe(responseTime time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastDelay = time.Duration(math.Pow(responseTime.Seconds(), 2) * float64(time.Second))
}

func randDelay(fixed time.Duration) time.Duration {
	if fixed == 0 {
		return 0
	}
	lo, hi := 0.5*float64(fixed), 1.5*float64(fixed)
	return time.Duration(lo + rand.Float64()*(hi-lo))
}

// HostPool bounds concurrency per (scheme, authority) and layers a token
// bucket rate limiter plus an adaptive politeness delay on top of the bare
// admission bound.
type HostPool struct {
	admission  *pool.PoolMap[string, permit]
	limiters   sync.Map // string -> *rate.Limiter
	delays     sync.Map // string -> *delayState
	rps        float64
	fixedDelay time.Duration
}

// New builds a HostPool bounding each host to maxSize concurrent requests,
// evicting idle hosts after idleTimeout, rate-limiting each host to rps
// requests/sec (0 disables the limiter), with fixedDelay seeding the
// adaptive politeness delay before any response time has been observed.
func New(maxSize int, idleTimeout time.Duration, rps float64, fixedDelay time.Duration) *HostPool {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	hp := &HostPool{rps: rps, fixedDelay: fixedDelay}
	hp.admission = pool.New(func(string) (permit, error) { return permit{}, nil }, maxSize, idleTimeout)
	return hp
}

// Close releases the background idle sweeper.
func (hp *HostPool) Close() { hp.admission.Close() }

func (hp *HostPool) limiterFor(key string) *rate.Limiter {
	if hp.rps <= 0 {
		return nil
	}
	v, _ := hp.limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(hp.rps), int(math.Ceil(hp.rps))))
	return v.(*rate.Limiter)
}

func (hp *HostPool) delayFor(key string) *delayState {
	v, _ := hp.delays.LoadOrStore(key, &delayState{fixedDelay: hp.fixedDelay})
	return v.(*delayState)
}

// Acquire blocks until a concurrency permit for key is free (up to timeout)
// and the host's rate limiter admits the request. It returns a release
// function that must be called exactly once, which records responseTime
// for the adaptive delay and then sleeps the computed politeness delay
// before freeing the permit — mirroring the teacher's
// `defer func(){ time.Sleep(crawlingRules.CrawlDelay()); <-semaphore }()`.
func (hp *HostPool) Acquire(ctx context.Context, key string, timeout time.Duration) (release func(responseTime time.Duration), err error) {
	if _, err = hp.admission.Get(ctx, key, timeout); err != nil {
		return nil, err
	}

	if lim := hp.limiterFor(key); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			hp.admission.Put(key, permit{})
			return nil, err
		}
	}

	ds := hp.delayFor(key)
	return func(responseTime time.Duration) {
		ds.observe(responseTime)
		delay := ds.delay()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
		}
		hp.admission.Put(key, permit{})
	}, nil
}
