// Package robots implements the Robots Cache (spec.md C3): a per-host
// access predicate, fetched at most once per cache TTL regardless of how
// many workers ask concurrently.
//
// It specializes internal/pool.PoolMap[string, *entry] with pool size 1 per
// host (the "at most one concurrent acquisition" requirement), and layers
// golang.org/x/sync/singleflight on top so that a second caller arriving
// while a fetch is already in flight shares that fetch's result instead of
// queueing behind the PoolMap's single slot for a redundant round trip.
//
// The status-code -> predicate table is ported directly from
// heroshi/worker/Crawler.py:get_robots_checker.
package robots

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/codepr/heroshi-worker/internal/crawlerr"
	"github.com/codepr/heroshi-worker/internal/fetcher"
	"github.com/codepr/heroshi-worker/internal/pool"
)

// robotsTxtPath is the well-known path fetched on every host.
const robotsTxtPath = "/robots.txt"

// DefaultTTL is the entry expiration window: 600s per spec.md §3/§4.3.
const DefaultTTL = 600 * time.Second

// Predicate decides whether agent may fetch uri, derived from a host's
// robots.txt (or a constant allow/deny when none was found/parseable).
type Predicate func(agent, uri string) bool

// entry is the cached resource stored in the PoolMap: the predicate, the
// time it was fetched (for the absolute TTL Ask enforces on top of the
// PoolMap's purely idle-based eviction), plus enough bookkeeping for
// PoolMap's Put to be otherwise a no-op (the predicate is immutable once
// computed, so "returning" it does nothing beyond that TTL check).
type entry struct {
	predicate Predicate
	fetchedAt time.Time
}

// Cache is the Robots Cache: per-(scheme,authority) predicate acquisition,
// single-flighted and TTL-memoized.
type Cache struct {
	fetcher *fetcher.Fetcher
	pools   *pool.PoolMap[string, *entry]
	group   singleflight.Group
	ttl     time.Duration
	clock   clock.Clock
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithClock overrides the clock used for TTL bookkeeping, mainly for
// deterministic tests via clock.NewMock().
func WithClock(c clock.Clock) Option {
	return func(cache *Cache) { cache.clock = c }
}

// New builds a Cache using f to fetch robots.txt bodies. ttl <= 0 defaults
// to DefaultTTL.
func New(f *fetcher.Fetcher, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{fetcher: f, ttl: ttl, clock: clock.New()}
	for _, opt := range opts {
		opt(c)
	}
	c.pools = pool.New(c.factory, 1, ttl, pool.WithClock[string, *entry](c.clock))
	return c
}

// Close releases the background idle sweeper.
func (c *Cache) Close() { c.pools.Close() }

// Ask resolves whether agent may fetch uri on the given (scheme, authority)
// host, per spec.md §4.3's ask operation. Returns crawlerr.ErrCancelled if
// ctx was already done, crawlerr.ErrRobotsError on predicate or parser
// failure (the entry for the host is not cached in that case — callers
// should expect a re-fetch next call).
func (c *Cache) Ask(ctx context.Context, uri, scheme, authority, agent string) (allowed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = crawlerr.ErrRobotsError
		}
	}()

	key := scheme + ":" + authority
	e, getErr := c.pools.Get(ctx, key, c.ttl)
	if getErr != nil {
		if ctx.Err() != nil {
			return false, crawlerr.ErrCancelled
		}
		// getErr is either crawlerr.ErrFetchError or crawlerr.ErrRobotsError,
		// set verbatim by factory/fetchAndParse; propagate as-is per
		// spec.md §4.3 step 2 ("FetchError ... propagates out").
		return false, getErr
	}

	if c.clock.Now().Sub(e.fetchedAt) >= c.ttl {
		// The PoolMap only evicts a key once it sits fully idle for ttl; a
		// host asked more often than every ttl seconds never goes idle and
		// would otherwise keep this predicate memoized forever. spec.md §3
		// and §4.3 want an absolute TTL ("entries expire after 600s; a
		// subsequent access re-fetches"), so discard this entry and fetch a
		// fresh one instead of returning the stale one to the pool.
		c.pools.Discard(key, e)
		fresh, fetchErr := c.pools.Get(ctx, key, c.ttl)
		if fetchErr != nil {
			if ctx.Err() != nil {
				return false, crawlerr.ErrCancelled
			}
			return false, fetchErr
		}
		e = fresh
	}

	// A predicate that panics is discarded instead of returned to the pool,
	// so that host's entry is not cached; the recover above then reports
	// crawlerr.ErrRobotsError.
	returned := false
	defer func() {
		if !returned {
			c.pools.Discard(key, e)
		}
	}()
	allowed = e.predicate(agent, uri)
	returned = true
	c.pools.Put(key, e)
	return allowed, nil
}

// factory is the PoolMap Factory: fetch-and-parse robots.txt for key
// ("scheme:authority"), single-flighted across concurrent callers.
func (c *Cache) factory(key string) (*entry, error) {
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.fetchAndParse(key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

func (c *Cache) fetchAndParse(key string) (*entry, error) {
	scheme, authority := splitKey(key)
	robotsURI := scheme + "://" + authority + robotsTxtPath

	result, err := c.fetcher.Fetch(context.Background(), robotsURI, 0)
	if err != nil {
		return nil, crawlerr.ErrFetchError
	}
	if !result.Success {
		return nil, crawlerr.ErrFetchError
	}

	e, err := buildEntry(result.StatusCode, result.Content)
	if err != nil {
		return nil, err
	}
	e.fetchedAt = c.clock.Now()
	return e, nil
}

// buildEntry implements the status-code -> predicate table from spec.md
// §4.3 / §8 property 7, ported verbatim from Crawler.py:get_robots_checker.
func buildEntry(statusCode int, body []byte) (*entry, error) {
	switch {
	case statusCode >= 200 && statusCode < 300:
		data, err := robotstxt.FromResponse(&http.Response{
			StatusCode: statusCode,
			Body:       io.NopCloser(bytes.NewReader(body)),
		})
		if err != nil {
			return nil, crawlerr.ErrRobotsError
		}
		return &entry{predicate: func(agent, uri string) bool {
			group := data.FindGroup(agent)
			if group == nil {
				return true
			}
			// Rules match against the path; an absolute URI is reduced to
			// its path and query first.
			path := uri
			if u, err := url.Parse(uri); err == nil && u.IsAbs() {
				path = u.RequestURI()
			}
			return group.Test(path)
		}}, nil
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &entry{predicate: func(string, string) bool { return false }}, nil
	case statusCode == http.StatusNotFound:
		return &entry{predicate: func(string, string) bool { return true }}, nil
	case statusCode >= 400:
		// Optimistic rule, documented as deliberate policy by spec.md §4.3.
		return &entry{predicate: func(string, string) bool { return true }}, nil
	default:
		// 1xx, unfollowed 3xx and anything else: deny all.
		return &entry{predicate: func(string, string) bool { return false }}, nil
	}
}

func splitKey(key string) (scheme, authority string) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:]
		}
	}
	return "", key
}
