// Package crawlerr collects the sentinel error values shared across the
// worker's components, so that fetcher, robots, pipeline and supervisor can
// all test the same cooperative-cancellation and timeout signals with
// errors.Is instead of each defining (and subtly duplicating) their own.
//
// This mirrors heroshi/error.py's small hierarchy (ApiError, CrawlError,
// FetchError, RobotsError) translated to Go's flat sentinel-error idiom.
package crawlerr

import "errors"

var (
	// ErrCancelled signals cooperative shutdown: the supervisor's closed
	// flag tripped while a component was blocked on an I/O call. Per
	// spec.md §5, no Report is emitted when a pipeline step returns this.
	ErrCancelled = errors.New("crawlerr: cancelled")

	// ErrTimeout signals a wall-clock deadline elapsed without the
	// supervisor closing. Distinct from ErrCancelled so the pipeline can
	// tell "give up on this job" from "the whole worker is stopping".
	ErrTimeout = errors.New("crawlerr: timeout")

	// ErrFetchError is a transport-level failure fetching a resource
	// (content or robots.txt).
	ErrFetchError = errors.New("crawlerr: fetch error")

	// ErrRobotsError is a robots.txt parser or predicate failure. Per
	// spec.md §4.3 step 4, the cache entry for that host is not populated.
	ErrRobotsError = errors.New("crawlerr: robots error")

	// ErrAPIError is a URL-server transport or non-2xx response.
	ErrAPIError = errors.New("crawlerr: api error")
)
