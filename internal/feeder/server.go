package feeder

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"

	"github.com/codepr/heroshi-worker/internal/crawlerr"
	"github.com/codepr/heroshi-worker/internal/queue"
	"github.com/codepr/heroshi-worker/internal/urlserver"
)

// defaultEmptyBackoff is slept after a batch request returns zero jobs,
// per spec.md §4.5 server mode.
const defaultEmptyBackoff = 10 * time.Second

// ServerFeeder pulls batches of jobs from the URL server, grounded on
// spec.md §4.5's server-mode loop. Adapted from the teacher's lack of an
// equivalent: the teacher crawls recursively rather than pulling from an
// external frontier, so this loop is new, built in the teacher's idiom
// (private *log.Logger, clock.Clock for testable sleeps as used in
// internal/pool and internal/robots).
type ServerFeeder struct {
	client         *urlserver.Client
	fullQueuePause time.Duration
	emptyBackoff   time.Duration
	clock          clock.Clock
	logger         *log.Logger
}

// ServerOption configures a ServerFeeder at construction time.
type ServerOption func(*ServerFeeder)

// WithServerClock overrides the feeder's time source.
func WithServerClock(c clock.Clock) ServerOption {
	return func(f *ServerFeeder) { f.clock = c }
}

// WithEmptyBackoff overrides the sleep after an empty batch.
func WithEmptyBackoff(d time.Duration) ServerOption {
	return func(f *ServerFeeder) { f.emptyBackoff = d }
}

// NewServerFeeder builds a ServerFeeder pulling through client, sleeping
// fullQueuePause whenever the queue is saturated.
func NewServerFeeder(client *urlserver.Client, fullQueuePause time.Duration, opts ...ServerOption) *ServerFeeder {
	f := &ServerFeeder{
		client:         client,
		fullQueuePause: fullQueuePause,
		emptyBackoff:   defaultEmptyBackoff,
		clock:          clock.New(),
		logger:         log.New(os.Stderr, "feeder: ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run implements Feeder. It loops: whenever the queue has spare capacity it
// requests a batch, dedup-inserts and shuffles; an empty batch triggers a
// backoff sleep; a saturated queue triggers the configured full-queue
// pause. A URL-server API failure is fatal and returned to the caller
// (spec.md's "On URL-server API failure, log and signal shutdown").
func (f *ServerFeeder) Run(ctx context.Context, q *queue.WorkQueue) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		size, capacity := q.Len(), q.Cap()
		if size < capacity {
			jobs, err := f.client.GetCrawlQueue(ctx, capacity-size)
			if err != nil {
				if ctx.Err() != nil || err == crawlerr.ErrCancelled {
					return nil
				}
				f.logger.Printf("url-server unreachable, stopping: %v", err)
				return err
			}

			if len(jobs) == 0 {
				if !f.sleep(ctx, f.emptyBackoff) {
					return nil
				}
				continue
			}

			for _, j := range jobs {
				if err := q.Put(ctx, j); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return nil
				}
			}
			q.Shuffle()
		}

		if ctx.Err() != nil {
			return nil
		}
		if q.Len() == q.Cap() {
			f.logger.Printf("queue saturated at %s items, pausing %s",
				humanize.Comma(int64(q.Cap())), f.fullQueuePause)
			if !f.sleep(ctx, f.fullQueuePause) {
				return nil
			}
		}
	}
}

// sleep blocks for d or until ctx is done, returning false in the latter
// case so callers can bail out immediately (the "check immediately after
// every blocking call" design note).
func (f *ServerFeeder) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-f.clock.After(d):
		return true
	}
}
