// Package supervisor implements the Crawler Supervisor (spec.md C8): it
// owns the Work Queue and the Feeder, spawns a bounded worker pool that
// drains the queue through the Pipeline and the Reporter, and implements
// cooperative and graceful shutdown.
//
// The functional-options constructor and the "private logger instance"
// convention are kept from the teacher's WebCrawler (crawler/crawler.go,
// CrawlerOpt/CrawlerSettings); the worker pool itself is restructured
// around golang.org/x/sync/errgroup so a crash in any worker is fail-stop
// for the whole supervisor, per spec.md §4.8's "Error containment".
package supervisor

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/codepr/heroshi-worker/internal/feeder"
	"github.com/codepr/heroshi-worker/internal/job"
	"github.com/codepr/heroshi-worker/internal/pipeline"
	"github.com/codepr/heroshi-worker/internal/queue"
	"github.com/codepr/heroshi-worker/internal/reporter"
)

// defaultMaxConnections mirrors the teacher's defaultConcurrency.
const defaultMaxConnections = 8

// Settings configures a Supervisor.
type Settings struct {
	// MaxConnections is the worker-pool size (spec.md's max_connections).
	MaxConnections int
}

// SupervisorOpt configures Settings at construction time, adapted from the
// teacher's CrawlerOpt.
type SupervisorOpt func(*Settings)

// WithMaxConnections overrides the worker-pool size.
func WithMaxConnections(n int) SupervisorOpt {
	return func(s *Settings) { s.MaxConnections = n }
}

// Supervisor owns the queue, the feeder and the worker pool's lifecycle.
// A single closed flag (a cancellable context) is read cooperatively by
// every component, per spec.md §5's "Shared resources" / "Cancellation".
type Supervisor struct {
	logger   *log.Logger
	settings *Settings
	queue    *queue.WorkQueue
	feeder   feeder.Feeder
	pipeline *pipeline.Pipeline
	reporter *reporter.Reporter

	cancel    context.CancelFunc
	done      chan struct{}
	eg        *errgroup.Group
	err       error
	startedAt time.Time
}

// New builds a Supervisor wired to q, f, p and r. The queue, feeder,
// pipeline and reporter are constructed by the caller (cmd/worker) so tests
// can substitute fakes freely.
func New(q *queue.WorkQueue, f feeder.Feeder, p *pipeline.Pipeline, r *reporter.Reporter, opts ...SupervisorOpt) *Supervisor {
	settings := &Settings{MaxConnections: defaultMaxConnections}
	for _, opt := range opts {
		opt(settings)
	}
	return &Supervisor{
		logger:   log.New(os.Stderr, "supervisor: ", log.LstdFlags),
		settings: settings,
		queue:    q,
		feeder:   f,
		pipeline: p,
		reporter: r,
	}
}

// Start spawns the Feeder and the worker pool. It returns immediately; call
// Wait to block until the pool stops (cooperatively or on a fatal error).
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.startedAt = time.Now()

	eg, egCtx := errgroup.WithContext(ctx)
	s.eg = eg

	eg.Go(func() error {
		err := s.feeder.Run(egCtx, s.queue)
		if err != nil {
			// Fatal: errgroup.WithContext already cancels egCtx for every
			// worker as soon as this Go func returns a non-nil error
			// (spec.md §4.8's fail-stop containment).
			return err
		}
		// Graceful completion: stream mode's Feeder only returns nil after
		// EOF and a full queue drain (spec.md §4.5); cancel so idle workers
		// stop polling instead of spinning forever.
		s.cancel()
		return nil
	})

	for i := 0; i < s.settings.MaxConnections; i++ {
		eg.Go(func() error {
			return s.runWorker(egCtx)
		})
	}

	go func() {
		err := eg.Wait()
		if err != nil {
			s.logger.Printf("supervisor: worker pool stopped: %v (started %s)", err, humanize.Time(s.startedAt))
			s.err = err
		} else {
			s.logger.Printf("supervisor: worker pool drained gracefully (started %s)", humanize.Time(s.startedAt))
		}
		close(s.done)
	}()
}

// Err returns the fatal error that stopped the worker pool, if any. It is
// only meaningful after Wait (or GracefulStop) has returned, and is nil for
// a cooperative or graceful stop: spec.md's exit-code contract ("0 on
// graceful drain; non-zero on supervisor-propagated fatal error") reads
// this to decide the process exit code.
func (s *Supervisor) Err() error { return s.err }

// runWorker pulls jobs from the queue until ctx is cancelled, running each
// through the Pipeline and handing the result to the Reporter. It never
// returns a non-nil error on a clean cooperative stop: that keeps
// errgroup's fail-stop propagation reserved for genuine crashes, per
// spec.md §4.8.
func (s *Supervisor) runWorker(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		j, ok := s.nextJob(ctx)
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		report, err := s.pipeline.Run(ctx, j)
		if err != nil {
			// Cancelled: spec.md's ABORTED state, no report emitted.
			continue
		}
		s.reporter.Report(ctx, *report)
	}
}

// nextJob polls the queue for work, sleeping briefly between empty
// attempts so an idle worker does not spin. It returns ok=false when ctx is
// done.
func (s *Supervisor) nextJob(ctx context.Context) (job.Job, bool) {
	const pollInterval = 50 * time.Millisecond
	for {
		if j, ok := s.queue.TryGet(); ok {
			return j, true
		}
		select {
		case <-ctx.Done():
			return job.Job{}, false
		case <-time.After(pollInterval):
		}
	}
}

// Stop sets the closed flag. Cooperative: every component polls it at safe
// points (spec.md §4.8). It does not wait for drain; call Wait for that.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until the worker pool has fully stopped.
func (s *Supervisor) Wait() {
	if s.done != nil {
		<-s.done
	}
}

// GracefulStop sets the closed flag and waits up to timeout (0 means
// forever) for the worker pool to drain. It returns true if the pool
// drained within timeout, false otherwise.
func (s *Supervisor) GracefulStop(timeout time.Duration) bool {
	s.Stop()
	if timeout <= 0 {
		s.Wait()
		return true
	}
	select {
	case <-s.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
