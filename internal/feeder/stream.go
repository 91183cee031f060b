package feeder

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/codepr/heroshi-worker/internal/job"
	"github.com/codepr/heroshi-worker/internal/messaging"
	"github.com/codepr/heroshi-worker/internal/queue"
)

// drainPollInterval is how often StreamFeeder checks for queue drain after
// its input source reaches EOF.
const drainPollInterval = 50 * time.Millisecond

// drainGracePeriod is slept once the queue first looks empty, then the
// queue is checked again before declaring it drained. Ported from
// Crawler.py's own "FIXME: Crutch to prevent stopping too early": a job
// TryGet already pulled off the queue is still in flight in a worker, and a
// Put racing the drain check could otherwise be missed entirely.
const drainGracePeriod = 200 * time.Millisecond

// StreamFeeder reads one job per line from a messaging.Consumer, per
// spec.md §4.5 stream mode. Malformed JSON lines are logged and skipped
// rather than failing the feeder.
type StreamFeeder struct {
	consumer     messaging.Consumer
	inputIsPlain bool
	clock        clock.Clock
	logger       *log.Logger
}

// StreamOption configures a StreamFeeder at construction time.
type StreamOption func(*StreamFeeder)

// WithStreamClock overrides the feeder's time source.
func WithStreamClock(c clock.Clock) StreamOption {
	return func(f *StreamFeeder) { f.clock = c }
}

// NewStreamFeeder builds a StreamFeeder reading lines through consumer.
// inputIsPlain selects bare-URL lines over JSON objects.
func NewStreamFeeder(consumer messaging.Consumer, inputIsPlain bool, opts ...StreamOption) *StreamFeeder {
	f := &StreamFeeder{
		consumer:     consumer,
		inputIsPlain: inputIsPlain,
		clock:        clock.New(),
		logger:       log.New(os.Stderr, "feeder: ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run implements Feeder. It consumes lines until the source reaches EOF,
// dedup-inserting each into q (Put blocks when q is full: "the intended
// backpressure" per spec.md §4.5). On EOF it waits for q to fully drain,
// then returns nil: the Supervisor treats that as a graceful-stop signal.
func (f *StreamFeeder) Run(ctx context.Context, q *queue.WorkQueue) error {
	events := make(chan []byte)
	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- f.consumer.Consume(events)
		close(events)
	}()

readLoop:
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-events:
			if !ok {
				break readLoop
			}
			j, ok := f.parseLine(line)
			if !ok {
				continue
			}
			if err := q.Put(ctx, j); err != nil {
				return nil
			}
		}
	}

	if err := <-consumeErr; err != nil {
		f.logger.Printf("stream input error: %v", err)
	}

	for {
		for q.Len() > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-f.clock.After(drainPollInterval):
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-f.clock.After(drainGracePeriod):
		}
		if q.Len() == 0 {
			return nil
		}
	}
}

func (f *StreamFeeder) parseLine(line []byte) (job.Job, bool) {
	if f.inputIsPlain {
		url := strings.TrimSpace(string(line))
		if url == "" {
			return job.Job{}, false
		}
		return job.Job{URL: url}, true
	}

	var j job.Job
	if err := json.Unmarshal(line, &j); err != nil || j.URL == "" {
		f.logger.Printf("skipping malformed input line: %q", line)
		return job.Job{}, false
	}
	return j, true
}
