// Package feeder implements the Queue Feeder (spec.md C5): it fills the
// Work Queue either from the URL server's batch API (server mode) or from
// a line-oriented input stream (stream mode), shuffling after every batch
// insert so consecutive items rarely share a host.
package feeder

import (
	"context"

	"github.com/codepr/heroshi-worker/internal/queue"
)

// Feeder fills q until ctx is done or its own source is exhausted.
//
// A nil return means graceful, voluntary completion: the source is
// exhausted and (for modes that buffer work) the queue has already
// drained. The Supervisor cancels its context in response, stopping the
// worker pool. A non-nil return means the source itself failed
// unrecoverably (spec.md's "On URL-server API failure, log and signal
// shutdown") and is fail-stop for the whole supervisor.
type Feeder interface {
	Run(ctx context.Context, q *queue.WorkQueue) error
}
