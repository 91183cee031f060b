// Package reporter implements the Reporter (spec.md C7): posting completed
// Reports back to the URL server, with the unicode-decode-error fallback
// spec.md §9's design notes call out explicitly.
package reporter

import (
	"context"
	"log"
	"unicode/utf8"

	"github.com/codepr/heroshi-worker/internal/job"
	"github.com/codepr/heroshi-worker/internal/urlserver"
)

// Reporter posts Reports to the URL server.
type Reporter struct {
	client *urlserver.Client
	logger *log.Logger
}

// New builds a Reporter posting through client. A nil logger falls back to
// the standard library's default logger.
func New(client *urlserver.Client, logger *log.Logger) *Reporter {
	if logger == nil {
		logger = log.Default()
	}
	return &Reporter{client: client, logger: logger}
}

// Report posts r to the URL server.
//
// If r.Content is not valid UTF-8 (the transport requires text encoding and
// would otherwise fail to serialize), it is dropped and Result is set to
// "unicode decode error" before the report is posted, per spec.md §4.7 and
// §9's "Report serialization fallback" design note; the check happens up
// front, so the report is posted once, never retried. Transport errors and
// non-2xx responses are logged, not retried in-band: the URL server
// re-enqueues stale URLs after its own TTL.
func (rp *Reporter) Report(ctx context.Context, r job.Report) {
	if r.Content != "" && !utf8.ValidString(r.Content) {
		r.Content = ""
		r.Result = "unicode decode error"
	}

	if err := rp.client.PostReport(ctx, r); err != nil {
		rp.logger.Printf("reporter: failed to post report for %s: %v", r.URL, err)
	}
}
