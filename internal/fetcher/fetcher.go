// Package fetcher implements the HTTP Fetcher (spec.md C1): a single GET
// request with an identifying User-Agent, a hard wall-clock timeout, a
// bounded redirect chain and a bounded body read. It does not interpret
// status codes or parse bodies — that policy lives in internal/pipeline and
// internal/parser respectively.
//
// Adapted from the teacher's fetcher.go (rehttp-backed retrying transport)
// with FetchLinks dropped: spec.md separates fetching from parsing so that
// a parser failure never fails the fetch half of a Report.
package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/rehttp"
	"github.com/aybabtme/iocontrol"

	"github.com/codepr/heroshi-worker/internal/crawlerr"
)

// maxRedirects bounds the redirect chain a single Fetch will follow, per
// spec.md's "at least 5" requirement.
const maxRedirects = 10

// maxBodyBytes bounds how much of a response body Fetch will read,
// regardless of Content-Length, protecting a worker from a single huge or
// slow-drip response consuming a concurrency slot indefinitely.
const maxBodyBytes = 16 * 1024 * 1024 // 16 MiB

// FetchResult is the raw outcome of a single HTTP GET. Success is true iff
// a response was received without a transport error; Result carries a
// human-readable failure reason when Success is false.
type FetchResult struct {
	StatusCode int
	Content    []byte
	Success    bool
	Result     string
}

// Fetcher issues single HTTP GET requests with a configured identity and
// per-call timeout.
type Fetcher struct {
	userAgent string
	client    *http.Client
}

// New builds a Fetcher using rehttp's retrying transport: up to 3 retries
// on temporary transport errors with exponential jitter backoff, exactly as
// the teacher's fetcher.New does. baseTimeout bounds any single attempt
// including its retries; Fetch additionally accepts a per-call timeout that
// takes precedence when smaller.
func New(userAgent string, baseTimeout time.Duration) *Fetcher {
	transport := rehttp.NewTransport(
		&http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		},
		rehttp.RetryAll(rehttp.RetryMaxRetries(3), rehttp.RetryTemporaryErr()),
		rehttp.ExpJitterDelay(100*time.Millisecond, 10*time.Second),
	)
	client := &http.Client{
		Timeout:       baseTimeout,
		Transport:     transport,
		CheckRedirect: checkRedirect,
	}
	return &Fetcher{userAgent: userAgent, client: client}
}

func checkRedirect(_ *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("fetcher: stopped after too many redirects")
	}
	return nil
}

// Fetch performs a single GET against uri, honoring timeout as a hard
// wall-clock deadline and ctx for cooperative cancellation from the
// supervisor. It returns (result, nil) for any completed HTTP exchange,
// including non-2xx responses — status-code policy is the caller's job.
// It returns crawlerr.ErrCancelled if ctx was already done, or
// crawlerr.ErrTimeout if only the deadline elapsed.
func (f *Fetcher) Fetch(ctx context.Context, uri string, timeout time.Duration) (FetchResult, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, uri, nil)
	if err != nil {
		return FetchResult{Success: false, Result: err.Error()}, nil
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return FetchResult{}, crawlerr.ErrCancelled
		}
		if callCtx.Err() == context.DeadlineExceeded {
			return FetchResult{}, crawlerr.ErrTimeout
		}
		return FetchResult{Success: false, Result: err.Error()}, nil
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxBodyBytes)
	measured := iocontrol.NewMeasuredReader(limited)
	body, err := io.ReadAll(measured)
	if err != nil {
		if ctx.Err() != nil {
			return FetchResult{}, crawlerr.ErrCancelled
		}
		if callCtx.Err() == context.DeadlineExceeded {
			return FetchResult{}, crawlerr.ErrTimeout
		}
		return FetchResult{Success: false, Result: err.Error()}, nil
	}

	return FetchResult{
		StatusCode: resp.StatusCode,
		Content:    body,
		Success:    true,
	}, nil
}
