// Package urlserver is the worker's client for the external URL-server API
// (spec.md §6): POST /crawl-queue to pull a batch of jobs, PUT /report to
// post a completed Report back. Modeled on the teacher's own HTTP-client
// conventions in fetcher.go (shared *http.Client, explicit header setting)
// rather than inventing a new request style.
package urlserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/codepr/heroshi-worker/internal/crawlerr"
	"github.com/codepr/heroshi-worker/internal/job"
)

// Client talks to the URL server's /crawl-queue and /report endpoints.
type Client struct {
	baseURL   string
	apiKey    string
	userAgent string
	http      *http.Client
}

// New builds a Client against baseURL, authenticating with apiKey and
// identifying itself as userAgent on every request.
func New(baseURL, apiKey, userAgent string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, userAgent: userAgent, http: httpClient}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Heroshi-Auth", c.apiKey)
	// Disable 100-continue: the URL server doesn't speak it and some
	// proxies in front of it stall waiting for the client to send one.
	req.Header.Set("Expect", "")
}

// GetCrawlQueue asks the URL server for up to limit jobs. A successful
// response with zero jobs is not an error; the Feeder treats it as a
// backoff signal.
func (c *Client) GetCrawlQueue(ctx context.Context, limit int) ([]job.Job, error) {
	form := url.Values{"limit": {strconv.Itoa(limit)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/crawl-queue",
		bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crawlerr.ErrAPIError, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, crawlerr.ErrCancelled
		}
		return nil, fmt.Errorf("%w: %v", crawlerr.ErrAPIError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: crawl-queue status %d", crawlerr.ErrAPIError, resp.StatusCode)
	}

	var jobs []job.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return nil, fmt.Errorf("%w: decoding crawl-queue response: %v", crawlerr.ErrAPIError, err)
	}
	return jobs, nil
}

// PostReport PUTs a completed Report to the URL server. Non-2xx and
// transport failures both surface as ErrAPIError; the Reporter decides
// whether that is retried or merely logged.
func (c *Client) PostReport(ctx context.Context, r job.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: marshaling report: %v", crawlerr.ErrAPIError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/report", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", crawlerr.ErrAPIError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return crawlerr.ErrCancelled
		}
		return fmt.Errorf("%w: %v", crawlerr.ErrAPIError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: report status %d", crawlerr.ErrAPIError, resp.StatusCode)
	}
	return nil
}
