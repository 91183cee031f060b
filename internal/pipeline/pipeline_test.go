package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepr/heroshi-worker/internal/fetcher"
	"github.com/codepr/heroshi-worker/internal/hostpool"
	"github.com/codepr/heroshi-worker/internal/job"
	"github.com/codepr/heroshi-worker/internal/parser"
	"github.com/codepr/heroshi-worker/internal/robots"
)

func newTestPipeline(includeContent bool) *Pipeline {
	f := fetcher.New("test-agent", 2*time.Second)
	rc := robots.New(f, 0)
	hp := hostpool.New(5, 0, 0, 0)
	p := parser.New()
	return New(rc, hp, f, p, "test-agent", 2*time.Second, includeContent)
}

func TestRunInvalidURIFailsFast(t *testing.T) {
	pl := newTestPipeline(true)
	report, err := pl.Run(context.Background(), job.Job{URL: "not a url"})
	require.NoError(t, err)
	assert.Equal(t, "Invalid URI", report.Result)
	assert.NotEmpty(t, report.Visited)
}

func TestRunDeniedByRobots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>hi</body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pl := newTestPipeline(true)
	report, err := pl.Run(context.Background(), job.Job{URL: srv.URL + "/page"})
	require.NoError(t, err)
	assert.Equal(t, "Deny by robots.txt", report.Result)
	assert.Zero(t, report.StatusCode)
}

func TestRunSuccessAllowedByRobots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>hi <a href="/other">link</a></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pl := newTestPipeline(true)
	report, err := pl.Run(context.Background(), job.Job{URL: srv.URL + "/page"})
	require.NoError(t, err)
	assert.Empty(t, report.Result)
	assert.Equal(t, http.StatusOK, report.StatusCode)
	assert.Contains(t, report.Content, "hi")
	require.Len(t, report.Links, 1)
	assert.True(t, strings.HasSuffix(report.Links[0], "/other"))
	assert.NotEmpty(t, report.Visited)
}

func TestRunExcludesContentWhenDisabled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>hi</body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pl := newTestPipeline(false)
	report, err := pl.Run(context.Background(), job.Job{URL: srv.URL + "/page"})
	require.NoError(t, err)
	assert.Empty(t, report.Content)
}

func TestRunAbortsOnCancelledContext(t *testing.T) {
	pl := newTestPipeline(true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := pl.Run(ctx, job.Job{URL: "http://example.test/page"})
	assert.Nil(t, report)
	require.Error(t, err)
}
