package reporter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepr/heroshi-worker/internal/job"
	"github.com/codepr/heroshi-worker/internal/urlserver"
)

func TestReportPostsValidReportVerbatim(t *testing.T) {
	var got job.Report
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rp := New(urlserver.New(srv.URL, "k", "ua", nil), nil)
	rp.Report(context.Background(), job.Report{URL: "http://a.test/", StatusCode: 200, Content: "hello"})

	assert.Equal(t, "http://a.test/", got.URL)
	assert.Equal(t, "hello", got.Content)
	assert.Empty(t, got.Result)
}

func TestReportDropsInvalidUTF8Content(t *testing.T) {
	var got job.Report
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rp := New(urlserver.New(srv.URL, "k", "ua", nil), nil)
	rp.Report(context.Background(), job.Report{URL: "http://a.test/", Content: "\xff\xfe invalid"})

	assert.Empty(t, got.Content)
	assert.Equal(t, "unicode decode error", got.Result)
}

func TestReportTransportErrorIsLoggedNotPanicked(t *testing.T) {
	rp := New(urlserver.New("http://127.0.0.1:1", "k", "ua", nil), nil)
	assert.NotPanics(t, func() {
		rp.Report(context.Background(), job.Report{URL: "http://a.test/"})
	})
}
