package urlserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepr/heroshi-worker/internal/crawlerr"
	"github.com/codepr/heroshi-worker/internal/job"
)

func TestGetCrawlQueueSendsExpectedRequest(t *testing.T) {
	var gotMethod, gotPath, gotLimit, gotAgent, gotAuth, gotExpect string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotLimit = r.FormValue("limit")
		gotAgent = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("X-Heroshi-Auth")
		gotExpect = r.Header.Get("Expect")
		w.Write([]byte(`[{"url":"http://a.test/1"},{"url":"http://b.test/2"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", "heroshi-ua", nil)
	jobs, err := c.GetCrawlQueue(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/crawl-queue", gotPath)
	assert.Equal(t, "10", gotLimit)
	assert.Equal(t, "heroshi-ua", gotAgent)
	assert.Equal(t, "secret", gotAuth)
	assert.Equal(t, "", gotExpect)
	require.Len(t, jobs, 2)
	assert.Equal(t, "http://a.test/1", jobs[0].URL)
}

func TestGetCrawlQueueEmptyBatchIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "ua", nil)
	jobs, err := c.GetCrawlQueue(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestGetCrawlQueueNon2xxIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "ua", nil)
	_, err := c.GetCrawlQueue(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, crawlerr.ErrAPIError))
}

func TestPostReportPutsJSONBody(t *testing.T) {
	var gotMethod, gotPath, gotContentType string
	var gotBody job.Report
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "ua", nil)
	err := c.PostReport(context.Background(), job.Report{URL: "http://a.test/", StatusCode: 200})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/report", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "http://a.test/", gotBody.URL)
}

func TestPostReportNon2xxIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "ua", nil)
	err := c.PostReport(context.Background(), job.Report{URL: "http://a.test/"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, crawlerr.ErrAPIError))
}
