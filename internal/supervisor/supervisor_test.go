package supervisor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepr/heroshi-worker/internal/feeder"
	"github.com/codepr/heroshi-worker/internal/fetcher"
	"github.com/codepr/heroshi-worker/internal/hostpool"
	"github.com/codepr/heroshi-worker/internal/messaging"
	"github.com/codepr/heroshi-worker/internal/parser"
	"github.com/codepr/heroshi-worker/internal/pipeline"
	"github.com/codepr/heroshi-worker/internal/queue"
	"github.com/codepr/heroshi-worker/internal/reporter"
	"github.com/codepr/heroshi-worker/internal/robots"
	"github.com/codepr/heroshi-worker/internal/urlserver"
)

func TestSupervisorDrainsStreamModeAndStopsGracefully(t *testing.T) {
	var reportedURLs []string
	pageSrv := httptest.NewServeMux()
	pageSrv.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	pageSrv.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>hi</body></html>"))
	})
	crawlTarget := httptest.NewServer(pageSrv)
	defer crawlTarget.Close()

	manager := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reportedURLs = append(reportedURLs, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer manager.Close()

	f := fetcher.New("test-agent", 2*time.Second)
	rc := robots.New(f, 0)
	defer rc.Close()
	hp := hostpool.New(5, 0, 0, 0)
	defer hp.Close()
	p := parser.New()
	pl := pipeline.New(rc, hp, f, p, "test-agent", 2*time.Second, true)

	client := urlserver.New(manager.URL, "k", "ua", nil)
	rep := reporter.New(client, nil)

	q := queue.New(4)
	consumer := messaging.NewLineConsumer(strings.NewReader(crawlTarget.URL + "/page\n"))
	sf := feeder.NewStreamFeeder(consumer, true)

	sup := New(q, sf, pl, rep, WithMaxConnections(2))
	sup.Start(context.Background())

	waitDone := make(chan struct{})
	go func() {
		sup.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor never stopped after stream feeder drained")
	}

	require.Len(t, reportedURLs, 1)
	assert.Equal(t, "/report", reportedURLs[0])
}
