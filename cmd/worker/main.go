// Command worker runs a single heroshi crawl worker: it pulls jobs from the
// URL server (or stdin, in stream mode), fetches and parses each one
// honoring robots.txt and per-host connection limits, and posts a Report
// back for every job it dequeues.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codepr/heroshi-worker/internal/config"
	"github.com/codepr/heroshi-worker/internal/feeder"
	"github.com/codepr/heroshi-worker/internal/fetcher"
	"github.com/codepr/heroshi-worker/internal/hostpool"
	"github.com/codepr/heroshi-worker/internal/messaging"
	"github.com/codepr/heroshi-worker/internal/parser"
	"github.com/codepr/heroshi-worker/internal/pipeline"
	"github.com/codepr/heroshi-worker/internal/queue"
	"github.com/codepr/heroshi-worker/internal/reporter"
	"github.com/codepr/heroshi-worker/internal/robots"
	"github.com/codepr/heroshi-worker/internal/supervisor"
	"github.com/codepr/heroshi-worker/internal/urlserver"
)

var (
	streamMode     bool
	inputPlain     bool
	maxConnections int
	queueSize      int
)

func main() {
	root := &cobra.Command{
		Use:   "worker",
		Short: "heroshi-worker crawls URLs and reports results to a URL server",
		RunE:  run,
	}
	root.Flags().BoolVar(&streamMode, "stream", false, "read jobs from stdin instead of the URL server")
	root.Flags().BoolVar(&inputPlain, "input-plain", false, "stream-mode lines are bare URLs rather than JSON objects")
	root.Flags().IntVar(&maxConnections, "max-connections", 0, "worker-pool size (0: use configuration/env default)")
	root.Flags().IntVar(&queueSize, "queue-size", 0, "work queue capacity in server mode (0: use configuration/env default)")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	settings := config.FromEnv()
	if streamMode {
		settings.Mode = config.ModeStream
	}
	if inputPlain {
		settings.InputIsPlain = true
	}
	if maxConnections > 0 {
		settings.MaxConnections = maxConnections
	}
	if queueSize > 0 {
		settings.QueueSize = queueSize
	}

	f := fetcher.New(settings.UserAgent, settings.SocketTimeout)
	rc := robots.New(f, settings.RobotsCacheTTL)
	defer rc.Close()
	hp := hostpool.New(settings.HostPoolMaxSize, settings.HostPoolIdleTimeout, settings.HostPoolRPS, settings.PolitenessFixedDelay)
	defer hp.Close()
	pr := parser.New(".png", ".jpg", ".jpeg", ".gif", ".svg", ".css", ".js", ".pdf", ".zip")
	pl := pipeline.New(rc, hp, f, pr, settings.IdentityName, settings.SocketTimeout, settings.IncludeContent)

	client := urlserver.New(settings.ManagerURL, settings.APIKey, settings.UserAgent, nil)
	rep := reporter.New(client, log.New(os.Stderr, "reporter: ", log.LstdFlags))

	q := queue.New(settings.QueueSize)

	var feed feeder.Feeder
	if settings.Mode == config.ModeStream {
		feed = feeder.NewStreamFeeder(messaging.NewLineConsumer(os.Stdin), settings.InputIsPlain)
	} else {
		feed = feeder.NewServerFeeder(client, settings.FullQueuePause)
	}

	sup := supervisor.New(q, feed, pl, rep, supervisor.WithMaxConnections(settings.MaxConnections))

	ctx := context.Background()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sup.Start(ctx)

	done := make(chan struct{})
	go func() {
		sup.Wait()
		close(done)
	}()

	select {
	case <-sigCh:
		if !sup.GracefulStop(30 * time.Second) {
			return fmt.Errorf("worker: timed out waiting for graceful drain")
		}
		return nil
	case <-done:
		// The pool stopped on its own: either a graceful stream-mode drain
		// (Err() is nil, exit 0) or a fatal feeder/upstream failure
		// (Err() is the propagated error, exit non-zero).
		return sup.Err()
	}
}
