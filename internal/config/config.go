// Package config loads the worker's Settings (spec.md §6) from environment
// variables, adapting the teacher's NewFromEnv pattern (crawler/crawler.go)
// from a one-shot CrawlerSettings struct to the full configuration surface
// spec.md enumerates plus the fields original_source/heroshi/worker/Crawler.py
// reads that the distillation folded into prose.
package config

import (
	"time"

	"github.com/codepr/heroshi-worker/internal/env"
)

// Mode selects how the Queue Feeder sources jobs.
type Mode int

const (
	// ModeServer pulls batches from the URL server's /crawl-queue API.
	ModeServer Mode = iota
	// ModeStream reads one job per line from stdin (or any io.Reader).
	ModeStream
)

// Settings is the worker's full typed configuration.
type Settings struct {
	// ManagerURL is the base URL of the URL server.
	ManagerURL string
	// APIKey is sent as the X-Heroshi-Auth header on every URL-server call.
	APIKey string
	// UserAgent is the HTTP User-Agent header on every outbound request.
	UserAgent string
	// IdentityName is the robots.txt agent name passed to can_fetch.
	IdentityName string
	// SocketTimeout bounds a single content fetch (spec.md's
	// settings.socket_timeout).
	SocketTimeout time.Duration
	// FullQueuePause is slept in server mode when the queue is saturated.
	FullQueuePause time.Duration
	// MaxConnections is the worker-pool size (spec.md's max_connections).
	MaxConnections int
	// QueueSize is the Work Queue capacity in server mode.
	QueueSize int
	// Mode selects the Feeder's job source.
	Mode Mode
	// InputIsPlain: stream-mode lines are bare URLs rather than JSON
	// objects, per original_source/heroshi/worker/Crawler.py's
	// input_is_plain flag (supplemented feature, spec.md §9).
	InputIsPlain bool
	// IncludeContent controls whether a successful Report carries the
	// fetched body. Left as an explicit flag per spec.md §9's open
	// question about the original's inconsistent behavior.
	IncludeContent bool
	// RobotsCacheTTL is the robots.txt entry expiration window.
	RobotsCacheTTL time.Duration
	// HostPoolMaxSize bounds concurrent requests per host.
	HostPoolMaxSize int
	// HostPoolIdleTimeout evicts a host's pool entry after this much
	// inactivity.
	HostPoolIdleTimeout time.Duration
	// HostPoolRPS rate-limits requests per host; 0 disables the limiter.
	HostPoolRPS float64
	// PolitenessFixedDelay seeds the adaptive per-host crawl delay before
	// any response time has been observed.
	PolitenessFixedDelay time.Duration
}

const (
	defaultUserAgent      = "Mozilla/5.0 (compatible; HeroshiWorker/1.0; +https://github.com/codepr/heroshi-worker)"
	defaultIdentityName   = "HeroshiWorker"
	defaultSocketTimeout  = 20 * time.Second
	defaultFullQueuePause = 30 * time.Second
	defaultMaxConnections = 8
	defaultQueueSize      = 128
)

// FromEnv loads Settings from environment variables, falling back to
// spec.md's documented defaults (or this repo's where the spec is silent).
func FromEnv() Settings {
	return Settings{
		ManagerURL:            env.GetEnv("HEROSHI_MANAGER_URL", ""),
		APIKey:                env.GetEnv("HEROSHI_API_KEY", ""),
		UserAgent:             env.GetEnv("HEROSHI_USER_AGENT", defaultUserAgent),
		IdentityName:          env.GetEnv("HEROSHI_IDENTITY_NAME", defaultIdentityName),
		SocketTimeout:         time.Duration(env.GetEnvAsInt("HEROSHI_SOCKET_TIMEOUT", int(defaultSocketTimeout/time.Second))) * time.Second,
		FullQueuePause:        time.Duration(env.GetEnvAsInt("HEROSHI_FULL_QUEUE_PAUSE", int(defaultFullQueuePause/time.Second))) * time.Second,
		MaxConnections:        env.GetEnvAsInt("HEROSHI_MAX_CONNECTIONS", defaultMaxConnections),
		QueueSize:             env.GetEnvAsInt("HEROSHI_QUEUE_SIZE", defaultQueueSize),
		Mode:                  modeFromString(env.GetEnv("HEROSHI_MODE", "server")),
		InputIsPlain:          env.GetEnv("HEROSHI_INPUT_IS_PLAIN", "false") == "true",
		IncludeContent:        env.GetEnv("HEROSHI_INCLUDE_CONTENT", "true") != "false",
		RobotsCacheTTL:        time.Duration(env.GetEnvAsInt("HEROSHI_ROBOTS_CACHE_TTL", 600)) * time.Second,
		HostPoolMaxSize:       env.GetEnvAsInt("HEROSHI_HOSTPOOL_MAX_SIZE", 5),
		HostPoolIdleTimeout:   time.Duration(env.GetEnvAsInt("HEROSHI_HOSTPOOL_IDLE_TIMEOUT", 120)) * time.Second,
		HostPoolRPS:           0,
		PolitenessFixedDelay:  500 * time.Millisecond,
	}
}

func modeFromString(s string) Mode {
	if s == "stream" {
		return ModeStream
	}
	return ModeServer
}
