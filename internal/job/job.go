// Package job defines the data model crossing the frontier boundary: a Job
// is handed to the pipeline by the Feeder, a Report is handed back to the
// Reporter. Field names and JSON tags mirror heroshi/worker/Crawler.py's
// report dict exactly, since the URL server on the other end is unchanged.
package job

import "time"

// TimeFormat is the fixed "visited" timestamp layout, equivalent to the
// original's heroshi.TIME_FORMAT ("%Y-%m-%dT%H:%M:%S").
const TimeFormat = "2006-01-02T15:04:05"

// Job is a single unit of crawl work: a URL to fetch. Constructed by the
// Feeder and consumed exactly once by a pipeline worker.
type Job struct {
	URL string `json:"url"`
}

// Report is the outcome record for one Job. Exactly one of {normal
// completion, Result set to a failure reason} holds; Visited is always set
// before the report leaves the pipeline.
type Report struct {
	URL string `json:"url"`
	// Result holds a human-readable failure reason, or is empty on success.
	Result string `json:"result,omitempty"`
	// StatusCode is the HTTP status of the content fetch, absent when the
	// pipeline never reached C1 (invalid URI, robots deny, etc).
	StatusCode int `json:"status_code,omitempty"`
	// Content is the raw response body, omitted when IncludeContent is
	// false in settings or when it is not valid UTF-8 (see reporter's
	// unicode-decode-error fallback).
	Content string `json:"content,omitempty"`
	// Links is the ordered list of absolute URLs the parser found.
	Links []string `json:"links,omitempty"`
	// Visited is the UTC timestamp the job finished processing, formatted
	// with TimeFormat.
	Visited string `json:"visited"`
	// TotalTime is the whole-pipeline wall-clock time in milliseconds.
	TotalTime int64 `json:"total_time,omitempty"`
}

// Stamp sets Visited to now, formatted per TimeFormat. Called exactly once,
// right before a Report is handed to the Reporter.
func (r *Report) Stamp(now time.Time) {
	r.Visited = now.UTC().Format(TimeFormat)
}
