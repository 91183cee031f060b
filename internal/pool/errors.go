package pool

import "errors"

// ErrPoolTimeout is returned by Get when a key's pool is saturated and no
// resource is released before the context/timeout elapses. internal/pipeline
// surfaces this (via internal/hostpool) as a FetchError per spec.md ErrKinds.
var ErrPoolTimeout = errors.New("pool: timeout waiting for a free resource")
