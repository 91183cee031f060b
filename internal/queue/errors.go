package queue

import "errors"

// ErrClosed is returned by Put once Close has been called.
var ErrClosed = errors.New("queue: closed")
