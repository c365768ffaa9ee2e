package queue

import "errors"

// Sentinel kinds for publish failures.
var (
	ErrClosed = errors.New("event queue closed")
	ErrFull   = errors.New("event queue full")
)
