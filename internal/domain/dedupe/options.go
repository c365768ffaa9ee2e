package dedupe

import "time"

// Option applies a configuration option to the in-memory tracker.
type Option func(*inMemoryTracker)

// WithMaxSize sets the maximum number of keys to keep.
// maxSize <= 0 keeps every key.
func WithMaxSize(maxSize int) Option {
	return func(t *inMemoryTracker) {
		t.maxSize = maxSize
	}
}

// WithClock overrides the timestamp source for recorded entries.
func WithClock(now func() time.Time) Option {
	return func(t *inMemoryTracker) {
		if now != nil {
			t.now = now
		}
	}
}
