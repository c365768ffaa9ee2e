package readycheck

import (
	"time"

	"github.com/okian/inhouse/pkg/logger"
)

// Option configures a Check.
type Option func(*Check)

// WithLogger sets the logger used for resolution messages.
func WithLogger(l logger.Logger) Option {
	return func(c *Check) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSignalBuffer sets the capacity of the signal channel.
func WithSignalBuffer(n int) Option {
	return func(c *Check) {
		if n > 0 {
			c.bufSize = n
		}
	}
}

// WithClock overrides the clock used to stamp and enforce the deadline.
func WithClock(now func() time.Time) Option {
	return func(c *Check) {
		if now != nil {
			c.now = now
		}
	}
}
