package readycheck

import "errors"

var (
	// ErrStale is returned for signals that arrive after the check resolved.
	ErrStale = errors.New("ready check already resolved")
	// ErrNotAwaited is returned for signals from participants outside the check.
	ErrNotAwaited = errors.New("participant not awaited by ready check")
)
